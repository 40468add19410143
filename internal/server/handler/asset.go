package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/pricesync/internal/domain"
)

// AssetService is what the asset endpoints need from the service layer.
type AssetService interface {
	List(ctx context.Context) ([]domain.TrackedAsset, error)
	GetBySymbol(ctx context.Context, symbol string) (domain.TrackedAsset, error)
	Create(ctx context.Context, name, symbol string) (domain.TrackedAsset, error)
}

// AssetHandler serves /api/assets.
type AssetHandler struct {
	assets AssetService
	logger *slog.Logger
}

func NewAssetHandler(assets AssetService, logger *slog.Logger) *AssetHandler {
	return &AssetHandler{assets: assets, logger: orDefault(logger)}
}

type listAssetsResponse struct {
	Assets []domain.TrackedAsset `json:"assets"`
	Total  int                   `json:"total"`
}

// List returns every tracked asset.
// GET /api/assets
func (h *AssetHandler) List(w http.ResponseWriter, r *http.Request) {
	assets, err := h.assets.List(r.Context())
	if err != nil {
		writeDomainError(w, r, h.logger, "list assets", err)
		return
	}
	if assets == nil {
		assets = []domain.TrackedAsset{}
	}
	writeJSON(w, http.StatusOK, listAssetsResponse{Assets: assets, Total: len(assets)})
}

// Get returns one asset.
// GET /api/assets/{symbol}
func (h *AssetHandler) Get(w http.ResponseWriter, r *http.Request) {
	a, err := h.assets.GetBySymbol(r.Context(), r.PathValue("symbol"))
	if err != nil {
		writeDomainError(w, r, h.logger, "get asset", err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

type createAssetRequest struct {
	Name   string `json:"name"`
	Symbol string `json:"symbol"`
}

// Create registers an asset with zeroed prices.
// POST /api/assets {"name": "...", "symbol": "..."}
func (h *AssetHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createAssetRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	a, err := h.assets.Create(r.Context(), req.Name, req.Symbol)
	if err != nil {
		writeDomainError(w, r, h.logger, "create asset", err)
		return
	}
	writeJSON(w, http.StatusCreated, a)
}
