package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/pricesync/internal/service"
)

// SyncTrigger runs one guarded sync pass.
type SyncTrigger interface {
	Trigger(ctx context.Context) (service.SyncReport, error)
}

// SyncHandler serves the manual sync trigger.
type SyncHandler struct {
	trigger SyncTrigger
	logger  *slog.Logger
}

func NewSyncHandler(trigger SyncTrigger, logger *slog.Logger) *SyncHandler {
	return &SyncHandler{trigger: trigger, logger: orDefault(logger)}
}

type triggerResponse struct {
	Status      string             `json:"status"`
	Report      service.SyncReport `json:"report"`
	CompletedAt string             `json:"completed_at"`
}

// Trigger runs a pass and waits for it. The call may be held back by the
// rate limiter for up to one window.
// POST /api/sync/trigger
func (h *SyncHandler) Trigger(w http.ResponseWriter, r *http.Request) {
	h.logger.InfoContext(r.Context(), "handler: sync trigger requested")

	report, err := h.trigger.Trigger(r.Context())
	if err != nil {
		writeDomainError(w, r, h.logger, "sync", err)
		return
	}
	writeJSON(w, http.StatusOK, triggerResponse{
		Status:      "ok",
		Report:      report,
		CompletedAt: time.Now().UTC().Format(time.RFC3339),
	})
}
