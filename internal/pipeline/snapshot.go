package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/alanyoungcy/pricesync/internal/domain"
)

// Snapshot is the archived document: every asset as of one pass.
type Snapshot struct {
	GeneratedAt time.Time             `json:"generated_at"`
	Assets      []domain.TrackedAsset `json:"assets"`
}

// SnapshotArchiver writes the asset table to object storage after a
// successful pass.
type SnapshotArchiver struct {
	assets domain.AssetStore
	blob   domain.BlobWriter
	prefix string
	now    func() time.Time
	logger *slog.Logger
}

// NewSnapshotArchiver creates an archiver writing under prefix.
func NewSnapshotArchiver(assets domain.AssetStore, blob domain.BlobWriter, prefix string, logger *slog.Logger) *SnapshotArchiver {
	if logger == nil {
		logger = slog.Default()
	}
	return &SnapshotArchiver{
		assets: assets,
		blob:   blob,
		prefix: strings.Trim(prefix, "/"),
		now:    time.Now,
		logger: logger.With(slog.String("component", "snapshot_archiver")),
	}
}

// SnapshotPath returns {prefix}/YYYY/MM/DD/HHMMSS.json for t in UTC.
func SnapshotPath(prefix string, t time.Time) string {
	name := t.UTC().Format("2006/01/02/150405") + ".json"
	if prefix == "" {
		return name
	}
	return prefix + "/" + name
}

// Archive uploads one snapshot and returns its object path.
func (a *SnapshotArchiver) Archive(ctx context.Context) (string, error) {
	assets, err := a.assets.List(ctx)
	if err != nil {
		return "", fmt.Errorf("snapshot: list assets: %w", err)
	}
	if assets == nil {
		assets = []domain.TrackedAsset{}
	}

	at := a.now().UTC()
	body, err := json.Marshal(Snapshot{GeneratedAt: at, Assets: assets})
	if err != nil {
		return "", fmt.Errorf("snapshot: encode: %w", err)
	}

	path := SnapshotPath(a.prefix, at)
	if err := a.blob.Put(ctx, path, bytes.NewReader(body), "application/json"); err != nil {
		return "", fmt.Errorf("snapshot: put %s: %w", path, err)
	}
	a.logger.InfoContext(ctx, "snapshot archived",
		slog.String("path", path),
		slog.Int("assets", len(assets)),
		slog.Int("bytes", len(body)),
	)
	return path, nil
}
