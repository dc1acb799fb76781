package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/use-agent/hnpulse/browser"
)

// screenshotter writes best-effort failure screenshots. Every error is
// swallowed — a diagnostic capture must never mask the failure it documents.
type screenshotter struct {
	dir string
}

// capture saves the page's current viewport, returning the file path or ""
// when capture failed for any reason.
func (sc *screenshotter) capture(ctx context.Context, page browser.Page, op, executionID string) string {
	if sc.dir == "" {
		return ""
	}

	data, err := page.Screenshot(ctx)
	if err != nil {
		slog.Debug("failure screenshot capture failed", "op", op, "executionID", executionID, "error", err)
		return ""
	}

	if err := os.MkdirAll(sc.dir, 0o755); err != nil {
		slog.Debug("failure screenshot dir creation failed", "dir", sc.dir, "error", err)
		return ""
	}

	name := fmt.Sprintf("hn_scraper_%s_%s_%d.png", op, executionID, time.Now().Unix())
	path := filepath.Join(sc.dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		slog.Debug("failure screenshot write failed", "path", path, "error", err)
		return ""
	}

	slog.Info("failure screenshot captured", "op", op, "executionID", executionID, "path", path)
	return path
}
