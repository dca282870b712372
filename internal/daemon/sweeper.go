package daemon

import (
	"context"
	"time"

	"log/slog"

	"caddis/internal/logging"
	"caddis/internal/workspace"
)

// runSweeper periodically removes orphaned job workspaces. Live workspaces are
// protected by the stale-age cutoff: a conversion never outlives its timeout,
// which is far below the cutoff.
func (d *Daemon) runSweeper(ctx context.Context) {
	interval := d.cfg.WorkspaceSweepInterval()
	maxAge := d.cfg.WorkspaceStaleAge()
	log := logging.NewComponentLogger(d.logger, "sweeper")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	d.sweepOnce(ctx, maxAge, log)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.sweepOnce(ctx, maxAge, log)
		}
	}
}

func (d *Daemon) sweepOnce(ctx context.Context, maxAge time.Duration, log *slog.Logger) {
	if ctx.Err() != nil {
		return
	}
	result := workspace.CleanStale(d.cfg.Paths.StagingDir, maxAge, log)
	for _, sweepErr := range result.Errors {
		log.Warn("workspace sweep failed",
			logging.String("path", sweepErr.Path),
			logging.Error(sweepErr.Error))
	}
	if len(result.Removed) > 0 {
		log.Info("stale workspaces swept",
			logging.Int("removed", len(result.Removed)),
			logging.String(logging.FieldEventType, "workspace_sweep"))
	}
}
