package workspace

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"caddis/internal/logging"
)

// CleanStaleResult contains the outcome of a stale workspace sweep.
type CleanStaleResult struct {
	Removed []string
	Errors  []CleanupError
}

// CleanupError pairs a directory path with its cleanup error.
type CleanupError struct {
	Path  string
	Error error
}

// CleanStale removes job workspaces older than maxAge. Workspaces normally die
// with their job; this sweep only catches trees orphaned by a crashed worker.
func CleanStale(stagingDir string, maxAge time.Duration, logger *slog.Logger) CleanStaleResult {
	result := CleanStaleResult{}

	stagingDir = strings.TrimSpace(stagingDir)
	if stagingDir == "" {
		return result
	}

	entries, err := os.ReadDir(stagingDir)
	if err != nil {
		if !os.IsNotExist(err) {
			result.Errors = append(result.Errors, CleanupError{Path: stagingDir, Error: err})
		}
		return result
	}

	cutoff := time.Now().Add(-maxAge)

	for _, entry := range entries {
		if !entry.IsDir() || !strings.HasPrefix(entry.Name(), "job-") {
			continue
		}

		dirPath := filepath.Join(stagingDir, entry.Name())
		info, err := entry.Info()
		if err != nil {
			result.Errors = append(result.Errors, CleanupError{Path: dirPath, Error: err})
			continue
		}
		if !info.ModTime().Before(cutoff) {
			continue
		}

		if err := os.RemoveAll(dirPath); err != nil {
			result.Errors = append(result.Errors, CleanupError{Path: dirPath, Error: err})
			if logger != nil {
				logger.Warn("failed to remove stale workspace",
					logging.String("path", dirPath),
					logging.Error(err),
					logging.String(logging.FieldEventType, "cleanup_failure"),
				)
			}
			continue
		}
		result.Removed = append(result.Removed, dirPath)
		if logger != nil {
			logger.Info("removed stale workspace",
				logging.String("path", dirPath),
				logging.Duration("age", time.Since(info.ModTime())),
				logging.String(logging.FieldEventType, "workspace_sweep"),
			)
		}
	}

	return result
}
