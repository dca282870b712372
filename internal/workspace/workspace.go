// Package workspace manages the per-job filesystem areas the converter reads
// from and writes into. A workspace is owned by exactly one job and is removed
// on every exit path; removal failures are logged and never fail the job.
package workspace

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"caddis/internal/logging"
	"caddis/internal/services"
)

// Workspace is the staging area for a single conversion job.
type Workspace struct {
	JobID  string
	Root   string
	InDir  string
	OutDir string

	destroyOnce sync.Once
}

// Manager allocates and removes job workspaces under a common staging root.
type Manager struct {
	baseDir string
	logger  *slog.Logger
}

// NewManager constructs a workspace manager rooted at baseDir.
func NewManager(baseDir string, logger *slog.Logger) *Manager {
	return &Manager{
		baseDir: strings.TrimSpace(baseDir),
		logger:  logging.NewComponentLogger(logger, "workspace"),
	}
}

// Create builds a fresh directory tree unique to the job:
//
//	<staging>/job-<id>/in
//	<staging>/job-<id>/out
func (m *Manager) Create(jobID string) (*Workspace, error) {
	if m.baseDir == "" {
		return nil, services.Wrap(services.ErrConfiguration, "workspace", "create", "staging directory not configured", nil)
	}
	root := filepath.Join(m.baseDir, "job-"+jobID)
	ws := &Workspace{
		JobID:  jobID,
		Root:   root,
		InDir:  filepath.Join(root, "in"),
		OutDir: filepath.Join(root, "out"),
	}
	for _, dir := range []string{ws.InDir, ws.OutDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			_ = os.RemoveAll(root)
			return nil, services.Wrap(services.ErrWorkspaceCreate, "workspace", "create", fmt.Sprintf("create %s", dir), err)
		}
	}
	return ws, nil
}

// Stage writes the input bytes into the workspace input area under a sanitized
// file name and returns the staged name.
func (m *Manager) Stage(ws *Workspace, input []byte, filename string) (string, error) {
	name := SanitizeFileName(filename)
	if name == "" {
		return "", services.Wrap(services.ErrInputInvalid, "workspace", "stage", fmt.Sprintf("unusable input filename %q", filename), nil)
	}
	target := filepath.Join(ws.InDir, name)
	if err := os.WriteFile(target, input, 0o644); err != nil {
		return "", services.Wrap(services.ErrInputWrite, "workspace", "stage", fmt.Sprintf("write %s", target), err)
	}
	return name, nil
}

// Destroy removes the entire workspace tree. Idempotent; partial removal
// failures are logged as cleanup failures and never returned.
func (m *Manager) Destroy(ws *Workspace) {
	if ws == nil {
		return
	}
	ws.destroyOnce.Do(func() {
		if err := os.RemoveAll(ws.Root); err != nil {
			m.logger.Warn("workspace cleanup failed",
				logging.String(logging.FieldJobID, ws.JobID),
				logging.String("path", ws.Root),
				logging.Error(err),
				logging.String(logging.FieldEventType, "cleanup_failure"),
			)
			return
		}
		m.logger.Debug("workspace removed",
			logging.String(logging.FieldJobID, ws.JobID),
			logging.String("path", ws.Root),
		)
	})
}

// BaseDir returns the staging root the manager allocates under.
func (m *Manager) BaseDir() string {
	return m.baseDir
}

// SanitizeFileName strips path components and characters that are unsafe in a
// staged file name. Returns "" when nothing usable remains.
func SanitizeFileName(name string) string {
	name = filepath.Base(strings.TrimSpace(name))
	if name == "." || name == string(filepath.Separator) {
		return ""
	}
	var sb strings.Builder
	for _, r := range name {
		switch {
		case r < 0x20, r == 0x7f:
			// drop control characters
		case strings.ContainsRune(`/\:*?"<>|`, r):
			sb.WriteByte('-')
		default:
			sb.WriteRune(r)
		}
	}
	cleaned := strings.Trim(sb.String(), " .")
	const maxNameLen = 128
	if len(cleaned) > maxNameLen {
		ext := filepath.Ext(cleaned)
		stem := cleaned[:maxNameLen-len(ext)]
		cleaned = stem + ext
	}
	return cleaned
}
