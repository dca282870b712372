package oda

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"caddis/internal/logging"
	"caddis/internal/services"
)

// diagnosticsCap bounds how much converter output is kept for error reports.
const diagnosticsCap = 32 * 1024

const killGrace = 3 * time.Second

// Request describes one conversion run against a staged workspace.
type Request struct {
	JobID         string
	InDir         string
	OutDir        string
	InputName     string
	SourceVersion string
	OutputVersion string
	Target        Format
	DisplayEnv    string
	Timeout       time.Duration
}

// Result is a successful conversion outcome.
type Result struct {
	OutputPath  string
	Duration    time.Duration
	Diagnostics string
}

// Option configures the client.
type Option func(*Client)

// WithAudit toggles the converter's audit-and-repair pass.
func WithAudit(audit bool) Option {
	return func(c *Client) {
		c.audit = audit
	}
}

// Client supervises ODA File Converter child processes.
type Client struct {
	binary string
	audit  bool
	logger *slog.Logger
}

// New constructs a converter client.
func New(binary string, logger *slog.Logger, opts ...Option) (*Client, error) {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		return nil, errors.New("converter binary required")
	}
	client := &Client{
		binary: binary,
		audit:  true,
		logger: logging.NewComponentLogger(logger, "oda"),
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

// Run executes the converter and classifies the outcome. The process runs in
// its own group; on timeout or cancellation the whole group is terminated so
// no descendant survives.
//
// Invocation contract (positional):
//
//	<inFolder> <outFolder> <inVersionOrAuto> <outVersion> <outFileType> <recurse:0|1> <audit:0|1> [fileFilter]
//
// Recursion is always off: one file per job, filtered to the staged name.
func (c *Client) Run(ctx context.Context, req Request) (*Result, error) {
	if req.Timeout <= 0 {
		return nil, errors.New("conversion timeout required")
	}

	sourceVersion := strings.TrimSpace(req.SourceVersion)
	if sourceVersion == "" {
		sourceVersion = SourceAuto
	}
	args := []string{
		req.InDir,
		req.OutDir,
		sourceVersion,
		req.OutputVersion,
		string(req.Target),
		"0",
		boolFlag(c.audit),
		req.InputName,
	}

	cmd := exec.Command(c.binary, args...) //nolint:gosec
	cmd.Env = append(os.Environ(), req.DisplayEnv)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	diag := newTailBuffer(diagnosticsCap)
	cmd.Stdout = diag
	cmd.Stderr = diag

	started := time.Now()
	if err := cmd.Start(); err != nil {
		return nil, services.Wrap(services.ErrCrashed, "oda", "start", c.binary, err)
	}

	waitDone := make(chan error, 1)
	go func() {
		waitDone <- cmd.Wait()
	}()

	var waitErr error
	select {
	case waitErr = <-waitDone:
	case <-time.After(req.Timeout):
		c.killGroup(cmd, waitDone)
		return nil, services.Wrap(services.ErrTimeout, "oda", "run",
			fmt.Sprintf("converter exceeded %s%s", req.Timeout, diagSuffix(diag)), nil)
	case <-ctx.Done():
		c.killGroup(cmd, waitDone)
		return nil, ctx.Err()
	}

	duration := time.Since(started)

	if waitErr != nil {
		return nil, services.Wrap(services.ErrCrashed, "oda", "run",
			fmt.Sprintf("%s%s", exitDescription(waitErr), diagSuffix(diag)), nil)
	}

	outputPath, err := c.locateOutput(req)
	if err != nil {
		return nil, services.Wrap(services.ErrOutputMissing, "oda", "run",
			fmt.Sprintf("converter exited zero but %v%s", err, diagSuffix(diag)), nil)
	}

	c.logger.Debug("conversion finished",
		logging.String(logging.FieldJobID, req.JobID),
		logging.String("output", outputPath),
		logging.Duration("duration", duration),
	)
	return &Result{
		OutputPath:  outputPath,
		Duration:    duration,
		Diagnostics: diag.String(),
	}, nil
}

// locateOutput finds the converted file in the output folder. The converter
// preserves the input stem, so the exact name is checked first; the fallback
// accepts a single non-empty file with the target extension.
func (c *Client) locateOutput(req Request) (string, error) {
	stem := strings.TrimSuffix(req.InputName, filepath.Ext(req.InputName))
	expected := filepath.Join(req.OutDir, stem+req.Target.Ext())
	if info, err := os.Stat(expected); err == nil && !info.IsDir() {
		if info.Size() == 0 {
			return "", fmt.Errorf("output file %s is empty", filepath.Base(expected))
		}
		return expected, nil
	}

	entries, err := os.ReadDir(req.OutDir)
	if err != nil {
		return "", fmt.Errorf("inspect output folder: %w", err)
	}
	var candidates []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if !strings.EqualFold(filepath.Ext(entry.Name()), req.Target.Ext()) {
			continue
		}
		info, err := entry.Info()
		if err != nil || info.Size() == 0 {
			continue
		}
		candidates = append(candidates, filepath.Join(req.OutDir, entry.Name()))
	}
	switch len(candidates) {
	case 0:
		return "", errors.New("no usable output file was produced")
	case 1:
		return candidates[0], nil
	default:
		return "", fmt.Errorf("ambiguous output: %d files with %s extension", len(candidates), req.Target.Ext())
	}
}

// killGroup terminates the converter's process group: graceful signal, grace
// period, then forced kill. Blocks until the direct child is reaped.
func (c *Client) killGroup(cmd *exec.Cmd, waitDone <-chan error) {
	if cmd.Process == nil {
		return
	}
	pgid := -cmd.Process.Pid
	_ = unix.Kill(pgid, unix.SIGTERM)
	select {
	case <-waitDone:
	case <-time.After(killGrace):
		_ = unix.Kill(pgid, unix.SIGKILL)
		<-waitDone
	}
	// Sweep stragglers that detached from the direct child.
	_ = unix.Kill(pgid, unix.SIGKILL)
}

func exitDescription(waitErr error) string {
	var exitErr *exec.ExitError
	if errors.As(waitErr, &exitErr) {
		status, ok := exitErr.Sys().(syscall.WaitStatus)
		if ok && status.Signaled() {
			return fmt.Sprintf("converter terminated by signal %s", status.Signal())
		}
		return fmt.Sprintf("converter exited with status %d", exitErr.ExitCode())
	}
	return fmt.Sprintf("converter failed: %v", waitErr)
}

func diagSuffix(diag *tailBuffer) string {
	tail := strings.TrimSpace(diag.String())
	if tail == "" {
		return ""
	}
	return "; converter output: " + tail
}

func boolFlag(value bool) string {
	if value {
		return "1"
	}
	return "0"
}
