// Package display leases virtual X displays for conversion jobs. Each lease
// pairs an exclusively reserved display number with a headless Xvfb process
// bound to it. Reservations are flock files in the runtime directory, so
// independent worker processes never race onto the same display.
package display

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/gofrs/flock"
	"golang.org/x/sys/unix"

	"caddis/internal/logging"
	"caddis/internal/services"
)

const readyPollInterval = 50 * time.Millisecond

// Options configures the lease manager.
type Options struct {
	XvfbBinary  string
	RangeMin    int
	RangeMax    int
	Screen      string
	StartupWait time.Duration
	StopGrace   time.Duration
}

// Manager scans the candidate display range and supervises Xvfb instances.
type Manager struct {
	opts       Options
	runtimeDir string
	logger     *slog.Logger
}

// Lease is an exclusive reservation of one display number plus its server.
type Lease struct {
	Number int

	lock        *flock.Flock
	cmd         *exec.Cmd
	waitDone    chan error
	manager     *Manager
	releaseOnce sync.Once
}

// NewManager constructs a display lease manager.
func NewManager(runtimeDir string, opts Options, logger *slog.Logger) *Manager {
	if opts.XvfbBinary == "" {
		opts.XvfbBinary = "Xvfb"
	}
	if opts.Screen == "" {
		opts.Screen = "1024x768x24"
	}
	return &Manager{
		opts:       opts,
		runtimeDir: runtimeDir,
		logger:     logging.NewComponentLogger(logger, "display"),
	}
}

// Acquire reserves the first free display number in the candidate range and
// starts an Xvfb bound to it. The scan is bounded: once the range is exhausted
// the call fails with a DisplayProvisionFailed classification.
func (m *Manager) Acquire(ctx context.Context) (*Lease, error) {
	for number := m.opts.RangeMin; number <= m.opts.RangeMax; number++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		lock := flock.New(m.lockPath(number))
		ok, err := lock.TryLock()
		if err != nil {
			m.logger.Warn("display reservation probe failed",
				logging.Int(logging.FieldDisplay, number),
				logging.Error(err),
			)
			continue
		}
		if !ok {
			continue
		}

		lease, err := m.startServer(number, lock)
		if err != nil {
			_ = lock.Unlock()
			m.logger.Warn("display server failed to start, trying next candidate",
				logging.Int(logging.FieldDisplay, number),
				logging.Error(err),
			)
			continue
		}
		m.logger.Debug("display leased", logging.Int(logging.FieldDisplay, number))
		return lease, nil
	}
	return nil, services.Wrap(services.ErrDisplayProvision, "display", "acquire",
		fmt.Sprintf("no free display in range :%d-:%d", m.opts.RangeMin, m.opts.RangeMax), nil)
}

func (m *Manager) startServer(number int, lock *flock.Flock) (*Lease, error) {
	args := []string{
		fmt.Sprintf(":%d", number),
		"-screen", "0", m.opts.Screen,
		"-nolisten", "tcp",
	}
	cmd := exec.Command(m.opts.XvfbBinary, args...) //nolint:gosec
	// Own process group so teardown reaches any children the server forks.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", m.opts.XvfbBinary, err)
	}

	waitDone := make(chan error, 1)
	go func() {
		waitDone <- cmd.Wait()
	}()

	lease := &Lease{
		Number:   number,
		lock:     lock,
		cmd:      cmd,
		waitDone: waitDone,
		manager:  m,
	}

	if err := m.awaitReady(lease); err != nil {
		lease.terminate()
		return nil, err
	}
	return lease, nil
}

// awaitReady waits for the X socket to appear, bounded by the startup wait.
// A server that is still running when the wait expires is assumed usable;
// a server that exits during the wait is a startup failure.
func (m *Manager) awaitReady(lease *Lease) error {
	deadline := time.Now().Add(m.opts.StartupWait)
	socket := filepath.Join("/tmp/.X11-unix", fmt.Sprintf("X%d", lease.Number))
	for {
		select {
		case err := <-lease.waitDone:
			// Put the exit back for terminate/release to consume.
			lease.waitDone <- err
			return fmt.Errorf("display server exited during startup: %v", err)
		case <-time.After(readyPollInterval):
		}
		if _, err := os.Stat(socket); err == nil {
			return nil
		}
		if time.Now().After(deadline) {
			return nil
		}
	}
}

// Env returns the DISPLAY environment binding for the leased display.
func (l *Lease) Env() string {
	return "DISPLAY=" + l.DisplayName()
}

// DisplayName returns the X display string, e.g. ":104".
func (l *Lease) DisplayName() string {
	return fmt.Sprintf(":%d", l.Number)
}

// Release terminates the display server and frees the reservation. Idempotent;
// failures are logged and never propagated.
func (l *Lease) Release() {
	if l == nil {
		return
	}
	l.releaseOnce.Do(func() {
		l.terminate()
		if err := l.lock.Unlock(); err != nil {
			l.manager.logger.Warn("release display reservation",
				logging.Int(logging.FieldDisplay, l.Number),
				logging.Error(err),
				logging.String(logging.FieldEventType, "cleanup_failure"),
			)
		}
		l.manager.logger.Debug("display released", logging.Int(logging.FieldDisplay, l.Number))
	})
}

// terminate stops the server process group: graceful signal first, forced kill
// after the grace period.
func (l *Lease) terminate() {
	if l.cmd == nil || l.cmd.Process == nil {
		return
	}
	pgid := -l.cmd.Process.Pid
	_ = unix.Kill(pgid, unix.SIGTERM)

	grace := l.manager.opts.StopGrace
	if grace <= 0 {
		grace = time.Second
	}
	select {
	case <-l.waitDone:
		return
	case <-time.After(grace):
	}
	_ = unix.Kill(pgid, unix.SIGKILL)
	select {
	case <-l.waitDone:
	case <-time.After(grace):
		l.manager.logger.Warn("display server did not exit after SIGKILL",
			logging.Int(logging.FieldDisplay, l.Number),
			logging.String(logging.FieldEventType, "cleanup_failure"),
		)
	}
}

func (m *Manager) lockPath(number int) string {
	return filepath.Join(m.runtimeDir, fmt.Sprintf("display-%d.lock", number))
}

// Range returns the configured candidate bounds, for status reporting.
func (m *Manager) Range() (int, int) {
	return m.opts.RangeMin, m.opts.RangeMax
}

// XvfbBinary returns the configured display server binary name.
func (m *Manager) XvfbBinary() string {
	return strings.TrimSpace(m.opts.XvfbBinary)
}
