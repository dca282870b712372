package daemon

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"log/slog"

	"github.com/gofrs/flock"

	"caddis/internal/api"
	"caddis/internal/config"
	"caddis/internal/deps"
	"caddis/internal/engine"
	"caddis/internal/jobs"
	"caddis/internal/logging"
)

// Daemon coordinates the serving process and enforces single-instance execution.
type Daemon struct {
	cfg    *config.Config
	engine *engine.Engine
	store  *jobs.Store
	logger *slog.Logger

	lockPath string
	lock     *flock.Flock

	apiSrv *apiServer

	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New constructs a daemon around an initialized engine.
func New(cfg *config.Config, eng *engine.Engine, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || eng == nil {
		return nil, errors.New("daemon requires config and engine")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	lockPath := filepath.Join(cfg.Paths.RuntimeDir, "caddisd.lock")
	d := &Daemon{
		cfg:      cfg,
		engine:   eng,
		store:    eng.Store(),
		logger:   logging.NewComponentLogger(logger, "daemon"),
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}

	apiSrv, err := newAPIServer(cfg, d, logger)
	if err != nil {
		return nil, err
	}
	d.apiSrv = apiSrv
	return d, nil
}

// Start acquires the instance lock, wipes the stale registry, and launches
// the HTTP API and workspace sweeper.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire instance lock: %w", err)
	}
	if !ok {
		return errors.New("another caddis daemon instance is already running")
	}

	d.ctx, d.cancel = context.WithCancel(ctx)

	// The registry only ever describes the current execution. Rows left by a
	// crashed predecessor would otherwise read as live jobs.
	if err := d.store.Reset(d.ctx); err != nil {
		d.releaseLock()
		d.cancel()
		d.ctx, d.cancel = nil, nil
		return err
	}

	if d.apiSrv != nil {
		if err := d.apiSrv.start(d.ctx); err != nil {
			d.releaseLock()
			d.cancel()
			d.ctx, d.cancel = nil, nil
			return err
		}
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.runSweeper(d.ctx)
	}()

	d.running.Store(true)
	d.logger.Info("caddis daemon started",
		logging.String("lock", d.lockPath),
		logging.String(logging.FieldEventType, "daemon_start"))
	return nil
}

// Stop halts background services and releases the instance lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	if d.apiSrv != nil {
		d.apiSrv.stop()
	}
	d.wg.Wait()
	d.releaseLock()
	d.ctx = nil
	d.running.Store(false)
	d.logger.Info("caddis daemon stopped",
		logging.String(logging.FieldEventType, "daemon_stop"))
}

// Close stops the daemon and closes the job registry.
func (d *Daemon) Close() error {
	d.Stop()
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}

func (d *Daemon) releaseLock() {
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release instance lock", logging.Error(err))
	}
}

// Running reports whether the daemon services are up.
func (d *Daemon) Running() bool {
	return d.running.Load()
}

// Convert runs one conversion job through the engine.
func (d *Daemon) Convert(ctx context.Context, req engine.Request) (*engine.Result, error) {
	return d.engine.Convert(ctx, req)
}

// ListJobs returns registry records filtered by optional states.
func (d *Daemon) ListJobs(ctx context.Context, states []jobs.State) ([]*jobs.Record, error) {
	if d.store == nil {
		return nil, errors.New("job registry unavailable")
	}
	return d.store.List(ctx, states...)
}

// GetJob returns a single registry record, or nil when unknown.
func (d *Daemon) GetJob(ctx context.Context, id string) (*jobs.Record, error) {
	if d.store == nil {
		return nil, errors.New("job registry unavailable")
	}
	return d.store.GetByID(ctx, id)
}

// ClearFinished removes released jobs from the registry.
func (d *Daemon) ClearFinished(ctx context.Context) (int64, error) {
	if d.store == nil {
		return 0, errors.New("job registry unavailable")
	}
	return d.store.ClearFinished(ctx)
}

// Status aggregates daemon runtime information for API consumers.
func (d *Daemon) Status(ctx context.Context) api.DaemonStatus {
	status := api.DaemonStatus{
		Running:      d.running.Load(),
		PID:          os.Getpid(),
		RegistryPath: d.store.Path(),
		LockFilePath: d.lockPath,
		Engine:       api.FromEngineStatus(d.engine.Status()),
		Dependencies: api.FromDependencyStatuses(deps.CheckBinaries(deps.Requirements(d.cfg))),
	}
	if summary, err := d.store.Summarize(ctx); err == nil {
		status.Jobs = api.FromSummary(summary)
	} else {
		d.logger.Warn("summarize registry", logging.Error(err))
	}
	return status
}
