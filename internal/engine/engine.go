// Package engine orchestrates the full lifecycle of a conversion job: admit,
// provision workspace, lease display, supervise the converter, assemble the
// result, and release every resource exactly once on every exit path.
package engine

import (
	"errors"
	"log/slog"
	"time"

	"caddis/internal/admission"
	"caddis/internal/config"
	"caddis/internal/display"
	"caddis/internal/jobs"
	"caddis/internal/logging"
	"caddis/internal/services/oda"
	"caddis/internal/workspace"
)

// Engine runs conversion jobs against the shared resource pools.
type Engine struct {
	workspaces *workspace.Manager
	displays   *display.Manager
	gate       *admission.Controller
	converter  *oda.Client
	store      *jobs.Store
	logger     *slog.Logger

	timeout       time.Duration
	admissionWait time.Duration
	outputVersion string
}

// New wires an engine from configuration and an opened job store.
func New(cfg *config.Config, store *jobs.Store, logger *slog.Logger) (*Engine, error) {
	if cfg == nil {
		return nil, errors.New("engine requires config")
	}
	if store == nil {
		return nil, errors.New("engine requires job store")
	}

	gate, err := admission.NewController(cfg.Paths.RuntimeDir, cfg.Admission.Limit, logger)
	if err != nil {
		return nil, err
	}
	converter, err := oda.New(cfg.Converter.Binary, logger, oda.WithAudit(cfg.Converter.Audit))
	if err != nil {
		return nil, err
	}

	displays := display.NewManager(cfg.Paths.RuntimeDir, display.Options{
		XvfbBinary:  cfg.Display.XvfbBinary,
		RangeMin:    cfg.Display.RangeMin,
		RangeMax:    cfg.Display.RangeMax,
		Screen:      cfg.Display.Screen,
		StartupWait: cfg.DisplayStartupWait(),
		StopGrace:   cfg.DisplayStopGrace(),
	}, logger)

	return &Engine{
		workspaces:    workspace.NewManager(cfg.Paths.StagingDir, logger),
		displays:      displays,
		gate:          gate,
		converter:     converter,
		store:         store,
		logger:        logging.NewComponentLogger(logger, "engine"),
		timeout:       cfg.ConversionTimeout(),
		admissionWait: cfg.AdmissionWait(),
		outputVersion: cfg.Converter.OutputVersion,
	}, nil
}

// Status describes the engine's shared resource pools.
type Status struct {
	AdmissionLimit  int
	HeldByProcess   int
	DisplayRangeMin int
	DisplayRangeMax int
	Timeout         time.Duration
}

// Status reports current engine capacity configuration and local usage.
func (e *Engine) Status() Status {
	minDisplay, maxDisplay := e.displays.Range()
	return Status{
		AdmissionLimit:  e.gate.Limit(),
		HeldByProcess:   e.gate.HeldByProcess(),
		DisplayRangeMin: minDisplay,
		DisplayRangeMax: maxDisplay,
		Timeout:         e.timeout,
	}
}

// Store exposes the job registry backing the engine.
func (e *Engine) Store() *jobs.Store {
	return e.store
}
