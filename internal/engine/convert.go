package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"caddis/internal/fileutil"
	"caddis/internal/jobs"
	"caddis/internal/logging"
	"caddis/internal/services"
	"caddis/internal/services/oda"
)

// Request describes one conversion submitted by a caller.
type Request struct {
	Filename   string
	Input      []byte
	Target     oda.Format
	SourceHint string
	// DestPath, when set, receives a verified copy of the output before the
	// workspace is destroyed. When empty the output bytes are returned in the
	// Result instead.
	DestPath string
}

// Result is a finished conversion.
type Result struct {
	JobID      string
	OutputName string
	Data       []byte
	Duration   time.Duration
}

// Convert runs one job to its terminal state. The returned error, when
// non-nil, carries a classification from the services package; once a job
// record exists the result still carries its ID so callers can reference the
// registry entry.
//
// Resource acquisition order is admission token, workspace, display lease;
// release runs in reverse, and the job is marked released only after all
// three are gone.
func (e *Engine) Convert(ctx context.Context, req Request) (*Result, error) {
	jobID := uuid.NewString()
	ctx = logging.WithJobID(ctx, jobID)
	log := logging.WithContext(ctx, e.logger)

	if len(req.Input) == 0 {
		return nil, services.Wrap(services.ErrInputInvalid, "engine", "convert", "empty input file", nil)
	}

	rec := &jobs.Record{
		ID:           jobID,
		SourceName:   req.Filename,
		SourceFormat: req.SourceHint,
		TargetFormat: string(req.Target),
		State:        jobs.StateQueued,
		Deadline:     time.Now().UTC().Add(e.admissionWait + e.timeout),
	}
	if err := e.store.Insert(ctx, rec); err != nil {
		return nil, fmt.Errorf("register job: %w", err)
	}

	// Declared before any acquisition so it runs after every release below:
	// a job is released exactly once, on every path out of this function.
	defer func() {
		now := time.Now().UTC()
		rec.ReleasedAt = &now
		e.persist(ctx, rec)
		log.Debug("job released", logging.String(logging.FieldEventType, "job_released"))
	}()

	log.Info("job queued",
		logging.String("source", req.Filename),
		logging.String("target", string(req.Target)),
		logging.String(logging.FieldEventType, "job_queued"),
	)

	token, err := e.gate.Acquire(ctx, e.admissionWait)
	if err != nil {
		return &Result{JobID: jobID}, e.fail(ctx, rec, log, err)
	}
	defer token.Release()

	rec.State = jobs.StateProvisioning
	e.persist(ctx, rec)

	ws, err := e.workspaces.Create(jobID)
	if err != nil {
		return &Result{JobID: jobID}, e.fail(ctx, rec, log, err)
	}
	defer e.workspaces.Destroy(ws)
	rec.WorkspacePath = ws.Root
	e.persist(ctx, rec)

	stagedName, err := e.workspaces.Stage(ws, req.Input, req.Filename)
	if err != nil {
		return &Result{JobID: jobID}, e.fail(ctx, rec, log, err)
	}

	lease, err := e.displays.Acquire(ctx)
	if err != nil {
		return &Result{JobID: jobID}, e.fail(ctx, rec, log, err)
	}
	defer lease.Release()
	rec.Display = lease.Number

	rec.State = jobs.StateConverting
	e.persist(ctx, rec)
	log.Info("conversion started",
		logging.Int(logging.FieldDisplay, lease.Number),
		logging.String("staged_input", stagedName),
		logging.String(logging.FieldEventType, "conversion_start"),
	)

	runResult, err := e.converter.Run(ctx, oda.Request{
		JobID:         jobID,
		InDir:         ws.InDir,
		OutDir:        ws.OutDir,
		InputName:     stagedName,
		SourceVersion: req.SourceHint,
		OutputVersion: e.outputVersion,
		Target:        req.Target,
		DisplayEnv:    lease.Env(),
		Timeout:       e.timeout,
	})
	if err != nil {
		return &Result{JobID: jobID}, e.fail(ctx, rec, log, err)
	}

	result := &Result{
		JobID:      jobID,
		OutputName: filepath.Base(runResult.OutputPath),
		Duration:   runResult.Duration,
	}
	if req.DestPath != "" {
		if err := fileutil.CopyFileVerified(runResult.OutputPath, req.DestPath); err != nil {
			return &Result{JobID: jobID}, e.fail(ctx, rec, log,
				services.Wrap(services.ErrOutputMissing, "engine", "deliver", "copy output", err))
		}
		rec.OutputPath = req.DestPath
	} else {
		data, err := os.ReadFile(runResult.OutputPath)
		if err != nil {
			return &Result{JobID: jobID}, e.fail(ctx, rec, log,
				services.Wrap(services.ErrOutputMissing, "engine", "deliver", "read output", err))
		}
		result.Data = data
		rec.OutputPath = result.OutputName
	}

	rec.State = jobs.StateSucceeded
	e.persist(ctx, rec)
	log.Info("conversion finished",
		logging.String("output", result.OutputName),
		logging.Duration("duration", runResult.Duration),
		logging.String(logging.FieldEventType, "conversion_success"),
	)
	return result, nil
}

// fail records the terminal classification for the job and passes the error
// back to the caller. Caller cancellation once conversion has begun is
// recorded like a timeout: the process group is torn down and partial output
// is discarded by the deferred releases. Cancellation before conversion goes
// straight to released without a terminal outcome.
func (e *Engine) fail(ctx context.Context, rec *jobs.Record, log *slog.Logger, err error) error {
	switch {
	case errors.Is(err, services.ErrTimeout):
		rec.State = jobs.StateTimedOut
		rec.ErrorCode = services.CodeTimeout
		rec.ErrorMessage = err.Error()
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		if rec.State == jobs.StateConverting {
			rec.State = jobs.StateTimedOut
			rec.ErrorCode = services.CodeTimeout
		}
		rec.ErrorMessage = "canceled by caller"
	default:
		details := services.Details(err)
		rec.SetFailed(details.Code, details.Message)
	}
	e.persist(ctx, rec)

	log.Error("job failed",
		logging.String("classification", rec.ErrorCode),
		logging.Error(err),
		logging.String(logging.FieldEventType, "job_failed"),
	)
	return err
}

// persist updates the registry record, logging rather than failing the job
// when the write does not land: registry visibility never outranks the
// conversion outcome.
func (e *Engine) persist(ctx context.Context, rec *jobs.Record) {
	if err := e.store.Update(context.WithoutCancel(ctx), rec); err != nil {
		e.logger.Warn("persist job record",
			logging.String(logging.FieldJobID, rec.ID),
			logging.Error(err),
		)
	}
}
