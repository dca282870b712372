package logging

import (
	"context"
	"log/slog"

	"caddis/internal/services"
)

const (
	// FieldComponent is the standardized structured logging key for component names.
	FieldComponent = "component"
	// FieldJobID is the standardized structured logging key for conversion job identifiers.
	FieldJobID = "job_id"
	// FieldStage is the standardized structured logging key for job lifecycle stages.
	FieldStage = "stage"
	// FieldDisplay is the standardized structured logging key for leased display numbers.
	FieldDisplay = "display"
	// FieldEventType tags records so log consumers can filter on event class.
	FieldEventType = "event_type"
)

// ContextFields extracts standardized slog attributes from the provided context.
func ContextFields(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	fields := make([]slog.Attr, 0, 2)
	if id, ok := services.JobIDFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldJobID, id))
	}
	if stage, ok := services.StageFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldStage, stage))
	}
	return fields
}

// WithContext returns a logger augmented with structured fields derived from the supplied context.
func WithContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	fields := ContextFields(ctx)
	if len(fields) == 0 {
		return logger
	}
	return logger.With(Args(fields...)...)
}

// WithStage stores the stage name in the context for downstream log enrichment.
func WithStage(ctx context.Context, stage string) context.Context {
	return services.WithStage(ctx, stage)
}

// WithJobID stores the job identifier in the context for downstream log enrichment.
func WithJobID(ctx context.Context, jobID string) context.Context {
	return services.WithJobID(ctx, jobID)
}
