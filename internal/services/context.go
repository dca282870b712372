package services

import "context"

type contextKey int

const (
	jobIDKey contextKey = iota
	stageKey
)

// WithJobID stores the job identifier in the context.
func WithJobID(ctx context.Context, jobID string) context.Context {
	return context.WithValue(ctx, jobIDKey, jobID)
}

// JobIDFromContext retrieves the job identifier, if present.
func JobIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(jobIDKey).(string)
	return id, ok && id != ""
}

// WithStage stores the lifecycle stage name in the context.
func WithStage(ctx context.Context, stage string) context.Context {
	return context.WithValue(ctx, stageKey, stage)
}

// StageFromContext retrieves the lifecycle stage name, if present.
func StageFromContext(ctx context.Context) (string, bool) {
	stage, ok := ctx.Value(stageKey).(string)
	return stage, ok && stage != ""
}
