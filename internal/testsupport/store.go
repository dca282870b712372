package testsupport

import (
	"context"
	"testing"

	"caddis/internal/config"
	"caddis/internal/jobs"
)

// MustOpenStore opens a jobs.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *jobs.Store {
	t.Helper()

	store, err := jobs.Open(cfg.Paths.RuntimeDir)
	if err != nil {
		t.Fatalf("jobs.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// NewJob inserts a queued job record for tests using the provided store.
func NewJob(t testing.TB, store *jobs.Store, id, sourceName, target string) *jobs.Record {
	t.Helper()

	rec := &jobs.Record{
		ID:           id,
		SourceName:   sourceName,
		TargetFormat: target,
		State:        jobs.StateQueued,
	}
	if err := store.Insert(context.Background(), rec); err != nil {
		t.Fatalf("store.Insert: %v", err)
	}
	return rec
}
