// Package admission bounds the number of simultaneously running conversions.
// Capacity is modelled as N lock files in the runtime directory; a token is a
// held flock on one of them. Because the gate lives on the filesystem it holds
// across independent worker processes with no shared memory.
package admission

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"caddis/internal/logging"
	"caddis/internal/services"
)

const retryDelay = 100 * time.Millisecond

// Controller hands out admission tokens up to the configured limit.
type Controller struct {
	slotsDir string
	limit    int
	logger   *slog.Logger

	held atomic.Int64
}

// Token is one unit of conversion capacity. Release must be called exactly
// once; further calls are no-ops.
type Token struct {
	slot        int
	lock        *flock.Flock
	controller  *Controller
	releaseOnce sync.Once
}

// NewController prepares the slot directory under runtimeDir.
func NewController(runtimeDir string, limit int, logger *slog.Logger) (*Controller, error) {
	if limit <= 0 {
		return nil, services.Wrap(services.ErrConfiguration, "admission", "new", fmt.Sprintf("limit must be positive, got %d", limit), nil)
	}
	slotsDir := filepath.Join(runtimeDir, "slots")
	if err := os.MkdirAll(slotsDir, 0o755); err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "admission", "new", "create slots directory", err)
	}
	return &Controller{
		slotsDir: slotsDir,
		limit:    limit,
		logger:   logging.NewComponentLogger(logger, "admission"),
	}, nil
}

// Acquire blocks until a capacity slot is free or the wait elapses. On timeout
// it returns a ResourceExhausted classification rather than queuing forever.
func (c *Controller) Acquire(ctx context.Context, wait time.Duration) (*Token, error) {
	deadline := time.Now().Add(wait)
	for {
		for slot := 0; slot < c.limit; slot++ {
			lock := flock.New(c.slotPath(slot))
			ok, err := lock.TryLock()
			if err != nil {
				c.logger.Warn("slot probe failed",
					logging.Int("slot", slot),
					logging.Error(err),
				)
				continue
			}
			if ok {
				c.held.Add(1)
				c.logger.Debug("admission token acquired", logging.Int("slot", slot))
				return &Token{slot: slot, lock: lock, controller: c}, nil
			}
		}

		if time.Now().After(deadline) {
			return nil, services.Wrap(services.ErrResourceExhausted, "admission", "acquire",
				fmt.Sprintf("no free slot within %s (limit %d)", wait, c.limit), nil)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(retryDelay):
		}
	}
}

// Release frees the slot immediately. Idempotent.
func (t *Token) Release() {
	if t == nil {
		return
	}
	t.releaseOnce.Do(func() {
		if err := t.lock.Unlock(); err != nil && t.controller != nil {
			t.controller.logger.Warn("release admission slot",
				logging.Int("slot", t.slot),
				logging.Error(err),
				logging.String(logging.FieldEventType, "cleanup_failure"),
			)
		}
		if t.controller != nil {
			t.controller.held.Add(-1)
			t.controller.logger.Debug("admission token released", logging.Int("slot", t.slot))
		}
	})
}

// Slot returns the slot index backing the token.
func (t *Token) Slot() int {
	return t.slot
}

// Limit returns the configured concurrency limit.
func (c *Controller) Limit() int {
	return c.limit
}

// HeldByProcess returns how many tokens this worker process currently holds.
// Slots held by sibling processes are not visible here.
func (c *Controller) HeldByProcess() int {
	return int(c.held.Load())
}

func (c *Controller) slotPath(slot int) string {
	return filepath.Join(c.slotsDir, fmt.Sprintf("slot-%03d.lock", slot))
}
