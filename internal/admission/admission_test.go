package admission_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"caddis/internal/admission"
	"caddis/internal/logging"
	"caddis/internal/services"
)

func TestAcquireUpToLimitThenExhausted(t *testing.T) {
	ctrl, err := admission.NewController(t.TempDir(), 2, logging.NewNop())
	if err != nil {
		t.Fatalf("NewController: %v", err)
	}

	ctx := context.Background()
	first, err := ctrl.Acquire(ctx, 100*time.Millisecond)
	if err != nil {
		t.Fatalf("first Acquire: %v", err)
	}
	second, err := ctrl.Acquire(ctx, 100*time.Millisecond)
	if err != nil {
		t.Fatalf("second Acquire: %v", err)
	}
	if first.Slot() == second.Slot() {
		t.Fatalf("tokens share slot %d", first.Slot())
	}
	if got := ctrl.HeldByProcess(); got != 2 {
		t.Fatalf("held count: got %d want 2", got)
	}

	_, err = ctrl.Acquire(ctx, 200*time.Millisecond)
	if !errors.Is(err, services.ErrResourceExhausted) {
		t.Fatalf("expected resource exhaustion, got %v", err)
	}

	first.Release()
	second.Release()
	if got := ctrl.HeldByProcess(); got != 0 {
		t.Fatalf("held count after release: got %d want 0", got)
	}
}

func TestAcquireWaitsForReleasedSlot(t *testing.T) {
	ctrl, err := admission.NewController(t.TempDir(), 1, logging.NewNop())
	if err != nil {
		t.Fatalf("NewController: %v", err)
	}

	ctx := context.Background()
	token, err := ctrl.Acquire(ctx, 100*time.Millisecond)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}

	go func() {
		time.Sleep(150 * time.Millisecond)
		token.Release()
	}()

	start := time.Now()
	waited, err := ctrl.Acquire(ctx, 2*time.Second)
	if err != nil {
		t.Fatalf("waiting Acquire: %v", err)
	}
	defer waited.Release()
	if time.Since(start) < 100*time.Millisecond {
		t.Fatal("second acquire should have waited for the release")
	}
}

func TestAcquireHonorsContextCancellation(t *testing.T) {
	ctrl, err := admission.NewController(t.TempDir(), 1, logging.NewNop())
	if err != nil {
		t.Fatalf("NewController: %v", err)
	}

	token, err := ctrl.Acquire(context.Background(), 100*time.Millisecond)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	defer token.Release()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()
	_, err = ctrl.Acquire(ctx, 10*time.Second)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context cancellation, got %v", err)
	}
}

func TestReleaseIsIdempotent(t *testing.T) {
	ctrl, err := admission.NewController(t.TempDir(), 1, logging.NewNop())
	if err != nil {
		t.Fatalf("NewController: %v", err)
	}
	token, err := ctrl.Acquire(context.Background(), time.Second)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	token.Release()
	token.Release()
	if got := ctrl.HeldByProcess(); got != 0 {
		t.Fatalf("held count: got %d want 0", got)
	}
}

func TestNewControllerRejectsNonPositiveLimit(t *testing.T) {
	if _, err := admission.NewController(t.TempDir(), 0, logging.NewNop()); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}
