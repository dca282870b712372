package services_test

import (
	"errors"
	"strings"
	"testing"

	"caddis/internal/services"
)

func TestWrapTagsMarkerAndKeepsCause(t *testing.T) {
	cause := errors.New("disk full")
	err := services.Wrap(services.ErrWorkspaceCreate, "workspace", "create", "mkdir", cause)

	if !errors.Is(err, services.ErrWorkspaceCreate) {
		t.Fatal("expected workspace create marker")
	}
	if !errors.Is(err, cause) {
		t.Fatal("expected original cause to be reachable")
	}
	for _, want := range []string{"workspace", "create", "mkdir", "disk full"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("error %q missing %q", err, want)
		}
	}
}

func TestWrapWithoutMarkerDefaultsToCrashed(t *testing.T) {
	err := services.Wrap(nil, "oda", "run", "boom", nil)
	if !errors.Is(err, services.ErrCrashed) {
		t.Fatal("expected crash marker by default")
	}
}

func TestClassification(t *testing.T) {
	cases := []struct {
		marker error
		want   string
	}{
		{services.ErrInputInvalid, services.CodeInputInvalid},
		{services.ErrWorkspaceCreate, services.CodeWorkspaceCreate},
		{services.ErrInputWrite, services.CodeInputWrite},
		{services.ErrDisplayProvision, services.CodeDisplayProvision},
		{services.ErrTimeout, services.CodeTimeout},
		{services.ErrCrashed, services.CodeCrashed},
		{services.ErrOutputMissing, services.CodeOutputMissing},
		{services.ErrResourceExhausted, services.CodeResourceExhausted},
		{services.ErrConfiguration, services.CodeConfiguration},
	}
	for _, tc := range cases {
		err := services.Wrap(tc.marker, "c", "op", "", nil)
		if got := services.Classification(err); got != tc.want {
			t.Fatalf("classification for %v: got %q want %q", tc.marker, got, tc.want)
		}
	}

	if got := services.Classification(errors.New("plain")); got != services.CodeInternal {
		t.Fatalf("plain error should classify internal, got %q", got)
	}
	if got := services.Classification(nil); got != "" {
		t.Fatalf("nil error should classify empty, got %q", got)
	}
}

func TestRetryable(t *testing.T) {
	if !services.Retryable(services.Wrap(services.ErrResourceExhausted, "admission", "acquire", "", nil)) {
		t.Fatal("resource exhaustion should be retryable")
	}
	if !services.Retryable(services.Wrap(services.ErrDisplayProvision, "display", "acquire", "", nil)) {
		t.Fatal("display provisioning failure should be retryable")
	}
	if services.Retryable(services.Wrap(services.ErrInputInvalid, "engine", "convert", "", nil)) {
		t.Fatal("invalid input should not be retryable")
	}
}

func TestDetails(t *testing.T) {
	err := services.Wrap(services.ErrTimeout, "oda", "run", "exceeded 5s", nil)
	details := services.Details(err)
	if details.Code != services.CodeTimeout {
		t.Fatalf("unexpected code: %q", details.Code)
	}
	if !strings.Contains(details.Message, "exceeded 5s") {
		t.Fatalf("unexpected message: %q", details.Message)
	}

	if empty := services.Details(nil); empty.Code != "" || empty.Message != "" {
		t.Fatalf("nil error should yield empty details, got %+v", empty)
	}
}
