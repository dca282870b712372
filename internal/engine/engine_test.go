package engine_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"caddis/internal/config"
	"caddis/internal/engine"
	"caddis/internal/jobs"
	"caddis/internal/logging"
	"caddis/internal/services"
	"caddis/internal/testsupport"
)

const xvfbStub = "#!/bin/sh\nsleep 60\n"

const converterSuccess = `#!/bin/sh
stem="${8%.*}"
printf 'converted drawing' > "$2/$stem.dxf"
`

func newEngine(t *testing.T, converterScript string) (*engine.Engine, *config.Config, *jobs.Store) {
	t.Helper()

	cfg := testsupport.NewConfig(t, testsupport.WithDisplayRange(960, 962))
	cfg.Display.StartupWaitSeconds = 1

	binDir := filepath.Join(testsupport.BaseDir(cfg), "bin")
	cfg.Converter.Binary = testsupport.WriteStubBinary(t, binDir, "ODAFileConverter", converterScript)
	cfg.Display.XvfbBinary = testsupport.WriteStubBinary(t, binDir, "Xvfb", xvfbStub)

	store := testsupport.MustOpenStore(t, cfg)
	eng, err := engine.New(cfg, store, logging.NewNop())
	if err != nil {
		t.Fatalf("engine.New: %v", err)
	}
	return eng, cfg, store
}

func TestConvertSuccessReturnsBytesAndReleases(t *testing.T) {
	eng, cfg, store := newEngine(t, converterSuccess)
	ctx := context.Background()

	result, err := eng.Convert(ctx, engine.Request{
		Filename: "plan.dwg",
		Input:    []byte("dwg bytes"),
		Target:   "DXF",
	})
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}
	if result.OutputName != "plan.dxf" {
		t.Fatalf("unexpected output name: %q", result.OutputName)
	}
	if string(result.Data) != "converted drawing" {
		t.Fatalf("unexpected output bytes: %q", result.Data)
	}

	rec, err := store.GetByID(ctx, result.JobID)
	if err != nil || rec == nil {
		t.Fatalf("job record missing: %v", err)
	}
	if rec.State != jobs.StateSucceeded {
		t.Fatalf("unexpected state: %s", rec.State)
	}
	if !rec.Released() {
		t.Fatal("job should be marked released")
	}
	if rec.Display < 960 || rec.Display > 962 {
		t.Fatalf("unexpected display: %d", rec.Display)
	}

	entries, err := os.ReadDir(cfg.Paths.StagingDir)
	if err != nil {
		t.Fatalf("read staging dir: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("workspace should be destroyed, found %d entries", len(entries))
	}
}

func TestConvertDeliversToDestPath(t *testing.T) {
	eng, _, _ := newEngine(t, converterSuccess)
	dest := filepath.Join(t.TempDir(), "result.dxf")

	result, err := eng.Convert(context.Background(), engine.Request{
		Filename: "site.dwg",
		Input:    []byte("dwg bytes"),
		Target:   "DXF",
		DestPath: dest,
	})
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}
	if result.Data != nil {
		t.Fatal("dest-path delivery should not buffer output bytes")
	}
	data, err := os.ReadFile(dest)
	if err != nil || string(data) != "converted drawing" {
		t.Fatalf("delivered file mismatch: %q err=%v", data, err)
	}
}

func TestConvertRejectsEmptyInput(t *testing.T) {
	eng, _, store := newEngine(t, converterSuccess)

	_, err := eng.Convert(context.Background(), engine.Request{
		Filename: "plan.dwg",
		Target:   "DXF",
	})
	if !errors.Is(err, services.ErrInputInvalid) {
		t.Fatalf("expected input invalid, got %v", err)
	}
	records, err := store.List(context.Background())
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(records) != 0 {
		t.Fatalf("no record should be registered for rejected input, got %d", len(records))
	}
}

func TestConvertCrashIsRecorded(t *testing.T) {
	eng, cfg, store := newEngine(t, "#!/bin/sh\necho boom >&2\nexit 2\n")
	ctx := context.Background()

	result, err := eng.Convert(ctx, engine.Request{
		Filename: "plan.dwg",
		Input:    []byte("dwg bytes"),
		Target:   "DXF",
	})
	if !errors.Is(err, services.ErrCrashed) {
		t.Fatalf("expected crash classification, got %v", err)
	}
	if result == nil || result.JobID == "" {
		t.Fatal("failed conversion should still expose the job id")
	}

	rec, err := store.GetByID(ctx, result.JobID)
	if err != nil || rec == nil {
		t.Fatalf("job record missing: %v", err)
	}
	if rec.State != jobs.StateFailed {
		t.Fatalf("unexpected state: %s", rec.State)
	}
	if rec.ErrorCode != services.CodeCrashed {
		t.Fatalf("unexpected error code: %q", rec.ErrorCode)
	}
	if !rec.Released() {
		t.Fatal("failed job should still be released")
	}

	entries, _ := os.ReadDir(cfg.Paths.StagingDir)
	if len(entries) != 0 {
		t.Fatalf("workspace should be destroyed after failure, found %d entries", len(entries))
	}
}

func TestConvertTimeoutIsRecorded(t *testing.T) {
	eng, cfg, store := newEngine(t, "#!/bin/sh\nsleep 60\n")
	cfg.Converter.TimeoutSeconds = 1
	// Engine captured the timeout at construction; rebuild with the short one.
	eng, err := engine.New(cfg, store, logging.NewNop())
	if err != nil {
		t.Fatalf("engine.New: %v", err)
	}

	ctx := context.Background()
	result, convErr := eng.Convert(ctx, engine.Request{
		Filename: "plan.dwg",
		Input:    []byte("dwg bytes"),
		Target:   "DXF",
	})
	if !errors.Is(convErr, services.ErrTimeout) {
		t.Fatalf("expected timeout classification, got %v", convErr)
	}

	rec, err := store.GetByID(ctx, result.JobID)
	if err != nil || rec == nil {
		t.Fatalf("job record missing: %v", err)
	}
	if rec.State != jobs.StateTimedOut {
		t.Fatalf("unexpected state: %s", rec.State)
	}
	if rec.ErrorCode != services.CodeTimeout {
		t.Fatalf("unexpected error code: %q", rec.ErrorCode)
	}
	if !rec.Released() {
		t.Fatal("timed out job should still be released")
	}
}

func TestConvertOutputMissingIsRecorded(t *testing.T) {
	eng, _, store := newEngine(t, "#!/bin/sh\nexit 0\n")
	ctx := context.Background()

	result, err := eng.Convert(ctx, engine.Request{
		Filename: "plan.dwg",
		Input:    []byte("dwg bytes"),
		Target:   "DXF",
	})
	if !errors.Is(err, services.ErrOutputMissing) {
		t.Fatalf("expected output-missing classification, got %v", err)
	}
	rec, _ := store.GetByID(ctx, result.JobID)
	if rec == nil || rec.State != jobs.StateFailed || rec.ErrorCode != services.CodeOutputMissing {
		t.Fatalf("unexpected record: %+v", rec)
	}
}

func TestStatusReflectsConfiguration(t *testing.T) {
	eng, cfg, _ := newEngine(t, converterSuccess)

	status := eng.Status()
	if status.AdmissionLimit != cfg.Admission.Limit {
		t.Fatalf("unexpected admission limit: %d", status.AdmissionLimit)
	}
	if status.DisplayRangeMin != 960 || status.DisplayRangeMax != 962 {
		t.Fatalf("unexpected display range: %d-%d", status.DisplayRangeMin, status.DisplayRangeMax)
	}
	if status.HeldByProcess != 0 {
		t.Fatalf("no tokens should be held: %d", status.HeldByProcess)
	}
	if status.Timeout != cfg.ConversionTimeout() {
		t.Fatalf("unexpected timeout: %s", status.Timeout)
	}
}
