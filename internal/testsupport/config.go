// Package testsupport provides shared helpers for package tests: temp-dir
// backed configurations, stub external binaries, and registry fixtures.
package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"caddis/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// Waits are shortened so failure paths resolve quickly under test.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.RuntimeDir = filepath.Join(base, "run")
	cfgVal.Paths.StagingDir = filepath.Join(base, "staging")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.APIBind = "127.0.0.1:0"
	cfgVal.Converter.TimeoutSeconds = 5
	cfgVal.Display.StartupWaitSeconds = 2
	cfgVal.Display.StopGraceSeconds = 1
	cfgVal.Admission.WaitTimeoutSeconds = 2

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	if err := builder.cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	return builder.cfg
}

// WithAdmissionLimit overrides the concurrency gate size on the test config.
func WithAdmissionLimit(limit int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Admission.Limit = limit
	}
}

// WithDisplayRange narrows the candidate display numbers on the test config.
func WithDisplayRange(minNumber, maxNumber int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Display.RangeMin = minNumber
		b.cfg.Display.RangeMax = maxNumber
	}
}

// WithStubbedBinaries writes exit-zero stub executables for the provided
// names and prepends them to PATH. If names is empty, the default caddis
// external binaries are stubbed.
func WithStubbedBinaries(names ...string) ConfigOption {
	return func(b *configBuilder) {
		if len(names) == 0 {
			names = []string{"ODAFileConverter", "Xvfb"}
		}
		binDir := filepath.Join(b.baseDir, "bin")
		for _, name := range names {
			WriteStubBinary(b.t, binDir, name, "#!/bin/sh\nexit 0\n")
		}
		PrependPath(b.t, binDir)
	}
}

// WriteStubBinary writes an executable script into dir and returns its path.
func WriteStubBinary(t testing.TB, dir, name, script string) string {
	t.Helper()

	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir bin dir: %v", err)
	}
	target := filepath.Join(dir, name)
	if err := os.WriteFile(target, []byte(script), 0o755); err != nil {
		t.Fatalf("write stub %s: %v", name, err)
	}
	return target
}

// PrependPath puts dir at the front of PATH for the remainder of the test.
func PrependPath(t testing.TB, dir string) {
	t.Helper()

	oldPath := os.Getenv("PATH")
	if err := os.Setenv("PATH", dir+string(os.PathListSeparator)+oldPath); err != nil {
		t.Fatalf("set PATH: %v", err)
	}
	t.Cleanup(func() {
		_ = os.Setenv("PATH", oldPath)
	})
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.StagingDir)
}
