package oda_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"golang.org/x/sys/unix"

	"caddis/internal/logging"
	"caddis/internal/services"
	"caddis/internal/services/oda"
	"caddis/internal/testsupport"
)

func newRequest(t *testing.T) oda.Request {
	t.Helper()

	root := t.TempDir()
	inDir := filepath.Join(root, "in")
	outDir := filepath.Join(root, "out")
	for _, dir := range []string{inDir, outDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatalf("mkdir %s: %v", dir, err)
		}
	}
	testsupport.WriteFile(t, filepath.Join(inDir, "plan.dwg"), 64)

	return oda.Request{
		JobID:         "job-1",
		InDir:         inDir,
		OutDir:        outDir,
		OutputVersion: "ACAD2018",
		InputName:     "plan.dwg",
		Target:        oda.FormatDXF,
		DisplayEnv:    "DISPLAY=:901",
		Timeout:       5 * time.Second,
	}
}

func newClient(t *testing.T, script string) *oda.Client {
	t.Helper()

	binary := testsupport.WriteStubBinary(t, t.TempDir(), "ODAFileConverter", script)
	client, err := oda.New(binary, logging.NewNop())
	if err != nil {
		t.Fatalf("oda.New: %v", err)
	}
	return client
}

func TestRunSuccessLocatesOutput(t *testing.T) {
	// Mirrors the real converter: preserves the input stem in the out folder.
	client := newClient(t, `#!/bin/sh
printf 'converted' > "$2/plan.dxf"
`)
	req := newRequest(t)

	result, err := client.Run(context.Background(), req)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.OutputPath != filepath.Join(req.OutDir, "plan.dxf") {
		t.Fatalf("unexpected output path: %q", result.OutputPath)
	}
	if result.Duration <= 0 {
		t.Fatal("expected positive duration")
	}
}

func TestRunPassesPositionalContractAndDisplay(t *testing.T) {
	client := newClient(t, `#!/bin/sh
{
  echo "$1|$2|$3|$4|$5|$6|$7|$8"
  echo "$DISPLAY"
} > "$2/args.txt"
printf 'x' > "$2/plan.dxf"
`)
	req := newRequest(t)
	req.SourceVersion = ""

	if _, err := client.Run(context.Background(), req); err != nil {
		t.Fatalf("Run: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(req.OutDir, "args.txt"))
	if err != nil {
		t.Fatalf("read args: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	fields := strings.Split(lines[0], "|")
	if len(fields) != 8 {
		t.Fatalf("expected 8 positional args, got %d: %q", len(fields), lines[0])
	}
	if fields[0] != req.InDir || fields[1] != req.OutDir {
		t.Fatalf("folder args wrong: %q", lines[0])
	}
	if fields[2] != "auto" {
		t.Fatalf("empty source version should become auto, got %q", fields[2])
	}
	if fields[3] != "ACAD2018" || fields[4] != "DXF" {
		t.Fatalf("version/type args wrong: %q", lines[0])
	}
	if fields[5] != "0" {
		t.Fatalf("recursion must stay off, got %q", fields[5])
	}
	if fields[6] != "1" {
		t.Fatalf("audit should default on, got %q", fields[6])
	}
	if fields[7] != "plan.dwg" {
		t.Fatalf("file filter should pin the staged input, got %q", fields[7])
	}
	if lines[1] != ":901" {
		t.Fatalf("DISPLAY not propagated: %q", lines[1])
	}
}

func TestRunWithAuditDisabled(t *testing.T) {
	binary := testsupport.WriteStubBinary(t, t.TempDir(), "ODAFileConverter", `#!/bin/sh
printf '%s' "$7" > "$2/audit.txt"
printf 'x' > "$2/plan.dxf"
`)
	client, err := oda.New(binary, logging.NewNop(), oda.WithAudit(false))
	if err != nil {
		t.Fatalf("oda.New: %v", err)
	}
	req := newRequest(t)
	if _, err := client.Run(context.Background(), req); err != nil {
		t.Fatalf("Run: %v", err)
	}
	data, _ := os.ReadFile(filepath.Join(req.OutDir, "audit.txt"))
	if string(data) != "0" {
		t.Fatalf("audit flag should be 0, got %q", data)
	}
}

func TestRunTimeoutKillsConverter(t *testing.T) {
	client := newClient(t, "#!/bin/sh\nsleep 60\n")
	req := newRequest(t)
	req.Timeout = 300 * time.Millisecond

	start := time.Now()
	_, err := client.Run(context.Background(), req)
	if !errors.Is(err, services.ErrTimeout) {
		t.Fatalf("expected timeout classification, got %v", err)
	}
	if time.Since(start) > 10*time.Second {
		t.Fatal("timeout handling took far too long")
	}
}

func TestRunTimeoutLeavesNoDescendants(t *testing.T) {
	// The stub backgrounds a long-lived child, so the process group holds a
	// descendant beyond the shell the supervisor started directly.
	client := newClient(t, `#!/bin/sh
sleep 600 &
echo $! > "$2/child.pid"
wait
`)
	req := newRequest(t)
	req.Timeout = 300 * time.Millisecond

	_, err := client.Run(context.Background(), req)
	if !errors.Is(err, services.ErrTimeout) {
		t.Fatalf("expected timeout classification, got %v", err)
	}

	data, err := os.ReadFile(filepath.Join(req.OutDir, "child.pid"))
	if err != nil {
		t.Fatalf("read child pid: %v", err)
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		t.Fatalf("parse child pid %q: %v", data, err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for !processGone(pid) {
		if time.Now().After(deadline) {
			t.Fatalf("descendant %d survived group termination", pid)
		}
		time.Sleep(50 * time.Millisecond)
	}
}

// processGone reports whether pid no longer runs. A zombie counts as gone:
// it has been killed and only awaits reaping by its new parent.
func processGone(pid int) bool {
	if err := unix.Kill(pid, 0); errors.Is(err, unix.ESRCH) {
		return true
	}
	data, err := os.ReadFile(fmt.Sprintf("/proc/%d/stat", pid))
	if err != nil {
		return true
	}
	if idx := bytes.LastIndexByte(data, ')'); idx >= 0 && idx+2 < len(data) {
		return data[idx+2] == 'Z'
	}
	return false
}

func TestRunCrashIsClassified(t *testing.T) {
	client := newClient(t, "#!/bin/sh\necho 'fatal: cannot open drawing' >&2\nexit 3\n")
	req := newRequest(t)

	_, err := client.Run(context.Background(), req)
	if !errors.Is(err, services.ErrCrashed) {
		t.Fatalf("expected crash classification, got %v", err)
	}
	if !strings.Contains(err.Error(), "status 3") {
		t.Fatalf("expected exit status in message, got %q", err)
	}
	if !strings.Contains(err.Error(), "cannot open drawing") {
		t.Fatalf("expected converter diagnostics in message, got %q", err)
	}
}

func TestRunZeroExitWithoutOutputIsNeverSuccess(t *testing.T) {
	client := newClient(t, "#!/bin/sh\nexit 0\n")
	req := newRequest(t)

	_, err := client.Run(context.Background(), req)
	if !errors.Is(err, services.ErrOutputMissing) {
		t.Fatalf("expected output-missing classification, got %v", err)
	}
}

func TestRunEmptyOutputIsNeverSuccess(t *testing.T) {
	client := newClient(t, `#!/bin/sh
: > "$2/plan.dxf"
`)
	req := newRequest(t)

	_, err := client.Run(context.Background(), req)
	if !errors.Is(err, services.ErrOutputMissing) {
		t.Fatalf("expected output-missing classification, got %v", err)
	}
}

func TestRunFallsBackToSingleCandidate(t *testing.T) {
	// Some converter builds normalize the output name; a single non-empty
	// file with the target extension is still accepted.
	client := newClient(t, `#!/bin/sh
printf 'converted' > "$2/PLAN_converted.dxf"
`)
	req := newRequest(t)

	result, err := client.Run(context.Background(), req)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if filepath.Base(result.OutputPath) != "PLAN_converted.dxf" {
		t.Fatalf("unexpected output path: %q", result.OutputPath)
	}
}

func TestRunAmbiguousOutputFails(t *testing.T) {
	client := newClient(t, `#!/bin/sh
printf 'a' > "$2/first.dxf"
printf 'b' > "$2/second.dxf"
`)
	req := newRequest(t)

	_, err := client.Run(context.Background(), req)
	if !errors.Is(err, services.ErrOutputMissing) {
		t.Fatalf("expected output-missing classification, got %v", err)
	}
	if !strings.Contains(err.Error(), "ambiguous") {
		t.Fatalf("expected ambiguity mention, got %q", err)
	}
}

func TestRunContextCancellation(t *testing.T) {
	client := newClient(t, "#!/bin/sh\nsleep 60\n")
	req := newRequest(t)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(100 * time.Millisecond)
		cancel()
	}()
	_, err := client.Run(ctx, req)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context cancellation, got %v", err)
	}
}

func TestRunRequiresTimeout(t *testing.T) {
	client := newClient(t, "#!/bin/sh\nexit 0\n")
	req := newRequest(t)
	req.Timeout = 0

	if _, err := client.Run(context.Background(), req); err == nil {
		t.Fatal("expected error for missing timeout")
	}
}
