package ipc_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"caddis/internal/daemon"
	"caddis/internal/engine"
	"caddis/internal/ipc"
	"caddis/internal/jobs"
	"caddis/internal/logging"
	"caddis/internal/testsupport"
)

func newFixture(t *testing.T) (*ipc.Client, *jobs.Store) {
	t.Helper()

	cfg := testsupport.NewConfig(t, testsupport.WithStubbedBinaries())
	store := testsupport.MustOpenStore(t, cfg)
	eng, err := engine.New(cfg, store, logging.NewNop())
	if err != nil {
		t.Fatalf("engine.New: %v", err)
	}
	d, err := daemon.New(cfg, eng, logging.NewNop())
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}

	socket := filepath.Join(cfg.Paths.RuntimeDir, "d.sock")
	srv, err := ipc.NewServer(context.Background(), socket, d, logging.NewNop())
	if err != nil {
		t.Fatalf("ipc.NewServer: %v", err)
	}
	srv.Serve()
	t.Cleanup(srv.Close)

	client, err := ipc.Dial(socket)
	if err != nil {
		t.Fatalf("ipc.Dial: %v", err)
	}
	t.Cleanup(func() {
		client.Close()
	})
	return client, store
}

func TestPingReturnsDaemonPID(t *testing.T) {
	client, _ := newFixture(t)

	resp, err := client.Ping()
	if err != nil {
		t.Fatalf("Ping: %v", err)
	}
	if resp.PID != os.Getpid() {
		t.Fatalf("unexpected pid: %d", resp.PID)
	}
}

func TestStatusOverSocket(t *testing.T) {
	client, store := newFixture(t)

	if err := store.Insert(context.Background(), &jobs.Record{ID: "q", State: jobs.StateQueued}); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	resp, err := client.Status()
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if resp.Status.RegistryPath != store.Path() {
		t.Fatalf("unexpected registry path: %q", resp.Status.RegistryPath)
	}
	if resp.Status.Jobs.Total != 1 || resp.Status.Jobs.Queued != 1 {
		t.Fatalf("unexpected job stats: %+v", resp.Status.Jobs)
	}
}

func TestListAndDescribeJobs(t *testing.T) {
	client, store := newFixture(t)
	ctx := context.Background()

	for _, rec := range []*jobs.Record{
		{ID: "a", SourceName: "plan.dwg", TargetFormat: "DXF", State: jobs.StateSucceeded},
		{ID: "b", SourceName: "site.dxf", TargetFormat: "DWG", State: jobs.StateFailed},
	} {
		if err := store.Insert(ctx, rec); err != nil {
			t.Fatalf("Insert %s: %v", rec.ID, err)
		}
	}

	list, err := client.ListJobs(nil)
	if err != nil {
		t.Fatalf("ListJobs: %v", err)
	}
	if len(list.Jobs) != 2 {
		t.Fatalf("expected 2 jobs, got %d", len(list.Jobs))
	}

	filtered, err := client.ListJobs([]string{"failed"})
	if err != nil {
		t.Fatalf("ListJobs filtered: %v", err)
	}
	if len(filtered.Jobs) != 1 || filtered.Jobs[0].ID != "b" {
		t.Fatalf("unexpected filter result: %+v", filtered.Jobs)
	}

	if _, err := client.ListJobs([]string{"bogus"}); err == nil {
		t.Fatal("unknown state should error")
	}

	described, err := client.DescribeJob("a")
	if err != nil {
		t.Fatalf("DescribeJob: %v", err)
	}
	if described.Job.SourceName != "plan.dwg" || described.Job.StateLabel != "Succeeded" {
		t.Fatalf("unexpected job: %+v", described.Job)
	}

	if _, err := client.DescribeJob("missing"); err == nil || !strings.Contains(err.Error(), "not found") {
		t.Fatalf("expected not-found error, got %v", err)
	}
	if _, err := client.DescribeJob("  "); err == nil {
		t.Fatal("blank id should error")
	}
}

func TestClearFinishedOverSocket(t *testing.T) {
	client, store := newFixture(t)
	ctx := context.Background()

	released := time.Now().UTC()
	if err := store.Insert(ctx, &jobs.Record{ID: "done", State: jobs.StateSucceeded, ReleasedAt: &released}); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := store.Insert(ctx, &jobs.Record{ID: "live", State: jobs.StateConverting}); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	resp, err := client.ClearFinished()
	if err != nil {
		t.Fatalf("ClearFinished: %v", err)
	}
	if resp.Removed != 1 {
		t.Fatalf("expected 1 removal, got %d", resp.Removed)
	}
}

func TestDialMissingSocketFails(t *testing.T) {
	if _, err := ipc.Dial(filepath.Join(t.TempDir(), "absent.sock")); err == nil {
		t.Fatal("expected dial failure for missing socket")
	}
}
