package api_test

import (
	"testing"
	"time"

	"caddis/internal/api"
	"caddis/internal/engine"
	"caddis/internal/jobs"
)

func TestStateLabel(t *testing.T) {
	cases := []struct {
		state jobs.State
		want  string
	}{
		{jobs.StateQueued, "Queued"},
		{jobs.StateProvisioning, "Provisioning"},
		{jobs.StateConverting, "Converting"},
		{jobs.StateTimedOut, "Timed Out"},
	}
	for _, tc := range cases {
		if got := api.StateLabel(tc.state); got != tc.want {
			t.Errorf("StateLabel(%s) = %q, want %q", tc.state, got, tc.want)
		}
	}
}

func TestFromRecord(t *testing.T) {
	created := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
	released := created.Add(12 * time.Second)
	rec := &jobs.Record{
		ID:           "job-9",
		SourceName:   "plan.dwg",
		SourceFormat: "ACAD2013",
		TargetFormat: "DXF",
		State:        jobs.StateSucceeded,
		Display:      104,
		OutputPath:   "plan.dxf",
		CreatedAt:    created,
		UpdatedAt:    released,
		ReleasedAt:   &released,
	}

	dto := api.FromRecord(rec)
	if dto.ID != "job-9" || dto.SourceName != "plan.dwg" || dto.TargetFormat != "DXF" {
		t.Fatalf("identity fields mismatch: %+v", dto)
	}
	if dto.State != "succeeded" || dto.StateLabel != "Succeeded" {
		t.Fatalf("state fields mismatch: %+v", dto)
	}
	if dto.CreatedAt != "2026-03-14T09:26:53.000Z" {
		t.Fatalf("unexpected created timestamp: %q", dto.CreatedAt)
	}
	if dto.ReleasedAt != "2026-03-14T09:27:05.000Z" {
		t.Fatalf("unexpected released timestamp: %q", dto.ReleasedAt)
	}
	if !dto.Released {
		t.Fatal("released flag should be set")
	}
}

func TestFromRecordNilAndZeroTimes(t *testing.T) {
	if dto := api.FromRecord(nil); dto.ID != "" {
		t.Fatalf("nil record should map to zero DTO: %+v", dto)
	}

	dto := api.FromRecord(&jobs.Record{ID: "fresh", State: jobs.StateQueued})
	if dto.CreatedAt != "" || dto.ReleasedAt != "" {
		t.Fatalf("zero times should stay empty: %+v", dto)
	}
	if dto.Released {
		t.Fatal("unreleased record mapped as released")
	}
}

func TestFromRecordsEmpty(t *testing.T) {
	if out := api.FromRecords(nil); out != nil {
		t.Fatalf("expected nil for empty input, got %v", out)
	}
	out := api.FromRecords([]*jobs.Record{{ID: "a"}, {ID: "b"}})
	if len(out) != 2 || out[1].ID != "b" {
		t.Fatalf("unexpected slice conversion: %+v", out)
	}
}

func TestFromEngineStatus(t *testing.T) {
	dto := api.FromEngineStatus(engine.Status{
		AdmissionLimit:  4,
		HeldByProcess:   1,
		DisplayRangeMin: 100,
		DisplayRangeMax: 299,
		Timeout:         5 * time.Minute,
	})
	if dto.AdmissionLimit != 4 || dto.HeldByProcess != 1 {
		t.Fatalf("admission fields mismatch: %+v", dto)
	}
	if dto.DisplayRangeMin != 100 || dto.DisplayRangeMax != 299 {
		t.Fatalf("display fields mismatch: %+v", dto)
	}
	if dto.Timeout != "5m0s" {
		t.Fatalf("unexpected timeout rendering: %q", dto.Timeout)
	}
}

func TestFromSummary(t *testing.T) {
	dto := api.FromSummary(jobs.Summary{Total: 6, Queued: 1, Active: 2, Succeeded: 1, Failed: 1, TimedOut: 1})
	if dto.Total != 6 || dto.Active != 2 || dto.TimedOut != 1 {
		t.Fatalf("summary mismatch: %+v", dto)
	}
}
