package api

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"caddis/internal/deps"
	"caddis/internal/engine"
	"caddis/internal/jobs"
)

var titleCaser = cases.Title(language.English)

// StateLabel renders a job state for human-facing output, e.g. "Timed Out".
func StateLabel(state jobs.State) string {
	label := strings.ReplaceAll(string(state), "_", " ")
	return titleCaser.String(label)
}

// FromRecord converts a job record to its API representation.
func FromRecord(rec *jobs.Record) Job {
	if rec == nil {
		return Job{}
	}

	dto := Job{
		ID:           rec.ID,
		SourceName:   rec.SourceName,
		SourceFormat: rec.SourceFormat,
		TargetFormat: rec.TargetFormat,
		State:        string(rec.State),
		StateLabel:   StateLabel(rec.State),
		Display:      rec.Display,
		OutputPath:   rec.OutputPath,
		ErrorCode:    rec.ErrorCode,
		ErrorMessage: rec.ErrorMessage,
		Released:     rec.Released(),
	}
	if !rec.CreatedAt.IsZero() {
		dto.CreatedAt = rec.CreatedAt.UTC().Format(dateTimeFormat)
	}
	if !rec.UpdatedAt.IsZero() {
		dto.UpdatedAt = rec.UpdatedAt.UTC().Format(dateTimeFormat)
	}
	if rec.ReleasedAt != nil {
		dto.ReleasedAt = rec.ReleasedAt.UTC().Format(dateTimeFormat)
	}
	return dto
}

// FromRecords converts a slice of job records into API DTOs.
func FromRecords(records []*jobs.Record) []Job {
	if len(records) == 0 {
		return nil
	}
	out := make([]Job, 0, len(records))
	for _, rec := range records {
		out = append(out, FromRecord(rec))
	}
	return out
}

// FromEngineStatus converts engine capacity information into the API
// representation.
func FromEngineStatus(status engine.Status) EngineStatus {
	return EngineStatus{
		AdmissionLimit:  status.AdmissionLimit,
		HeldByProcess:   status.HeldByProcess,
		DisplayRangeMin: status.DisplayRangeMin,
		DisplayRangeMax: status.DisplayRangeMax,
		Timeout:         status.Timeout.String(),
	}
}

// FromDependencyStatuses converts dependency checks into API DTOs.
func FromDependencyStatuses(statuses []deps.Status) []DependencyStatus {
	if len(statuses) == 0 {
		return nil
	}
	out := make([]DependencyStatus, 0, len(statuses))
	for _, status := range statuses {
		out = append(out, DependencyStatus{
			Name:        status.Name,
			Command:     status.Command,
			Description: status.Description,
			Optional:    status.Optional,
			Available:   status.Available,
			Detail:      status.Detail,
		})
	}
	return out
}

// FromSummary converts registry aggregates into the API representation.
func FromSummary(summary jobs.Summary) JobStats {
	return JobStats{
		Total:     summary.Total,
		Queued:    summary.Queued,
		Active:    summary.Active,
		Succeeded: summary.Succeeded,
		Failed:    summary.Failed,
		TimedOut:  summary.TimedOut,
	}
}
