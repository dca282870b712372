package ipc

import "caddis/internal/api"

// PingRequest checks daemon liveness.
type PingRequest struct{}

// PingResponse carries the daemon process id.
type PingResponse struct {
	PID int `json:"pid"`
}

// StatusRequest fetches daemon status.
type StatusRequest struct{}

// StatusResponse mirrors the HTTP status DTO for internal IPC callers.
type StatusResponse struct {
	Status api.DaemonStatus `json:"status"`
}

// ListJobsRequest filters job listing by state.
type ListJobsRequest struct {
	States []string `json:"states"`
}

// ListJobsResponse contains job registry entries.
type ListJobsResponse struct {
	Jobs []api.Job `json:"jobs"`
}

// DescribeJobRequest fetches a single job by id.
type DescribeJobRequest struct {
	ID string `json:"id"`
}

// DescribeJobResponse contains a single job entry.
type DescribeJobResponse struct {
	Job api.Job `json:"job"`
}

// ClearFinishedRequest removes released jobs from the registry.
type ClearFinishedRequest struct{}

// ClearFinishedResponse reports the number of removed entries.
type ClearFinishedResponse struct {
	Removed int64 `json:"removed"`
}
