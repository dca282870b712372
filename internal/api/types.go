package api

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// Job describes a conversion job in a transport-friendly format.
type Job struct {
	ID           string `json:"id"`
	SourceName   string `json:"sourceName"`
	SourceFormat string `json:"sourceFormat,omitempty"`
	TargetFormat string `json:"targetFormat"`
	State        string `json:"state"`
	StateLabel   string `json:"stateLabel"`
	Display      int    `json:"display,omitempty"`
	OutputPath   string `json:"outputPath,omitempty"`
	ErrorCode    string `json:"errorCode,omitempty"`
	ErrorMessage string `json:"errorMessage,omitempty"`
	CreatedAt    string `json:"createdAt,omitempty"`
	UpdatedAt    string `json:"updatedAt,omitempty"`
	ReleasedAt   string `json:"releasedAt,omitempty"`
	Released     bool   `json:"released"`
}

// JobStats aggregates job counts per lifecycle bucket.
type JobStats struct {
	Total     int `json:"total"`
	Queued    int `json:"queued"`
	Active    int `json:"active"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	TimedOut  int `json:"timedOut"`
}

// EngineStatus summarizes the shared resource pools of a serving process.
type EngineStatus struct {
	AdmissionLimit  int    `json:"admissionLimit"`
	HeldByProcess   int    `json:"heldByProcess"`
	DisplayRangeMin int    `json:"displayRangeMin"`
	DisplayRangeMax int    `json:"displayRangeMax"`
	Timeout         string `json:"timeout"`
}

// DependencyStatus captures availability of an external dependency.
type DependencyStatus struct {
	Name        string `json:"name"`
	Command     string `json:"command"`
	Description string `json:"description"`
	Optional    bool   `json:"optional"`
	Available   bool   `json:"available"`
	Detail      string `json:"detail,omitempty"`
}

// DaemonStatus aggregates daemon runtime information for API consumers.
type DaemonStatus struct {
	Running      bool               `json:"running"`
	PID          int                `json:"pid"`
	RegistryPath string             `json:"registryPath"`
	LockFilePath string             `json:"lockFilePath"`
	Engine       EngineStatus       `json:"engine"`
	Jobs         JobStats           `json:"jobs"`
	Dependencies []DependencyStatus `json:"dependencies"`
}

// JobListResponse wraps a collection of jobs for API responses.
type JobListResponse struct {
	Jobs []Job `json:"jobs"`
}

// JobResponse wraps a single job.
type JobResponse struct {
	Job Job `json:"job"`
}

// ErrorResponse is the JSON body returned for failed API requests.
type ErrorResponse struct {
	Error          string `json:"error"`
	Classification string `json:"classification,omitempty"`
	JobID          string `json:"jobId,omitempty"`
}
