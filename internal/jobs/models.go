// Package jobs persists conversion job records in SQLite for the lifetime of
// the serving processes. The registry exists so operators and sibling workers
// can observe in-flight and recently finished jobs; it is wiped on daemon
// start and carries no durability guarantees across restarts.
package jobs

import (
	"strings"
	"time"
)

// State represents the lifecycle of a conversion job.
type State string

const (
	StateQueued       State = "queued"
	StateProvisioning State = "provisioning"
	StateConverting   State = "converting"
	StateSucceeded    State = "succeeded"
	StateFailed       State = "failed"
	StateTimedOut     State = "timed_out"
)

var allStates = []State{
	StateQueued,
	StateProvisioning,
	StateConverting,
	StateSucceeded,
	StateFailed,
	StateTimedOut,
}

var stateSet = func() map[State]struct{} {
	set := make(map[State]struct{}, len(allStates))
	for _, state := range allStates {
		set[state] = struct{}{}
	}
	return set
}()

// Record is a job row persisted in SQLite.
type Record struct {
	ID            string
	SourceName    string
	SourceFormat  string
	TargetFormat  string
	State         State
	Display       int
	WorkspacePath string
	OutputPath    string
	ErrorCode     string
	ErrorMessage  string
	CreatedAt     time.Time
	UpdatedAt     time.Time
	Deadline      time.Time
	ReleasedAt    *time.Time
}

// AllStates returns the ordered list of known states.
func AllStates() []State {
	cp := make([]State, len(allStates))
	copy(cp, allStates)
	return cp
}

// ParseState converts a string into a known State.
func ParseState(value string) (State, bool) {
	normalized := State(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := stateSet[normalized]
	return normalized, ok
}

// IsTerminal reports whether the state is a conversion outcome.
func (s State) IsTerminal() bool {
	switch s {
	case StateSucceeded, StateFailed, StateTimedOut:
		return true
	default:
		return false
	}
}

// Released reports whether every resource owned by the job has been freed.
func (r *Record) Released() bool {
	return r.ReleasedAt != nil
}

// SetFailed marks the record as failed with a classification and message.
func (r *Record) SetFailed(code, message string) {
	r.State = StateFailed
	r.ErrorCode = code
	r.ErrorMessage = message
}

// Summary aggregates job counts per lifecycle bucket.
type Summary struct {
	Total     int
	Queued    int
	Active    int
	Succeeded int
	Failed    int
	TimedOut  int
}
