package domain

import (
	"strings"
	"time"
)

// JobStatus enumerates job lifecycle states as reported by the Job Service.
// Values outside the known set are carried verbatim.
type JobStatus string

const (
	JobStatusQueued     JobStatus = "QUEUED"
	JobStatusProcessing JobStatus = "PROCESSING"
	JobStatusCompleted  JobStatus = "COMPLETED"
	JobStatusFailed     JobStatus = "FAILED"
	JobStatusUnknown    JobStatus = "UNKNOWN"
)

// IsTerminal reports whether no further transitions are expected.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// Known reports whether s is one of the enumerated states.
func (s JobStatus) Known() bool {
	switch s {
	case JobStatusQueued, JobStatusProcessing, JobStatusCompleted, JobStatusFailed, JobStatusUnknown:
		return true
	}
	return false
}

// ParseStatus trims the raw value. Empty input maps to UNKNOWN; anything else
// passes through untouched so new service states stay visible.
func ParseStatus(raw string) JobStatus {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return JobStatusUnknown
	}
	return JobStatus(raw)
}

// Job is one generation request tracked by the dashboard.
type Job struct {
	ID        string    `json:"id"`
	Status    JobStatus `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}
