package domain

import (
	"encoding/json"
	"time"
)

// JobType enumerates deferred operations.
type JobType string

const (
	JobTypeIssue  JobType = "issue"
	JobTypeVerify JobType = "verify"
	JobTypeUpdate JobType = "update"
)

// Valid reports whether t is a known job type.
func (t JobType) Valid() bool {
	switch t {
	case JobTypeIssue, JobTypeVerify, JobTypeUpdate:
		return true
	}
	return false
}

// JobStatus tracks a job through queued -> processing -> completed|error.
type JobStatus string

const (
	JobStatusQueued     JobStatus = "queued"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusError      JobStatus = "error"
)

var jobTransitions = map[JobStatus][]JobStatus{
	JobStatusQueued:     {JobStatusProcessing, JobStatusError},
	JobStatusProcessing: {JobStatusCompleted, JobStatusError},
	JobStatusCompleted:  {},
	JobStatusError:      {},
}

// CanTransitionTo reports whether moving from s to next keeps status monotonic.
func (s JobStatus) CanTransitionTo(next JobStatus) bool {
	for _, candidate := range jobTransitions[s] {
		if candidate == next {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transitions are allowed.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusError
}

// Job is a unit of deferred work.
type Job struct {
	ID        string          `json:"job_id"`
	Type      JobType         `json:"job_type"`
	Payload   json.RawMessage `json:"payload"`
	Status    JobStatus       `json:"status"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
	Result    json.RawMessage `json:"result,omitempty"`
}

// JobError is the result body stored on a failed job.
type JobError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}
