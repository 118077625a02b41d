package dto

import (
	"encoding/json"
	"time"

	"github.com/spec-kit/qr-ticket-service/internal/domain"
)

const redactedValue = "********"

// EnqueueResponse is returned when a job is accepted.
type EnqueueResponse struct {
	JobID  string           `json:"job_id"`
	Status domain.JobStatus `json:"status"`
}

// JobResponse is the polled job record.
type JobResponse struct {
	JobID     string           `json:"job_id"`
	JobType   domain.JobType   `json:"job_type"`
	Status    domain.JobStatus `json:"status"`
	Payload   json.RawMessage  `json:"payload"`
	Result    json.RawMessage  `json:"result,omitempty"`
	CreatedAt time.Time        `json:"created_at"`
	UpdatedAt time.Time        `json:"updated_at"`
}

// NewJobResponse maps a job, masking stored mail passwords.
func NewJobResponse(job *domain.Job) JobResponse {
	payload := job.Payload
	if job.Type == domain.JobTypeIssue {
		var req IssueTicketRequest
		if err := json.Unmarshal(job.Payload, &req); err == nil {
			if masked, err := json.Marshal(req.Redacted()); err == nil {
				payload = masked
			}
		}
	}
	return JobResponse{
		JobID:     job.ID,
		JobType:   job.Type,
		Status:    job.Status,
		Payload:   payload,
		Result:    job.Result,
		CreatedAt: job.CreatedAt,
		UpdatedAt: job.UpdatedAt,
	}
}
