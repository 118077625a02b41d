package worker

import (
	"context"
	"encoding/json"

	"github.com/spec-kit/qr-ticket-service/internal/api/dto"
	"github.com/spec-kit/qr-ticket-service/internal/domain"
	"github.com/spec-kit/qr-ticket-service/internal/service"
	apperrors "github.com/spec-kit/qr-ticket-service/pkg/util/errorutil"
)

// Outcome reports side effects the worker schedules around.
type Outcome struct {
	EmailSent bool
}

// Processor executes one job type. The returned result is stored on the job.
type Processor interface {
	Process(ctx context.Context, job *domain.Job) (any, Outcome, error)
}

// ProcessorFunc adapts a function to Processor.
type ProcessorFunc func(ctx context.Context, job *domain.Job) (any, Outcome, error)

// Process calls f.
func (f ProcessorFunc) Process(ctx context.Context, job *domain.Job) (any, Outcome, error) {
	return f(ctx, job)
}

// Issuer is the issuance entry point used by jobs.
type Issuer interface {
	Issue(ctx context.Context, in service.IssueInput) (*service.IssuedTicket, error)
}

// Verifier is the verification entry point used by jobs.
type Verifier interface {
	Verify(ctx context.Context, ticketNumber string, attendance domain.Details) (*service.VerificationResult, error)
	Update(ctx context.Context, ticketNumber string, data domain.Details) (*service.VerificationResult, error)
}

// NewProcessors maps every job type to its service call.
func NewProcessors(issuer Issuer, verifier Verifier) map[domain.JobType]Processor {
	return map[domain.JobType]Processor{
		domain.JobTypeIssue: ProcessorFunc(func(ctx context.Context, job *domain.Job) (any, Outcome, error) {
			var req dto.IssueTicketRequest
			if err := decodePayload(job, &req); err != nil {
				return nil, Outcome{}, err
			}
			issued, err := issuer.Issue(ctx, req.ToInput())
			if err != nil {
				return nil, Outcome{}, err
			}
			return issued, Outcome{EmailSent: issued.EmailSent}, nil
		}),
		domain.JobTypeVerify: ProcessorFunc(func(ctx context.Context, job *domain.Job) (any, Outcome, error) {
			var req dto.VerifyTicketRequest
			if err := decodePayload(job, &req); err != nil {
				return nil, Outcome{}, err
			}
			var attendance domain.Details
			if req.AttendanceData != nil {
				attendance = *req.AttendanceData
			}
			res, err := verifier.Verify(ctx, req.TicketNumber, attendance)
			return res, Outcome{}, err
		}),
		domain.JobTypeUpdate: ProcessorFunc(func(ctx context.Context, job *domain.Job) (any, Outcome, error) {
			var req dto.UpdateTicketRequest
			if err := decodePayload(job, &req); err != nil {
				return nil, Outcome{}, err
			}
			if req.AttendanceData == nil {
				return nil, Outcome{}, apperrors.NewMissingField("attendance_data")
			}
			res, err := verifier.Update(ctx, req.TicketNumber, *req.AttendanceData)
			return res, Outcome{}, err
		}),
	}
}

func decodePayload(job *domain.Job, target any) error {
	if err := json.Unmarshal(job.Payload, target); err != nil {
		return apperrors.NewValidationError("malformed job payload", map[string]any{"job_id": job.ID})
	}
	return nil
}
