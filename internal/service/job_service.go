package service

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/qr-ticket-service/internal/domain"
	"github.com/spec-kit/qr-ticket-service/internal/repository"
	apperrors "github.com/spec-kit/qr-ticket-service/pkg/util/errorutil"
)

// interruptedMessage is stored on jobs a crash left in processing.
const interruptedMessage = "interrupted before completion"

// JobQueue receives ids of jobs ready to run.
type JobQueue interface {
	Push(jobID string)
}

// JobService records jobs and tracks their status.
type JobService struct {
	jobs   repository.JobRepository
	queue  JobQueue
	logger *zap.Logger
	now    func() time.Time
}

// NewJobService constructs the service.
func NewJobService(jobs repository.JobRepository, queue JobQueue, logger *zap.Logger) *JobService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &JobService{jobs: jobs, queue: queue, logger: logger, now: func() time.Time { return time.Now().UTC() }}
}

// Enqueue stores a queued job and hands it to the worker queue. It
// returns as soon as the record is stored.
func (s *JobService) Enqueue(ctx context.Context, jobType domain.JobType, payload any) (*domain.Job, error) {
	if !jobType.Valid() {
		return nil, apperrors.NewValidationError("unknown job type", map[string]any{"job_type": jobType})
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, apperrors.NewValidationError("payload is not serializable", nil)
	}

	now := s.now()
	job := &domain.Job{
		ID:        uuid.NewString(),
		Type:      jobType,
		Payload:   raw,
		Status:    domain.JobStatusQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.jobs.Create(ctx, job); err != nil {
		return nil, storeError(err)
	}
	s.queue.Push(job.ID)
	s.logger.Info("job queued", zap.String("job_id", job.ID), zap.String("job_type", string(jobType)))
	return job, nil
}

// Get returns the current job record.
func (s *JobService) Get(ctx context.Context, id string) (*domain.Job, error) {
	job, err := s.jobs.Get(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperrors.NewNotFound("job", map[string]any{"job_id": id})
	}
	if err != nil {
		return nil, storeError(err)
	}
	return job, nil
}

// Start claims a queued job for processing.
func (s *JobService) Start(ctx context.Context, id string) (*domain.Job, error) {
	return s.transition(ctx, id, domain.JobStatusProcessing, nil)
}

// Complete stores result and finishes the job.
func (s *JobService) Complete(ctx context.Context, id string, result any) error {
	raw, err := json.Marshal(result)
	if err != nil {
		return s.Fail(ctx, id, apperrors.NewInternalError(err))
	}
	_, err = s.transition(ctx, id, domain.JobStatusCompleted, raw)
	return err
}

// Fail stores cause as the job result and finishes the job.
func (s *JobService) Fail(ctx context.Context, id string, cause error) error {
	raw, err := json.Marshal(JobErrorFrom(cause))
	if err != nil {
		return err
	}
	_, err = s.transition(ctx, id, domain.JobStatusError, raw)
	return err
}

// Recover re-queues jobs left queued by a previous process, in creation
// order, and fails jobs it left processing.
func (s *JobService) Recover(ctx context.Context) (requeued, interrupted int, err error) {
	pending, err := s.jobs.ListPending(ctx)
	if err != nil {
		return 0, 0, storeError(err)
	}
	for _, job := range pending {
		switch job.Status {
		case domain.JobStatusQueued:
			s.queue.Push(job.ID)
			requeued++
		case domain.JobStatusProcessing:
			cause := apperrors.NewDomainError(apperrors.CodeInternal, interruptedMessage, http.StatusInternalServerError, nil)
			if err := s.Fail(ctx, job.ID, cause); err != nil {
				s.logger.Warn("mark interrupted job", zap.String("job_id", job.ID), zap.Error(err))
				continue
			}
			interrupted++
		}
	}
	return requeued, interrupted, nil
}

func (s *JobService) transition(ctx context.Context, id string, next domain.JobStatus, result json.RawMessage) (*domain.Job, error) {
	job, err := s.jobs.Transition(ctx, id, next, result)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return nil, apperrors.NewNotFound("job", map[string]any{"job_id": id})
	case errors.Is(err, repository.ErrInvalidTransition):
		return nil, apperrors.NewConflict("job status cannot move to "+string(next), map[string]any{"job_id": id})
	case err != nil:
		return nil, storeError(err)
	}
	return job, nil
}

// JobErrorFrom converts err into the body stored on a failed job.
func JobErrorFrom(err error) domain.JobError {
	domainErr := apperrors.ToDomainError(err)
	return domain.JobError{
		Code:    domainErr.Code,
		Message: domainErr.Error(),
		Details: domainErr.Details,
	}
}
