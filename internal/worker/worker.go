// Package worker drains the job queue with a single consumer.
package worker

import (
	"context"
	"fmt"
	"math/rand/v2"
	"runtime/debug"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/qr-ticket-service/internal/domain"
	"github.com/spec-kit/qr-ticket-service/internal/observability"
	"github.com/spec-kit/qr-ticket-service/internal/service"
	apperrors "github.com/spec-kit/qr-ticket-service/pkg/util/errorutil"
)

const (
	initialStoreRetry = time.Second
	maxStoreRetry     = 30 * time.Second
)

// Config tunes the worker.
type Config struct {
	ThrottleMin time.Duration
	ThrottleMax time.Duration
	JobTimeout  time.Duration
}

// Worker runs jobs one at a time in queue order.
type Worker struct {
	queue      *Queue
	jobs       *service.JobService
	processors map[domain.JobType]Processor
	cfg        Config
	logger     *zap.Logger
	metrics    *observability.Metrics

	sleep  func(ctx context.Context, d time.Duration) error
	jitter func(lo, hi time.Duration) time.Duration
}

// New builds a worker. Run must be called from exactly one goroutine.
func New(queue *Queue, jobs *service.JobService, processors map[domain.JobType]Processor, cfg Config, logger *zap.Logger, metrics *observability.Metrics) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{
		queue:      queue,
		jobs:       jobs,
		processors: processors,
		cfg:        cfg,
		logger:     logger,
		metrics:    metrics,
		sleep:      sleepContext,
		jitter:     randomBetween,
	}
}

// Recover re-queues work left over by a previous process.
func (w *Worker) Recover(ctx context.Context) error {
	requeued, interrupted, err := w.jobs.Recover(ctx)
	if err != nil {
		return err
	}
	if requeued > 0 || interrupted > 0 {
		w.logger.Info("recovered pending jobs", zap.Int("requeued", requeued), zap.Int("interrupted", interrupted))
	}
	return nil
}

// Run drains the queue until ctx is cancelled. Job failures never stop it.
func (w *Worker) Run(ctx context.Context) {
	w.logger.Info("worker started")
	defer w.logger.Info("worker stopped")

	for {
		id, err := w.queue.Pop(ctx)
		if err != nil {
			return
		}
		outcome := w.runJob(ctx, id)
		if outcome.EmailSent {
			delay := w.jitter(w.cfg.ThrottleMin, w.cfg.ThrottleMax)
			w.logger.Info("throttling after email", zap.Duration("delay", delay))
			if err := w.sleep(ctx, delay); err != nil {
				return
			}
		}
	}
}

func (w *Worker) runJob(ctx context.Context, id string) Outcome {
	job, ok := w.claim(ctx, id)
	if !ok {
		return Outcome{}
	}
	logger := w.logger.With(zap.String("job_id", job.ID), zap.String("job_type", string(job.Type)))
	logger.Info("job processing")

	start := time.Now()
	result, outcome, err := w.execute(ctx, job, logger)
	elapsed := time.Since(start)

	if err != nil {
		cause := err
		if err := w.untilStored(ctx, job.ID, func() error { return w.jobs.Fail(ctx, job.ID, cause) }); err != nil {
			logger.Error("store job failure", zap.Error(err))
		}
		w.recordJob(job.Type, domain.JobStatusError, elapsed)
		logger.Warn("job failed", zap.Error(err), zap.Duration("elapsed", elapsed))
		return Outcome{}
	}

	if err := w.untilStored(ctx, job.ID, func() error { return w.jobs.Complete(ctx, job.ID, result) }); err != nil {
		logger.Error("store job result", zap.Error(err))
	}
	w.recordJob(job.Type, domain.JobStatusCompleted, elapsed)
	logger.Info("job completed", zap.Duration("elapsed", elapsed))
	return outcome
}

// claim moves the job to processing, waiting out store outages so queue
// order is kept.
func (w *Worker) claim(ctx context.Context, id string) (*domain.Job, bool) {
	var job *domain.Job
	err := w.untilStored(ctx, id, func() error {
		var err error
		job, err = w.jobs.Start(ctx, id)
		return err
	})
	if err != nil {
		w.logger.Warn("skipping job", zap.String("job_id", id), zap.Error(err))
		return nil, false
	}
	return job, true
}

// untilStored runs write until it succeeds or fails with anything other
// than STORE_UNAVAILABLE, backing off from 1s up to 30s between attempts.
// A job is never left in processing because one write hit an outage.
func (w *Worker) untilStored(ctx context.Context, id string, write func() error) error {
	delay := initialStoreRetry
	for {
		err := write()
		if err == nil || !apperrors.HasCode(err, apperrors.CodeStoreUnavailable) {
			return err
		}
		w.logger.Warn("job store unavailable, retrying", zap.String("job_id", id), zap.Duration("delay", delay), zap.Error(err))
		if sleepErr := w.sleep(ctx, delay); sleepErr != nil {
			return err
		}
		delay = min(delay*2, maxStoreRetry)
	}
}

func (w *Worker) execute(ctx context.Context, job *domain.Job, logger *zap.Logger) (result any, outcome Outcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("job panicked", zap.Any("panic", r), zap.ByteString("stack", debug.Stack()))
			result, outcome = nil, Outcome{}
			err = apperrors.NewInternalError(fmt.Errorf("panic: %v", r))
		}
	}()

	processor, ok := w.processors[job.Type]
	if !ok {
		return nil, Outcome{}, apperrors.NewValidationError("unsupported job type", map[string]any{"job_type": job.Type})
	}
	if w.cfg.JobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.cfg.JobTimeout)
		defer cancel()
	}
	return processor.Process(ctx, job)
}

func (w *Worker) recordJob(jobType domain.JobType, status domain.JobStatus, elapsed time.Duration) {
	if w.metrics != nil {
		w.metrics.RecordJob(string(jobType), string(status), elapsed)
	}
}

func randomBetween(lo, hi time.Duration) time.Duration {
	if hi <= lo {
		return lo
	}
	return lo + time.Duration(rand.Int64N(int64(hi-lo)+1))
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
