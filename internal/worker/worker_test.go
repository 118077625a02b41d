package worker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/qr-ticket-service/internal/domain"
	"github.com/spec-kit/qr-ticket-service/internal/repository"
	"github.com/spec-kit/qr-ticket-service/internal/service"
	apperrors "github.com/spec-kit/qr-ticket-service/pkg/util/errorutil"
)

type harness struct {
	queue  *Queue
	jobs   *service.JobService
	worker *Worker

	mu     sync.Mutex
	order  []string
	sleeps []time.Duration
}

type step struct {
	Name      string `json:"name"`
	Fail      bool   `json:"fail"`
	Panic     bool   `json:"panic"`
	EmailSent bool   `json:"email_sent"`
}

func newHarness(t *testing.T, repo repository.JobRepository) *harness {
	t.Helper()
	h := &harness{queue: NewQueue()}
	h.jobs = service.NewJobService(repo, h.queue, nil)

	run := ProcessorFunc(func(_ context.Context, job *domain.Job) (any, Outcome, error) {
		var s step
		if err := json.Unmarshal(job.Payload, &s); err != nil {
			return nil, Outcome{}, err
		}
		h.mu.Lock()
		h.order = append(h.order, s.Name)
		h.mu.Unlock()
		switch {
		case s.Panic:
			panic("bad job")
		case s.Fail:
			return nil, Outcome{}, apperrors.NewNotFound("ticket", nil)
		}
		return map[string]string{"name": s.Name}, Outcome{EmailSent: s.EmailSent}, nil
	})
	processors := map[domain.JobType]Processor{
		domain.JobTypeIssue:  run,
		domain.JobTypeVerify: run,
	}
	h.worker = New(h.queue, h.jobs, processors, Config{ThrottleMin: 30 * time.Second, ThrottleMax: 45 * time.Second}, nil, nil)
	h.worker.sleep = func(_ context.Context, d time.Duration) error {
		h.mu.Lock()
		h.sleeps = append(h.sleeps, d)
		h.mu.Unlock()
		return nil
	}
	return h
}

func (h *harness) run(t *testing.T, jobs []*domain.Job) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		h.worker.Run(ctx)
		close(done)
	}()
	require.Eventually(t, func() bool {
		for _, job := range jobs {
			current, err := h.jobs.Get(context.Background(), job.ID)
			if err != nil || !current.Status.IsTerminal() {
				return false
			}
		}
		return true
	}, 2*time.Second, 5*time.Millisecond)
	cancel()
	<-done
}

func (h *harness) enqueue(t *testing.T, jobType domain.JobType, s step) *domain.Job {
	t.Helper()
	job, err := h.jobs.Enqueue(context.Background(), jobType, s)
	require.NoError(t, err)
	return job
}

func TestWorkerRunsJobsInOrderAndSurvivesFailures(t *testing.T) {
	h := newHarness(t, repository.NewMemoryJobRepository())
	jobs := []*domain.Job{
		h.enqueue(t, domain.JobTypeIssue, step{Name: "first"}),
		h.enqueue(t, domain.JobTypeVerify, step{Name: "broken", Fail: true}),
		h.enqueue(t, domain.JobTypeVerify, step{Name: "panics", Panic: true}),
		h.enqueue(t, domain.JobTypeUpdate, step{Name: "unhandled"}),
		h.enqueue(t, domain.JobTypeIssue, step{Name: "last"}),
	}
	h.run(t, jobs)

	assert.Equal(t, []string{"first", "broken", "panics", "last"}, h.order)

	want := []domain.JobStatus{
		domain.JobStatusCompleted,
		domain.JobStatusError,
		domain.JobStatusError,
		domain.JobStatusError,
		domain.JobStatusCompleted,
	}
	for i, job := range jobs {
		current, err := h.jobs.Get(context.Background(), job.ID)
		require.NoError(t, err)
		assert.Equal(t, want[i], current.Status, job.ID)
	}

	broken, err := h.jobs.Get(context.Background(), jobs[1].ID)
	require.NoError(t, err)
	var body domain.JobError
	require.NoError(t, json.Unmarshal(broken.Result, &body))
	assert.Equal(t, apperrors.CodeNotFound, body.Code)

	panicked, err := h.jobs.Get(context.Background(), jobs[2].ID)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(panicked.Result, &body))
	assert.Equal(t, apperrors.CodeInternal, body.Code)
	assert.Contains(t, body.Message, "bad job")
}

func TestWorkerThrottlesOnlyAfterSentEmail(t *testing.T) {
	h := newHarness(t, repository.NewMemoryJobRepository())
	jobs := []*domain.Job{
		h.enqueue(t, domain.JobTypeIssue, step{Name: "sent", EmailSent: true}),
		h.enqueue(t, domain.JobTypeIssue, step{Name: "not-sent"}),
		h.enqueue(t, domain.JobTypeVerify, step{Name: "verify"}),
		h.enqueue(t, domain.JobTypeIssue, step{Name: "failed", Fail: true, EmailSent: true}),
	}
	h.run(t, jobs)

	require.Len(t, h.sleeps, 1)
	assert.GreaterOrEqual(t, h.sleeps[0], 30*time.Second)
	assert.LessOrEqual(t, h.sleeps[0], 45*time.Second)
}

// flakyJobRepo fails the first n transitions with a connection error. When
// failOn is set only transitions into that status fail.
type flakyJobRepo struct {
	*repository.MemoryJobRepository
	mu       sync.Mutex
	failures int
	failOn   domain.JobStatus
}

func (r *flakyJobRepo) Transition(ctx context.Context, id string, next domain.JobStatus, result json.RawMessage) (*domain.Job, error) {
	r.mu.Lock()
	if r.failures > 0 && (r.failOn == "" || r.failOn == next) {
		r.failures--
		r.mu.Unlock()
		return nil, errors.New("connection refused")
	}
	r.mu.Unlock()
	return r.MemoryJobRepository.Transition(ctx, id, next, result)
}

func TestWorkerRetriesClaimWhileStoreIsDown(t *testing.T) {
	repo := &flakyJobRepo{MemoryJobRepository: repository.NewMemoryJobRepository(), failures: 2}
	h := newHarness(t, repo)
	job := h.enqueue(t, domain.JobTypeVerify, step{Name: "eventually"})
	h.run(t, []*domain.Job{job})

	assert.Equal(t, []string{"eventually"}, h.order)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, h.sleeps)
}

func TestWorkerRetriesResultWriteWhileStoreIsDown(t *testing.T) {
	repo := &flakyJobRepo{MemoryJobRepository: repository.NewMemoryJobRepository(), failures: 1, failOn: domain.JobStatusCompleted}
	h := newHarness(t, repo)
	job := h.enqueue(t, domain.JobTypeIssue, step{Name: "done"})
	h.run(t, []*domain.Job{job})

	current, err := h.jobs.Get(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusCompleted, current.Status)
	assert.JSONEq(t, `{"name":"done"}`, string(current.Result))
	assert.Equal(t, []time.Duration{time.Second}, h.sleeps)
	assert.Equal(t, []string{"done"}, h.order, "the job body runs once")
}

func TestWorkerRetriesFailureWriteWhileStoreIsDown(t *testing.T) {
	repo := &flakyJobRepo{MemoryJobRepository: repository.NewMemoryJobRepository(), failures: 3, failOn: domain.JobStatusError}
	h := newHarness(t, repo)
	job := h.enqueue(t, domain.JobTypeVerify, step{Name: "broken", Fail: true})
	h.run(t, []*domain.Job{job})

	current, err := h.jobs.Get(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusError, current.Status)
	var body domain.JobError
	require.NoError(t, json.Unmarshal(current.Result, &body))
	assert.Equal(t, apperrors.CodeNotFound, body.Code)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}, h.sleeps)
}

func TestUntilStoredStopsOnCancel(t *testing.T) {
	h := newHarness(t, repository.NewMemoryJobRepository())
	h.worker.sleep = sleepContext
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := h.worker.untilStored(ctx, "job-1", func() error {
		calls++
		return apperrors.NewDomainError(apperrors.CodeStoreUnavailable, "down", 503, nil)
	})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeStoreUnavailable))
	assert.Equal(t, 1, calls)
}

func TestRandomBetween(t *testing.T) {
	for i := 0; i < 100; i++ {
		d := randomBetween(30*time.Second, 45*time.Second)
		assert.GreaterOrEqual(t, d, 30*time.Second)
		assert.LessOrEqual(t, d, 45*time.Second)
	}
	assert.Equal(t, time.Second, randomBetween(time.Second, time.Second))
}
