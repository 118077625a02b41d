package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/spec-kit/qr-ticket-service/internal/domain"
)

const (
	jobKeyPrefix  = "jobs:"
	pendingJobKey = "jobs:pending"
)

type redisJobRepository struct {
	client *redis.Client
	ttl    time.Duration
	now    func() time.Time
}

// NewRedisJobRepository stores job records as JSON strings. Unfinished
// jobs are also indexed in a sorted set scored by creation time so they
// can be recovered after a restart. Finished jobs expire after ttl.
func NewRedisJobRepository(client *redis.Client, ttl time.Duration) JobRepository {
	return &redisJobRepository{client: client, ttl: ttl, now: time.Now}
}

func jobKey(id string) string {
	return jobKeyPrefix + id
}

func (r *redisJobRepository) Create(ctx context.Context, job *domain.Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("encode job: %w", err)
	}
	if err := r.client.Set(ctx, jobKey(job.ID), data, 0).Err(); err != nil {
		return err
	}
	return r.client.ZAdd(ctx, pendingJobKey, redis.Z{
		Score:  float64(job.CreatedAt.UnixMicro()),
		Member: job.ID,
	}).Err()
}

func (r *redisJobRepository) Get(ctx context.Context, id string) (*domain.Job, error) {
	raw, err := r.client.Get(ctx, jobKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var job domain.Job
	if err := json.Unmarshal(raw, &job); err != nil {
		return nil, fmt.Errorf("decode job %s: %w", id, err)
	}
	return &job, nil
}

func (r *redisJobRepository) Transition(ctx context.Context, id string, next domain.JobStatus, result json.RawMessage) (*domain.Job, error) {
	key := jobKey(id)
	var updated domain.Job

	err := r.client.Watch(ctx, func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		if err := json.Unmarshal(raw, &updated); err != nil {
			return fmt.Errorf("decode job %s: %w", id, err)
		}
		if !updated.Status.CanTransitionTo(next) {
			return ErrInvalidTransition
		}
		updated.Status = next
		updated.UpdatedAt = r.now().UTC()
		if result != nil {
			updated.Result = result
		}
		data, err := json.Marshal(&updated)
		if err != nil {
			return fmt.Errorf("encode job: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			if next.IsTerminal() {
				pipe.Set(ctx, key, data, r.ttl)
				pipe.ZRem(ctx, pendingJobKey, id)
			} else {
				pipe.Set(ctx, key, data, 0)
			}
			return nil
		})
		return err
	}, key)
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

func (r *redisJobRepository) ListPending(ctx context.Context) ([]domain.Job, error) {
	ids, err := r.client.ZRange(ctx, pendingJobKey, 0, -1).Result()
	if err != nil {
		return nil, err
	}
	result := make([]domain.Job, 0, len(ids))
	for _, id := range ids {
		job, err := r.Get(ctx, id)
		if errors.Is(err, ErrNotFound) {
			r.client.ZRem(ctx, pendingJobKey, id)
			continue
		}
		if err != nil {
			return nil, err
		}
		if job.Status.IsTerminal() {
			r.client.ZRem(ctx, pendingJobKey, id)
			continue
		}
		result = append(result, *job)
	}
	return result, nil
}
