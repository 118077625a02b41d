package repository

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/qr-ticket-service/internal/domain"
)

func sampleJob() *domain.Job {
	created := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	return &domain.Job{
		ID:        "6f1c2a8e-0000-4000-8000-000000000001",
		Type:      domain.JobTypeVerify,
		Payload:   json.RawMessage(`{"ticket_number":"AB12CD34"}`),
		Status:    domain.JobStatusQueued,
		CreatedAt: created,
		UpdatedAt: created,
	}
}

func TestRedisJobCreateIndexesPending(t *testing.T) {
	client, mock := redismock.NewClientMock()
	repo := NewRedisJobRepository(client, time.Hour)
	job := sampleJob()

	data, err := json.Marshal(job)
	require.NoError(t, err)
	mock.ExpectSet(jobKey(job.ID), data, 0).SetVal("OK")
	mock.ExpectZAdd(pendingJobKey, redis.Z{Score: float64(job.CreatedAt.UnixMicro()), Member: job.ID}).SetVal(1)

	require.NoError(t, repo.Create(context.Background(), job))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisJobGet(t *testing.T) {
	client, mock := redismock.NewClientMock()
	repo := NewRedisJobRepository(client, time.Hour)
	job := sampleJob()

	data, err := json.Marshal(job)
	require.NoError(t, err)
	mock.ExpectGet(jobKey(job.ID)).SetVal(string(data))

	got, err := repo.Get(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, job.Type, got.Type)
	assert.Equal(t, job.Status, got.Status)
	assert.JSONEq(t, string(job.Payload), string(got.Payload))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisJobGetMissing(t *testing.T) {
	client, mock := redismock.NewClientMock()
	repo := NewRedisJobRepository(client, time.Hour)

	mock.ExpectGet(jobKey("nope")).RedisNil()

	_, err := repo.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisJobCreateSurfacesConnectionErrors(t *testing.T) {
	client, mock := redismock.NewClientMock()
	repo := NewRedisJobRepository(client, time.Hour)
	job := sampleJob()

	data, err := json.Marshal(job)
	require.NoError(t, err)
	mock.ExpectSet(jobKey(job.ID), data, 0).SetErr(assert.AnError)

	assert.ErrorIs(t, repo.Create(context.Background(), job), assert.AnError)
}
