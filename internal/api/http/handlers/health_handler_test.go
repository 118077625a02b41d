package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/qr-ticket-service/internal/persistence"
)

type pingFunc func(context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

type fixedBacklog int

func (b fixedBacklog) Len() int { return int(b) }

func readiness(t *testing.T, deps map[string]persistence.Pinger) (int, map[string]any) {
	t.Helper()
	app := fiber.New()
	h := NewHealthHandler("qr-ticket-service", "test", deps, fixedBacklog(3), nil)
	app.Get("/ready", h.Ready)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/ready", nil), -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	body := map[string]any{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return resp.StatusCode, body
}

func TestReadyAllHealthy(t *testing.T) {
	status, body := readiness(t, map[string]persistence.Pinger{
		"postgres": pingFunc(func(context.Context) error { return nil }),
	})
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ready", body["status"])
	assert.EqualValues(t, 3, body["queued_jobs"])
}

func TestReadyReportsFailingBackend(t *testing.T) {
	status, body := readiness(t, map[string]persistence.Pinger{
		"postgres": pingFunc(func(context.Context) error { return nil }),
		"redis":    pingFunc(func(context.Context) error { return errors.New("connection refused") }),
	})
	assert.Equal(t, http.StatusServiceUnavailable, status)
	assert.Equal(t, "unavailable", body["status"])
	checks, _ := body["dependencies"].(map[string]any)
	assert.Equal(t, "ok", checks["postgres"])
	assert.Equal(t, "connection refused", checks["redis"])
}
