package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func checkReturning(err error) func(context.Context) error {
	return func(context.Context) error { return err }
}

func readiness(t *testing.T, h *HealthHandler) (int, ReadinessResponse) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.Readiness(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))

	var resp ReadinessResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return rec.Code, resp
}

func TestLiveness(t *testing.T) {
	h := NewHealthHandler("dev", "test")

	rec := httptest.NewRecorder()
	h.Liveness(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))

	assert.Equal(t, http.StatusOK, rec.Code)

	var resp LivenessResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "dev", resp.Env)
}

func TestReadinessAllUp(t *testing.T) {
	h := NewHealthHandler("dev", "test",
		Dependency{Name: "postgres", Critical: true, Check: checkReturning(nil)},
		Dependency{Name: "redis", Check: checkReturning(nil)},
	)

	code, resp := readiness(t, h)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "ok", resp.Dependencies["postgres"])
	assert.Equal(t, "ok", resp.Dependencies["redis"])
}

func TestReadinessDegradedWhenNonCriticalDown(t *testing.T) {
	h := NewHealthHandler("dev", "test",
		Dependency{Name: "postgres", Critical: true, Check: checkReturning(nil)},
		Dependency{Name: "redis", Check: checkReturning(errors.New("connection refused"))},
	)

	code, resp := readiness(t, h)
	assert.Equal(t, http.StatusOK, code, "degraded still serves traffic")
	assert.Equal(t, "degraded", resp.Status)
	assert.Equal(t, "down", resp.Dependencies["redis"])
}

func TestReadinessErrorWhenCriticalDown(t *testing.T) {
	h := NewHealthHandler("dev", "test",
		Dependency{Name: "postgres", Critical: true, Check: checkReturning(errors.New("connection refused"))},
		Dependency{Name: "redis", Check: checkReturning(nil)},
	)

	code, resp := readiness(t, h)
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "error", resp.Status)
	assert.Equal(t, "down", resp.Dependencies["postgres"])
}
