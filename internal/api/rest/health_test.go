package rest

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type stubPinger struct {
	err error
}

func (p stubPinger) Ping(ctx context.Context) error { return p.err }

func decodeHealth(t *testing.T, rec *httptest.ResponseRecorder) healthResponse {
	t.Helper()
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	var resp healthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestHealthLiveness(t *testing.T) {
	h := NewHealthHandler(testLogger())
	h.Register("database", stubPinger{err: errors.New("down")})

	rec := httptest.NewRecorder()
	h.Liveness(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeHealth(t, rec)
	assert.Equal(t, statusOK, resp.Status)
	assert.Empty(t, resp.Checks, "liveness never consults dependencies")
}

func TestHealthReadiness(t *testing.T) {
	t.Run("all dependencies reachable", func(t *testing.T) {
		h := NewHealthHandler(testLogger())
		h.Register("database", stubPinger{})
		h.Register("bus", stubPinger{})

		rec := httptest.NewRecorder()
		h.Readiness(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

		require.Equal(t, http.StatusOK, rec.Code)
		resp := decodeHealth(t, rec)
		assert.Equal(t, statusOK, resp.Status)
		assert.Equal(t, map[string]string{"database": "ok", "bus": "ok"}, resp.Checks)
	})

	t.Run("one failing dependency turns the response 503", func(t *testing.T) {
		h := NewHealthHandler(testLogger())
		h.Register("database", stubPinger{})
		h.Register("bus", stubPinger{err: errors.New("connection refused")})

		rec := httptest.NewRecorder()
		h.Readiness(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

		require.Equal(t, http.StatusServiceUnavailable, rec.Code)
		resp := decodeHealth(t, rec)
		assert.Equal(t, statusUnavailable, resp.Status)
		assert.Equal(t, "ok", resp.Checks["database"])
		assert.Contains(t, resp.Checks["bus"], "connection refused")
	})

	t.Run("no checks registered", func(t *testing.T) {
		h := NewHealthHandler(testLogger())

		rec := httptest.NewRecorder()
		h.Readiness(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

		require.Equal(t, http.StatusOK, rec.Code)
	})
}
