package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"matrix/internal/participant"
	"matrix/internal/repository/memory"
	"matrix/pkg/logger"
)

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func newRouter(t *testing.T, deps map[string]Pinger) http.Handler {
	t.Helper()
	store := memory.New()
	svc := participant.NewService(store, logger.NewNop())
	require.NoError(t, svc.SeedRoot(context.Background()))
	_, err := svc.Register(context.Background(), &participant.RegisterRequest{ID: 2, ReferrerID: 1})
	require.NoError(t, err)
	if deps == nil {
		deps = map[string]Pinger{"store": store}
	}
	return New(svc, deps, logger.NewNop()).Router()
}

func get(h http.Handler, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestHealth(t *testing.T) {
	rec := get(newRouter(t, nil), "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "healthy")
}

func TestReady(t *testing.T) {
	rec := get(newRouter(t, nil), "/ready")
	assert.Equal(t, http.StatusOK, rec.Code)

	down := map[string]Pinger{"redis": pingFunc(func(ctx context.Context) error { return errors.New("refused") })}
	rec = get(newRouter(t, down), "/ready")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "not_ready", body["status"])
	assert.Equal(t, map[string]interface{}{"redis": "down"}, body["checks"])
}

func TestMetricsEndpoint(t *testing.T) {
	rec := get(newRouter(t, nil), "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestGetParticipant(t *testing.T) {
	h := newRouter(t, nil)

	rec := get(h, "/api/v1/participants/2")
	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, float64(2), body["id"])
	assert.Equal(t, float64(1), body["referrer_id"])
	assert.Equal(t, "0.00", body["balance"])

	assert.Equal(t, http.StatusNotFound, get(h, "/api/v1/participants/9").Code)
	assert.Equal(t, http.StatusBadRequest, get(h, "/api/v1/participants/0").Code)
	assert.Equal(t, http.StatusNotFound, get(h, "/api/v1/participants/abc").Code)
}

func TestGetTables(t *testing.T) {
	rec := get(newRouter(t, nil), "/api/v1/participants/1/tables")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Tables []struct {
			Tier  int    `json:"tier"`
			State string `json:"state"`
		} `json:"tables"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Tables, 12)
	assert.Equal(t, 1, body.Tables[0].Tier)
	assert.Equal(t, "empty", body.Tables[0].State)
}

func TestGetPayouts_Empty(t *testing.T) {
	rec := get(newRouter(t, nil), "/api/v1/participants/2/payouts")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"payouts":[]}`, rec.Body.String())
}
