package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jnst/booking-sync/internal/model"
)

type stubSync struct {
	summary *model.BatchSummary
	err     error
	calls   int
	ctxErr  error
}

func (s *stubSync) RunBatch(ctx context.Context) (*model.BatchSummary, error) {
	s.calls++
	s.ctxErr = ctx.Err()

	return s.summary, s.err
}

type stubCleanup struct {
	result *model.CleanupResult
	err    error
}

func (s *stubCleanup) Cleanup(context.Context) (*model.CleanupResult, error) {
	return s.result, s.err
}

func serve(t *testing.T, server *SyncServer, method, path string) *httptest.ResponseRecorder {
	t.Helper()

	rec := httptest.NewRecorder()
	server.Routes().ServeHTTP(rec, httptest.NewRequest(method, path, nil))

	return rec
}

func TestSyncReturnsSummary(t *testing.T) {
	sync := &stubSync{summary: &model.BatchSummary{Total: 10, Success: 9, Failure: 1}}
	rec := serve(t, NewSyncServer(sync, &stubCleanup{}), http.MethodPost, "/sync")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, applicationJSON, rec.Header().Get(contentTypeJSON))
	assert.JSONEq(t, `{"message":"sync completed","total":10,"success":9,"failure":1}`, rec.Body.String())
	assert.Equal(t, 1, sync.calls)
}

func TestSyncRunsDetachedFromRequest(t *testing.T) {
	sync := &stubSync{summary: &model.BatchSummary{Total: 1, Success: 1}}
	server := NewSyncServer(sync, &stubCleanup{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rec := httptest.NewRecorder()
	server.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/sync", nil).WithContext(ctx))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, sync.calls)
	assert.NoError(t, sync.ctxErr)
}

func TestSyncNoPendingEvents(t *testing.T) {
	rec := serve(t, NewSyncServer(&stubSync{summary: &model.BatchSummary{}}, &stubCleanup{}), http.MethodGet, "/sync")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"message":"no pending events","total":0,"success":0,"failure":0}`, rec.Body.String())
}

func TestSyncFatalError(t *testing.T) {
	sync := &stubSync{err: errors.New("credentials unavailable: token exchange failed")}
	rec := serve(t, NewSyncServer(sync, &stubCleanup{}), http.MethodPost, "/sync")

	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	var body ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Contains(t, body.Error, "token exchange failed")
}

func TestSyncMethodNotAllowed(t *testing.T) {
	sync := &stubSync{}
	rec := serve(t, NewSyncServer(sync, &stubCleanup{}), http.MethodDelete, "/sync")

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Zero(t, sync.calls)
}

func TestCleanup(t *testing.T) {
	cutoff := time.Date(2025, 10, 13, 0, 0, 0, 0, time.UTC)
	cleanup := &stubCleanup{result: &model.CleanupResult{Deleted: 42, Cutoff: cutoff}}
	rec := serve(t, NewSyncServer(&stubSync{}, cleanup), http.MethodPost, "/cleanup")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"message":"cleanup completed","deleted":42,"cutoffDate":"2025-10-13T00:00:00Z"}`, rec.Body.String())
}

func TestCleanupError(t *testing.T) {
	rec := serve(t, NewSyncServer(&stubSync{}, &stubCleanup{err: errors.New("db down")}), http.MethodPost, "/cleanup")

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"db down"}`, rec.Body.String())
}

func TestHealthCheck(t *testing.T) {
	rec := serve(t, NewSyncServer(&stubSync{}, &stubCleanup{}), http.MethodGet, "/health")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}
