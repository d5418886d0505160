package projector

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jnst/booking-sync/internal/firestore"
)

type storeCall struct {
	method string
	path   string
	body   []byte
}

// fakeStore records writes and fails the paths listed in failures.
type fakeStore struct {
	mu       sync.Mutex
	calls    []storeCall
	docs     map[string][]byte
	failures map[string]error
}

func newFakeStore() *fakeStore {
	return &fakeStore{docs: map[string][]byte{}, failures: map[string]error{}}
}

func (s *fakeStore) Patch(_ context.Context, path string, fields map[string]firestore.Value) error {
	body, err := json.Marshal(map[string]any{"fields": fields})
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls = append(s.calls, storeCall{method: "PATCH", path: path, body: body})
	if err := s.failures[path]; err != nil {
		return err
	}

	s.docs[path] = body

	return nil
}

func (s *fakeStore) Delete(_ context.Context, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls = append(s.calls, storeCall{method: "DELETE", path: path})
	if err := s.failures[path]; err != nil {
		return err
	}

	delete(s.docs, path)

	return nil
}

func (s *fakeStore) fields(t *testing.T, path string) map[string]any {
	t.Helper()

	s.mu.Lock()
	defer s.mu.Unlock()

	body, ok := s.docs[path]
	require.True(t, ok, "document %s not written", path)

	var doc struct {
		Fields map[string]any `json:"fields"`
	}
	require.NoError(t, json.Unmarshal(body, &doc))

	return doc.Fields
}

func newTestLogger() (*slog.Logger, *bytes.Buffer) {
	var buf bytes.Buffer

	return slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})), &buf
}
