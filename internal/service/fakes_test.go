package service

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jnst/booking-sync/internal/model"
)

// memoryOutbox is an in-memory OutboxRepository honoring the due predicate.
type memoryOutbox struct {
	mu          sync.Mutex
	events      map[uuid.UUID]*model.OutboxEvent
	deadLetters []*model.DeadLetter
	markErr     error
	claimCalls  int
}

func newMemoryOutbox(events ...*model.OutboxEvent) *memoryOutbox {
	m := &memoryOutbox{events: make(map[uuid.UUID]*model.OutboxEvent)}
	for _, e := range events {
		m.events[e.ID] = e
	}

	return m
}

func (m *memoryOutbox) GetDueEvents(_ context.Context, limit, maxRetries int) ([]*model.OutboxEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var due []*model.OutboxEvent

	for _, e := range m.events {
		if e.IsDue(maxRetries) {
			cp := *e
			due = append(due, &cp)
		}
	}

	sort.Slice(due, func(i, j int) bool { return due[i].CreatedAt.Before(due[j].CreatedAt) })

	if len(due) > limit {
		due = due[:limit]
	}

	return due, nil
}

func (m *memoryOutbox) ClaimDueEvents(ctx context.Context, limit, maxRetries int, _ time.Duration) ([]*model.OutboxEvent, error) {
	m.mu.Lock()
	m.claimCalls++
	m.mu.Unlock()

	return m.GetDueEvents(ctx, limit, maxRetries)
}

func (m *memoryOutbox) MarkProcessed(_ context.Context, id uuid.UUID, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.markErr != nil {
		return m.markErr
	}

	e, ok := m.events[id]
	if !ok {
		return model.ErrEventNotFound
	}

	e.ProcessedAt = &at

	return nil
}

func (m *memoryOutbox) MarkFailed(_ context.Context, id uuid.UUID, errMsg string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.events[id]
	if !ok {
		return 0, model.ErrEventNotFound
	}

	e.RetryCount++
	e.ErrorMessage = &errMsg

	return e.RetryCount, nil
}

func (m *memoryOutbox) InsertDeadLetter(_ context.Context, dl *model.DeadLetter) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.deadLetters = append(m.deadLetters, dl)

	return nil
}

func (m *memoryOutbox) DeleteProcessedBefore(_ context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var deleted int64

	for id, e := range m.events {
		if e.ProcessedAt != nil && e.ProcessedAt.Before(cutoff) {
			delete(m.events, id)
			deleted++
		}
	}

	return deleted, nil
}

func (m *memoryOutbox) get(id uuid.UUID) model.OutboxEvent {
	m.mu.Lock()
	defer m.mu.Unlock()

	return *m.events[id]
}

type inlineTx struct{ calls int }

func (t *inlineTx) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	t.calls++
	return fn(ctx)
}

type projectFunc func(ctx context.Context, event *model.OutboxEvent) error

func (f projectFunc) Project(ctx context.Context, event *model.OutboxEvent) error {
	return f(ctx, event)
}

// recordingProjector counts calls and fails for the aggregate ids in fail.
type recordingProjector struct {
	mu    sync.Mutex
	calls []string
	fail  map[string]error
}

func (p *recordingProjector) Project(_ context.Context, event *model.OutboxEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.calls = append(p.calls, event.AggregateID)

	return p.fail[event.AggregateID]
}

type stubTokens struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (s *stubTokens) AccessToken(context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls++
	if s.err != nil {
		return "", s.err
	}

	return "token", nil
}

type stubLock struct {
	acquired bool
	err      error
	released int
}

func (l *stubLock) TryAcquire(context.Context, time.Duration) (func(context.Context), bool, error) {
	if l.err != nil || !l.acquired {
		return nil, false, l.err
	}

	return func(context.Context) { l.released++ }, true, nil
}

type recordingPublisher struct {
	published []*model.DeadLetter
	err       error
}

func (p *recordingPublisher) PublishDeadLetter(_ context.Context, dl *model.DeadLetter) error {
	p.published = append(p.published, dl)
	return p.err
}

var errProjection = errors.New("projection failed")

func newTestLogger() (*slog.Logger, *bytes.Buffer) {
	var buf bytes.Buffer

	return slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})), &buf
}

func newEvent(aggregateType model.AggregateType, aggregateID string, createdAt time.Time) *model.OutboxEvent {
	return &model.OutboxEvent{
		ID:            uuid.New(),
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		EventType:     model.EventTypeUpdated,
		Payload:       []byte(`{}`),
		CreatedAt:     createdAt,
	}
}
