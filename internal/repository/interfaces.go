// Package repository provides data access interfaces and implementations.
package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/jnst/booking-sync/internal/model"
)

// OutboxRepository defines methods for outbox event data access.
type OutboxRepository interface {
	// GetDueEvents returns up to limit unprocessed events with fewer than maxRetries attempts, oldest first.
	GetDueEvents(ctx context.Context, limit, maxRetries int) ([]*model.OutboxEvent, error)
	// ClaimDueEvents is GetDueEvents that also leases the rows so concurrent callers skip them.
	ClaimDueEvents(ctx context.Context, limit, maxRetries int, lease time.Duration) ([]*model.OutboxEvent, error)
	MarkProcessed(ctx context.Context, id uuid.UUID, processedAt time.Time) error
	// MarkFailed increments the retry count, records errMsg and returns the new count.
	MarkFailed(ctx context.Context, id uuid.UUID, errMsg string) (int, error)
	InsertDeadLetter(ctx context.Context, dl *model.DeadLetter) error
	DeleteProcessedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// TransactionManager defines methods for database transaction management.
type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// BatchLock serializes dispatcher invocations across processes.
type BatchLock interface {
	// TryAcquire takes the lock for ttl. When acquired is false another holder owns it.
	TryAcquire(ctx context.Context, ttl time.Duration) (release func(context.Context), acquired bool, err error)
}

// DeadLetterPublisher announces events that exhausted their retries.
type DeadLetterPublisher interface {
	PublishDeadLetter(ctx context.Context, dl *model.DeadLetter) error
}
