package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/jnst/booking-sync/internal/model"
)

const outboxColumns = `id, aggregate_type, aggregate_id, event_type, payload, created_at, retry_count, processed_at, error_message`

// OutboxRepositoryImpl implements OutboxRepository using PostgreSQL.
type OutboxRepositoryImpl struct {
	pool   *pgxpool.Pool
	tracer trace.Tracer
}

// NewOutboxRepositoryImpl creates a new OutboxRepository implementation.
func NewOutboxRepositoryImpl(pool *pgxpool.Pool) OutboxRepository {
	return &OutboxRepositoryImpl{
		pool:   pool,
		tracer: otel.Tracer("booking-sync/outbox_repository"),
	}
}

// GetDueEvents retrieves events that are neither processed nor out of retries.
func (r *OutboxRepositoryImpl) GetDueEvents(ctx context.Context, limit, maxRetries int) ([]*model.OutboxEvent, error) {
	ctx, span := r.tracer.Start(ctx, "OutboxRepository.GetDueEvents")
	defer span.End()

	span.SetAttributes(attribute.Int("batch_size", limit))

	query := `
		SELECT ` + outboxColumns + `
		FROM outbox
		WHERE processed_at IS NULL AND retry_count < $2
		ORDER BY created_at ASC
		LIMIT $1
	`

	rows, err := conn(ctx, r.pool).Query(ctx, query, limit, maxRetries)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to query due events: %w", err)
	}

	events, err := scanEvents(rows)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	span.SetAttributes(attribute.Int("result_count", len(events)))

	return events, nil
}

// ClaimDueEvents selects due events that are not leased and leases them in the same statement.
func (r *OutboxRepositoryImpl) ClaimDueEvents(
	ctx context.Context, limit, maxRetries int, lease time.Duration,
) ([]*model.OutboxEvent, error) {
	ctx, span := r.tracer.Start(ctx, "OutboxRepository.ClaimDueEvents")
	defer span.End()

	span.SetAttributes(
		attribute.Int("batch_size", limit),
		attribute.String("lease", lease.String()),
	)

	query := `
		UPDATE outbox
		SET claimed_until = NOW() + make_interval(secs => $3)
		WHERE id IN (
			SELECT id
			FROM outbox
			WHERE processed_at IS NULL
				AND retry_count < $2
				AND (claimed_until IS NULL OR claimed_until < NOW())
			ORDER BY created_at ASC
			LIMIT $1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING ` + outboxColumns

	rows, err := conn(ctx, r.pool).Query(ctx, query, limit, maxRetries, lease.Seconds())
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to claim due events: %w", err)
	}

	events, err := scanEvents(rows)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	// RETURNING does not preserve the subquery's order.
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].CreatedAt.Before(events[j].CreatedAt)
	})

	span.SetAttributes(attribute.Int("result_count", len(events)))

	return events, nil
}

// MarkProcessed records a successful sync.
func (r *OutboxRepositoryImpl) MarkProcessed(ctx context.Context, id uuid.UUID, processedAt time.Time) error {
	ctx, span := r.tracer.Start(ctx, "OutboxRepository.MarkProcessed")
	defer span.End()

	span.SetAttributes(attribute.String("event_id", id.String()))

	query := `
		UPDATE outbox
		SET processed_at = $2, claimed_until = NULL
		WHERE id = $1
	`

	tag, err := conn(ctx, r.pool).Exec(ctx, query, id, processedAt)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to mark event %s processed: %w", id, err)
	}

	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", model.ErrEventNotFound, id)
	}

	return nil
}

// MarkFailed increments the retry count and stores the failure message.
func (r *OutboxRepositoryImpl) MarkFailed(ctx context.Context, id uuid.UUID, errMsg string) (int, error) {
	ctx, span := r.tracer.Start(ctx, "OutboxRepository.MarkFailed")
	defer span.End()

	span.SetAttributes(
		attribute.String("event_id", id.String()),
		attribute.String("outbox.error_message", errMsg),
	)

	query := `
		UPDATE outbox
		SET retry_count = retry_count + 1,
			error_message = $2,
			claimed_until = NULL
		WHERE id = $1
		RETURNING retry_count
	`

	var retryCount int
	if err := conn(ctx, r.pool).QueryRow(ctx, query, id, errMsg).Scan(&retryCount); err != nil {
		span.RecordError(err)

		if errors.Is(err, pgx.ErrNoRows) {
			return 0, fmt.Errorf("%w: %s", model.ErrEventNotFound, id)
		}

		return 0, fmt.Errorf("failed to mark event %s failed: %w", id, err)
	}

	return retryCount, nil
}

// InsertDeadLetter stores an exhausted event for offline inspection.
func (r *OutboxRepositoryImpl) InsertDeadLetter(ctx context.Context, dl *model.DeadLetter) error {
	ctx, span := r.tracer.Start(ctx, "OutboxRepository.InsertDeadLetter")
	defer span.End()

	span.SetAttributes(attribute.String("event_id", dl.EventID.String()))

	query := `
		INSERT INTO outbox_dead_letter
			(id, event_id, aggregate_type, aggregate_id, event_type, error_message, retry_count, failed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (event_id) DO NOTHING
	`

	_, err := conn(ctx, r.pool).Exec(ctx, query,
		dl.ID,
		dl.EventID,
		string(dl.AggregateType),
		dl.AggregateID,
		string(dl.EventType),
		dl.ErrorMessage,
		dl.RetryCount,
		dl.FailedAt,
	)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to insert dead letter for %s: %w", dl.EventID, err)
	}

	return nil
}

// DeleteProcessedBefore removes processed events older than cutoff.
func (r *OutboxRepositoryImpl) DeleteProcessedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	ctx, span := r.tracer.Start(ctx, "OutboxRepository.DeleteProcessedBefore")
	defer span.End()

	query := `
		DELETE FROM outbox
		WHERE processed_at IS NOT NULL AND processed_at < $1
	`

	tag, err := conn(ctx, r.pool).Exec(ctx, query, cutoff)
	if err != nil {
		span.RecordError(err)
		return 0, fmt.Errorf("failed to delete processed events: %w", err)
	}

	span.SetAttributes(attribute.Int64("deleted_count", tag.RowsAffected()))

	return tag.RowsAffected(), nil
}

func scanEvents(rows pgx.Rows) ([]*model.OutboxEvent, error) {
	defer rows.Close()

	var events []*model.OutboxEvent

	for rows.Next() {
		var (
			e             model.OutboxEvent
			aggregateType string
			eventType     string
		)

		if err := rows.Scan(
			&e.ID,
			&aggregateType,
			&e.AggregateID,
			&eventType,
			&e.Payload,
			&e.CreatedAt,
			&e.RetryCount,
			&e.ProcessedAt,
			&e.ErrorMessage,
		); err != nil {
			return nil, fmt.Errorf("error scanning event: %w", err)
		}

		e.AggregateType = model.AggregateType(aggregateType)
		e.EventType = model.EventType(eventType)
		events = append(events, &e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating events: %w", err)
	}

	return events, nil
}
