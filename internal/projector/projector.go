// Package projector turns outbox events into document store writes.
package projector

import (
	"context"
	"errors"
	"fmt"

	"github.com/jnst/booking-sync/internal/credentials"
	"github.com/jnst/booking-sync/internal/firestore"
	"github.com/jnst/booking-sync/internal/model"
)

// DocumentStore is the subset of the document store client projectors write through.
type DocumentStore interface {
	Patch(ctx context.Context, path string, fields map[string]firestore.Value) error
	Delete(ctx context.Context, path string) error
}

// Projector applies one outbox event to the document store.
type Projector interface {
	Project(ctx context.Context, event *model.OutboxEvent) error
}

// Registry routes events to projectors by aggregate type.
type Registry map[model.AggregateType]Projector

// Lookup returns the projector registered for aggregateType.
func (r Registry) Lookup(aggregateType model.AggregateType) (Projector, bool) {
	p, ok := r[aggregateType]
	return p, ok
}

// IsOutage reports whether err comes from a credential or document store outage
// rather than from the event. Such a failure is never recorded against the event.
func IsOutage(err error) bool {
	return errors.Is(err, credentials.ErrTokenExchange) || errors.Is(err, firestore.ErrUnavailable)
}

func decodePayload(event *model.OutboxEvent, dst any) error {
	if err := event.DecodePayload(dst); err != nil {
		return fmt.Errorf("failed to decode %s payload: %w", event.AggregateType, err)
	}

	return nil
}

func nullIfEmpty[S ~string](s S) any {
	if s == "" {
		return nil
	}

	return string(s)
}

// numberOr returns n unless it is missing or zero, in which case fallback.
func numberOr(n model.Number, fallback any) any {
	if n == "" {
		return fallback
	}

	v := n.JSON()
	if f, err := v.Float64(); err == nil && f == 0 {
		return fallback
	}

	return v
}

func timestampOrNull[S ~string](s S) any {
	if s == "" {
		return nil
	}

	return firestore.TimestampMarker(string(s))
}
