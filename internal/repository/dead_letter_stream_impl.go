package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/rueidis"

	"github.com/jnst/booking-sync/internal/model"
)

const (
	// DeadLetterStreamKey is the Redis stream dead-lettered events are announced on.
	DeadLetterStreamKey = "outbox:deadletter"
	// DeadLetterEventType tags dead-letter stream entries.
	DeadLetterEventType = "outbox_dead_letter"
)

// DeadLetterStreamImpl implements DeadLetterPublisher with Redis Streams.
type DeadLetterStreamImpl struct {
	redisClient rueidis.Client
	streamKey   string
}

// NewDeadLetterStreamImpl creates a new DeadLetterPublisher implementation.
func NewDeadLetterStreamImpl(redisClient rueidis.Client) DeadLetterPublisher {
	return &DeadLetterStreamImpl{redisClient: redisClient, streamKey: DeadLetterStreamKey}
}

// PublishDeadLetter appends dl to the dead-letter stream.
func (p *DeadLetterStreamImpl) PublishDeadLetter(ctx context.Context, dl *model.DeadLetter) error {
	payload, err := json.Marshal(dl)
	if err != nil {
		return fmt.Errorf("failed to marshal dead letter: %w", err)
	}

	cmd := p.redisClient.B().Xadd().Key(p.streamKey).Id("*").
		FieldValue().FieldValue("event_type", DeadLetterEventType).
		FieldValue("aggregate_id", dl.AggregateID).
		FieldValue("payload", string(payload)).
		Build()

	if err := p.redisClient.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("failed to publish dead letter %s: %w", dl.EventID, err)
	}

	return nil
}
