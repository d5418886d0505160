// Package model defines domain models and data structures.
package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// AggregateType names the domain entity an outbox event describes.
type AggregateType string

const (
	// AggregateTypeBooking is emitted by the bookings table trigger.
	AggregateTypeBooking AggregateType = "booking"
	// AggregateTypeChatMessage is emitted by the chat_messages table trigger.
	AggregateTypeChatMessage AggregateType = "chat_message"
)

// EventType represents the kind of row change captured by the trigger.
type EventType string

const (
	EventTypeCreated EventType = "created"
	EventTypeUpdated EventType = "updated"
	EventTypeDeleted EventType = "deleted"
)

// OutboxEvent represents a captured state change waiting to be synced to the document store.
type OutboxEvent struct {
	ID            uuid.UUID       `json:"id"`
	AggregateType AggregateType   `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	EventType     EventType       `json:"event_type"`
	Payload       json.RawMessage `json:"payload"`
	CreatedAt     time.Time       `json:"created_at"`
	RetryCount    int             `json:"retry_count"`
	ProcessedAt   *time.Time      `json:"processed_at"`
	ErrorMessage  *string         `json:"error_message"`
}

// IsDue reports whether the dispatcher's selection would pick the event up.
func (e *OutboxEvent) IsDue(maxRetries int) bool {
	return e.ProcessedAt == nil && e.RetryCount < maxRetries
}

// DecodePayload unmarshals the event payload into dst.
func (e *OutboxEvent) DecodePayload(dst any) error {
	if len(e.Payload) == 0 {
		return ErrEmptyPayload
	}

	return json.Unmarshal(e.Payload, dst)
}

// DeadLetter records an event that exhausted its retries.
type DeadLetter struct {
	ID            uuid.UUID     `json:"id"`
	EventID       uuid.UUID     `json:"event_id"`
	AggregateType AggregateType `json:"aggregate_type"`
	AggregateID   string        `json:"aggregate_id"`
	EventType     EventType     `json:"event_type"`
	ErrorMessage  string        `json:"error_message"`
	RetryCount    int           `json:"retry_count"`
	FailedAt      time.Time     `json:"failed_at"`
}

// BatchSummary is the outcome of one dispatcher invocation.
type BatchSummary struct {
	Total   int `json:"total"`
	Success int `json:"success"`
	Failure int `json:"failure"`
}

// CleanupResult is the outcome of one retention sweep.
type CleanupResult struct {
	Deleted int64     `json:"deleted"`
	Cutoff  time.Time `json:"cutoffDate"`
}
