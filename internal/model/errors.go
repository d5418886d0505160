package model

import "errors"

var (
	// ErrEmptyPayload is returned when an outbox event carries no payload.
	ErrEmptyPayload = errors.New("event payload is empty")
	// ErrMissingBookingID is returned when a chat message payload has no parent booking.
	ErrMissingBookingID = errors.New("booking id is required")
	// ErrMissingAggregateID is returned when an event has no aggregate id to address a document by.
	ErrMissingAggregateID = errors.New("aggregate id is required")
	// ErrUnsupportedEventType is returned for event types other than created, updated and deleted.
	ErrUnsupportedEventType = errors.New("unsupported event type")
	// ErrEventNotFound is returned when an outbox row no longer exists.
	ErrEventNotFound = errors.New("outbox event not found")
)
