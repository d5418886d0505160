// Package service provides business logic layer implementations.
package service

import (
	"context"

	"github.com/jnst/booking-sync/internal/model"
)

// SyncService defines the outbox to document store dispatcher.
type SyncService interface {
	// RunBatch projects one bounded batch of due events and records each outcome.
	RunBatch(ctx context.Context) (*model.BatchSummary, error)
}

// CleanupService defines retention of processed outbox events.
type CleanupService interface {
	Cleanup(ctx context.Context) (*model.CleanupResult, error)
}
