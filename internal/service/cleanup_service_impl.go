package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jnst/booking-sync/internal/clock"
	"github.com/jnst/booking-sync/internal/model"
	"github.com/jnst/booking-sync/internal/repository"
)

// DefaultRetention keeps processed events for a week.
const DefaultRetention = 7 * 24 * time.Hour

// CleanupServiceImpl implements CleanupService.
type CleanupServiceImpl struct {
	outboxRepo repository.OutboxRepository
	clock      clock.Clock
	retention  time.Duration
	logger     *slog.Logger
}

// NewCleanupServiceImpl creates a new CleanupService implementation.
func NewCleanupServiceImpl(
	outboxRepo repository.OutboxRepository,
	clk clock.Clock,
	retention time.Duration,
	logger *slog.Logger,
) CleanupService {
	if retention <= 0 {
		retention = DefaultRetention
	}

	return &CleanupServiceImpl{
		outboxRepo: outboxRepo,
		clock:      clk,
		retention:  retention,
		logger:     logger,
	}
}

// Cleanup deletes events processed before now minus the retention.
func (s *CleanupServiceImpl) Cleanup(ctx context.Context) (*model.CleanupResult, error) {
	cutoff := s.clock.Now().Add(-s.retention).UTC()

	deleted, err := s.outboxRepo.DeleteProcessedBefore(ctx, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to clean up outbox: %w", err)
	}

	s.logger.Info("outbox cleanup finished",
		slog.Int64("deleted", deleted),
		slog.Time("cutoff", cutoff),
	)

	return &model.CleanupResult{Deleted: deleted, Cutoff: cutoff}, nil
}
