package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/jnst/booking-sync/internal/clock"
	"github.com/jnst/booking-sync/internal/credentials"
	"github.com/jnst/booking-sync/internal/firestore"
	"github.com/jnst/booking-sync/internal/model"
	"github.com/jnst/booking-sync/internal/projector"
	"github.com/jnst/booking-sync/internal/repository"
)

const (
	DefaultBatchSize  = 10
	DefaultMaxRetries = 3
	defaultLockTTL    = 2 * time.Minute
	defaultClaimLease = time.Minute
)

// Outage errors abort a batch without touching any event.
var (
	ErrCredentialsUnavailable = errors.New("credentials unavailable")
	ErrStoreUnavailable       = errors.New("document store unavailable")
)

// SyncOptions tunes the dispatcher. Zero values select the defaults.
type SyncOptions struct {
	BatchSize   int
	MaxRetries  int
	ClaimEvents bool
	ClaimLease  time.Duration
	DeadLetter  bool
	LockTTL     time.Duration
}

// SyncServiceDeps collects the collaborators of SyncServiceImpl.
// Lock and DeadLetters are optional.
type SyncServiceDeps struct {
	OutboxRepo  repository.OutboxRepository
	TxManager   repository.TransactionManager
	Projectors  projector.Registry
	Tokens      firestore.TokenSource
	Lock        repository.BatchLock
	DeadLetters repository.DeadLetterPublisher
	Clock       clock.Clock
	Logger      *slog.Logger
}

// SyncServiceImpl implements SyncService.
type SyncServiceImpl struct {
	deps   SyncServiceDeps
	opts   SyncOptions
	tracer trace.Tracer
}

// NewSyncServiceImpl creates a new SyncService implementation.
func NewSyncServiceImpl(deps SyncServiceDeps, opts SyncOptions) SyncService {
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}

	if opts.MaxRetries <= 0 {
		opts.MaxRetries = DefaultMaxRetries
	}

	if opts.ClaimLease <= 0 {
		opts.ClaimLease = defaultClaimLease
	}

	if opts.LockTTL <= 0 {
		opts.LockTTL = defaultLockTTL
	}

	if deps.Clock == nil {
		deps.Clock = clock.System{}
	}

	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	return &SyncServiceImpl{
		deps:   deps,
		opts:   opts,
		tracer: otel.Tracer("booking-sync/sync_service"),
	}
}

// RunBatch selects due events, projects them concurrently and records each outcome.
func (s *SyncServiceImpl) RunBatch(ctx context.Context) (*model.BatchSummary, error) {
	ctx, span := s.tracer.Start(ctx, "SyncService.RunBatch")
	defer span.End()

	if s.deps.Lock != nil {
		release, acquired, err := s.deps.Lock.TryAcquire(ctx, s.opts.LockTTL)
		switch {
		case err != nil:
			s.deps.Logger.Warn("batch lock unavailable, running unguarded", slog.String("error", err.Error()))
		case !acquired:
			s.deps.Logger.Info("another batch is running, skipping")
			return &model.BatchSummary{}, nil
		default:
			defer release(context.WithoutCancel(ctx))
		}
	}

	events, err := s.selectDue(ctx)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	if len(events) == 0 {
		return &model.BatchSummary{}, nil
	}

	span.SetAttributes(attribute.Int("event_count", len(events)))

	// one exchange up front so concurrent projections share the cached token
	if _, err := s.deps.Tokens.AccessToken(ctx); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("%w: %w", ErrCredentialsUnavailable, err)
	}

	results := s.projectAll(ctx, events)

	for i, err := range results {
		if !projector.IsOutage(err) {
			continue
		}

		s.deps.Logger.Error("outage mid-batch, leaving events untouched",
			slog.String("event_id", events[i].ID.String()),
			slog.String("error", err.Error()),
		)
		span.RecordError(err)

		cause := ErrStoreUnavailable
		if errors.Is(err, credentials.ErrTokenExchange) {
			cause = ErrCredentialsUnavailable
		}

		return nil, fmt.Errorf("%w: %w", cause, err)
	}

	summary := &model.BatchSummary{Total: len(events)}

	var bookkeepingErrs []error

	for i, event := range events {
		if results[i] == nil {
			summary.Success++

			if err := s.deps.OutboxRepo.MarkProcessed(ctx, event.ID, s.deps.Clock.Now()); err != nil {
				bookkeepingErrs = append(bookkeepingErrs, err)
			}

			continue
		}

		summary.Failure++

		if err := s.recordFailure(ctx, event, results[i]); err != nil {
			bookkeepingErrs = append(bookkeepingErrs, err)
		}
	}

	span.SetAttributes(
		attribute.Int("success_count", summary.Success),
		attribute.Int("failure_count", summary.Failure),
	)

	s.deps.Logger.Info("batch processed",
		slog.Int("total", summary.Total),
		slog.Int("success", summary.Success),
		slog.Int("failure", summary.Failure),
	)

	if len(bookkeepingErrs) > 0 {
		err := errors.Join(bookkeepingErrs...)
		span.RecordError(err)

		return summary, fmt.Errorf("failed to record outcome of %d events: %w", len(bookkeepingErrs), err)
	}

	return summary, nil
}

func (s *SyncServiceImpl) selectDue(ctx context.Context) ([]*model.OutboxEvent, error) {
	if s.opts.ClaimEvents {
		return s.deps.OutboxRepo.ClaimDueEvents(ctx, s.opts.BatchSize, s.opts.MaxRetries, s.opts.ClaimLease)
	}

	return s.deps.OutboxRepo.GetDueEvents(ctx, s.opts.BatchSize, s.opts.MaxRetries)
}

// projectAll runs every projection to completion. A failing event never cancels its siblings.
func (s *SyncServiceImpl) projectAll(ctx context.Context, events []*model.OutboxEvent) []error {
	results := make([]error, len(events))

	var g errgroup.Group

	for i, event := range events {
		g.Go(func() error {
			results[i] = s.project(ctx, event)
			return nil
		})
	}

	_ = g.Wait()

	return results
}

func (s *SyncServiceImpl) project(ctx context.Context, event *model.OutboxEvent) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("projector panic: %v", r)
		}
	}()

	p, ok := s.deps.Projectors.Lookup(event.AggregateType)
	if !ok {
		s.deps.Logger.Warn("unknown aggregate type, skipping",
			slog.String("event_id", event.ID.String()),
			slog.String("aggregate_type", string(event.AggregateType)),
		)

		return nil
	}

	if err := p.Project(ctx, event); err != nil {
		s.deps.Logger.Error("failed to project event",
			slog.String("event_id", event.ID.String()),
			slog.String("aggregate_type", string(event.AggregateType)),
			slog.String("aggregate_id", event.AggregateID),
			slog.String("error", err.Error()),
		)

		return err
	}

	return nil
}

func (s *SyncServiceImpl) recordFailure(ctx context.Context, event *model.OutboxEvent, cause error) error {
	if !s.opts.DeadLetter {
		_, err := s.deps.OutboxRepo.MarkFailed(ctx, event.ID, cause.Error())
		return err
	}

	var dl *model.DeadLetter

	err := s.deps.TxManager.WithTransaction(ctx, func(ctx context.Context) error {
		retryCount, err := s.deps.OutboxRepo.MarkFailed(ctx, event.ID, cause.Error())
		if err != nil {
			return err
		}

		if retryCount < s.opts.MaxRetries {
			return nil
		}

		dl = &model.DeadLetter{
			ID:            uuid.New(),
			EventID:       event.ID,
			AggregateType: event.AggregateType,
			AggregateID:   event.AggregateID,
			EventType:     event.EventType,
			ErrorMessage:  cause.Error(),
			RetryCount:    retryCount,
			FailedAt:      s.deps.Clock.Now(),
		}

		return s.deps.OutboxRepo.InsertDeadLetter(ctx, dl)
	})
	if err != nil {
		return err
	}

	if dl == nil {
		return nil
	}

	s.deps.Logger.Warn("event exhausted retries",
		slog.String("event_id", event.ID.String()),
		slog.Int("retry_count", dl.RetryCount),
	)

	if s.deps.DeadLetters != nil {
		if err := s.deps.DeadLetters.PublishDeadLetter(ctx, dl); err != nil {
			s.deps.Logger.Warn("failed to publish dead letter",
				slog.String("event_id", event.ID.String()),
				slog.String("error", err.Error()),
			)
		}
	}

	return nil
}
