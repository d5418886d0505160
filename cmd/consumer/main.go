// Package main provides the dead-letter consumer that reports outbox events which exhausted their retries.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/rueidis"

	"github.com/jnst/booking-sync/internal/app"
	"github.com/jnst/booking-sync/internal/config"
	"github.com/jnst/booking-sync/internal/logger"
	"github.com/jnst/booking-sync/internal/model"
	"github.com/jnst/booking-sync/internal/repository"
)

const (
	consumerGroup     = "sync-alerts"
	redisBlockTimeout = 1000 // milliseconds
	readCount         = 10
	errorRetryDelay   = 1 * time.Second
	signalBufferSize  = 1
	exitCode          = 1
)

var (
	errMissingEventType = errors.New("missing event_type in message")
	errMissingPayload   = errors.New("missing payload in message")
)

// DeadLetterHandler processes entries of the dead-letter stream.
type DeadLetterHandler struct {
	redisClient rueidis.Client
	logger      *slog.Logger
}

// NewDeadLetterHandler creates a new dead-letter handler instance.
func NewDeadLetterHandler(redisClient rueidis.Client, logger *slog.Logger) *DeadLetterHandler {
	return &DeadLetterHandler{
		redisClient: redisClient,
		logger:      logger,
	}
}

// HandleDeadLetter reports one exhausted event.
func (h *DeadLetterHandler) HandleDeadLetter(_ context.Context, dl *model.DeadLetter) error {
	h.logger.Error("outbox event exhausted retries",
		slog.String("event_id", dl.EventID.String()),
		slog.String("aggregate_type", string(dl.AggregateType)),
		slog.String("aggregate_id", dl.AggregateID),
		slog.String("event_type", string(dl.EventType)),
		slog.Int("retry_count", dl.RetryCount),
		slog.Time("failed_at", dl.FailedAt),
		slog.String("error_message", dl.ErrorMessage),
	)

	return nil
}

func setupSignalHandling() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, signalBufferSize)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		slog.Info("shutdown signal received, stopping consumer")
		cancel()
	}()

	return ctx, cancel
}

func createConsumerGroup(ctx context.Context, redisClient rueidis.Client, streamKey, groupName string) {
	createGroupCmd := redisClient.B().XgroupCreate().Key(streamKey).Group(groupName).Id("0").Mkstream().Build()
	if err := redisClient.Do(ctx, createGroupCmd).Error(); err != nil {
		slog.Info("consumer group creation result (may already exist)", slog.String("error", err.Error()))
	}
}

func runConsumerLoop(ctx context.Context, handler *DeadLetterHandler, streamKey, groupName, consumerName string) {
	for {
		select {
		case <-ctx.Done():
			slog.Info("consumer stopped")
			return
		default:
			if err := handler.consumeMessages(ctx, streamKey, groupName, consumerName); err != nil {
				slog.Error("error consuming messages", slog.String("error", err.Error()))
				time.Sleep(errorRetryDelay)
			}
		}
	}
}

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		slog.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(exitCode)
	}

	// ログ設定
	loggerInstance := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(loggerInstance)

	if !cfg.RedisEnabled() {
		slog.Error("REDIS_ADDR is required for the dead-letter consumer")
		os.Exit(exitCode)
	}

	redisClient, err := app.SetupRedisClient(cfg)
	if err != nil {
		slog.Error("failed to connect to Redis", slog.String("error", err.Error()))
		os.Exit(exitCode)
	}
	defer redisClient.Close()

	handler := NewDeadLetterHandler(redisClient, loggerInstance)
	ctx, cancel := setupSignalHandling()
	defer cancel()

	streamKey := repository.DeadLetterStreamKey
	consumerName := cfg.ConsumerName

	createConsumerGroup(ctx, redisClient, streamKey, consumerGroup)

	slog.Info("starting dead-letter consumer",
		slog.String("service", "consumer"),
		slog.String("stream", streamKey),
		slog.String("group", consumerGroup),
		slog.String("consumer", consumerName),
	)

	runConsumerLoop(ctx, handler, streamKey, consumerGroup, consumerName)
}

func (h *DeadLetterHandler) readMessages(
	ctx context.Context,
	streamKey, groupName, consumerName string,
) (map[string][]rueidis.XRangeEntry, error) {
	readCmd := h.redisClient.B().Xreadgroup().Group(groupName, consumerName).
		Count(readCount).
		Block(redisBlockTimeout).
		Streams().
		Key(streamKey).
		Id(">").
		Build()

	result := h.redisClient.Do(ctx, readCmd)
	if err := result.Error(); err != nil {
		if rueidis.IsRedisNil(err) {
			return nil, nil // タイムアウト（正常）
		}

		return nil, err
	}

	return result.AsXRead()
}

func (h *DeadLetterHandler) acknowledgeMessage(ctx context.Context, streamKey, groupName, messageID string) {
	ackCmd := h.redisClient.B().Xack().Key(streamKey).Group(groupName).Id(messageID).Build()
	if err := h.redisClient.Do(ctx, ackCmd).Error(); err != nil {
		h.logger.Error("failed to ACK message",
			slog.String("message_id", messageID),
			slog.String("error", err.Error()),
		)
	} else {
		h.logger.Debug("ACKed message", slog.String("message_id", messageID))
	}
}

func (h *DeadLetterHandler) consumeMessages(ctx context.Context, streamKey, groupName, consumerName string) error {
	streams, err := h.readMessages(ctx, streamKey, groupName, consumerName)
	if err != nil {
		return err
	}

	for _, messages := range streams {
		for _, message := range messages {
			if err := h.processMessage(ctx, message); err != nil {
				h.logger.Error("failed to process message",
					slog.String("message_id", message.ID),
					slog.String("error", err.Error()),
				)

				continue
			}

			h.acknowledgeMessage(ctx, streamKey, groupName, message.ID)
		}
	}

	return nil
}

func (h *DeadLetterHandler) processMessage(ctx context.Context, message rueidis.XRangeEntry) error {
	eventType, ok := message.FieldValues["event_type"]
	if !ok {
		return errMissingEventType
	}

	payload, ok := message.FieldValues["payload"]
	if !ok {
		return errMissingPayload
	}

	if eventType != repository.DeadLetterEventType {
		h.logger.Warn("unknown event type", slog.String("event_type", eventType))
		return nil // 未知のイベントタイプは無視
	}

	var dl model.DeadLetter
	if err := json.Unmarshal([]byte(payload), &dl); err != nil {
		return fmt.Errorf("failed to parse dead letter payload: %w", err)
	}

	return h.HandleDeadLetter(ctx, &dl)
}
