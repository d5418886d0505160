package projector

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jnst/booking-sync/internal/clock"
	"github.com/jnst/booking-sync/internal/firestore"
	"github.com/jnst/booking-sync/internal/model"
)

const (
	// ChatRoomCollection holds one summary document per booking conversation.
	ChatRoomCollection = "chat_rooms"
	messagesCollection = "messages"
)

// ChatRoomPath returns the path of a booking's conversation summary document.
func ChatRoomPath(bookingID string) string {
	return ChatRoomCollection + "/" + bookingID
}

// ChatMessagePath returns the path of one message inside a conversation.
func ChatMessagePath(bookingID, messageID string) string {
	return ChatRoomPath(bookingID) + "/" + messagesCollection + "/" + messageID
}

// ChatMessageProjector writes chat messages and keeps the room summary current.
type ChatMessageProjector struct {
	store  DocumentStore
	clock  clock.Clock
	logger *slog.Logger
}

// NewChatMessageProjector creates a new chat message projector.
func NewChatMessageProjector(store DocumentStore, clk clock.Clock, logger *slog.Logger) *ChatMessageProjector {
	return &ChatMessageProjector{store: store, clock: clk, logger: logger}
}

// Project writes or deletes the message document. The room summary update is best effort.
func (p *ChatMessageProjector) Project(ctx context.Context, event *model.OutboxEvent) error {
	var payload model.ChatMessagePayload
	if err := decodePayload(event, &payload); err != nil {
		return err
	}

	if payload.BookingID == "" {
		return model.ErrMissingBookingID
	}

	switch event.EventType {
	case model.EventTypeDeleted:
		messageID := event.AggregateID
		if messageID == "" {
			return model.ErrMissingAggregateID
		}

		path := ChatMessagePath(string(payload.BookingID), messageID)
		if err := p.store.Delete(ctx, path); err != nil {
			return fmt.Errorf("failed to delete message %s: %w", path, err)
		}

		return nil
	case model.EventTypeCreated, model.EventTypeUpdated:
		return p.upsert(ctx, event, &payload)
	default:
		return fmt.Errorf("%w: %q", model.ErrUnsupportedEventType, event.EventType)
	}
}

func (p *ChatMessageProjector) upsert(ctx context.Context, event *model.OutboxEvent, payload *model.ChatMessagePayload) error {
	messageID := string(payload.ID)
	if messageID == "" {
		messageID = event.AggregateID
	}

	if messageID == "" {
		return model.ErrMissingAggregateID
	}

	messageFields, err := firestore.EncodeFields(ChatMessageDocument(messageID, payload))
	if err != nil {
		return fmt.Errorf("failed to encode message %s: %w", messageID, err)
	}

	path := ChatMessagePath(string(payload.BookingID), messageID)
	if err := p.store.Patch(ctx, path, messageFields); err != nil {
		return fmt.Errorf("failed to upsert message %s: %w", path, err)
	}

	roomPath := ChatRoomPath(string(payload.BookingID))

	roomFields, err := firestore.EncodeFields(ChatRoomDocument(payload, p.clock.Now()))
	if err == nil {
		err = p.store.Patch(ctx, roomPath, roomFields)
	}

	if IsOutage(err) {
		return fmt.Errorf("failed to update chat room %s: %w", roomPath, err)
	}

	if err != nil {
		// the message is stored; a stale summary is tolerated
		p.logger.Warn("chat room summary update failed",
			slog.String("path", roomPath),
			slog.String("message_id", messageID),
			slog.String("error", err.Error()),
		)
	}

	return nil
}

// ChatMessageDocument shapes a chat message row into its document.
func ChatMessageDocument(messageID string, m *model.ChatMessagePayload) map[string]any {
	var text any
	if m.MessageText != nil {
		text = string(*m.MessageText)
	}

	return map[string]any{
		"id":             messageID,
		"senderId":       nullIfEmpty(m.SenderID),
		"receiverId":     nullIfEmpty(m.ReceiverID),
		"senderName":     string(m.SenderName),
		"receiverName":   string(m.ReceiverName),
		"messageText":    text,
		"translatedText": nullIfEmpty(m.TranslatedText),
		"createdAt":      timestampOrNull(m.CreatedAt),
		"readAt":         timestampOrNull(m.ReadAt),
	}
}

// ChatRoomDocument shapes the conversation summary refreshed on every message.
func ChatRoomDocument(m *model.ChatMessagePayload, now time.Time) map[string]any {
	booking := model.ChatBookingData{}
	if m.BookingData != nil {
		booking = *m.BookingData
	}

	lastMessage := ""
	if m.MessageText != nil {
		lastMessage = string(*m.MessageText)
	}

	return map[string]any{
		"bookingId":       string(m.BookingID),
		"customerId":      string(booking.CustomerID),
		"driverId":        string(booking.DriverID),
		"customerName":    string(booking.CustomerName),
		"driverName":      string(booking.DriverName),
		"pickupAddress":   string(booking.PickupAddress),
		"bookingTime":     timestampOrNull(booking.BookingTime),
		"lastMessage":     lastMessage,
		"lastMessageTime": timestampOrNull(m.CreatedAt),
		"updatedAt":       firestore.Timestamp(now),
	}
}
