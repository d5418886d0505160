package projector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jnst/booking-sync/internal/credentials"
	"github.com/jnst/booking-sync/internal/firestore"
	"github.com/jnst/booking-sync/internal/model"
)

const bookingPayload = `{
	"id": "B1",
	"customerId": "C1",
	"driverId": "",
	"status": "paid_deposit",
	"customerName": "Lin",
	"pickupAddress": "Taipei Main Station",
	"pickupLocation": {"latitude": 25.0478, "longitude": 121.517},
	"destination": "Jiufen",
	"startDate": "2025-10-10",
	"startTime": "09:30:00",
	"createdAt": "2025-10-04T08:00:00+00:00",
	"passengerCount": 3,
	"luggageCount": 0,
	"totalAmount": 2500,
	"depositAmount": 750.5,
	"tipAmount": 0
}`

func bookingEvent(eventType model.EventType, payload string) *model.OutboxEvent {
	return &model.OutboxEvent{
		ID:            uuid.New(),
		AggregateType: model.AggregateTypeBooking,
		AggregateID:   "B1",
		EventType:     eventType,
		Payload:       json.RawMessage(payload),
	}
}

func TestBookingProjectorUpsertWritesBothCollections(t *testing.T) {
	store := newFakeStore()
	logger, _ := newTestLogger()
	p := NewBookingProjector(store, WritePolicyTolerate, logger)

	require.NoError(t, p.Project(context.Background(), bookingEvent(model.EventTypeUpdated, bookingPayload)))

	require.Len(t, store.calls, 2)
	assert.Equal(t, "orders_rt/B1", store.calls[0].path)
	assert.Equal(t, "bookings/B1", store.calls[1].path)
	assert.Equal(t, store.calls[0].body, store.calls[1].body)

	fields := store.fields(t, "bookings/B1")
	assert.Equal(t, map[string]any{"stringValue": "pending"}, fields["status"])
	assert.Equal(t, map[string]any{"stringValue": "C1"}, fields["customerId"])
	assert.Equal(t, map[string]any{"nullValue": nil}, fields["driverId"])
	assert.Equal(t, map[string]any{"integerValue": "3"}, fields["passengerCount"])
	assert.Equal(t, map[string]any{"nullValue": nil}, fields["luggageCount"])
	assert.Equal(t, map[string]any{"integerValue": "2500"}, fields["estimatedFare"])
	assert.Equal(t, map[string]any{"doubleValue": 750.5}, fields["depositAmount"])
	assert.Equal(t, map[string]any{"integerValue": "0"}, fields["tipAmount"])
	assert.Equal(t, map[string]any{"booleanValue": false}, fields["depositPaid"])
	assert.Equal(t, map[string]any{"timestampValue": "2025-10-10T09:30:00Z"}, fields["bookingTime"])
	assert.Equal(t, map[string]any{"timestampValue": "2025-10-04T08:00:00Z"}, fields["createdAt"])
	assert.Equal(t, map[string]any{"nullValue": nil}, fields["matchedAt"])
	assert.Equal(t, map[string]any{
		"geoPointValue": map[string]any{"latitude": 25.0478, "longitude": 121.517},
	}, fields["pickupLocation"])
	assert.Equal(t, map[string]any{
		"geoPointValue": map[string]any{"latitude": 25.033, "longitude": 121.5654},
	}, fields["dropoffLocation"])
}

func TestBookingProjectorIsIdempotent(t *testing.T) {
	store := newFakeStore()
	logger, _ := newTestLogger()
	p := NewBookingProjector(store, WritePolicyTolerate, logger)

	event := bookingEvent(model.EventTypeCreated, bookingPayload)
	ctx := context.Background()

	require.NoError(t, p.Project(ctx, event))
	first := store.calls[1].body

	require.NoError(t, p.Project(ctx, event))
	second := store.calls[3].body

	assert.Equal(t, string(first), string(second))
}

func TestBookingDocumentDefaults(t *testing.T) {
	doc := BookingDocument(&model.BookingPayload{CreatedAt: "2025-10-04T08:00:00Z"})

	assert.Equal(t, firestore.GeoMarker(FallbackLocation.Latitude, FallbackLocation.Longitude), doc["pickupLocation"])
	assert.Equal(t, firestore.IntegerMarker(1), doc["passengerCount"])
	assert.Equal(t, firestore.TimestampMarker("2025-10-04T08:00:00Z"), doc["bookingTime"])
	assert.Equal(t, "pending", doc["status"])
	assert.Equal(t, 0, doc["estimatedFare"])
	assert.Nil(t, doc["finalPrice"])
	assert.Nil(t, doc["luggageCount"])
	assert.Equal(t, "", doc["pickupAddress"])
	assert.Equal(t, "", doc["customerId"])
	assert.Nil(t, doc["driverId"])
}

func TestBookingDocumentEmptyCustomerIDIsString(t *testing.T) {
	store := newFakeStore()
	logger, _ := newTestLogger()
	p := NewBookingProjector(store, WritePolicyTolerate, logger)

	payload := `{"customerId": "", "createdAt": "2025-10-04T08:00:00Z"}`
	require.NoError(t, p.Project(context.Background(), bookingEvent(model.EventTypeUpdated, payload)))

	assert.Equal(t, map[string]any{"stringValue": ""}, store.fields(t, "orders_rt/B1")["customerId"])
	assert.Equal(t, map[string]any{"nullValue": nil}, store.fields(t, "orders_rt/B1")["driverId"])
}

func TestBookingDocumentMistypedColumnsFallBack(t *testing.T) {
	var b model.BookingPayload
	require.NoError(t, json.Unmarshal([]byte(`{
		"customerId": 1042,
		"pickupLocation": {"latitude": "north", "longitude": "east"},
		"dropoffLocation": {"latitude": "25.1", "longitude": "121.6"},
		"passengerCount": "four",
		"totalAmount": "2500"
	}`), &b))

	doc := BookingDocument(&b)

	assert.Equal(t, "1042", doc["customerId"])
	assert.Equal(t, firestore.GeoMarker(FallbackLocation.Latitude, FallbackLocation.Longitude), doc["pickupLocation"])
	assert.Equal(t, firestore.GeoMarker(25.1, 121.6), doc["dropoffLocation"])
	assert.Equal(t, firestore.IntegerMarker(1), doc["passengerCount"])
	assert.Equal(t, json.Number("2500"), doc["estimatedFare"])
}

func TestBookingProjectorDeleteBothCollections(t *testing.T) {
	store := newFakeStore()
	logger, _ := newTestLogger()
	p := NewBookingProjector(store, WritePolicyTolerate, logger)

	require.NoError(t, p.Project(context.Background(), bookingEvent(model.EventTypeDeleted, `{}`)))

	require.Len(t, store.calls, 2)
	assert.Equal(t, storeCall{method: "DELETE", path: "orders_rt/B1"}, store.calls[0])
	assert.Equal(t, storeCall{method: "DELETE", path: "bookings/B1"}, store.calls[1])
}

func TestBookingProjectorDeleteNotFoundCountsAsSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/v1/projects/p/databases/(default)/documents/orders_rt/B1" {
			http.NotFound(w, r)
			return
		}

		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)

	client := firestore.NewClient(firestore.Config{BaseURL: srv.URL, ProjectID: "p"}, staticTokens{})
	logger, buf := newTestLogger()
	p := NewBookingProjector(client, WritePolicyTolerate, logger)

	require.NoError(t, p.Project(context.Background(), bookingEvent(model.EventTypeDeleted, `{}`)))
	assert.NotContains(t, buf.String(), "level=WARN")
}

func TestBookingProjectorPartialFailureTolerated(t *testing.T) {
	store := newFakeStore()
	store.failures["bookings/B1"] = errors.New("permission denied")

	logger, buf := newTestLogger()
	p := NewBookingProjector(store, WritePolicyTolerate, logger)

	require.NoError(t, p.Project(context.Background(), bookingEvent(model.EventTypeUpdated, bookingPayload)))

	assert.Contains(t, buf.String(), "level=WARN")
	assert.Contains(t, buf.String(), "booking dual write partially succeeded")
	store.fields(t, "orders_rt/B1")
}

func TestBookingProjectorPartialFailureStrict(t *testing.T) {
	store := newFakeStore()
	store.failures["orders_rt/B1"] = errors.New("unavailable")

	logger, _ := newTestLogger()
	p := NewBookingProjector(store, WritePolicyStrict, logger)

	err := p.Project(context.Background(), bookingEvent(model.EventTypeUpdated, bookingPayload))
	require.ErrorIs(t, err, ErrPartialWrite)
	assert.Len(t, store.calls, 2)
}

func TestBookingProjectorAllFailed(t *testing.T) {
	store := newFakeStore()
	store.failures["orders_rt/B1"] = errors.New("unavailable")
	store.failures["bookings/B1"] = errors.New("unavailable")

	logger, _ := newTestLogger()
	p := NewBookingProjector(store, WritePolicyTolerate, logger)

	err := p.Project(context.Background(), bookingEvent(model.EventTypeDeleted, `{}`))
	require.ErrorIs(t, err, ErrAllTargetsFailed)
	assert.Contains(t, err.Error(), "orders_rt")
	assert.Contains(t, err.Error(), "bookings")
}

func TestBookingProjectorCredentialFailureStopsEarly(t *testing.T) {
	store := newFakeStore()
	store.failures["orders_rt/B1"] = credentials.ErrTokenExchange

	logger, _ := newTestLogger()
	p := NewBookingProjector(store, WritePolicyTolerate, logger)

	err := p.Project(context.Background(), bookingEvent(model.EventTypeUpdated, bookingPayload))
	require.ErrorIs(t, err, credentials.ErrTokenExchange)
	assert.Len(t, store.calls, 1)
}

func TestBookingProjectorStoreOutageStopsEarly(t *testing.T) {
	store := newFakeStore()
	store.failures["orders_rt/B1"] = fmt.Errorf("%w: circuit breaker is open", firestore.ErrUnavailable)

	logger, buf := newTestLogger()
	p := NewBookingProjector(store, WritePolicyTolerate, logger)

	err := p.Project(context.Background(), bookingEvent(model.EventTypeUpdated, bookingPayload))
	require.ErrorIs(t, err, firestore.ErrUnavailable)
	assert.True(t, IsOutage(err))
	assert.Len(t, store.calls, 1)
	assert.NotContains(t, buf.String(), "partially succeeded")
}

func TestBookingProjectorOutageOnSecondCollectionIsNotTolerated(t *testing.T) {
	store := newFakeStore()
	store.failures["bookings/B1"] = fmt.Errorf("%w: circuit breaker is open", firestore.ErrUnavailable)

	logger, _ := newTestLogger()
	p := NewBookingProjector(store, WritePolicyTolerate, logger)

	err := p.Project(context.Background(), bookingEvent(model.EventTypeDeleted, `{}`))
	require.ErrorIs(t, err, firestore.ErrUnavailable)
	assert.Len(t, store.calls, 2)
}

func TestBookingProjectorRejectsBadInput(t *testing.T) {
	store := newFakeStore()
	logger, _ := newTestLogger()
	p := NewBookingProjector(store, WritePolicyTolerate, logger)
	ctx := context.Background()

	err := p.Project(ctx, bookingEvent("archived", bookingPayload))
	require.ErrorIs(t, err, model.ErrUnsupportedEventType)

	err = p.Project(ctx, bookingEvent(model.EventTypeUpdated, `{"createdAt": "not a date"}`))
	require.ErrorIs(t, err, firestore.ErrInvalidTimestamp)

	event := bookingEvent(model.EventTypeUpdated, bookingPayload)
	event.AggregateID = ""
	require.ErrorIs(t, p.Project(ctx, event), model.ErrMissingAggregateID)

	assert.Empty(t, store.calls)
}

func TestParseWritePolicy(t *testing.T) {
	p, err := ParseWritePolicy("")
	require.NoError(t, err)
	assert.Equal(t, WritePolicyTolerate, p)

	p, err = ParseWritePolicy("STRICT")
	require.NoError(t, err)
	assert.Equal(t, WritePolicyStrict, p)

	_, err = ParseWritePolicy("retry-failed")
	require.Error(t, err)
}

type staticTokens struct{}

func (staticTokens) AccessToken(context.Context) (string, error) { return "tok", nil }
