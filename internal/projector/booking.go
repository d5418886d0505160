package projector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jnst/booking-sync/internal/firestore"
	"github.com/jnst/booking-sync/internal/model"
	"github.com/jnst/booking-sync/internal/status"
)

const (
	// LiveCollection holds the documents the customer app listens to.
	LiveCollection = "orders_rt"
	// RecordCollection holds the full booking record.
	RecordCollection = "bookings"
)

// FallbackLocation is used when a booking has no coordinates (Taipei 101).
var FallbackLocation = model.LatLng{Latitude: 25.0330, Longitude: 121.5654}

var (
	// ErrAllTargetsFailed is returned when every collection rejected a write.
	ErrAllTargetsFailed = errors.New("all collections failed")
	// ErrPartialWrite is returned under WritePolicyStrict when some collections failed.
	ErrPartialWrite = errors.New("some collections failed")
)

// WritePolicy decides what a partially failed dual write means.
type WritePolicy string

const (
	// WritePolicyTolerate logs a partial failure and reports success.
	WritePolicyTolerate WritePolicy = "tolerate"
	// WritePolicyStrict reports a partial failure as an error so the event is retried.
	WritePolicyStrict WritePolicy = "strict"
)

// ParseWritePolicy parses a policy name. An empty name selects WritePolicyTolerate.
func ParseWritePolicy(s string) (WritePolicy, error) {
	switch WritePolicy(strings.ToLower(s)) {
	case "", WritePolicyTolerate:
		return WritePolicyTolerate, nil
	case WritePolicyStrict:
		return WritePolicyStrict, nil
	default:
		return "", fmt.Errorf("unknown write policy %q", s)
	}
}

// BookingProjector mirrors bookings into the live and record collections.
type BookingProjector struct {
	store       DocumentStore
	collections []string
	policy      WritePolicy
	logger      *slog.Logger
}

// NewBookingProjector creates a new booking projector.
func NewBookingProjector(store DocumentStore, policy WritePolicy, logger *slog.Logger) *BookingProjector {
	if policy == "" {
		policy = WritePolicyTolerate
	}

	return &BookingProjector{
		store:       store,
		collections: []string{LiveCollection, RecordCollection},
		policy:      policy,
		logger:      logger,
	}
}

// Project upserts or deletes the booking in both collections.
func (p *BookingProjector) Project(ctx context.Context, event *model.OutboxEvent) error {
	bookingID := event.AggregateID
	if bookingID == "" {
		return model.ErrMissingAggregateID
	}

	switch event.EventType {
	case model.EventTypeDeleted:
		return p.writeAll(ctx, "delete", bookingID, func(ctx context.Context, path string) error {
			return p.store.Delete(ctx, path)
		})
	case model.EventTypeCreated, model.EventTypeUpdated:
		var payload model.BookingPayload
		if err := decodePayload(event, &payload); err != nil {
			return err
		}

		fields, err := firestore.EncodeFields(BookingDocument(&payload))
		if err != nil {
			return fmt.Errorf("failed to encode booking %s: %w", bookingID, err)
		}

		return p.writeAll(ctx, "upsert", bookingID, func(ctx context.Context, path string) error {
			return p.store.Patch(ctx, path, fields)
		})
	default:
		return fmt.Errorf("%w: %q", model.ErrUnsupportedEventType, event.EventType)
	}
}

type collectionFailure struct {
	collection string
	err        error
}

// writeAll runs write against every collection in order. Failures are
// collected rather than returned early; only an outage stops the loop.
func (p *BookingProjector) writeAll(
	ctx context.Context,
	op, bookingID string,
	write func(ctx context.Context, path string) error,
) error {
	var (
		succeeded []string
		failed    []collectionFailure
	)

	for _, collection := range p.collections {
		path := collection + "/" + bookingID

		if err := write(ctx, path); err != nil {
			if IsOutage(err) {
				return err
			}

			p.logger.Error("booking write failed",
				slog.String("op", op),
				slog.String("collection", collection),
				slog.String("booking_id", bookingID),
				slog.String("error", err.Error()),
			)

			failed = append(failed, collectionFailure{collection: collection, err: err})

			continue
		}

		succeeded = append(succeeded, collection)
	}

	if len(failed) == 0 {
		p.logger.Debug("booking synced",
			slog.String("op", op),
			slog.String("booking_id", bookingID),
			slog.Any("collections", succeeded),
		)

		return nil
	}

	errs := make([]error, len(failed))
	failedNames := make([]string, len(failed))

	for i, f := range failed {
		errs[i] = fmt.Errorf("%s: %w", f.collection, f.err)
		failedNames[i] = f.collection
	}

	if len(succeeded) == 0 {
		return fmt.Errorf("%w: %s booking %s: %w", ErrAllTargetsFailed, op, bookingID, errors.Join(errs...))
	}

	if p.policy == WritePolicyStrict {
		return fmt.Errorf("%w: %s booking %s: %w", ErrPartialWrite, op, bookingID, errors.Join(errs...))
	}

	p.logger.Warn("booking dual write partially succeeded",
		slog.String("op", op),
		slog.String("booking_id", bookingID),
		slog.Any("succeeded", succeeded),
		slog.Any("failed", failedNames),
	)

	return nil
}

// BookingDocument shapes a booking row into the document the apps read.
// Marker objects are resolved to typed values by firestore.EncodeFields.
func BookingDocument(b *model.BookingPayload) map[string]any {
	bookingTime := b.CreatedAt
	if b.StartDate != "" && b.StartTime != "" {
		bookingTime = b.StartDate + "T" + b.StartTime
	}

	pickup := FallbackLocation
	if b.PickupLocation.Usable() {
		pickup = *b.PickupLocation
	}

	dropoff := FallbackLocation
	if b.DropoffLocation.Usable() {
		dropoff = *b.DropoffLocation
	}

	var luggage any
	if n := numberOr(b.LuggageCount, nil); n != nil {
		luggage = firestore.IntegerMarker(n)
	}

	return map[string]any{
		"customerId": string(b.CustomerID),
		"driverId":   nullIfEmpty(b.DriverID),

		"customerName":       nullIfEmpty(b.CustomerName),
		"customerPhone":      nullIfEmpty(b.CustomerPhone),
		"driverName":         nullIfEmpty(b.DriverName),
		"driverPhone":        nullIfEmpty(b.DriverPhone),
		"driverVehiclePlate": nullIfEmpty(b.DriverVehiclePlate),
		"driverVehicleModel": nullIfEmpty(b.DriverVehicleModel),
		"driverRating":       numberOr(b.DriverRating, nil),

		"pickupAddress":   string(b.PickupAddress),
		"pickupLocation":  firestore.GeoMarker(pickup.Latitude, pickup.Longitude),
		"dropoffAddress":  string(b.Destination),
		"dropoffLocation": firestore.GeoMarker(dropoff.Latitude, dropoff.Longitude),

		"bookingTime":    timestampOrNull(bookingTime),
		"passengerCount": firestore.IntegerMarker(numberOr(b.PassengerCount, 1)),
		"luggageCount":   luggage,
		"notes":          nullIfEmpty(b.SpecialRequirements),

		"tourPackageId":   nullIfEmpty(b.TourPackageID),
		"tourPackageName": nullIfEmpty(b.TourPackageName),

		"promoCode":            nullIfEmpty(b.PromoCode),
		"influencerId":         nullIfEmpty(b.InfluencerID),
		"influencerCommission": numberOr(b.InfluencerCommission, 0),
		"originalPrice":        numberOr(b.OriginalPrice, nil),
		"discountAmount":       numberOr(b.DiscountAmount, 0),
		"finalPrice":           numberOr(b.FinalPrice, nil),
		"taxId":                nullIfEmpty(b.TaxID),

		"estimatedFare": numberOr(b.TotalAmount, 0),
		"depositAmount": numberOr(b.DepositAmount, 0),
		"overtimeFee":   numberOr(b.OvertimeFee, 0),
		"tipAmount":     numberOr(b.TipAmount, 0),
		"platformFee":   numberOr(b.PlatformFee, 0),
		"driverEarning": numberOr(b.DriverEarning, 0),
		"depositPaid":   false,

		"status": status.Map(string(b.Status)),

		"createdAt":   timestampOrNull(b.CreatedAt),
		"matchedAt":   timestampOrNull(b.ActualStartTime),
		"completedAt": timestampOrNull(b.ActualEndTime),
	}
}
