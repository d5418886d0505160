// Package status translates booking lifecycle states stored in the database
// into the coarser phases the client apps render.
package status

// Target statuses written to the document store.
const (
	PendingPayment  = "PENDING_PAYMENT"
	Pending         = "pending"
	AwaitingDriver  = "awaitingDriver"
	Matched         = "matched"
	OnTheWay        = "ON_THE_WAY"
	InProgress      = "inProgress"
	AwaitingBalance = "awaitingBalance"
	Completed       = "completed"
	Cancelled       = "cancelled"
)

// bookingStatuses is many-to-one on purpose: assigned and matched both wait
// on the driver, departed and arrived are both on the way.
var bookingStatuses = map[string]string{
	// payment and search
	"pending_payment": PendingPayment,
	"paid_deposit":    Pending,
	"assigned":        AwaitingDriver,
	"matched":         AwaitingDriver,

	// in service
	"driver_confirmed": Matched,
	"driver_departed":  OnTheWay,
	"driver_arrived":   OnTheWay,
	"trip_started":     InProgress,
	"in_progress":      InProgress,

	// settlement
	"trip_ended":      AwaitingBalance,
	"pending_balance": AwaitingBalance,

	// final
	"completed": Completed,
	"cancelled": Cancelled,
}

// Map returns the document store status for a booking status. Unknown
// statuses map to Pending.
func Map(source string) string {
	if target, ok := bookingStatuses[source]; ok {
		return target
	}

	return Pending
}

// Known reports whether source has an explicit mapping.
func Known(source string) bool {
	_, ok := bookingStatuses[source]
	return ok
}
