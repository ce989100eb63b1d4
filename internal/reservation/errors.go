package reservation

import "errors"

// Business-rule failures.  They are normal outcomes returned to the caller
// and are never retried.
var (
	ErrInsufficientSeats  = errors.New("not enough seats left on this trip")
	ErrOrderNotPaid       = errors.New("order is not paid")
	ErrNotTripOwner       = errors.New("not the trip owner")
	ErrTripNotFound       = errors.New("trip not found")
	ErrOrderNotFound      = errors.New("order not found")
	ErrInvalidCount       = errors.New("seat count must be at least one")
	ErrInvalidTrip        = errors.New("trip needs at least one seat and a non-negative price")
	ErrTripClosed         = errors.New("trip is not accepting bookings")
	ErrOwnTrip            = errors.New("owners cannot book their own trip")
	ErrInvalidPrice       = errors.New("order price cannot become negative")
	ErrRefundWindowClosed = errors.New("price cannot be lowered within the refund cutoff before departure")
)

var reasons = map[error]string{
	ErrInsufficientSeats:  "insufficient_seats",
	ErrOrderNotPaid:       "order_not_paid",
	ErrNotTripOwner:       "not_trip_owner",
	ErrTripNotFound:       "trip_not_found",
	ErrOrderNotFound:      "order_not_found",
	ErrInvalidCount:       "invalid_count",
	ErrInvalidTrip:        "invalid_trip",
	ErrTripClosed:         "trip_closed",
	ErrOwnTrip:            "own_trip",
	ErrInvalidPrice:       "invalid_price",
	ErrRefundWindowClosed: "refund_window_closed",
}

// Reason returns the stable machine-readable reason for a business error.
// ok is false for anything else (store failures, decode errors).
func Reason(err error) (reason string, ok bool) {
	for target, r := range reasons {
		if errors.Is(err, target) {
			return r, true
		}
	}
	return "", false
}
