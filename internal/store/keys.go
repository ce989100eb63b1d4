package store

import "strings"

// Record type prefixes.  Every key in the inventory is "<Type>:<id>" except
// the global trip list.
const (
	TypeTrip       = "Trip"
	TypeOrder      = "Order"
	TypeOrderEx    = "OrderEx"
	TypeTripOrders = "TripOrders"
	TypeUserOrders = "UserOrders"
	TypeUserTrips  = "UserTrips"
)

// TripListKey holds every published trip key, most recent first.
const TripListKey = "TripList"

// PendingPayoutsKey is the set of finished trip ids whose owner payout has
// not been handed to the payment worker yet.
const PendingPayoutsKey = "PendingPayouts"

func key(typ, id string) string { return typ + ":" + id }

func TripKey(id string) string { return key(TypeTrip, id) }
func OrderKey(id string) string { return key(TypeOrder, id) }
func OrderCompensationKey(id string) string { return key(TypeOrderEx, id) }
func TripOrdersKey(tripID string) string { return key(TypeTripOrders, tripID) }
func UserOrdersKey(passengerID string) string { return key(TypeUserOrders, passengerID) }
func UserTripsKey(ownerID string) string { return key(TypeUserTrips, ownerID) }

// CompensationPattern matches every compensation record, for SCAN.
const CompensationPattern = TypeOrderEx + ":*"

// ParseKey splits "<Type>:<id>".  ok is false when there is no separator or
// either half is empty.
func ParseKey(k string) (typ, id string, ok bool) {
	typ, id, found := strings.Cut(k, ":")
	if !found || typ == "" || id == "" {
		return "", "", false
	}
	return typ, id, true
}
