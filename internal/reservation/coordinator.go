package reservation

import (
	"context"
	"time"

	"github.com/iliyamo/carpool-booking/internal/model"
	"github.com/iliyamo/carpool-booking/internal/store"
)

// PublishTrip stores a new trip with all seats available and indexes it
// under its owner and in the global trip list.  The caller fills in the
// descriptive fields; ID, CurrentSeat, Status and CreatedAt are assigned.
func (s *Service) PublishTrip(ctx context.Context, t model.Trip) (*model.Trip, error) {
	if t.SeatCount < 1 || t.PriceCents < 0 || t.OwnerID == "" {
		return nil, ErrInvalidTrip
	}
	t.ID = s.newID()
	t.CurrentSeat = t.SeatCount
	t.Status = model.TripPrepare
	t.CreatedAt = s.now().UTC().Truncate(time.Second)

	tripKey := store.TripKey(t.ID)
	err := s.store.Transaction(ctx, func(ctx context.Context, tx store.Txn) error {
		tx.Queue(func(b store.Batch) {
			b.HSet(tripKey, t.Hash())
			b.SAdd(store.UserTripsKey(t.OwnerID), tripKey)
			b.LPush(store.TripListKey, tripKey)
		})
		return nil
	}, tripKey)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// ClaimSeats reserves count seats on a trip for a passenger.  The seat
// decrement, the Unpaid order with its TTL, its compensation record and the
// index entries are committed in one transaction watched on the trip key,
// so concurrent claims can never oversell.  A conflicting writer makes the
// store re-run the body against fresh state.
//
// The compensation record has no TTL: it is removed only by payment or by
// the watcher, so seats are returned however long the watcher was down.
func (s *Service) ClaimSeats(ctx context.Context, tripID, passengerID string, count int64, tel string) (*model.Order, error) {
	if count < 1 {
		return nil, ErrInvalidCount
	}
	trip, err := readTrip(ctx, s.store, tripID)
	if err != nil {
		return nil, err
	}
	if trip.OwnerID == passengerID {
		return nil, ErrOwnTrip
	}

	order := &model.Order{
		ID:          s.newID(),
		TripID:      tripID,
		TripOwner:   trip.OwnerID,
		PassengerID: passengerID,
		Tel:         tel,
		Status:      model.OrderUnpaid,
		PriceCents:  trip.PriceCents * count,
		Count:       count,
		StartTime:   trip.StartTime,
		CreatedAt:   s.now().UTC().Truncate(time.Second),
	}
	comp := &model.Compensation{
		OrderID:     order.ID,
		TripID:      tripID,
		PassengerID: passengerID,
		Count:       count,
	}

	tripKey := store.TripKey(tripID)
	orderKey := store.OrderKey(order.ID)
	exKey := store.OrderCompensationKey(order.ID)

	err = s.store.Transaction(ctx, func(ctx context.Context, tx store.Txn) error {
		current, err := readTrip(ctx, tx, tripID)
		if err != nil {
			return err
		}
		switch current.Status {
		case model.TripPrepare, model.TripFull:
		default:
			return ErrTripClosed
		}
		if current.CurrentSeat < count {
			return ErrInsufficientSeats
		}
		soldOut := current.CurrentSeat == count
		tx.Queue(func(b store.Batch) {
			b.HIncrBy(tripKey, model.TripFieldCurrentSeat, -count)
			if soldOut {
				b.HSet(tripKey, map[string]interface{}{model.TripFieldStatus: string(model.TripFull)})
			}
			b.HSet(orderKey, order.Hash())
			b.Expire(orderKey, s.orderTTL)
			b.HSet(exKey, comp.Hash())
			b.SAdd(store.TripOrdersKey(tripID), orderKey)
			b.SAdd(store.UserOrdersKey(passengerID), orderKey)
		})
		return nil
	}, tripKey)
	if err != nil {
		return nil, err
	}
	return order, nil
}
