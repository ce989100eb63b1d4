package reservation_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/carpool-booking/internal/model"
	"github.com/iliyamo/carpool-booking/internal/reservation"
	"github.com/iliyamo/carpool-booking/internal/store"
)

func TestPublishTrip_IndexesTrip(t *testing.T) {
	f := newFixture(t)
	trip := f.publish(t, 4)

	assert.NotEmpty(t, trip.ID)
	assert.Equal(t, int64(4), trip.CurrentSeat)
	assert.Equal(t, model.TripPrepare, trip.Status)
	assert.Equal(t, int64(4), f.currentSeat(t, trip.ID))

	ok, err := f.mr.SIsMember(store.UserTripsKey("owner-1"), store.TripKey(trip.ID))
	require.NoError(t, err)
	assert.True(t, ok)

	list, err := f.mr.List(store.TripListKey)
	require.NoError(t, err)
	assert.Equal(t, []string{store.TripKey(trip.ID)}, list)
}

func TestPublishTrip_RejectsInvalidTrip(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.PublishTrip(context.Background(), model.Trip{OwnerID: "owner-1", SeatCount: 0})
	assert.ErrorIs(t, err, reservation.ErrInvalidTrip)
}

func TestClaimSeats_CreatesOrderAndCompensation(t *testing.T) {
	f := newFixture(t)
	trip := f.publish(t, 4)

	order, err := f.svc.ClaimSeats(context.Background(), trip.ID, "passenger-1", 2, "555-0101")
	require.NoError(t, err)

	assert.Equal(t, model.OrderUnpaid, order.Status)
	assert.Equal(t, int64(3000), order.PriceCents)
	assert.Equal(t, "owner-1", order.TripOwner)
	assert.Equal(t, int64(2), f.currentSeat(t, trip.ID))
	assert.Equal(t, model.TripPrepare, f.tripStatus(trip.ID))

	orderKey := store.OrderKey(order.ID)
	exKey := store.OrderCompensationKey(order.ID)
	assert.Equal(t, reservation.DefaultOrderTTL, f.mr.TTL(orderKey))
	assert.Zero(t, f.mr.TTL(exKey), "compensation records never expire on their own")
	assert.Equal(t, trip.ID, f.mr.HGet(exKey, model.OrderFieldTripID))
	assert.Equal(t, "2", f.mr.HGet(exKey, model.OrderFieldCount))

	ok, err := f.mr.SIsMember(store.TripOrdersKey(trip.ID), orderKey)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = f.mr.SIsMember(store.UserOrdersKey("passenger-1"), orderKey)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestClaimSeats_InsufficientSeatsLeavesTripUntouched(t *testing.T) {
	f := newFixture(t)
	trip := f.publish(t, 2)

	_, err := f.svc.ClaimSeats(context.Background(), trip.ID, "passenger-1", 3, "")
	assert.ErrorIs(t, err, reservation.ErrInsufficientSeats)
	assert.Equal(t, int64(2), f.currentSeat(t, trip.ID))
	assert.False(t, f.mr.Exists(store.TripOrdersKey(trip.ID)))
}

func TestClaimSeats_LastSeatsMarkTripFull(t *testing.T) {
	f := newFixture(t)
	trip := f.publish(t, 2)

	_, err := f.svc.ClaimSeats(context.Background(), trip.ID, "passenger-1", 2, "")
	require.NoError(t, err)
	assert.Equal(t, int64(0), f.currentSeat(t, trip.ID))
	assert.Equal(t, model.TripFull, f.tripStatus(trip.ID))

	_, err = f.svc.ClaimSeats(context.Background(), trip.ID, "passenger-2", 1, "")
	assert.ErrorIs(t, err, reservation.ErrInsufficientSeats)
}

func TestClaimSeats_Validation(t *testing.T) {
	f := newFixture(t)
	trip := f.publish(t, 3)
	ctx := context.Background()

	_, err := f.svc.ClaimSeats(ctx, trip.ID, "passenger-1", 0, "")
	assert.ErrorIs(t, err, reservation.ErrInvalidCount)

	_, err = f.svc.ClaimSeats(ctx, "missing", "passenger-1", 1, "")
	assert.ErrorIs(t, err, reservation.ErrTripNotFound)

	_, err = f.svc.ClaimSeats(ctx, trip.ID, "owner-1", 1, "")
	assert.ErrorIs(t, err, reservation.ErrOwnTrip)

	f.mr.HSet(store.TripKey(trip.ID), model.TripFieldStatus, string(model.TripCancel))
	_, err = f.svc.ClaimSeats(ctx, trip.ID, "passenger-1", 1, "")
	assert.ErrorIs(t, err, reservation.ErrTripClosed)
	assert.Equal(t, int64(3), f.currentSeat(t, trip.ID))
}

func TestClaimSeats_RetriesAfterConflictingWrite(t *testing.T) {
	f := newFixture(t)
	trip := f.publish(t, 5)

	cs := &conflictingStore{Store: f.store, rdb: f.rdb, key: store.TripKey(trip.ID)}
	svc := reservation.NewService(cs, reservation.Options{Now: func() time.Time { return testNow }})

	_, err := svc.ClaimSeats(context.Background(), trip.ID, "passenger-1", 2, "")
	require.NoError(t, err)
	assert.Equal(t, 2, cs.attempts)
	assert.Equal(t, int64(2), f.currentSeat(t, trip.ID))
}

func TestClaimSeats_ConcurrentClaimsNeverOversell(t *testing.T) {
	f := newFixture(t)
	trip := f.publish(t, 5)

	const passengers = 20
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		granted int64
		other   []error
	)
	for i := 0; i < passengers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			order, err := f.svc.ClaimSeats(context.Background(), trip.ID, "passenger-"+string(rune('a'+i)), 1, "")
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				granted += order.Count
			case errors.Is(err, reservation.ErrInsufficientSeats):
			default:
				other = append(other, err)
			}
		}(i)
	}
	wg.Wait()

	assert.Empty(t, other)
	assert.Equal(t, int64(5), granted)
	assert.Equal(t, int64(0), f.currentSeat(t, trip.ID))
	members, err := f.mr.SMembers(store.TripOrdersKey(trip.ID))
	require.NoError(t, err)
	assert.Len(t, members, 5)
}
