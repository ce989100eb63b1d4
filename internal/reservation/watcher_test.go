package reservation_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/carpool-booking/internal/model"
	"github.com/iliyamo/carpool-booking/internal/reservation"
	"github.com/iliyamo/carpool-booking/internal/store"
)

func TestHandleExpired_RestoresSeatsAndIndex(t *testing.T) {
	f := newFixture(t)
	trip := f.publish(t, 3)
	ctx := context.Background()
	order, err := f.svc.ClaimSeats(ctx, trip.ID, "passenger-1", 2, "")
	require.NoError(t, err)
	require.Equal(t, int64(1), f.currentSeat(t, trip.ID))

	var released atomic.Int32
	w := reservation.NewWatcher(f.svc, reservation.WatcherOptions{
		OnRelease: func(context.Context, *model.Compensation) { released.Add(1) },
	})

	f.expire()
	require.False(t, f.mr.Exists(store.OrderKey(order.ID)))
	w.HandleExpired(ctx, store.OrderKey(order.ID))

	assert.Equal(t, int64(3), f.currentSeat(t, trip.ID))
	assert.False(t, f.mr.Exists(store.OrderCompensationKey(order.ID)))
	// The last member is gone, so redis drops the index sets entirely.
	assert.False(t, f.rdb.SIsMember(ctx, store.TripOrdersKey(trip.ID), store.OrderKey(order.ID)).Val())
	assert.False(t, f.mr.Exists(store.TripOrdersKey(trip.ID)))
	assert.False(t, f.mr.Exists(store.UserOrdersKey("passenger-1")))
	assert.Equal(t, int32(1), released.Load())

	// A duplicate notification must not return the seats twice.
	w.HandleExpired(ctx, store.OrderKey(order.ID))
	assert.Equal(t, int64(3), f.currentSeat(t, trip.ID))
	assert.Equal(t, int32(1), released.Load())
}

func TestHandleExpired_ReopensFullTrip(t *testing.T) {
	f := newFixture(t)
	trip := f.publish(t, 2)
	ctx := context.Background()
	order, err := f.svc.ClaimSeats(ctx, trip.ID, "passenger-1", 2, "")
	require.NoError(t, err)
	require.Equal(t, model.TripFull, f.tripStatus(trip.ID))

	f.expire()
	reservation.NewWatcher(f.svc, reservation.WatcherOptions{}).HandleExpired(ctx, store.OrderKey(order.ID))

	assert.Equal(t, int64(2), f.currentSeat(t, trip.ID))
	assert.Equal(t, model.TripPrepare, f.tripStatus(trip.ID))
}

func TestHandleExpired_IgnoresPaidAndForeignKeys(t *testing.T) {
	f := newFixture(t)
	trip := f.publish(t, 3)
	ctx := context.Background()
	order, err := f.svc.ClaimSeats(ctx, trip.ID, "passenger-1", 1, "")
	require.NoError(t, err)
	_, _, err = f.svc.ConfirmPayment(ctx, order.ID, reservation.PaymentRefs{})
	require.NoError(t, err)

	w := reservation.NewWatcher(f.svc, reservation.WatcherOptions{})
	w.HandleExpired(ctx, store.OrderKey(order.ID))
	w.HandleExpired(ctx, store.TripKey(trip.ID))
	w.HandleExpired(ctx, "garbage")

	assert.Equal(t, int64(2), f.currentSeat(t, trip.ID))
	assert.Equal(t, model.OrderPaid, f.orderStatus(order.ID))
}

func TestHandleExpired_UnpaidOrderStillAliveIsKept(t *testing.T) {
	f := newFixture(t)
	trip := f.publish(t, 3)
	ctx := context.Background()
	order, err := f.svc.ClaimSeats(ctx, trip.ID, "passenger-1", 1, "")
	require.NoError(t, err)

	reservation.NewWatcher(f.svc, reservation.WatcherOptions{}).HandleExpired(ctx, store.OrderKey(order.ID))

	assert.Equal(t, int64(2), f.currentSeat(t, trip.ID))
	assert.True(t, f.mr.Exists(store.OrderCompensationKey(order.ID)))
}

func TestReconcile_RecoversLostNotifications(t *testing.T) {
	f := newFixture(t)
	trip := f.publish(t, 5)
	ctx := context.Background()
	for _, p := range []string{"passenger-1", "passenger-2"} {
		_, err := f.svc.ClaimSeats(ctx, trip.ID, p, 1, "")
		require.NoError(t, err)
	}
	f.expire()
	kept, err := f.svc.ClaimSeats(ctx, trip.ID, "passenger-3", 1, "")
	require.NoError(t, err)

	n := reservation.NewWatcher(f.svc, reservation.WatcherOptions{}).Reconcile(ctx)
	assert.Equal(t, 2, n)
	assert.Equal(t, int64(4), f.currentSeat(t, trip.ID))
	assert.True(t, f.mr.Exists(store.OrderCompensationKey(kept.ID)))
}

func TestReconcile_AfterLongWatcherOutage(t *testing.T) {
	f := newFixture(t)
	trip := f.publish(t, 2)
	ctx := context.Background()
	order, err := f.svc.ClaimSeats(ctx, trip.ID, "passenger-1", 2, "")
	require.NoError(t, err)

	f.mr.FastForward(24 * time.Hour)
	require.False(t, f.mr.Exists(store.OrderKey(order.ID)))
	require.True(t, f.mr.Exists(store.OrderCompensationKey(order.ID)))

	n := reservation.NewWatcher(f.svc, reservation.WatcherOptions{}).Reconcile(ctx)
	assert.Equal(t, 1, n)
	assert.Equal(t, int64(2), f.currentSeat(t, trip.ID))
	assert.Equal(t, model.TripPrepare, f.tripStatus(trip.ID))
	assert.False(t, f.mr.Exists(store.OrderCompensationKey(order.ID)))
}

func TestRun_ProcessesExpiredNotifications(t *testing.T) {
	f := newFixture(t)
	trip := f.publish(t, 3)
	ctx, cancel := context.WithCancel(context.Background())

	w := reservation.NewWatcher(f.svc, reservation.WatcherOptions{ReconcileEvery: time.Hour})
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	channel := f.store.ExpiredChannel()
	require.Eventually(t, func() bool {
		return f.mr.Publish(channel, "Trip:warmup") > 0
	}, 5*time.Second, 20*time.Millisecond)

	order, err := f.svc.ClaimSeats(context.Background(), trip.ID, "passenger-1", 2, "")
	require.NoError(t, err)
	f.expire()
	f.mr.Publish(channel, store.OrderKey(order.ID))

	require.Eventually(t, func() bool {
		return f.currentSeat(t, trip.ID) == 3
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not stop after cancellation")
	}
}
