package reservation_test

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/carpool-booking/internal/model"
	"github.com/iliyamo/carpool-booking/internal/reservation"
	"github.com/iliyamo/carpool-booking/internal/store"
)

var testNow = time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

type fixture struct {
	mr    *miniredis.Miniredis
	rdb   *redis.Client
	store *store.RedisStore
	svc   *reservation.Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), Protocol: 2})
	t.Cleanup(func() { _ = rdb.Close() })
	st := store.NewRedisStore(rdb)
	return &fixture{
		mr:    mr,
		rdb:   rdb,
		store: st,
		svc:   reservation.NewService(st, reservation.Options{Now: func() time.Time { return testNow }}),
	}
}

func (f *fixture) publish(t *testing.T, seats int64) *model.Trip {
	t.Helper()
	trip, err := f.svc.PublishTrip(context.Background(), model.Trip{
		OwnerID:    "owner-1",
		SeatCount:  seats,
		PriceCents: 1500,
		Start:      "Central Station",
		End:        "Airport",
		StartTime:  testNow.Add(4 * time.Hour),
	})
	require.NoError(t, err)
	return trip
}

func (f *fixture) currentSeat(t *testing.T, tripID string) int64 {
	t.Helper()
	n, err := strconv.ParseInt(f.mr.HGet(store.TripKey(tripID), model.TripFieldCurrentSeat), 10, 64)
	require.NoError(t, err)
	return n
}

func (f *fixture) tripStatus(tripID string) model.TripStatus {
	return model.TripStatus(f.mr.HGet(store.TripKey(tripID), model.TripFieldStatus))
}

func (f *fixture) orderStatus(orderID string) model.OrderStatus {
	return model.OrderStatus(f.mr.HGet(store.OrderKey(orderID), model.OrderFieldStatus))
}

// expire lets the order grace period elapse without touching the
// compensation record.
func (f *fixture) expire() {
	f.mr.FastForward(reservation.DefaultOrderTTL + time.Second)
}

// conflictingStore injects a write to a watched key inside the first
// transaction attempt so EXEC fails and the body has to run again.
type conflictingStore struct {
	store.Store
	rdb      *redis.Client
	key      string
	attempts int
}

func (c *conflictingStore) Transaction(ctx context.Context, fn store.TxnFunc, keys ...string) error {
	return c.Store.Transaction(ctx, func(ctx context.Context, tx store.Txn) error {
		c.attempts++
		if c.attempts == 1 {
			if err := c.rdb.HIncrBy(ctx, c.key, model.TripFieldCurrentSeat, -1).Err(); err != nil {
				return err
			}
		}
		return fn(ctx, tx)
	}, keys...)
}
