package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redismock/v9"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMiniStore(t *testing.T) (*miniredis.Miniredis, *RedisStore) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), Protocol: 2})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, NewRedisStore(rdb)
}

func TestRedisStore_MissingKeysMapToNotFound(t *testing.T) {
	_, s := newMiniStore(t)
	ctx := context.Background()

	_, err := s.HGetAll(ctx, TripKey("nope"))
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.HGet(ctx, TripKey("nope"), "status")
	assert.ErrorIs(t, err, ErrNotFound)

	ok, err := s.Exists(ctx, TripKey("nope"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisStore_TransactionCommitsQueuedWrites(t *testing.T) {
	mr, s := newMiniStore(t)
	ctx := context.Background()
	mr.HSet("Trip:1", "current_seat", "4")

	err := s.Transaction(ctx, func(ctx context.Context, tx Txn) error {
		v, err := tx.HGet(ctx, "Trip:1", "current_seat")
		if err != nil {
			return err
		}
		assert.Equal(t, "4", v)
		tx.Queue(func(b Batch) {
			b.HIncrBy("Trip:1", "current_seat", -3)
			b.SAdd("TripOrders:1", "Order:a")
			b.Expire("Trip:1", time.Minute)
		})
		return nil
	}, "Trip:1")
	require.NoError(t, err)

	assert.Equal(t, "1", mr.HGet("Trip:1", "current_seat"))
	assert.Equal(t, time.Minute, mr.TTL("Trip:1"))
	ok, err := mr.SIsMember("TripOrders:1", "Order:a")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRedisStore_TransactionBodyErrorDiscardsWrites(t *testing.T) {
	mr, s := newMiniStore(t)
	boom := errors.New("boom")

	err := s.Transaction(context.Background(), func(ctx context.Context, tx Txn) error {
		tx.Queue(func(b Batch) { b.HSet("Trip:1", map[string]interface{}{"status": "FULL"}) })
		return boom
	}, "Trip:1")
	assert.ErrorIs(t, err, boom)
	assert.False(t, mr.Exists("Trip:1"))
}

func TestRedisStore_ScanKeys(t *testing.T) {
	mr, s := newMiniStore(t)
	mr.HSet("OrderEx:a", "count", "1")
	mr.HSet("OrderEx:b", "count", "1")
	mr.HSet("Order:a", "count", "1")

	keys, err := s.ScanKeys(context.Background(), CompensationPattern)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"OrderEx:a", "OrderEx:b"}, keys)
}

func TestRedisStore_SubscribeExpired(t *testing.T) {
	mr, s := newMiniStore(t)
	ctx := context.Background()

	sub, err := s.SubscribeExpired(ctx)
	require.NoError(t, err)
	defer sub.Close()

	assert.Equal(t, "__keyevent@0__:expired", s.ExpiredChannel())
	mr.Publish(s.ExpiredChannel(), "Order:x")

	select {
	case got := <-sub.Channel():
		assert.Equal(t, "Order:x", got)
	case <-time.After(2 * time.Second):
		t.Fatal("no notification received")
	}
	assert.NoError(t, sub.Close())
}

func TestRedisStore_ServerErrorsMapToUnavailable(t *testing.T) {
	db, mock := redismock.NewClientMock()
	s := NewRedisStore(db)
	ctx := context.Background()

	mock.ExpectHGetAll("Trip:1").SetErr(errors.New("connection refused"))
	_, err := s.HGetAll(ctx, "Trip:1")
	assert.ErrorIs(t, err, ErrUnavailable)

	mock.ExpectPing().SetErr(errors.New("connection refused"))
	assert.ErrorIs(t, s.Ping(ctx), ErrUnavailable)

	mock.ExpectHGet("Trip:1", "status").RedisNil()
	_, err = s.HGet(ctx, "Trip:1", "status")
	assert.ErrorIs(t, err, ErrNotFound)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNewRedisStore_PanicsOnNilClient(t *testing.T) {
	assert.Panics(t, func() { NewRedisStore(nil) })
}
