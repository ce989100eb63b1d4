package repository_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/carpool-booking/internal/model"
	"github.com/iliyamo/carpool-booking/internal/repository"
	"github.com/iliyamo/carpool-booking/internal/reservation"
	"github.com/iliyamo/carpool-booking/internal/store"
)

func seed(t *testing.T) (*miniredis.Miniredis, *store.RedisStore, *reservation.Service) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), Protocol: 2})
	t.Cleanup(func() { _ = rdb.Close() })
	st := store.NewRedisStore(rdb)
	return mr, st, reservation.NewService(st, reservation.Options{})
}

func publish(t *testing.T, svc *reservation.Service, owner string, seats int64, start time.Time) *model.Trip {
	t.Helper()
	trip, err := svc.PublishTrip(context.Background(), model.Trip{
		OwnerID: owner, SeatCount: seats, PriceCents: 900, Start: "A", End: "B", StartTime: start,
	})
	require.NoError(t, err)
	return trip
}

func TestTripRepo_ListAndByOwner(t *testing.T) {
	_, st, svc := seed(t)
	ctx := context.Background()
	base := time.Now().Add(24 * time.Hour).UTC().Truncate(time.Second)
	first := publish(t, svc, "owner-1", 2, base.Add(time.Hour))
	second := publish(t, svc, "owner-1", 1, base)
	other := publish(t, svc, "owner-2", 3, base)

	_, err := svc.ClaimSeats(ctx, second.ID, "passenger-1", 1, "")
	require.NoError(t, err)

	repo := repository.NewTripRepo(st)
	all, err := repo.List(ctx, 0, 10, false)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, other.ID, all[0].ID, "most recent first")

	open, err := repo.List(ctx, 0, 10, true)
	require.NoError(t, err)
	assert.Len(t, open, 2, "the full trip is filtered out")

	page, err := repo.List(ctx, 1, 1, false)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, second.ID, page[0].ID)

	mine, err := repo.ByOwner(ctx, "owner-1")
	require.NoError(t, err)
	require.Len(t, mine, 2)
	assert.Equal(t, second.ID, mine[0].ID, "earliest departure first")
	assert.Equal(t, first.ID, mine[1].ID)

	_, err = repo.Get(ctx, "missing")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestOrderRepo_VisibilityAndExpiry(t *testing.T) {
	mr, st, svc := seed(t)
	ctx := context.Background()
	trip := publish(t, svc, "owner-1", 4, time.Now().Add(24*time.Hour))

	paid, err := svc.ClaimSeats(ctx, trip.ID, "passenger-1", 1, "")
	require.NoError(t, err)
	_, _, err = svc.ConfirmPayment(ctx, paid.ID, reservation.PaymentRefs{})
	require.NoError(t, err)
	abandoned, err := svc.ClaimSeats(ctx, trip.ID, "passenger-1", 1, "")
	require.NoError(t, err)

	repo := repository.NewOrderRepo(st)
	_, err = repo.GetVisible(ctx, paid.ID, "passenger-1")
	assert.NoError(t, err)
	_, err = repo.GetVisible(ctx, paid.ID, "owner-1")
	assert.NoError(t, err)
	_, err = repo.GetVisible(ctx, paid.ID, "stranger")
	assert.ErrorIs(t, err, repository.ErrForbidden)

	mr.FastForward(reservation.DefaultOrderTTL + time.Second)

	_, err = repo.Get(ctx, abandoned.ID)
	assert.ErrorIs(t, err, repository.ErrNotFound)

	mine, err := repo.ByUser(ctx, "passenger-1")
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, paid.ID, mine[0].ID)

	onTrip, err := repo.ByTrip(ctx, trip.ID)
	require.NoError(t, err)
	require.Len(t, onTrip, 1)
	assert.Equal(t, model.OrderPaid, onTrip[0].Status)
}
