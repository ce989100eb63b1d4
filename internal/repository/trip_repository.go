package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/iliyamo/carpool-booking/internal/model"
	"github.com/iliyamo/carpool-booking/internal/store"
)

// TripRepo reads trips from the inventory store.  All writes go through
// the reservation service.
type TripRepo struct{ store store.Store }

func NewTripRepo(s store.Store) *TripRepo { return &TripRepo{store: s} }

// Get returns one trip.
func (r *TripRepo) Get(ctx context.Context, id string) (*model.Trip, error) {
	h, err := r.store.HGetAll(ctx, store.TripKey(id))
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get trip %s: %w", id, err)
	}
	return model.TripFromHash(id, h)
}

// List pages through the global trip list, most recently published first.
// Only trips still open for booking are returned when openOnly is set.
func (r *TripRepo) List(ctx context.Context, offset, limit int64, openOnly bool) ([]model.Trip, error) {
	if limit <= 0 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	keys, err := r.store.LRange(ctx, store.TripListKey, offset, offset+limit-1)
	if err != nil {
		return nil, fmt.Errorf("list trips: %w", err)
	}
	trips, err := r.load(ctx, keys)
	if err != nil {
		return nil, err
	}
	if !openOnly {
		return trips, nil
	}
	open := trips[:0]
	for _, t := range trips {
		if t.Status == model.TripPrepare {
			open = append(open, t)
		}
	}
	return open, nil
}

// ByOwner lists an owner's trips by departure time.
func (r *TripRepo) ByOwner(ctx context.Context, ownerID string) ([]model.Trip, error) {
	keys, err := r.store.SMembers(ctx, store.UserTripsKey(ownerID))
	if err != nil {
		return nil, fmt.Errorf("list trips of %s: %w", ownerID, err)
	}
	trips, err := r.load(ctx, keys)
	if err != nil {
		return nil, err
	}
	sort.Slice(trips, func(i, j int) bool { return trips[i].StartTime.Before(trips[j].StartTime) })
	return trips, nil
}

func (r *TripRepo) load(ctx context.Context, keys []string) ([]model.Trip, error) {
	out := make([]model.Trip, 0, len(keys))
	for _, k := range keys {
		typ, id, ok := store.ParseKey(k)
		if !ok || typ != store.TypeTrip {
			continue
		}
		t, err := r.Get(ctx, id)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, nil
}
