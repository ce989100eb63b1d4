package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/iliyamo/carpool-booking/internal/model"
	"github.com/iliyamo/carpool-booking/internal/store"
)

// OrderRepo reads orders from the inventory store.
type OrderRepo struct{ store store.Store }

func NewOrderRepo(s store.Store) *OrderRepo { return &OrderRepo{store: s} }

// Get returns one order.  An unpaid order past its grace period is gone and
// reports ErrNotFound.
func (r *OrderRepo) Get(ctx context.Context, id string) (*model.Order, error) {
	h, err := r.store.HGetAll(ctx, store.OrderKey(id))
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get order %s: %w", id, err)
	}
	return model.OrderFromHash(id, h)
}

// GetVisible returns an order only to its passenger or the trip owner.
func (r *OrderRepo) GetVisible(ctx context.Context, id, userID string) (*model.Order, error) {
	o, err := r.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if o.PassengerID != userID && o.TripOwner != userID {
		return nil, ErrForbidden
	}
	return o, nil
}

// ByUser lists a passenger's live orders, newest first.
func (r *OrderRepo) ByUser(ctx context.Context, passengerID string) ([]model.Order, error) {
	return r.list(ctx, store.UserOrdersKey(passengerID))
}

// ByTrip lists the live orders on a trip, newest first.
func (r *OrderRepo) ByTrip(ctx context.Context, tripID string) ([]model.Order, error) {
	return r.list(ctx, store.TripOrdersKey(tripID))
}

// list skips index entries whose order already expired; the expiry watcher
// removes them shortly after.
func (r *OrderRepo) list(ctx context.Context, indexKey string) ([]model.Order, error) {
	keys, err := r.store.SMembers(ctx, indexKey)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", indexKey, err)
	}
	out := make([]model.Order, 0, len(keys))
	for _, k := range keys {
		typ, id, ok := store.ParseKey(k)
		if !ok || typ != store.TypeOrder {
			continue
		}
		o, err := r.Get(ctx, id)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, *o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}
