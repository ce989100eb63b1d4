// Package reservation is the seat-inventory engine: claiming seats on a
// trip, the order payment lifecycle, price adjustments and the background
// reclamation of abandoned orders.  All shared state lives in the inventory
// store and every read-modify-write goes through store.Transaction.
package reservation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/iliyamo/carpool-booking/internal/model"
	"github.com/iliyamo/carpool-booking/internal/store"
)

// Defaults used when Options leaves a field zero.
const (
	DefaultOrderTTL     = 180 * time.Second
	DefaultRefundCutoff = 30 * time.Minute
)

// Options tunes a Service.  Now and NewID exist for tests.
type Options struct {
	OrderTTL     time.Duration // grace period of an unpaid order
	RefundCutoff time.Duration // no price reductions this close to departure
	Now          func() time.Time
	NewID        func() string
}

// Service implements the reservation operations over a store.
type Service struct {
	store        store.Store
	orderTTL     time.Duration
	refundCutoff time.Duration
	now          func() time.Time
	newID        func() string
}

// NewService builds a Service.  The store must be non-nil.
func NewService(s store.Store, opts Options) *Service {
	if s == nil {
		panic("nil store passed to reservation.NewService")
	}
	svc := &Service{
		store:        s,
		orderTTL:     opts.OrderTTL,
		refundCutoff: opts.RefundCutoff,
		now:          opts.Now,
		newID:        opts.NewID,
	}
	if svc.orderTTL <= 0 {
		svc.orderTTL = DefaultOrderTTL
	}
	if svc.refundCutoff <= 0 {
		svc.refundCutoff = DefaultRefundCutoff
	}
	if svc.now == nil {
		svc.now = time.Now
	}
	if svc.newID == nil {
		svc.newID = uuid.NewString
	}
	return svc
}

// OrderTTL is the grace period an unpaid order is held for.
func (s *Service) OrderTTL() time.Duration { return s.orderTTL }

func readTrip(ctx context.Context, r store.Reader, id string) (*model.Trip, error) {
	h, err := r.HGetAll(ctx, store.TripKey(id))
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrTripNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read trip %s: %w", id, err)
	}
	return model.TripFromHash(id, h)
}

func readOrder(ctx context.Context, r store.Reader, id string) (*model.Order, error) {
	h, err := r.HGetAll(ctx, store.OrderKey(id))
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read order %s: %w", id, err)
	}
	return model.OrderFromHash(id, h)
}
