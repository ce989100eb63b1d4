package reservation

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/iliyamo/carpool-booking/internal/model"
	"github.com/iliyamo/carpool-booking/internal/store"
)

// PendingPayout is a finished trip whose owner has not been paid yet.
type PendingPayout struct {
	TripID      string
	OwnerID     string
	AmountCents int64
}

// PayoutFunc hands a payout to the payment collaborator.
type PayoutFunc func(ctx context.Context, ownerID, tripID string, amountCents int64) error

// PendingPayouts lists the payouts recorded by CheckTripCompletion that
// were never confirmed as sent.
func (s *Service) PendingPayouts(ctx context.Context) ([]PendingPayout, error) {
	ids, err := s.store.SMembers(ctx, store.PendingPayoutsKey)
	if err != nil {
		return nil, fmt.Errorf("list pending payouts: %w", err)
	}
	out := make([]PendingPayout, 0, len(ids))
	for _, id := range ids {
		h, err := s.store.HGetAll(ctx, store.TripKey(id))
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("read trip %s: %w", id, err)
		}
		amount, err := strconv.ParseInt(h[model.TripFieldPayoutPending], 10, 64)
		if err != nil || amount <= 0 {
			continue
		}
		out = append(out, PendingPayout{TripID: id, OwnerID: h[model.TripFieldOwner], AmountCents: amount})
	}
	return out, nil
}

// SettlePayout sends p through pay and, once that succeeded, clears the
// pending marker.  On failure the marker stays for the next sweep.
// Delivery is at least once: PayoutRequest carries the trip id so the
// payment worker can drop duplicates.
func (s *Service) SettlePayout(ctx context.Context, p PendingPayout, pay PayoutFunc) error {
	if err := pay(ctx, p.OwnerID, p.TripID, p.AmountCents); err != nil {
		return fmt.Errorf("payout for trip %s: %w", p.TripID, err)
	}
	return s.markPayoutSent(ctx, p.TripID)
}

func (s *Service) markPayoutSent(ctx context.Context, tripID string) error {
	tripKey := store.TripKey(tripID)
	return s.store.Transaction(ctx, func(ctx context.Context, tx store.Txn) error {
		tx.Queue(func(b store.Batch) {
			b.HDel(tripKey, model.TripFieldPayoutPending)
			b.SRem(store.PendingPayoutsKey, tripID)
		})
		return nil
	}, tripKey)
}
