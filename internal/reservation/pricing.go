package reservation

import (
	"context"

	"github.com/iliyamo/carpool-booking/internal/model"
	"github.com/iliyamo/carpool-booking/internal/store"
)

// AdjustPrice lets the trip owner change an order's price by delta cents
// after the fact.  It returns the order's stored payment transaction id so
// the caller can ask the payment collaborator for a refund; it performs no
// payment call itself.  The owner check and the increment run in one
// transaction on the order key.
func (s *Service) AdjustPrice(ctx context.Context, orderID, requesterID string, delta int64) (string, error) {
	orderKey := store.OrderKey(orderID)
	var txID string
	err := s.store.Transaction(ctx, func(ctx context.Context, tx store.Txn) error {
		o, err := readOrder(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if o.TripOwner != requesterID {
			return ErrNotTripOwner
		}
		if o.PriceCents+delta < 0 {
			return ErrInvalidPrice
		}
		if delta < 0 && !o.StartTime.IsZero() && o.StartTime.Sub(s.now()) < s.refundCutoff {
			return ErrRefundWindowClosed
		}
		txID = o.TransactionID
		if delta == 0 {
			return nil
		}
		tx.Queue(func(b store.Batch) {
			b.HIncrBy(orderKey, model.OrderFieldPrice, delta)
		})
		return nil
	}, orderKey)
	if err != nil {
		return "", err
	}
	return txID, nil
}
