package reservation

import (
	"context"
	"errors"
	"fmt"

	"github.com/iliyamo/carpool-booking/internal/model"
	"github.com/iliyamo/carpool-booking/internal/store"
)

// PaymentRefs are the external payment references recorded on an order
// when it is paid.  Empty values leave stored references untouched.
type PaymentRefs struct {
	OrderID       string
	TransactionID string
}

// ConfirmPayment moves an order to PAID, cancels its TTL and deletes its
// compensation record in a single transaction watched on both the order
// and the compensation key.  Because the expiry watcher watches the same
// keys, a payment and a reclamation of the same order can never both
// commit.  Confirming a PAID order again is harmless; a SUBMITTED order
// is returned unchanged.  paid is true only for the call whose commit moved
// the order out of UNPAID.
func (s *Service) ConfirmPayment(ctx context.Context, orderID string, refs PaymentRefs) (order *model.Order, paid bool, err error) {
	orderKey := store.OrderKey(orderID)
	exKey := store.OrderCompensationKey(orderID)

	err = s.store.Transaction(ctx, func(ctx context.Context, tx store.Txn) error {
		o, err := readOrder(ctx, tx, orderID)
		if err != nil {
			return err
		}
		order, paid = o, o.Status == model.OrderUnpaid
		if o.Status == model.OrderSubmitted {
			return nil
		}
		fields := map[string]interface{}{model.OrderFieldStatus: string(model.OrderPaid)}
		if refs.OrderID != "" {
			fields[model.OrderFieldPayOrderID] = refs.OrderID
			o.PayOrderID = refs.OrderID
		}
		if refs.TransactionID != "" {
			fields[model.OrderFieldTransactionID] = refs.TransactionID
			o.TransactionID = refs.TransactionID
		}
		o.Status = model.OrderPaid
		tx.Queue(func(b store.Batch) {
			b.HSet(orderKey, fields)
			b.Persist(orderKey)
			b.Del(exKey)
		})
		return nil
	}, orderKey, exKey)
	if err != nil {
		return nil, false, err
	}
	return order, paid, nil
}

// Submit marks a PAID order as SUBMITTED and returns its trip id so the
// caller can run the completion check.  Any other status yields
// ErrOrderNotPaid and leaves the order untouched.
func (s *Service) Submit(ctx context.Context, orderID string) (string, error) {
	orderKey := store.OrderKey(orderID)
	var tripID string
	err := s.store.Transaction(ctx, func(ctx context.Context, tx store.Txn) error {
		o, err := readOrder(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if !model.CanTransition(o.Status, model.OrderSubmitted) {
			return ErrOrderNotPaid
		}
		tripID = o.TripID
		tx.Queue(func(b store.Batch) {
			b.HSet(orderKey, map[string]interface{}{model.OrderFieldStatus: string(model.OrderSubmitted)})
		})
		return nil
	}, orderKey)
	if err != nil {
		return "", err
	}
	return tripID, nil
}

// Completion is the outcome of CheckTripCompletion.
type Completion struct {
	// Finished is true only for the call that moved the trip to FINISH.
	Finished    bool
	OwnerID     string
	PayoutCents int64 // sum of submitted order prices
	Orders      int
}

// CheckTripCompletion marks a trip FINISH once every live order indexed
// under it is SUBMITTED.  The scan is not isolated from concurrent claims:
// a claim landing mid-scan simply keeps the trip open until the next
// submission triggers another check.  Index entries whose order already
// expired are skipped; the expiry watcher removes them.
//
// The transition to FINISH also records the owner payout as pending, in the
// same transaction, so it survives a failed send; see SettlePayout.
func (s *Service) CheckTripCompletion(ctx context.Context, tripID string) (*Completion, error) {
	members, err := s.store.SMembers(ctx, store.TripOrdersKey(tripID))
	if err != nil {
		return nil, fmt.Errorf("list orders of trip %s: %w", tripID, err)
	}
	res := &Completion{}
	for _, key := range members {
		_, id, ok := store.ParseKey(key)
		if !ok {
			continue
		}
		o, err := readOrder(ctx, s.store, id)
		if errors.Is(err, ErrOrderNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if o.Status != model.OrderSubmitted {
			return res, nil
		}
		res.Orders++
		res.PayoutCents += o.PriceCents
	}
	if res.Orders == 0 {
		return res, nil
	}

	tripKey := store.TripKey(tripID)
	err = s.store.Transaction(ctx, func(ctx context.Context, tx store.Txn) error {
		t, err := readTrip(ctx, tx, tripID)
		if err != nil {
			return err
		}
		res.OwnerID = t.OwnerID
		res.Finished = false
		if t.Status == model.TripFinish || t.Status == model.TripCancel {
			return nil
		}
		res.Finished = true
		tx.Queue(func(b store.Batch) {
			fields := map[string]interface{}{model.TripFieldStatus: string(model.TripFinish)}
			if res.PayoutCents > 0 {
				fields[model.TripFieldPayoutPending] = res.PayoutCents
				b.SAdd(store.PendingPayoutsKey, tripID)
			}
			b.HSet(tripKey, fields)
		})
		return nil
	}, tripKey)
	if err != nil {
		return nil, err
	}
	return res, nil
}
