package reservation

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/iliyamo/carpool-booking/internal/model"
	"github.com/iliyamo/carpool-booking/internal/store"
)

// ReleaseExpired undoes the claim behind an abandoned order: the seats go
// back to the trip, a FULL trip reopens, and the compensation record and
// index entries are removed.  It is a no-op (nil, nil) when the
// compensation record is gone (the order was paid) or the order key still
// exists (payment or a stale notification).
func (s *Service) ReleaseExpired(ctx context.Context, orderID string) (*model.Compensation, error) {
	exKey := store.OrderCompensationKey(orderID)
	orderKey := store.OrderKey(orderID)

	h, err := s.store.HGetAll(ctx, exKey)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read compensation %s: %w", orderID, err)
	}
	first, err := model.CompensationFromHash(orderID, h)
	if err != nil {
		return nil, err
	}
	tripKey := store.TripKey(first.TripID)

	var released *model.Compensation
	err = s.store.Transaction(ctx, func(ctx context.Context, tx store.Txn) error {
		released = nil
		h, err := tx.HGetAll(ctx, exKey)
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		comp, err := model.CompensationFromHash(orderID, h)
		if err != nil {
			return err
		}
		alive, err := tx.Exists(ctx, orderKey)
		if err != nil {
			return err
		}
		if alive {
			return nil
		}
		trip, err := readTrip(ctx, tx, comp.TripID)
		if errors.Is(err, ErrTripNotFound) {
			trip = nil
		} else if err != nil {
			return err
		}
		released = comp
		tx.Queue(func(b store.Batch) {
			if trip != nil {
				b.HIncrBy(tripKey, model.TripFieldCurrentSeat, comp.Count)
				if trip.Status == model.TripFull {
					b.HSet(tripKey, map[string]interface{}{model.TripFieldStatus: string(model.TripPrepare)})
				}
			}
			b.Del(exKey)
			b.SRem(store.TripOrdersKey(comp.TripID), orderKey)
			if comp.PassengerID != "" {
				b.SRem(store.UserOrdersKey(comp.PassengerID), orderKey)
			}
		})
		return nil
	}, exKey, orderKey, tripKey)
	if err != nil {
		return nil, err
	}
	return released, nil
}

// WatcherOptions tunes a Watcher.
type WatcherOptions struct {
	// ReconcileEvery is the period of the compensation sweep.  Zero means
	// one minute.
	ReconcileEvery time.Duration
	// OnRelease, when set, is called after every successful reclamation.
	OnRelease func(ctx context.Context, c *model.Compensation)
	// PayOut, when set, makes every sweep resend owner payouts that were
	// recorded at FINISH but never confirmed.
	PayOut PayoutFunc
}

// Watcher consumes expired-key notifications for the lifetime of the
// process and reclaims the seats of orders that were never paid.  It owns
// its own subscription and writes results only to the store.
type Watcher struct {
	store     store.Store
	svc       *Service
	every     time.Duration
	onRelease func(ctx context.Context, c *model.Compensation)
	payOut    PayoutFunc
}

func NewWatcher(svc *Service, opts WatcherOptions) *Watcher {
	every := opts.ReconcileEvery
	if every <= 0 {
		every = time.Minute
	}
	return &Watcher{store: svc.store, svc: svc, every: every, onRelease: opts.OnRelease, payOut: opts.PayOut}
}

var errSubscriptionClosed = errors.New("expired-key subscription closed")

// Run subscribes and processes notifications until ctx is cancelled.  A
// failed or dropped subscription is retried with exponential backoff and
// followed by a reconciliation sweep, since notifications emitted while
// disconnected are lost.  Run only returns ctx.Err().
func (w *Watcher) Run(ctx context.Context) error {
	backoff := time.Second
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		sub, err := w.store.SubscribeExpired(ctx)
		if err != nil {
			log.Printf("expiry-watcher: subscribe failed: %v; retrying in %s", err, backoff)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		w.sweep(ctx)
		err = w.consume(ctx, sub)
		_ = sub.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Printf("expiry-watcher: %v; resubscribing", err)
	}
}

func (w *Watcher) consume(ctx context.Context, sub store.Subscription) error {
	ticker := time.NewTicker(w.every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case key, ok := <-sub.Channel():
			if !ok {
				return errSubscriptionClosed
			}
			w.HandleExpired(ctx, key)
		case <-ticker.C:
			w.sweep(ctx)
		}
	}
}

func (w *Watcher) sweep(ctx context.Context) {
	w.Reconcile(ctx)
	if w.payOut != nil {
		w.RetryPayouts(ctx)
	}
}

// HandleExpired processes one expired key name.  Only Order:<id> keys
// need compensation; everything else is ignored.  Errors are logged, never
// returned.
func (w *Watcher) HandleExpired(ctx context.Context, key string) {
	typ, id, ok := store.ParseKey(key)
	if !ok || typ != store.TypeOrder {
		return
	}
	w.release(ctx, id)
}

// Reconcile compensates every order whose compensation record outlived
// the order itself.  It returns the number of orders released.
func (w *Watcher) Reconcile(ctx context.Context) int {
	keys, err := w.store.ScanKeys(ctx, store.CompensationPattern)
	if err != nil {
		log.Printf("expiry-watcher: reconcile scan failed: %v", err)
		return 0
	}
	n := 0
	for _, k := range keys {
		_, id, ok := store.ParseKey(k)
		if !ok {
			continue
		}
		if w.release(ctx, id) {
			n++
		}
	}
	if n > 0 {
		log.Printf("expiry-watcher: reconcile released %d orders", n)
	}
	return n
}

// RetryPayouts resends every pending owner payout and returns how many
// went through.  Without a PayOut option it does nothing.
func (w *Watcher) RetryPayouts(ctx context.Context) int {
	if w.payOut == nil {
		return 0
	}
	pending, err := w.svc.PendingPayouts(ctx)
	if err != nil {
		log.Printf("expiry-watcher: list pending payouts: %v", err)
		return 0
	}
	n := 0
	for _, p := range pending {
		if err := w.svc.SettlePayout(ctx, p, w.payOut); err != nil {
			log.Printf("expiry-watcher: %v", err)
			continue
		}
		log.Printf("expiry-watcher: payout for trip %s sent to %s", p.TripID, p.OwnerID)
		n++
	}
	return n
}

func (w *Watcher) release(ctx context.Context, orderID string) bool {
	comp, err := w.svc.ReleaseExpired(ctx, orderID)
	if err != nil {
		log.Printf("expiry-watcher: release order %s: %v", orderID, err)
		return false
	}
	if comp == nil {
		return false
	}
	log.Printf("expiry-watcher: order %s expired, returned %d seats to trip %s", orderID, comp.Count, comp.TripID)
	if w.onRelease != nil {
		w.onRelease(ctx, comp)
	}
	return true
}
