package config

import (
	"time"

	"github.com/iliyamo/carpool-booking/internal/reservation"
)

// ReservationConfig tunes the seat reservation core and its expiry watcher.
type ReservationConfig struct {
	OrderTTL       time.Duration // unpaid order lifetime
	RefundCutoff   time.Duration // no price reductions this close to departure
	ReconcileEvery time.Duration // period of the compensation and payout sweep
}

func LoadReservationConfig() ReservationConfig {
	return ReservationConfig{
		OrderTTL:       envDur("ORDER_TTL", reservation.DefaultOrderTTL),
		RefundCutoff:   envDur("REFUND_CUTOFF", reservation.DefaultRefundCutoff),
		ReconcileEvery: envDur("RECONCILE_EVERY", time.Minute),
	}
}

// ServiceOptions converts the configuration into reservation.Options.
func (c ReservationConfig) ServiceOptions() reservation.Options {
	return reservation.Options{
		OrderTTL:     c.OrderTTL,
		RefundCutoff: c.RefundCutoff,
	}
}
