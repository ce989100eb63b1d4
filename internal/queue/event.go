// Package queue defines the messages exchanged over RabbitMQ and the
// consumer that writes booking events to the audit log.
package queue

import "time"

// Queue names.
const (
	BookingEventsQueue = "booking.events"
	RefundQueue        = "payment.refund"
	PayoutQueue        = "payment.payout"
)

// EventType names a booking domain event.
type EventType string

const (
	OrderClaimed       EventType = "order.claimed"
	OrderPaid          EventType = "order.paid"
	OrderSubmitted     EventType = "order.submitted"
	OrderExpired       EventType = "order.expired"
	OrderPriceAdjusted EventType = "order.price_adjusted"
	TripPublished      EventType = "trip.published"
	TripFinished       EventType = "trip.finished"
)

// BookingEvent carries enough context for consumers to log, notify or run
// analytics without reading the inventory.  Unused fields are omitted.
type BookingEvent struct {
	Type        EventType `json:"type"`
	TripID      string    `json:"trip_id"`
	OrderID     string    `json:"order_id,omitempty"`
	UserID      string    `json:"user_id,omitempty"`
	Count       int64     `json:"count,omitempty"`
	AmountCents int64     `json:"amount_cents,omitempty"`
	At          time.Time `json:"at"`
}

// RefundRequest asks the payment worker to return money to a passenger.
type RefundRequest struct {
	OrderID       string    `json:"order_id"`
	TransactionID string    `json:"transaction_id"`
	AmountCents   int64     `json:"amount_cents"`
	RequestedAt   time.Time `json:"requested_at"`
}

// PayoutRequest asks the payment worker to pay a trip owner.
type PayoutRequest struct {
	BeneficiaryID string    `json:"beneficiary_id"`
	TripID        string    `json:"trip_id,omitempty"`
	AmountCents   int64     `json:"amount_cents"`
	RequestedAt   time.Time `json:"requested_at"`
}
