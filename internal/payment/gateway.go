// Package payment is the service's side of the payment provider.  Money
// never moves here: refunds and payouts are handed to the payment worker
// through RabbitMQ.
package payment

import (
	"context"
	"errors"
	"time"

	"github.com/iliyamo/carpool-booking/internal/queue"
)

// Gateway requests money movements from the payment provider.
type Gateway interface {
	Refund(ctx context.Context, orderID, transactionID string, amountCents int64) error
	PayOut(ctx context.Context, beneficiaryID, tripID string, amountCents int64) error
}

// Sender publishes a JSON message to a queue.  *service.Publisher
// satisfies it.
type Sender interface {
	Send(ctx context.Context, queueName string, v interface{}) error
}

// ErrNoTransaction is returned when a refund is requested for an order that
// was never paid through the provider.
var ErrNoTransaction = errors.New("order has no payment transaction")

// QueueGateway implements Gateway on top of a Sender.
type QueueGateway struct {
	sender Sender
	now    func() time.Time
}

func NewQueueGateway(s Sender) *QueueGateway {
	if s == nil {
		panic("nil sender passed to payment.NewQueueGateway")
	}
	return &QueueGateway{sender: s, now: time.Now}
}

func (g *QueueGateway) Refund(ctx context.Context, orderID, transactionID string, amountCents int64) error {
	if transactionID == "" {
		return ErrNoTransaction
	}
	if amountCents <= 0 {
		return nil
	}
	return g.sender.Send(ctx, queue.RefundQueue, queue.RefundRequest{
		OrderID:       orderID,
		TransactionID: transactionID,
		AmountCents:   amountCents,
		RequestedAt:   g.now().UTC(),
	})
}

func (g *QueueGateway) PayOut(ctx context.Context, beneficiaryID, tripID string, amountCents int64) error {
	if amountCents <= 0 {
		return nil
	}
	return g.sender.Send(ctx, queue.PayoutQueue, queue.PayoutRequest{
		BeneficiaryID: beneficiaryID,
		TripID:        tripID,
		AmountCents:   amountCents,
		RequestedAt:   g.now().UTC(),
	})
}
