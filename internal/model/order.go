package model

import "time"

// OrderStatus is the payment lifecycle of an order.  Orders only move
// forward: UNPAID → PAID → SUBMITTED.
type OrderStatus string

const (
	OrderUnpaid    OrderStatus = "UNPAID"
	OrderPaid      OrderStatus = "PAID"
	OrderSubmitted OrderStatus = "SUBMITTED"
)

var orderNext = map[OrderStatus]OrderStatus{
	OrderUnpaid: OrderPaid,
	OrderPaid:   OrderSubmitted,
}

// CanTransition reports whether to is the single legal successor of from.
func CanTransition(from, to OrderStatus) bool {
	next, ok := orderNext[from]
	return ok && next == to
}

// Hash field names of Order:<id> and OrderEx:<id> records.
const (
	OrderFieldTripID        = "trip_id"
	OrderFieldTripOwner     = "trip_owner"
	OrderFieldPassenger     = "passenger"
	OrderFieldTel           = "tel"
	OrderFieldPayOrderID    = "order_id"
	OrderFieldTransactionID = "transaction_id"
	OrderFieldStatus        = "status"
	OrderFieldPrice         = "price"
	OrderFieldCount         = "count"
	OrderFieldStartTime     = "start_time"
	OrderFieldCreatedAt     = "created_at"
)

// Order is a passenger's reservation of Count seats on a trip.
//
// Fields:
//
//	ID            – uuid assigned at claim time.
//	TripID        – trip the seats were taken from.
//	TripOwner     – copied from the trip; authorises price adjustments.
//	PassengerID   – profile id of the passenger.
//	Tel           – passenger contact number.
//	PayOrderID    – payment provider order reference, set on payment.
//	TransactionID – payment provider transaction reference, set on payment.
//	Status        – see OrderStatus.
//	PriceCents    – amount charged; independent of the trip after creation.
//	Count         – seats held.
//	StartTime     – trip departure, denormalised.
type Order struct {
	ID            string      `json:"id"`
	TripID        string      `json:"trip_id"`
	TripOwner     string      `json:"trip_owner"`
	PassengerID   string      `json:"passenger_id"`
	Tel           string      `json:"tel,omitempty"`
	PayOrderID    string      `json:"order_id,omitempty"`
	TransactionID string      `json:"transaction_id,omitempty"`
	Status        OrderStatus `json:"status"`
	PriceCents    int64       `json:"price_cents"`
	Count         int64       `json:"count"`
	StartTime     time.Time   `json:"start_time"`
	CreatedAt     time.Time   `json:"created_at"`
}

// Hash encodes the order as Order:<id> hash fields.  Payment references are
// only written once they are known.
func (o *Order) Hash() map[string]interface{} {
	h := map[string]interface{}{
		OrderFieldTripID:    o.TripID,
		OrderFieldTripOwner: o.TripOwner,
		OrderFieldPassenger: o.PassengerID,
		OrderFieldTel:       o.Tel,
		OrderFieldStatus:    string(o.Status),
		OrderFieldPrice:     o.PriceCents,
		OrderFieldCount:     o.Count,
		OrderFieldStartTime: o.StartTime.UTC().Format(time.RFC3339),
		OrderFieldCreatedAt: o.CreatedAt.UTC().Format(time.RFC3339),
	}
	if o.PayOrderID != "" {
		h[OrderFieldPayOrderID] = o.PayOrderID
	}
	if o.TransactionID != "" {
		h[OrderFieldTransactionID] = o.TransactionID
	}
	return h
}

// OrderFromHash decodes an Order:<id> hash.
func OrderFromHash(id string, h map[string]string) (*Order, error) {
	o := &Order{
		ID:            id,
		TripID:        h[OrderFieldTripID],
		TripOwner:     h[OrderFieldTripOwner],
		PassengerID:   h[OrderFieldPassenger],
		Tel:           h[OrderFieldTel],
		PayOrderID:    h[OrderFieldPayOrderID],
		TransactionID: h[OrderFieldTransactionID],
		Status:        OrderStatus(h[OrderFieldStatus]),
	}
	var err error
	if o.PriceCents, err = intField(h, OrderFieldPrice); err != nil {
		return nil, err
	}
	if o.Count, err = intField(h, OrderFieldCount); err != nil {
		return nil, err
	}
	if o.StartTime, err = timeField(h, OrderFieldStartTime); err != nil {
		return nil, err
	}
	if o.CreatedAt, err = timeField(h, OrderFieldCreatedAt); err != nil {
		return nil, err
	}
	return o, nil
}

// Compensation is the OrderEx:<id> side record: everything the expiry
// watcher needs to undo a claim once the order itself is gone.
type Compensation struct {
	OrderID     string
	TripID      string
	PassengerID string
	Count       int64
}

// Hash encodes the compensation record.
func (c *Compensation) Hash() map[string]interface{} {
	return map[string]interface{}{
		OrderFieldTripID:    c.TripID,
		OrderFieldPassenger: c.PassengerID,
		OrderFieldCount:     c.Count,
	}
}

// CompensationFromHash decodes an OrderEx:<id> hash.  A record without a
// trip id or with a non-positive count is rejected.
func CompensationFromHash(orderID string, h map[string]string) (*Compensation, error) {
	n, err := intField(h, OrderFieldCount)
	if err != nil {
		return nil, err
	}
	c := &Compensation{
		OrderID:     orderID,
		TripID:      h[OrderFieldTripID],
		PassengerID: h[OrderFieldPassenger],
		Count:       n,
	}
	if c.TripID == "" {
		return nil, &DecodeError{Field: OrderFieldTripID}
	}
	if c.Count <= 0 {
		return nil, &DecodeError{Field: OrderFieldCount, Value: h[OrderFieldCount]}
	}
	return c, nil
}
