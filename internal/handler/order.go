package handler

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/carpool-booking/internal/model"
	"github.com/iliyamo/carpool-booking/internal/payment"
	"github.com/iliyamo/carpool-booking/internal/queue"
	"github.com/iliyamo/carpool-booking/internal/repository"
	"github.com/iliyamo/carpool-booking/internal/reservation"
)

// OrderHandler serves seat claims and the order lifecycle.
type OrderHandler struct {
	Svc      *reservation.Service
	Orders   *repository.OrderRepo
	Payments payment.Gateway
	Events   Emitter
}

func NewOrderHandler(svc *reservation.Service, orders *repository.OrderRepo, payments payment.Gateway, events Emitter) *OrderHandler {
	if svc == nil || orders == nil || payments == nil || events == nil {
		panic("nil dependency passed to NewOrderHandler")
	}
	return &OrderHandler{Svc: svc, Orders: orders, Payments: payments, Events: events}
}

type claimReq struct {
	Count int64  `json:"count"`
	Tel   string `json:"tel"`
}

type payReq struct {
	OrderID       string `json:"order_id"`
	TransactionID string `json:"transaction_id"`
}

type priceReq struct {
	DeltaCents int64 `json:"delta_cents"`
}

// Claim handles POST /v1/trips/:id/orders.  The order must be paid within
// expires_in seconds or its seats return to the trip.
func (h *OrderHandler) Claim(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	var req claimReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	order, err := h.Svc.ClaimSeats(c.Request().Context(), c.Param("id"), uid, req.Count, strings.TrimSpace(req.Tel))
	if err != nil {
		return fail(c, err)
	}
	h.Events.EmitAsync(queue.BookingEvent{
		Type: queue.OrderClaimed, TripID: order.TripID, OrderID: order.ID, UserID: uid,
		Count: order.Count, AmountCents: order.PriceCents,
	})
	return c.JSON(http.StatusCreated, echo.Map{
		"order":      order,
		"expires_in": int(h.Svc.OrderTTL() / time.Second),
	})
}

// Get handles GET /v1/orders/:id for the passenger or the trip owner.
func (h *OrderHandler) Get(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	o, err := h.Orders.GetVisible(c.Request().Context(), c.Param("id"), uid)
	if err != nil {
		return fail(c, orderErr(err))
	}
	return c.JSON(http.StatusOK, o)
}

// Mine handles GET /v1/my-orders.
func (h *OrderHandler) Mine(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	orders, err := h.Orders.ByUser(c.Request().Context(), uid)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"orders": orders})
}

// Pay handles POST /v1/orders/:id/pay, called once the passenger's payment
// went through.  Paying an order twice is harmless.
func (h *OrderHandler) Pay(c echo.Context) error {
	ctx := c.Request().Context()
	o, err := h.passengerOrder(c)
	if err != nil {
		return fail(c, err)
	}
	var req payReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	paid, transitioned, err := h.Svc.ConfirmPayment(ctx, o.ID, reservation.PaymentRefs{
		OrderID:       strings.TrimSpace(req.OrderID),
		TransactionID: strings.TrimSpace(req.TransactionID),
	})
	if err != nil {
		return fail(c, err)
	}
	if transitioned {
		h.Events.EmitAsync(queue.BookingEvent{
			Type: queue.OrderPaid, TripID: paid.TripID, OrderID: paid.ID, UserID: paid.PassengerID,
			Count: paid.Count, AmountCents: paid.PriceCents,
		})
	}
	return c.JSON(http.StatusOK, paid)
}

// Submit handles POST /v1/orders/:id/submit: the passenger confirms the
// ride happened.  When this was the last open order the trip finishes and
// the owner's payout is requested.
func (h *OrderHandler) Submit(c echo.Context) error {
	ctx := c.Request().Context()
	o, err := h.passengerOrder(c)
	if err != nil {
		return fail(c, err)
	}
	tripID, err := h.Svc.Submit(ctx, o.ID)
	if err != nil {
		return fail(c, err)
	}
	h.Events.EmitAsync(queue.BookingEvent{
		Type: queue.OrderSubmitted, TripID: tripID, OrderID: o.ID, UserID: o.PassengerID,
	})

	done, err := h.Svc.CheckTripCompletion(ctx, tripID)
	if err != nil {
		// The submission stands; the next one re-runs the check.
		log.Printf("handler: completion check for trip %s: %v", tripID, err)
		return c.JSON(http.StatusOK, echo.Map{"order_id": o.ID, "status": model.OrderSubmitted, "trip_finished": false})
	}
	if done.Finished {
		if done.PayoutCents > 0 {
			h.settlePayout(ctx, reservation.PendingPayout{TripID: tripID, OwnerID: done.OwnerID, AmountCents: done.PayoutCents})
		}
		h.Events.EmitAsync(queue.BookingEvent{
			Type: queue.TripFinished, TripID: tripID, UserID: done.OwnerID,
			Count: int64(done.Orders), AmountCents: done.PayoutCents,
		})
	}
	return c.JSON(http.StatusOK, echo.Map{"order_id": o.ID, "status": model.OrderSubmitted, "trip_finished": done.Finished})
}

// AdjustPrice handles POST /v1/orders/:id/price.  A reduction on a paid
// order is refunded through the payment worker.
func (h *OrderHandler) AdjustPrice(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	var req priceReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	ctx := c.Request().Context()
	orderID := c.Param("id")
	txID, err := h.Svc.AdjustPrice(ctx, orderID, uid, req.DeltaCents)
	if err != nil {
		return fail(c, err)
	}

	refund := "none"
	if req.DeltaCents < 0 {
		refund = h.requestRefund(ctx, orderID, txID, -req.DeltaCents)
	}
	o, err := h.Orders.Get(ctx, orderID)
	if err != nil {
		return fail(c, orderErr(err))
	}
	h.Events.EmitAsync(queue.BookingEvent{
		Type: queue.OrderPriceAdjusted, TripID: o.TripID, OrderID: o.ID, UserID: uid, AmountCents: req.DeltaCents,
	})
	return c.JSON(http.StatusOK, echo.Map{"order": o, "refund": refund})
}

// settlePayout sends the payout recorded by the FINISH transition.  The
// send outlives the request; on failure the watcher sweep retries it.
func (h *OrderHandler) settlePayout(ctx context.Context, p reservation.PendingPayout) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := h.Svc.SettlePayout(ctx, p, h.Payments.PayOut); err != nil {
		log.Printf("handler: %v; left for the payout sweep", err)
	}
}

func (h *OrderHandler) requestRefund(ctx context.Context, orderID, txID string, amount int64) string {
	err := h.Payments.Refund(ctx, orderID, txID, amount)
	switch {
	case err == nil:
		return "requested"
	case errors.Is(err, payment.ErrNoTransaction):
		return "not_paid"
	default:
		log.Printf("handler: refund for order %s: %v", orderID, err)
		return "failed"
	}
}

// passengerOrder loads the order in the path and checks the caller placed
// it.
func (h *OrderHandler) passengerOrder(c echo.Context) (*model.Order, error) {
	uid, err := getUserID(c)
	if err != nil {
		return nil, repository.ErrForbidden
	}
	o, err := h.Orders.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return nil, orderErr(err)
	}
	if o.PassengerID != uid {
		return nil, repository.ErrForbidden
	}
	return o, nil
}

func orderErr(err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return reservation.ErrOrderNotFound
	}
	return err
}
