package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/carpool-booking/internal/model"
	"github.com/iliyamo/carpool-booking/internal/queue"
	"github.com/iliyamo/carpool-booking/internal/repository"
	"github.com/iliyamo/carpool-booking/internal/reservation"
)

// ProfileReader looks up profiles.  *repository.UserRepo satisfies it.
type ProfileReader interface {
	GetByID(ctx context.Context, id string) (model.User, error)
}

// TripHandler serves trip publication and browsing.
type TripHandler struct {
	Svc      *reservation.Service
	Trips    *repository.TripRepo
	Orders   *repository.OrderRepo
	Profiles ProfileReader
	Events   Emitter
	Now      func() time.Time
}

func NewTripHandler(svc *reservation.Service, trips *repository.TripRepo, orders *repository.OrderRepo, profiles ProfileReader, events Emitter) *TripHandler {
	if svc == nil || trips == nil || orders == nil || profiles == nil || events == nil {
		panic("nil dependency passed to NewTripHandler")
	}
	return &TripHandler{Svc: svc, Trips: trips, Orders: orders, Profiles: profiles, Events: events, Now: time.Now}
}

type publishTripReq struct {
	SeatCount  int64     `json:"seat_count"`
	PriceCents int64     `json:"price_cents"`
	Start      string    `json:"start"`
	End        string    `json:"end"`
	StartTime  time.Time `json:"start_time"`
	Message    string    `json:"message"`
}

// Publish handles POST /v1/trips.  Vehicle and contact details are copied
// from the owner's profile.
func (h *TripHandler) Publish(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	var req publishTripReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	req.Start, req.End = strings.TrimSpace(req.Start), strings.TrimSpace(req.End)
	if req.Start == "" || req.End == "" {
		return badRequest(c, "start and end are required")
	}
	if !req.StartTime.After(h.Now()) {
		return badRequest(c, "start_time must be in the future")
	}

	ctx := c.Request().Context()
	owner, err := h.Profiles.GetByID(ctx, uid)
	if err != nil {
		return fail(c, err)
	}
	if !owner.IsOwner() {
		return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
	}
	trip, err := h.Svc.PublishTrip(ctx, model.Trip{
		OwnerID:      uid,
		SeatCount:    req.SeatCount,
		PriceCents:   req.PriceCents,
		Start:        req.Start,
		End:          req.End,
		StartTime:    req.StartTime.UTC(),
		Message:      strings.TrimSpace(req.Message),
		VehiclePlate: owner.VehiclePlate,
		VehicleModel: owner.VehicleModel,
		Tel:          owner.Tel,
	})
	if err != nil {
		return fail(c, err)
	}
	h.Events.EmitAsync(queue.BookingEvent{
		Type: queue.TripPublished, TripID: trip.ID, UserID: uid, Count: trip.SeatCount,
	})
	return c.JSON(http.StatusCreated, trip)
}

// List handles GET /v1/trips?offset=&limit=&open=true.
func (h *TripHandler) List(c echo.Context) error {
	limit := queryInt(c, "limit", 20)
	if limit > 100 {
		limit = 100
	}
	trips, err := h.Trips.List(c.Request().Context(), queryInt(c, "offset", 0), limit, c.QueryParam("open") == "true")
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"trips": trips})
}

// Get handles GET /v1/trips/:id.
func (h *TripHandler) Get(c echo.Context) error {
	trip, err := h.Trips.Get(c.Request().Context(), c.Param("id"))
	if errors.Is(err, repository.ErrNotFound) {
		return fail(c, reservation.ErrTripNotFound)
	}
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, trip)
}

// Mine handles GET /v1/my-trips.
func (h *TripHandler) Mine(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	trips, err := h.Trips.ByOwner(c.Request().Context(), uid)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"trips": trips})
}

// ListOrders handles GET /v1/trips/:id/orders for the trip owner.
func (h *TripHandler) ListOrders(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	ctx := c.Request().Context()
	trip, err := h.Trips.Get(ctx, c.Param("id"))
	if errors.Is(err, repository.ErrNotFound) {
		return fail(c, reservation.ErrTripNotFound)
	}
	if err != nil {
		return fail(c, err)
	}
	if trip.OwnerID != uid {
		return fail(c, reservation.ErrNotTripOwner)
	}
	orders, err := h.Orders.ByTrip(ctx, trip.ID)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"trip_id": trip.ID, "orders": orders})
}
