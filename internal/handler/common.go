// Package handler implements the HTTP API on echo.
package handler

import (
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/carpool-booking/internal/middleware"
	"github.com/iliyamo/carpool-booking/internal/queue"
	"github.com/iliyamo/carpool-booking/internal/repository"
	"github.com/iliyamo/carpool-booking/internal/reservation"
)

// Emitter publishes booking events without blocking the request.
type Emitter interface {
	EmitAsync(ev queue.BookingEvent)
}

var errUnauthenticated = errors.New("invalid user_id in context")

// getUserID returns the profile id stored by the JWT middleware.
func getUserID(c echo.Context) (string, error) {
	if uid := middleware.UserID(c); uid != "" {
		return uid, nil
	}
	return "", errUnauthenticated
}

var reasonStatus = map[string]int{
	"insufficient_seats":   http.StatusConflict,
	"order_not_paid":       http.StatusConflict,
	"not_trip_owner":       http.StatusForbidden,
	"trip_not_found":       http.StatusNotFound,
	"order_not_found":      http.StatusNotFound,
	"invalid_count":        http.StatusBadRequest,
	"invalid_trip":         http.StatusBadRequest,
	"trip_closed":          http.StatusConflict,
	"own_trip":             http.StatusConflict,
	"invalid_price":        http.StatusBadRequest,
	"refund_window_closed": http.StatusConflict,
}

// fail maps an error to a JSON response.  Business errors carry their
// reason code; anything else is logged and reported as a 500 without
// details.
func fail(c echo.Context, err error) error {
	if reason, ok := reservation.Reason(err); ok {
		status, known := reasonStatus[reason]
		if !known {
			status = http.StatusBadRequest
		}
		return c.JSON(status, echo.Map{"error": reason})
	}
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "not_found"})
	case errors.Is(err, repository.ErrForbidden):
		return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
	}
	log.Printf("handler: %s %s: %v", c.Request().Method, c.Path(), err)
	return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal_error"})
}

func badRequest(c echo.Context, msg string) error {
	return c.JSON(http.StatusBadRequest, echo.Map{"error": msg})
}

func queryInt(c echo.Context, name string, def int64) int64 {
	if v := c.QueryParam(name); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return def
}
