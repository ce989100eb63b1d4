// Package router wires handlers and middleware onto echo routes.
package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/carpool-booking/internal/handler"
	"github.com/iliyamo/carpool-booking/internal/middleware"
	"github.com/iliyamo/carpool-booking/internal/model"
)

// RegisterRoutes registers the unauthenticated operational endpoints.
func RegisterRoutes(e *echo.Echo, health echo.HandlerFunc) {
	e.GET("/healthz", health)
}

// RegisterAuth registers sign-up, sign-in and session endpoints.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, jwtSecret string) {
	g := e.Group("/v1/auth")
	g.POST("/register", a.Register)
	g.POST("/login", a.Login)
	g.POST("/refresh", a.Refresh)

	anyRole := []echo.MiddlewareFunc{
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(model.RolePassenger, model.RoleOwner),
	}
	v1 := e.Group("/v1")
	v1.POST("/auth/logout", a.Logout, anyRole...)
	v1.GET("/me", a.Me, anyRole...)
	v1.POST("/owner/register", a.RegisterOwner, anyRole...)
}

// RegisterTrips registers trip browsing (public) and trip management
// (OWNER).  limiter wraps the write endpoint.
func RegisterTrips(e *echo.Echo, t *handler.TripHandler, jwtSecret string, limiter echo.MiddlewareFunc) {
	v1 := e.Group("/v1")
	v1.GET("/trips", t.List)
	v1.GET("/trips/:id", t.Get)

	owner := []echo.MiddlewareFunc{middleware.JWTAuth(jwtSecret), middleware.RequireRole(model.RoleOwner)}
	v1.POST("/trips", t.Publish, append(owner, limiter)...)
	v1.GET("/my-trips", t.Mine, owner...)
	v1.GET("/trips/:id/orders", t.ListOrders, owner...)
}

// RegisterOrders registers seat claims and the order lifecycle.  Claims go
// through the rate limiter since each one contends on a trip key.
func RegisterOrders(e *echo.Echo, o *handler.OrderHandler, jwtSecret string, limiter echo.MiddlewareFunc) {
	v1 := e.Group("/v1")
	auth := middleware.JWTAuth(jwtSecret)
	anyRole := middleware.RequireRole(model.RolePassenger, model.RoleOwner)

	v1.POST("/trips/:id/orders", o.Claim, auth, anyRole, limiter)
	v1.GET("/my-orders", o.Mine, auth, anyRole)
	v1.GET("/orders/:id", o.Get, auth, anyRole)
	v1.POST("/orders/:id/pay", o.Pay, auth, anyRole)
	v1.POST("/orders/:id/submit", o.Submit, auth, anyRole)
	v1.POST("/orders/:id/price", o.AdjustPrice, auth, middleware.RequireRole(model.RoleOwner), limiter)
}
