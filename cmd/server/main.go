package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/iliyamo/carpool-booking/internal/config"
	"github.com/iliyamo/carpool-booking/internal/database"
	"github.com/iliyamo/carpool-booking/internal/handler"
	"github.com/iliyamo/carpool-booking/internal/middleware"
	"github.com/iliyamo/carpool-booking/internal/model"
	"github.com/iliyamo/carpool-booking/internal/payment"
	"github.com/iliyamo/carpool-booking/internal/queue"
	"github.com/iliyamo/carpool-booking/internal/repository"
	"github.com/iliyamo/carpool-booking/internal/reservation"
	"github.com/iliyamo/carpool-booking/internal/router"
	"github.com/iliyamo/carpool-booking/internal/service"
	"github.com/iliyamo/carpool-booking/internal/store"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("no .env file loaded: %v", err)
	}
	cfg := config.Load()
	resCfg := config.LoadReservationConfig()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(ctx, cfg)
	if err != nil {
		log.Fatalf("mysql: %v", err)
	}
	defer db.Close()

	rdb, err := config.NewRedisClient(ctx)
	if err != nil {
		log.Fatalf("redis: %v", err)
	}
	defer rdb.Close()

	st := store.NewRedisStore(rdb)
	if err := st.EnableExpiryEvents(ctx); err != nil {
		log.Printf("redis: could not enable expiry notifications (%v); relying on server config and reconciliation", err)
	}

	publisher := service.NewPublisher(cfg.RabbitURL)
	svc := reservation.NewService(st, resCfg.ServiceOptions())
	payments := payment.NewQueueGateway(publisher)

	watcher := reservation.NewWatcher(svc, reservation.WatcherOptions{
		ReconcileEvery: resCfg.ReconcileEvery,
		OnRelease: func(_ context.Context, c *model.Compensation) {
			publisher.EmitAsync(queue.BookingEvent{
				Type: queue.OrderExpired, TripID: c.TripID, OrderID: c.OrderID, UserID: c.PassengerID, Count: c.Count,
			})
		},
		PayOut: payments.PayOut,
	})
	go func() { _ = watcher.Run(ctx) }()

	audit := &queue.AuditConsumer{URL: cfg.RabbitURL}
	go func() { _ = audit.Run(ctx) }()

	users := repository.NewUserRepo(db)
	trips := repository.NewTripRepo(st)
	orders := repository.NewOrderRepo(st)
	limiter := middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb)

	e := echo.New()
	e.HideBanner = true
	e.Use(echomw.Logger(), echomw.Recover())

	router.RegisterRoutes(e, handler.Health(st))
	router.RegisterAuth(e, handler.NewAuthHandler(cfg, users, repository.NewTokenRepo(db)), cfg.JWTSecret)
	router.RegisterTrips(e, handler.NewTripHandler(svc, trips, orders, users, publisher), cfg.JWTSecret, limiter)
	router.RegisterOrders(e, handler.NewOrderHandler(svc, orders, payments, publisher), cfg.JWTSecret, limiter)

	addr := ":" + cfg.Port
	go func() {
		log.Printf("listening on %s (env=%s)", addr, cfg.Env)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal(err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown: %v", err)
	}
}
