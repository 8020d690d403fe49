package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/nowshin-108/capstone/internal/bidding"
	"github.com/nowshin-108/capstone/internal/config"
	"github.com/nowshin-108/capstone/internal/database"
	"github.com/nowshin-108/capstone/internal/handler"
	"github.com/nowshin-108/capstone/internal/middleware"
	"github.com/nowshin-108/capstone/internal/notify"
	"github.com/nowshin-108/capstone/internal/queue"
	"github.com/nowshin-108/capstone/internal/repository"
	"github.com/nowshin-108/capstone/internal/router"
	"github.com/nowshin-108/capstone/internal/scheduler"
	"github.com/nowshin-108/capstone/internal/service"
)

func main() {
	cfg := config.Load()
	bidCfg, err := config.LoadBiddingConfig()
	if err != nil {
		log.Fatalf("bidding config: %v", err)
	}

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer db.Close()
	if cfg.DBMigrate {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		err := database.Migrate(ctx, db)
		cancel()
		if err != nil {
			log.Fatalf("migrate: %v", err)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Events go through RabbitMQ when configured so every instance's
	// clients see them; otherwise straight to the local hub.
	hub := notify.NewHub()
	var events notify.Publisher = hub
	if cfg.RabbitURL != "" {
		host, _ := os.Hostname()
		relay := service.NewEventRelay(cfg.RabbitURL, host, hub)
		defer relay.Close()
		events = relay
		go func() {
			if err := queue.StartRelayConsumer(ctx, cfg.RabbitURL, hub); err != nil && !errors.Is(err, context.Canceled) {
				log.Printf("relay-consumer: stopped: %v", err)
			}
		}()
		go func() {
			if err := queue.StartAuditConsumer(ctx, cfg.RabbitURL, cfg.AuditLogDir); err != nil && !errors.Is(err, context.Canceled) {
				log.Printf("audit-consumer: stopped: %v", err)
			}
		}()
	}

	passengers := repository.NewPassengerRepo(db)
	flights := repository.NewFlightRepo(db)
	engine := bidding.NewEngine(bidding.Deps{
		Store:     repository.NewBiddingRepo(db),
		Seats:     passengers,
		Swapper:   repository.NewSeatSwapRepo(db),
		Flights:   flights,
		Events:    events,
		Scheduler: scheduler.New(scheduler.System()),
	}, bidding.Options{
		ExpiryMargin:  bidCfg.ExpiryMargin,
		MaxWindow:     bidCfg.MaxWindow,
		ExpireTimeout: bidCfg.ExpireTimeout,
	})
	defer engine.Close()
	if n, err := engine.Recover(ctx); err != nil {
		log.Printf("bidding: recover timers: %v", err)
	} else {
		log.Printf("bidding: %d expiration timers armed", n)
	}

	rdb := config.NewRedisClient()
	if rdb != nil {
		defer rdb.Close()
	}

	e := echo.New()
	e.HideBanner = true
	e.Use(echomw.Recover())
	e.Use(echomw.RequestID())
	e.Use(echomw.Logger())

	router.RegisterRoutes(e, db)
	router.RegisterAuth(e, handler.NewAuthHandler(cfg, repository.NewUserRepo(db), repository.NewTokenRepo(db)), cfg.JWTSecret)
	router.RegisterBidding(e,
		handler.NewBiddingHandler(engine),
		handler.NewRealtimeHandler(hub, bidCfg.SubscriberBuffer, allowOrigin(cfg.Env)),
		cfg.JWTSecret,
		middleware.NewRateLimiter(config.LoadRateLimitConfig(), rdb).Middleware(),
	)
	router.RegisterFlights(e, handler.NewFlightHandler(flights, passengers), cfg.JWTSecret,
		middleware.NewRedisCache(config.LoadCacheConfig(), rdb))

	addr := ":" + cfg.Port
	go func() {
		log.Printf("listening on %s (env=%s)", addr, cfg.Env)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal(err)
		}
	}()

	<-ctx.Done()
	shutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdown); err != nil {
		log.Printf("shutdown: %v", err)
	}
}

// allowOrigin accepts any WebSocket origin in development and defers to
// the same-origin check elsewhere.
func allowOrigin(env string) func(r *http.Request) bool {
	if env == "dev" {
		return func(*http.Request) bool { return true }
	}
	return nil
}
