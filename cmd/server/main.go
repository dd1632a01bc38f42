package main // Entry point package

import (
	"context"
	"log" // Logging library
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4" // Echo web framework
	"go.uber.org/zap"

	"github.com/camhoccode/seatflash/internal/booking"
	"github.com/camhoccode/seatflash/internal/config" // Internal config loader
	"github.com/camhoccode/seatflash/internal/database"
	"github.com/camhoccode/seatflash/internal/engine"
	"github.com/camhoccode/seatflash/internal/gateway"
	"github.com/camhoccode/seatflash/internal/idempotency"
	"github.com/camhoccode/seatflash/internal/payment"
	"github.com/camhoccode/seatflash/internal/queue"
	"github.com/camhoccode/seatflash/internal/reaper"
	"github.com/camhoccode/seatflash/internal/repository"
	"github.com/camhoccode/seatflash/internal/router" // Internal router setup
	"github.com/camhoccode/seatflash/internal/service"

	"github.com/camhoccode/seatflash/internal/handler"
)

func main() {
	_ = godotenv.Load() // best-effort local .env load, same as the teacher's startup

	cfg := config.Load() // Load environment config

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("zap: %v", err)
	}
	defer logger.Sync()

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer db.Close()

	// config.NewRedisClient's nil-on-failure contract exists for the
	// ambient rate limiter/cache (internal/middleware), which degrade
	// gracefully without Redis. The Seat Reservation Engine has no such
	// fallback: it is the sole concurrency-control primitive the whole
	// booking flow relies on (spec.md §5), so a missing Redis here must
	// fail startup exactly like a missing database does, not limp along
	// until the first request panics inside Runtime.run.
	rdb := config.NewRedisClient()
	if rdb == nil {
		log.Fatalf("redis: unable to connect at startup; the seat reservation engine cannot start without it")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Seat Reservation Engine (spec.md §4.A/§4.B).
	rt := engine.NewRuntime(rdb, logger)
	if err := rt.Preload(ctx); err != nil {
		log.Fatalf("engine: failed to preload scripts: %v", err)
	}
	seatEngine := engine.NewSeatEngine(rt)

	// Idempotency Store + expiry sweeper (spec.md §4.C).
	idemStore := idempotency.NewStore(db, cfg.IdempotencyTTL)
	idemSweeper := idempotency.NewSweeper(idemStore, cfg.ReaperPeriod, logger)
	go idemSweeper.Run(ctx)

	// Booking lifecycle events are published to one shared connection
	// (internal/queue.ExchangeName) so the orchestrator and the reaper
	// don't each hold their own broker connection.
	eventPublisher := service.NewPublisher()

	// Booking Orchestrator (spec.md §4.D).
	bookingRepo := booking.NewMySQLRepository(db)
	showRepo := repository.NewShowRepo(db)
	showSeatRepo := repository.NewShowSeatRepo(db)
	bookingSvc := booking.NewService(bookingRepo, idemStore, seatEngine, showRepo, showSeatRepo, cfg.HoldDuration, cfg.MaxSeatsPerBooking).
		WithPublisher(eventPublisher)

	// Payment Orchestrator + Webhook Reconciler (spec.md §4.E).
	paymentRepo := payment.NewMySQLRepository(db)
	mockGateway := gateway.NewMockGateway(cfg.PaymentExpiry)
	webhookSigner := gateway.NewWebhookSigner(map[string]string{
		gateway.ProviderMomo:    mustSecret("WEBHOOK_SECRET_MOMO"),
		gateway.ProviderVNPay:   mustSecret("WEBHOOK_SECRET_VNPAY"),
		gateway.ProviderZalopay: mustSecret("WEBHOOK_SECRET_ZALOPAY"),
		gateway.ProviderCard:    mustSecret("WEBHOOK_SECRET_CARD"),
	})
	paymentSvc := payment.NewService(paymentRepo, idemStore, bookingRepo, bookingSvc, mockGateway, cfg.PaymentExpiry)

	// Expiry Reaper (spec.md §4.F).
	exp := reaper.New(bookingRepo, seatEngine, cfg.ReaperPeriod, logger).
		WithPublisher(eventPublisher)
	go exp.Run(ctx)

	// Booking lifecycle consumer, decoupled from the publisher above;
	// optional in deployments that don't run a downstream worker.
	go func() {
		if err := queue.StartBookingConsumer(); err != nil {
			logger.Error("booking consumer stopped", zap.Error(err))
		}
	}()

	e := echo.New()
	router.RegisterRoutes(e)
	router.RegisterBooking(e, cfg, rdb,
		handler.NewBookingHandler(bookingSvc),
		handler.NewPaymentHandler(paymentSvc, webhookSigner),
	)

	addr := ":" + cfg.Port
	logger.Info("listening", zap.String("addr", addr), zap.String("env", cfg.Env))

	go func() {
		if err := e.Start(addr); err != nil {
			logger.Info("http server stopped", zap.Error(err))
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}

// mustSecret reads a webhook secret from the environment. An empty
// secret makes WebhookSigner.Verify fail closed for that provider
// rather than halting startup, since not every deployment enables
// every provider.
func mustSecret(key string) string {
	return os.Getenv(key)
}
