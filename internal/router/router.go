package router // package router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4" // import the Echo web framework to handle routing
	"github.com/redis/go-redis/v9"

	"github.com/camhoccode/seatflash/internal/config"     // application configuration
	"github.com/camhoccode/seatflash/internal/handler"    // import the handlers that implement business logic
	"github.com/camhoccode/seatflash/internal/middleware" // import middleware for JWT authentication and role enforcement
)

// RegisterRoutes registers routes that do not require authentication on the
// provided Echo instance.  Currently it exposes only a health check.
func RegisterRoutes(e *echo.Echo) {
	// Map the GET request at path "/healthz" to the Health handler.  This
	// endpoint can be used by load balancers or monitoring systems to verify
	// that the service is up and running.
	e.GET("/healthz", handler.Health)
}

// RegisterBooking wires the booking/payment HTTP surface (spec.md §6) onto
// the protected /v1 group: bearer JWT, role check, then a per-route token
// bucket. GET endpoints additionally pick up the response cache.
func RegisterBooking(e *echo.Echo, cfg config.Config, rdb *redis.Client, bh *handler.BookingHandler, ph *handler.PaymentHandler) {
	limiter := middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb)
	cache := middleware.NewRedisCache(config.LoadCacheConfig(), rdb)

	g := e.Group("/v1")
	g.Use(middleware.JWTAuth(cfg.JWTSecret))
	g.Use(middleware.RequireRole("OWNER", "CUSTOMER"))
	g.Use(limiter)

	g.POST("/bookings/hold", bh.HoldSeats)
	g.POST("/bookings/:id/confirm", ph.CreatePayment)
	g.DELETE("/bookings/:id", bh.CancelBooking)
	g.GET("/bookings/:id", bh.GetBooking, cache)
	g.POST("/payments", ph.CreatePayment)
	g.GET("/payments/:id", ph.GetPayment, cache)

	// The gateway webhook carries its own signature, not a user JWT, so it
	// is registered outside the authenticated group.
	e.POST("/v1/payments/webhook/:provider", ph.HandleWebhook)
}
