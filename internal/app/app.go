// Package app assembles repositories, services and HTTP handlers into a fiber application.
package app

import (
	"errors"
	"fmt"
	"time"

	"fabricmart/internal/config"
	"fabricmart/internal/handlers"
	"fabricmart/internal/middleware"
	"fabricmart/internal/repositories"
	"fabricmart/internal/services"
	"fabricmart/pkg/payments"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Options carries everything New needs. Gateway and Verifier default to Stripe built
// from Config; Notifier defaults to writing notification rows directly.
type Options struct {
	Config   *config.Config
	DB       *gorm.DB
	Logger   *zap.Logger
	Gateway  payments.Gateway
	Verifier payments.EventVerifier
	Notifier services.Notifier
	Clock    services.Clock
	// AccessLog enables the per-request access log middleware.
	AccessLog bool
}

// App is the assembled service.
type App struct {
	Fiber         *fiber.App
	Auth          *services.AuthService
	Orders        *services.OrderService
	Notifications *services.NotificationService
}

// New wires the service.
func New(opts Options) (*App, error) {
	if opts.Config == nil || opts.DB == nil {
		return nil, errors.New("app: config and database are required")
	}
	cfg := opts.Config
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	now := opts.Clock
	if now == nil {
		now = time.Now
	}

	gateway := opts.Gateway
	if gateway == nil {
		gateway = payments.NewStripeGateway(payments.StripeConfig{
			SecretKey:  cfg.StripeSecretKey,
			Timeout:    cfg.UpstreamTimeout,
			MaxRetries: cfg.UpstreamMaxRetries,
		}, log)
	}
	verifier := opts.Verifier
	if verifier == nil {
		verifier = payments.NewStripeVerifier(cfg.StripeWebhookSecret)
	}

	// --- Repositories ---
	orderRepo := repositories.NewGORMOrderRepository(opts.DB)
	listingRepo := repositories.NewGORMListingRepository(opts.DB)
	shipmentRepo := repositories.NewGORMShipmentRepository(opts.DB)
	notificationRepo := repositories.NewGORMNotificationRepository(opts.DB)
	sessionRepo := repositories.NewGORMCheckoutSessionRepository(opts.DB)
	eventRepo := repositories.NewGORMProcessedEventRepository(opts.DB)
	sellerRepo := repositories.NewGORMSellerAccountRepository(opts.DB)

	// --- Services ---
	notificationService := services.NewNotificationService(notificationRepo)
	notifier := opts.Notifier
	if notifier == nil {
		notifier = notificationService
	}
	dispatcher := services.NewDispatcher(notifier, cfg.NotifyTimeout, log.Named("notify"))

	authService := services.NewAuthService(cfg.JWTSecret, log)
	adminAuth, err := services.NewAdminAuth(cfg.AdminKeyHash, cfg.AdminKey)
	if err != nil {
		return nil, fmt.Errorf("app: %w", err)
	}

	checkoutService := services.NewCheckoutService(gateway, listingRepo, sessionRepo, services.CheckoutConfig{
		Currency: cfg.Currency,
		SiteURL:  cfg.SiteURL,
		HoldTTL:  cfg.CartHoldTTL,
	}, log.Named("checkout"), now)

	paymentEvents := services.NewPaymentEventService(services.PaymentEventDeps{
		Verifier: verifier,
		Gateway:  gateway,
		Orders:   orderRepo,
		Listings: listingRepo,
		Sessions: sessionRepo,
		Events:   eventRepo,
		Sellers:  sellerRepo,
		Notify:   dispatcher,
	}, cfg.Currency, log.Named("webhook"), now)

	orderService := services.NewOrderService(services.OrderDeps{
		Orders:    orderRepo,
		Listings:  listingRepo,
		Sessions:  sessionRepo,
		Shipments: shipmentRepo,
		Sellers:   sellerRepo,
		Gateway:   gateway,
		Notify:    dispatcher,
	}, cfg.CancelWindow, cfg.CartHoldTTL, log.Named("orders"), now)

	shipmentService := services.NewShipmentService(orderRepo, shipmentRepo, dispatcher, log.Named("shipping"), now)

	// --- Handlers ---
	checkoutHandler := handlers.NewCheckoutHandler(checkoutService, log)
	webhookHandler := handlers.NewWebhookHandler(paymentEvents, shipmentService, cfg.ShippingWebhookToken, log)
	orderHandler := handlers.NewOrderHandler(orderService, log)
	adminHandler := handlers.NewAdminHandler(orderService, log)
	notificationHandler := handlers.NewNotificationHandler(notificationService, log)

	// --- Fiber ---
	app := fiber.New(fiber.Config{
		AppName:      "fabricmart",
		ErrorHandler: errorHandler(log),
	})
	app.Use(recover.New())
	app.Use(requestid.New())
	if opts.AccessLog {
		app.Use(fiberlogger.New(fiberlogger.Config{
			Format: "${time} ${locals:requestid} ${status} - ${method} ${path} ${latency}\n",
		}))
	}

	requireBuyer := middleware.AuthRequired(authService, log)
	optionalBuyer := middleware.AuthOptional(authService)
	requireAdmin := middleware.AdminRequired(adminAuth, log)
	limit := rateLimiter(cfg)

	apiV1 := app.Group("/api/v1")
	checkoutHandler.RegisterRoutes(apiV1, limit, optionalBuyer)
	orderHandler.RegisterRoutes(apiV1, requireBuyer, limit)
	webhookHandler.RegisterRoutes(apiV1)
	notificationHandler.RegisterRoutes(apiV1, requireAdmin, requireBuyer)
	adminHandler.RegisterRoutes(apiV1.Group("/admin", requireAdmin))

	app.Get("/health", func(c *fiber.Ctx) error {
		status, code := "healthy", fiber.StatusOK
		if sqlDB, err := opts.DB.DB(); err != nil || sqlDB.PingContext(c.UserContext()) != nil {
			status, code = "degraded", fiber.StatusServiceUnavailable
		}
		return c.Status(code).JSON(fiber.Map{
			"status": status,
			"time":   now().Format(time.RFC3339),
		})
	})

	return &App{
		Fiber:         app,
		Auth:          authService,
		Orders:        orderService,
		Notifications: notificationService,
	}, nil
}

// rateLimiter is advisory; its counters live in the limiter's own in-memory store.
func rateLimiter(cfg *config.Config) fiber.Handler {
	if cfg.RateLimitMax <= 0 {
		return func(c *fiber.Ctx) error { return c.Next() }
	}
	return limiter.New(limiter.Config{
		Max:               cfg.RateLimitMax,
		Expiration:        cfg.RateLimitWindow,
		LimiterMiddleware: limiter.SlidingWindow{},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{"error": "too many requests"})
		},
	})
}

func errorHandler(log *zap.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		code := fiber.StatusInternalServerError
		msg := "internal server error"
		var fe *fiber.Error
		if errors.As(err, &fe) {
			code = fe.Code
			msg = fe.Message
		}
		if code >= fiber.StatusInternalServerError {
			log.Error("unhandled error", zap.String("path", c.Path()), zap.Error(err))
		}
		return c.Status(code).JSON(fiber.Map{"error": msg})
	}
}
