package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-faster/errors"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"storefront/internal/config"
	"storefront/internal/handlers"
	"storefront/internal/middleware"
	"storefront/internal/models"
	"storefront/internal/repositories"
	"storefront/internal/services"
	"storefront/pkg/payment"
	"storefront/pkg/payment/ewallet"
	"storefront/pkg/payment/razorpay"
	"storefront/pkg/rabbitmq"
)

func main() {
	log, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	if err := run(log); err != nil {
		log.Fatal("Server failed", zap.Error(err))
	}
	log.Info("Server gracefully stopped")
}

func run(log *zap.Logger) error {
	cfg, err := config.Load()
	if err != nil {
		return errors.Wrap(err, "load config")
	}

	db, err := openDB(cfg)
	if err != nil {
		return err
	}
	if err := migrate(db); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.SeedCatalog {
		seedProducts(ctx, repositories.NewGORMProductRepository(db), log)
	}

	// RabbitMQ is optional; without it order events are not published.
	var events services.EventPublisher
	if cfg.RabbitMQURL != "" {
		mqClient, err := rabbitmq.NewClient(rabbitmq.Config{URL: cfg.RabbitMQURL}, log)
		if err != nil {
			return errors.Wrap(err, "init RabbitMQ")
		}
		defer func() {
			if err := mqClient.Close(); err != nil {
				log.Warn("RabbitMQ close failed", zap.Error(err))
			}
		}()
		events = mqClient

		if err := mqClient.ConsumeOrderEvents(orderEventLogger(log)); err != nil {
			log.Warn("Order event consumer not started", zap.Error(err))
		}
	} else {
		log.Info("RABBITMQ_URL not set, order events disabled")
	}

	card := razorpay.NewGateway(razorpay.Config{
		KeyID:       cfg.Razorpay.KeyID,
		KeySecret:   cfg.Razorpay.KeySecret,
		CallbackURL: cfg.PurchaseSuccessURL(),
		Timeout:     cfg.GatewayTimeout,
	})
	wallet := ewallet.NewGateway(ewallet.Config{
		BaseURL:     cfg.Wallet.APIURL,
		SecretKey:   cfg.Wallet.SecretKey,
		ChannelCode: cfg.Wallet.ChannelCode,
		SuccessURL:  cfg.PurchaseSuccessURL(),
		FailureURL:  cfg.PurchaseFailedURL(),
		Timeout:     cfg.GatewayTimeout,
	})

	app := newApp(cfg, db, card, wallet, events, log)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("Starting server", zap.String("addr", cfg.AppPort))
		return app.Listen(cfg.AppPort)
	})
	g.Go(func() error {
		<-ctx.Done()
		log.Info("Shutting down server")
		return app.ShutdownWithTimeout(cfg.ShutdownTimeout)
	})
	return g.Wait()
}

// newApp wires repositories, services and handlers into a Fiber app.
func newApp(
	cfg *config.Config,
	db *gorm.DB,
	card payment.CardGateway,
	wallet payment.WalletGateway,
	events services.EventPublisher,
	log *zap.Logger,
) *fiber.App {
	orderRepo := repositories.NewGORMOrderRepository(db)
	couponRepo := repositories.NewGORMCouponRepository(db)
	productRepo := repositories.NewGORMProductRepository(db)
	cartRepo := repositories.NewGORMCartRepository(db)

	authService := services.NewAuthService(cfg.JWTSecret)
	couponService := services.NewCouponService(couponRepo, log)
	orderService := services.NewOrderService(orderRepo)
	checkoutService := services.NewCheckoutService(
		orderRepo,
		couponService,
		productRepo,
		cartRepo,
		card,
		wallet,
		events,
		services.CheckoutConfig{
			Currency:          cfg.Currency,
			LoyaltyThreshold:  cfg.Loyalty.Threshold,
			LoyaltyPercentage: cfg.Loyalty.Percentage,
			LoyaltyTTL:        cfg.Loyalty.TTL,
			FinalizeTimeout:   2 * cfg.GatewayTimeout,
		},
		log,
	)

	checkoutHandler := handlers.NewCheckoutHandler(checkoutService, ewallet.ParseCallback, log)
	orderHandler := handlers.NewOrderHandler(orderService, log)
	couponHandler := handlers.NewCouponHandler(couponService, log)

	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			var fe *fiber.Error
			if errors.As(err, &fe) {
				code = fe.Code
			}
			return c.Status(code).JSON(fiber.Map{
				"error":   "HTTPError",
				"message": err.Error(),
			})
		},
	})
	app.Use(recover.New())
	app.Use(logger.New())

	apiV1 := app.Group("/api/v1")
	checkoutHandler.RegisterWebhookRoutes(apiV1, cfg.Wallet.CallbackToken)

	protected := apiV1.Group("", middleware.AuthRequired(authService, log))
	checkoutHandler.RegisterRoutes(protected)
	orderHandler.RegisterRoutes(protected)
	couponHandler.RegisterRoutes(protected)

	app.Get("/health", func(c *fiber.Ctx) error {
		status := "healthy"
		dbStatus := "connected"
		if sqlDB, err := db.DB(); err != nil || sqlDB.PingContext(c.UserContext()) != nil {
			status, dbStatus = "degraded", "unreachable"
		}
		return c.JSON(fiber.Map{
			"status":   status,
			"time":     time.Now().Format(time.RFC3339),
			"database": dbStatus,
			"events":   events != nil,
		})
	})

	return app
}

func openDB(cfg *config.Config) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.DatabaseDriver {
	case "sqlite":
		dialector = sqlite.Open(cfg.DatabaseDSN)
	default:
		dialector = postgres.Open(cfg.DatabaseDSN)
	}
	db, err := gorm.Open(dialector, &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, errors.Wrapf(err, "connect to %s", cfg.DatabaseDriver)
	}
	return db, nil
}

func migrate(db *gorm.DB) error {
	err := db.AutoMigrate(
		&models.Product{},
		&models.CartItem{},
		&models.Coupon{},
		&models.Order{},
		&models.OrderLine{},
	)
	if err != nil {
		return errors.Wrap(err, "auto-migrate")
	}
	return nil
}

// orderEventLogger records consumed order events.
func orderEventLogger(log *zap.Logger) func(rabbitmq.OrderEvent) error {
	return func(ev rabbitmq.OrderEvent) error {
		log.Info("Order event received",
			zap.String("type", ev.Type),
			zap.String("order_id", ev.OrderID),
			zap.String("owner_user_id", ev.OwnerUserID),
			zap.Int64("total", ev.Total),
		)
		return nil
	}
}

// seedProducts populates the catalog with a few products. Existing ids are
// left untouched.
func seedProducts(ctx context.Context, repo repositories.ProductRepository, log *zap.Logger) {
	products := []models.Product{
		{ID: "prod-1", Name: "Laptop", Description: "High performance laptop", Price: 120000, Stock: 10},
		{ID: "prod-2", Name: "Keyboard", Description: "Mechanical keyboard", Price: 7500, Stock: 25},
		{ID: "prod-3", Name: "Mouse", Description: "Ergonomic wireless mouse", Price: 2500, Stock: 50},
	}

	existing, err := repo.GetByIDs(ctx, []string{"prod-1", "prod-2", "prod-3"})
	if err != nil {
		log.Warn("Catalog seed skipped", zap.Error(err))
		return
	}
	seen := make(map[string]bool, len(existing))
	for _, p := range existing {
		seen[p.ID] = true
	}

	for i := range products {
		if seen[products[i].ID] {
			continue
		}
		if err := repo.Create(ctx, &products[i]); err != nil {
			log.Warn("Error seeding product", zap.String("name", products[i].Name), zap.Error(err))
			continue
		}
		log.Info("Seeded product", zap.String("name", products[i].Name), zap.String("id", products[i].ID))
	}
}
