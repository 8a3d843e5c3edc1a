package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/01moynul/storefront-api/internal/auth"
	"github.com/01moynul/storefront-api/internal/config"
	"github.com/01moynul/storefront-api/internal/database"
	"github.com/01moynul/storefront-api/internal/handlers"
	"github.com/01moynul/storefront-api/internal/logging"
	"github.com/01moynul/storefront-api/internal/paystack"
	"github.com/01moynul/storefront-api/internal/pricing"
	"github.com/01moynul/storefront-api/internal/ratelimit"
	"github.com/01moynul/storefront-api/internal/repo"
	"github.com/01moynul/storefront-api/internal/routes"
	"github.com/01moynul/storefront-api/internal/service"
)

const shutdownTimeout = 15 * time.Second

func serveCmd(configPath *string) *cobra.Command {
	var migrate bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, *configPath, migrate)
		},
	}
	cmd.Flags().BoolVar(&migrate, "migrate", false, "Apply the schema before serving")

	return cmd
}

func migrateCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			logging.Init(cfg.Log.Level)

			db, err := database.OpenDB(cmd.Context(), cfg.Database.DSN)
			if err != nil {
				return err
			}
			defer db.Close()

			return database.Migrate(cmd.Context(), db)
		},
	}
}

func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func serve(ctx context.Context, configPath string, migrate bool) error {
	// 0. --- Configuration & Logging ---
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	logger := logging.Init(cfg.Log.Level)
	gin.SetMode(gin.ReleaseMode)

	// 1. --- Database ---
	db, err := database.OpenDB(ctx, cfg.Database.DSN)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()

	if migrate {
		if err := database.Migrate(ctx, db); err != nil {
			return err
		}
	}

	// 2. --- Webhook Rate Limiter ---
	limiter, closeLimiter, err := newLimiter(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeLimiter()

	// 3. --- Pricing ---
	promos := pricing.DefaultPromoCatalog()
	if cfg.Pricing.PromoFile != "" {
		promos, err = pricing.LoadPromoCatalog(cfg.Pricing.PromoFile)
		if err != nil {
			return err
		}
	}
	rates := pricing.DefaultRates()
	if cfg.Pricing.FreeShippingThreshold > 0 {
		rates.FreeShippingThreshold = cfg.Pricing.FreeShippingThreshold
	}
	if cfg.Pricing.BaseShippingRate > 0 {
		rates.BaseShippingRate = cfg.Pricing.BaseShippingRate
	}
	if cfg.Pricing.VATRate >= 0 {
		rates.VATRate = cfg.Pricing.VATRate
	}
	calc := pricing.NewCalculator(rates, promos)

	// 4. --- Payment Gateway ---
	gateway := paystack.NewClient(paystack.Config{
		SecretKey:   cfg.Paystack.SecretKey,
		PublicKey:   cfg.Paystack.PublicKey,
		BaseURL:     cfg.Paystack.BaseURL,
		CallbackURL: cfg.Paystack.CallbackURL,
		Timeout:     cfg.Paystack.Timeout,
		MinAmount:   cfg.Paystack.MinAmount,
		MaxAmount:   cfg.Paystack.MaxAmount,
	})
	if !gateway.Configured() {
		logger.Warn("paystack secret key is not set; payment endpoints and webhooks will fail")
	}

	// 5. --- Repositories & Services ---
	orders := repo.NewOrderRepo(db)
	payments := repo.NewPaymentRepo(db)
	products := repo.NewProductRepo(db)
	users := repo.NewUserRepo(db)
	carts := repo.NewCartRepo(db)
	events := repo.NewWebhookEventRepo(db)

	paymentSvc := service.NewPaymentService(orders, payments, gateway, logger)

	app := &handlers.Handlers{
		Orders:         service.NewOrderService(orders, products, carts, calc, logger),
		Payments:       paymentSvc,
		Webhooks:       service.NewWebhookService(paymentSvc, events, logger),
		Users:          users,
		Products:       products,
		Carts:          carts,
		Stats:          repo.NewStatsRepo(db),
		Pricing:        calc,
		Tokens:         auth.NewTokenManager(cfg.JWT.Secret, cfg.JWT.TTL),
		Log:            logger,
		WebhookSecret:  gateway.SecretKey(),
		WebhookTimeout: cfg.Webhook.Timeout,
		WebhookMaxBody: cfg.Webhook.MaxBodySize,
		UploadDir:      cfg.Server.UploadDir,
		PublicURL:      cfg.Server.PublicURL,
		MaxUploadSize:  cfg.Server.MaxUploadSize,
		Ping:           db.PingContext,
	}

	// --- Router Setup ---
	router := routes.SetupRouter(app, routes.Options{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		WebhookLimiter: limiter,
		TrustedProxies: cfg.Server.TrustedProxies,
	})

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// --- Start Server ---
	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting storefront API", "addr", cfg.Server.Addr, "version", Version)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// newLimiter uses Redis when an address is configured so every replica
// shares one window; otherwise it falls back to process memory.
func newLimiter(ctx context.Context, cfg *config.Config, logger *slog.Logger) (ratelimit.Limiter, func(), error) {
	if cfg.Redis.Addr == "" {
		logger.Info("webhook rate limiter using process memory")
		return ratelimit.NewMemoryLimiter(cfg.Webhook.RateLimit, cfg.Webhook.RateWindow), func() {}, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Redis.Addr, err)
	}

	logger.Info("webhook rate limiter using redis", "addr", cfg.Redis.Addr)
	limiter := ratelimit.NewRedisLimiter(client, "storefront", cfg.Webhook.RateLimit, cfg.Webhook.RateWindow)
	return limiter, func() { client.Close() }, nil
}
