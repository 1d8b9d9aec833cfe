package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/astraea-labs/astraea/internal"
	"github.com/astraea-labs/astraea/internal/ai"
	"github.com/astraea-labs/astraea/internal/ai/anthropic"
	aimock "github.com/astraea-labs/astraea/internal/ai/mock"
	"github.com/astraea-labs/astraea/internal/billing"
	"github.com/astraea-labs/astraea/internal/calc"
	"github.com/astraea-labs/astraea/internal/domain"
	"github.com/astraea-labs/astraea/internal/handler"
	"github.com/astraea-labs/astraea/internal/lock"
	"github.com/astraea-labs/astraea/internal/middleware"
	"github.com/astraea-labs/astraea/internal/service"
	"github.com/astraea-labs/astraea/internal/store/postgres"
	"github.com/astraea-labs/astraea/internal/worker"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func run() error {
	ctx := context.Background()

	// Load configuration
	cfg, err := internal.NewConfig()
	if err != nil {
		return fmt.Errorf("config initialization failed: %w", err)
	}

	// Configure logger
	logger := internal.NewLogger(os.Stdout, cfg.Env, cfg.LogLevel)

	// Run migrations over database/sql (goose requires it)
	migrationDB, err := sql.Open("pgx", cfg.DatabaseUrl)
	if err != nil {
		return fmt.Errorf("database connection failed: %w", err)
	}
	if err := migrationDB.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	if err := internal.RunMigrations(migrationDB); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	migrationDB.Close()

	// Application connection pool
	pool, err := pgxpool.New(ctx, cfg.DatabaseUrl)
	if err != nil {
		return fmt.Errorf("connection pool failed: %w", err)
	}
	defer pool.Close()
	logger.Info("Database ready")

	// Initialize store and seed the pricing catalog. Seeding only inserts
	// missing rows; prices set through the admin surface survive restarts.
	st := postgres.New(pool)
	for _, a := range domain.DefaultCatalog() {
		if err := st.SeedAction(ctx, &a); err != nil {
			return fmt.Errorf("catalog seed failed: %w", err)
		}
	}

	// Calculation engine
	var engine calc.Engine
	switch cfg.CalcEngine {
	case "http":
		engine, err = calc.NewClient(calc.ClientConfig{
			BaseURL:        cfg.CalcBaseURL,
			MaxRetries:     cfg.CalcMaxRetries,
			RequestTimeout: cfg.CalcRequestTimeout,
		}, logger)
		if err != nil {
			return fmt.Errorf("calculation client failed: %w", err)
		}
	default:
		engine = calc.NewMock()
	}

	// AI interpreter
	var interpreter ai.Interpreter
	switch cfg.AIProvider {
	case "anthropic":
		interpreter, err = anthropic.New(anthropic.Config{
			APIKey:         cfg.AnthropicAPIKey,
			Model:          cfg.AnthropicModel,
			MaxRetries:     cfg.AIMaxRetries,
			RetryBaseDelay: cfg.AIRetryBaseDelay,
			RequestTimeout: cfg.AIRequestTimeout,
		}, logger)
		if err != nil {
			return fmt.Errorf("AI provider failed: %w", err)
		}
	default:
		interpreter = aimock.New(logger)
	}

	// Billing
	billingService := billing.NewStripeService(cfg.StripeSecretKey, cfg.StripeWebhookSecret, billing.PriceConfig{
		BasicMonthlyPriceID:     cfg.StripeBasicMonthlyPriceID,
		BasicYearlyPriceID:      cfg.StripeBasicYearlyPriceID,
		ProMonthlyPriceID:       cfg.StripeProMonthlyPriceID,
		ProYearlyPriceID:        cfg.StripeProYearlyPriceID,
		UnlimitedMonthlyPriceID: cfg.StripeUnlimitedMonthlyPriceID,
		UnlimitedYearlyPriceID:  cfg.StripeUnlimitedYearlyPriceID,
	})

	// Creation lock
	locker := lock.NewKeyed(cfg.LockTTL)

	// Initialize services
	accountService := service.NewAccountService(st, logger)
	artifactService := service.NewArtifactService(st, locker, engine, interpreter, logger)
	unlockService := service.NewUnlockService(st, logger)
	subscriptionService := service.NewSubscriptionService(st, billingService, logger)
	promoService := service.NewPromoService(st, billingService, logger)

	// Recalculation worker
	var recalcWorker *worker.Worker
	if cfg.WorkerEnabled {
		workerCfg := worker.DefaultConfig()
		workerCfg.Interval = cfg.WorkerInterval
		workerCfg.BatchSize = cfg.WorkerBatchSize
		recalcWorker, err = worker.New(st, engine, workerCfg, logger)
		if err != nil {
			return fmt.Errorf("worker initialization failed: %w", err)
		}
		recalcWorker.Start(ctx)
	}

	// Initialize middleware
	loggingMw := middleware.NewRequestLoggingMiddleware(logger)
	metricsMw := middleware.NewMetricsMiddleware()
	rateLimiter := middleware.NewRateLimiter(cfg.RateLimitMax, cfg.RateLimitWindow, logger)
	requireAccount := middleware.RequireAccount(middleware.UUIDVerifier)

	// Initialize handlers
	accountHandler := handler.NewAccountHandler(accountService, logger)
	artifactHandler := handler.NewArtifactHandler(artifactService, unlockService, logger)
	billingHandler := handler.NewBillingHandler(subscriptionService, promoService, cfg.BaseURL, logger)
	webhookHandler := handler.NewWebhookHandler(billingService, subscriptionService, logger)

	// ==========================================================================
	// Create router and register routes
	// ==========================================================================

	mux := http.NewServeMux()

	// Health check
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	// Metrics endpoint (protected by basic auth when configured)
	metricsAuth := middleware.NewMetricsAuthMiddleware(cfg.MetricsUsername, cfg.MetricsPassword)
	mux.Handle("GET /metrics", metricsAuth.Handler(promhttp.Handler()))

	accountHandler.RegisterRoutes(mux, requireAccount)
	artifactHandler.RegisterRoutes(mux, requireAccount)
	billingHandler.RegisterRoutes(mux, requireAccount)
	webhookHandler.RegisterRoutes(mux)

	// Outer middleware stack applied to every request
	stack := middleware.Stack(loggingMw.Handler, metricsMw.Handler, rateLimiter.Handler)

	// ==========================================================================
	// Start server
	// ==========================================================================

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: stack(mux),
	}

	// Channel to listen for interrupt signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	// Start server in goroutine
	go func() {
		logger.Info("Server started", "address", server.Addr, "env", cfg.Env)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Server failed", "error", err)
		}
	}()

	// Wait for interrupt signal
	<-sigChan
	logger.Info("Shutdown signal received, initiating graceful shutdown...")

	// Create shutdown context with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown error", "error", err)
	}

	if recalcWorker != nil {
		recalcWorker.Stop()
	}

	logger.Info("Graceful shutdown complete")
	return nil
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}
