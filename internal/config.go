package internal

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Env         string
	Port        int
	LogLevel    string
	DatabaseUrl string

	// Application base URL (for checkout redirect links)
	BaseURL string

	// Calculation engine
	CalcEngine         string // "http" or "mock"
	CalcBaseURL        string
	CalcRequestTimeout time.Duration
	CalcMaxRetries     int

	// AI Provider Configuration
	AIProvider       string // "anthropic" or "mock"
	AnthropicAPIKey  string
	AnthropicModel   string
	AIMaxRetries     int
	AIRetryBaseDelay time.Duration
	AIRequestTimeout time.Duration

	// Creation lock TTL
	LockTTL time.Duration

	// Recalculation worker
	WorkerEnabled   bool
	WorkerInterval  time.Duration
	WorkerBatchSize int

	// Rate limiting
	RateLimitMax    int
	RateLimitWindow time.Duration

	// Stripe Billing Configuration
	// These are required when billing is enabled in production.
	// In development, billing handlers function as stubs if these are empty.
	StripeSecretKey     string // Stripe API secret key (sk_test_... or sk_live_...)
	StripeWebhookSecret string // Stripe webhook signing secret (whsec_...)

	// Stripe price IDs for subscription plans
	StripeBasicMonthlyPriceID     string
	StripeBasicYearlyPriceID      string
	StripeProMonthlyPriceID       string
	StripeProYearlyPriceID        string
	StripeUnlimitedMonthlyPriceID string
	StripeUnlimitedYearlyPriceID  string

	// Metrics endpoint authentication
	// If both are empty, the /metrics endpoint will be unprotected (not recommended)
	MetricsUsername string
	MetricsPassword string
}

func NewConfig() (*Config, error) {
	// Load .env file if it exists (ignored in production)
	_ = godotenv.Load()

	cfg := &Config{
		Env:      getEnv("ENV", "development"),
		Port:     getEnvInt("PORT", 8080),
		LogLevel: getEnv("LOG_LEVEL", "debug"),

		// Base URL defaults to localhost for development
		BaseURL: getEnv("BASE_URL", "http://localhost:8080"),

		// Calculation engine defaults
		CalcEngine:         getEnv("CALC_ENGINE", "mock"),
		CalcBaseURL:        getEnv("CALC_BASE_URL", ""),
		CalcRequestTimeout: getEnvDuration("CALC_REQUEST_TIMEOUT", 15*time.Second),
		CalcMaxRetries:     getEnvInt("CALC_MAX_RETRIES", 3),

		// AI provider defaults
		AIProvider:       getEnv("AI_PROVIDER", "mock"),
		AnthropicAPIKey:  getEnv("ANTHROPIC_API_KEY", ""),
		AnthropicModel:   getEnv("ANTHROPIC_MODEL", "claude-3-5-sonnet-20241022"),
		AIMaxRetries:     getEnvInt("AI_MAX_RETRIES", 3),
		AIRetryBaseDelay: getEnvDuration("AI_RETRY_BASE_DELAY", 1*time.Second),
		AIRequestTimeout: getEnvDuration("AI_REQUEST_TIMEOUT", 60*time.Second),

		LockTTL: getEnvDuration("LOCK_TTL", 30*time.Second),

		// Worker defaults
		WorkerEnabled:   getEnvBool("WORKER_ENABLED", true),
		WorkerInterval:  getEnvDuration("WORKER_INTERVAL", time.Hour),
		WorkerBatchSize: getEnvInt("WORKER_BATCH_SIZE", 50),

		// Rate limiting defaults
		RateLimitMax:    getEnvInt("RATE_LIMIT_MAX", 60),
		RateLimitWindow: getEnvDuration("RATE_LIMIT_WINDOW", time.Minute),

		// Stripe billing (optional — stubs work without these)
		StripeSecretKey:     getEnv("STRIPE_SECRET_KEY", ""),
		StripeWebhookSecret: getEnv("STRIPE_WEBHOOK_SECRET", ""),

		// Stripe price IDs (optional — required when billing is enabled)
		StripeBasicMonthlyPriceID:     getEnv("STRIPE_BASIC_MONTHLY_PRICE_ID", ""),
		StripeBasicYearlyPriceID:      getEnv("STRIPE_BASIC_YEARLY_PRICE_ID", ""),
		StripeProMonthlyPriceID:       getEnv("STRIPE_PRO_MONTHLY_PRICE_ID", ""),
		StripeProYearlyPriceID:        getEnv("STRIPE_PRO_YEARLY_PRICE_ID", ""),
		StripeUnlimitedMonthlyPriceID: getEnv("STRIPE_UNLIMITED_MONTHLY_PRICE_ID", ""),
		StripeUnlimitedYearlyPriceID:  getEnv("STRIPE_UNLIMITED_YEARLY_PRICE_ID", ""),

		// Metrics authentication
		MetricsUsername: getEnv("METRICS_USERNAME", ""),
		MetricsPassword: getEnv("METRICS_PASSWORD", ""),
	}

	// Required
	cfg.DatabaseUrl = os.Getenv("DATABASE_URL")
	if cfg.DatabaseUrl == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	// Validate calculation engine configuration
	if cfg.CalcEngine == "http" {
		if cfg.CalcBaseURL == "" {
			return nil, fmt.Errorf("CALC_BASE_URL is required when CALC_ENGINE is 'http'")
		}
	} else if cfg.CalcEngine != "mock" {
		return nil, fmt.Errorf("CALC_ENGINE must be either 'http' or 'mock', got: %s", cfg.CalcEngine)
	}

	// Validate AI provider configuration
	if cfg.AIProvider == "anthropic" {
		if cfg.AnthropicAPIKey == "" {
			return nil, fmt.Errorf("ANTHROPIC_API_KEY is required when AI_PROVIDER is 'anthropic'")
		}
	} else if cfg.AIProvider != "mock" {
		return nil, fmt.Errorf("AI_PROVIDER must be either 'anthropic' or 'mock', got: %s", cfg.AIProvider)
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}
