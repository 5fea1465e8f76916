package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

const (
	StoreDriverPostgres = "postgres"
	StoreDriverMemory   = "memory"
)

type Config struct {
	DbURL       string
	StoreDriver string
	APIPort     int
	JWTSecret   string

	FeePercent          decimal.Decimal
	FeePercentOverrides string

	KafkaBroker        string
	KafkaOutboxTopic   string
	KafkaPaymentsTopic string
	KafkaGroupID       string
	OutboxPollInterval time.Duration
	OutboxBatchSize    int

	StripeSecretKey     string
	StripeWebhookSecret string

	CatalogURL  string
	CatalogFile string

	WebhookRateLimit int
	WebhookBurst     int
}

// KafkaEnabled is false when no broker is configured; the outbox then only
// accumulates.
func (c *Config) KafkaEnabled() bool {
	return c.KafkaBroker != ""
}

// Load reads an optional .env file and then the environment.
func Load() (*Config, error) {
	// Load .env file (ignore error if file doesn't exist)
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	cfg := &Config{
		DbURL:               os.Getenv("DB_URL"),
		StoreDriver:         strings.ToLower(getEnv("STORE_DRIVER", StoreDriverPostgres)),
		APIPort:             getEnvInt("API_PORT", 8080),
		JWTSecret:           os.Getenv("JWT_SECRET"),
		FeePercent:          getEnvDecimal("FEE_PERCENT", decimal.NewFromInt(33)),
		FeePercentOverrides: os.Getenv("FEE_PERCENT_OVERRIDES"),
		KafkaBroker:         os.Getenv("KAFKA_BROKER"),
		KafkaOutboxTopic:    getEnv("KAFKA_OUTBOX_TOPIC", "settlement-events"),
		KafkaPaymentsTopic:  os.Getenv("KAFKA_PAYMENTS_TOPIC"),
		KafkaGroupID:        getEnv("KAFKA_GROUP_ID", "settle-payments"),
		OutboxPollInterval:  getEnvDuration("OUTBOX_POLL_INTERVAL", 3*time.Second),
		OutboxBatchSize:     getEnvInt("OUTBOX_BATCH_SIZE", 100),
		StripeSecretKey:     os.Getenv("STRIPE_SECRET_KEY"),
		StripeWebhookSecret: os.Getenv("STRIPE_WEBHOOK_SECRET"),
		CatalogURL:          os.Getenv("CATALOG_URL"),
		CatalogFile:         os.Getenv("CATALOG_FILE"),
		WebhookRateLimit:    getEnvInt("WEBHOOK_RATE_LIMIT", 50),
		WebhookBurst:        getEnvInt("WEBHOOK_BURST", 100),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.JWTSecret == "" {
		return errors.New("environment variable JWT_SECRET not set")
	}
	switch c.StoreDriver {
	case StoreDriverPostgres:
		if c.DbURL == "" {
			return errors.New("environment variable DB_URL not set")
		}
	case StoreDriverMemory:
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver)
	}
	if c.CatalogURL == "" && c.CatalogFile == "" {
		return errors.New("one of CATALOG_URL or CATALOG_FILE must be set")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil && parsed > 0 {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil && parsed > 0 {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDecimal(key string, defaultValue decimal.Decimal) decimal.Decimal {
	if value := os.Getenv(key); value != "" {
		if parsed, err := decimal.NewFromString(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
