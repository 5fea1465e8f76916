package main

import (
	"context"
	"database/sql"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"settle/apps/settle/internal/api"
	"settle/apps/settle/internal/catalog"
	"settle/apps/settle/internal/config"
	"settle/apps/settle/internal/event_publisher"
	"settle/apps/settle/internal/feepolicy"
	"settle/apps/settle/internal/memstore"
	"settle/apps/settle/internal/payment"
	"settle/apps/settle/internal/payment_consumer"
	"settle/apps/settle/internal/repository"
	"settle/apps/settle/internal/settlement"
)

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Invalid configuration", zap.Error(err))
	}

	logger.Info("Starting application with configuration",
		zap.String("store_driver", cfg.StoreDriver),
		zap.String("kafka_broker", cfg.KafkaBroker),
		zap.String("kafka_outbox_topic", cfg.KafkaOutboxTopic),
		zap.String("kafka_payments_topic", cfg.KafkaPaymentsTopic),
		zap.String("fee_percent", cfg.FeePercent.String()),
		zap.String("catalog_url", cfg.CatalogURL),
		zap.String("catalog_file", cfg.CatalogFile),
		zap.Bool("stripe_enabled", cfg.StripeSecretKey != ""),
		zap.Int("api_port", cfg.APIPort),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var (
		store  settlement.Store
		outbox event_publisher.OutboxStore
	)
	switch cfg.StoreDriver {
	case config.StoreDriverPostgres:
		db, err := sql.Open("postgres", cfg.DbURL)
		if err != nil {
			logger.Fatal("Failed to connect to database", zap.Error(err))
		}
		defer db.Close()

		if err := repository.InitMigration(db); err != nil {
			logger.Fatal("Failed to initialize database", zap.Error(err))
		}

		outboxRepository := repository.NewOutboxRepository(db, logger)
		reset, err := outboxRepository.ResetStuckEvents(ctx)
		if err != nil {
			logger.Fatal("Failed to reset stuck outbox events", zap.Error(err))
		}
		if reset > 0 {
			logger.Info("Returned stuck outbox events to the queue", zap.Int64("count", reset))
		}

		store = repository.NewSettlementRepository(db, logger)
		outbox = outboxRepository
	default:
		logger.Warn("Using the in-memory store; state is lost on restart")
		mem := memstore.New()
		store = mem
		outbox = mem
	}

	var listings settlement.Catalog
	if cfg.CatalogURL != "" {
		listings = catalog.NewHTTPClient(cfg.CatalogURL, logger)
	} else {
		static, err := catalog.LoadFile(cfg.CatalogFile)
		if err != nil {
			logger.Fatal("Failed to load catalog", zap.Error(err))
		}
		listings = static
	}

	overrides, err := feepolicy.ParseOverrides(cfg.FeePercentOverrides)
	if err != nil {
		logger.Fatal("Invalid fee overrides", zap.Error(err))
	}
	fees, err := feepolicy.NewRegistry(cfg.FeePercent, overrides)
	if err != nil {
		logger.Fatal("Invalid fee policy", zap.Error(err))
	}
	logger.Info("Loaded fee policy",
		zap.String("default_percent", fees.Default().String()),
		zap.Strings("override_categories", fees.Categories()))

	service := settlement.NewService(store, listings, fees, logger)

	// Left as a nil interface so the API answers 503 on payment routes
	var gateway api.PaymentGateway
	if cfg.StripeSecretKey != "" {
		gateway = payment.NewStripeGateway(payment.StripeConfig{
			SecretKey:     cfg.StripeSecretKey,
			WebhookSecret: cfg.StripeWebhookSecret,
		}, nil, logger)
	}

	if cfg.KafkaEnabled() {
		producer, err := event_publisher.NewKafkaProducer(cfg.KafkaBroker)
		if err != nil {
			logger.Fatal("Failed to create Kafka producer", zap.Error(err))
		}
		eventPublisher := event_publisher.NewEventPublisher(producer, cfg.KafkaOutboxTopic, outbox, cfg.OutboxPollInterval, cfg.OutboxBatchSize, logger)
		defer eventPublisher.Close()

		go eventPublisher.StartPublishing(ctx)

		if cfg.KafkaPaymentsTopic != "" {
			kafkaConsumer, err := payment_consumer.NewKafkaConsumer(cfg.KafkaBroker, cfg.KafkaGroupID)
			if err != nil {
				logger.Fatal("Failed to create Kafka consumer", zap.Error(err))
			}
			consumer := payment_consumer.NewPaymentConsumer(kafkaConsumer, cfg.KafkaPaymentsTopic, service, logger)
			defer consumer.Close()

			go func() {
				if err := consumer.Start(ctx); err != nil {
					logger.Error("Payment consumer stopped", zap.Error(err))
				}
			}()
		}
	} else {
		logger.Warn("No Kafka broker configured; settlement events stay in the outbox")
	}

	apiServer := api.NewServer(api.ServerConfig{
		Port:             cfg.APIPort,
		JWTSecret:        cfg.JWTSecret,
		WebhookRateLimit: cfg.WebhookRateLimit,
		WebhookBurst:     cfg.WebhookBurst,
	}, service, gateway, logger)
	go func() {
		if err := apiServer.Start(); err != nil {
			logger.Fatal("API server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	<-sigChan
	logger.Info("Received shutdown signal, starting graceful shutdown...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := apiServer.Stop(shutdownCtx); err != nil {
		logger.Error("Error shutting down API server", zap.Error(err))
	}
	cancel()

	logger.Info("Application shutdown complete")
}
