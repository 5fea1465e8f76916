package payment_consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/confluentinc/confluent-kafka-go/kafka"
	"go.uber.org/zap"

	"settle/apps/settle/internal/events"
	"settle/apps/settle/internal/model"
	"settle/apps/settle/internal/settlement"
)

type Ingestor interface {
	IngestPayment(ctx context.Context, event events.PaymentEvent) (*settlement.IngestResult, error)
}

// Consumer is the part of *kafka.Consumer the payment consumer uses
type Consumer interface {
	Subscribe(topic string, rebalanceCb kafka.RebalanceCb) error
	ReadMessage(timeout time.Duration) (*kafka.Message, error)
	CommitMessage(m *kafka.Message) ([]kafka.TopicPartition, error)
	Seek(partition kafka.TopicPartition, timeoutMs int) error
	Close() error
}

// PaymentConsumer feeds provider confirmations from the payments topic into
// ingestion. Offsets are committed only once a message is settled, so a
// restart replays anything in flight; ingestion makes the replay harmless.
// A message that keeps failing blocks its partition: the consumer seeks back
// to it instead of reading past it.
type PaymentConsumer struct {
	logger      *zap.Logger
	consumer    Consumer
	ingestor    Ingestor
	kafkaTopic  string
	maxAttempts int
	backoff     time.Duration
}

func NewKafkaConsumer(kafkaBroker, groupID string) (*kafka.Consumer, error) {
	consumer, err := kafka.NewConsumer(&kafka.ConfigMap{
		"bootstrap.servers":  kafkaBroker,
		"group.id":           groupID,
		"auto.offset.reset":  "earliest",
		"enable.auto.commit": false,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka consumer: %w", err)
	}
	return consumer, nil
}

func NewPaymentConsumer(consumer Consumer, kafkaTopic string, ingestor Ingestor, logger *zap.Logger) *PaymentConsumer {
	return &PaymentConsumer{
		logger:      logger,
		consumer:    consumer,
		ingestor:    ingestor,
		kafkaTopic:  kafkaTopic,
		maxAttempts: 5,
		backoff:     500 * time.Millisecond,
	}
}

// Start consumes until ctx is cancelled.
func (pc *PaymentConsumer) Start(ctx context.Context) error {
	pc.logger.Info("Starting payment consumer...", zap.String("topic", pc.kafkaTopic))

	if err := pc.consumer.Subscribe(pc.kafkaTopic, nil); err != nil {
		return fmt.Errorf("failed to subscribe to topic %s: %w", pc.kafkaTopic, err)
	}

	for ctx.Err() == nil {
		msg, err := pc.consumer.ReadMessage(time.Second)
		if err != nil {
			var kafkaErr kafka.Error
			if errors.As(err, &kafkaErr) && kafkaErr.Code() == kafka.ErrTimedOut {
				continue
			}
			pc.logger.Error("Error reading message from Kafka", zap.Error(err))
			continue
		}

		if err := pc.handle(ctx, msg); err != nil {
			if ctx.Err() != nil {
				break
			}
			pc.logger.Error("Error processing message, rewinding partition",
				zap.String("topic", *msg.TopicPartition.Topic),
				zap.Int32("partition", msg.TopicPartition.Partition),
				zap.Int64("offset", int64(msg.TopicPartition.Offset)),
				zap.String("key", string(msg.Key)),
				zap.Error(err))
			if err := pc.consumer.Seek(msg.TopicPartition, 0); err != nil {
				return fmt.Errorf("failed to rewind to offset %d: %w", msg.TopicPartition.Offset, err)
			}
			select {
			case <-ctx.Done():
			case <-time.After(pc.backoff * time.Duration(pc.maxAttempts)):
			}
			continue
		}
		if _, err := pc.consumer.CommitMessage(msg); err != nil {
			pc.logger.Error("Failed to commit offset", zap.Error(err))
		}
	}

	pc.logger.Info("Stopping payment consumer")
	return nil
}

// handle retries transient failures and drops messages that can never
// succeed. A nil return means the offset may be committed.
func (pc *PaymentConsumer) handle(ctx context.Context, msg *kafka.Message) error {
	var event events.PaymentEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		pc.logger.Warn("Dropping undecodable payment message", zap.String("key", string(msg.Key)), zap.Error(err))
		return nil
	}

	var err error
	for attempt := 1; attempt <= pc.maxAttempts; attempt++ {
		var result *settlement.IngestResult
		result, err = pc.ingestor.IngestPayment(ctx, event)
		if err == nil {
			pc.logger.Debug("Processed payment message",
				zap.String("provider_id", event.ProviderID),
				zap.Bool("funded", result.Funded),
				zap.Bool("duplicate", result.Duplicate))
			return nil
		}
		if errors.Is(err, model.ErrInvalidEvent) || errors.Is(err, model.ErrNotFound) {
			pc.logger.Warn("Dropping payment message",
				zap.String("provider", event.Provider),
				zap.String("provider_id", event.ProviderID),
				zap.String("order_id", event.OrderID),
				zap.Error(err))
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(pc.backoff * time.Duration(attempt)):
		}
	}
	return fmt.Errorf("failed to ingest payment %s after %d attempts: %w", event.ProviderID, pc.maxAttempts, err)
}

func (pc *PaymentConsumer) Close() error {
	if pc.consumer != nil {
		return pc.consumer.Close()
	}
	return nil
}
