package event_publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/confluentinc/confluent-kafka-go/kafka"
	"go.uber.org/zap"

	"settle/apps/settle/internal/events"
	"settle/apps/settle/internal/model"
)

// OutboxStore is implemented by repository.OutboxRepository and memstore.Store.
type OutboxStore interface {
	GetUnsentEventsForProcessing(ctx context.Context, limit int) ([]model.OutboxEvent, error)
	MarkEventAsSent(ctx context.Context, eventID string) error
	MarkEventAsFailed(ctx context.Context, eventID string) error
}

// Producer is the part of *kafka.Producer the publisher uses
type Producer interface {
	Produce(msg *kafka.Message, deliveryChan chan kafka.Event) error
	Close()
}

type EventPublisher struct {
	logger       *zap.Logger
	producer     Producer
	kafkaTopic   string
	outbox       OutboxStore
	pollInterval time.Duration
	batchSize    int
	mu           sync.Mutex // Protects concurrent access to publishing operations
}

func NewKafkaProducer(kafkaBroker string) (*kafka.Producer, error) {
	producer, err := kafka.NewProducer(&kafka.ConfigMap{
		"bootstrap.servers":  kafkaBroker,
		"acks":               "all",
		"retries":            3,
		"retry.backoff.ms":   100,
		"enable.idempotence": true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka producer: %w", err)
	}
	return producer, nil
}

func NewEventPublisher(producer Producer, kafkaTopic string, outbox OutboxStore, pollInterval time.Duration, batchSize int, logger *zap.Logger) *EventPublisher {
	if pollInterval <= 0 {
		pollInterval = 3 * time.Second
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	return &EventPublisher{
		logger:       logger,
		producer:     producer,
		kafkaTopic:   kafkaTopic,
		outbox:       outbox,
		pollInterval: pollInterval,
		batchSize:    batchSize,
	}
}

// StartPublishing relays the outbox until ctx is cancelled.
func (ep *EventPublisher) StartPublishing(ctx context.Context) {
	ticker := time.NewTicker(ep.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			ep.logger.Info("Stopping event publisher")
			return
		case <-ticker.C:
			if _, err := ep.PublishUnsentEvents(ctx); err != nil {
				ep.logger.Error("Error publishing events to Kafka", zap.Error(err))
			}
		}
	}
}

// PublishUnsentEvents relays one batch and returns how many were acknowledged.
// Delivery is at least once: a crash after the broker ack and before
// MarkEventAsSent publishes the event again.
func (ep *EventPublisher) PublishUnsentEvents(ctx context.Context) (int, error) {
	ep.mu.Lock()
	defer ep.mu.Unlock()

	outboxEvents, err := ep.outbox.GetUnsentEventsForProcessing(ctx, ep.batchSize)
	if err != nil {
		return 0, err
	}

	successCount := 0
	for _, event := range outboxEvents {
		if err := ep.publishEventToKafka(event); err != nil {
			ep.logger.Error("Failed to publish event to Kafka",
				zap.String("event_id", event.EventID),
				zap.String("event_type", event.EventType),
				zap.Error(err))
			if markErr := ep.outbox.MarkEventAsFailed(ctx, event.EventID); markErr != nil {
				ep.logger.Error("Failed to mark event as failed", zap.String("event_id", event.EventID), zap.Error(markErr))
			}
			continue
		}

		if err := ep.outbox.MarkEventAsSent(ctx, event.EventID); err != nil {
			ep.logger.Error("Failed to mark event as sent", zap.String("event_id", event.EventID), zap.Error(err))
		} else {
			successCount++
		}
	}

	if successCount > 0 {
		ep.logger.Info("Published events to Kafka", zap.Int("success_count", successCount), zap.Int("attempted", len(outboxEvents)))
	}
	return successCount, nil
}

func (ep *EventPublisher) publishEventToKafka(event model.OutboxEvent) error {
	msgBytes, err := json.Marshal(events.SettlementEvent{
		EventID:     event.EventID,
		EventType:   event.EventType,
		Aggregate:   event.Aggregate,
		AggregateID: event.AggregateID,
		Payload:     event.Payload,
		OccurredAt:  event.CreatedAt,
		Timestamp:   time.Now().UTC(),
	})
	if err != nil {
		return err
	}

	deliveryChan := make(chan kafka.Event, 1)
	err = ep.producer.Produce(&kafka.Message{
		TopicPartition: kafka.TopicPartition{Topic: &ep.kafkaTopic, Partition: kafka.PartitionAny},
		Key:            []byte(event.AggregateID), // one partition per aggregate keeps its events ordered
		Value:          msgBytes,
		Headers:        []kafka.Header{{Key: "event_type", Value: []byte(event.EventType)}},
	}, deliveryChan)
	if err != nil {
		return err
	}

	e := <-deliveryChan
	switch ev := e.(type) {
	case *kafka.Message:
		if ev.TopicPartition.Error != nil {
			return ev.TopicPartition.Error
		}
		return nil
	default:
		return fmt.Errorf("unexpected kafka event type: %T", e)
	}
}

func (ep *EventPublisher) Close() error {
	if ep.producer != nil {
		ep.producer.Close()
	}
	return nil
}
