package model

import (
	"encoding/json"
	"time"
)

const (
	OutboxUnsent     = "unsent"
	OutboxProcessing = "processing"
	OutboxSent       = "sent"
)

// OutboxEvent is written in the same transaction as the state change it
// describes and relayed to Kafka afterwards.
type OutboxEvent struct {
	EventID     string          `db:"event_id"`
	Aggregate   string          `db:"aggregate"`
	AggregateID string          `db:"aggregate_id"`
	EventType   string          `db:"event_type"`
	Status      string          `db:"status"`
	Payload     json.RawMessage `db:"payload"`
	CreatedAt   time.Time       `db:"created_at"`
}
