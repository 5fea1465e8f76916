package repository

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"settle/apps/settle/internal/model"
)

// OutboxRepository hands settlement_outbox rows to the event publisher.
type OutboxRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewOutboxRepository(db *sql.DB, logger *zap.Logger) *OutboxRepository {
	return &OutboxRepository{db: db, logger: logger}
}

// GetUnsentEventsForProcessing claims up to limit unsent rows, oldest first,
// by flipping them to processing. Concurrent publishers skip rows another one
// has locked.
func (r *OutboxRepository) GetUnsentEventsForProcessing(ctx context.Context, limit int) ([]model.OutboxEvent, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback() // Will be ignored if tx.Commit() succeeds

	rows, err := tx.QueryContext(ctx, `
		SELECT event_id, aggregate, aggregate_id, event_type, status, payload, created_at
		FROM settlement_outbox
		WHERE status = 'unsent'
		ORDER BY created_at, event_id
		LIMIT $1
		FOR UPDATE SKIP LOCKED
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to select unsent events: %w", err)
	}
	defer rows.Close()

	var events []model.OutboxEvent
	for rows.Next() {
		var event model.OutboxEvent
		var payload []byte
		if err := rows.Scan(&event.EventID, &event.Aggregate, &event.AggregateID, &event.EventType,
			&event.Status, &payload, &event.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan outbox event: %w", err)
		}
		event.Payload = payload
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	rows.Close()

	for i := range events {
		_, err = tx.ExecContext(ctx, `
			UPDATE settlement_outbox
			SET status = 'processing'
			WHERE event_id = $1 AND status = 'unsent'
		`, events[i].EventID)
		if err != nil {
			return nil, fmt.Errorf("failed to claim event %s: %w", events[i].EventID, err)
		}
		events[i].Status = model.OutboxProcessing
	}

	if err = tx.Commit(); err != nil {
		return nil, err
	}
	return events, nil
}

func (r *OutboxRepository) MarkEventAsSent(ctx context.Context, eventID string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE settlement_outbox
		SET status = 'sent'
		WHERE event_id = $1
	`, eventID)
	return err
}

// MarkEventAsFailed puts a processing row back so the next poll retries it.
func (r *OutboxRepository) MarkEventAsFailed(ctx context.Context, eventID string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE settlement_outbox
		SET status = 'unsent'
		WHERE event_id = $1 AND status = 'processing'
	`, eventID)
	return err
}

// ResetStuckEvents returns rows left in processing by a publisher that died
// between claiming and acknowledging them.
func (r *OutboxRepository) ResetStuckEvents(ctx context.Context) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE settlement_outbox
		SET status = 'unsent'
		WHERE status = 'processing'
	`)
	if err != nil {
		return 0, fmt.Errorf("failed to reset stuck events: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if n > 0 {
		r.logger.Warn("Reset stuck outbox events", zap.Int64("count", n))
	}
	return n, nil
}
