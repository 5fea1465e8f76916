package repository

import (
	"database/sql"
	"fmt"
)

// InitMigration creates the settlement schema. Balances and amounts are
// NUMERIC(14,2) so the database refuses anything the money package would.
func InitMigration(db *sql.DB) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS orders (
			order_id VARCHAR(64) PRIMARY KEY,
			service_id VARCHAR(64) NOT NULL,
			creative_id VARCHAR(64) NOT NULL,
			category VARCHAR(64) NOT NULL DEFAULT '',
			buyer_id VARCHAR(64) NOT NULL,
			total_price NUMERIC(14,2) NOT NULL CHECK (total_price > 0),
			status VARCHAR(20) NOT NULL,
			created_at TIMESTAMP NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMP NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_orders_buyer ON orders (buyer_id, created_at DESC)`,
		`CREATE TABLE IF NOT EXISTS order_extras (
			order_id VARCHAR(64) NOT NULL REFERENCES orders (order_id),
			extra_id VARCHAR(64) NOT NULL,
			title VARCHAR(255) NOT NULL DEFAULT '',
			price NUMERIC(14,2) NOT NULL CHECK (price >= 0),
			PRIMARY KEY (order_id, extra_id)
		)`,
		`CREATE TABLE IF NOT EXISTS payment_transactions (
			id VARCHAR(64) PRIMARY KEY,
			order_id VARCHAR(64) NOT NULL REFERENCES orders (order_id),
			provider VARCHAR(32) NOT NULL,
			provider_id VARCHAR(255) NOT NULL,
			amount NUMERIC(14,2) NOT NULL,
			status VARCHAR(20) NOT NULL,
			created_at TIMESTAMP NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMP NOT NULL DEFAULT NOW(),
			UNIQUE (provider, provider_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_payment_transactions_order ON payment_transactions (order_id, created_at)`,
		`CREATE TABLE IF NOT EXISTS escrows (
			escrow_id VARCHAR(64) PRIMARY KEY,
			order_id VARCHAR(64) NOT NULL UNIQUE REFERENCES orders (order_id),
			buyer_id VARCHAR(64) NOT NULL,
			creative_id VARCHAR(64) NOT NULL,
			amount NUMERIC(14,2) NOT NULL CHECK (amount >= 0),
			fee_percent NUMERIC(5,2) NOT NULL DEFAULT 0,
			fee_amount NUMERIC(14,2),
			creator_amount NUMERIC(14,2),
			status VARCHAR(20) NOT NULL,
			client_fulfilled BOOLEAN NOT NULL DEFAULT FALSE,
			creative_fulfilled BOOLEAN NOT NULL DEFAULT FALSE,
			released_at TIMESTAMP,
			created_at TIMESTAMP NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMP NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_escrows_buyer ON escrows (buyer_id)`,
		`CREATE INDEX IF NOT EXISTS idx_escrows_creative ON escrows (creative_id)`,
		`CREATE TABLE IF NOT EXISTS creative_wallets (
			user_id VARCHAR(64) PRIMARY KEY,
			available_balance NUMERIC(14,2) NOT NULL DEFAULT 0 CHECK (available_balance >= 0),
			pending_balance NUMERIC(14,2) NOT NULL DEFAULT 0 CHECK (pending_balance >= 0),
			created_at TIMESTAMP NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMP NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS withdrawal_requests (
			id VARCHAR(64) PRIMARY KEY,
			user_id VARCHAR(64) NOT NULL,
			amount NUMERIC(14,2) NOT NULL CHECK (amount > 0),
			status VARCHAR(20) NOT NULL,
			created_at TIMESTAMP NOT NULL DEFAULT NOW(),
			processed_at TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_withdrawal_requests_user ON withdrawal_requests (user_id, created_at DESC)`,
		`CREATE TABLE IF NOT EXISTS settlement_outbox (
			event_id VARCHAR(64) PRIMARY KEY,
			aggregate VARCHAR(32) NOT NULL,
			aggregate_id VARCHAR(64) NOT NULL,
			event_type VARCHAR(40) NOT NULL,
			status VARCHAR(20) NOT NULL DEFAULT 'unsent',
			payload JSONB NOT NULL,
			created_at TIMESTAMP NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_settlement_outbox_status ON settlement_outbox (status, created_at)`,
	}

	for _, query := range queries {
		if _, err := db.Exec(query); err != nil {
			return fmt.Errorf("failed to execute query %s: %w", query, err)
		}
	}
	return nil
}
