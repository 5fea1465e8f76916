package repository

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"settle/apps/settle/internal/model"
	"settle/apps/settle/internal/settlement"
)

// SettlementRepository is the Postgres settlement.Store. Units of work run in
// READ COMMITTED transactions and serialize on SELECT ... FOR UPDATE row locks.
type SettlementRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewSettlementRepository(db *sql.DB, logger *zap.Logger) *SettlementRepository {
	return &SettlementRepository{db: db, logger: logger}
}

var _ settlement.Store = (*SettlementRepository)(nil)

func (r *SettlementRepository) InTx(ctx context.Context, fn func(tx settlement.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() // Will be ignored if tx.Commit() succeeds

	if err := fn(&pgTx{tx: tx, logger: r.logger}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (r *SettlementRepository) FindOrder(ctx context.Context, orderID string) (*model.Order, error) {
	return findOrder(ctx, r.db, orderID, false)
}

func (r *SettlementRepository) FindEscrow(ctx context.Context, escrowID string) (*model.Escrow, error) {
	return findEscrow(ctx, r.db, escrowID, false)
}

func (r *SettlementRepository) FindEscrowByOrder(ctx context.Context, orderID string) (*model.Escrow, error) {
	escrow, err := scanEscrow(r.db.QueryRowContext(ctx, `
		SELECT `+escrowColumns+`
		FROM escrows
		WHERE order_id = $1
	`, orderID))
	if err != nil {
		return nil, notFound(err, "escrow for order", orderID)
	}
	return escrow, nil
}

func (r *SettlementRepository) ListEscrows(ctx context.Context, userID string) ([]model.Escrow, error) {
	return queryEscrows(ctx, r.db, `
		SELECT `+escrowColumns+`
		FROM escrows
		WHERE buyer_id = $1 OR creative_id = $1
		ORDER BY created_at DESC, escrow_id DESC
	`, userID)
}

func (r *SettlementRepository) ListAllEscrows(ctx context.Context) ([]model.Escrow, error) {
	return queryEscrows(ctx, r.db, `
		SELECT `+escrowColumns+`
		FROM escrows
		ORDER BY created_at DESC, escrow_id DESC
	`)
}

func (r *SettlementRepository) ListPayments(ctx context.Context, orderID string) ([]model.PaymentTransaction, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+paymentColumns+`
		FROM payment_transactions
		WHERE order_id = $1
		ORDER BY created_at, id
	`, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to list payments: %w", err)
	}
	defer rows.Close()

	var payments []model.PaymentTransaction
	for rows.Next() {
		payment, err := scanPayment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan payment: %w", err)
		}
		payments = append(payments, *payment)
	}
	return payments, rows.Err()
}

func (r *SettlementRepository) FindWallet(ctx context.Context, userID string) (*model.CreativeWallet, error) {
	wallet, err := scanWallet(r.db.QueryRowContext(ctx, `
		SELECT `+walletColumns+`
		FROM creative_wallets
		WHERE user_id = $1
	`, userID))
	if err != nil {
		return nil, notFound(err, "wallet", userID)
	}
	return wallet, nil
}

func (r *SettlementRepository) ListWithdrawals(ctx context.Context, userID string) ([]model.WithdrawalRequest, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+withdrawalColumns+`
		FROM withdrawal_requests
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list withdrawals: %w", err)
	}
	defer rows.Close()

	var requests []model.WithdrawalRequest
	for rows.Next() {
		request, err := scanWithdrawal(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan withdrawal: %w", err)
		}
		requests = append(requests, *request)
	}
	return requests, rows.Err()
}
