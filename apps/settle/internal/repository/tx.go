package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"go.uber.org/zap"

	"settle/apps/settle/internal/model"
)

const (
	uniqueViolation = "23505"
	checkViolation  = "23514"
)

type pgTx struct {
	tx     *sql.Tx
	logger *zap.Logger
}

func pqCode(err error) pq.ErrorCode {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code
	}
	return ""
}

func (t *pgTx) InsertOrder(ctx context.Context, order *model.Order) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO orders (`+orderColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, order.OrderID, order.ServiceID, order.CreativeID, order.Category, order.BuyerID,
		order.TotalPrice, order.Status, order.CreatedAt, order.UpdatedAt)
	if err != nil {
		if pqCode(err) == uniqueViolation {
			return fmt.Errorf("order %s already exists: %w", order.OrderID, err)
		}
		return fmt.Errorf("failed to insert order: %w", err)
	}

	for _, extra := range order.Extras {
		_, err := t.tx.ExecContext(ctx, `
			INSERT INTO order_extras (order_id, extra_id, title, price)
			VALUES ($1, $2, $3, $4)
		`, order.OrderID, extra.ExtraID, extra.Title, extra.Price)
		if err != nil {
			return fmt.Errorf("failed to insert extra %s: %w", extra.ExtraID, err)
		}
	}

	t.logger.Debug("Inserted order", zap.String("order_id", order.OrderID), zap.Int("extras", len(order.Extras)))
	return nil
}

func (t *pgTx) LockOrder(ctx context.Context, orderID string) (*model.Order, error) {
	return findOrder(ctx, t.tx, orderID, true)
}

func (t *pgTx) UpdateOrderStatus(ctx context.Context, order *model.Order) error {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE orders
		SET status = $2, updated_at = $3
		WHERE order_id = $1
	`, order.OrderID, order.Status, order.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to update order status: %w", err)
	}
	return expectOne(res, "order", order.OrderID)
}

// FindOrCreatePayment relies on the (provider, provider_id) unique key: the
// insert is a no-op for a known key and the follow-up read locks the row.
func (t *pgTx) FindOrCreatePayment(ctx context.Context, candidate *model.PaymentTransaction) (*model.PaymentTransaction, bool, error) {
	res, err := t.tx.ExecContext(ctx, `
		INSERT INTO payment_transactions (`+paymentColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (provider, provider_id) DO NOTHING
	`, candidate.ID, candidate.OrderID, candidate.Provider, candidate.ProviderID,
		candidate.Amount, candidate.Status, candidate.CreatedAt, candidate.UpdatedAt)
	if err != nil {
		return nil, false, fmt.Errorf("failed to insert payment: %w", err)
	}
	inserted, err := res.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("failed to insert payment: %w", err)
	}

	payment, err := scanPayment(t.tx.QueryRowContext(ctx, `
		SELECT `+paymentColumns+`
		FROM payment_transactions
		WHERE provider = $1 AND provider_id = $2
		FOR UPDATE
	`, candidate.Provider, candidate.ProviderID))
	if err != nil {
		return nil, false, notFound(err, "payment", candidate.ProviderID)
	}
	return payment, inserted == 1, nil
}

func (t *pgTx) UpdatePaymentStatus(ctx context.Context, payment *model.PaymentTransaction) error {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE payment_transactions
		SET status = $2, updated_at = $3
		WHERE id = $1
	`, payment.ID, payment.Status, payment.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to update payment status: %w", err)
	}
	return expectOne(res, "payment", payment.ID)
}

func (t *pgTx) FindOrCreateEscrow(ctx context.Context, candidate *model.Escrow) (*model.Escrow, bool, error) {
	res, err := t.tx.ExecContext(ctx, `
		INSERT INTO escrows (`+escrowColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (order_id) DO NOTHING
	`, candidate.EscrowID, candidate.OrderID, candidate.BuyerID, candidate.CreativeID, candidate.Amount,
		candidate.FeePercent, candidate.FeeAmount, candidate.CreatorAmount, candidate.Status,
		candidate.ClientFulfilled, candidate.CreativeFulfilled, candidate.ReleasedAt, candidate.CreatedAt, candidate.UpdatedAt)
	if err != nil {
		return nil, false, fmt.Errorf("failed to insert escrow: %w", err)
	}
	inserted, err := res.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("failed to insert escrow: %w", err)
	}

	escrow, err := scanEscrow(t.tx.QueryRowContext(ctx, `
		SELECT `+escrowColumns+`
		FROM escrows
		WHERE order_id = $1
		FOR UPDATE
	`, candidate.OrderID))
	if err != nil {
		return nil, false, notFound(err, "escrow for order", candidate.OrderID)
	}
	return escrow, inserted == 1, nil
}

func (t *pgTx) LockEscrow(ctx context.Context, escrowID string) (*model.Escrow, error) {
	return findEscrow(ctx, t.tx, escrowID, true)
}

func (t *pgTx) SaveEscrow(ctx context.Context, escrow *model.Escrow) error {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE escrows
		SET amount = $2, fee_percent = $3, fee_amount = $4, creator_amount = $5, status = $6,
			client_fulfilled = $7, creative_fulfilled = $8, released_at = $9, updated_at = $10
		WHERE escrow_id = $1
	`, escrow.EscrowID, escrow.Amount, escrow.FeePercent, escrow.FeeAmount, escrow.CreatorAmount, escrow.Status,
		escrow.ClientFulfilled, escrow.CreativeFulfilled, escrow.ReleasedAt, escrow.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to save escrow: %w", err)
	}
	return expectOne(res, "escrow", escrow.EscrowID)
}

func (t *pgTx) FindOrCreateWallet(ctx context.Context, userID string, now time.Time) (*model.CreativeWallet, bool, error) {
	res, err := t.tx.ExecContext(ctx, `
		INSERT INTO creative_wallets (user_id, available_balance, pending_balance, created_at, updated_at)
		VALUES ($1, 0, 0, $2, $2)
		ON CONFLICT (user_id) DO NOTHING
	`, userID, now)
	if err != nil {
		return nil, false, fmt.Errorf("failed to create wallet: %w", err)
	}
	inserted, err := res.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("failed to create wallet: %w", err)
	}

	wallet, err := scanWallet(t.tx.QueryRowContext(ctx, `
		SELECT `+walletColumns+`
		FROM creative_wallets
		WHERE user_id = $1
		FOR UPDATE
	`, userID))
	if err != nil {
		return nil, false, notFound(err, "wallet", userID)
	}
	return wallet, inserted == 1, nil
}

func (t *pgTx) SaveWallet(ctx context.Context, wallet *model.CreativeWallet) error {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE creative_wallets
		SET available_balance = $2, pending_balance = $3, updated_at = $4
		WHERE user_id = $1
	`, wallet.UserID, wallet.AvailableBalance, wallet.PendingBalance, wallet.UpdatedAt)
	if err != nil {
		if pqCode(err) == checkViolation {
			return fmt.Errorf("%w: wallet %s would go negative", model.ErrInsufficientBalance, wallet.UserID)
		}
		return fmt.Errorf("failed to save wallet: %w", err)
	}
	return expectOne(res, "wallet", wallet.UserID)
}

func (t *pgTx) InsertWithdrawal(ctx context.Context, request *model.WithdrawalRequest) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO withdrawal_requests (`+withdrawalColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, request.ID, request.UserID, request.Amount, request.Status, request.CreatedAt, request.ProcessedAt)
	if err != nil {
		return fmt.Errorf("failed to insert withdrawal: %w", err)
	}
	return nil
}

func (t *pgTx) LockWithdrawal(ctx context.Context, id string) (*model.WithdrawalRequest, error) {
	request, err := scanWithdrawal(t.tx.QueryRowContext(ctx, `
		SELECT `+withdrawalColumns+`
		FROM withdrawal_requests
		WHERE id = $1
		FOR UPDATE
	`, id))
	if err != nil {
		return nil, notFound(err, "withdrawal", id)
	}
	return request, nil
}

func (t *pgTx) SaveWithdrawal(ctx context.Context, request *model.WithdrawalRequest) error {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE withdrawal_requests
		SET status = $2, processed_at = $3
		WHERE id = $1
	`, request.ID, request.Status, request.ProcessedAt)
	if err != nil {
		return fmt.Errorf("failed to save withdrawal: %w", err)
	}
	return expectOne(res, "withdrawal", request.ID)
}

func (t *pgTx) StoreOutboxEvent(ctx context.Context, event model.OutboxEvent) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO settlement_outbox (event_id, aggregate, aggregate_id, event_type, status, payload, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, event.EventID, event.Aggregate, event.AggregateID, event.EventType, event.Status, []byte(event.Payload), event.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to store outbox event: %w", err)
	}

	t.logger.Debug("Stored event",
		zap.String("event_type", event.EventType),
		zap.String("aggregate_id", event.AggregateID))
	return nil
}

func expectOne(res sql.Result, what, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update %s %s: %w", what, id, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s %s", model.ErrNotFound, what, id)
	}
	return nil
}
