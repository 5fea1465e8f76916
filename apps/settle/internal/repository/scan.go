package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"settle/apps/settle/internal/model"
)

// queryer is satisfied by both *sql.DB and *sql.Tx
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

const (
	orderColumns      = `order_id, service_id, creative_id, category, buyer_id, total_price, status, created_at, updated_at`
	paymentColumns    = `id, order_id, provider, provider_id, amount, status, created_at, updated_at`
	escrowColumns     = `escrow_id, order_id, buyer_id, creative_id, amount, fee_percent, fee_amount, creator_amount, status, client_fulfilled, creative_fulfilled, released_at, created_at, updated_at`
	walletColumns     = `user_id, available_balance, pending_balance, created_at, updated_at`
	withdrawalColumns = `id, user_id, amount, status, created_at, processed_at`
)

func scanOrder(row rowScanner) (*model.Order, error) {
	var order model.Order
	err := row.Scan(&order.OrderID, &order.ServiceID, &order.CreativeID, &order.Category, &order.BuyerID,
		&order.TotalPrice, &order.Status, &order.CreatedAt, &order.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func scanPayment(row rowScanner) (*model.PaymentTransaction, error) {
	var payment model.PaymentTransaction
	err := row.Scan(&payment.ID, &payment.OrderID, &payment.Provider, &payment.ProviderID,
		&payment.Amount, &payment.Status, &payment.CreatedAt, &payment.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

func scanEscrow(row rowScanner) (*model.Escrow, error) {
	var escrow model.Escrow
	err := row.Scan(&escrow.EscrowID, &escrow.OrderID, &escrow.BuyerID, &escrow.CreativeID, &escrow.Amount,
		&escrow.FeePercent, &escrow.FeeAmount, &escrow.CreatorAmount, &escrow.Status,
		&escrow.ClientFulfilled, &escrow.CreativeFulfilled, &escrow.ReleasedAt, &escrow.CreatedAt, &escrow.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &escrow, nil
}

func scanWallet(row rowScanner) (*model.CreativeWallet, error) {
	var wallet model.CreativeWallet
	err := row.Scan(&wallet.UserID, &wallet.AvailableBalance, &wallet.PendingBalance, &wallet.CreatedAt, &wallet.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &wallet, nil
}

func scanWithdrawal(row rowScanner) (*model.WithdrawalRequest, error) {
	var request model.WithdrawalRequest
	err := row.Scan(&request.ID, &request.UserID, &request.Amount, &request.Status, &request.CreatedAt, &request.ProcessedAt)
	if err != nil {
		return nil, err
	}
	return &request, nil
}

// notFound turns sql.ErrNoRows into model.ErrNotFound and wraps anything else.
func notFound(err error, what, id string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s %s", model.ErrNotFound, what, id)
	}
	return fmt.Errorf("failed to get %s %s: %w", what, id, err)
}

func loadExtras(ctx context.Context, q queryer, order *model.Order) error {
	rows, err := q.QueryContext(ctx, `
		SELECT order_id, extra_id, title, price
		FROM order_extras
		WHERE order_id = $1
		ORDER BY extra_id
	`, order.OrderID)
	if err != nil {
		return fmt.Errorf("failed to get extras of order %s: %w", order.OrderID, err)
	}
	defer rows.Close()

	order.Extras = nil
	for rows.Next() {
		var extra model.OrderExtra
		if err := rows.Scan(&extra.OrderID, &extra.ExtraID, &extra.Title, &extra.Price); err != nil {
			return fmt.Errorf("failed to scan extra: %w", err)
		}
		order.Extras = append(order.Extras, extra)
	}
	return rows.Err()
}

func findOrder(ctx context.Context, q queryer, orderID string, lock bool) (*model.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE order_id = $1`
	if lock {
		query += ` FOR UPDATE`
	}
	order, err := scanOrder(q.QueryRowContext(ctx, query, orderID))
	if err != nil {
		return nil, notFound(err, "order", orderID)
	}
	if err := loadExtras(ctx, q, order); err != nil {
		return nil, err
	}
	return order, nil
}

func findEscrow(ctx context.Context, q queryer, escrowID string, lock bool) (*model.Escrow, error) {
	query := `SELECT ` + escrowColumns + ` FROM escrows WHERE escrow_id = $1`
	if lock {
		query += ` FOR UPDATE`
	}
	escrow, err := scanEscrow(q.QueryRowContext(ctx, query, escrowID))
	if err != nil {
		return nil, notFound(err, "escrow", escrowID)
	}
	return escrow, nil
}

func queryEscrows(ctx context.Context, q queryer, query string, args ...interface{}) ([]model.Escrow, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list escrows: %w", err)
	}
	defer rows.Close()

	var escrows []model.Escrow
	for rows.Next() {
		escrow, err := scanEscrow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan escrow: %w", err)
		}
		escrows = append(escrows, *escrow)
	}
	return escrows, rows.Err()
}
