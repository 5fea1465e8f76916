package memstore

import (
	"context"
	"fmt"
	"time"

	"settle/apps/settle/internal/model"
)

// memTx works on the private copy taken by InTx; the store mutex is held for
// its whole life.
type memTx struct {
	state *state
}

func paymentKey(provider, providerID string) string {
	return provider + "\x00" + providerID
}

func (t *memTx) InsertOrder(_ context.Context, order *model.Order) error {
	if _, exists := t.state.orders[order.OrderID]; exists {
		return fmt.Errorf("order %s already exists", order.OrderID)
	}
	t.state.orders[order.OrderID] = *order
	return nil
}

func (t *memTx) LockOrder(_ context.Context, orderID string) (*model.Order, error) {
	return t.state.order(orderID)
}

func (t *memTx) UpdateOrderStatus(_ context.Context, order *model.Order) error {
	stored, ok := t.state.orders[order.OrderID]
	if !ok {
		return fmt.Errorf("%w: order %s", model.ErrNotFound, order.OrderID)
	}
	stored.Status = order.Status
	stored.UpdatedAt = order.UpdatedAt
	t.state.orders[order.OrderID] = stored
	return nil
}

func (t *memTx) FindOrCreatePayment(_ context.Context, candidate *model.PaymentTransaction) (*model.PaymentTransaction, bool, error) {
	key := paymentKey(candidate.Provider, candidate.ProviderID)
	if id, exists := t.state.paymentsByKey[key]; exists {
		payment := t.state.payments[id]
		return &payment, false, nil
	}
	if _, exists := t.state.orders[candidate.OrderID]; !exists {
		return nil, false, fmt.Errorf("%w: order %s", model.ErrNotFound, candidate.OrderID)
	}

	t.state.payments[candidate.ID] = *candidate
	t.state.paymentsByKey[key] = candidate.ID
	payment := *candidate
	return &payment, true, nil
}

func (t *memTx) UpdatePaymentStatus(_ context.Context, payment *model.PaymentTransaction) error {
	stored, ok := t.state.payments[payment.ID]
	if !ok {
		return fmt.Errorf("%w: payment %s", model.ErrNotFound, payment.ID)
	}
	stored.Status = payment.Status
	stored.UpdatedAt = payment.UpdatedAt
	t.state.payments[payment.ID] = stored
	return nil
}

func (t *memTx) FindOrCreateEscrow(_ context.Context, candidate *model.Escrow) (*model.Escrow, bool, error) {
	if id, exists := t.state.escrowsByOrder[candidate.OrderID]; exists {
		escrow := t.state.escrows[id]
		return &escrow, false, nil
	}

	t.state.escrows[candidate.EscrowID] = *candidate
	t.state.escrowsByOrder[candidate.OrderID] = candidate.EscrowID
	escrow := *candidate
	return &escrow, true, nil
}

func (t *memTx) LockEscrow(_ context.Context, escrowID string) (*model.Escrow, error) {
	return t.state.escrow(escrowID)
}

func (t *memTx) SaveEscrow(_ context.Context, escrow *model.Escrow) error {
	if _, ok := t.state.escrows[escrow.EscrowID]; !ok {
		return fmt.Errorf("%w: escrow %s", model.ErrNotFound, escrow.EscrowID)
	}
	t.state.escrows[escrow.EscrowID] = *escrow
	return nil
}

func (t *memTx) FindOrCreateWallet(_ context.Context, userID string, now time.Time) (*model.CreativeWallet, bool, error) {
	if wallet, exists := t.state.wallets[userID]; exists {
		return &wallet, false, nil
	}

	wallet := model.NewWallet(userID, now)
	t.state.wallets[userID] = *wallet
	return wallet, true, nil
}

func (t *memTx) SaveWallet(_ context.Context, wallet *model.CreativeWallet) error {
	if wallet.AvailableBalance.IsNegative() || wallet.PendingBalance.IsNegative() {
		return fmt.Errorf("%w: wallet %s would go negative", model.ErrInsufficientBalance, wallet.UserID)
	}
	t.state.wallets[wallet.UserID] = *wallet
	return nil
}

func (t *memTx) InsertWithdrawal(_ context.Context, request *model.WithdrawalRequest) error {
	if _, exists := t.state.withdrawals[request.ID]; exists {
		return fmt.Errorf("withdrawal %s already exists", request.ID)
	}
	t.state.withdrawals[request.ID] = *request
	return nil
}

func (t *memTx) LockWithdrawal(_ context.Context, id string) (*model.WithdrawalRequest, error) {
	request, ok := t.state.withdrawals[id]
	if !ok {
		return nil, fmt.Errorf("%w: withdrawal %s", model.ErrNotFound, id)
	}
	return &request, nil
}

func (t *memTx) SaveWithdrawal(_ context.Context, request *model.WithdrawalRequest) error {
	if _, ok := t.state.withdrawals[request.ID]; !ok {
		return fmt.Errorf("%w: withdrawal %s", model.ErrNotFound, request.ID)
	}
	t.state.withdrawals[request.ID] = *request
	return nil
}

func (t *memTx) StoreOutboxEvent(_ context.Context, event model.OutboxEvent) error {
	t.state.outbox = append(t.state.outbox, event)
	return nil
}
