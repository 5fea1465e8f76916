package model

import (
	"fmt"
	"time"

	"settle/apps/settle/internal/money"
)

// CreativeWallet is the ledger of one creative. Both balances stay >= 0.
type CreativeWallet struct {
	UserID           string      `db:"user_id"`
	AvailableBalance money.Money `db:"available_balance"`
	PendingBalance   money.Money `db:"pending_balance"`
	CreatedAt        time.Time   `db:"created_at"`
	UpdatedAt        time.Time   `db:"updated_at"`
}

func NewWallet(userID string, now time.Time) *CreativeWallet {
	return &CreativeWallet{
		UserID:           userID,
		AvailableBalance: money.Zero(),
		PendingBalance:   money.Zero(),
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

// Credit adds to the available balance.
func (w *CreativeWallet) Credit(amount money.Money, now time.Time) error {
	if !amount.IsPositive() {
		return fmt.Errorf("%w: credit of %s", ErrInvalidAmount, amount)
	}
	w.AvailableBalance = w.AvailableBalance.Add(amount)
	w.UpdatedAt = now
	return nil
}

// Debit removes from the available balance, failing rather than clamping.
func (w *CreativeWallet) Debit(amount money.Money, now time.Time) error {
	if !amount.IsPositive() {
		return fmt.Errorf("%w: debit of %s", ErrInvalidAmount, amount)
	}
	if amount.GreaterThan(w.AvailableBalance) {
		return fmt.Errorf("%w: available %s, requested %s", ErrInsufficientBalance, w.AvailableBalance, amount)
	}
	w.AvailableBalance = w.AvailableBalance.Sub(amount)
	w.UpdatedAt = now
	return nil
}

// MoveToPending debits available and holds the amount as pending payout.
func (w *CreativeWallet) MoveToPending(amount money.Money, now time.Time) error {
	if err := w.Debit(amount, now); err != nil {
		return err
	}
	w.PendingBalance = w.PendingBalance.Add(amount)
	return nil
}
