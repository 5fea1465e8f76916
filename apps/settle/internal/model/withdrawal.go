package model

import (
	"errors"
	"fmt"
	"time"

	"settle/apps/settle/internal/money"
)

type WithdrawalStatus string

const (
	WithdrawalRequested WithdrawalStatus = "requested"
	WithdrawalApproved  WithdrawalStatus = "approved"
	WithdrawalRejected  WithdrawalStatus = "rejected"
	WithdrawalProcessed WithdrawalStatus = "processed"
)

type WithdrawalRequest struct {
	ID          string           `db:"id"`
	UserID      string           `db:"user_id"`
	Amount      money.Money      `db:"amount"`
	Status      WithdrawalStatus `db:"status"`
	CreatedAt   time.Time        `db:"created_at"`
	ProcessedAt *time.Time       `db:"processed_at"`
}

// NewWithdrawal validates a request against the wallet at request time. It
// does not reserve funds; Approve checks the balance again.
func NewWithdrawal(id string, wallet *CreativeWallet, amount money.Money, now time.Time) (*WithdrawalRequest, error) {
	if !amount.IsPositive() {
		return nil, fmt.Errorf("%w: withdrawal of %s", ErrInvalidAmount, amount)
	}
	if amount.GreaterThan(wallet.AvailableBalance) {
		return nil, fmt.Errorf("%w: available %s, requested %s", ErrInsufficientBalance, wallet.AvailableBalance, amount)
	}

	return &WithdrawalRequest{
		ID:        id,
		UserID:    wallet.UserID,
		Amount:    amount,
		Status:    WithdrawalRequested,
		CreatedAt: now,
	}, nil
}

// Approve moves the amount from available to pending and marks the request
// PROCESSED. If the wallet no longer covers it the request becomes REJECTED
// and nothing is debited. Returns whether the debit happened.
func (r *WithdrawalRequest) Approve(wallet *CreativeWallet, now time.Time) (bool, error) {
	if r.Status != WithdrawalRequested {
		return false, transitionError("withdrawal", string(r.Status), string(WithdrawalProcessed))
	}
	if wallet.UserID != r.UserID {
		return false, fmt.Errorf("withdrawal %s belongs to %s, not wallet %s", r.ID, r.UserID, wallet.UserID)
	}

	processedAt := now
	if err := wallet.MoveToPending(r.Amount, now); err != nil {
		if !errors.Is(err, ErrInsufficientBalance) {
			return false, err
		}
		r.Status = WithdrawalRejected
		r.ProcessedAt = &processedAt
		return false, nil
	}

	r.Status = WithdrawalProcessed
	r.ProcessedAt = &processedAt
	return true, nil
}

// Reject closes a pending request without touching the wallet.
func (r *WithdrawalRequest) Reject(now time.Time) error {
	if r.Status != WithdrawalRequested {
		return transitionError("withdrawal", string(r.Status), string(WithdrawalRejected))
	}
	processedAt := now
	r.Status = WithdrawalRejected
	r.ProcessedAt = &processedAt
	return nil
}
