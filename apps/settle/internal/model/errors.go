package model

import (
	"errors"
	"fmt"

	"settle/apps/settle/internal/money"
)

var (
	ErrInvalidTransition   = errors.New("invalid state transition")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrInvalidAmount       = money.ErrInvalidAmount
	ErrAmountMismatch      = errors.New("payment amount does not match order total")
	ErrPermission          = errors.New("permission denied")
	ErrInvalidExtra        = errors.New("extra does not belong to service")
	ErrNotFound            = errors.New("not found")
	ErrInvalidEvent        = errors.New("invalid payment event")
)

// AmountMismatchError reports a provider amount that disagrees with the
// order total. The order total stays authoritative.
type AmountMismatchError struct {
	OrderID  string
	Expected money.Money
	Received money.Money
}

func (e *AmountMismatchError) Error() string {
	return fmt.Sprintf("order %s: expected %s, provider reported %s", e.OrderID, e.Expected, e.Received)
}

func (e *AmountMismatchError) Unwrap() error {
	return ErrAmountMismatch
}

func transitionError(entity, from, to string) error {
	return fmt.Errorf("%w: %s %s -> %s", ErrInvalidTransition, entity, from, to)
}
