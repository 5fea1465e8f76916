package model

import (
	"time"

	"settle/apps/settle/internal/money"
)

type PaymentStatus string

const (
	PaymentInitiated PaymentStatus = "initiated"
	PaymentCreated   PaymentStatus = "created"
	PaymentSucceeded PaymentStatus = "succeeded"
	PaymentFailed    PaymentStatus = "failed"
)

// paymentRank orders statuses so a row only ever moves forward. A failed
// attempt can still be confirmed later, never the reverse.
var paymentRank = map[PaymentStatus]int{
	PaymentInitiated: 0,
	PaymentCreated:   1,
	PaymentFailed:    2,
	PaymentSucceeded: 3,
}

func (s PaymentStatus) Valid() bool {
	_, ok := paymentRank[s]
	return ok
}

// PaymentTransaction records one provider-side event for an order. The
// (Provider, ProviderID) pair is the idempotency key.
type PaymentTransaction struct {
	ID         string        `db:"id"`
	OrderID    string        `db:"order_id"`
	Provider   string        `db:"provider"`
	ProviderID string        `db:"provider_id"`
	Amount     money.Money   `db:"amount"`
	Status     PaymentStatus `db:"status"`
	CreatedAt  time.Time     `db:"created_at"`
	UpdatedAt  time.Time     `db:"updated_at"`
}

// CanAdvanceTo reports whether moving to next is a forward step.
// SUCCEEDED is terminal; a retried charge may turn FAILED into SUCCEEDED.
func (p *PaymentTransaction) CanAdvanceTo(next PaymentStatus) bool {
	if !next.Valid() || p.Status == PaymentSucceeded {
		return false
	}
	return paymentRank[next] > paymentRank[p.Status]
}

// Advance moves the row forward, reporting whether anything changed.
func (p *PaymentTransaction) Advance(next PaymentStatus, now time.Time) bool {
	if !p.CanAdvanceTo(next) {
		return false
	}
	p.Status = next
	p.UpdatedAt = now
	return true
}
