package model

import (
	"time"

	"github.com/shopspring/decimal"

	"settle/apps/settle/internal/money"
)

type EscrowStatus string

const (
	EscrowPending  EscrowStatus = "pending"
	EscrowFunded   EscrowStatus = "funded"
	EscrowReleased EscrowStatus = "released"
	EscrowRefunded EscrowStatus = "refunded"
)

// Escrow holds the funds of one order until both parties confirm fulfillment.
// ReleasedAt is set iff Status is EscrowReleased, and FeeAmount +
// CreatorAmount == Amount from that point on.
type Escrow struct {
	EscrowID          string          `db:"escrow_id"`
	OrderID           string          `db:"order_id"`
	BuyerID           string          `db:"buyer_id"`
	CreativeID        string          `db:"creative_id"`
	Amount            money.Money     `db:"amount"`
	FeePercent        decimal.Decimal `db:"fee_percent"`
	FeeAmount         *money.Money    `db:"fee_amount"`
	CreatorAmount     *money.Money    `db:"creator_amount"`
	Status            EscrowStatus    `db:"status"`
	ClientFulfilled   bool            `db:"client_fulfilled"`
	CreativeFulfilled bool            `db:"creative_fulfilled"`
	ReleasedAt        *time.Time      `db:"released_at"`
	CreatedAt         time.Time       `db:"created_at"`
	UpdatedAt         time.Time       `db:"updated_at"`
}

// NewEscrow returns an unfunded escrow bound to the order's participants.
func NewEscrow(escrowID string, order *Order, now time.Time) *Escrow {
	return &Escrow{
		EscrowID:   escrowID,
		OrderID:    order.OrderID,
		BuyerID:    order.BuyerID,
		CreativeID: order.CreativeID,
		Amount:     money.Zero(),
		FeePercent: decimal.Zero,
		Status:     EscrowPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// Fund snapshots the amount and fee percent and moves PENDING -> FUNDED.
// Funding an already funded escrow changes nothing and returns false.
func (e *Escrow) Fund(amount money.Money, feePercent decimal.Decimal, now time.Time) (bool, error) {
	switch e.Status {
	case EscrowPending:
	case EscrowFunded:
		return false, nil
	default:
		return false, transitionError("escrow", string(e.Status), string(EscrowFunded))
	}
	if !amount.IsPositive() {
		return false, ErrInvalidAmount
	}

	e.Amount = amount
	e.FeePercent = feePercent
	e.Status = EscrowFunded
	e.ClientFulfilled = false
	e.CreativeFulfilled = false
	e.UpdatedAt = now
	return true, nil
}

// MarkClientFulfilled sets the buyer's flag. Flags never go back to false and
// are frozen once the escrow is closed. Returns whether the flag changed.
func (e *Escrow) MarkClientFulfilled(now time.Time) bool {
	if e.ClientFulfilled || e.Closed() {
		return false
	}
	e.ClientFulfilled = true
	e.UpdatedAt = now
	return true
}

// MarkCreativeFulfilled sets the creative's flag, see MarkClientFulfilled.
func (e *Escrow) MarkCreativeFulfilled(now time.Time) bool {
	if e.CreativeFulfilled || e.Closed() {
		return false
	}
	e.CreativeFulfilled = true
	e.UpdatedAt = now
	return true
}

func (e *Escrow) Closed() bool {
	return e.Status == EscrowReleased || e.Status == EscrowRefunded
}

func (e *Escrow) CanRelease() bool {
	return e.Status == EscrowFunded && e.ClientFulfilled && e.CreativeFulfilled
}

// Release splits the amount and closes the escrow. The creator amount is the
// remainder after the rounded fee, so the two always add up to Amount.
// The caller credits the creator wallet in the same transaction.
func (e *Escrow) Release(now time.Time) bool {
	if !e.CanRelease() {
		return false
	}

	fee := e.Amount.Percent(e.FeePercent)
	creator := e.Amount.Sub(fee)
	releasedAt := now

	e.FeeAmount = &fee
	e.CreatorAmount = &creator
	e.Status = EscrowReleased
	e.ReleasedAt = &releasedAt
	e.UpdatedAt = now
	return true
}

// Refund returns a funded escrow to the buyer; the money leaves through the
// payment provider, not through a wallet.
func (e *Escrow) Refund(now time.Time) error {
	if e.Status != EscrowFunded {
		return transitionError("escrow", string(e.Status), string(EscrowRefunded))
	}
	e.Status = EscrowRefunded
	e.UpdatedAt = now
	return nil
}

func (e *Escrow) IsParticipant(userID string) bool {
	return userID != "" && (e.BuyerID == userID || e.CreativeID == userID)
}
