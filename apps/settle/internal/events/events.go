package events

import (
	"encoding/json"
	"time"

	"settle/apps/settle/internal/model"
	"settle/apps/settle/internal/money"
)

const (
	OrderCreated        = "order.created"
	PaymentSucceeded    = "payment.succeeded"
	PaymentFailed       = "payment.failed"
	EscrowFunded        = "escrow.funded"
	EscrowReleased      = "escrow.released"
	EscrowRefunded      = "escrow.refunded"
	WithdrawalRequested = "withdrawal.requested"
	WithdrawalProcessed = "withdrawal.processed"
	WithdrawalRejected  = "withdrawal.rejected"
)

// PaymentEvent is a provider confirmation handed to ingestion, either from
// the webhook adapter or from the payments topic.
type PaymentEvent struct {
	Provider   string      `json:"provider"`
	ProviderID string      `json:"provider_id"`
	OrderID    string      `json:"order_id"`
	Amount     money.Money `json:"amount"`
	Status     string      `json:"status"`
	OccurredAt time.Time   `json:"occurred_at"`
}

// SettlementEvent is the message published for every outbox row
type SettlementEvent struct {
	EventID     string          `json:"event_id"`
	EventType   string          `json:"event_type"`
	Aggregate   string          `json:"aggregate"`
	AggregateID string          `json:"aggregate_id"`
	Payload     json.RawMessage `json:"payload"`
	OccurredAt  time.Time       `json:"occurred_at"`
	Timestamp   time.Time       `json:"timestamp"`
}

type OrderPayload struct {
	OrderID    string      `json:"order_id"`
	ServiceID  string      `json:"service_id"`
	BuyerID    string      `json:"buyer_id"`
	CreativeID string      `json:"creative_id"`
	TotalPrice money.Money `json:"total_price"`
	Status     string      `json:"status"`
}

type PaymentPayload struct {
	PaymentID  string      `json:"payment_id"`
	OrderID    string      `json:"order_id"`
	Provider   string      `json:"provider"`
	ProviderID string      `json:"provider_id"`
	Amount     money.Money `json:"amount"`
	Status     string      `json:"status"`
}

type EscrowPayload struct {
	EscrowID      string       `json:"escrow_id"`
	OrderID       string       `json:"order_id"`
	CreativeID    string       `json:"creative_id"`
	Amount        money.Money  `json:"amount"`
	FeePercent    string       `json:"fee_percent"`
	FeeAmount     *money.Money `json:"fee_amount,omitempty"`
	CreatorAmount *money.Money `json:"creator_amount,omitempty"`
	Status        string       `json:"status"`
	ReleasedAt    *time.Time   `json:"released_at,omitempty"`
}

type WithdrawalPayload struct {
	WithdrawalID string      `json:"withdrawal_id"`
	UserID       string      `json:"user_id"`
	Amount       money.Money `json:"amount"`
	Status       string      `json:"status"`
}

func NewOrderPayload(o *model.Order) OrderPayload {
	return OrderPayload{
		OrderID:    o.OrderID,
		ServiceID:  o.ServiceID,
		BuyerID:    o.BuyerID,
		CreativeID: o.CreativeID,
		TotalPrice: o.TotalPrice,
		Status:     string(o.Status),
	}
}

func NewPaymentPayload(p *model.PaymentTransaction) PaymentPayload {
	return PaymentPayload{
		PaymentID:  p.ID,
		OrderID:    p.OrderID,
		Provider:   p.Provider,
		ProviderID: p.ProviderID,
		Amount:     p.Amount,
		Status:     string(p.Status),
	}
}

func NewEscrowPayload(e *model.Escrow) EscrowPayload {
	return EscrowPayload{
		EscrowID:      e.EscrowID,
		OrderID:       e.OrderID,
		CreativeID:    e.CreativeID,
		Amount:        e.Amount,
		FeePercent:    e.FeePercent.String(),
		FeeAmount:     e.FeeAmount,
		CreatorAmount: e.CreatorAmount,
		Status:        string(e.Status),
		ReleasedAt:    e.ReleasedAt,
	}
}

func NewWithdrawalPayload(w *model.WithdrawalRequest) WithdrawalPayload {
	return WithdrawalPayload{
		WithdrawalID: w.ID,
		UserID:       w.UserID,
		Amount:       w.Amount,
		Status:       string(w.Status),
	}
}
