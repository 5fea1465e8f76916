package api

import (
	"time"

	"settle/apps/settle/internal/model"
	"settle/apps/settle/internal/money"
	"settle/apps/settle/internal/settlement"
)

// CreateOrderRequest represents the request body for placing an order
type CreateOrderRequest struct {
	ServiceID string   `json:"service_id"`
	Extras    []string `json:"extras"`
}

// PaymentIntentRequest represents the request body for starting a checkout
type PaymentIntentRequest struct {
	OrderID string `json:"order_id"`
}

// WithdrawalRequestBody represents the request body for a payout request
type WithdrawalRequestBody struct {
	Amount money.Money `json:"amount"`
}

type OrderExtraResponse struct {
	ExtraID string      `json:"extra_id"`
	Title   string      `json:"title"`
	Price   money.Money `json:"price"`
}

// OrderResponse represents the API response for order information
type OrderResponse struct {
	OrderID    string               `json:"order_id"`
	ServiceID  string               `json:"service_id"`
	BuyerID    string               `json:"buyer_id"`
	CreativeID string               `json:"creative_id"`
	Category   string               `json:"category,omitempty"`
	TotalPrice money.Money          `json:"total_price"`
	Status     string               `json:"status"`
	Extras     []OrderExtraResponse `json:"extras"`
	CreatedAt  time.Time            `json:"created_at"`
	UpdatedAt  time.Time            `json:"updated_at"`
}

type PaymentResponse struct {
	ID         string      `json:"id"`
	OrderID    string      `json:"order_id"`
	Provider   string      `json:"provider"`
	ProviderID string      `json:"provider_id"`
	Amount     money.Money `json:"amount"`
	Status     string      `json:"status"`
	CreatedAt  time.Time   `json:"created_at"`
	UpdatedAt  time.Time   `json:"updated_at"`
}

// IngestResponse reports what a payment event did
type IngestResponse struct {
	Payment         *PaymentResponse `json:"payment,omitempty"`
	Escrow          *EscrowResponse  `json:"escrow,omitempty"`
	Created         bool             `json:"created"`
	Duplicate       bool             `json:"duplicate"`
	Funded          bool             `json:"funded"`
	AmountMismatch  string           `json:"amount_mismatch,omitempty"`
	OrderNotPayable bool             `json:"order_not_payable,omitempty"`
}

type EscrowResponse struct {
	EscrowID          string       `json:"escrow_id"`
	OrderID           string       `json:"order_id"`
	BuyerID           string       `json:"buyer_id"`
	CreativeID        string       `json:"creative_id"`
	Amount            money.Money  `json:"amount"`
	FeePercent        string       `json:"fee_percent"`
	FeeAmount         *money.Money `json:"fee_amount"`
	CreatorAmount     *money.Money `json:"creator_amount"`
	Status            string       `json:"status"`
	ClientFulfilled   bool         `json:"client_fulfilled"`
	CreativeFulfilled bool         `json:"creative_fulfilled"`
	ReleasedAt        *time.Time   `json:"released_at"`
	CreatedAt         time.Time    `json:"created_at"`
	UpdatedAt         time.Time    `json:"updated_at"`
}

// FulfillResponse is the escrow after a fulfillment call
type FulfillResponse struct {
	Escrow   EscrowResponse `json:"escrow"`
	Released bool           `json:"released"`
}

type WalletResponse struct {
	UserID           string      `json:"user_id"`
	AvailableBalance money.Money `json:"available_balance"`
	PendingBalance   money.Money `json:"pending_balance"`
	UpdatedAt        time.Time   `json:"updated_at"`
}

type WithdrawalResponse struct {
	ID          string      `json:"id"`
	UserID      string      `json:"user_id"`
	Amount      money.Money `json:"amount"`
	Status      string      `json:"status"`
	CreatedAt   time.Time   `json:"created_at"`
	ProcessedAt *time.Time  `json:"processed_at"`
}

// ErrorResponse represents the API error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func toOrderResponse(o *model.Order) OrderResponse {
	extras := make([]OrderExtraResponse, 0, len(o.Extras))
	for _, extra := range o.Extras {
		extras = append(extras, OrderExtraResponse{ExtraID: extra.ExtraID, Title: extra.Title, Price: extra.Price})
	}
	return OrderResponse{
		OrderID:    o.OrderID,
		ServiceID:  o.ServiceID,
		BuyerID:    o.BuyerID,
		CreativeID: o.CreativeID,
		Category:   o.Category,
		TotalPrice: o.TotalPrice,
		Status:     string(o.Status),
		Extras:     extras,
		CreatedAt:  o.CreatedAt,
		UpdatedAt:  o.UpdatedAt,
	}
}

func toPaymentResponse(p *model.PaymentTransaction) PaymentResponse {
	return PaymentResponse{
		ID:         p.ID,
		OrderID:    p.OrderID,
		Provider:   p.Provider,
		ProviderID: p.ProviderID,
		Amount:     p.Amount,
		Status:     string(p.Status),
		CreatedAt:  p.CreatedAt,
		UpdatedAt:  p.UpdatedAt,
	}
}

func toEscrowResponse(e *model.Escrow) EscrowResponse {
	return EscrowResponse{
		EscrowID:          e.EscrowID,
		OrderID:           e.OrderID,
		BuyerID:           e.BuyerID,
		CreativeID:        e.CreativeID,
		Amount:            e.Amount,
		FeePercent:        e.FeePercent.String(),
		FeeAmount:         e.FeeAmount,
		CreatorAmount:     e.CreatorAmount,
		Status:            string(e.Status),
		ClientFulfilled:   e.ClientFulfilled,
		CreativeFulfilled: e.CreativeFulfilled,
		ReleasedAt:        e.ReleasedAt,
		CreatedAt:         e.CreatedAt,
		UpdatedAt:         e.UpdatedAt,
	}
}

func toIngestResponse(r *settlement.IngestResult) IngestResponse {
	response := IngestResponse{
		Created:         r.Created,
		Duplicate:       r.Duplicate,
		Funded:          r.Funded,
		OrderNotPayable: r.OrderNotPayable,
	}
	if r.Payment != nil {
		payment := toPaymentResponse(r.Payment)
		response.Payment = &payment
	}
	if r.Escrow != nil {
		escrow := toEscrowResponse(r.Escrow)
		response.Escrow = &escrow
	}
	if r.Mismatch != nil {
		response.AmountMismatch = r.Mismatch.Error()
	}
	return response
}

func toWalletResponse(w *model.CreativeWallet) WalletResponse {
	return WalletResponse{
		UserID:           w.UserID,
		AvailableBalance: w.AvailableBalance,
		PendingBalance:   w.PendingBalance,
		UpdatedAt:        w.UpdatedAt,
	}
}

func toWithdrawalResponse(w *model.WithdrawalRequest) WithdrawalResponse {
	return WithdrawalResponse{
		ID:          w.ID,
		UserID:      w.UserID,
		Amount:      w.Amount,
		Status:      string(w.Status),
		CreatedAt:   w.CreatedAt,
		ProcessedAt: w.ProcessedAt,
	}
}
