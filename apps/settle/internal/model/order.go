package model

import (
	"fmt"
	"time"

	"settle/apps/settle/internal/money"
)

type OrderStatus string

const (
	OrderCreated   OrderStatus = "created"
	OrderPaid      OrderStatus = "paid"
	OrderCancelled OrderStatus = "cancelled"
	OrderCompleted OrderStatus = "completed"
)

// Listing is the catalog's view of a priced service at checkout time
type Listing struct {
	ServiceID string      `json:"id"`
	OwnerID   string      `json:"owner_id"`
	Category  string      `json:"category"`
	Title     string      `json:"title"`
	Price     money.Money `json:"price"`
	Extras    []Extra     `json:"extras"`
}

type Extra struct {
	ID    string      `json:"id"`
	Title string      `json:"title"`
	Price money.Money `json:"price"`
}

type Order struct {
	OrderID    string      `db:"order_id"`
	ServiceID  string      `db:"service_id"`
	CreativeID string      `db:"creative_id"`
	Category   string      `db:"category"`
	BuyerID    string      `db:"buyer_id"`
	TotalPrice money.Money `db:"total_price"`
	Status     OrderStatus `db:"status"`
	Extras     []OrderExtra
	CreatedAt  time.Time `db:"created_at"`
	UpdatedAt  time.Time `db:"updated_at"`
}

// OrderExtra is the price of an extra as it was when the order was placed
type OrderExtra struct {
	OrderID string      `db:"order_id"`
	ExtraID string      `db:"extra_id"`
	Title   string      `db:"title"`
	Price   money.Money `db:"price"`
}

// NewOrder prices an order from a listing snapshot. Later listing changes
// never reach an existing order.
func NewOrder(orderID string, listing Listing, buyerID string, extraIDs []string, now time.Time) (*Order, error) {
	if !listing.Price.IsPositive() {
		return nil, fmt.Errorf("%w: service %s has price %s", ErrInvalidAmount, listing.ServiceID, listing.Price)
	}

	available := make(map[string]Extra, len(listing.Extras))
	for _, extra := range listing.Extras {
		available[extra.ID] = extra
	}

	order := &Order{
		OrderID:    orderID,
		ServiceID:  listing.ServiceID,
		CreativeID: listing.OwnerID,
		Category:   listing.Category,
		BuyerID:    buyerID,
		TotalPrice: listing.Price,
		Status:     OrderCreated,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	seen := make(map[string]bool, len(extraIDs))
	for _, extraID := range extraIDs {
		extra, ok := available[extraID]
		if !ok {
			return nil, fmt.Errorf("%w: extra %s, service %s", ErrInvalidExtra, extraID, listing.ServiceID)
		}
		if seen[extraID] {
			return nil, fmt.Errorf("%w: extra %s selected twice", ErrInvalidExtra, extraID)
		}
		if extra.Price.IsNegative() {
			return nil, fmt.Errorf("%w: extra %s has price %s", ErrInvalidAmount, extraID, extra.Price)
		}
		seen[extraID] = true

		order.Extras = append(order.Extras, OrderExtra{
			OrderID: orderID,
			ExtraID: extra.ID,
			Title:   extra.Title,
			Price:   extra.Price,
		})
		order.TotalPrice = order.TotalPrice.Add(extra.Price)
	}

	return order, nil
}

// MarkPaid is the only way into PAID.
func (o *Order) MarkPaid(now time.Time) error {
	if o.Status != OrderCreated {
		return transitionError("order", string(o.Status), string(OrderPaid))
	}
	o.Status = OrderPaid
	o.UpdatedAt = now
	return nil
}

// Complete follows an escrow release.
func (o *Order) Complete(now time.Time) error {
	if o.Status != OrderPaid {
		return transitionError("order", string(o.Status), string(OrderCompleted))
	}
	o.Status = OrderCompleted
	o.UpdatedAt = now
	return nil
}

// Cancel follows an escrow refund.
func (o *Order) Cancel(now time.Time) error {
	if o.Status != OrderPaid {
		return transitionError("order", string(o.Status), string(OrderCancelled))
	}
	o.Status = OrderCancelled
	o.UpdatedAt = now
	return nil
}

// IsParticipant reports whether the user is the buyer or the creative
func (o *Order) IsParticipant(userID string) bool {
	return userID != "" && (o.BuyerID == userID || o.CreativeID == userID)
}
