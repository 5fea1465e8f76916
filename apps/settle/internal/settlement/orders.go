package settlement

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"settle/apps/settle/internal/events"
	"settle/apps/settle/internal/model"
)

// CreateOrder prices an order for the buyer from the catalog listing and the
// selected extras.
func (s *Service) CreateOrder(ctx context.Context, buyer model.Actor, serviceID string, extraIDs []string) (*model.Order, error) {
	if buyer.UserID == "" {
		return nil, fmt.Errorf("%w: anonymous buyer", model.ErrPermission)
	}

	listing, err := s.catalog.GetListing(ctx, serviceID)
	if err != nil {
		return nil, fmt.Errorf("failed to get listing %s: %w", serviceID, err)
	}
	if listing.OwnerID == buyer.UserID {
		return nil, fmt.Errorf("%w: creative cannot order own service", model.ErrPermission)
	}

	order, err := model.NewOrder(s.newID(), *listing, buyer.UserID, extraIDs, s.now())
	if err != nil {
		return nil, err
	}

	err = s.store.InTx(ctx, func(tx Tx) error {
		if err := tx.InsertOrder(ctx, order); err != nil {
			return err
		}
		return s.emit(ctx, tx, "order", order.OrderID, events.OrderCreated, events.NewOrderPayload(order))
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Created order",
		zap.String("order_id", order.OrderID),
		zap.String("service_id", order.ServiceID),
		zap.String("buyer_id", order.BuyerID),
		zap.String("total_price", order.TotalPrice.String()))
	return order, nil
}

// GetOrder returns the order to its buyer, its creative or staff.
func (s *Service) GetOrder(ctx context.Context, actor model.Actor, orderID string) (*model.Order, error) {
	order, err := s.store.FindOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !actor.IsStaff() && !order.IsParticipant(actor.UserID) {
		return nil, fmt.Errorf("%w: order %s", model.ErrNotFound, orderID)
	}
	return order, nil
}
