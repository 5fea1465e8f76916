package settlement

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"settle/apps/settle/internal/events"
	"settle/apps/settle/internal/model"
)

// IngestResult describes what one ingestion call did. Duplicate deliveries
// come back with Duplicate set and no error.
type IngestResult struct {
	Payment   *model.PaymentTransaction
	Escrow    *model.Escrow
	Created   bool
	Duplicate bool
	Funded    bool

	// Mismatch is set when the provider amount differs from the order
	// total. The order total was used.
	Mismatch *model.AmountMismatchError

	// OrderNotPayable is set when a success arrived for an order that had
	// already left CREATED; the row is recorded but nothing is funded.
	OrderNotPayable bool
}

// IngestPayment applies one provider event at most once per
// (provider, provider_id). The first SUCCEEDED event pays the order and funds
// its escrow for the order total.
func (s *Service) IngestPayment(ctx context.Context, event events.PaymentEvent) (*IngestResult, error) {
	status := model.PaymentStatus(strings.ToLower(event.Status))
	if event.Provider == "" || event.ProviderID == "" || event.OrderID == "" || !status.Valid() {
		return nil, fmt.Errorf("%w: provider=%q provider_id=%q order=%q status=%q",
			model.ErrInvalidEvent, event.Provider, event.ProviderID, event.OrderID, event.Status)
	}

	result := &IngestResult{}
	err := s.store.InTx(ctx, func(tx Tx) error {
		*result = IngestResult{}
		now := s.now()

		order, err := tx.LockOrder(ctx, event.OrderID)
		if err != nil {
			return err
		}

		candidate := &model.PaymentTransaction{
			ID:         s.newID(),
			OrderID:    order.OrderID,
			Provider:   event.Provider,
			ProviderID: event.ProviderID,
			Amount:     event.Amount,
			Status:     status,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		payment, created, err := tx.FindOrCreatePayment(ctx, candidate)
		if err != nil {
			return err
		}
		result.Payment = payment
		result.Created = created

		if !created {
			if payment.OrderID != order.OrderID {
				s.logger.Warn("Payment event names a different order than the stored transaction",
					zap.String("provider", payment.Provider),
					zap.String("provider_id", payment.ProviderID),
					zap.String("stored_order_id", payment.OrderID),
					zap.String("event_order_id", order.OrderID))
				result.Duplicate = true
				return nil
			}
			if !payment.Advance(status, now) {
				result.Duplicate = true
				return nil
			}
			if err := tx.UpdatePaymentStatus(ctx, payment); err != nil {
				return err
			}
		}

		switch payment.Status {
		case model.PaymentSucceeded:
		case model.PaymentFailed:
			return s.emit(ctx, tx, "payment", payment.ID, events.PaymentFailed, events.NewPaymentPayload(payment))
		default:
			return nil
		}

		if !event.Amount.Equal(order.TotalPrice) {
			result.Mismatch = &model.AmountMismatchError{
				OrderID:  order.OrderID,
				Expected: order.TotalPrice,
				Received: event.Amount,
			}
		}

		if err := s.emit(ctx, tx, "payment", payment.ID, events.PaymentSucceeded, events.NewPaymentPayload(payment)); err != nil {
			return err
		}

		if err := order.MarkPaid(now); err != nil {
			if !errors.Is(err, model.ErrInvalidTransition) {
				return err
			}
			result.OrderNotPayable = true
			return nil
		}
		if err := tx.UpdateOrderStatus(ctx, order); err != nil {
			return err
		}

		escrow, _, err := tx.FindOrCreateEscrow(ctx, model.NewEscrow(s.newID(), order, now))
		if err != nil {
			return err
		}
		funded, err := escrow.Fund(order.TotalPrice, s.fees.PercentFor(order.Category), now)
		if err != nil {
			return fmt.Errorf("failed to fund escrow for order %s: %w", order.OrderID, err)
		}
		result.Escrow = escrow
		if !funded {
			return nil
		}
		result.Funded = true

		if err := tx.SaveEscrow(ctx, escrow); err != nil {
			return err
		}
		return s.emit(ctx, tx, "escrow", escrow.EscrowID, events.EscrowFunded, events.NewEscrowPayload(escrow))
	})
	if err != nil {
		return nil, err
	}

	fields := []zap.Field{
		zap.String("provider", event.Provider),
		zap.String("provider_id", event.ProviderID),
		zap.String("order_id", event.OrderID),
		zap.String("status", string(status)),
	}
	switch {
	case result.Duplicate:
		s.logger.Info("Ignored duplicate payment event", fields...)
	case result.Funded:
		s.logger.Info("Funded escrow from payment", append(fields,
			zap.String("escrow_id", result.Escrow.EscrowID),
			zap.String("amount", result.Escrow.Amount.String()))...)
	case result.OrderNotPayable:
		s.logger.Warn("Payment succeeded for an order that is no longer payable", fields...)
	default:
		s.logger.Info("Recorded payment event", fields...)
	}
	if result.Mismatch != nil {
		s.logger.Warn("Payment amount does not match order total",
			append(fields, zap.Error(result.Mismatch))...)
	}

	return result, nil
}

// RecordPaymentIntent stores the CREATED row of a provider call-out so the
// later confirmation finds it by provider id.
func (s *Service) RecordPaymentIntent(ctx context.Context, buyer model.Actor, orderID, provider, providerID string) (*model.PaymentTransaction, error) {
	if provider == "" || providerID == "" {
		return nil, fmt.Errorf("%w: missing provider reference", model.ErrInvalidEvent)
	}

	var payment *model.PaymentTransaction
	err := s.store.InTx(ctx, func(tx Tx) error {
		now := s.now()

		order, err := tx.LockOrder(ctx, orderID)
		if err != nil {
			return err
		}
		if order.BuyerID != buyer.UserID {
			return fmt.Errorf("%w: only the buyer may pay for order %s", model.ErrPermission, orderID)
		}
		if order.Status != model.OrderCreated {
			return fmt.Errorf("%w: order %s is %s", model.ErrInvalidTransition, orderID, order.Status)
		}

		payment, _, err = tx.FindOrCreatePayment(ctx, &model.PaymentTransaction{
			ID:         s.newID(),
			OrderID:    order.OrderID,
			Provider:   provider,
			ProviderID: providerID,
			Amount:     order.TotalPrice,
			Status:     model.PaymentCreated,
			CreatedAt:  now,
			UpdatedAt:  now,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Recorded payment intent",
		zap.String("order_id", orderID),
		zap.String("provider", provider),
		zap.String("provider_id", providerID))
	return payment, nil
}

// ListPayments returns the transaction trail of an order.
func (s *Service) ListPayments(ctx context.Context, actor model.Actor, orderID string) ([]model.PaymentTransaction, error) {
	if _, err := s.GetOrder(ctx, actor, orderID); err != nil {
		return nil, err
	}
	return s.store.ListPayments(ctx, orderID)
}
