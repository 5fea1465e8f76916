package settlement

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"settle/apps/settle/internal/events"
	"settle/apps/settle/internal/model"
)

type side int

const (
	clientSide side = iota
	creativeSide
)

// FulfillResult is the escrow after a fulfillment call and whether that call
// released it.
type FulfillResult struct {
	Escrow   *model.Escrow
	Released bool
}

// ClientFulfill records the buyer's confirmation and attempts release.
func (s *Service) ClientFulfill(ctx context.Context, actor model.Actor, escrowID string) (*FulfillResult, error) {
	return s.fulfill(ctx, actor, escrowID, clientSide)
}

// CreativeFulfill records the creative's confirmation and attempts release.
func (s *Service) CreativeFulfill(ctx context.Context, actor model.Actor, escrowID string) (*FulfillResult, error) {
	return s.fulfill(ctx, actor, escrowID, creativeSide)
}

func (s *Service) fulfill(ctx context.Context, actor model.Actor, escrowID string, by side) (*FulfillResult, error) {
	result := &FulfillResult{}
	err := s.withLockedEscrow(ctx, escrowID, func(tx Tx, order *model.Order, escrow *model.Escrow, now time.Time) error {
		var changed bool
		switch by {
		case clientSide:
			if escrow.BuyerID != actor.UserID && !actor.IsStaff() {
				return fmt.Errorf("%w: only the client can mark fulfillment", model.ErrPermission)
			}
			changed = escrow.MarkClientFulfilled(now)
		case creativeSide:
			if escrow.CreativeID != actor.UserID && !actor.IsStaff() {
				return fmt.Errorf("%w: only the creative can mark fulfillment", model.ErrPermission)
			}
			changed = escrow.MarkCreativeFulfilled(now)
		}

		released, err := s.release(ctx, tx, order, escrow, now)
		if err != nil {
			return err
		}
		if changed && !released {
			if err := tx.SaveEscrow(ctx, escrow); err != nil {
				return err
			}
		}

		result.Escrow = escrow
		result.Released = released
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Marked escrow fulfillment",
		zap.String("escrow_id", escrowID),
		zap.String("actor_id", actor.UserID),
		zap.Bool("client_fulfilled", result.Escrow.ClientFulfilled),
		zap.Bool("creative_fulfilled", result.Escrow.CreativeFulfilled),
		zap.Bool("released", result.Released))
	return result, nil
}

// MaybeRelease releases the escrow if it is funded and both sides confirmed.
// It returns true only for the call that performed the release.
func (s *Service) MaybeRelease(ctx context.Context, escrowID string) (bool, error) {
	var released bool
	err := s.withLockedEscrow(ctx, escrowID, func(tx Tx, order *model.Order, escrow *model.Escrow, now time.Time) error {
		var err error
		released, err = s.release(ctx, tx, order, escrow, now)
		return err
	})
	return released, err
}

// release must run with the order and escrow rows locked. The escrow status,
// not the flags, guarantees a single wallet credit.
func (s *Service) release(ctx context.Context, tx Tx, order *model.Order, escrow *model.Escrow, now time.Time) (bool, error) {
	if !escrow.Release(now) {
		return false, nil
	}

	wallet, _, err := tx.FindOrCreateWallet(ctx, escrow.CreativeID, now)
	if err != nil {
		return false, err
	}
	if escrow.CreatorAmount.IsPositive() {
		if err := wallet.Credit(*escrow.CreatorAmount, now); err != nil {
			return false, err
		}
		if err := tx.SaveWallet(ctx, wallet); err != nil {
			return false, err
		}
	}

	if err := order.Complete(now); err != nil {
		return false, fmt.Errorf("failed to complete order %s: %w", order.OrderID, err)
	}
	if err := tx.UpdateOrderStatus(ctx, order); err != nil {
		return false, err
	}
	if err := tx.SaveEscrow(ctx, escrow); err != nil {
		return false, err
	}
	if err := s.emit(ctx, tx, "escrow", escrow.EscrowID, events.EscrowReleased, events.NewEscrowPayload(escrow)); err != nil {
		return false, err
	}

	s.logger.Info("Released escrow",
		zap.String("escrow_id", escrow.EscrowID),
		zap.String("order_id", escrow.OrderID),
		zap.String("creative_id", escrow.CreativeID),
		zap.String("amount", escrow.Amount.String()),
		zap.String("fee_amount", escrow.FeeAmount.String()),
		zap.String("creator_amount", escrow.CreatorAmount.String()))
	return true, nil
}

// Refund returns a funded escrow to the buyer. Staff only.
func (s *Service) Refund(ctx context.Context, actor model.Actor, escrowID string) (*model.Escrow, error) {
	if !actor.IsStaff() {
		return nil, fmt.Errorf("%w: refunds are staff only", model.ErrPermission)
	}

	var refunded *model.Escrow
	err := s.withLockedEscrow(ctx, escrowID, func(tx Tx, order *model.Order, escrow *model.Escrow, now time.Time) error {
		if err := escrow.Refund(now); err != nil {
			return err
		}
		if err := order.Cancel(now); err != nil {
			return fmt.Errorf("failed to cancel order %s: %w", order.OrderID, err)
		}
		if err := tx.UpdateOrderStatus(ctx, order); err != nil {
			return err
		}
		if err := tx.SaveEscrow(ctx, escrow); err != nil {
			return err
		}
		refunded = escrow
		return s.emit(ctx, tx, "escrow", escrow.EscrowID, events.EscrowRefunded, events.NewEscrowPayload(escrow))
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Refunded escrow",
		zap.String("escrow_id", escrowID),
		zap.String("order_id", refunded.OrderID),
		zap.String("actor_id", actor.UserID))
	return refunded, nil
}

// GetEscrow returns the escrow to a participant or staff.
func (s *Service) GetEscrow(ctx context.Context, actor model.Actor, escrowID string) (*model.Escrow, error) {
	escrow, err := s.store.FindEscrow(ctx, escrowID)
	if err != nil {
		return nil, err
	}
	if !actor.IsStaff() && !escrow.IsParticipant(actor.UserID) {
		return nil, fmt.Errorf("%w: escrow %s", model.ErrNotFound, escrowID)
	}
	return escrow, nil
}

// EscrowForOrder returns the escrow funded for an order, with the same
// visibility as GetEscrow. Orders that were never paid have none.
func (s *Service) EscrowForOrder(ctx context.Context, actor model.Actor, orderID string) (*model.Escrow, error) {
	escrow, err := s.store.FindEscrowByOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !actor.IsStaff() && !escrow.IsParticipant(actor.UserID) {
		return nil, fmt.Errorf("%w: escrow for order %s", model.ErrNotFound, orderID)
	}
	return escrow, nil
}

// ListEscrows returns every escrow for staff and the caller's own otherwise.
func (s *Service) ListEscrows(ctx context.Context, actor model.Actor) ([]model.Escrow, error) {
	if actor.IsStaff() {
		return s.store.ListAllEscrows(ctx)
	}
	return s.store.ListEscrows(ctx, actor.UserID)
}

// withLockedEscrow locks the order before the escrow so every unit of work
// takes rows in the same order.
func (s *Service) withLockedEscrow(ctx context.Context, escrowID string, fn func(tx Tx, order *model.Order, escrow *model.Escrow, now time.Time) error) error {
	snapshot, err := s.store.FindEscrow(ctx, escrowID)
	if err != nil {
		return err
	}

	return s.store.InTx(ctx, func(tx Tx) error {
		order, err := tx.LockOrder(ctx, snapshot.OrderID)
		if err != nil {
			return err
		}
		escrow, err := tx.LockEscrow(ctx, escrowID)
		if err != nil {
			return err
		}
		return fn(tx, order, escrow, s.now())
	})
}
