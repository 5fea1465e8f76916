package settlement

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"settle/apps/settle/internal/events"
	"settle/apps/settle/internal/model"
	"settle/apps/settle/internal/money"
)

// WalletForUser returns the user's wallet, creating an empty one on first
// access.
func (s *Service) WalletForUser(ctx context.Context, userID string) (*model.CreativeWallet, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: anonymous wallet owner", model.ErrPermission)
	}

	var wallet *model.CreativeWallet
	var created bool
	err := s.store.InTx(ctx, func(tx Tx) error {
		var err error
		wallet, created, err = tx.FindOrCreateWallet(ctx, userID, s.now())
		return err
	})
	if err != nil {
		return nil, err
	}

	if created {
		s.logger.Info("Created wallet", zap.String("user_id", userID))
	}
	return wallet, nil
}

// RequestWithdrawal files a request against the available balance. Funds are
// not reserved until approval.
func (s *Service) RequestWithdrawal(ctx context.Context, actor model.Actor, amount money.Money) (*model.WithdrawalRequest, error) {
	if actor.UserID == "" {
		return nil, fmt.Errorf("%w: anonymous withdrawal", model.ErrPermission)
	}

	var request *model.WithdrawalRequest
	err := s.store.InTx(ctx, func(tx Tx) error {
		wallet, _, err := tx.FindOrCreateWallet(ctx, actor.UserID, s.now())
		if err != nil {
			return err
		}

		request, err = model.NewWithdrawal(s.newID(), wallet, amount, s.now())
		if err != nil {
			return err
		}
		if err := tx.InsertWithdrawal(ctx, request); err != nil {
			return err
		}
		return s.emit(ctx, tx, "withdrawal", request.ID, events.WithdrawalRequested, events.NewWithdrawalPayload(request))
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Requested withdrawal",
		zap.String("withdrawal_id", request.ID),
		zap.String("user_id", request.UserID),
		zap.String("amount", request.Amount.String()))
	return request, nil
}

// ApproveWithdrawal re-checks the balance under the wallet lock and either
// processes the request or rejects it without a debit. Staff only.
func (s *Service) ApproveWithdrawal(ctx context.Context, actor model.Actor, withdrawalID string) (*model.WithdrawalRequest, error) {
	if !actor.IsStaff() {
		return nil, fmt.Errorf("%w: withdrawal approval is staff only", model.ErrPermission)
	}

	var request *model.WithdrawalRequest
	var debited bool
	err := s.store.InTx(ctx, func(tx Tx) error {
		var err error
		request, err = tx.LockWithdrawal(ctx, withdrawalID)
		if err != nil {
			return err
		}
		wallet, _, err := tx.FindOrCreateWallet(ctx, request.UserID, s.now())
		if err != nil {
			return err
		}

		debited, err = request.Approve(wallet, s.now())
		if err != nil {
			return err
		}
		if debited {
			if err := tx.SaveWallet(ctx, wallet); err != nil {
				return err
			}
		}
		if err := tx.SaveWithdrawal(ctx, request); err != nil {
			return err
		}

		eventType := events.WithdrawalRejected
		if debited {
			eventType = events.WithdrawalProcessed
		}
		return s.emit(ctx, tx, "withdrawal", request.ID, eventType, events.NewWithdrawalPayload(request))
	})
	if err != nil {
		return nil, err
	}

	if debited {
		s.logger.Info("Processed withdrawal",
			zap.String("withdrawal_id", request.ID),
			zap.String("user_id", request.UserID),
			zap.String("amount", request.Amount.String()))
	} else {
		s.logger.Warn("Rejected withdrawal on approval, insufficient balance",
			zap.String("withdrawal_id", request.ID),
			zap.String("user_id", request.UserID),
			zap.String("amount", request.Amount.String()))
	}
	return request, nil
}

// RejectWithdrawal closes a request without touching the wallet. Staff only.
func (s *Service) RejectWithdrawal(ctx context.Context, actor model.Actor, withdrawalID string) (*model.WithdrawalRequest, error) {
	if !actor.IsStaff() {
		return nil, fmt.Errorf("%w: withdrawal rejection is staff only", model.ErrPermission)
	}

	var request *model.WithdrawalRequest
	err := s.store.InTx(ctx, func(tx Tx) error {
		var err error
		request, err = tx.LockWithdrawal(ctx, withdrawalID)
		if err != nil {
			return err
		}
		if err := request.Reject(s.now()); err != nil {
			return err
		}
		if err := tx.SaveWithdrawal(ctx, request); err != nil {
			return err
		}
		return s.emit(ctx, tx, "withdrawal", request.ID, events.WithdrawalRejected, events.NewWithdrawalPayload(request))
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Rejected withdrawal",
		zap.String("withdrawal_id", request.ID),
		zap.String("actor_id", actor.UserID))
	return request, nil
}

// ListWithdrawals returns the user's requests, newest first.
func (s *Service) ListWithdrawals(ctx context.Context, userID string) ([]model.WithdrawalRequest, error) {
	return s.store.ListWithdrawals(ctx, userID)
}
