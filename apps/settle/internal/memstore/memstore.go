// Package memstore is an in-process settlement.Store. All units of work run
// behind one mutex on a private copy of the state that replaces the shared
// state only when the unit succeeds.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"settle/apps/settle/internal/model"
	"settle/apps/settle/internal/settlement"
)

type state struct {
	orders         map[string]model.Order
	payments       map[string]model.PaymentTransaction
	paymentsByKey  map[string]string
	escrows        map[string]model.Escrow
	escrowsByOrder map[string]string
	wallets        map[string]model.CreativeWallet
	withdrawals    map[string]model.WithdrawalRequest
	outbox         []model.OutboxEvent
}

func newState() *state {
	return &state{
		orders:         make(map[string]model.Order),
		payments:       make(map[string]model.PaymentTransaction),
		paymentsByKey:  make(map[string]string),
		escrows:        make(map[string]model.Escrow),
		escrowsByOrder: make(map[string]string),
		wallets:        make(map[string]model.CreativeWallet),
		withdrawals:    make(map[string]model.WithdrawalRequest),
	}
}

func (s *state) clone() *state {
	c := newState()
	for k, v := range s.orders {
		c.orders[k] = v
	}
	for k, v := range s.payments {
		c.payments[k] = v
	}
	for k, v := range s.paymentsByKey {
		c.paymentsByKey[k] = v
	}
	for k, v := range s.escrows {
		c.escrows[k] = v
	}
	for k, v := range s.escrowsByOrder {
		c.escrowsByOrder[k] = v
	}
	for k, v := range s.wallets {
		c.wallets[k] = v
	}
	for k, v := range s.withdrawals {
		c.withdrawals[k] = v
	}
	c.outbox = append([]model.OutboxEvent(nil), s.outbox...)
	return c
}

type Store struct {
	mu    sync.RWMutex
	state *state
}

func New() *Store {
	return &Store{state: newState()}
}

var _ settlement.Store = (*Store)(nil)

func (s *Store) InTx(ctx context.Context, fn func(tx settlement.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	work := s.state.clone()
	if err := fn(&memTx{state: work}); err != nil {
		return err
	}
	s.state = work
	return nil
}

func (s *Store) FindOrder(_ context.Context, orderID string) (*model.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.order(orderID)
}

func (s *Store) FindEscrow(_ context.Context, escrowID string) (*model.Escrow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.escrow(escrowID)
}

func (s *Store) FindEscrowByOrder(_ context.Context, orderID string) (*model.Escrow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	escrowID, ok := s.state.escrowsByOrder[orderID]
	if !ok {
		return nil, fmt.Errorf("%w: escrow for order %s", model.ErrNotFound, orderID)
	}
	return s.state.escrow(escrowID)
}

func (s *Store) ListEscrows(_ context.Context, userID string) ([]model.Escrow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var escrows []model.Escrow
	for _, escrow := range s.state.escrows {
		if escrow.IsParticipant(userID) {
			escrows = append(escrows, escrow)
		}
	}
	sortEscrows(escrows)
	return escrows, nil
}

func (s *Store) ListAllEscrows(_ context.Context) ([]model.Escrow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	escrows := make([]model.Escrow, 0, len(s.state.escrows))
	for _, escrow := range s.state.escrows {
		escrows = append(escrows, escrow)
	}
	sortEscrows(escrows)
	return escrows, nil
}

func (s *Store) ListPayments(_ context.Context, orderID string) ([]model.PaymentTransaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var payments []model.PaymentTransaction
	for _, payment := range s.state.payments {
		if payment.OrderID == orderID {
			payments = append(payments, payment)
		}
	}
	sort.Slice(payments, func(i, j int) bool {
		if payments[i].CreatedAt.Equal(payments[j].CreatedAt) {
			return payments[i].ID < payments[j].ID
		}
		return payments[i].CreatedAt.Before(payments[j].CreatedAt)
	})
	return payments, nil
}

func (s *Store) FindWallet(_ context.Context, userID string) (*model.CreativeWallet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	wallet, ok := s.state.wallets[userID]
	if !ok {
		return nil, fmt.Errorf("%w: wallet %s", model.ErrNotFound, userID)
	}
	return &wallet, nil
}

func (s *Store) ListWithdrawals(_ context.Context, userID string) ([]model.WithdrawalRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var requests []model.WithdrawalRequest
	for _, request := range s.state.withdrawals {
		if request.UserID == userID {
			requests = append(requests, request)
		}
	}
	sort.Slice(requests, func(i, j int) bool {
		if requests[i].CreatedAt.Equal(requests[j].CreatedAt) {
			return requests[i].ID > requests[j].ID
		}
		return requests[i].CreatedAt.After(requests[j].CreatedAt)
	})
	return requests, nil
}

func sortEscrows(escrows []model.Escrow) {
	sort.Slice(escrows, func(i, j int) bool {
		if escrows[i].CreatedAt.Equal(escrows[j].CreatedAt) {
			return escrows[i].EscrowID > escrows[j].EscrowID
		}
		return escrows[i].CreatedAt.After(escrows[j].CreatedAt)
	})
}

func (s *state) order(orderID string) (*model.Order, error) {
	order, ok := s.orders[orderID]
	if !ok {
		return nil, fmt.Errorf("%w: order %s", model.ErrNotFound, orderID)
	}
	return &order, nil
}

func (s *state) escrow(escrowID string) (*model.Escrow, error) {
	escrow, ok := s.escrows[escrowID]
	if !ok {
		return nil, fmt.Errorf("%w: escrow %s", model.ErrNotFound, escrowID)
	}
	return &escrow, nil
}
