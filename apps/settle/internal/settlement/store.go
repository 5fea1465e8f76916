package settlement

import (
	"context"
	"time"

	"settle/apps/settle/internal/model"
)

// Store runs units of work. Everything fn does through tx commits together
// or not at all; Lock* reads hold the row until the unit ends, so two
// units touching the same escrow, payment key or wallet run one after the
// other.
type Store interface {
	InTx(ctx context.Context, fn func(tx Tx) error) error

	FindOrder(ctx context.Context, orderID string) (*model.Order, error)
	FindEscrow(ctx context.Context, escrowID string) (*model.Escrow, error)
	FindEscrowByOrder(ctx context.Context, orderID string) (*model.Escrow, error)
	ListEscrows(ctx context.Context, userID string) ([]model.Escrow, error)
	ListAllEscrows(ctx context.Context) ([]model.Escrow, error)
	ListPayments(ctx context.Context, orderID string) ([]model.PaymentTransaction, error)
	FindWallet(ctx context.Context, userID string) (*model.CreativeWallet, error)
	ListWithdrawals(ctx context.Context, userID string) ([]model.WithdrawalRequest, error)
}

// Tx is the transactional view handed to Store.InTx. Lock* methods return
// model.ErrNotFound (wrapped) when the row does not exist.
type Tx interface {
	InsertOrder(ctx context.Context, order *model.Order) error
	LockOrder(ctx context.Context, orderID string) (*model.Order, error)
	UpdateOrderStatus(ctx context.Context, order *model.Order) error

	// FindOrCreatePayment returns the row keyed by (Provider, ProviderID),
	// inserting candidate when absent; created tells which happened.
	FindOrCreatePayment(ctx context.Context, candidate *model.PaymentTransaction) (payment *model.PaymentTransaction, created bool, err error)
	UpdatePaymentStatus(ctx context.Context, payment *model.PaymentTransaction) error

	// FindOrCreateEscrow returns the escrow of the order, inserting candidate
	// when the order has none yet.
	FindOrCreateEscrow(ctx context.Context, candidate *model.Escrow) (escrow *model.Escrow, created bool, err error)
	LockEscrow(ctx context.Context, escrowID string) (*model.Escrow, error)
	SaveEscrow(ctx context.Context, escrow *model.Escrow) error

	// FindOrCreateWallet materialises a zero wallet stamped now on first access.
	FindOrCreateWallet(ctx context.Context, userID string, now time.Time) (wallet *model.CreativeWallet, created bool, err error)
	SaveWallet(ctx context.Context, wallet *model.CreativeWallet) error

	InsertWithdrawal(ctx context.Context, request *model.WithdrawalRequest) error
	LockWithdrawal(ctx context.Context, id string) (*model.WithdrawalRequest, error)
	SaveWithdrawal(ctx context.Context, request *model.WithdrawalRequest) error

	StoreOutboxEvent(ctx context.Context, event model.OutboxEvent) error
}
