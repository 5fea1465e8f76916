// Package settlement moves money between orders, escrows, wallets and
// withdrawal requests. Every mutating call is one Store.InTx unit; rows are
// taken in the sequence order, payment, escrow, withdrawal, wallet.
package settlement

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"settle/apps/settle/internal/model"
)

// Catalog supplies the priced listing at order creation. It is never
// consulted again for an existing order.
type Catalog interface {
	GetListing(ctx context.Context, serviceID string) (*model.Listing, error)
}

// FeePolicy returns the fee percent copied into an escrow when it is funded.
type FeePolicy interface {
	PercentFor(category string) decimal.Decimal
}

type Service struct {
	store   Store
	catalog Catalog
	fees    FeePolicy
	logger  *zap.Logger
	now     func() time.Time
	newID   func() string
}

type Option func(*Service)

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithIDGenerator replaces uuid.NewString.
func WithIDGenerator(newID func() string) Option {
	return func(s *Service) { s.newID = newID }
}

func NewService(store Store, catalog Catalog, fees FeePolicy, logger *zap.Logger, opts ...Option) *Service {
	s := &Service{
		store:   store,
		catalog: catalog,
		fees:    fees,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
		newID:   uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) emit(ctx context.Context, tx Tx, aggregate, aggregateID, eventType string, payload interface{}) error {
	blob, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal %s payload: %w", eventType, err)
	}

	return tx.StoreOutboxEvent(ctx, model.OutboxEvent{
		EventID:     s.newID(),
		Aggregate:   aggregate,
		AggregateID: aggregateID,
		EventType:   eventType,
		Status:      model.OutboxUnsent,
		Payload:     blob,
		CreatedAt:   s.now(),
	})
}
