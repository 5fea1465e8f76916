package repository

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"settle/apps/settle/internal/catalog"
	"settle/apps/settle/internal/events"
	"settle/apps/settle/internal/feepolicy"
	"settle/apps/settle/internal/model"
	"settle/apps/settle/internal/money"
	"settle/apps/settle/internal/settlement"
)

// openTestDB connects to SETTLE_TEST_DB_URL and migrates it. Tests use fresh
// uuids so they can share one database.
func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	dsn := os.Getenv("SETTLE_TEST_DB_URL")
	if dsn == "" {
		t.Skip("Skipping postgres test: SETTLE_TEST_DB_URL environment variable not set")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := InitMigration(db); err != nil {
		t.Fatalf("Failed to run migration: %v", err)
	}
	return db
}

func newPostgresService(t *testing.T, db *sql.DB, listing model.Listing) *settlement.Service {
	t.Helper()
	fees, err := feepolicy.NewRegistry(decimal.NewFromInt(33), nil)
	if err != nil {
		t.Fatalf("Failed to create fee registry: %v", err)
	}
	return settlement.NewService(NewSettlementRepository(db, zap.NewNop()), catalog.NewStatic(listing), fees, zap.NewNop())
}

func TestPostgresSettlementFlow(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	buyer := model.Actor{UserID: uuid.NewString(), Role: model.RoleClient}
	creative := model.Actor{UserID: uuid.NewString(), Role: model.RoleCreative}
	listing := model.Listing{
		ServiceID: uuid.NewString(),
		OwnerID:   creative.UserID,
		Category:  "design",
		Price:     money.MustParse("80.00"),
		Extras:    []model.Extra{{ID: "fast", Title: "24h", Price: money.MustParse("20.00")}},
	}
	service := newPostgresService(t, db, listing)

	order, err := service.CreateOrder(ctx, buyer, listing.ServiceID, []string{"fast"})
	if err != nil {
		t.Fatalf("CreateOrder failed: %v", err)
	}

	stored, err := NewSettlementRepository(db, zap.NewNop()).FindOrder(ctx, order.OrderID)
	if err != nil {
		t.Fatalf("FindOrder failed: %v", err)
	}
	if len(stored.Extras) != 1 || stored.TotalPrice.String() != "100.00" {
		t.Errorf("Expected one extra and total 100.00, got %+v", stored)
	}

	var funded int64
	var wg sync.WaitGroup
	providerID := "pi_" + uuid.NewString()
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := service.IngestPayment(ctx, events.PaymentEvent{
				Provider:   "stripe",
				ProviderID: providerID,
				OrderID:    order.OrderID,
				Amount:     order.TotalPrice,
				Status:     "succeeded",
			})
			if err != nil {
				t.Errorf("IngestPayment failed: %v", err)
				return
			}
			if result.Funded {
				atomic.AddInt64(&funded, 1)
			}
		}()
	}
	wg.Wait()
	if funded != 1 {
		t.Fatalf("Expected exactly one funding, got %d", funded)
	}

	escrow, err := NewSettlementRepository(db, zap.NewNop()).FindEscrowByOrder(ctx, order.OrderID)
	if err != nil {
		t.Fatalf("FindEscrowByOrder failed: %v", err)
	}

	var releases int64
	for i := 0; i < 5; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			if r, err := service.ClientFulfill(ctx, buyer, escrow.EscrowID); err == nil && r.Released {
				atomic.AddInt64(&releases, 1)
			}
		}()
		go func() {
			defer wg.Done()
			if r, err := service.CreativeFulfill(ctx, creative, escrow.EscrowID); err == nil && r.Released {
				atomic.AddInt64(&releases, 1)
			}
		}()
	}
	wg.Wait()
	if releases != 1 {
		t.Fatalf("Expected exactly one release, got %d", releases)
	}

	wallet, err := service.WalletForUser(ctx, creative.UserID)
	if err != nil {
		t.Fatalf("WalletForUser failed: %v", err)
	}
	if wallet.AvailableBalance.String() != "67.00" {
		t.Errorf("Expected 67.00, got %s", wallet.AvailableBalance)
	}

	staff := model.Actor{UserID: uuid.NewString(), Role: model.RoleStaff}
	request, err := service.RequestWithdrawal(ctx, creative, money.MustParse("67.00"))
	if err != nil {
		t.Fatalf("RequestWithdrawal failed: %v", err)
	}
	processed, err := service.ApproveWithdrawal(ctx, staff, request.ID)
	if err != nil || processed.Status != model.WithdrawalProcessed {
		t.Fatalf("Expected processed withdrawal, got %+v err=%v", processed, err)
	}
	wallet, _ = service.WalletForUser(ctx, creative.UserID)
	if !wallet.AvailableBalance.IsZero() || wallet.PendingBalance.String() != "67.00" {
		t.Errorf("Expected 0.00/67.00, got %s/%s", wallet.AvailableBalance, wallet.PendingBalance)
	}
}

func TestPostgresWalletCheckConstraint(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	repo := NewSettlementRepository(db, zap.NewNop())

	userID := uuid.NewString()
	err := repo.InTx(ctx, func(tx settlement.Tx) error {
		wallet, _, err := tx.FindOrCreateWallet(ctx, userID, time.Now().UTC())
		if err != nil {
			return err
		}
		wallet.AvailableBalance = money.MustParse("-0.01")
		return tx.SaveWallet(ctx, wallet)
	})
	if !errors.Is(err, model.ErrInsufficientBalance) {
		t.Errorf("Expected ErrInsufficientBalance, got %v", err)
	}
	if _, err := repo.FindWallet(ctx, userID); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("Expected the wallet insert to roll back, got %v", err)
	}
}

func TestPostgresOutboxClaim(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	repo := NewSettlementRepository(db, zap.NewNop())
	outbox := NewOutboxRepository(db, zap.NewNop())

	eventID := uuid.NewString()
	err := repo.InTx(ctx, func(tx settlement.Tx) error {
		return tx.StoreOutboxEvent(ctx, model.OutboxEvent{
			EventID:     eventID,
			Aggregate:   "order",
			AggregateID: uuid.NewString(),
			EventType:   events.OrderCreated,
			Status:      model.OutboxUnsent,
			Payload:     []byte(`{"ok":true}`),
		})
	})
	if err != nil {
		t.Fatalf("StoreOutboxEvent failed: %v", err)
	}

	claimed, err := outbox.GetUnsentEventsForProcessing(ctx, 1000)
	if err != nil {
		t.Fatalf("GetUnsentEventsForProcessing failed: %v", err)
	}
	found := false
	for _, event := range claimed {
		if event.EventID == eventID {
			found = true
		}
		if err := outbox.MarkEventAsSent(ctx, event.EventID); err != nil {
			t.Fatalf("MarkEventAsSent failed: %v", err)
		}
	}
	if !found {
		t.Errorf("Expected event %s to be claimed", eventID)
	}
}
