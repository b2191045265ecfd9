//go:build integration

package escrow

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"testing"
	"time"

	_ "github.com/lib/pq"
)

func setupTestDB(t *testing.T) (*PostgresStore, func()) {
	t.Helper()

	dbURL := os.Getenv("POSTGRES_URL")
	if dbURL == "" {
		t.Skip("POSTGRES_URL not set, skipping integration test")
	}

	db, err := sql.Open("postgres", dbURL)
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}

	if err := db.Ping(); err != nil {
		t.Fatalf("Failed to connect to database: %v", err)
	}

	store := NewPostgresStore(db)
	ctx := context.Background()

	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("Failed to migrate: %v", err)
	}

	cleanup := func() {
		db.ExecContext(ctx, "DELETE FROM payments")
		db.Close()
	}

	return store, cleanup
}

func testPayment(id string) *Payment {
	now := time.Now()
	return &Payment{
		ID:          id,
		TicketID:    "tick_pg",
		QuoteID:     "quote_pg",
		GrossAmount: 45000,
		Status:      StatusPendingClient,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func TestPostgresPayments_CreateAndGet(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	p := testPayment("pay_pg001")

	if err := store.Create(ctx, p); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	got, err := store.Get(ctx, "pay_pg001")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.TicketID != p.TicketID || got.GrossAmount != p.GrossAmount {
		t.Errorf("Round trip mismatch: %+v", got)
	}
	if got.Status != StatusPendingClient {
		t.Errorf("Expected pending_client, got %s", got.Status)
	}
}

func TestPostgresPayments_GetNotFound(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()

	_, err := store.Get(context.Background(), "pay_missing")
	if !errors.Is(err, ErrPaymentNotFound) {
		t.Errorf("Expected ErrPaymentNotFound, got %v", err)
	}
}

func TestPostgresPayments_UpdateRelease(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	p := testPayment("pay_pg002")
	if err := store.Create(ctx, p); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	now := time.Now()
	p.Status = StatusReleased
	p.CommissionRate = 15
	p.CommissionAmount = 6750
	p.NetAmount = 38250
	p.ReleasedAt = &now
	p.UpdatedAt = now

	if err := store.Update(ctx, p); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	got, err := store.Get(ctx, "pay_pg002")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Status != StatusReleased {
		t.Errorf("Expected released, got %s", got.Status)
	}
	if got.CommissionAmount != 6750 || got.NetAmount != 38250 {
		t.Errorf("Expected split 6750/38250, got %d/%d", got.CommissionAmount, got.NetAmount)
	}
	if got.ReleasedAt == nil {
		t.Error("Expected ReleasedAt to be persisted")
	}
}

func TestPostgresPayments_SplitCheckConstraint(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	p := testPayment("pay_pg003")
	if err := store.Create(ctx, p); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	// A released row whose split does not sum to gross must be rejected.
	p.Status = StatusReleased
	p.CommissionAmount = 1
	p.NetAmount = 1
	if err := store.Update(ctx, p); err == nil {
		t.Error("Expected constraint violation for non-conserving split")
	}
}

func TestPostgresPayments_ListByTicket(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	for _, id := range []string{"pay_pg010", "pay_pg011"} {
		p := testPayment(id)
		if err := store.Create(ctx, p); err != nil {
			t.Fatalf("Create failed: %v", err)
		}
	}
	other := testPayment("pay_pg012")
	other.TicketID = "tick_other"
	if err := store.Create(ctx, other); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	payments, err := store.ListByTicket(ctx, "tick_pg")
	if err != nil {
		t.Fatalf("ListByTicket failed: %v", err)
	}
	if len(payments) != 2 {
		t.Errorf("Expected 2 payments, got %d", len(payments))
	}
}
