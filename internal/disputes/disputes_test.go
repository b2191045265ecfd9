package disputes

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/odaglas/tecwork/internal/escrow"
)

func newTestService(t *testing.T) (*Service, *escrow.Service) {
	t.Helper()
	ledger := escrow.NewService(escrow.NewMemoryStore(), 15)
	return NewService(NewMemoryStore(), ledger), ledger
}

func heldPayment(t *testing.T, ledger *escrow.Service, gross int64) *escrow.Payment {
	t.Helper()
	ctx := context.Background()
	p, err := ledger.Create(ctx, escrow.CreateRequest{
		TicketID: "tick_1", QuoteID: "quote_1", GrossAmount: gross,
	})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	held, err := ledger.ConfirmCapture(ctx, p.ID, gross)
	if err != nil {
		t.Fatalf("ConfirmCapture failed: %v", err)
	}
	return held
}

func openRequest(role Role) OpenRequest {
	return OpenRequest{
		OpenedByRole: role,
		OpenedByID:   "party_1",
		Reason:       "work incomplete",
		Details:      "The agreed repair was not finished.",
	}
}

// ---------------------------------------------------------------------------
// Open
// ---------------------------------------------------------------------------

func TestOpen(t *testing.T) {
	s, ledger := newTestService(t)
	ctx := context.Background()
	p := heldPayment(t, ledger, 10000)

	d, err := s.Open(ctx, p.ID, openRequest(RoleClient))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if d.Status != StatusOpen {
		t.Errorf("Expected open, got %s", d.Status)
	}
	if d.PaymentID != p.ID {
		t.Errorf("Expected payment %s, got %s", p.ID, d.PaymentID)
	}

	// The payment flipped to disputed in the same operation.
	got, _ := ledger.Get(ctx, p.ID)
	if got.Status != escrow.StatusDisputed {
		t.Errorf("Expected payment disputed, got %s", got.Status)
	}
}

func TestOpen_InvalidRole(t *testing.T) {
	s, ledger := newTestService(t)
	p := heldPayment(t, ledger, 10000)

	req := openRequest("accountant")
	_, err := s.Open(context.Background(), p.ID, req)
	if !errors.Is(err, ErrInvalidRole) {
		t.Errorf("Expected ErrInvalidRole, got %v", err)
	}
}

func TestOpen_EmptyReason(t *testing.T) {
	s, ledger := newTestService(t)
	p := heldPayment(t, ledger, 10000)

	req := openRequest(RoleClient)
	req.Reason = ""
	_, err := s.Open(context.Background(), p.ID, req)
	if !errors.Is(err, ErrEmptyReason) {
		t.Errorf("Expected ErrEmptyReason, got %v", err)
	}
}

func TestOpen_PaymentNotFound(t *testing.T) {
	s, _ := newTestService(t)
	_, err := s.Open(context.Background(), "pay_none", openRequest(RoleClient))
	if !errors.Is(err, escrow.ErrPaymentNotFound) {
		t.Errorf("Expected ErrPaymentNotFound, got %v", err)
	}
}

func TestOpen_PaymentNotHeld(t *testing.T) {
	s, ledger := newTestService(t)
	ctx := context.Background()

	pending, err := ledger.Create(ctx, escrow.CreateRequest{
		TicketID: "tick_1", QuoteID: "quote_1", GrossAmount: 10000,
	})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	_, err = s.Open(ctx, pending.ID, openRequest(RoleClient))
	if !errors.Is(err, ErrInvalidPaymentState) {
		t.Errorf("pending: expected ErrInvalidPaymentState, got %v", err)
	}

	released := heldPayment(t, ledger, 10000)
	if _, err := ledger.Release(ctx, released.ID); err != nil {
		t.Fatalf("Release failed: %v", err)
	}
	_, err = s.Open(ctx, released.ID, openRequest(RoleClient))
	if !errors.Is(err, ErrInvalidPaymentState) {
		t.Errorf("released: expected ErrInvalidPaymentState, got %v", err)
	}
}

func TestOpen_Duplicate(t *testing.T) {
	s, ledger := newTestService(t)
	ctx := context.Background()
	p := heldPayment(t, ledger, 10000)

	if _, err := s.Open(ctx, p.ID, openRequest(RoleClient)); err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	_, err := s.Open(ctx, p.ID, openRequest(RoleTechnician))
	if !errors.Is(err, ErrDuplicateOpenDispute) {
		t.Errorf("Expected ErrDuplicateOpenDispute, got %v", err)
	}
}

func TestOpen_DuplicateBeforeRecordStored(t *testing.T) {
	s, ledger := newTestService(t)
	ctx := context.Background()
	p := heldPayment(t, ledger, 10000)

	// Flip the payment the way a winning opener does, without the record
	// write having landed yet. A second opener must still see a duplicate,
	// not a generic invalid state.
	if _, err := ledger.BeginDispute(ctx, p.ID); err != nil {
		t.Fatalf("BeginDispute failed: %v", err)
	}

	_, err := s.Open(ctx, p.ID, openRequest(RoleTechnician))
	if !errors.Is(err, ErrDuplicateOpenDispute) {
		t.Errorf("Expected ErrDuplicateOpenDispute, got %v", err)
	}
}

func TestOpen_Concurrent(t *testing.T) {
	s, ledger := newTestService(t)
	p := heldPayment(t, ledger, 10000)

	const n = 10
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = s.Open(context.Background(), p.ID, openRequest(RoleClient))
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		if err == nil {
			wins++
			continue
		}
		if !errors.Is(err, ErrDuplicateOpenDispute) {
			t.Errorf("Losing opener expected ErrDuplicateOpenDispute, got %v", err)
		}
	}
	if wins != 1 {
		t.Errorf("Expected exactly one opened dispute, got %d", wins)
	}

	disputes, _ := s.ListByPayment(context.Background(), p.ID)
	if len(disputes) != 1 {
		t.Errorf("Expected 1 dispute record, got %d", len(disputes))
	}
}

// ---------------------------------------------------------------------------
// MarkUnderReview
// ---------------------------------------------------------------------------

func TestMarkUnderReview(t *testing.T) {
	s, ledger := newTestService(t)
	ctx := context.Background()
	p := heldPayment(t, ledger, 10000)

	d, err := s.Open(ctx, p.ID, openRequest(RoleClient))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	reviewed, err := s.MarkUnderReview(ctx, d.ID)
	if err != nil {
		t.Fatalf("MarkUnderReview failed: %v", err)
	}
	if reviewed.Status != StatusUnderReview {
		t.Errorf("Expected under_review, got %s", reviewed.Status)
	}

	// The payment is untouched.
	payment, _ := ledger.Get(ctx, p.ID)
	if payment.Status != escrow.StatusDisputed {
		t.Errorf("Expected payment still disputed, got %s", payment.Status)
	}

	// A second review attempt fails.
	if _, err := s.MarkUnderReview(ctx, d.ID); !errors.Is(err, ErrAlreadyResolved) {
		t.Errorf("Expected ErrAlreadyResolved, got %v", err)
	}
}

// ---------------------------------------------------------------------------
// Resolve
// ---------------------------------------------------------------------------

func TestResolve_FavorTechnician(t *testing.T) {
	s, ledger := newTestService(t)
	ctx := context.Background()
	p := heldPayment(t, ledger, 45000)

	d, err := s.Open(ctx, p.ID, openRequest(RoleTechnician))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	resolved, payment, err := s.Resolve(ctx, d.ID, ResolveRequest{
		Decision:       DecisionFavorTechnician,
		ResolutionNote: "Completion evidence accepted.",
	})
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if resolved.Status != StatusResolvedTechnician {
		t.Errorf("Expected resolved_technician, got %s", resolved.Status)
	}
	if resolved.ResolvedAt == nil {
		t.Error("Expected ResolvedAt to be set")
	}
	if payment.Status != escrow.StatusReleased {
		t.Errorf("Expected payment released, got %s", payment.Status)
	}
	if payment.CommissionAmount != 6750 || payment.NetAmount != 38250 {
		t.Errorf("Expected split 6750/38250, got %d/%d", payment.CommissionAmount, payment.NetAmount)
	}
}

func TestResolve_FavorClient(t *testing.T) {
	s, ledger := newTestService(t)
	ctx := context.Background()
	p := heldPayment(t, ledger, 10000)

	d, _ := s.Open(ctx, p.ID, openRequest(RoleClient))

	resolved, payment, err := s.Resolve(ctx, d.ID, ResolveRequest{
		Decision:       DecisionFavorClient,
		ResolutionNote: "Client documented the incomplete work.",
	})
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if resolved.Status != StatusResolvedClient {
		t.Errorf("Expected resolved_client, got %s", resolved.Status)
	}
	if payment.Status != escrow.StatusHeld {
		t.Errorf("Expected payment back in escrow, got %s", payment.Status)
	}
	if payment.CommissionAmount != 0 {
		t.Error("favor_client must not write a commission split")
	}
}

func TestResolve_Reject(t *testing.T) {
	s, ledger := newTestService(t)
	ctx := context.Background()
	p := heldPayment(t, ledger, 10000)

	d, _ := s.Open(ctx, p.ID, openRequest(RoleClient))

	resolved, payment, err := s.Resolve(ctx, d.ID, ResolveRequest{
		Decision:       DecisionReject,
		ResolutionNote: "No supporting evidence provided.",
	})
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if resolved.Status != StatusRejected {
		t.Errorf("Expected rejected, got %s", resolved.Status)
	}
	if payment.Status != escrow.StatusHeld {
		t.Errorf("Expected payment back in escrow, got %s", payment.Status)
	}

	// The payment is releasable again after rejection.
	if _, err := ledger.Release(ctx, p.ID); err != nil {
		t.Errorf("Release after rejection failed: %v", err)
	}
}

func TestResolve_UnderReview(t *testing.T) {
	s, ledger := newTestService(t)
	ctx := context.Background()
	p := heldPayment(t, ledger, 10000)

	d, _ := s.Open(ctx, p.ID, openRequest(RoleClient))
	if _, err := s.MarkUnderReview(ctx, d.ID); err != nil {
		t.Fatalf("MarkUnderReview failed: %v", err)
	}

	_, _, err := s.Resolve(ctx, d.ID, ResolveRequest{
		Decision:       DecisionReject,
		ResolutionNote: "ok",
	})
	if err != nil {
		t.Errorf("Resolve from under_review failed: %v", err)
	}
}

func TestResolve_InvalidDecision(t *testing.T) {
	s, ledger := newTestService(t)
	p := heldPayment(t, ledger, 10000)
	d, _ := s.Open(context.Background(), p.ID, openRequest(RoleClient))

	_, _, err := s.Resolve(context.Background(), d.ID, ResolveRequest{
		Decision:       "split_the_difference",
		ResolutionNote: "ok",
	})
	if !errors.Is(err, ErrInvalidDecision) {
		t.Errorf("Expected ErrInvalidDecision, got %v", err)
	}
}

func TestResolve_EmptyNote(t *testing.T) {
	s, ledger := newTestService(t)
	p := heldPayment(t, ledger, 10000)
	d, _ := s.Open(context.Background(), p.ID, openRequest(RoleClient))

	_, _, err := s.Resolve(context.Background(), d.ID, ResolveRequest{
		Decision: DecisionReject,
	})
	if !errors.Is(err, ErrEmptyNote) {
		t.Errorf("Expected ErrEmptyNote, got %v", err)
	}
}

func TestResolve_AlreadyResolved(t *testing.T) {
	s, ledger := newTestService(t)
	ctx := context.Background()
	p := heldPayment(t, ledger, 10000)
	d, _ := s.Open(ctx, p.ID, openRequest(RoleClient))

	req := ResolveRequest{Decision: DecisionReject, ResolutionNote: "ok"}
	if _, _, err := s.Resolve(ctx, d.ID, req); err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}

	_, _, err := s.Resolve(ctx, d.ID, req)
	if !errors.Is(err, ErrAlreadyResolved) {
		t.Errorf("Expected ErrAlreadyResolved, got %v", err)
	}
}

func TestResolve_NotFound(t *testing.T) {
	s, _ := newTestService(t)
	_, _, err := s.Resolve(context.Background(), "dsp_none", ResolveRequest{
		Decision: DecisionReject, ResolutionNote: "ok",
	})
	if !errors.Is(err, ErrDisputeNotFound) {
		t.Errorf("Expected ErrDisputeNotFound, got %v", err)
	}
}

// ---------------------------------------------------------------------------
// Reopening after resolution
// ---------------------------------------------------------------------------

func TestReopenAfterClientResolution(t *testing.T) {
	s, ledger := newTestService(t)
	ctx := context.Background()
	p := heldPayment(t, ledger, 10000)

	first, _ := s.Open(ctx, p.ID, openRequest(RoleClient))
	if _, _, err := s.Resolve(ctx, first.ID, ResolveRequest{
		Decision: DecisionFavorClient, ResolutionNote: "ok",
	}); err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}

	// The payment returned to held, so a new dispute may be raised.
	second, err := s.Open(ctx, p.ID, openRequest(RoleTechnician))
	if err != nil {
		t.Fatalf("Second Open failed: %v", err)
	}
	if second.ID == first.ID {
		t.Error("Expected a fresh dispute record")
	}

	history, _ := s.ListByPayment(ctx, p.ID)
	if len(history) != 2 {
		t.Errorf("Expected 2 disputes in history, got %d", len(history))
	}
}

// ---------------------------------------------------------------------------
// MemoryStore
// ---------------------------------------------------------------------------

func TestMemoryStore_GetOpenByPayment(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	if _, err := store.GetOpenByPayment(ctx, "pay_1"); !errors.Is(err, ErrDisputeNotFound) {
		t.Errorf("Expected ErrDisputeNotFound, got %v", err)
	}

	open := &Dispute{ID: "dsp_1", PaymentID: "pay_1", Status: StatusOpen}
	if err := store.Create(ctx, open); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	got, err := store.GetOpenByPayment(ctx, "pay_1")
	if err != nil {
		t.Fatalf("GetOpenByPayment failed: %v", err)
	}
	if got.ID != "dsp_1" {
		t.Errorf("Expected dsp_1, got %s", got.ID)
	}

	// Resolved disputes are not returned.
	open.Status = StatusRejected
	if err := store.Update(ctx, open); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if _, err := store.GetOpenByPayment(ctx, "pay_1"); !errors.Is(err, ErrDisputeNotFound) {
		t.Errorf("Expected ErrDisputeNotFound for resolved dispute, got %v", err)
	}
}
