package authority

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/odaglas/tecwork/internal/disputes"
	"github.com/odaglas/tecwork/internal/escrow"
)

// recordingEvents captures emitted notifications.
type recordingEvents struct {
	mu        sync.Mutex
	released  []*escrow.Payment
	reviewed  []*disputes.Dispute
	resolved  []*disputes.Dispute
	settled   []*escrow.Payment
}

func (r *recordingEvents) PaymentReleased(p *escrow.Payment) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.released = append(r.released, p)
}

func (r *recordingEvents) DisputeReviewed(d *disputes.Dispute) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reviewed = append(r.reviewed, d)
}

func (r *recordingEvents) DisputeResolved(d *disputes.Dispute, p *escrow.Payment) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resolved = append(r.resolved, d)
	r.settled = append(r.settled, p)
}

func newTestAuthority(t *testing.T) (*Service, *escrow.Service, *disputes.Service, *recordingEvents) {
	t.Helper()
	payments := escrow.NewService(escrow.NewMemoryStore(), 15)
	registry := disputes.NewService(disputes.NewMemoryStore(), payments)
	events := &recordingEvents{}
	return NewService(payments, registry).WithEvents(events), payments, registry, events
}

func heldPayment(t *testing.T, payments *escrow.Service, gross int64) *escrow.Payment {
	t.Helper()
	ctx := context.Background()
	p, err := payments.Create(ctx, escrow.CreateRequest{
		TicketID: "tick_1", QuoteID: "quote_1", GrossAmount: gross,
	})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	held, err := payments.ConfirmCapture(ctx, p.ID, gross)
	if err != nil {
		t.Fatalf("ConfirmCapture failed: %v", err)
	}
	return held
}

func openDispute(t *testing.T, registry *disputes.Service, paymentID string) *disputes.Dispute {
	t.Helper()
	d, err := registry.Open(context.Background(), paymentID, disputes.OpenRequest{
		OpenedByRole: disputes.RoleClient,
		OpenedByID:   "cli_1",
		Reason:       "work incomplete",
		Details:      "The agreed repair was not finished.",
	})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	return d
}

// ---------------------------------------------------------------------------
// Release
// ---------------------------------------------------------------------------

func TestRelease(t *testing.T) {
	s, payments, _, events := newTestAuthority(t)
	p := heldPayment(t, payments, 45000)

	released, performed, err := s.Release(context.Background(), p.ID)
	if err != nil {
		t.Fatalf("Release failed: %v", err)
	}
	if !performed {
		t.Error("Expected performed=true on first release")
	}
	if released.Status != escrow.StatusReleased {
		t.Errorf("Expected released, got %s", released.Status)
	}
	if len(events.released) != 1 {
		t.Errorf("Expected 1 released event, got %d", len(events.released))
	}
}

func TestRelease_Idempotent(t *testing.T) {
	s, payments, _, events := newTestAuthority(t)
	p := heldPayment(t, payments, 10000)

	first, _, err := s.Release(context.Background(), p.ID)
	if err != nil {
		t.Fatalf("Release failed: %v", err)
	}

	second, performed, err := s.Release(context.Background(), p.ID)
	if err != nil {
		t.Fatalf("Repeat release failed: %v", err)
	}
	if performed {
		t.Error("Expected performed=false on repeat release")
	}
	if second.CommissionAmount != first.CommissionAmount {
		t.Error("Repeat release must return the stored split")
	}
	// No second event for the no-op.
	if len(events.released) != 1 {
		t.Errorf("Expected 1 released event, got %d", len(events.released))
	}
}

func TestRelease_Disputed(t *testing.T) {
	s, payments, registry, _ := newTestAuthority(t)
	p := heldPayment(t, payments, 10000)
	openDispute(t, registry, p.ID)

	_, _, err := s.Release(context.Background(), p.ID)
	if !errors.Is(err, escrow.ErrIllegalTransition) {
		t.Errorf("Expected ErrIllegalTransition, got %v", err)
	}
}

func TestRelease_NotFound(t *testing.T) {
	s, _, _, _ := newTestAuthority(t)
	_, _, err := s.Release(context.Background(), "pay_none")
	if !errors.Is(err, escrow.ErrPaymentNotFound) {
		t.Errorf("Expected ErrPaymentNotFound, got %v", err)
	}
}

// ---------------------------------------------------------------------------
// Review
// ---------------------------------------------------------------------------

func TestReview(t *testing.T) {
	s, payments, registry, events := newTestAuthority(t)
	p := heldPayment(t, payments, 10000)
	d := openDispute(t, registry, p.ID)

	reviewed, err := s.Review(context.Background(), d.ID)
	if err != nil {
		t.Fatalf("Review failed: %v", err)
	}
	if reviewed.Status != disputes.StatusUnderReview {
		t.Errorf("Expected under_review, got %s", reviewed.Status)
	}
	if len(events.reviewed) != 1 {
		t.Errorf("Expected 1 reviewed event, got %d", len(events.reviewed))
	}
}

func TestReview_AlreadyResolved(t *testing.T) {
	s, payments, registry, events := newTestAuthority(t)
	p := heldPayment(t, payments, 10000)
	d := openDispute(t, registry, p.ID)

	if _, _, err := s.Resolve(context.Background(), d.ID, disputes.ResolveRequest{
		Decision: disputes.DecisionReject, ResolutionNote: "ok",
	}); err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}

	_, err := s.Review(context.Background(), d.ID)
	if !errors.Is(err, disputes.ErrAlreadyResolved) {
		t.Errorf("Expected ErrAlreadyResolved, got %v", err)
	}
	if len(events.reviewed) != 0 {
		t.Error("No reviewed event expected for a failed review")
	}
}

// ---------------------------------------------------------------------------
// Resolve
// ---------------------------------------------------------------------------

func TestResolve_FavorTechnician(t *testing.T) {
	s, payments, registry, events := newTestAuthority(t)
	p := heldPayment(t, payments, 45000)
	d := openDispute(t, registry, p.ID)

	dispute, payment, err := s.Resolve(context.Background(), d.ID, disputes.ResolveRequest{
		Decision:       disputes.DecisionFavorTechnician,
		ResolutionNote: "Completion evidence accepted.",
	})
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if dispute.Status != disputes.StatusResolvedTechnician {
		t.Errorf("Expected resolved_technician, got %s", dispute.Status)
	}
	if payment.Status != escrow.StatusReleased {
		t.Errorf("Expected payment released, got %s", payment.Status)
	}
	if payment.CommissionAmount != 6750 || payment.NetAmount != 38250 {
		t.Errorf("Expected split 6750/38250, got %d/%d", payment.CommissionAmount, payment.NetAmount)
	}
	if len(events.resolved) != 1 {
		t.Errorf("Expected 1 resolved event, got %d", len(events.resolved))
	}
	if events.settled[0].Status != escrow.StatusReleased {
		t.Error("Resolved event must carry the settled payment")
	}
}

func TestResolve_FavorClient(t *testing.T) {
	s, payments, registry, _ := newTestAuthority(t)
	p := heldPayment(t, payments, 10000)
	d := openDispute(t, registry, p.ID)

	dispute, payment, err := s.Resolve(context.Background(), d.ID, disputes.ResolveRequest{
		Decision:       disputes.DecisionFavorClient,
		ResolutionNote: "Client documented the incomplete work.",
	})
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if dispute.Status != disputes.StatusResolvedClient {
		t.Errorf("Expected resolved_client, got %s", dispute.Status)
	}
	if payment.Status != escrow.StatusHeld {
		t.Errorf("Expected payment back in escrow, got %s", payment.Status)
	}
}

func TestResolve_InvalidDecision(t *testing.T) {
	s, payments, registry, events := newTestAuthority(t)
	p := heldPayment(t, payments, 10000)
	d := openDispute(t, registry, p.ID)

	_, _, err := s.Resolve(context.Background(), d.ID, disputes.ResolveRequest{
		Decision: "coin_flip", ResolutionNote: "ok",
	})
	if !errors.Is(err, disputes.ErrInvalidDecision) {
		t.Errorf("Expected ErrInvalidDecision, got %v", err)
	}
	if len(events.resolved) != 0 {
		t.Error("No resolved event expected for a failed resolution")
	}
}

// ---------------------------------------------------------------------------
// Nil events
// ---------------------------------------------------------------------------

func TestWithoutEvents(t *testing.T) {
	payments := escrow.NewService(escrow.NewMemoryStore(), 15)
	registry := disputes.NewService(disputes.NewMemoryStore(), payments)
	s := NewService(payments, registry)

	p := heldPayment(t, payments, 10000)
	if _, _, err := s.Release(context.Background(), p.ID); err != nil {
		t.Fatalf("Release without events failed: %v", err)
	}
}
