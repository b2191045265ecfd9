// Package escrow owns the payment custody record for the marketplace.
//
// Flow:
//  1. Upstream quote acceptance creates a Payment → pending_client
//  2. The payment gateway confirms capture → held_in_escrow
//  3. An administrator releases → released (commission split persisted)
//  4. Either party disputes while held → disputed, release frozen
//  5. Administrator resolution moves the payment back to held_in_escrow
//     or forward to released
//
// Every transition goes through exactly one Service method, executed under a
// per-payment lock. Illegal transitions fail with ErrIllegalTransition naming
// the current state and the attempted event.
package escrow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/odaglas/tecwork/internal/commission"
	"github.com/odaglas/tecwork/internal/idgen"
	"github.com/odaglas/tecwork/internal/metrics"
	"github.com/odaglas/tecwork/internal/syncutil"
)

var (
	ErrPaymentNotFound   = errors.New("payment not found")
	ErrIllegalTransition = errors.New("illegal payment state transition")
	ErrAlreadyReleased   = errors.New("payment already released")
	ErrAmountMismatch    = errors.New("captured amount does not match quote value")
	ErrInvalidAmount     = errors.New("gross amount must be positive")
)

// Status represents the custody state of a payment.
type Status string

const (
	StatusPendingClient Status = "pending_client"  // Created, gateway capture not yet confirmed
	StatusHeld          Status = "held_in_escrow"  // Funds captured, release permitted
	StatusDisputed      Status = "disputed"        // Release frozen pending adjudication
	StatusReleased      Status = "released"        // Terminal, commission split persisted
)

// Payment is the escrow custody record for one accepted quote.
// GrossAmount is in minor currency units. CommissionRate, CommissionAmount and
// NetAmount are zero until release; they are written together with the flip to
// released and never change afterward.
type Payment struct {
	ID               string     `json:"id"`
	TicketID         string     `json:"ticketId"`
	QuoteID          string     `json:"quoteId"`
	GrossAmount      int64      `json:"grossAmount"`
	CommissionRate   int        `json:"commissionRate,omitempty"`
	CommissionAmount int64      `json:"commissionAmount,omitempty"`
	NetAmount        int64      `json:"netAmount,omitempty"`
	Status           Status     `json:"status"`
	ReleasedAt       *time.Time `json:"releasedAt,omitempty"`
	CreatedAt        time.Time  `json:"createdAt"`
	UpdatedAt        time.Time  `json:"updatedAt"`
}

// Released reports whether the payment reached its terminal state.
func (p *Payment) Released() bool {
	return p.Status == StatusReleased
}

// Store persists payment records. Implementations must return
// ErrPaymentNotFound when an id does not resolve.
type Store interface {
	Create(ctx context.Context, p *Payment) error
	Get(ctx context.Context, id string) (*Payment, error)
	Update(ctx context.Context, p *Payment) error
	ListByTicket(ctx context.Context, ticketID string) ([]*Payment, error)
	ListByStatus(ctx context.Context, status Status, limit int) ([]*Payment, error)
}

// CreateRequest contains the parameters supplied by the upstream
// quote-acceptance event.
type CreateRequest struct {
	TicketID    string `json:"ticketId" binding:"required"`
	QuoteID     string `json:"quoteId" binding:"required"`
	GrossAmount int64  `json:"grossAmount" binding:"required"`
}

// Service implements the payment state machine.
type Service struct {
	store       Store
	ratePercent int
	locks       syncutil.ShardedMutex // serializes transitions per payment ID
}

// NewService creates a new payment service. ratePercent is the process-wide
// commission rate applied at release time; payments released earlier keep the
// rate that was current when they were released.
func NewService(store Store, ratePercent int) *Service {
	return &Service{
		store:       store,
		ratePercent: ratePercent,
	}
}

// transitionError reports an illegal transition, naming the current state and
// the attempted event so callers can tell a race from a stale view.
func transitionError(status Status, event string) error {
	return fmt.Errorf("%w: cannot %s payment in state %q", ErrIllegalTransition, event, status)
}

// Create records a new payment in pending_client. Called when the upstream
// workflow reports an accepted quote.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*Payment, error) {
	if req.GrossAmount <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidAmount, req.GrossAmount)
	}

	now := time.Now()
	p := &Payment{
		ID:          idgen.WithPrefix("pay_"),
		TicketID:    req.TicketID,
		QuoteID:     req.QuoteID,
		GrossAmount: req.GrossAmount,
		Status:      StatusPendingClient,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.store.Create(ctx, p); err != nil {
		return nil, fmt.Errorf("failed to create payment record: %w", err)
	}

	metrics.PaymentTransitionsTotal.WithLabelValues("create").Inc()
	return p, nil
}

// ConfirmCapture moves a payment to held_in_escrow once the gateway confirms
// the client's funds were captured. The captured amount must match the quote
// value recorded at creation.
func (s *Service) ConfirmCapture(ctx context.Context, id string, amount int64) (*Payment, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	p, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if p.Status != StatusPendingClient {
		return nil, transitionError(p.Status, "capture")
	}
	if amount != p.GrossAmount {
		return nil, fmt.Errorf("%w: captured %d, quote %d", ErrAmountMismatch, amount, p.GrossAmount)
	}

	p.Status = StatusHeld
	p.UpdatedAt = time.Now()

	if err := s.store.Update(ctx, p); err != nil {
		return nil, fmt.Errorf("failed to update payment: %w", err)
	}

	metrics.PaymentTransitionsTotal.WithLabelValues("capture").Inc()
	return p, nil
}

// Release flips a held payment to released. The commission split is computed
// and persisted in the same store write as the state flip, so a released
// payment is never observable without its split.
//
// Releasing an already-released payment returns the stored record together
// with ErrAlreadyReleased; the split is never recomputed.
func (s *Service) Release(ctx context.Context, id string) (*Payment, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	p, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if p.Status == StatusReleased {
		return p, ErrAlreadyReleased
	}
	if p.Status != StatusHeld {
		return nil, transitionError(p.Status, "release")
	}

	return s.release(ctx, p)
}

// release computes the split and persists it with the flip. Caller must hold
// the payment lock and have verified the from-state.
func (s *Service) release(ctx context.Context, p *Payment) (*Payment, error) {
	commissionAmount, netAmount, err := commission.Split(p.GrossAmount, s.ratePercent)
	if err != nil {
		return nil, fmt.Errorf("failed to compute commission: %w", err)
	}

	now := time.Now()
	p.Status = StatusReleased
	p.CommissionRate = s.ratePercent
	p.CommissionAmount = commissionAmount
	p.NetAmount = netAmount
	p.ReleasedAt = &now
	p.UpdatedAt = now

	if err := s.store.Update(ctx, p); err != nil {
		return nil, fmt.Errorf("failed to release payment: %w", err)
	}

	metrics.PaymentTransitionsTotal.WithLabelValues("release").Inc()
	return p, nil
}

// BeginDispute moves a held payment to disputed, freezing release. Under the
// per-payment lock exactly one concurrent caller can win this flip; the loser
// observes the post-transition state.
func (s *Service) BeginDispute(ctx context.Context, id string) (*Payment, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	p, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if p.Status != StatusHeld {
		return nil, transitionError(p.Status, "dispute")
	}

	p.Status = StatusDisputed
	p.UpdatedAt = time.Now()

	if err := s.store.Update(ctx, p); err != nil {
		return nil, fmt.Errorf("failed to update payment: %w", err)
	}

	metrics.PaymentTransitionsTotal.WithLabelValues("dispute").Inc()
	return p, nil
}

// SettleDispute leaves the disputed state. When favorTechnician is true the
// payment is released with the commission split persisted atomically;
// otherwise it returns to held_in_escrow (funds stay retained; a refund, if
// any, is an out-of-band process).
func (s *Service) SettleDispute(ctx context.Context, id string, favorTechnician bool) (*Payment, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	p, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if p.Status != StatusDisputed {
		return nil, transitionError(p.Status, "resolve")
	}

	if favorTechnician {
		return s.release(ctx, p)
	}

	p.Status = StatusHeld
	p.UpdatedAt = time.Now()

	if err := s.store.Update(ctx, p); err != nil {
		return nil, fmt.Errorf("failed to update payment: %w", err)
	}

	metrics.PaymentTransitionsTotal.WithLabelValues("settle_held").Inc()
	return p, nil
}

// Get returns a payment by ID.
func (s *Service) Get(ctx context.Context, id string) (*Payment, error) {
	return s.store.Get(ctx, id)
}

// ListByTicket returns all payments generated for a ticket, newest first.
func (s *Service) ListByTicket(ctx context.Context, ticketID string) ([]*Payment, error) {
	return s.store.ListByTicket(ctx, ticketID)
}
