// Package disputes owns the dispute records raised against escrowed payments.
//
// A dispute freezes its payment: opening one IS the held_in_escrow → disputed
// transition, so at most one dispute can be open per payment at a time; a
// second opener loses the state flip and observes the first. Resolution is an
// administrator action that settles the payment in the same unit of work.
package disputes

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/odaglas/tecwork/internal/escrow"
	"github.com/odaglas/tecwork/internal/idgen"
	"github.com/odaglas/tecwork/internal/logging"
	"github.com/odaglas/tecwork/internal/metrics"
	"github.com/odaglas/tecwork/internal/syncutil"
)

var (
	ErrDisputeNotFound      = errors.New("dispute not found")
	ErrDuplicateOpenDispute = errors.New("an open dispute already exists for this payment")
	ErrInvalidPaymentState  = errors.New("payment is not held in escrow")
	ErrAlreadyResolved      = errors.New("dispute already resolved")
	ErrInvalidDecision      = errors.New("decision must be favor_client, favor_technician or reject")
	ErrEmptyReason          = errors.New("dispute reason is required")
	ErrEmptyNote            = errors.New("resolution note is required")
	ErrInvalidRole          = errors.New("opened_by role must be client or technician")
)

// Status represents the adjudication state of a dispute.
type Status string

const (
	StatusOpen               Status = "open"
	StatusUnderReview        Status = "under_review"
	StatusResolvedClient     Status = "resolved_client"
	StatusResolvedTechnician Status = "resolved_technician"
	StatusRejected           Status = "rejected"
)

// Decision is an administrator's resolution of a dispute.
type Decision string

const (
	DecisionFavorClient     Decision = "favor_client"
	DecisionFavorTechnician Decision = "favor_technician"
	DecisionReject          Decision = "reject"
)

// Role identifies which party opened a dispute.
type Role string

const (
	RoleClient     Role = "client"
	RoleTechnician Role = "technician"
)

// Dispute is one formal contest against a payment. Many disputes may exist
// historically for a payment; at most one is open. ResolvedAt is set exactly
// when the status leaves open/under_review.
type Dispute struct {
	ID             string     `json:"id"`
	PaymentID      string     `json:"paymentId"`
	OpenedByRole   Role       `json:"openedByRole"`
	OpenedByID     string     `json:"openedById"`
	Reason         string     `json:"reason"`
	Details        string     `json:"details"`
	EvidenceRef    string     `json:"evidenceRef,omitempty"`
	Status         Status     `json:"status"`
	ResolutionNote string     `json:"resolutionNote,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
	ResolvedAt     *time.Time `json:"resolvedAt,omitempty"`
}

// Resolved reports whether the dispute reached a terminal status.
func (d *Dispute) Resolved() bool {
	switch d.Status {
	case StatusResolvedClient, StatusResolvedTechnician, StatusRejected:
		return true
	}
	return false
}

// statusFor maps a resolution decision to the dispute's terminal status.
func statusFor(decision Decision) (Status, bool) {
	switch decision {
	case DecisionFavorClient:
		return StatusResolvedClient, true
	case DecisionFavorTechnician:
		return StatusResolvedTechnician, true
	case DecisionReject:
		return StatusRejected, true
	}
	return "", false
}

// Store persists dispute records. Implementations must return
// ErrDisputeNotFound when an id does not resolve.
type Store interface {
	Create(ctx context.Context, d *Dispute) error
	Get(ctx context.Context, id string) (*Dispute, error)
	Update(ctx context.Context, d *Dispute) error
	// GetOpenByPayment returns the open or under_review dispute for a payment,
	// or ErrDisputeNotFound if there is none.
	GetOpenByPayment(ctx context.Context, paymentID string) (*Dispute, error)
	ListByPayment(ctx context.Context, paymentID string) ([]*Dispute, error)
}

// PaymentLedger is the slice of the escrow service the registry drives.
// *escrow.Service satisfies it.
type PaymentLedger interface {
	Get(ctx context.Context, id string) (*escrow.Payment, error)
	BeginDispute(ctx context.Context, id string) (*escrow.Payment, error)
	SettleDispute(ctx context.Context, id string, favorTechnician bool) (*escrow.Payment, error)
}

// OpenRequest contains the parameters for opening a dispute.
type OpenRequest struct {
	OpenedByRole Role   `json:"openedByRole" binding:"required"`
	OpenedByID   string `json:"openedById" binding:"required"`
	Reason       string `json:"reason" binding:"required"`
	Details      string `json:"details" binding:"required"`
	EvidenceRef  string `json:"evidenceRef"`
}

// ResolveRequest contains the parameters for resolving a dispute.
type ResolveRequest struct {
	Decision       Decision `json:"decision" binding:"required"`
	ResolutionNote string   `json:"resolutionNote" binding:"required"`
}

// Service implements dispute business logic.
type Service struct {
	store  Store
	ledger PaymentLedger
	locks  syncutil.ShardedMutex // serializes resolution per dispute ID
}

// NewService creates a new dispute service.
func NewService(store Store, ledger PaymentLedger) *Service {
	return &Service{
		store:  store,
		ledger: ledger,
	}
}

// Open raises a dispute against a held payment and freezes release.
//
// The payment flip to disputed happens first and is the commit point: under
// the per-payment lock exactly one of two racing openers wins it, so the
// at-most-one-open invariant holds without cross-record locking.
func (s *Service) Open(ctx context.Context, paymentID string, req OpenRequest) (*Dispute, error) {
	if req.OpenedByRole != RoleClient && req.OpenedByRole != RoleTechnician {
		return nil, ErrInvalidRole
	}
	if req.Reason == "" {
		return nil, ErrEmptyReason
	}

	payment, err := s.ledger.Get(ctx, paymentID)
	if err != nil {
		return nil, err
	}

	// Friendly pre-check; the flip below is the authoritative guard.
	if err := disputableState(payment.Status); err != nil {
		return nil, err
	}

	if _, err := s.ledger.BeginDispute(ctx, paymentID); err != nil {
		if errors.Is(err, escrow.ErrIllegalTransition) {
			// Lost a race: a concurrent dispute or release got there first.
			fresh, ferr := s.ledger.Get(ctx, paymentID)
			if ferr != nil {
				return nil, ferr
			}
			if derr := disputableState(fresh.Status); derr != nil {
				return nil, derr
			}
			return nil, fmt.Errorf("%w: payment is %q", ErrInvalidPaymentState, fresh.Status)
		}
		return nil, err
	}

	now := time.Now()
	d := &Dispute{
		ID:           idgen.WithPrefix("dsp_"),
		PaymentID:    paymentID,
		OpenedByRole: req.OpenedByRole,
		OpenedByID:   req.OpenedByID,
		Reason:       req.Reason,
		Details:      req.Details,
		EvidenceRef:  req.EvidenceRef,
		Status:       StatusOpen,
		CreatedAt:    now,
	}

	if err := s.store.Create(ctx, d); err != nil {
		// Best-effort revert of the payment flip if the record cannot be stored.
		if _, rerr := s.ledger.SettleDispute(ctx, paymentID, false); rerr != nil {
			logging.L(ctx).Error("CRITICAL: payment frozen but dispute record creation and revert both failed",
				"payment_id", paymentID, "create_error", err, "revert_error", rerr)
		}
		return nil, fmt.Errorf("failed to create dispute record: %w", err)
	}

	metrics.DisputesTotal.WithLabelValues("opened").Inc()
	return d, nil
}

// disputableState maps a non-held payment status to the right caller error.
// A disputed payment always means another opener won the flip, even if its
// record write is still in flight, so that case is a duplicate rather than
// an invalid state.
func disputableState(status escrow.Status) error {
	switch status {
	case escrow.StatusHeld:
		return nil
	case escrow.StatusDisputed:
		return ErrDuplicateOpenDispute
	default:
		return fmt.Errorf("%w: payment is %q", ErrInvalidPaymentState, status)
	}
}

// MarkUnderReview moves an open dispute to under_review. Purely
// informational for the parties; the payment stays disputed.
func (s *Service) MarkUnderReview(ctx context.Context, id string) (*Dispute, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	d, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if d.Status != StatusOpen {
		return nil, fmt.Errorf("%w: dispute is %q", ErrAlreadyResolved, d.Status)
	}

	d.Status = StatusUnderReview
	if err := s.store.Update(ctx, d); err != nil {
		return nil, fmt.Errorf("failed to update dispute: %w", err)
	}

	metrics.DisputesTotal.WithLabelValues("under_review").Inc()
	return d, nil
}

// Resolve records an administrator's decision and settles the payment.
//
// The payment settlement commits first; the dispute record update follows.
// A settled payment with a stale dispute record is recoverable (retry +
// CRITICAL log), whereas a resolved record with a still-frozen payment would
// silently strand funds.
func (s *Service) Resolve(ctx context.Context, id string, req ResolveRequest) (*Dispute, *escrow.Payment, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	terminal, ok := statusFor(req.Decision)
	if !ok {
		return nil, nil, ErrInvalidDecision
	}
	if req.ResolutionNote == "" {
		return nil, nil, ErrEmptyNote
	}

	d, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}

	if d.Status != StatusOpen && d.Status != StatusUnderReview {
		return nil, nil, fmt.Errorf("%w: dispute is %q", ErrAlreadyResolved, d.Status)
	}

	payment, err := s.ledger.SettleDispute(ctx, d.PaymentID, req.Decision == DecisionFavorTechnician)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to settle payment %s: %w", d.PaymentID, err)
	}

	now := time.Now()
	d.Status = terminal
	d.ResolutionNote = req.ResolutionNote
	d.ResolvedAt = &now

	if err := s.store.Update(ctx, d); err != nil {
		// Retry once; the payment already settled and the outcome must be persisted.
		if retryErr := s.store.Update(ctx, d); retryErr != nil {
			logging.L(ctx).Error("CRITICAL: payment settled but dispute record update failed",
				"dispute_id", d.ID, "payment_id", d.PaymentID, "decision", req.Decision, "error", retryErr)
			return nil, nil, fmt.Errorf("failed to update dispute after settlement (requires manual resolution): %w", err)
		}
	}

	metrics.DisputesTotal.WithLabelValues(string(terminal)).Inc()
	return d, payment, nil
}

// Get returns a dispute by ID.
func (s *Service) Get(ctx context.Context, id string) (*Dispute, error) {
	return s.store.Get(ctx, id)
}

// OpenByPayment returns the open or under_review dispute for a payment, if
// one exists.
func (s *Service) OpenByPayment(ctx context.Context, paymentID string) (*Dispute, error) {
	return s.store.GetOpenByPayment(ctx, paymentID)
}

// ListByPayment returns the dispute history for a payment, newest first.
func (s *Service) ListByPayment(ctx context.Context, paymentID string) ([]*Dispute, error) {
	return s.store.ListByPayment(ctx, paymentID)
}
