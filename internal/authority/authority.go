// Package authority is the administrator-facing operation surface for the
// escrow core. It is the only caller of the release transition and of dispute
// resolution; both are privileged and pass through the admin gate wired in the
// server. Notifications are emitted strictly after the state change commits.
package authority

import (
	"context"
	"errors"

	"github.com/odaglas/tecwork/internal/disputes"
	"github.com/odaglas/tecwork/internal/escrow"
	"github.com/odaglas/tecwork/internal/metrics"
	"github.com/odaglas/tecwork/internal/traces"
)

// Events receives post-commit notifications for privileged transitions.
type Events interface {
	PaymentReleased(p *escrow.Payment)
	DisputeReviewed(d *disputes.Dispute)
	DisputeResolved(d *disputes.Dispute, p *escrow.Payment)
}

// Service executes the privileged escrow operations.
type Service struct {
	payments *escrow.Service
	registry *disputes.Service
	events   Events
}

// NewService creates a new authority service.
func NewService(payments *escrow.Service, registry *disputes.Service) *Service {
	return &Service{
		payments: payments,
		registry: registry,
	}
}

// WithEvents adds a post-commit event emitter.
func (s *Service) WithEvents(events Events) *Service {
	s.events = events
	return s
}

// Release releases a held payment to the technician. Releasing an
// already-released payment is a no-op success returning the stored record,
// so retried requests are safe; the split is never recomputed.
// The returned bool is true when this call performed the release.
func (s *Service) Release(ctx context.Context, paymentID string) (*escrow.Payment, bool, error) {
	ctx, span := traces.StartSpan(ctx, "authority.Release", traces.PaymentID(paymentID))
	defer span.End()

	payment, err := s.payments.Release(ctx, paymentID)
	if err != nil {
		if errors.Is(err, escrow.ErrAlreadyReleased) {
			return payment, false, nil
		}
		return nil, false, err
	}

	metrics.ReleasesTotal.WithLabelValues("released").Inc()
	if s.events != nil {
		s.events.PaymentReleased(payment)
	}
	return payment, true, nil
}

// Resolve records an administrator decision on a dispute and settles the
// underlying payment.
func (s *Service) Resolve(ctx context.Context, disputeID string, req disputes.ResolveRequest) (*disputes.Dispute, *escrow.Payment, error) {
	ctx, span := traces.StartSpan(ctx, "authority.Resolve",
		traces.DisputeID(disputeID), traces.Decision(string(req.Decision)))
	defer span.End()

	dispute, payment, err := s.registry.Resolve(ctx, disputeID, req)
	if err != nil {
		return nil, nil, err
	}

	metrics.ReleasesTotal.WithLabelValues("dispute_" + string(req.Decision)).Inc()
	if s.events != nil {
		s.events.DisputeResolved(dispute, payment)
	}
	return dispute, payment, nil
}

// Review moves a dispute to under_review.
func (s *Service) Review(ctx context.Context, disputeID string) (*disputes.Dispute, error) {
	ctx, span := traces.StartSpan(ctx, "authority.Review", traces.DisputeID(disputeID))
	defer span.End()

	dispute, err := s.registry.MarkUnderReview(ctx, disputeID)
	if err != nil {
		return nil, err
	}

	if s.events != nil {
		s.events.DisputeReviewed(dispute)
	}
	return dispute, nil
}
