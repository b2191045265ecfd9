package notify

import (
	"context"
	"log/slog"
	"time"

	"github.com/odaglas/tecwork/internal/disputes"
	"github.com/odaglas/tecwork/internal/escrow"
	"github.com/odaglas/tecwork/internal/idgen"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	notifyEmitTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tecwork",
		Subsystem: "notify",
		Name:      "emit_total",
		Help:      "Total webhook emit attempts by event type.",
	}, []string{"event_type"})

	notifyEmitErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tecwork",
		Subsystem: "notify",
		Name:      "emit_errors_total",
		Help:      "Total webhook emit failures by event type.",
	}, []string{"event_type"})
)

func init() {
	prometheus.MustRegister(notifyEmitTotal, notifyEmitErrors)
}

// Emitter wraps a Dispatcher to emit lifecycle events across subsystems.
// All methods are fire-and-forget: errors are logged but never returned,
// so a dead subscriber can never fail or delay a payment transition.
type Emitter struct {
	d      *Dispatcher
	logger *slog.Logger
}

// NewEmitter creates a new webhook emitter.
func NewEmitter(d *Dispatcher, logger *slog.Logger) *Emitter {
	return &Emitter{d: d, logger: logger}
}

func (e *Emitter) emit(eventType EventType, data map[string]interface{}) {
	if e == nil || e.d == nil {
		return
	}
	notifyEmitTotal.WithLabelValues(string(eventType)).Inc()
	event := &Event{
		ID:        idgen.WithPrefix("evt_"),
		Type:      eventType,
		Timestamp: time.Now(),
		Data:      data,
	}
	// Deliveries run async; the dispatcher's client timeout and retry cap
	// bound them, so the context must outlive this call.
	ctx := context.Background()
	if err := e.d.Dispatch(ctx, event); err != nil {
		notifyEmitErrors.WithLabelValues(string(eventType)).Inc()
		e.logger.Warn("webhook emit failed", "event", eventType, "error", err)
	}
}

// PaymentCreated emits a payment.created event.
func (e *Emitter) PaymentCreated(p *escrow.Payment) {
	e.emit(EventPaymentCreated, map[string]interface{}{
		"paymentId":   p.ID,
		"ticketId":    p.TicketID,
		"quoteId":     p.QuoteID,
		"grossAmount": p.GrossAmount,
		"status":      string(p.Status),
	})
}

// PaymentRetained emits a payment.retained event once funds reach escrow.
func (e *Emitter) PaymentRetained(p *escrow.Payment) {
	e.emit(EventPaymentRetained, map[string]interface{}{
		"paymentId":   p.ID,
		"ticketId":    p.TicketID,
		"grossAmount": p.GrossAmount,
		"status":      string(p.Status),
	})
}

// PaymentReleased emits a payment.released event with the final split.
func (e *Emitter) PaymentReleased(p *escrow.Payment) {
	e.emit(EventPaymentReleased, map[string]interface{}{
		"paymentId":        p.ID,
		"ticketId":         p.TicketID,
		"grossAmount":      p.GrossAmount,
		"commissionAmount": p.CommissionAmount,
		"netAmount":        p.NetAmount,
		"releasedAt":       p.ReleasedAt,
	})
}

// DisputeOpened emits a dispute.opened event.
func (e *Emitter) DisputeOpened(d *disputes.Dispute) {
	e.emit(EventDisputeOpened, map[string]interface{}{
		"disputeId":    d.ID,
		"paymentId":    d.PaymentID,
		"openedByRole": string(d.OpenedByRole),
		"reason":       d.Reason,
	})
}

// DisputeReviewed emits a dispute.under_review event.
func (e *Emitter) DisputeReviewed(d *disputes.Dispute) {
	e.emit(EventDisputeReviewed, map[string]interface{}{
		"disputeId": d.ID,
		"paymentId": d.PaymentID,
		"status":    string(d.Status),
	})
}

// DisputeResolved emits a dispute.resolved event with the payment outcome.
func (e *Emitter) DisputeResolved(d *disputes.Dispute, p *escrow.Payment) {
	e.emit(EventDisputeResolved, map[string]interface{}{
		"disputeId":      d.ID,
		"paymentId":      d.PaymentID,
		"status":         string(d.Status),
		"resolutionNote": d.ResolutionNote,
		"paymentStatus":  string(p.Status),
	})
}
