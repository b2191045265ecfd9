package server

import (
	"github.com/odaglas/tecwork/internal/disputes"
	"github.com/odaglas/tecwork/internal/escrow"
	"github.com/odaglas/tecwork/internal/notify"
	"github.com/odaglas/tecwork/internal/realtime"
)

// eventFanout forwards post-commit events to outbound webhooks and to
// connected WebSocket clients. It satisfies the event interfaces of the
// escrow, disputes, and authority packages; every method runs after the
// state change is durable and never returns an error to the caller.
type eventFanout struct {
	emitter *notify.Emitter
	hub     *realtime.Hub
}

func paymentData(p *escrow.Payment) map[string]interface{} {
	data := map[string]interface{}{
		"paymentId":   p.ID,
		"ticketId":    p.TicketID,
		"quoteId":     p.QuoteID,
		"grossAmount": p.GrossAmount,
		"status":      string(p.Status),
	}
	if p.Status == escrow.StatusReleased {
		data["commissionAmount"] = p.CommissionAmount
		data["netAmount"] = p.NetAmount
		data["releasedAt"] = p.ReleasedAt
	}
	return data
}

func disputeData(d *disputes.Dispute) map[string]interface{} {
	return map[string]interface{}{
		"disputeId":    d.ID,
		"paymentId":    d.PaymentID,
		"openedByRole": string(d.OpenedByRole),
		"reason":       d.Reason,
		"status":       string(d.Status),
	}
}

func (f *eventFanout) PaymentCreated(p *escrow.Payment) {
	f.emitter.PaymentCreated(p)
	f.hub.BroadcastPayment(realtime.EventPaymentCreated, paymentData(p))
}

func (f *eventFanout) PaymentRetained(p *escrow.Payment) {
	f.emitter.PaymentRetained(p)
	f.hub.BroadcastPayment(realtime.EventPaymentRetained, paymentData(p))
}

func (f *eventFanout) PaymentReleased(p *escrow.Payment) {
	f.emitter.PaymentReleased(p)
	f.hub.BroadcastPayment(realtime.EventPaymentReleased, paymentData(p))
}

func (f *eventFanout) DisputeOpened(d *disputes.Dispute) {
	f.emitter.DisputeOpened(d)
	f.hub.BroadcastDispute(realtime.EventDisputeOpened, disputeData(d))
}

func (f *eventFanout) DisputeReviewed(d *disputes.Dispute) {
	f.emitter.DisputeReviewed(d)
	f.hub.BroadcastDispute(realtime.EventDisputeReviewed, disputeData(d))
}

func (f *eventFanout) DisputeResolved(d *disputes.Dispute, p *escrow.Payment) {
	f.emitter.DisputeResolved(d, p)
	data := disputeData(d)
	data["paymentStatus"] = string(p.Status)
	f.hub.BroadcastDispute(realtime.EventDisputeResolved, data)
}
