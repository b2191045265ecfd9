package escrow

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/odaglas/tecwork/internal/validation"
)

// Events receives payment lifecycle notifications. Implementations must not
// block; emission happens after the state change has committed.
type Events interface {
	PaymentCreated(p *Payment)
	PaymentRetained(p *Payment)
}

// Handler provides HTTP endpoints for the upstream payment events and the
// read surface. Release is deliberately absent here; it belongs to the
// authority package.
type Handler struct {
	service *Service
	events  Events
}

// NewHandler creates a new payment handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// WithEvents adds a lifecycle event emitter.
func (h *Handler) WithEvents(events Events) *Handler {
	h.events = events
	return h
}

// RegisterRoutes sets up payment routes. The caller is expected to have
// applied service authentication to the group.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/payments", h.CreatePayment)
	r.POST("/payments/:id/capture", h.ConfirmCapture)
	r.GET("/payments/:id", h.GetPayment)
	r.GET("/tickets/:ticketId/payments", h.ListByTicket)
}

// CreatePayment handles POST /v1/payments — the "quote accepted" event.
func (h *Handler) CreatePayment(c *gin.Context) {
	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}

	if errs := validation.Validate(
		validation.Required("ticket_id", req.TicketID),
		validation.Required("quote_id", req.QuoteID),
		validation.PositiveAmount("gross_amount", req.GrossAmount),
	); len(errs) > 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "validation_error",
			"message": errs.Error(),
			"details": errs,
		})
		return
	}

	payment, err := h.service.Create(c.Request.Context(), req)
	if err != nil {
		if errors.Is(err, ErrInvalidAmount) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "validation_error", "message": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to create payment",
		})
		return
	}

	if h.events != nil {
		h.events.PaymentCreated(payment)
	}

	c.JSON(http.StatusCreated, gin.H{"payment": payment})
}

// CaptureRequest carries the gateway capture confirmation.
type CaptureRequest struct {
	Amount int64 `json:"amount" binding:"required"`
}

// ConfirmCapture handles POST /v1/payments/:id/capture — the "gateway capture
// confirmed" event.
func (h *Handler) ConfirmCapture(c *gin.Context) {
	id := c.Param("id")

	var req CaptureRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Amount is required",
		})
		return
	}

	payment, err := h.service.ConfirmCapture(c.Request.Context(), id, req.Amount)
	if err != nil {
		status := http.StatusInternalServerError
		code := "internal_error"
		switch {
		case errors.Is(err, ErrPaymentNotFound):
			status = http.StatusNotFound
			code = "not_found"
		case errors.Is(err, ErrAmountMismatch):
			status = http.StatusConflict
			code = "amount_mismatch"
		case errors.Is(err, ErrIllegalTransition):
			status = http.StatusConflict
			code = "invalid_state"
		}
		c.JSON(status, gin.H{"error": code, "message": err.Error()})
		return
	}

	if h.events != nil {
		h.events.PaymentRetained(payment)
	}

	c.JSON(http.StatusOK, gin.H{"payment": payment})
}

// GetPayment handles GET /v1/payments/:id
func (h *Handler) GetPayment(c *gin.Context) {
	payment, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, ErrPaymentNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "not_found",
				"message": "Payment not found",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"payment": payment})
}

// ListByTicket handles GET /v1/tickets/:ticketId/payments
func (h *Handler) ListByTicket(c *gin.Context) {
	payments, err := h.service.ListByTicket(c.Request.Context(), c.Param("ticketId"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"payments": payments,
		"count":    len(payments),
	})
}
