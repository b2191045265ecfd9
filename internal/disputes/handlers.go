package disputes

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/odaglas/tecwork/internal/escrow"
	"github.com/odaglas/tecwork/internal/validation"
)

// Events receives dispute lifecycle notifications.
type Events interface {
	DisputeOpened(d *Dispute)
}

// Handler provides HTTP endpoints for opening and reading disputes.
// Resolution endpoints live in the authority package.
type Handler struct {
	service *Service
	events  Events
}

// NewHandler creates a new dispute handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// WithEvents adds a lifecycle event emitter.
func (h *Handler) WithEvents(events Events) *Handler {
	h.events = events
	return h
}

// RegisterRoutes sets up dispute routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/payments/:id/disputes", h.OpenDispute)
	r.GET("/payments/:id/disputes", h.ListDisputes)
	r.GET("/disputes/:id", h.GetDispute)
}

// OpenDispute handles POST /v1/payments/:id/disputes
func (h *Handler) OpenDispute(c *gin.Context) {
	paymentID := c.Param("id")

	var req OpenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "openedByRole, openedById, reason and details are required",
		})
		return
	}

	if errs := validation.Validate(
		validation.Required("reason", req.Reason),
		validation.MaxLength("reason", req.Reason, 500),
		validation.Required("details", req.Details),
		validation.MaxLength("details", req.Details, validation.MaxStringLength),
		validation.MaxLength("evidence_ref", req.EvidenceRef, 255),
		validation.ValidRole("opened_by_role", string(req.OpenedByRole)),
	); len(errs) > 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "validation_error",
			"message": errs.Error(),
			"details": errs,
		})
		return
	}

	dispute, err := h.service.Open(c.Request.Context(), paymentID, req)
	if err != nil {
		status := http.StatusInternalServerError
		code := "internal_error"
		switch {
		case errors.Is(err, escrow.ErrPaymentNotFound):
			status = http.StatusNotFound
			code = "not_found"
		case errors.Is(err, ErrDuplicateOpenDispute):
			status = http.StatusConflict
			code = "duplicate_open_dispute"
		case errors.Is(err, ErrInvalidPaymentState):
			status = http.StatusConflict
			code = "invalid_payment_state"
		case errors.Is(err, ErrInvalidRole), errors.Is(err, ErrEmptyReason):
			status = http.StatusBadRequest
			code = "validation_error"
		}
		resp := gin.H{"error": code, "message": err.Error()}
		if errors.Is(err, ErrDuplicateOpenDispute) {
			// Point the caller at the dispute that is already open.
			if existing, derr := h.service.OpenByPayment(c.Request.Context(), paymentID); derr == nil {
				resp["disputeId"] = existing.ID
			}
		}
		c.JSON(status, resp)
		return
	}

	if h.events != nil {
		h.events.DisputeOpened(dispute)
	}

	c.JSON(http.StatusCreated, gin.H{"dispute": dispute})
}

// GetDispute handles GET /v1/disputes/:id
func (h *Handler) GetDispute(c *gin.Context) {
	dispute, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, ErrDisputeNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "not_found",
				"message": "Dispute not found",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"dispute": dispute})
}

// ListDisputes handles GET /v1/payments/:id/disputes
func (h *Handler) ListDisputes(c *gin.Context) {
	list, err := h.service.ListByPayment(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"disputes": list,
		"count":    len(list),
	})
}
