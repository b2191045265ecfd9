package authority

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/odaglas/tecwork/internal/disputes"
	"github.com/odaglas/tecwork/internal/escrow"
)

// Handler provides the privileged HTTP endpoints. The server mounts these
// behind the admin gate; nothing here re-checks the caller.
type Handler struct {
	service *Service
}

// NewHandler creates a new authority handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes sets up the privileged routes on an admin-gated group.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/payments/:id/release", h.ReleasePayment)
	r.POST("/disputes/:id/review", h.ReviewDispute)
	r.POST("/disputes/:id/resolve", h.ResolveDispute)
}

// ReleasePayment handles POST /v1/payments/:id/release
func (h *Handler) ReleasePayment(c *gin.Context) {
	payment, released, err := h.service.Release(c.Request.Context(), c.Param("id"))
	if err != nil {
		status := http.StatusInternalServerError
		code := "internal_error"
		switch {
		case errors.Is(err, escrow.ErrPaymentNotFound):
			status = http.StatusNotFound
			code = "not_found"
		case errors.Is(err, escrow.ErrIllegalTransition):
			// Disputed or not yet captured; message names the current state.
			status = http.StatusConflict
			code = "invalid_state"
		}
		c.JSON(status, gin.H{"error": code, "message": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"payment":          payment,
		"commissionAmount": payment.CommissionAmount,
		"netAmount":        payment.NetAmount,
		"releasedAt":       payment.ReleasedAt,
		"alreadyReleased":  !released,
	})
}

// ReviewDispute handles POST /v1/disputes/:id/review
func (h *Handler) ReviewDispute(c *gin.Context) {
	dispute, err := h.service.Review(c.Request.Context(), c.Param("id"))
	if err != nil {
		status := http.StatusInternalServerError
		code := "internal_error"
		switch {
		case errors.Is(err, disputes.ErrDisputeNotFound):
			status = http.StatusNotFound
			code = "not_found"
		case errors.Is(err, disputes.ErrAlreadyResolved):
			status = http.StatusConflict
			code = "already_resolved"
		}
		c.JSON(status, gin.H{"error": code, "message": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"dispute": dispute})
}

// ResolveDispute handles POST /v1/disputes/:id/resolve
func (h *Handler) ResolveDispute(c *gin.Context) {
	var req disputes.ResolveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "decision and resolutionNote are required",
		})
		return
	}

	dispute, payment, err := h.service.Resolve(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		status := http.StatusInternalServerError
		code := "internal_error"
		switch {
		case errors.Is(err, disputes.ErrDisputeNotFound):
			status = http.StatusNotFound
			code = "not_found"
		case errors.Is(err, disputes.ErrAlreadyResolved):
			status = http.StatusConflict
			code = "already_resolved"
		case errors.Is(err, escrow.ErrIllegalTransition):
			status = http.StatusConflict
			code = "invalid_state"
		case errors.Is(err, disputes.ErrInvalidDecision), errors.Is(err, disputes.ErrEmptyNote):
			status = http.StatusBadRequest
			code = "validation_error"
		}
		c.JSON(status, gin.H{"error": code, "message": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"dispute": dispute,
		"payment": payment,
	})
}
