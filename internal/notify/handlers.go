package notify

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/odaglas/tecwork/internal/idgen"
	"github.com/odaglas/tecwork/internal/security"
)

// allowedEvents is the set of event types a subscription may request.
var allowedEvents = map[EventType]bool{
	EventPaymentCreated:  true,
	EventPaymentRetained: true,
	EventPaymentReleased: true,
	EventDisputeOpened:   true,
	EventDisputeReviewed: true,
	EventDisputeResolved: true,
}

// Handler provides HTTP endpoints for webhook subscription management
type Handler struct {
	store Store
}

// NewHandler creates a new webhook handler
func NewHandler(store Store) *Handler {
	return &Handler{store: store}
}

// RegisterRoutes sets up webhook subscription routes
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/webhooks", h.CreateSubscription)
	r.GET("/webhooks", h.ListSubscriptions)
	r.GET("/webhooks/:webhookId", h.GetSubscription)
	r.DELETE("/webhooks/:webhookId", h.DeleteSubscription)
}

// CreateSubscriptionRequest for creating a webhook subscription
type CreateSubscriptionRequest struct {
	URL    string   `json:"url" binding:"required"`
	Events []string `json:"events" binding:"required"`
}

// CreateSubscription handles POST /webhooks
func (h *Handler) CreateSubscription(c *gin.Context) {
	var req CreateSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}

	if err := security.ValidateEndpointURL(req.URL); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_url",
			"message": err.Error(),
		})
		return
	}

	events := make([]EventType, 0, len(req.Events))
	for _, e := range req.Events {
		et := EventType(e)
		if !allowedEvents[et] {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "invalid_event",
				"message": "Unknown event type: " + e,
			})
			return
		}
		events = append(events, et)
	}

	secret := idgen.Hex(32)
	sub := &Subscription{
		ID:        idgen.WithPrefix("wh_"),
		URL:       req.URL,
		Secret:    secret,
		Events:    events,
		Active:    true,
		CreatedAt: time.Now(),
	}

	if err := h.store.Create(c.Request.Context(), sub); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "create_failed",
			"message": "Failed to create webhook subscription",
		})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"webhook": sub,
		"secret":  secret, // Only shown once!
		"usage": gin.H{
			"signature": "Verify with HMAC-SHA256(payload, secret)",
			"header":    "X-Tecwork-Signature",
		},
	})
}

// ListSubscriptions handles GET /webhooks
func (h *Handler) ListSubscriptions(c *gin.Context) {
	subs, err := h.store.List(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "list_failed",
			"message": "Failed to list webhook subscriptions",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"webhooks": subs})
}

// GetSubscription handles GET /webhooks/:webhookId
func (h *Handler) GetSubscription(c *gin.Context) {
	sub, err := h.store.Get(c.Request.Context(), c.Param("webhookId"))
	if err != nil {
		if errors.Is(err, ErrSubscriptionNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "not_found",
				"message": "Webhook subscription not found",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "get_failed",
			"message": "Failed to load webhook subscription",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"webhook": sub})
}

// DeleteSubscription handles DELETE /webhooks/:webhookId
func (h *Handler) DeleteSubscription(c *gin.Context) {
	if err := h.store.Delete(c.Request.Context(), c.Param("webhookId")); err != nil {
		if errors.Is(err, ErrSubscriptionNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "not_found",
				"message": "Webhook subscription not found",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "delete_failed",
			"message": "Failed to delete webhook subscription",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":  "deleted",
		"message": "Webhook subscription deleted",
	})
}
