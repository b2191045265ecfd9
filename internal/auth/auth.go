// Package auth provides API authentication for the TecWork escrow service.
//
// Authentication model:
// - Health and metrics endpoints: No auth required
// - Payment and dispute endpoints: Require the marketplace service key
// - Release and resolution endpoints: Additionally require the admin secret
package auth

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	// ContextKeyAuthenticated marks a request that passed the service gate
	ContextKeyAuthenticated = "authServiceKey"
	// AdminHeader carries the admin secret on privileged requests
	AdminHeader = "X-Admin-Secret"
)

// equal compares two credentials in constant time.
func equal(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// bearerToken extracts the token from an Authorization header,
// falling back to X-API-Key.
func bearerToken(c *gin.Context) string {
	token := c.GetHeader("Authorization")
	if token == "" {
		token = c.GetHeader("X-API-Key")
	}
	token = strings.TrimPrefix(token, "Bearer ")
	return strings.TrimSpace(token)
}

// RequireServiceKey rejects requests that do not carry the shared
// marketplace service key. An empty configured key disables the gate,
// which is only sensible for local development.
func RequireServiceKey(serviceKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if serviceKey == "" {
			c.Set(ContextKeyAuthenticated, true)
			c.Next()
			return
		}

		token := bearerToken(c)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "unauthorized",
				"message": "Service key required. Include 'Authorization: Bearer ...' header.",
			})
			return
		}
		if !equal(token, serviceKey) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "unauthorized",
				"message": "Invalid service key.",
			})
			return
		}

		c.Set(ContextKeyAuthenticated, true)
		c.Next()
	}
}

// RequireAdmin gates the privileged release and resolution endpoints behind
// the admin secret. A missing configured secret fails closed: no request
// may perform privileged transitions on a server without one.
func RequireAdmin(adminSecret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if adminSecret == "" {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error":   "forbidden",
				"message": "Administrative operations are disabled on this server.",
			})
			return
		}

		provided := c.GetHeader(AdminHeader)
		if !equal(provided, adminSecret) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error":   "forbidden",
				"message": "Admin secret required.",
			})
			return
		}

		c.Next()
	}
}

// IsAuthenticated checks if the request passed the service gate
func IsAuthenticated(c *gin.Context) bool {
	_, exists := c.Get(ContextKeyAuthenticated)
	return exists
}
