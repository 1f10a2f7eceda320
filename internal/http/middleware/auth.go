// README: Firebase bearer-token auth; resolves the caller into a lifecycle actor.
package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"nasta/internal/infra"
	"nasta/internal/modules/order"
	"nasta/internal/types"
)

const (
	ctxKeyUID  = "auth.uid"
	ctxKeyRole = "auth.role"
)

// Auth verifies the Authorization bearer token and stores the caller's UID and
// role claim on the request context. Requests without a valid token get 401.
func Auth(verifier infra.TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing authorization header"})
			return
		}
		raw, ok := strings.CutPrefix(header, "Bearer ")
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authorization must be a bearer token"})
			return
		}
		token, err := verifier.VerifyIDToken(c.Request.Context(), raw)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		c.Set(ctxKeyUID, token.UID)
		c.Set(ctxKeyRole, token.StringClaim("role"))
		// Venue staff act on behalf of their venue; the venue_id claim is the
		// identity the lifecycle engine authorizes against.
		if token.StringClaim("role") == string(order.RoleVenue) {
			if vid := token.StringClaim("venue_id"); vid != "" {
				c.Set(ctxKeyUID, vid)
			}
		}
		c.Next()
	}
}

// TrustedHeaderAuth takes identity from X-User-ID / X-User-Role headers.
// It exists for local development behind no gateway; production wiring uses
// Auth with a real verifier.
func TrustedHeaderAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		uid := c.GetHeader("X-User-ID")
		if uid == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing X-User-ID header"})
			return
		}
		c.Set(ctxKeyUID, uid)
		c.Set(ctxKeyRole, c.GetHeader("X-User-Role"))
		c.Next()
	}
}

// CallerUID returns the authenticated caller's identity, or "" when
// unauthenticated.
func CallerUID(c *gin.Context) string {
	return c.GetString(ctxKeyUID)
}

// CallerRole returns the caller's role claim, or "" when absent.
func CallerRole(c *gin.Context) string {
	return c.GetString(ctxKeyRole)
}

// CallerActor builds the lifecycle actor for the authenticated caller.
// Callers without a role claim default to customer.
func CallerActor(c *gin.Context) order.Actor {
	role := order.Role(CallerRole(c))
	switch role {
	case order.RoleVenue, order.RoleDriver, order.RoleSystem:
	default:
		role = order.RoleCustomer
	}
	return order.Actor{Role: role, ID: types.ID(CallerUID(c))}
}
