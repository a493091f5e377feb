// README: Bearer-token auth middleware that scopes every request to one tenant.
package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"dispatch/internal/infra"
	"dispatch/internal/types"
)

const (
	ctxCallerUID = "caller_uid"
	ctxTenantID  = "tenant_id"

	// TenantHeader carries the tenant when auth is disabled for local development.
	TenantHeader = "X-Tenant-ID"
)

// Auth verifies the Firebase ID token and stores the caller uid and tenant on the context.
// Tokens without a tenant are refused so no request runs unscoped.
func Auth(verifier infra.TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		raw, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(raw) == "" {
			abort(c, http.StatusUnauthorized, "missing bearer token")
			return
		}
		token, err := verifier.VerifyIDToken(c.Request.Context(), strings.TrimSpace(raw))
		if err != nil {
			abort(c, http.StatusUnauthorized, "invalid token")
			return
		}
		if token.TenantID == "" {
			abort(c, http.StatusForbidden, "token has no tenant")
			return
		}
		c.Set(ctxCallerUID, token.UID)
		c.Set(ctxTenantID, types.ID(token.TenantID))
		c.Next()
	}
}

// DevTenant trusts the X-Tenant-ID header. Only for DISPATCH_AUTH_DISABLED.
func DevTenant() gin.HandlerFunc {
	return func(c *gin.Context) {
		tenant := strings.TrimSpace(c.GetHeader(TenantHeader))
		if tenant == "" {
			abort(c, http.StatusUnauthorized, "missing "+TenantHeader+" header")
			return
		}
		c.Set(ctxCallerUID, "dev")
		c.Set(ctxTenantID, types.ID(tenant))
		c.Next()
	}
}

func CallerUID(c *gin.Context) string {
	return c.GetString(ctxCallerUID)
}

// CallerTenant returns the tenant set by Auth or DevTenant, or "" when neither ran.
func CallerTenant(c *gin.Context) types.ID {
	v, _ := c.Get(ctxTenantID)
	id, _ := v.(types.ID)
	return id
}

func abort(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, gin.H{"error": msg})
}
