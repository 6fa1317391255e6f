package middleware

import (
	"net/http"
	"strings"

	"lab-registration/internal/domain/user"
	"lab-registration/pkg/logger"

	"github.com/gin-gonic/gin"
)

const principalKey = "principal"

// Authenticate resolves the bearer token into a principal and stores it on the context
func Authenticate(provider user.IdentityProvider) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		credential, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(credential) == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"success": false,
				"message": "Missing bearer token",
			})
			return
		}

		principal, err := provider.Resolve(strings.TrimSpace(credential))
		if err != nil {
			logger.Debug("Rejected bearer token: %v", err)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"success": false,
				"message": "Invalid or expired token",
			})
			return
		}

		c.Set(principalKey, principal)
		c.Next()
	}
}

// RequireAdmin lets only ADMIN principals through
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		principal := CurrentPrincipal(c)
		if principal == nil || !principal.IsAdmin() {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"success": false,
				"message": "Administrator role required",
			})
			return
		}
		c.Next()
	}
}

// CurrentPrincipal returns the principal set by Authenticate, or nil
func CurrentPrincipal(c *gin.Context) *user.Principal {
	v, ok := c.Get(principalKey)
	if !ok {
		return nil
	}
	principal, _ := v.(*user.Principal)
	return principal
}

// SetPrincipal stores p on the context. Used by Authenticate and handler tests.
func SetPrincipal(c *gin.Context, p *user.Principal) {
	c.Set(principalKey, p)
}
