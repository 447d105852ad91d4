package mw

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"factory-floor-backend/internal/auth"
)

const claimsContextKey = "auth_claims"

// Authenticate verifies the bearer token and stores its claims on the gin
// context for handlers and later middleware.
func Authenticate(verifier *auth.Verifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerFromHeader(c.GetHeader("Authorization"))
		claims, err := verifier.Verify(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": gin.H{"code": auth.CodeUnauthorized, "message": "invalid or missing credentials"},
			})
			return
		}
		c.Set(claimsContextKey, claims)
		c.Next()
	}
}

// RequireRole gates a route on a minimum role. It must run after Authenticate.
func RequireRole(required string) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := Claims(c)
		if claims == nil || !auth.RoleAtLeast(claims.Role, required) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error": gin.H{"code": auth.CodeForbidden, "message": "insufficient role"},
			})
			return
		}
		c.Next()
	}
}

// Claims returns the verified claims stored by Authenticate, or nil on an
// unauthenticated request.
func Claims(c *gin.Context) *auth.Claims {
	v, ok := c.Get(claimsContextKey)
	if !ok {
		return nil
	}
	claims, _ := v.(*auth.Claims)
	return claims
}

func bearerFromHeader(header string) string {
	const prefix = "Bearer "
	if strings.HasPrefix(header, prefix) {
		return strings.TrimSpace(header[len(prefix):])
	}
	return ""
}
