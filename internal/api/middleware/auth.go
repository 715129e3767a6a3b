package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/satscex/exchange/internal/domain"
	"github.com/satscex/exchange/internal/service"
)

// ContextKey constants for gin.Context values set by middleware.
const (
	CtxUserID  = "userID"
	CtxIsAdmin = "isAdmin"
)

// ──────────────────────────────────────────────────────────────────────────────
// JWTMiddleware
// ──────────────────────────────────────────────────────────────────────────────

// JWTMiddleware validates the Bearer token in the Authorization header.
// On success it stores userID (uuid.UUID) and isAdmin (bool) in the gin context.
func JWTMiddleware(authSvc *service.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" || !strings.HasPrefix(header, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": domain.ErrUnauthorized.Error(),
			})
			return
		}

		tokenString := strings.TrimPrefix(header, "Bearer ")
		claims, err := authSvc.ParseAccessToken(tokenString)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": domain.ErrTokenInvalid.Error(),
			})
			return
		}

		if claims.TokenType != "access" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "token type must be access",
			})
			return
		}

		userID, err := uuid.Parse(claims.Subject)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": domain.ErrTokenInvalid.Error(),
			})
			return
		}

		c.Set(CtxUserID, userID)
		c.Set(CtxIsAdmin, claims.IsAdmin)
		c.Next()
	}
}

// ──────────────────────────────────────────────────────────────────────────────
// AdminMiddleware
// ──────────────────────────────────────────────────────────────────────────────

// AdminMiddleware rejects any caller whose token was not issued for an
// is_admin user. Must be placed after JWTMiddleware in the chain — gates
// every MM.Deploy/Withdraw/SetConfig/ResolveMarket route.
func AdminMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		isAdmin, _ := c.Get(CtxIsAdmin)
		admin, _ := isAdmin.(bool)
		if !admin {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error": domain.ErrForbidden.Error(),
			})
			return
		}
		c.Next()
	}
}

// ──────────────────────────────────────────────────────────────────────────────
// Helpers — extract auth context values (for use in handlers)
// ──────────────────────────────────────────────────────────────────────────────

// GetUserID retrieves the authenticated user's UUID from the gin context.
// Returns uuid.Nil if the middleware was not applied or the value is missing.
func GetUserID(c *gin.Context) uuid.UUID {
	v, exists := c.Get(CtxUserID)
	if !exists {
		return uuid.Nil
	}
	id, _ := v.(uuid.UUID)
	return id
}

// GetIsAdmin retrieves the authenticated caller's admin flag from the gin context.
func GetIsAdmin(c *gin.Context) bool {
	v, _ := c.Get(CtxIsAdmin)
	admin, _ := v.(bool)
	return admin
}
