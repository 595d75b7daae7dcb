package auth

import (
	"net/http"
	"strings"
	"time"

	"callflow-platform/pkg/logger"

	"github.com/gin-gonic/gin"
)

// bearer extracts the token from "Authorization: Bearer <token>". The scheme
// is matched case-insensitively.
func bearer(header string) (string, bool) {
	scheme, tok, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	tok = strings.TrimSpace(tok)
	return tok, tok != ""
}

// RequireAccessToken admits requests carrying a valid access token and puts
// the caller's Identity and client IP on the request context. Role checks
// happen later in rbac.
func RequireAccessToken(m *Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		tok, ok := bearer(c.GetHeader("Authorization"))
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}
		claims, err := m.Verify(tok, TokenTypeAccess, time.Now())
		if err != nil {
			logger.FromGin(c).Debug("access token rejected", "err", err)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		ctx := WithIdentity(c.Request.Context(), claims.Identity)
		ctx = WithClientIP(ctx, c.ClientIP())
		ctx = logger.With(ctx, logger.FromGin(c).With("user_id", claims.UserID, "owner_id", claims.OwnerID))
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
