package rbac

import (
	"net/http"

	"callflow-platform/internal/auth"
	"callflow-platform/pkg/logger"

	"github.com/gin-gonic/gin"
)

// RequireOwner rejects requests whose identity has no owner (tenant).
func RequireOwner() gin.HandlerFunc {
	return func(c *gin.Context) {
		if oid, err := auth.OwnerID(c.Request.Context()); err != nil || oid == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "owner_id required"})
			return
		}
		c.Next()
	}
}

// Require admits callers whose role grants p.
func Require(p Permission) gin.HandlerFunc {
	return func(c *gin.Context) {
		role, err := auth.Role(c.Request.Context())
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "role required"})
			return
		}
		if !Can(role, p) {
			logger.FromGin(c).Info("permission denied", "role", role, "permission", p)
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden", "permission": p})
			return
		}
		c.Next()
	}
}
