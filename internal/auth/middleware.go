package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"greenfin/portal/portal-backend/internal/config"
)

// Middleware resolves the caller identity from a bearer token. Requests
// without a token fall back to the configured dev identities when allowed.
func Middleware(cfg config.SecurityConfig, logger *zap.Logger) gin.HandlerFunc {
	devUser, _ := uuid.Parse(cfg.DevUserID)
	devCorporate, _ := uuid.Parse(cfg.DevCorporateID)

	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			if !cfg.AllowDevIdentity {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"success": false, "error": "Authentication required"})
				return
			}
			SetIdentity(c, Identity{
				Subject:     "dev",
				UserID:      devUser,
				CorporateID: devCorporate,
				Dev:         true,
			})
			c.Next()
			return
		}

		raw, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || cfg.JWTSecret == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"success": false, "error": "Invalid authorization header"})
			return
		}

		id, err := ParseToken(cfg.JWTSecret, strings.TrimSpace(raw))
		if err != nil {
			logger.Debug("Rejected bearer token", zap.Error(err))
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"success": false, "error": "Invalid or expired token"})
			return
		}

		SetIdentity(c, id)
		c.Next()
	}
}

// RequireUser rejects callers without an investor identity
func RequireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := GetIdentity(c)
		if !ok || !id.IsUser() {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"success": false, "error": "Investor account required"})
			return
		}
		c.Next()
	}
}

// RequireCorporate rejects callers without a corporate identity
func RequireCorporate() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := GetIdentity(c)
		if !ok || !id.IsCorporate() {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"success": false, "error": "Corporate account required"})
			return
		}
		c.Next()
	}
}
