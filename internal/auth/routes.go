package auth

import "github.com/gin-gonic/gin"

// RegisterRoutes registers Auth routes
func RegisterRoutes(r *gin.RouterGroup, handler *Handler) {
	authGroup := r.Group("/auth")
	{
		authGroup.GET("/me", handler.Me)
		if handler.cfg.AllowDevIdentity && handler.cfg.JWTSecret != "" {
			authGroup.POST("/dev-token", handler.DevToken)
		}
	}
}
