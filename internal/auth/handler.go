package auth

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"greenfin/portal/portal-backend/internal/config"
)

type Handler struct {
	cfg config.SecurityConfig
}

func NewHandler(cfg config.SecurityConfig) *Handler {
	return &Handler{cfg: cfg}
}

// Me returns the resolved caller identity
func (h *Handler) Me(c *gin.Context) {
	id, ok := GetIdentity(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"success": false, "error": "Authentication required"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": id})
}

// DevToken signs a short-lived token for local testing. Only mounted when dev
// identities are allowed.
func (h *Handler) DevToken(c *gin.Context) {
	var req struct {
		UserID      string `json:"userId"`
		CorporateID string `json:"corporateId"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
		return
	}

	id := Identity{Subject: "dev-token"}
	if req.UserID != "" {
		uid, err := uuid.Parse(req.UserID)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid userId"})
			return
		}
		id.UserID = uid
	}
	if req.CorporateID != "" {
		cid, err := uuid.Parse(req.CorporateID)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid corporateId"})
			return
		}
		id.CorporateID = cid
	}
	if !id.IsUser() && !id.IsCorporate() {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "userId or corporateId is required"})
		return
	}

	token, err := IssueToken(h.cfg.JWTSecret, id, 24*time.Hour)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "Failed to issue token"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": gin.H{"token": token}})
}
