package greencredits

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"greenfin/portal/portal-backend/internal/auth"
	"greenfin/portal/portal-backend/internal/invoice"
)

type Handler struct {
	service        Service
	maxUploadBytes int64
	logger         *zap.Logger
}

func NewHandler(service Service, maxUploadBytes int64, logger *zap.Logger) *Handler {
	if maxUploadBytes <= 0 {
		maxUploadBytes = 10 << 20
	}
	return &Handler{service: service, maxUploadBytes: maxUploadBytes, logger: logger}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	credits := rg.Group("/green-credits", auth.RequireUser())
	{
		credits.GET("", h.GetBalance)
		credits.POST("/earn", h.Earn)
		credits.POST("/claim", h.SubmitClaim)
		credits.GET("/claims", h.ListClaims)
		credits.GET("/claims/:id", h.GetClaim)
		credits.GET("/claims/:id/receipt", h.Receipt)
	}
}

func (h *Handler) SubmitClaim(c *gin.Context) {
	identity, _ := auth.GetIdentity(c)

	req := ClaimRequest{
		ProductName:  c.PostForm("productName"),
		ProductPrice: c.PostForm("productPrice"),
	}

	if fh, err := c.FormFile("file"); err == nil && fh.Size > 0 {
		if fh.Size > h.maxUploadBytes {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Invoice file is too large"})
			return
		}
		f, err := fh.Open()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Could not read uploaded file"})
			return
		}
		data, err := io.ReadAll(io.LimitReader(f, h.maxUploadBytes))
		f.Close()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Could not read uploaded file"})
			return
		}
		req.File = &invoice.File{
			Name:        fh.Filename,
			ContentType: fh.Header.Get("Content-Type"),
			Data:        data,
		}
	}

	result, err := h.service.SubmitClaim(c.Request.Context(), identity, req)
	if err != nil {
		h.writeError(c, err, "Failed to process claim")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": result})
}

func (h *Handler) GetBalance(c *gin.Context) {
	identity, _ := auth.GetIdentity(c)
	balance, err := h.service.GetBalance(c.Request.Context(), identity)
	if err != nil {
		h.writeError(c, err, "Failed to fetch balance")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": balance})
}

func (h *Handler) Earn(c *gin.Context) {
	var req EarnRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": msgInvalidEarn})
		return
	}
	identity, _ := auth.GetIdentity(c)
	result, err := h.service.Earn(c.Request.Context(), identity, req)
	if err != nil {
		h.writeError(c, err, "Failed to credit green credits")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": result})
}

func (h *Handler) ListClaims(c *gin.Context) {
	identity, _ := auth.GetIdentity(c)
	claims, err := h.service.ListClaims(c.Request.Context(), identity)
	if err != nil {
		h.writeError(c, err, "Failed to fetch claims")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": claims})
}

func (h *Handler) GetClaim(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Invalid claim ID"})
		return
	}
	identity, _ := auth.GetIdentity(c)
	claim, err := h.service.GetClaim(c.Request.Context(), identity, id)
	if err != nil {
		h.writeError(c, err, "Failed to fetch claim")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": claim})
}

func (h *Handler) Receipt(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Invalid claim ID"})
		return
	}
	identity, _ := auth.GetIdentity(c)
	pdf, err := h.service.Receipt(c.Request.Context(), identity, id)
	if err != nil {
		h.writeError(c, err, "Failed to generate receipt")
		return
	}
	c.Header("Content-Disposition", "attachment; filename=claim-"+id.String()+".pdf")
	c.Data(http.StatusOK, "application/pdf", pdf)
}

func (h *Handler) writeError(c *gin.Context, err error, fallback string) {
	var verr *ValidationError
	switch {
	case errors.As(err, &verr):
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": verr.Message})
	case errors.Is(err, ErrNoCredits):
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "No green credits available"})
	case errors.Is(err, ErrUserNotFound):
		c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "User not found"})
	case errors.Is(err, ErrClaimNotFound):
		c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "Claim not found"})
	case errors.Is(err, ErrClaimPending):
		c.JSON(http.StatusConflict, gin.H{"success": false, "error": "Claim has not been processed yet"})
	default:
		h.logger.Error(fallback, zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": fallback})
	}
}
