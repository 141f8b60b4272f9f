package csr

import (
	"bytes"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"greenfin/portal/portal-backend/internal/auth"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// LiveFeed upgrades a dashboard connection onto the redemption stream
type LiveFeed interface {
	ServeWS(w http.ResponseWriter, r *http.Request, corporateID uuid.UUID) error
}

type Handler struct {
	service Service
	live    LiveFeed
	logger  *zap.Logger
}

func NewHandler(service Service, live LiveFeed, logger *zap.Logger) *Handler {
	return &Handler{service: service, live: live, logger: logger}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	funds := rg.Group("/csr-funds", auth.RequireCorporate())
	{
		funds.GET("", h.List)
		funds.POST("", h.Allocate)
		funds.PATCH("/:id/status", h.SetStatus)
		funds.GET("/stats", h.Stats)
		funds.GET("/redemptions", h.Redemptions)
		funds.GET("/redemptions/export", h.ExportRedemptions)
		if h.live != nil {
			funds.GET("/live", h.Live)
		}
	}
}

func (h *Handler) List(c *gin.Context) {
	identity, _ := auth.GetIdentity(c)
	fundings, err := h.service.List(c.Request.Context(), identity)
	if err != nil {
		h.writeError(c, err, "Failed to fetch CSR funds")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": fundings})
}

func (h *Handler) Allocate(c *gin.Context) {
	var req AllocateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Total amount must be greater than 0"})
		return
	}
	identity, _ := auth.GetIdentity(c)
	funding, err := h.service.Allocate(c.Request.Context(), identity, req)
	if err != nil {
		h.writeError(c, err, "Failed to create CSR allocation")
		return
	}
	c.JSON(http.StatusCreated, gin.H{"success": true, "data": funding})
}

func (h *Handler) SetStatus(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Invalid funding ID"})
		return
	}
	var req StatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Status must be ACTIVE or PAUSED"})
		return
	}
	identity, _ := auth.GetIdentity(c)
	funding, err := h.service.SetStatus(c.Request.Context(), identity, id, req.Status)
	if err != nil {
		h.writeError(c, err, "Failed to update CSR funding")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": funding})
}

func (h *Handler) Stats(c *gin.Context) {
	identity, _ := auth.GetIdentity(c)
	stats, err := h.service.Stats(c.Request.Context(), identity)
	if err != nil {
		h.writeError(c, err, "Failed to fetch CSR stats")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": stats})
}

func (h *Handler) Redemptions(c *gin.Context) {
	identity, _ := auth.GetIdentity(c)
	redemptions, err := h.service.Redemptions(c.Request.Context(), identity)
	if err != nil {
		h.writeError(c, err, "Failed to fetch redemptions")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": redemptions})
}

func (h *Handler) ExportRedemptions(c *gin.Context) {
	format := ExportFormat(c.DefaultQuery("format", string(FormatXLSX)))
	identity, _ := auth.GetIdentity(c)
	var buf bytes.Buffer
	if err := h.service.ExportRedemptions(c.Request.Context(), identity, format, &buf); err != nil {
		h.writeError(c, err, "Failed to export redemptions")
		return
	}
	contentType := xlsxContentType
	if format == FormatCSV {
		contentType = "text/csv"
	}
	name := "redemptions-" + time.Now().UTC().Format("20060102") + "." + string(format)
	c.Header("Content-Disposition", "attachment; filename="+name)
	c.Data(http.StatusOK, contentType, buf.Bytes())
}

func (h *Handler) Live(c *gin.Context) {
	identity, _ := auth.GetIdentity(c)
	if err := h.live.ServeWS(c.Writer, c.Request, identity.CorporateID); err != nil {
		// the upgrader has already written the HTTP error
		h.logger.Warn("Live feed upgrade failed", zap.Error(err))
	}
}

func (h *Handler) writeError(c *gin.Context, err error, fallback string) {
	switch {
	case errors.Is(err, ErrInvalidAmount):
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Total amount must be greater than 0"})
	case errors.Is(err, ErrInvalidStatus):
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Status must be ACTIVE or PAUSED"})
	case errors.Is(err, ErrStatusTransition):
		c.JSON(http.StatusConflict, gin.H{"success": false, "error": "CSR funding cannot move to that status"})
	case errors.Is(err, ErrFundingNotFound):
		c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "CSR funding not found"})
	case errors.Is(err, ErrUnsupportedFormat):
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Format must be xlsx or csv"})
	case errors.Is(err, ErrCorporateRequired):
		c.JSON(http.StatusForbidden, gin.H{"success": false, "error": "Corporate account required"})
	default:
		h.logger.Error(fallback, zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": fallback})
	}
}
