package courier

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"courier-dispatch/internal/pkg/apperrors"
)

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

// Heartbeat is the HTTP fallback for couriers whose WebSocket is down;
// the WS gateway refreshes the same flag.
func (h *Handler) Heartbeat(c *gin.Context) {
	courierID := c.GetString("sub")
	if err := h.service.Heartbeat(c.Request.Context(), courierID); err != nil {
		apperrors.ToHTTPError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "online"})
}

func (h *Handler) GoOffline(c *gin.Context) {
	courierID := c.GetString("sub")
	if err := h.service.SetOffline(c.Request.Context(), courierID); err != nil {
		apperrors.ToHTTPError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "offline"})
}

// -------------------------------------------------------------------------------------------------
// Admin endpoints.

type blockRequest struct {
	Blocked bool `json:"blocked"`
}

func (h *Handler) SetBlocked(c *gin.Context) {
	var req blockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{"code": "VALIDATION", "message": err.Error()}})
		return
	}
	if err := h.service.SetBlocked(c.Request.Context(), c.Param("id"), req.Blocked); err != nil {
		apperrors.ToHTTPError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"blocked": req.Blocked})
}

type limitRequest struct {
	PackageLimit int `json:"package_limit" binding:"required"`
}

func (h *Handler) SetPackageLimit(c *gin.Context) {
	var req limitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{"code": "VALIDATION", "message": err.Error()}})
		return
	}
	if err := h.service.SetPackageLimit(c.Request.Context(), c.Param("id"), req.PackageLimit); err != nil {
		apperrors.ToHTTPError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"package_limit": req.PackageLimit})
}
