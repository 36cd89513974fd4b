package location

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"courier-dispatch/internal/pkg/apperrors"
)

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

// Latest serves the cached fix for a restaurant's own order, for clients that
// reconnect and need a position before the next live update arrives.
func (h *Handler) Latest(c *gin.Context) {
	orderID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{"code": "VALIDATION", "message": "invalid order id"}})
		return
	}

	evt, err := h.service.Latest(c.Request.Context(), c.GetString("sub"), orderID)
	if err != nil {
		apperrors.ToHTTPError(c, err)
		return
	}
	c.JSON(http.StatusOK, evt)
}
