package dispatch

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"courier-dispatch/internal/pkg/apperrors"
)

type Handler struct {
	resolver Resolver
}

func NewHandler(resolver Resolver) *Handler {
	return &Handler{resolver: resolver}
}

// AcceptOrders resolves a courier's accept-attempt for one or more orders.
// The response always carries both lists; a 200 with an empty accepted list
// just means every order was gone by the time this courier got there.
func (h *Handler) AcceptOrders(c *gin.Context) {
	var req AcceptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{"code": "VALIDATION", "message": err.Error()}})
		return
	}

	result, err := h.resolver.Accept(c.Request.Context(), c.GetString("sub"), req.OrderIDs)
	if err != nil {
		apperrors.ToHTTPError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}
