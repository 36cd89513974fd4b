package auth

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	authService Service
}

func NewHandler(authService Service) *Handler {
	return &Handler{authService: authService}
}

func (h *Handler) GenerateToken(c *gin.Context) {
	subject := c.PostForm("subject")
	role := c.PostForm("role")
	if subject == "" || role == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "subject and role are required"})
		return
	}
	if role != RoleCourier && role != RoleRestaurant && role != RoleAdmin {
		c.JSON(http.StatusBadRequest, gin.H{"error": "role must be courier, restaurant or admin"})
		return
	}

	token, err := h.authService.GenerateToken(subject, role)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"token": token})
}
