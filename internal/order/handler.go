package order

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"courier-dispatch/internal/common"
	"courier-dispatch/internal/pkg/apperrors"
)

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

// -------------------------------------------------------------------------------------------------
func (h *Handler) CreateOrder(c *gin.Context) {
	var req CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{"code": "VALIDATION", "message": err.Error()}})
		return
	}

	o, err := h.service.Create(c.Request.Context(), CreateSpec{
		RestaurantID:           c.GetString("sub"),
		PickupLat:              req.PickupLat,
		PickupLng:              req.PickupLng,
		DropoffLat:             req.DropoffLat,
		DropoffLng:             req.DropoffLng,
		CourierFee:             req.CourierFee,
		PaymentMethod:          req.PaymentMethod,
		PreparationTimeMinutes: req.PreparationTimeMinutes,
	})
	if err != nil {
		apperrors.ToHTTPError(c, err)
		return
	}
	c.JSON(http.StatusCreated, OrderResponse{Order: o})
}

// -------------------------------------------------------------------------------------------------
func (h *Handler) Deliver(c *gin.Context) {
	id, ok := bindOrderID(c)
	if !ok {
		return
	}
	o, err := h.service.Deliver(c.Request.Context(), id, c.GetString("sub"))
	if err != nil {
		apperrors.ToHTTPError(c, err)
		return
	}
	c.JSON(http.StatusOK, OrderResponse{Order: o})
}

// -------------------------------------------------------------------------------------------------
func (h *Handler) RequestApproval(c *gin.Context) {
	id, ok := bindOrderID(c)
	if !ok {
		return
	}
	o, err := h.service.RequestApproval(c.Request.Context(), id, c.GetString("sub"))
	if err != nil {
		apperrors.ToHTTPError(c, err)
		return
	}
	c.JSON(http.StatusOK, OrderResponse{Order: o})
}

// -------------------------------------------------------------------------------------------------
func (h *Handler) Approve(c *gin.Context) {
	id, ok := bindOrderID(c)
	if !ok {
		return
	}
	o, err := h.service.Approve(c.Request.Context(), id, c.GetString("sub"))
	if err != nil {
		apperrors.ToHTTPError(c, err)
		return
	}
	c.JSON(http.StatusOK, OrderResponse{Order: o})
}

// -------------------------------------------------------------------------------------------------
func (h *Handler) Cancel(c *gin.Context) {
	id, ok := bindOrderID(c)
	if !ok {
		return
	}
	o, err := h.service.Cancel(c.Request.Context(), id, c.GetString("sub"))
	if err != nil {
		apperrors.ToHTTPError(c, err)
		return
	}
	c.JSON(http.StatusOK, OrderResponse{Order: o})
}

// -------------------------------------------------------------------------------------------------
func (h *Handler) ActiveByCourier(c *gin.Context) {
	orders, err := h.service.ActiveByCourier(c.Request.Context(), c.Param("id"))
	if err != nil {
		apperrors.ToHTTPError(c, err)
		return
	}
	c.JSON(http.StatusOK, OrdersResponse{Orders: orders})
}

// -------------------------------------------------------------------------------------------------
// OpenWithPreferences lists waiting orders past their lockout, filtered by
// the courier's stated preferences. Anything beyond fee and pickup distance
// is the eligibility service's problem, not ours.
func (h *Handler) OpenWithPreferences(c *gin.Context) {
	var prefs Preferences

	if v := c.Query("min_fee"); v != "" {
		fee, err := strconv.ParseFloat(v, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{"code": "VALIDATION", "message": "invalid min_fee"}})
			return
		}
		prefs.MinFee = &fee
	}
	if v := c.Query("max_distance_km"); v != "" {
		dist, err := strconv.ParseFloat(v, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{"code": "VALIDATION", "message": "invalid max_distance_km"}})
			return
		}
		lat, latErr := strconv.ParseFloat(c.Query("lat"), 64)
		lng, lngErr := strconv.ParseFloat(c.Query("lng"), 64)
		if latErr != nil || lngErr != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{"code": "VALIDATION", "message": "max_distance_km requires lat and lng"}})
			return
		}
		from := common.NewLocation(lat, lng)
		prefs.MaxDistanceKM = &dist
		prefs.From = &from
	}

	orders, err := h.service.OpenForAcceptance(c.Request.Context(), prefs)
	if err != nil {
		apperrors.ToHTTPError(c, err)
		return
	}
	c.JSON(http.StatusOK, OrdersResponse{Orders: orders})
}

// -------------------------------------------------------------------------------------------------
func (h *Handler) PendingApprovalByCourier(c *gin.Context) {
	orders, err := h.service.PendingApprovalByCourier(c.Request.Context(), c.Param("id"))
	if err != nil {
		apperrors.ToHTTPError(c, err)
		return
	}
	c.JSON(http.StatusOK, OrdersResponse{Orders: orders})
}

// -------------------------------------------------------------------------------------------------
func (h *Handler) PendingApprovalByRestaurant(c *gin.Context) {
	orders, err := h.service.PendingApprovalByRestaurant(c.Request.Context(), c.Param("id"))
	if err != nil {
		apperrors.ToHTTPError(c, err)
		return
	}
	c.JSON(http.StatusOK, OrdersResponse{Orders: orders})
}

// -------------------------------------------------------------------------------------------------
func (h *Handler) ActiveByRestaurant(c *gin.Context) {
	orders, err := h.service.ActiveByRestaurant(c.Request.Context(), c.Param("id"))
	if err != nil {
		apperrors.ToHTTPError(c, err)
		return
	}
	c.JSON(http.StatusOK, OrdersResponse{Orders: orders})
}

func bindOrderID(c *gin.Context) (uuid.UUID, bool) {
	var req OrderActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{"code": "VALIDATION", "message": err.Error()}})
		return uuid.Nil, false
	}
	id, err := uuid.Parse(req.OrderID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{"code": "VALIDATION", "message": "invalid order id"}})
		return uuid.Nil, false
	}
	return id, true
}
