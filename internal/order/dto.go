package order

// Coordinates carry no binding tag: zero is a legal value on the equator and
// prime meridian, and range checking happens in the service.
type CreateOrderRequest struct {
	PickupLat              float64 `json:"pickup_lat"`
	PickupLng              float64 `json:"pickup_lng"`
	DropoffLat             float64 `json:"dropoff_lat"`
	DropoffLng             float64 `json:"dropoff_lng"`
	CourierFee             float64 `json:"courier_fee"`
	PaymentMethod          string  `json:"payment_method"`
	PreparationTimeMinutes int     `json:"preparation_time_minutes"`
}

type OrderActionRequest struct {
	OrderID string `json:"order_id" binding:"required"`
}

type OrderResponse struct {
	Order *Order `json:"order"`
}

type OrdersResponse struct {
	Orders []*Order `json:"orders"`
}

// StatusEvent is the payload for newOrder/orderStatusUpdate-family events.
// The full order rides along on newOrder so couriers can render the card
// without a second fetch.
type StatusEvent struct {
	OrderID      string  `json:"order_id"`
	RestaurantID string  `json:"restaurant_id"`
	Status       Status  `json:"status"`
	CourierID    *string `json:"courier_id,omitempty"`
	Order        *Order  `json:"order,omitempty"`
}

type TrackingEvent struct {
	OrderID   string `json:"order_id"`
	CourierID string `json:"courier_id"`
}
