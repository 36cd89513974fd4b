package ws

import "fmt"

// Server -> client event names. Delivery is at-least-once; clients
// de-duplicate by order id + event where it matters.
const (
	EventNewOrder               = "newOrder"
	EventOrderStatusUpdate      = "orderStatusUpdate"
	EventOrderAccepted          = "orderAccepted"
	EventOrderCancelled         = "orderCancelled"
	EventOrderAcceptanceEnabled = "orderAcceptanceEnabled"
	EventOrderAutoDeleted       = "orderAutoDeleted"
	EventDeliveryOverdue        = "deliveryOverdue"
	EventOrderDelivered         = "orderDelivered"
	EventOrderApproved          = "orderApproved"
	EventLocationUpdate         = "locationUpdate"
	EventTrackingEnded          = "trackingEnded"
	EventActiveOrders           = "activeOrders"
)

// Client -> server message names.
const (
	MsgJoinCourierRoom     = "joinCourierRoom"
	MsgJoinRestaurantRoom  = "joinRestaurantRoom"
	MsgJoinRoom            = "joinRoom"
	MsgCourierOnline       = "courierOnline"
	MsgCourierOffline      = "courierOffline"
	MsgCourierHeartbeat    = "courierHeartbeat"
	MsgLocationUpdate      = "locationUpdate"
	MsgOrderStatusUpdate   = "orderStatusUpdate"
	MsgRequestActiveOrders = "requestActiveOrders"
)

// RoomCouriers is the broadcast room every connected courier sits in.
const RoomCouriers = "couriers"

func CourierRoom(courierID string) string {
	return fmt.Sprintf("courier:%s", courierID)
}

func RestaurantRoom(restaurantID string) string {
	return fmt.Sprintf("restaurant:%s", restaurantID)
}
