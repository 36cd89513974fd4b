package gateway

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"courier-dispatch/internal/auth"
	"courier-dispatch/internal/location"
	"courier-dispatch/internal/order"
	"courier-dispatch/internal/ws"
)

const messageTimeout = 5 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Couriers is the presence slice of the courier service.
type Couriers interface {
	SetOnline(ctx context.Context, courierID string) error
	SetOffline(ctx context.Context, courierID string) error
	Heartbeat(ctx context.Context, courierID string) error
}

type Locations interface {
	Ingest(ctx context.Context, courierID string, s location.Sample) error
}

type Orders interface {
	GetByID(ctx context.Context, id uuid.UUID) (*order.Order, error)
	ActiveByCourier(ctx context.Context, courierID string) ([]*order.Order, error)
	ActiveByRestaurant(ctx context.Context, restaurantID string) ([]*order.Order, error)
}

// Gateway owns the WebSocket endpoint: upgrading connections, routing client
// messages to the domain services and keeping room membership tied to the
// identity in the token.
type Gateway struct {
	hub       *ws.Hub
	couriers  Couriers
	locations Locations
	orders    Orders
}

func New(hub *ws.Hub, couriers Couriers, locations Locations, orders Orders) *Gateway {
	return &Gateway{hub: hub, couriers: couriers, locations: locations, orders: orders}
}

// Serve upgrades the request and runs the connection until it dies. The auth
// middleware has already validated the token, so Sub and Role are trusted.
func (g *Gateway) Serve(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", "error", err)
		return
	}

	client := ws.NewClient(conn, c.GetString("sub"), c.GetString("role"))

	go client.WritePump()
	client.ReadPump(func(frame []byte) {
		g.route(client, frame)
	})

	g.hub.Disconnect(client)
	client.Close()
	if client.Role == auth.RoleCourier {
		ctx, cancel := context.WithTimeout(context.Background(), messageTimeout)
		defer cancel()
		if err := g.couriers.SetOffline(ctx, client.Sub); err != nil {
			slog.Warn("offline on disconnect failed", "courier_id", client.Sub, "error", err)
		}
	}
}

func (g *Gateway) route(client *ws.Client, frame []byte) {
	var env ws.Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		slog.Debug("unreadable frame", "sub", client.Sub)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), messageTimeout)
	defer cancel()

	switch env.Event {
	case ws.MsgJoinCourierRoom:
		if client.Role != auth.RoleCourier {
			return
		}
		g.hub.Join(client, ws.CourierRoom(client.Sub))
		g.hub.Join(client, ws.RoomCouriers)

	case ws.MsgJoinRestaurantRoom:
		if client.Role != auth.RoleRestaurant {
			return
		}
		g.hub.Join(client, ws.RestaurantRoom(client.Sub))

	case ws.MsgJoinRoom:
		g.joinNamed(client, env.Data)

	case ws.MsgCourierOnline:
		if client.Role != auth.RoleCourier {
			return
		}
		if err := g.couriers.SetOnline(ctx, client.Sub); err != nil {
			slog.Warn("set online failed", "courier_id", client.Sub, "error", err)
		}

	case ws.MsgCourierOffline:
		if client.Role != auth.RoleCourier {
			return
		}
		if err := g.couriers.SetOffline(ctx, client.Sub); err != nil {
			slog.Warn("set offline failed", "courier_id", client.Sub, "error", err)
		}

	case ws.MsgCourierHeartbeat:
		if client.Role != auth.RoleCourier {
			return
		}
		if err := g.couriers.Heartbeat(ctx, client.Sub); err != nil {
			slog.Warn("heartbeat failed", "courier_id", client.Sub, "error", err)
		}

	case ws.MsgLocationUpdate:
		if client.Role != auth.RoleCourier {
			return
		}
		var sample location.Sample
		if err := json.Unmarshal(env.Data, &sample); err != nil {
			return
		}
		if err := g.locations.Ingest(ctx, client.Sub, sample); err != nil {
			slog.Debug("location ingest rejected", "courier_id", client.Sub, "error", err)
		}

	case ws.MsgOrderStatusUpdate:
		g.rebroadcast(ctx, env.Data)

	case ws.MsgRequestActiveOrders:
		g.sendActiveOrders(ctx, client)

	default:
		slog.Debug("unknown client event", "event", env.Event, "sub", client.Sub)
	}
}

// sendActiveOrders replies with the reconnection snapshot for the identity in
// the token: a courier gets its own workload, a restaurant its live orders.
func (g *Gateway) sendActiveOrders(ctx context.Context, client *ws.Client) {
	var (
		orders []*order.Order
		err    error
	)
	switch client.Role {
	case auth.RoleCourier:
		orders, err = g.orders.ActiveByCourier(ctx, client.Sub)
	case auth.RoleRestaurant:
		orders, err = g.orders.ActiveByRestaurant(ctx, client.Sub)
	default:
		return
	}
	if err != nil {
		slog.Warn("active orders snapshot failed", "sub", client.Sub, "role", client.Role, "error", err)
		return
	}
	client.Send(ws.EventActiveOrders, order.OrdersResponse{Orders: orders})
}

// joinNamed lets a client join a room by name, but only a room its identity
// already entitles it to.
func (g *Gateway) joinNamed(client *ws.Client, data json.RawMessage) {
	var req struct {
		Room string `json:"room"`
	}
	if err := json.Unmarshal(data, &req); err != nil {
		return
	}

	allowed := false
	switch client.Role {
	case auth.RoleCourier:
		allowed = req.Room == ws.RoomCouriers || req.Room == ws.CourierRoom(client.Sub)
	case auth.RoleRestaurant:
		allowed = req.Room == ws.RestaurantRoom(client.Sub)
	}
	if !allowed {
		slog.Warn("room join denied", "sub", client.Sub, "role", client.Role, "room", req.Room)
		return
	}
	g.hub.Join(client, req.Room)
}

// rebroadcast handles the client-echoed status event. The client's claim is
// only a hint: the store is re-read and whatever it says is what goes out.
func (g *Gateway) rebroadcast(ctx context.Context, data json.RawMessage) {
	var req struct {
		OrderID string `json:"order_id"`
	}
	if err := json.Unmarshal(data, &req); err != nil {
		return
	}
	id, err := uuid.Parse(req.OrderID)
	if err != nil {
		return
	}

	o, err := g.orders.GetByID(ctx, id)
	if err != nil {
		return
	}
	g.hub.Publish(ws.RestaurantRoom(o.RestaurantID), ws.EventOrderStatusUpdate, order.StatusEvent{
		OrderID:      o.ID.String(),
		RestaurantID: o.RestaurantID,
		Status:       o.Status,
		CourierID:    o.CourierID,
	})
}
