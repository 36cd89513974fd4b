package ws

import (
	"encoding/json"
	"testing"
)

func newTestClient(sub, role string) *Client {
	return NewClient(nil, sub, role)
}

func receive(t *testing.T, c *Client) Envelope {
	t.Helper()
	select {
	case frame := <-c.send:
		var env Envelope
		if err := json.Unmarshal(frame, &env); err != nil {
			t.Fatalf("bad frame: %v", err)
		}
		return env
	default:
		t.Fatal("expected a frame, send buffer empty")
		return Envelope{}
	}
}

func assertEmpty(t *testing.T, c *Client) {
	t.Helper()
	select {
	case frame := <-c.send:
		t.Fatalf("unexpected frame: %s", frame)
	default:
	}
}

func TestHub_PublishReachesRoomMembers(t *testing.T) {
	h := NewHub()
	c1 := newTestClient("courier-1", "courier")
	c2 := newTestClient("courier-2", "courier")
	h.Join(c1, RoomCouriers)
	h.Join(c2, RoomCouriers)

	h.Publish(RoomCouriers, EventNewOrder, map[string]string{"order_id": "o-1"})

	for _, c := range []*Client{c1, c2} {
		env := receive(t, c)
		if env.Event != EventNewOrder {
			t.Fatalf("expected %s, got %s", EventNewOrder, env.Event)
		}
	}
}

func TestHub_RoomsAreIsolated(t *testing.T) {
	h := NewHub()
	r1 := newTestClient("rest-1", "restaurant")
	r2 := newTestClient("rest-2", "restaurant")
	h.Join(r1, RestaurantRoom("rest-1"))
	h.Join(r2, RestaurantRoom("rest-2"))

	h.Publish(RestaurantRoom("rest-1"), EventLocationUpdate, map[string]float64{"lat": 24.7, "lng": 46.7})

	env := receive(t, r1)
	if env.Event != EventLocationUpdate {
		t.Fatalf("expected %s, got %s", EventLocationUpdate, env.Event)
	}
	assertEmpty(t, r2)
}

func TestHub_PublishToEmptyRoomIsNoop(t *testing.T) {
	h := NewHub()
	h.Publish(RestaurantRoom("nobody"), EventOrderStatusUpdate, nil)
}

func TestHub_DisconnectLeavesAllRooms(t *testing.T) {
	h := NewHub()
	c := newTestClient("courier-1", "courier")
	h.Join(c, RoomCouriers)
	h.Join(c, CourierRoom("courier-1"))

	h.Disconnect(c)

	if h.RoomSize(RoomCouriers) != 0 {
		t.Fatal("expected couriers room to be empty")
	}
	if h.RoomSize(CourierRoom("courier-1")) != 0 {
		t.Fatal("expected courier room to be empty")
	}

	h.Publish(RoomCouriers, EventNewOrder, nil)
	assertEmpty(t, c)
}

func TestHub_SlowConsumerIsDroppedNotBlocked(t *testing.T) {
	h := NewHub()
	c := newTestClient("courier-1", "courier")
	h.Join(c, RoomCouriers)

	// Fill the send buffer and then some; Publish must never block.
	for i := 0; i < sendBuffer+10; i++ {
		h.Publish(RoomCouriers, EventNewOrder, i)
	}

	if got := len(c.send); got != sendBuffer {
		t.Fatalf("expected full buffer of %d, got %d", sendBuffer, got)
	}
}

func TestClient_SendDirect(t *testing.T) {
	c := newTestClient("courier-1", "courier")
	c.Send(EventActiveOrders, map[string]any{"orders": []string{}})

	env := receive(t, c)
	if env.Event != EventActiveOrders {
		t.Fatalf("expected %s, got %s", EventActiveOrders, env.Event)
	}
}
