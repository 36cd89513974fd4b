package ws

import (
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
	sendBuffer = 64
)

// Client is one WebSocket connection. Sub and Role come from the validated
// token, not from anything the client asserts afterwards.
type Client struct {
	Sub  string
	Role string

	conn *websocket.Conn
	send chan []byte
}

func NewClient(conn *websocket.Conn, sub, role string) *Client {
	return &Client{
		Sub:  sub,
		Role: role,
		conn: conn,
		send: make(chan []byte, sendBuffer),
	}
}

// WritePump owns the connection's write side: queued frames plus periodic
// pings. One writer per connection, so no write-side locking is needed.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// ReadPump reads frames until the connection dies, handing each envelope to
// onMessage. The pong handler keeps extending the read deadline while the
// peer is alive.
func (c *Client) ReadPump(onMessage func([]byte)) {
	defer c.conn.Close()

	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		messageType, message, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}
		onMessage(message)
	}
}

// Send queues one event for this client only, bypassing rooms. Used for
// direct replies such as snapshots. Same slow-consumer policy as Publish.
func (c *Client) Send(event string, payload any) {
	frame, err := encodeFrame(event, payload)
	if err != nil {
		return
	}
	select {
	case c.send <- frame:
	default:
	}
}

// Close shuts the write side; WritePump then closes the connection.
func (c *Client) Close() {
	close(c.send)
}
