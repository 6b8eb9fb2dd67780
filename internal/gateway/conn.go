package gateway

import (
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"

	"github.com/MentalFish/huddle/internal/protocol"
	"github.com/MentalFish/huddle/internal/ratelimit"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer. 64 KB is enough for WebRTC
	// SDP payloads.
	maxMessageSize = 64 * 1024

	// Outbound buffer per connection. A slow reader that falls this far
	// behind starts losing messages rather than stalling the room.
	sendBuffer = 256
)

var errSendBufferFull = errors.New("send buffer full")

// Conn wraps a single websocket connection and its server-side identity.
// It is created at upgrade time and destroyed when the socket closes.
type Conn struct {
	hub *Hub
	ws  *websocket.Conn
	log *slog.Logger

	id        string
	roomID    string
	userID    string
	createdAt time.Time

	send    chan *protocol.Message
	limiter *ratelimit.TokenBucket
}

func (c *Conn) ID() string           { return c.id }
func (c *Conn) RoomID() string       { return c.roomID }
func (c *Conn) UserID() string       { return c.userID }
func (c *Conn) CreatedAt() time.Time { return c.createdAt }

// Send queues msg for delivery without blocking. Messages to a connection
// whose buffer is full are dropped.
func (c *Conn) Send(msg *protocol.Message) error {
	select {
	case c.send <- msg:
		return nil
	default:
		return errSendBufferFull
	}
}

// AllowBroadcast consumes one broadcast-rate token.
func (c *Conn) AllowBroadcast() bool { return c.limiter.Allow() }

// CloseSend stops the write pump. Called exactly once, by the hub, after
// the connection has left its room.
func (c *Conn) CloseSend() { close(c.send) }

// readPump pumps messages from the websocket connection to the hub.
//
// The application runs readPump in a per-connection goroutine and ensures
// there is at most one reader on a connection by executing all reads from
// this goroutine.
func (c *Conn) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.ws.Close()
	}()

	c.ws.SetReadLimit(maxMessageSize)
	c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.log.Warn("read error", "conn", c.id, "err", err)
			}
			return
		}

		// Malformed payloads are dropped, never fatal to the connection.
		var msg protocol.Message
		if err := json.Unmarshal(data, &msg); err != nil {
			c.log.Warn("dropping malformed message", "conn", c.id, "err", err)
			continue
		}

		c.hub.inbound <- inboundMessage{conn: c, msg: &msg}
	}
}

// writePump pumps messages from the hub to the websocket connection and
// sends periodic pings. There is at most one writer per connection.
func (c *Conn) writePump() {
	ticker := time.NewTicker(pingPeriod)

	defer func() {
		ticker.Stop()
		c.ws.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
				c.ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.ws.WriteJSON(msg); err != nil {
				return
			}

		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
