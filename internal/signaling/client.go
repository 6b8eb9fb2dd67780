// Package signaling provides the client side of the signaling connection:
// a websocket transport and a dispatcher that routes inbound messages to
// typed channels.
package signaling

import (
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/websocket"

	"github.com/MentalFish/huddle/internal/config"
	"github.com/MentalFish/huddle/internal/protocol"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
)

// Transport is the minimal connection surface the rest of the client builds
// on, so sessions and peer managers can run against a fake in tests.
type Transport interface {
	Send(msg *protocol.Message)
	Incoming() <-chan *protocol.Message
	Close()
}

// Client manages the websocket connection to the signaling server.
type Client struct {
	conn         *websocket.Conn
	serverURL    string
	sessionToken string
	incoming     chan *protocol.Message
	outgoing     chan *protocol.Message
	done         chan struct{}
	closed       bool
}

// NewClient creates a signaling client for a room endpoint URL. The session
// token, if any, is presented as the externally issued credential cookie.
func NewClient(serverURL, sessionToken string) *Client {
	return &Client{
		serverURL:    serverURL,
		sessionToken: sessionToken,
		incoming:     make(chan *protocol.Message, 32),
		outgoing:     make(chan *protocol.Message, 32),
		done:         make(chan struct{}, 1),
	}
}

// Connect establishes the websocket connection and starts the pumps.
func (c *Client) Connect() error {
	u, err := url.Parse(c.serverURL)
	if err != nil {
		return fmt.Errorf("invalid server URL: %w", err)
	}

	header := http.Header{}
	if c.sessionToken != "" {
		header.Set("Cookie", config.SessionCookie+"="+c.sessionToken)
	}

	conn, _, err := websocket.DefaultDialer.Dial(u.String(), header)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}

	c.conn = conn
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	go c.readPump()
	go c.writePump()

	return nil
}

// readPump reads messages from the websocket connection.
func (c *Client) readPump() {
	defer func() {
		c.conn.Close()
		close(c.incoming)
	}()

	c.conn.SetReadDeadline(time.Now().Add(pongWait))

	for {
		var msg protocol.Message
		if err := c.conn.ReadJSON(&msg); err != nil {
			return
		}
		c.incoming <- &msg
	}
}

// writePump writes messages to the websocket connection and sends periodic
// pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)

	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg := <-c.outgoing:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(msg); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}
	}
}

// Send queues a message for the server. Messages queued after Close are
// discarded.
func (c *Client) Send(msg *protocol.Message) {
	select {
	case c.outgoing <- msg:
	case <-c.done:
	}
}

// Incoming returns the channel of messages from the server. It is closed
// when the connection drops.
func (c *Client) Incoming() <-chan *protocol.Message {
	return c.incoming
}

// Close shuts the connection down. Safe to call more than once.
func (c *Client) Close() {
	if c.closed {
		return
	}
	c.closed = true
	close(c.done)
}
