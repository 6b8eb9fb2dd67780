// Package gateway accepts signaling connections, assigns their identity,
// and applies the router's fanout policy to everything they send.
package gateway

import (
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/MentalFish/huddle/internal/protocol"
	"github.com/MentalFish/huddle/internal/ratelimit"
	"github.com/MentalFish/huddle/internal/registry"
	"github.com/MentalFish/huddle/internal/router"
)

// Member is a room participant as the hub sees it. *Conn is the production
// implementation; tests substitute fakes.
type Member interface {
	registry.Conn
	AllowBroadcast() bool
	CloseSend()
}

type inboundMessage struct {
	conn Member
	msg  *protocol.Message
}

// Hub owns all join/leave transitions and message fanout. A single Run
// goroutine processes every mutation, which serializes registry writes
// against fanout reads.
type Hub struct {
	reg *registry.Registry
	log *slog.Logger

	// broadcastRate caps collaborative-state messages per connection per
	// second.
	broadcastRate int64

	register   chan Member
	unregister chan Member
	inbound    chan inboundMessage
	done       chan struct{}
}

func NewHub(reg *registry.Registry, log *slog.Logger, broadcastRate int) *Hub {
	if log == nil {
		log = slog.Default()
	}
	return &Hub{
		reg:           reg,
		log:           log,
		broadcastRate: int64(broadcastRate),
		register:      make(chan Member),
		unregister:    make(chan Member),
		inbound:       make(chan inboundMessage),
		done:          make(chan struct{}),
	}
}

// Run starts the hub's processing loop. It returns when Stop is called.
func (h *Hub) Run() {
	for {
		select {
		case m := <-h.register:
			h.handleJoin(m)
		case m := <-h.unregister:
			h.handleLeave(m)
		case in := <-h.inbound:
			h.handleInbound(in.conn, in.msg)
		case <-h.done:
			return
		}
	}
}

// Stop terminates the Run loop.
func (h *Hub) Stop() {
	close(h.done)
}

// HandleConn adopts a freshly upgraded websocket: assigns a connection id,
// joins the room and starts the connection's pumps. userID is the
// externally validated identity, empty for anonymous participants.
func (h *Hub) HandleConn(ws *websocket.Conn, roomID, userID string) {
	conn := &Conn{
		hub:       h,
		ws:        ws,
		log:       h.log,
		id:        uuid.New().String(),
		roomID:    roomID,
		userID:    userID,
		createdAt: time.Now(),
		send:      make(chan *protocol.Message, sendBuffer),
		limiter:   ratelimit.NewTokenBucket(nil, h.broadcastRate, h.broadcastRate),
	}

	h.register <- conn

	go conn.writePump()
	go conn.readPump()
}

// handleJoin adds m to its room, greets it with the current member list and
// announces it to everyone already present.
func (h *Hub) handleJoin(m Member) {
	existing := h.reg.Members(m.RoomID())
	h.reg.Add(m)

	if err := m.Send(protocol.NewRoomMembers(m.ID(), existing)); err != nil {
		h.log.Warn("dropped room-members greeting", "conn", m.ID(), "err", err)
	}

	h.deliver(m.RoomID(), existing, protocol.NewUserJoined(m.ID()))

	h.log.Info("connection joined",
		"room", m.RoomID(), "conn", m.ID(), "user", m.UserID(), "members", len(existing)+1)
}

// handleLeave removes m from its room and announces the departure to the
// remaining members. Duplicate leave events are no-ops, so each departure is
// broadcast exactly once.
func (h *Hub) handleLeave(m Member) {
	found, emptied := h.reg.Remove(m)
	if !found {
		return
	}
	m.CloseSend()

	if !emptied {
		remaining := h.reg.Members(m.RoomID())
		h.deliver(m.RoomID(), remaining, protocol.NewUserLeft(m.ID()))
	}

	h.log.Info("connection left", "room", m.RoomID(), "conn", m.ID(), "roomDiscarded", emptied)
}

// handleInbound applies the fanout policy to one message from m.
func (h *Hub) handleInbound(m Member, msg *protocol.Message) {
	if protocol.IsBroadcast(msg.Type) {
		if !m.AllowBroadcast() {
			// Invisible for avatar moves (last write wins anyway); worth a
			// trace for drawing.
			if msg.Type != protocol.TypeAvatarPosition {
				h.log.Debug("rate limited broadcast", "conn", m.ID(), "type", msg.Type)
			}
			return
		}
		// Stamp the originator so clients cannot impersonate each other.
		msg.UserID = m.ID()
	}

	targets, err := router.Destinations(msg, m.ID(), h.reg.Members(m.RoomID()))
	if err != nil {
		h.log.Warn("dropping message", "conn", m.ID(), "type", msg.Type, "err", err)
		return
	}

	h.deliver(m.RoomID(), targets, msg)
}

func (h *Hub) deliver(roomID string, targets []string, msg *protocol.Message) {
	for _, id := range targets {
		conn := h.reg.Get(roomID, id)
		if conn == nil {
			continue
		}
		if err := conn.Send(msg); err != nil {
			h.log.Warn("dropped outbound message", "conn", id, "type", msg.Type, "err", err)
		}
	}
}
