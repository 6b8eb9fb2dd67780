package collab

import (
	"sync"

	"github.com/MentalFish/huddle/internal/protocol"
	"github.com/MentalFish/huddle/internal/ratelimit"
)

// Sender queues a message for the signaling server.
type Sender interface {
	Send(msg *protocol.Message)
}

// Broadcaster applies local collaboration actions to the room: it updates
// the local replicas immediately and broadcasts the matching message, and
// it folds incoming broadcasts from other participants into the same
// replicas. Avatar moves are rate limited at the source so a busy pointer
// cannot flood the room.
type Broadcaster struct {
	mu     sync.Mutex
	selfID string

	send    Sender
	avatars *AvatarBoard
	canvas  *Canvas
	limiter *ratelimit.TokenBucket
}

// NewBroadcaster builds a broadcaster sending through send, publishing at
// most rate avatar updates per second.
func NewBroadcaster(send Sender, rate int, clock ratelimit.Clock) *Broadcaster {
	return &Broadcaster{
		send:    send,
		avatars: NewAvatarBoard(),
		canvas:  NewCanvas(),
		limiter: ratelimit.NewTokenBucket(clock, int64(rate), int64(rate)),
	}
}

// SetSelfID records our connection id, known once the room greeting
// arrives. Used to ignore echoes of our own broadcasts.
func (b *Broadcaster) SetSelfID(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.selfID = id
}

// Avatars exposes the avatar board for rendering.
func (b *Broadcaster) Avatars() *AvatarBoard { return b.avatars }

// Canvas exposes the canvas replica for rendering and brush control.
func (b *Broadcaster) Canvas() *Canvas { return b.canvas }

// MoveSelf updates our avatar position. The local replica always follows
// the pointer; the broadcast is dropped when the rate limit is exhausted,
// so remote views coarsen under load instead of lagging.
func (b *Broadcaster) MoveSelf(x, y float64) {
	b.mu.Lock()
	selfID := b.selfID
	b.mu.Unlock()

	b.avatars.Set(selfID, Position{X: x, Y: y})
	if !b.limiter.Allow() {
		return
	}
	b.send.Send(&protocol.Message{Type: protocol.TypeAvatarPosition, X: x, Y: y})
}

// Draw appends one stroke with the current brush and broadcasts it.
func (b *Broadcaster) Draw(from, to protocol.Point) {
	b.mu.Lock()
	selfID := b.selfID
	b.mu.Unlock()

	tool, color, width := b.canvas.Brush()
	b.canvas.Append(Stroke{
		UserID: selfID,
		Tool:   tool,
		Color:  color,
		Width:  width,
		From:   from,
		To:     to,
	})
	b.send.Send(&protocol.Message{
		Type:  protocol.TypeCanvasDraw,
		Tool:  tool,
		Color: color,
		Width: width,
		From:  &from,
		To:    &to,
	})
}

// ClearAll wipes the canvas for the whole room.
func (b *Broadcaster) ClearAll() {
	b.canvas.Clear()
	b.send.Send(&protocol.Message{Type: protocol.TypeCanvasClear})
}

// HandleCollab folds one incoming broadcast into the local replicas. The
// server stamps UserID with the originator and never echoes a broadcast
// back to its sender; the self check guards against a misbehaving relay.
func (b *Broadcaster) HandleCollab(msg *protocol.Message) {
	b.mu.Lock()
	selfID := b.selfID
	b.mu.Unlock()

	if msg.UserID == "" || msg.UserID == selfID {
		return
	}

	switch msg.Type {
	case protocol.TypeAvatarPosition:
		b.avatars.Set(msg.UserID, Position{X: msg.X, Y: msg.Y})

	case protocol.TypeCanvasDraw:
		if msg.From == nil || msg.To == nil {
			return
		}
		b.canvas.Append(Stroke{
			UserID: msg.UserID,
			Tool:   msg.Tool,
			Color:  msg.Color,
			Width:  msg.Width,
			From:   *msg.From,
			To:     *msg.To,
		})

	case protocol.TypeCanvasClear:
		b.canvas.Clear()
	}
}

// HandlePeerLeft drops the departed participant's avatar. Their strokes
// stay on the canvas.
func (b *Broadcaster) HandlePeerLeft(userID string) {
	b.avatars.Remove(userID)
}
