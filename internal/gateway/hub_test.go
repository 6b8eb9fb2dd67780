package gateway

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MentalFish/huddle/internal/protocol"
	"github.com/MentalFish/huddle/internal/registry"
)

type fakeMember struct {
	id        string
	room      string
	user      string
	received  []*protocol.Message
	sendErr   error
	closed    bool
	broadcast bool // AllowBroadcast result
}

func newFakeMember(id, room string) *fakeMember {
	return &fakeMember{id: id, room: room, broadcast: true}
}

func (f *fakeMember) ID() string           { return f.id }
func (f *fakeMember) RoomID() string       { return f.room }
func (f *fakeMember) UserID() string       { return f.user }
func (f *fakeMember) CreatedAt() time.Time { return time.Time{} }
func (f *fakeMember) AllowBroadcast() bool { return f.broadcast }
func (f *fakeMember) CloseSend()           { f.closed = true }

func (f *fakeMember) Send(msg *protocol.Message) error {
	if f.sendErr != nil {
		return f.sendErr
	}
	f.received = append(f.received, msg)
	return nil
}

func (f *fakeMember) ofType(t string) []*protocol.Message {
	var out []*protocol.Message
	for _, m := range f.received {
		if m.Type == t {
			out = append(out, m)
		}
	}
	return out
}

func newTestHub() *Hub {
	return NewHub(registry.New(), nil, 100)
}

// Scenario: A, B, C join room R1 in order. C is greeted with [A, B]; A and
// B each receive exactly one user-joined for C.
func TestHub_JoinSequence(t *testing.T) {
	h := newTestHub()
	a := newFakeMember("a", "R1")
	b := newFakeMember("b", "R1")
	c := newFakeMember("c", "R1")

	h.handleJoin(a)
	h.handleJoin(b)
	h.handleJoin(c)

	greeting := c.ofType(protocol.TypeRoomMembers)
	require.Len(t, greeting, 1)
	assert.Equal(t, "c", greeting[0].UserID)
	assert.Equal(t, []string{"a", "b"}, greeting[0].Members)

	for _, m := range []*fakeMember{a, b} {
		joined := m.ofType(protocol.TypeUserJoined)
		var forC []*protocol.Message
		for _, msg := range joined {
			if msg.UserID == "c" {
				forC = append(forC, msg)
			}
		}
		assert.Len(t, forC, 1, "member %s", m.id)
	}

	// The joiner never hears about itself.
	assert.Empty(t, c.ofType(protocol.TypeUserJoined))
}

func TestHub_FirstJoinerGetsEmptyMemberList(t *testing.T) {
	h := newTestHub()
	a := newFakeMember("a", "R1")

	h.handleJoin(a)

	greeting := a.ofType(protocol.TypeRoomMembers)
	require.Len(t, greeting, 1)
	assert.Equal(t, []string{}, greeting[0].Members)
}

// Scenario: A sends an offer targeted at C while B is present; only C
// receives it.
func TestHub_TargetedRelay(t *testing.T) {
	h := newTestHub()
	a := newFakeMember("a", "R1")
	b := newFakeMember("b", "R1")
	c := newFakeMember("c", "R1")
	h.handleJoin(a)
	h.handleJoin(b)
	h.handleJoin(c)

	payload := json.RawMessage(`{"sdp":"v=0..."}`)
	h.handleInbound(a, &protocol.Message{Type: protocol.TypeOffer, Target: "c", Payload: payload})

	offers := c.ofType(protocol.TypeOffer)
	require.Len(t, offers, 1)
	assert.Equal(t, payload, offers[0].Payload)
	assert.Empty(t, b.ofType(protocol.TypeOffer))
	assert.Empty(t, a.ofType(protocol.TypeOffer))
}

func TestHub_TargetAlreadyDepartedIsSilentlyDropped(t *testing.T) {
	h := newTestHub()
	a := newFakeMember("a", "R1")
	b := newFakeMember("b", "R1")
	h.handleJoin(a)
	h.handleJoin(b)
	h.handleLeave(b)

	h.handleInbound(a, &protocol.Message{Type: protocol.TypeAnswer, Target: "b"})

	assert.Empty(t, b.ofType(protocol.TypeAnswer))
}

// Scenario: B's socket closes abruptly; A and C each receive exactly one
// user-left for B, and a fresh join no longer sees B.
func TestHub_LeaveNotifiesExactlyOnce(t *testing.T) {
	h := newTestHub()
	a := newFakeMember("a", "R1")
	b := newFakeMember("b", "R1")
	c := newFakeMember("c", "R1")
	h.handleJoin(a)
	h.handleJoin(b)
	h.handleJoin(c)

	h.handleLeave(b)
	// A second leave for the same connection (e.g. pump teardown racing
	// server shutdown) must not produce a duplicate.
	h.handleLeave(b)

	for _, m := range []*fakeMember{a, c} {
		left := m.ofType(protocol.TypeUserLeft)
		require.Len(t, left, 1, "member %s", m.id)
		assert.Equal(t, "b", left[0].UserID)
	}
	assert.True(t, b.closed)

	d := newFakeMember("d", "R1")
	h.handleJoin(d)
	greeting := d.ofType(protocol.TypeRoomMembers)
	require.Len(t, greeting, 1)
	assert.Equal(t, []string{"a", "c"}, greeting[0].Members)
}

func TestHub_LastLeaveDiscardsRoom(t *testing.T) {
	h := newTestHub()
	a := newFakeMember("a", "R1")
	h.handleJoin(a)

	h.handleLeave(a)

	rooms, conns := h.reg.Stats()
	assert.Zero(t, rooms)
	assert.Zero(t, conns)
}

// Scenario: A broadcasts a canvas-draw; B and C receive it, A gets no echo.
func TestHub_BroadcastFanout(t *testing.T) {
	h := newTestHub()
	a := newFakeMember("a", "R1")
	b := newFakeMember("b", "R1")
	c := newFakeMember("c", "R1")
	h.handleJoin(a)
	h.handleJoin(b)
	h.handleJoin(c)

	h.handleInbound(a, &protocol.Message{
		Type:  protocol.TypeCanvasDraw,
		Tool:  "pen",
		Color: "#ff0000",
		From:  &protocol.Point{X: 10, Y: 10},
		To:    &protocol.Point{X: 50, Y: 50},
	})

	for _, m := range []*fakeMember{b, c} {
		draws := m.ofType(protocol.TypeCanvasDraw)
		require.Len(t, draws, 1, "member %s", m.id)
		assert.Equal(t, "#ff0000", draws[0].Color)
		assert.Equal(t, "a", draws[0].UserID)
	}
	assert.Empty(t, a.ofType(protocol.TypeCanvasDraw))
}

func TestHub_BroadcastStampsOriginator(t *testing.T) {
	h := newTestHub()
	a := newFakeMember("a", "R1")
	b := newFakeMember("b", "R1")
	h.handleJoin(a)
	h.handleJoin(b)

	// A claims to be someone else; the hub overwrites the originator.
	h.handleInbound(a, &protocol.Message{Type: protocol.TypeAvatarPosition, UserID: "b", X: 1, Y: 2})

	moves := b.ofType(protocol.TypeAvatarPosition)
	require.Len(t, moves, 1)
	assert.Equal(t, "a", moves[0].UserID)
}

func TestHub_RateLimitedBroadcastIsDropped(t *testing.T) {
	h := newTestHub()
	a := newFakeMember("a", "R1")
	b := newFakeMember("b", "R1")
	h.handleJoin(a)
	h.handleJoin(b)

	a.broadcast = false
	h.handleInbound(a, &protocol.Message{Type: protocol.TypeAvatarPosition, X: 1, Y: 2})

	assert.Empty(t, b.ofType(protocol.TypeAvatarPosition))
}

func TestHub_ReservedTypesFromClientsAreDropped(t *testing.T) {
	h := newTestHub()
	a := newFakeMember("a", "R1")
	b := newFakeMember("b", "R1")
	h.handleJoin(a)
	h.handleJoin(b)

	h.handleInbound(a, &protocol.Message{Type: protocol.TypeUserLeft, UserID: "b"})

	assert.Empty(t, b.ofType(protocol.TypeUserLeft))
}

func TestHub_NoCrossRoomDelivery(t *testing.T) {
	h := newTestHub()
	a := newFakeMember("a", "R1")
	b := newFakeMember("b", "R2")
	h.handleJoin(a)
	h.handleJoin(b)

	h.handleInbound(a, &protocol.Message{Type: protocol.TypeCanvasClear})

	assert.Empty(t, b.ofType(protocol.TypeCanvasClear))
}
