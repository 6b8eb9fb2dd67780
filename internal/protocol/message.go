// Package protocol defines the wire messages exchanged over the signaling
// connection. The same schema is used by the server and the client; the
// server only ever looks at the routing fields (Type, Target, UserID) and
// treats signaling payloads as opaque.
package protocol

import "encoding/json"

// Message type constants.
const (
	// Targeted relay: carried verbatim to the connection named by Target.
	TypeOffer        = "offer"
	TypeAnswer       = "answer"
	TypeICECandidate = "ice-candidate"

	// Server-originated room lifecycle notifications.
	TypeUserJoined  = "user-joined"
	TypeUserLeft    = "user-left"
	TypeRoomMembers = "room-members"

	// Room broadcast: fanned out to every member except the originator.
	TypeAvatarPosition = "avatar-position"
	TypeCanvasDraw     = "canvas-draw"
	TypeCanvasClear    = "canvas-clear"
)

// Point is a canvas coordinate pair.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Message represents all messages on the signaling connection. Fields are
// populated per Type; unused fields are omitted on the wire.
type Message struct {
	Type string `json:"type"`

	// Target names the destination connection for relayed signaling
	// (offer, answer, ice-candidate).
	Target string `json:"target,omitempty"`

	// Payload is the opaque session descriptor or candidate for relayed
	// signaling. The server never inspects it.
	Payload json.RawMessage `json:"payload,omitempty"`

	// UserID is the originating connection for broadcast variants and
	// join/leave notifications. On room-members it carries the recipient's
	// own connection id, so a fresh client learns its identity.
	UserID string `json:"userId,omitempty"`

	// Members lists existing connection ids, room-members only.
	Members []string `json:"members,omitempty"`

	// Avatar position (avatar-position).
	X float64 `json:"x,omitempty"`
	Y float64 `json:"y,omitempty"`

	// Drawing operation (canvas-draw).
	Tool  string  `json:"tool,omitempty"`
	Color string  `json:"color,omitempty"`
	Width float64 `json:"width,omitempty"`
	From  *Point  `json:"from,omitempty"`
	To    *Point  `json:"to,omitempty"`
}

// IsTargeted reports whether t is a point-to-point signaling type that
// requires a Target connection id.
func IsTargeted(t string) bool {
	switch t {
	case TypeOffer, TypeAnswer, TypeICECandidate:
		return true
	}
	return false
}

// IsBroadcast reports whether t fans out to the whole room except the
// originator.
func IsBroadcast(t string) bool {
	switch t {
	case TypeAvatarPosition, TypeCanvasDraw, TypeCanvasClear:
		return true
	}
	return false
}

// IsServerOriginated reports whether t may only be produced by the server.
// Clients sending these are dropped by the router.
func IsServerOriginated(t string) bool {
	switch t {
	case TypeUserJoined, TypeUserLeft, TypeRoomMembers:
		return true
	}
	return false
}

// NewUserJoined builds the notification broadcast to a room when a
// connection joins.
func NewUserJoined(connID string) *Message {
	return &Message{Type: TypeUserJoined, UserID: connID}
}

// NewUserLeft builds the notification broadcast to a room when a connection
// leaves.
func NewUserLeft(connID string) *Message {
	return &Message{Type: TypeUserLeft, UserID: connID}
}

// NewRoomMembers builds the greeting sent to a freshly joined connection.
// self is the recipient's own connection id; members lists the ids already
// present, never including self.
func NewRoomMembers(self string, members []string) *Message {
	if members == nil {
		members = []string{}
	}
	return &Message{Type: TypeRoomMembers, UserID: self, Members: members}
}
