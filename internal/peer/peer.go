// Package peer drives one connection state machine per remote participant,
// using relayed signaling as transport. The underlying peer-connection
// implementation sits behind the Transport interface so the state machine
// runs against fakes in tests and pion in production.
package peer

import (
	"encoding/json"

	"github.com/MentalFish/huddle/internal/media"
)

// State is the lifecycle of one remote peer connection.
type State int

const (
	StateNew State = iota
	StateNegotiating
	StateConnected
	StateDisconnected
	StateReconnecting
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateNegotiating:
		return "negotiating"
	case StateConnected:
		return "connected"
	case StateDisconnected:
		return "disconnected"
	case StateReconnecting:
		return "reconnecting"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// TransportState is the connection state reported by a Transport.
type TransportState int

const (
	TransportConnecting TransportState = iota
	TransportConnected
	TransportDisconnected
	TransportFailed
	TransportClosed
)

// Transport is one underlying peer connection. Implementations must be safe
// to call from multiple goroutines.
type Transport interface {
	// CreateOffer generates and applies the local offer.
	CreateOffer() (sdp string, err error)
	// CreateAnswer applies the remote offer, then generates and applies
	// the local answer.
	CreateAnswer(offerSDP string) (sdp string, err error)
	// AcceptAnswer applies the remote answer on the offering side.
	AcceptAnswer(sdp string) error

	AddICECandidate(candidate json.RawMessage) error
	OnICECandidate(fn func(candidate json.RawMessage))
	OnStateChange(fn func(state TransportState))

	// ReplaceTrack swaps the outgoing sender whose kind matches the track,
	// adding a sender if that kind is not present yet.
	ReplaceTrack(t media.Track) error

	Close() error
}

// TransportFactory creates a Transport for a remote participant.
type TransportFactory func(remoteID string) (Transport, error)

// Event is a state transition surfaced to the session and UI.
type Event struct {
	PeerID string
	State  State
}
