package signaling

import (
	"encoding/json"
	"log/slog"

	"github.com/MentalFish/huddle/internal/protocol"
)

// Welcome carries the greeting a connection receives on join: its own
// connection id and the ids already present in the room.
type Welcome struct {
	SelfID  string
	Members []string
}

// Signal is a relayed peer-to-peer signaling message, unwrapped.
type Signal struct {
	Type      string // offer, answer or ice-candidate
	From      string
	SDP       string
	Candidate json.RawMessage
}

// Dispatcher routes incoming signaling messages to typed channels.
type Dispatcher struct {
	Welcome    chan Welcome
	PeerJoined chan string
	PeerLeft   chan string
	Signals    chan Signal

	// Collab carries the broadcast variants (avatar-position, canvas-draw,
	// canvas-clear) untouched.
	Collab chan *protocol.Message

	log    *slog.Logger
	closed bool
}

// NewDispatcher creates a dispatcher with buffered channels.
func NewDispatcher(log *slog.Logger) *Dispatcher {
	if log == nil {
		log = slog.Default()
	}
	return &Dispatcher{
		Welcome:    make(chan Welcome, 1),
		PeerJoined: make(chan string, 8),
		PeerLeft:   make(chan string, 8),
		Signals:    make(chan Signal, 32),
		Collab:     make(chan *protocol.Message, 64),
		log:        log,
	}
}

// Run consumes in until it closes, routing each message. Call it in its own
// goroutine; all dispatcher channels are closed when it returns.
func (d *Dispatcher) Run(in <-chan *protocol.Message) {
	defer d.closeAll()

	for msg := range in {
		switch msg.Type {
		case protocol.TypeRoomMembers:
			d.Welcome <- Welcome{SelfID: msg.UserID, Members: msg.Members}

		case protocol.TypeUserJoined:
			d.PeerJoined <- msg.UserID

		case protocol.TypeUserLeft:
			d.PeerLeft <- msg.UserID

		case protocol.TypeOffer, protocol.TypeAnswer, protocol.TypeICECandidate:
			d.handleSignal(msg)

		case protocol.TypeAvatarPosition, protocol.TypeCanvasDraw, protocol.TypeCanvasClear:
			d.Collab <- msg

		default:
			d.log.Debug("ignoring unknown message", "type", msg.Type)
		}
	}
}

func (d *Dispatcher) handleSignal(msg *protocol.Message) {
	payload, err := DecodeSignal(msg.Payload)
	if err != nil || payload.From == "" {
		d.log.Warn("dropping undecodable signal", "type", msg.Type, "err", err)
		return
	}
	d.Signals <- Signal{
		Type:      msg.Type,
		From:      payload.From,
		SDP:       payload.SDP,
		Candidate: payload.Candidate,
	}
}

func (d *Dispatcher) closeAll() {
	if d.closed {
		return
	}
	d.closed = true

	close(d.Welcome)
	close(d.PeerJoined)
	close(d.PeerLeft)
	close(d.Signals)
	close(d.Collab)
}
