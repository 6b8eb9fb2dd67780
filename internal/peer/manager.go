package peer

import (
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/MentalFish/huddle/internal/media"
	"github.com/MentalFish/huddle/internal/protocol"
	sig "github.com/MentalFish/huddle/internal/signaling"
)

// Sender queues a signaling message for the server.
type Sender interface {
	Send(msg *protocol.Message)
}

// TrackSource supplies the local tracks a fresh peer connection should
// carry. Implemented by the media controller.
type TrackSource interface {
	CurrentTracks() []media.Track
}

type peerConn struct {
	id        string
	state     State
	transport Transport

	// Candidates that arrived before the remote description; flushed once
	// it is set.
	pending   []json.RawMessage
	remoteSet bool

	// retried tracks the single renegotiation allowed per failure episode.
	retried bool
}

// Manager holds one peer connection per remote participant and keeps each
// one's state machine honest: a deterministic initiator per pair, buffered
// trickle ICE, one bounded renegotiation on failure, and full disposal
// before any re-create.
type Manager struct {
	mu     sync.Mutex
	selfID string
	peers  map[string]*peerConn
	closed bool

	send    Sender
	factory TransportFactory
	tracks  TrackSource
	log     *slog.Logger

	events chan Event
}

func NewManager(send Sender, factory TransportFactory, tracks TrackSource, log *slog.Logger) *Manager {
	if log == nil {
		log = slog.Default()
	}
	return &Manager{
		peers:   make(map[string]*peerConn),
		send:    send,
		factory: factory,
		tracks:  tracks,
		log:     log,
		events:  make(chan Event, 64),
	}
}

// Events surfaces peer state transitions for the session and UI.
func (m *Manager) Events() <-chan Event { return m.events }

// SelfID returns our connection id, empty before the welcome.
func (m *Manager) SelfID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.selfID
}

// HandleWelcome records our own connection id and connects to every
// participant already in the room.
func (m *Manager) HandleWelcome(selfID string, members []string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.selfID = selfID
	for _, id := range members {
		m.addPeerLocked(id)
	}
}

// HandlePeerJoined connects to a participant that just joined.
func (m *Manager) HandlePeerJoined(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.addPeerLocked(id)
}

// HandlePeerLeft tears the peer connection down immediately, no retry.
func (m *Manager) HandlePeerLeft(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.peers[id]
	if !ok {
		return
	}
	delete(m.peers, id)
	if p.transport != nil {
		p.transport.Close()
	}
	p.state = StateClosed
	m.emitLocked(id, StateClosed)
}

// HandleSignal applies one relayed signaling message.
func (m *Manager) HandleSignal(s sig.Signal) {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch s.Type {
	case protocol.TypeOffer:
		m.handleOfferLocked(s.From, s.SDP)
	case protocol.TypeAnswer:
		m.handleAnswerLocked(s.From, s.SDP)
	case protocol.TypeICECandidate:
		m.handleCandidateLocked(s.From, s.Candidate)
	}
}

// States returns a snapshot of every live peer's state.
func (m *Manager) States() map[string]State {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[string]State, len(m.peers))
	for id, p := range m.peers {
		out[id] = p.state
	}
	return out
}

// ReplaceVideoTrack swaps the outgoing video track on every live peer
// connection. Part of the media.TrackSink contract.
func (m *Manager) ReplaceVideoTrack(t media.Track) error { return m.replaceTrack(t) }

// ReplaceAudioTrack swaps the outgoing audio track on every live peer
// connection.
func (m *Manager) ReplaceAudioTrack(t media.Track) error { return m.replaceTrack(t) }

func (m *Manager) replaceTrack(t media.Track) error {
	if t == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	var firstErr error
	for id, p := range m.peers {
		if p.transport == nil {
			continue
		}
		if err := p.transport.ReplaceTrack(t); err != nil && firstErr == nil {
			firstErr = err
			m.log.Warn("track swap failed", "peer", id, "err", err)
		}
	}
	return firstErr
}

// CloseAll disposes every peer connection. Idempotent; used on leave.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return
	}
	m.closed = true

	for _, p := range m.peers {
		if p.transport != nil {
			p.transport.Close()
		}
		p.state = StateClosed
	}
	m.peers = make(map[string]*peerConn)
	close(m.events)
}

// addPeerLocked registers a remote participant. Exactly one side of each
// pair initiates: the one with the lexicographically lower connection id.
// The other side waits for the offer, which prevents duplicate simultaneous
// negotiations.
func (m *Manager) addPeerLocked(id string) {
	if m.closed || id == m.selfID {
		return
	}
	if _, ok := m.peers[id]; ok {
		return
	}

	p := &peerConn{id: id, state: StateNew}
	m.peers[id] = p

	if m.selfID < id {
		m.startOfferLocked(p)
	}
}

// startOfferLocked builds a fresh transport for p and sends an offer. Any
// previous transport has been disposed by the caller.
func (m *Manager) startOfferLocked(p *peerConn) {
	transport, ok := m.newTransportLocked(p)
	if !ok {
		return
	}

	sdp, err := transport.CreateOffer()
	if err != nil {
		m.log.Error("create offer failed", "peer", p.id, "err", err)
		transport.Close()
		m.failPeerLocked(p)
		return
	}

	p.transport = transport
	p.remoteSet = false
	p.pending = nil
	p.state = StateNegotiating
	m.emitLocked(p.id, StateNegotiating)

	m.sendSignal(protocol.TypeOffer, p.id, &sig.SignalPayload{From: m.selfID, SDP: sdp})
}

func (m *Manager) handleOfferLocked(from, sdp string) {
	p, ok := m.peers[from]
	if !ok {
		// Offer can beat the user-joined notification; treat it as the
		// discovery event.
		p = &peerConn{id: from, state: StateNew}
		m.peers[from] = p
	}

	// A fresh offer always negotiates on a fresh transport; never more
	// than one live connection per remote participant. Candidates buffered
	// for an earlier episode die with it.
	if p.transport != nil {
		p.transport.Close()
		p.transport = nil
	}
	p.pending = nil
	p.remoteSet = false

	transport, ok := m.newTransportLocked(p)
	if !ok {
		return
	}

	answer, err := transport.CreateAnswer(sdp)
	if err != nil {
		m.log.Error("create answer failed", "peer", from, "err", err)
		transport.Close()
		m.failPeerLocked(p)
		return
	}

	p.transport = transport
	p.remoteSet = true
	p.state = StateNegotiating
	m.emitLocked(from, StateNegotiating)
	m.flushCandidatesLocked(p)

	m.sendSignal(protocol.TypeAnswer, from, &sig.SignalPayload{From: m.selfID, SDP: answer})
}

func (m *Manager) handleAnswerLocked(from, sdp string) {
	p, ok := m.peers[from]
	if !ok || p.transport == nil {
		m.log.Debug("answer for unknown peer", "peer", from)
		return
	}
	if err := p.transport.AcceptAnswer(sdp); err != nil {
		m.log.Error("accept answer failed", "peer", from, "err", err)
		m.failPeerLocked(p)
		return
	}
	p.remoteSet = true
	m.flushCandidatesLocked(p)
}

func (m *Manager) handleCandidateLocked(from string, candidate json.RawMessage) {
	p, ok := m.peers[from]
	if !ok {
		m.log.Debug("candidate for unknown peer", "peer", from)
		return
	}
	if !p.remoteSet || p.transport == nil {
		p.pending = append(p.pending, candidate)
		return
	}
	if err := p.transport.AddICECandidate(candidate); err != nil {
		m.log.Warn("add candidate failed", "peer", from, "err", err)
	}
}

func (m *Manager) flushCandidatesLocked(p *peerConn) {
	for _, c := range p.pending {
		if err := p.transport.AddICECandidate(c); err != nil {
			m.log.Warn("add buffered candidate failed", "peer", p.id, "err", err)
		}
	}
	p.pending = nil
}

// newTransportLocked builds a transport wired to p: current local tracks
// attached, trickle ICE and state callbacks installed.
func (m *Manager) newTransportLocked(p *peerConn) (Transport, bool) {
	transport, err := m.factory(p.id)
	if err != nil {
		m.log.Error("create transport failed", "peer", p.id, "err", err)
		m.failPeerLocked(p)
		return nil, false
	}

	for _, t := range m.tracks.CurrentTracks() {
		if err := transport.ReplaceTrack(t); err != nil {
			m.log.Warn("attach track failed", "peer", p.id, "err", err)
		}
	}

	remoteID := p.id
	selfID := m.selfID
	transport.OnICECandidate(func(candidate json.RawMessage) {
		m.sendSignal(protocol.TypeICECandidate, remoteID, &sig.SignalPayload{From: selfID, Candidate: candidate})
	})
	transport.OnStateChange(func(state TransportState) {
		m.handleTransportState(remoteID, transport, state)
	})

	return transport, true
}

// handleTransportState reacts to connectivity changes of one transport.
// The transport argument guards against callbacks from an instance that has
// already been disposed and replaced.
func (m *Manager) handleTransportState(id string, transport Transport, state TransportState) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.peers[id]
	if !ok || p.transport != transport {
		return
	}

	switch state {
	case TransportConnected:
		p.state = StateConnected
		p.retried = false
		m.emitLocked(id, StateConnected)

	case TransportDisconnected:
		if p.state == StateConnected {
			p.state = StateDisconnected
			m.emitLocked(id, StateDisconnected)
		}

	case TransportFailed:
		m.handleFailureLocked(p)
	}
}

// handleFailureLocked performs exactly one renegotiation attempt per
// failure episode, then degrades to a persistent per-peer disconnect. Other
// peer connections are never touched.
func (m *Manager) handleFailureLocked(p *peerConn) {
	if p.retried {
		p.state = StateDisconnected
		m.emitLocked(p.id, StateDisconnected)
		return
	}
	p.retried = true
	p.state = StateReconnecting
	m.emitLocked(p.id, StateReconnecting)

	// Fully dispose the failed instance before any re-create; its buffered
	// candidates go with it.
	if p.transport != nil {
		p.transport.Close()
		p.transport = nil
	}
	p.pending = nil
	p.remoteSet = false

	// Only the deterministic initiator re-offers; the other side waits for
	// the fresh offer on its new transport.
	if m.selfID < p.id {
		m.startOfferLocked(p)
	}
}

func (m *Manager) failPeerLocked(p *peerConn) {
	p.state = StateDisconnected
	m.emitLocked(p.id, StateDisconnected)
}

// sendSignal needs no manager state and is safe from any goroutine.
func (m *Manager) sendSignal(msgType, target string, payload *sig.SignalPayload) {
	raw, err := sig.EncodeSignal(payload)
	if err != nil {
		m.log.Error("encode signal failed", "type", msgType, "err", err)
		return
	}
	m.send.Send(&protocol.Message{Type: msgType, Target: target, Payload: raw})
}

func (m *Manager) emitLocked(id string, state State) {
	if m.closed {
		return
	}
	select {
	case m.events <- Event{PeerID: id, State: state}:
	default:
	}
}
