package peer

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MentalFish/huddle/internal/media"
	"github.com/MentalFish/huddle/internal/protocol"
	sig "github.com/MentalFish/huddle/internal/signaling"
)

type fakeSender struct {
	mu   sync.Mutex
	sent []*protocol.Message
}

func (s *fakeSender) Send(msg *protocol.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, msg)
}

func (s *fakeSender) messages() []*protocol.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*protocol.Message(nil), s.sent...)
}

func (s *fakeSender) byType(msgType string) []*protocol.Message {
	var out []*protocol.Message
	for _, m := range s.messages() {
		if m.Type == msgType {
			out = append(out, m)
		}
	}
	return out
}

type fakeLocalTrack struct {
	id   string
	kind media.Kind
}

func (t *fakeLocalTrack) ID() string       { return t.id }
func (t *fakeLocalTrack) Kind() media.Kind { return t.kind }
func (t *fakeLocalTrack) Stop() error      { return nil }

type fakeTracks struct {
	tracks []media.Track
}

func (f *fakeTracks) CurrentTracks() []media.Track { return f.tracks }

type fakeTransport struct {
	mu         sync.Mutex
	remoteID   string
	closed     bool
	offered    bool
	answered   string
	accepted   string
	candidates []string
	attached   []string

	failOffer  bool
	failAnswer bool

	iceFn   func(json.RawMessage)
	stateFn func(TransportState)
}

func (t *fakeTransport) CreateOffer() (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.failOffer {
		return "", errors.New("offer failed")
	}
	t.offered = true
	return "offer-sdp-" + t.remoteID, nil
}

func (t *fakeTransport) CreateAnswer(offerSDP string) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.failAnswer {
		return "", errors.New("answer failed")
	}
	t.answered = offerSDP
	return "answer-sdp-" + t.remoteID, nil
}

func (t *fakeTransport) AcceptAnswer(sdp string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.accepted = sdp
	return nil
}

func (t *fakeTransport) AddICECandidate(candidate json.RawMessage) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.candidates = append(t.candidates, string(candidate))
	return nil
}

func (t *fakeTransport) OnICECandidate(fn func(json.RawMessage)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.iceFn = fn
}

func (t *fakeTransport) OnStateChange(fn func(TransportState)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stateFn = fn
}

func (t *fakeTransport) ReplaceTrack(track media.Track) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.attached = append(t.attached, track.ID())
	return nil
}

func (t *fakeTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	return nil
}

func (t *fakeTransport) fireState(state TransportState) {
	t.mu.Lock()
	fn := t.stateFn
	t.mu.Unlock()
	fn(state)
}

func (t *fakeTransport) isClosed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

func (t *fakeTransport) addedCandidates() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.candidates...)
}

type fakeFactory struct {
	mu      sync.Mutex
	created []*fakeTransport
	fail    bool
}

func (f *fakeFactory) New(remoteID string) (Transport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return nil, errors.New("no transport")
	}
	t := &fakeTransport{remoteID: remoteID}
	f.created = append(f.created, t)
	return t, nil
}

func (f *fakeFactory) all() []*fakeTransport {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*fakeTransport(nil), f.created...)
}

func (f *fakeFactory) last() *fakeTransport {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.created) == 0 {
		return nil
	}
	return f.created[len(f.created)-1]
}

func newTestManager(t *testing.T) (*Manager, *fakeSender, *fakeFactory) {
	t.Helper()
	sender := &fakeSender{}
	factory := &fakeFactory{}
	tracks := &fakeTracks{tracks: []media.Track{
		&fakeLocalTrack{id: "local-audio", kind: media.KindAudio},
		&fakeLocalTrack{id: "local-video", kind: media.KindVideo},
	}}
	m := NewManager(sender, factory.New, tracks, nil)
	return m, sender, factory
}

func TestManagerWelcomeInitiatesToLowerID(t *testing.T) {
	m, sender, factory := newTestManager(t)

	// "aaa" sorts below both members, so it initiates toward each.
	m.HandleWelcome("aaa", []string{"bbb", "ccc"})

	offers := sender.byType(protocol.TypeOffer)
	require.Len(t, offers, 2)
	targets := []string{offers[0].Target, offers[1].Target}
	assert.ElementsMatch(t, []string{"bbb", "ccc"}, targets)
	require.Len(t, factory.all(), 2)

	states := m.States()
	assert.Equal(t, StateNegotiating, states["bbb"])
	assert.Equal(t, StateNegotiating, states["ccc"])
}

func TestManagerWaitsWhenSelfIDIsHigher(t *testing.T) {
	m, sender, factory := newTestManager(t)

	m.HandleWelcome("zzz", []string{"bbb"})

	assert.Empty(t, sender.byType(protocol.TypeOffer))
	assert.Empty(t, factory.all())
	assert.Equal(t, StateNew, m.States()["bbb"])
}

func TestManagerOfferCarriesSenderIdentity(t *testing.T) {
	m, sender, _ := newTestManager(t)

	m.HandleWelcome("aaa", []string{"bbb"})

	offers := sender.byType(protocol.TypeOffer)
	require.Len(t, offers, 1)
	payload, err := sig.DecodeSignal(offers[0].Payload)
	require.NoError(t, err)
	assert.Equal(t, "aaa", payload.From)
	assert.Equal(t, "offer-sdp-bbb", payload.SDP)
}

func TestManagerAnswersIncomingOffer(t *testing.T) {
	m, sender, factory := newTestManager(t)
	m.HandleWelcome("zzz", []string{"bbb"})

	m.HandleSignal(sig.Signal{Type: protocol.TypeOffer, From: "bbb", SDP: "their-offer"})

	answers := sender.byType(protocol.TypeAnswer)
	require.Len(t, answers, 1)
	assert.Equal(t, "bbb", answers[0].Target)

	payload, err := sig.DecodeSignal(answers[0].Payload)
	require.NoError(t, err)
	assert.Equal(t, "zzz", payload.From)
	assert.Equal(t, "answer-sdp-bbb", payload.SDP)

	require.Len(t, factory.all(), 1)
	assert.Equal(t, "their-offer", factory.last().answered)
}

func TestManagerOfferBeforeJoinNotificationCreatesPeer(t *testing.T) {
	m, sender, _ := newTestManager(t)
	m.HandleWelcome("zzz", nil)

	// The relayed offer can arrive before user-joined; it must still be
	// answered.
	m.HandleSignal(sig.Signal{Type: protocol.TypeOffer, From: "bbb", SDP: "early-offer"})

	require.Len(t, sender.byType(protocol.TypeAnswer), 1)
	assert.Equal(t, StateNegotiating, m.States()["bbb"])

	// The late join notification must not start a second negotiation.
	m.HandlePeerJoined("bbb")
	assert.Len(t, sender.byType(protocol.TypeAnswer), 1)
	assert.Empty(t, sender.byType(protocol.TypeOffer))
}

func TestManagerBuffersCandidatesUntilRemoteDescription(t *testing.T) {
	m, _, factory := newTestManager(t)
	m.HandleWelcome("aaa", []string{"bbb"})
	transport := factory.last()

	m.HandleSignal(sig.Signal{Type: protocol.TypeICECandidate, From: "bbb", Candidate: json.RawMessage(`"c1"`)})
	m.HandleSignal(sig.Signal{Type: protocol.TypeICECandidate, From: "bbb", Candidate: json.RawMessage(`"c2"`)})
	assert.Empty(t, transport.addedCandidates(), "candidates must wait for the answer")

	m.HandleSignal(sig.Signal{Type: protocol.TypeAnswer, From: "bbb", SDP: "their-answer"})
	assert.Equal(t, []string{`"c1"`, `"c2"`}, transport.addedCandidates(), "buffered candidates flush in arrival order")

	m.HandleSignal(sig.Signal{Type: protocol.TypeICECandidate, From: "bbb", Candidate: json.RawMessage(`"c3"`)})
	assert.Equal(t, []string{`"c1"`, `"c2"`, `"c3"`}, transport.addedCandidates())
}

func TestManagerSignalsForUnknownPeerDropped(t *testing.T) {
	m, _, factory := newTestManager(t)
	m.HandleWelcome("aaa", nil)

	m.HandleSignal(sig.Signal{Type: protocol.TypeAnswer, From: "ghost", SDP: "x"})
	m.HandleSignal(sig.Signal{Type: protocol.TypeICECandidate, From: "ghost", Candidate: json.RawMessage(`"c"`)})

	assert.Empty(t, factory.all())
	assert.Empty(t, m.States())
}

func TestManagerAttachesCurrentTracksToNewTransport(t *testing.T) {
	m, _, factory := newTestManager(t)
	m.HandleWelcome("aaa", []string{"bbb"})

	transport := factory.last()
	assert.Equal(t, []string{"local-audio", "local-video"}, transport.attached)
}

func TestManagerConnectedStateClearsRetryBudget(t *testing.T) {
	m, sender, factory := newTestManager(t)
	m.HandleWelcome("aaa", []string{"bbb"})
	first := factory.last()

	first.fireState(TransportConnected)
	assert.Equal(t, StateConnected, m.States()["bbb"])

	// First failure: one renegotiation, initiated by us.
	first.fireState(TransportFailed)
	assert.True(t, first.isClosed(), "failed transport is disposed before re-create")
	assert.Equal(t, StateNegotiating, m.States()["bbb"])
	require.Len(t, sender.byType(protocol.TypeOffer), 2)

	// Recovery resets the budget, so a later failure earns a fresh retry.
	second := factory.last()
	require.NotSame(t, first, second)
	second.fireState(TransportConnected)
	second.fireState(TransportFailed)
	assert.Equal(t, StateNegotiating, m.States()["bbb"])
	require.Len(t, sender.byType(protocol.TypeOffer), 3)
}

func TestManagerSecondFailureDisconnectsPersistently(t *testing.T) {
	m, sender, factory := newTestManager(t)
	m.HandleWelcome("aaa", []string{"bbb", "ccc"})

	var failing *fakeTransport
	for _, tr := range factory.all() {
		if tr.remoteID == "bbb" {
			failing = tr
		}
	}
	require.NotNil(t, failing)

	failing.fireState(TransportFailed)
	retry := factory.last()
	require.Equal(t, "bbb", retry.remoteID)

	// The retry fails before ever connecting: no more attempts.
	retry.fireState(TransportFailed)
	assert.Equal(t, StateDisconnected, m.States()["bbb"])
	assert.Len(t, sender.byType(protocol.TypeOffer), 3, "one initial offer per peer plus a single retry")

	// The unrelated peer connection is untouched.
	assert.Equal(t, StateNegotiating, m.States()["ccc"])
}

func TestManagerNonInitiatorWaitsForRetryOffer(t *testing.T) {
	m, sender, factory := newTestManager(t)
	m.HandleWelcome("zzz", []string{"bbb"})
	m.HandleSignal(sig.Signal{Type: protocol.TypeOffer, From: "bbb", SDP: "their-offer"})
	transport := factory.last()

	transport.fireState(TransportFailed)

	assert.True(t, transport.isClosed())
	assert.Empty(t, sender.byType(protocol.TypeOffer), "higher id never initiates, even on retry")
	assert.Equal(t, StateReconnecting, m.States()["bbb"])

	// The initiator's fresh offer restarts negotiation on a new transport.
	m.HandleSignal(sig.Signal{Type: protocol.TypeOffer, From: "bbb", SDP: "retry-offer"})
	assert.Equal(t, StateNegotiating, m.States()["bbb"])
	require.Len(t, factory.all(), 2)
	assert.Equal(t, "retry-offer", factory.last().answered)
}

func TestManagerStaleTransportCallbacksIgnored(t *testing.T) {
	m, _, factory := newTestManager(t)
	m.HandleWelcome("zzz", []string{"bbb"})
	m.HandleSignal(sig.Signal{Type: protocol.TypeOffer, From: "bbb", SDP: "offer-1"})
	stale := factory.last()

	// A renegotiation offer replaces the transport.
	m.HandleSignal(sig.Signal{Type: protocol.TypeOffer, From: "bbb", SDP: "offer-2"})
	require.True(t, stale.isClosed())
	fresh := factory.last()
	fresh.fireState(TransportConnected)

	// The disposed instance's late callback must not disturb the new state.
	stale.fireState(TransportFailed)
	assert.Equal(t, StateConnected, m.States()["bbb"])
}

func TestManagerPeerLeftTearsDownImmediately(t *testing.T) {
	m, _, factory := newTestManager(t)
	m.HandleWelcome("aaa", []string{"bbb"})
	transport := factory.last()

	m.HandlePeerLeft("bbb")

	assert.True(t, transport.isClosed())
	assert.NotContains(t, m.States(), "bbb")

	// Repeat departures are harmless.
	m.HandlePeerLeft("bbb")
}

func TestManagerReplaceTrackReachesEveryPeer(t *testing.T) {
	m, _, factory := newTestManager(t)
	m.HandleWelcome("aaa", []string{"bbb", "ccc"})

	require.NoError(t, m.ReplaceVideoTrack(&fakeLocalTrack{id: "screen-1", kind: media.KindVideo}))
	for _, tr := range factory.all() {
		assert.Contains(t, tr.attached, "screen-1")
	}

	assert.NoError(t, m.ReplaceVideoTrack(nil), "nil swap is a no-op")
}

func TestManagerCloseAllIdempotent(t *testing.T) {
	m, _, factory := newTestManager(t)
	m.HandleWelcome("aaa", []string{"bbb"})
	transport := factory.last()

	m.CloseAll()
	m.CloseAll()

	assert.True(t, transport.isClosed())
	assert.Empty(t, m.States())

	// Events channel is closed so consumers can drain and exit.
	for range m.Events() {
	}

	// Post-close traffic must not resurrect peers.
	m.HandlePeerJoined("ddd")
	assert.Empty(t, m.States())
}

func TestManagerEmitsStateEvents(t *testing.T) {
	m, _, factory := newTestManager(t)
	m.HandleWelcome("aaa", []string{"bbb"})
	factory.last().fireState(TransportConnected)

	var seen []Event
	for len(m.Events()) > 0 {
		seen = append(seen, <-m.Events())
	}
	require.Len(t, seen, 2)
	assert.Equal(t, Event{PeerID: "bbb", State: StateNegotiating}, seen[0])
	assert.Equal(t, Event{PeerID: "bbb", State: StateConnected}, seen[1])
}

func TestManagerOfferFailureMarksPeerDisconnected(t *testing.T) {
	sender := &fakeSender{}
	var created []*fakeTransport
	broken := func(remoteID string) (Transport, error) {
		tr := &fakeTransport{remoteID: remoteID, failOffer: true}
		created = append(created, tr)
		return tr, nil
	}
	m := NewManager(sender, broken, &fakeTracks{}, nil)

	m.HandleWelcome("aaa", []string{"bbb"})

	assert.Equal(t, StateDisconnected, m.States()["bbb"])
	assert.Empty(t, sender.byType(protocol.TypeOffer))
	require.Len(t, created, 1)
	assert.True(t, created[0].isClosed(), "transport from a failed offer is disposed")
}

func TestManagerRetryOfferDropsCandidatesFromDeadEpisode(t *testing.T) {
	m, _, factory := newTestManager(t)
	m.HandleWelcome("zzz", []string{"bbb"})
	m.HandleSignal(sig.Signal{Type: protocol.TypeOffer, From: "bbb", SDP: "offer-1"})
	first := factory.last()

	first.fireState(TransportFailed)
	require.True(t, first.isClosed())

	// Candidates for the dead negotiation arrive while we wait for the
	// initiator's retry. They belong to a transport that no longer exists.
	m.HandleSignal(sig.Signal{Type: protocol.TypeICECandidate, From: "bbb", Candidate: json.RawMessage(`"stale"`)})

	m.HandleSignal(sig.Signal{Type: protocol.TypeOffer, From: "bbb", SDP: "offer-2"})
	require.Len(t, factory.all(), 2)
	second := factory.last()
	assert.Empty(t, second.addedCandidates(), "a fresh transport must not receive another episode's candidates")

	m.HandleSignal(sig.Signal{Type: protocol.TypeICECandidate, From: "bbb", Candidate: json.RawMessage(`"fresh"`)})
	assert.Equal(t, []string{`"fresh"`}, second.addedCandidates())
}
