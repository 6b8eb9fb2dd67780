// Package session ties the client together: it owns the signaling
// transport, the peer connection manager, the media controller and the
// collaboration broadcaster, and runs the loop that feeds incoming
// messages to each.
package session

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/MentalFish/huddle/internal/collab"
	"github.com/MentalFish/huddle/internal/config"
	"github.com/MentalFish/huddle/internal/media"
	"github.com/MentalFish/huddle/internal/peer"
	"github.com/MentalFish/huddle/internal/protocol"
	"github.com/MentalFish/huddle/internal/ratelimit"
	"github.com/MentalFish/huddle/internal/signaling"
)

// deferredSink breaks the construction cycle between the media controller
// (which pushes tracks to a sink) and the peer manager (which sources
// tracks from the controller). It forwards once the manager exists and
// swallows pushes before that, which only happens during wiring.
type deferredSink struct {
	mu   sync.Mutex
	sink media.TrackSink
}

func (d *deferredSink) set(s media.TrackSink) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sink = s
}

func (d *deferredSink) target() media.TrackSink {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.sink
}

func (d *deferredSink) ReplaceVideoTrack(t media.Track) error {
	if s := d.target(); s != nil {
		return s.ReplaceVideoTrack(t)
	}
	return nil
}

func (d *deferredSink) ReplaceAudioTrack(t media.Track) error {
	if s := d.target(); s != nil {
		return s.ReplaceAudioTrack(t)
	}
	return nil
}

// Session is one participant's presence in one room.
type Session struct {
	transport signaling.Transport
	dispatch  *signaling.Dispatcher
	peers     *peer.Manager
	media     *media.Controller
	collab    *collab.Broadcaster
	log       *slog.Logger

	selfMu sync.Mutex
	selfID string

	leaveOnce sync.Once
	done      chan struct{}
}

// New wires a session over transport. The device supplies local media;
// factory builds one peer transport per remote participant.
func New(transport signaling.Transport, factory peer.TransportFactory, device media.Device, log *slog.Logger) *Session {
	if log == nil {
		log = slog.Default()
	}

	sink := &deferredSink{}
	controller := media.NewController(device, sink, log)
	peers := peer.NewManager(transport, factory, controller, log)
	sink.set(peers)

	return &Session{
		transport: transport,
		dispatch:  signaling.NewDispatcher(log),
		peers:     peers,
		media:     controller,
		collab:    collab.NewBroadcaster(transport, config.DefaultAvatarRate, ratelimit.RealClock{}),
		log:       log,
		done:      make(chan struct{}),
	}
}

// connector is implemented by transports that dial lazily, like the
// websocket client. Fakes in tests skip it.
type connector interface {
	Connect() error
}

// Join connects to the room and starts the message loop. Local media is
// acquired first; a device permission denial degrades to placeholder
// tracks instead of failing the join.
func (s *Session) Join() error {
	if err := s.media.Acquire(); err != nil {
		if !errors.Is(err, media.ErrPermissionDenied) {
			return fmt.Errorf("acquire media: %w", err)
		}
		s.log.Warn("media permission denied, continuing with placeholders")
	}

	if c, ok := s.transport.(connector); ok {
		if err := c.Connect(); err != nil {
			s.media.Release()
			return err
		}
	}

	go s.dispatch.Run(s.transport.Incoming())
	go s.run()
	return nil
}

// run feeds dispatcher output into the peer manager and the collaboration
// broadcaster. It exits when the connection drops, tearing the session
// down.
func (s *Session) run() {
	defer s.Leave()

	events := s.peers.Events()
	for {
		select {
		case w, ok := <-s.dispatch.Welcome:
			if !ok {
				return
			}
			s.applyWelcome(w)

		case id, ok := <-s.dispatch.PeerJoined:
			if !ok {
				return
			}
			s.drainWelcome()
			s.peers.HandlePeerJoined(id)

		case id, ok := <-s.dispatch.PeerLeft:
			if !ok {
				return
			}
			s.drainWelcome()
			s.peers.HandlePeerLeft(id)
			s.collab.HandlePeerLeft(id)

		case sg, ok := <-s.dispatch.Signals:
			if !ok {
				return
			}
			s.drainWelcome()
			s.peers.HandleSignal(sg)

		case msg, ok := <-s.dispatch.Collab:
			if !ok {
				return
			}
			s.drainWelcome()
			s.collab.HandleCollab(msg)

		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			s.log.Debug("peer state", "peer", ev.PeerID, "state", ev.State)
		}
	}
}

func (s *Session) applyWelcome(w signaling.Welcome) {
	s.setSelfID(w.SelfID)
	s.collab.SetSelfID(w.SelfID)
	s.peers.HandleWelcome(w.SelfID, w.Members)
}

// drainWelcome applies a buffered greeting before any later message. The
// greeting is always first on the wire, but the select picks ready
// channels in random order; acting on a signal or join before our own id
// is known would negotiate with an empty identity.
func (s *Session) drainWelcome() {
	select {
	case w, ok := <-s.dispatch.Welcome:
		if ok {
			s.applyWelcome(w)
		}
	default:
	}
}

// Leave tears the session down: media released, every peer connection
// closed, then the signaling connection. Safe to call more than once, and
// called implicitly when the server drops us.
func (s *Session) Leave() {
	s.leaveOnce.Do(func() {
		s.media.Release()
		s.peers.CloseAll()
		s.transport.Close()
		close(s.done)
	})
}

// Done is closed once the session has fully torn down.
func (s *Session) Done() <-chan struct{} { return s.done }

// SelfID returns our connection id, empty until the room greeting arrives.
func (s *Session) SelfID() string {
	s.selfMu.Lock()
	defer s.selfMu.Unlock()
	return s.selfID
}

func (s *Session) setSelfID(id string) {
	s.selfMu.Lock()
	defer s.selfMu.Unlock()
	s.selfID = id
}

// PeerStates snapshots every remote participant's connection state.
func (s *Session) PeerStates() map[string]peer.State { return s.peers.States() }

// StartMedia acquires camera and microphone, or retries after an earlier
// permission denial, and pushes the tracks to every connected peer.
func (s *Session) StartMedia() error {
	if err := s.media.Acquire(); err != nil {
		return fmt.Errorf("acquire media: %w", err)
	}
	return nil
}

// StopMedia releases every local capture device. Remote peers keep the
// last track they were given until StartMedia runs again.
func (s *Session) StopMedia() { s.media.Release() }

// MediaAcquired reports whether the capture devices are currently held.
func (s *Session) MediaAcquired() bool { return s.media.Acquired() }

// ToggleVideo flips the camera on or off, swapping the outgoing track.
func (s *Session) ToggleVideo() (bool, error) { return s.media.ToggleVideo() }

// ToggleAudio flips the microphone on or off.
func (s *Session) ToggleAudio() (bool, error) { return s.media.ToggleAudio() }

// StartScreenShare replaces the outgoing video with a screen capture.
func (s *Session) StartScreenShare() error { return s.media.StartScreenShare() }

// StopScreenShare restores the camera, or its placeholder, as outgoing
// video.
func (s *Session) StopScreenShare() error { return s.media.StopScreenShare() }

// ScreenSharing reports whether the screen track is live.
func (s *Session) ScreenSharing() bool { return s.media.ScreenSharing() }

// MediaEnabled reports the current video and audio toggle states.
func (s *Session) MediaEnabled() (video, audio bool) { return s.media.Enabled() }

// MoveAvatar publishes our avatar position, rate limited at the source.
func (s *Session) MoveAvatar(x, y float64) { s.collab.MoveSelf(x, y) }

// Draw publishes one stroke with the current brush.
func (s *Session) Draw(from, to protocol.Point) { s.collab.Draw(from, to) }

// ClearCanvas wipes the shared canvas for everyone.
func (s *Session) ClearCanvas() { s.collab.ClearAll() }

// Avatars exposes the live avatar board.
func (s *Session) Avatars() *collab.AvatarBoard { return s.collab.Avatars() }

// Canvas exposes the local canvas replica.
func (s *Session) Canvas() *collab.Canvas { return s.collab.Canvas() }
