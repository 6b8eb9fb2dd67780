package peer

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/pion/webrtc/v4"

	"github.com/MentalFish/huddle/internal/config"
	"github.com/MentalFish/huddle/internal/media"
)

// localTrack is implemented by media tracks that wrap a pion TrackLocal.
type localTrack interface {
	Local() webrtc.TrackLocal
}

// NewPionFactory returns a TransportFactory producing pion peer
// connections configured with the client's ICE servers.
func NewPionFactory(cfg *config.ClientConfig, log *slog.Logger) TransportFactory {
	if log == nil {
		log = slog.Default()
	}

	iceServers := []webrtc.ICEServer{{URLs: cfg.GetSTUNServers()}}
	if turn := cfg.GetTURNServers(); turn != nil {
		username, password := cfg.GetTURNCredentials()
		iceServers = append(iceServers, webrtc.ICEServer{
			URLs:       turn,
			Username:   username,
			Credential: password,
		})
	}

	settings := webrtc.SettingEngine{LoggerFactory: &slogLoggerFactory{log: log}}
	api := webrtc.NewAPI(webrtc.WithSettingEngine(settings))

	return func(remoteID string) (Transport, error) {
		pc, err := api.NewPeerConnection(webrtc.Configuration{ICEServers: iceServers})
		if err != nil {
			return nil, fmt.Errorf("create peer connection: %w", err)
		}
		return &pionTransport{pc: pc, senders: make(map[string]*webrtc.RTPSender)}, nil
	}
}

// pionTransport adapts a pion PeerConnection to the Transport interface.
type pionTransport struct {
	pc *webrtc.PeerConnection

	mu      sync.Mutex
	senders map[string]*webrtc.RTPSender // keyed by track kind
}

func (t *pionTransport) CreateOffer() (string, error) {
	offer, err := t.pc.CreateOffer(nil)
	if err != nil {
		return "", fmt.Errorf("create offer: %w", err)
	}
	if err := t.pc.SetLocalDescription(offer); err != nil {
		return "", fmt.Errorf("set local description: %w", err)
	}
	return t.pc.LocalDescription().SDP, nil
}

func (t *pionTransport) CreateAnswer(offerSDP string) (string, error) {
	remote := webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: offerSDP}
	if err := t.pc.SetRemoteDescription(remote); err != nil {
		return "", fmt.Errorf("set remote description: %w", err)
	}

	answer, err := t.pc.CreateAnswer(nil)
	if err != nil {
		return "", fmt.Errorf("create answer: %w", err)
	}
	if err := t.pc.SetLocalDescription(answer); err != nil {
		return "", fmt.Errorf("set local description: %w", err)
	}
	return t.pc.LocalDescription().SDP, nil
}

func (t *pionTransport) AcceptAnswer(sdp string) error {
	remote := webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: sdp}
	if err := t.pc.SetRemoteDescription(remote); err != nil {
		return fmt.Errorf("set remote description: %w", err)
	}
	return nil
}

func (t *pionTransport) AddICECandidate(candidate json.RawMessage) error {
	var init webrtc.ICECandidateInit
	if err := json.Unmarshal(candidate, &init); err != nil {
		return fmt.Errorf("parse ICE candidate: %w", err)
	}
	if err := t.pc.AddICECandidate(init); err != nil {
		return fmt.Errorf("add ICE candidate: %w", err)
	}
	return nil
}

func (t *pionTransport) OnICECandidate(fn func(json.RawMessage)) {
	t.pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return
		}
		raw, err := json.Marshal(c.ToJSON())
		if err != nil {
			return
		}
		fn(raw)
	})
}

func (t *pionTransport) OnStateChange(fn func(TransportState)) {
	t.pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		switch state {
		case webrtc.PeerConnectionStateConnected:
			fn(TransportConnected)
		case webrtc.PeerConnectionStateDisconnected:
			fn(TransportDisconnected)
		case webrtc.PeerConnectionStateFailed:
			fn(TransportFailed)
		case webrtc.PeerConnectionStateClosed:
			fn(TransportClosed)
		default:
			fn(TransportConnecting)
		}
	})
}

func (t *pionTransport) ReplaceTrack(track media.Track) error {
	lt, ok := track.(localTrack)
	if !ok {
		return fmt.Errorf("track %s is not pion-backed", track.ID())
	}
	local := lt.Local()

	t.mu.Lock()
	defer t.mu.Unlock()

	kind := local.Kind().String()
	if sender, ok := t.senders[kind]; ok {
		if err := sender.ReplaceTrack(local); err != nil {
			return fmt.Errorf("replace %s track: %w", kind, err)
		}
		return nil
	}

	sender, err := t.pc.AddTrack(local)
	if err != nil {
		return fmt.Errorf("add %s track: %w", kind, err)
	}
	t.senders[kind] = sender
	return nil
}

func (t *pionTransport) Close() error {
	return t.pc.Close()
}
