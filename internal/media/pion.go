package media

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	pionmedia "github.com/pion/webrtc/v4/pkg/media"
)

// PionDevice produces pion-backed local tracks. The reference CLI client is
// headless, so tracks carry a synthetic signal; real capture lives in the
// browser UI layer, which owns the actual devices.
type PionDevice struct{}

func NewPionDevice() *PionDevice { return &PionDevice{} }

func (d *PionDevice) OpenCamera() (Track, error) {
	return newSampleTrack(KindVideo, "camera", webrtc.MimeTypeVP8, 33*time.Millisecond)
}

func (d *PionDevice) OpenMicrophone() (Track, error) {
	return newSampleTrack(KindAudio, "microphone", webrtc.MimeTypeOpus, 20*time.Millisecond)
}

func (d *PionDevice) OpenScreen() (Track, error) {
	return newSampleTrack(KindVideo, "screen", webrtc.MimeTypeVP8, 66*time.Millisecond)
}

// Placeholder returns a bound but silent track: it produces no samples so
// the transceiver slot stays filled without traffic.
func (d *PionDevice) Placeholder(kind Kind) (Track, error) {
	mime := webrtc.MimeTypeVP8
	if kind == KindAudio {
		mime = webrtc.MimeTypeOpus
	}
	local, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: mime},
		"placeholder-"+string(kind), "huddle",
	)
	if err != nil {
		return nil, err
	}
	return &sampleTrack{id: uuid.NewString(), kind: kind, local: local}, nil
}

// sampleTrack is a TrackLocalStaticSample with an optional feeder goroutine.
type sampleTrack struct {
	id    string
	kind  Kind
	local *webrtc.TrackLocalStaticSample

	stop chan struct{}
	once sync.Once
}

func newSampleTrack(kind Kind, label, mime string, interval time.Duration) (*sampleTrack, error) {
	local, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: mime},
		label, "huddle",
	)
	if err != nil {
		return nil, err
	}

	t := &sampleTrack{
		id:    uuid.NewString(),
		kind:  kind,
		local: local,
		stop:  make(chan struct{}),
	}
	go t.feed(interval)
	return t, nil
}

// feed writes a steady synthetic sample stream until the track is stopped.
// Writes before the track is bound to a transceiver are no-ops.
func (t *sampleTrack) feed(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	frame := make([]byte, 64)
	for {
		select {
		case <-t.stop:
			return
		case <-ticker.C:
			t.local.WriteSample(pionmedia.Sample{Data: frame, Duration: interval})
		}
	}
}

func (t *sampleTrack) ID() string { return t.id }

func (t *sampleTrack) Kind() Kind { return t.kind }

func (t *sampleTrack) Stop() error {
	t.once.Do(func() {
		if t.stop != nil {
			close(t.stop)
		}
	})
	return nil
}

// Local exposes the underlying pion track for attachment to a peer
// connection.
func (t *sampleTrack) Local() webrtc.TrackLocal { return t.local }
