package media

import (
	"fmt"
	"log/slog"
	"sync"
)

// Controller coordinates the local media state shared by all peer
// connections. All operations are idempotent; Release is mandatory cleanup
// and safe from any teardown path.
//
// c.mu is never held across a sink call: the sink is the peer manager,
// which takes its own lock and calls back into CurrentTracks.
type Controller struct {
	mu     sync.Mutex
	device Device
	sink   TrackSink
	log    *slog.Logger

	camera Track
	mic    Track
	screen Track

	placeholderVideo Track
	placeholderAudio Track

	videoEnabled bool
	audioEnabled bool
}

func NewController(device Device, sink TrackSink, log *slog.Logger) *Controller {
	if log == nil {
		log = slog.Default()
	}
	return &Controller{device: device, sink: sink, log: log}
}

// Acquire opens camera and microphone once. Calling it again while both are
// held is a no-op; after a permission denial it may be retried.
func (c *Controller) Acquire() error {
	c.mu.Lock()
	audio, video, err := c.acquireLocked()
	c.mu.Unlock()

	if err != nil || audio == nil {
		return err
	}
	if err := c.push(audio, video); err != nil {
		return err
	}
	c.log.Info("local media acquired")
	return nil
}

// acquireLocked opens the devices and returns the outgoing tracks to push,
// or nil tracks when already acquired.
func (c *Controller) acquireLocked() (audio, video Track, err error) {
	if c.camera != nil && c.mic != nil {
		return nil, nil, nil
	}

	camera, err := c.device.OpenCamera()
	if err != nil {
		return nil, nil, fmt.Errorf("open camera: %w", err)
	}
	mic, err := c.device.OpenMicrophone()
	if err != nil {
		camera.Stop()
		return nil, nil, fmt.Errorf("open microphone: %w", err)
	}

	if c.placeholderVideo == nil {
		if c.placeholderVideo, err = c.device.Placeholder(KindVideo); err != nil {
			camera.Stop()
			mic.Stop()
			return nil, nil, fmt.Errorf("video placeholder: %w", err)
		}
	}
	if c.placeholderAudio == nil {
		if c.placeholderAudio, err = c.device.Placeholder(KindAudio); err != nil {
			camera.Stop()
			mic.Stop()
			return nil, nil, fmt.Errorf("audio placeholder: %w", err)
		}
	}

	c.camera = camera
	c.mic = mic
	c.videoEnabled = true
	c.audioEnabled = true

	return c.outgoingAudioLocked(), c.outgoingVideoLocked(), nil
}

// ToggleVideo swaps the outgoing video track between the camera and a
// placeholder, avoiding renegotiation. While screen sharing the flag still
// flips, but the screen keeps the outgoing slot until the share stops.
// It returns the new enabled state.
func (c *Controller) ToggleVideo() (bool, error) {
	c.mu.Lock()
	if c.camera == nil {
		c.mu.Unlock()
		return false, ErrNotAcquired
	}
	c.videoEnabled = !c.videoEnabled
	enabled := c.videoEnabled

	var outgoing Track
	if c.screen == nil {
		outgoing = c.outgoingVideoLocked()
	}
	c.mu.Unlock()

	if outgoing != nil {
		if err := c.sink.ReplaceVideoTrack(outgoing); err != nil {
			return enabled, err
		}
	}
	return enabled, nil
}

// ToggleAudio swaps the outgoing audio track between the microphone and a
// silent placeholder. It returns the new enabled state.
func (c *Controller) ToggleAudio() (bool, error) {
	c.mu.Lock()
	if c.mic == nil {
		c.mu.Unlock()
		return false, ErrNotAcquired
	}
	c.audioEnabled = !c.audioEnabled
	enabled := c.audioEnabled
	outgoing := c.outgoingAudioLocked()
	c.mu.Unlock()

	if err := c.sink.ReplaceAudioTrack(outgoing); err != nil {
		return enabled, err
	}
	return enabled, nil
}

// StartScreenShare swaps the screen capture into the outgoing video slot on
// every active peer connection in one step, so all remote viewers see the
// switch without a gap. Starting while already sharing is a no-op.
func (c *Controller) StartScreenShare() error {
	c.mu.Lock()
	if c.screen != nil {
		c.mu.Unlock()
		return nil
	}
	screen, err := c.device.OpenScreen()
	if err != nil {
		c.mu.Unlock()
		return fmt.Errorf("open screen: %w", err)
	}
	c.screen = screen
	c.mu.Unlock()

	if err := c.sink.ReplaceVideoTrack(screen); err != nil {
		c.mu.Lock()
		if c.screen == screen {
			c.screen = nil
		}
		c.mu.Unlock()
		screen.Stop()
		return err
	}
	c.log.Info("screen share started")
	return nil
}

// StopScreenShare restores the camera (or its placeholder) as the outgoing
// video track. Stopping while not sharing is a no-op.
func (c *Controller) StopScreenShare() error {
	c.mu.Lock()
	if c.screen == nil {
		c.mu.Unlock()
		return nil
	}
	c.screen.Stop()
	c.screen = nil
	outgoing := c.outgoingVideoLocked()
	c.mu.Unlock()

	if err := c.sink.ReplaceVideoTrack(outgoing); err != nil {
		return err
	}
	c.log.Info("screen share stopped")
	return nil
}

// Acquired reports whether the capture devices are currently held.
func (c *Controller) Acquired() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.camera != nil && c.mic != nil
}

// ScreenSharing reports whether the screen currently holds the video slot.
func (c *Controller) ScreenSharing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.screen != nil
}

// Enabled returns the current video and audio flags.
func (c *Controller) Enabled() (video, audio bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.videoEnabled, c.audioEnabled
}

// CurrentTracks returns the tracks a newly created peer connection should
// carry right now.
func (c *Controller) CurrentTracks() []Track {
	c.mu.Lock()
	defer c.mu.Unlock()

	var tracks []Track
	if t := c.outgoingAudioLocked(); t != nil {
		tracks = append(tracks, t)
	}
	if t := c.outgoingVideoLocked(); t != nil {
		tracks = append(tracks, t)
	}
	return tracks
}

// Release stops every local track. It always runs to completion and calling
// it repeatedly, or before Acquire, is safe.
func (c *Controller) Release() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, t := range []Track{c.camera, c.mic, c.screen, c.placeholderVideo, c.placeholderAudio} {
		if t != nil {
			t.Stop()
		}
	}
	c.camera, c.mic, c.screen = nil, nil, nil
	c.placeholderVideo, c.placeholderAudio = nil, nil
	c.videoEnabled, c.audioEnabled = false, false
}

func (c *Controller) outgoingVideoLocked() Track {
	if c.screen != nil {
		return c.screen
	}
	if c.videoEnabled && c.camera != nil {
		return c.camera
	}
	return c.placeholderVideo
}

func (c *Controller) outgoingAudioLocked() Track {
	if c.audioEnabled && c.mic != nil {
		return c.mic
	}
	return c.placeholderAudio
}

// push hands the outgoing tracks to the sink. Must be called without c.mu
// held.
func (c *Controller) push(audio, video Track) error {
	if err := c.sink.ReplaceAudioTrack(audio); err != nil {
		return err
	}
	return c.sink.ReplaceVideoTrack(video)
}
