package media

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTrack struct {
	id      string
	kind    Kind
	stopped int
}

func (t *fakeTrack) ID() string { return t.id }
func (t *fakeTrack) Kind() Kind { return t.kind }
func (t *fakeTrack) Stop() error {
	t.stopped++
	return nil
}

type fakeDevice struct {
	denyCamera bool
	denyMic    bool
	opened     []*fakeTrack
	counter    int
}

func (d *fakeDevice) open(kind Kind, label string) (Track, error) {
	d.counter++
	t := &fakeTrack{id: fmt.Sprintf("%s-%d", label, d.counter), kind: kind}
	d.opened = append(d.opened, t)
	return t, nil
}

func (d *fakeDevice) OpenCamera() (Track, error) {
	if d.denyCamera {
		return nil, ErrPermissionDenied
	}
	return d.open(KindVideo, "camera")
}

func (d *fakeDevice) OpenMicrophone() (Track, error) {
	if d.denyMic {
		return nil, ErrPermissionDenied
	}
	return d.open(KindAudio, "mic")
}

func (d *fakeDevice) OpenScreen() (Track, error) {
	return d.open(KindVideo, "screen")
}

func (d *fakeDevice) Placeholder(kind Kind) (Track, error) {
	return d.open(kind, "placeholder-"+string(kind))
}

type fakeSink struct {
	video []Track
	audio []Track
}

func (s *fakeSink) ReplaceVideoTrack(t Track) error {
	s.video = append(s.video, t)
	return nil
}

func (s *fakeSink) ReplaceAudioTrack(t Track) error {
	s.audio = append(s.audio, t)
	return nil
}

func (s *fakeSink) lastVideo() Track { return s.video[len(s.video)-1] }
func (s *fakeSink) lastAudio() Track { return s.audio[len(s.audio)-1] }

func setup(t *testing.T) (*Controller, *fakeDevice, *fakeSink) {
	t.Helper()
	device := &fakeDevice{}
	sink := &fakeSink{}
	return NewController(device, sink, nil), device, sink
}

func TestController_AcquireIsIdempotent(t *testing.T) {
	c, device, _ := setup(t)

	require.NoError(t, c.Acquire())
	opened := len(device.opened)
	require.NoError(t, c.Acquire())

	assert.Equal(t, opened, len(device.opened), "second acquire must not reopen devices")
}

func TestController_PermissionDeniedIsRecoverable(t *testing.T) {
	device := &fakeDevice{denyCamera: true}
	c := NewController(device, &fakeSink{}, nil)

	err := c.Acquire()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPermissionDenied)

	// The user grants permission and retries.
	device.denyCamera = false
	assert.NoError(t, c.Acquire())
}

func TestController_MicDenialStopsCamera(t *testing.T) {
	device := &fakeDevice{denyMic: true}
	c := NewController(device, &fakeSink{}, nil)

	err := c.Acquire()
	require.ErrorIs(t, err, ErrPermissionDenied)

	// The already-opened camera must not leak.
	camera := device.opened[0]
	assert.Positive(t, camera.stopped)
}

func TestController_ToggleVideoSwapsPlaceholder(t *testing.T) {
	c, _, sink := setup(t)
	require.NoError(t, c.Acquire())

	enabled, err := c.ToggleVideo()
	require.NoError(t, err)
	assert.False(t, enabled)
	assert.Contains(t, sink.lastVideo().ID(), "placeholder-video")

	enabled, err = c.ToggleVideo()
	require.NoError(t, err)
	assert.True(t, enabled)
	assert.Contains(t, sink.lastVideo().ID(), "camera")
}

func TestController_ToggleAudioSwapsPlaceholder(t *testing.T) {
	c, _, sink := setup(t)
	require.NoError(t, c.Acquire())

	enabled, err := c.ToggleAudio()
	require.NoError(t, err)
	assert.False(t, enabled)
	assert.Contains(t, sink.lastAudio().ID(), "placeholder-audio")
}

func TestController_ToggleBeforeAcquire(t *testing.T) {
	c, _, _ := setup(t)

	_, err := c.ToggleVideo()
	assert.ErrorIs(t, err, ErrNotAcquired)
	_, err = c.ToggleAudio()
	assert.ErrorIs(t, err, ErrNotAcquired)
}

func TestController_ScreenShareSwapsVideoSlot(t *testing.T) {
	c, _, sink := setup(t)
	require.NoError(t, c.Acquire())

	require.NoError(t, c.StartScreenShare())
	assert.True(t, c.ScreenSharing())
	assert.Contains(t, sink.lastVideo().ID(), "screen")

	// Starting again is a no-op.
	swaps := len(sink.video)
	require.NoError(t, c.StartScreenShare())
	assert.Equal(t, swaps, len(sink.video))

	require.NoError(t, c.StopScreenShare())
	assert.False(t, c.ScreenSharing())
	assert.Contains(t, sink.lastVideo().ID(), "camera")
}

func TestController_StopScreenShareWithVideoDisabled(t *testing.T) {
	c, _, sink := setup(t)
	require.NoError(t, c.Acquire())

	_, err := c.ToggleVideo()
	require.NoError(t, err)
	require.NoError(t, c.StartScreenShare())

	require.NoError(t, c.StopScreenShare())
	assert.Contains(t, sink.lastVideo().ID(), "placeholder-video")
}

func TestController_CurrentTracks(t *testing.T) {
	c, _, _ := setup(t)

	assert.Empty(t, c.CurrentTracks())

	require.NoError(t, c.Acquire())
	tracks := c.CurrentTracks()
	require.Len(t, tracks, 2)
	assert.Equal(t, KindAudio, tracks[0].Kind())
	assert.Equal(t, KindVideo, tracks[1].Kind())
}

func TestController_ReleaseStopsEverything(t *testing.T) {
	c, device, _ := setup(t)
	require.NoError(t, c.Acquire())
	require.NoError(t, c.StartScreenShare())

	c.Release()
	c.Release() // idempotent

	for _, track := range device.opened {
		assert.Positive(t, track.stopped, "track %s must be stopped", track.id)
	}

	_, err := c.ToggleVideo()
	assert.ErrorIs(t, err, ErrNotAcquired)
}

func TestController_ReleaseBeforeAcquire(t *testing.T) {
	c, _, _ := setup(t)
	assert.NotPanics(t, c.Release)
}

func TestController_SinkFailureSurfaces(t *testing.T) {
	device := &fakeDevice{}
	sink := &failingSink{err: errors.New("peer gone")}
	c := NewController(device, sink, nil)

	err := c.Acquire()
	assert.Error(t, err)
}

type failingSink struct{ err error }

func (s *failingSink) ReplaceVideoTrack(Track) error { return s.err }
func (s *failingSink) ReplaceAudioTrack(Track) error { return s.err }

// reentrantSink calls back into the controller the way the peer manager
// does when attaching tracks to a new connection. If the controller held
// its lock across sink calls this would self-deadlock.
type reentrantSink struct {
	c     *Controller
	calls int
}

func (s *reentrantSink) ReplaceVideoTrack(Track) error {
	s.calls++
	s.c.CurrentTracks()
	return nil
}

func (s *reentrantSink) ReplaceAudioTrack(Track) error {
	s.calls++
	s.c.CurrentTracks()
	return nil
}

func TestController_SinkMayCallBackIntoController(t *testing.T) {
	sink := &reentrantSink{}
	c := NewController(&fakeDevice{}, sink, nil)
	sink.c = c

	require.NoError(t, c.Acquire())

	_, err := c.ToggleVideo()
	require.NoError(t, err)
	_, err = c.ToggleAudio()
	require.NoError(t, err)

	require.NoError(t, c.StartScreenShare())
	require.NoError(t, c.StopScreenShare())

	assert.Greater(t, sink.calls, 0)
}

func TestController_AcquiredReportsDeviceState(t *testing.T) {
	c, _, _ := setup(t)

	assert.False(t, c.Acquired())
	require.NoError(t, c.Acquire())
	assert.True(t, c.Acquired())

	c.Release()
	assert.False(t, c.Acquired())

	// Release is a clean slate: devices can be reacquired.
	require.NoError(t, c.Acquire())
	assert.True(t, c.Acquired())
}
