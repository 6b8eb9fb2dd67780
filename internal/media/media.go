// Package media owns the local capture state: camera, microphone and screen
// tracks, and how the outgoing tracks are presented to every live peer
// connection.
package media

import "errors"

var (
	// ErrPermissionDenied is recoverable: controls stay disabled and the
	// user may retry; other participants are unaffected.
	ErrPermissionDenied = errors.New("media permission denied")

	ErrNotAcquired = errors.New("local media not acquired")
)

// Kind distinguishes track media types.
type Kind string

const (
	KindAudio Kind = "audio"
	KindVideo Kind = "video"
)

// Track is one local media track. Stop releases the underlying capture
// resource; stopping twice is harmless.
type Track interface {
	ID() string
	Kind() Kind
	Stop() error
}

// Device abstracts the capture hardware so the controller is testable with
// fakes. Implementations return ErrPermissionDenied (possibly wrapped) when
// the user refuses access.
type Device interface {
	OpenCamera() (Track, error)
	OpenMicrophone() (Track, error)
	OpenScreen() (Track, error)

	// Placeholder returns a silent or blank stand-in track. Swapping a
	// placeholder in, instead of removing the track, avoids renegotiation
	// when toggling.
	Placeholder(kind Kind) (Track, error)
}

// TrackSink receives outgoing-track swaps and applies them to every active
// peer connection. Implemented by the peer connection manager.
type TrackSink interface {
	ReplaceAudioTrack(t Track) error
	ReplaceVideoTrack(t Track) error
}
