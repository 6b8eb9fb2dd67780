// Package router decides where an inbound message goes. The decision is a
// pure function over the message and the current room membership, so the
// fanout policy is testable without sockets.
package router

import (
	"errors"
	"fmt"
	"math"

	"github.com/MentalFish/huddle/internal/protocol"
)

var (
	ErrMissingTarget = errors.New("targeted message without target")
	ErrReservedType  = errors.New("reserved message type from client")
	ErrUnknownType   = errors.New("unknown message type")
)

// Validation bounds for broadcast payloads. Coordinates are clamped by
// rejection rather than silently rewritten; string fields are length-capped
// to bound memory and reduce rendering-time injection surface on receivers.
const (
	MaxCoordinate = 1e6
	MaxFieldLen   = 64
)

// Destinations returns the connection ids an inbound message from senderID
// must be delivered to, given the room's current member ids.
//
// Targeted types go to their named target only; a target that already left
// the room yields an empty destination set and a nil error, because that
// race is benign. Broadcast types go to every member except the sender.
func Destinations(msg *protocol.Message, senderID string, members []string) ([]string, error) {
	switch {
	case protocol.IsTargeted(msg.Type):
		if msg.Target == "" {
			return nil, ErrMissingTarget
		}
		for _, id := range members {
			if id == msg.Target {
				return []string{msg.Target}, nil
			}
		}
		return nil, nil

	case protocol.IsBroadcast(msg.Type):
		if err := ValidateBroadcast(msg); err != nil {
			return nil, err
		}
		var targets []string
		for _, id := range members {
			if id != senderID {
				targets = append(targets, id)
			}
		}
		return targets, nil

	case protocol.IsServerOriginated(msg.Type):
		return nil, ErrReservedType

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, msg.Type)
	}
}

// ValidateBroadcast applies the light structural checks for room-broadcast
// payloads: finite, bounded coordinates and length-capped string fields.
// Relayed signaling payloads are never validated here; they are opaque.
func ValidateBroadcast(msg *protocol.Message) error {
	switch msg.Type {
	case protocol.TypeAvatarPosition:
		if err := checkCoord("x", msg.X); err != nil {
			return err
		}
		return checkCoord("y", msg.Y)

	case protocol.TypeCanvasDraw:
		if len(msg.Tool) > MaxFieldLen {
			return fmt.Errorf("tool exceeds %d bytes", MaxFieldLen)
		}
		if len(msg.Color) > MaxFieldLen {
			return fmt.Errorf("color exceeds %d bytes", MaxFieldLen)
		}
		if msg.From == nil || msg.To == nil {
			return errors.New("canvas-draw without endpoints")
		}
		for _, p := range []struct {
			name string
			val  float64
		}{
			{"from.x", msg.From.X},
			{"from.y", msg.From.Y},
			{"to.x", msg.To.X},
			{"to.y", msg.To.Y},
		} {
			if err := checkCoord(p.name, p.val); err != nil {
				return err
			}
		}
		// Width is a brush size, not a coordinate: zero means "absent",
		// negative is never valid.
		if err := checkCoord("width", msg.Width); err != nil {
			return err
		}
		if msg.Width < 0 {
			return errors.New("width is negative")
		}
		return nil

	case protocol.TypeCanvasClear:
		return nil
	}
	return fmt.Errorf("%w: %q", ErrUnknownType, msg.Type)
}

func checkCoord(name string, v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return fmt.Errorf("%s is not finite", name)
	}
	if v < -MaxCoordinate || v > MaxCoordinate {
		return fmt.Errorf("%s out of bounds", name)
	}
	return nil
}
