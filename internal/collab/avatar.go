// Package collab maintains the shared room surfaces layered over the
// signaling connection: live avatar positions and the collaborative
// drawing canvas. Both are best-effort broadcast state with no server-side
// persistence; a participant joining late starts from an empty view.
package collab

import "sync"

// Position is an avatar location in room coordinates.
type Position struct {
	X float64
	Y float64
}

// AvatarBoard tracks the latest known position per participant. Updates
// are last-write-wins per user; there is no ordering across users.
type AvatarBoard struct {
	mu        sync.RWMutex
	positions map[string]Position
}

func NewAvatarBoard() *AvatarBoard {
	return &AvatarBoard{positions: make(map[string]Position)}
}

// Set records the latest position for a participant, replacing any prior
// one.
func (b *AvatarBoard) Set(userID string, pos Position) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.positions[userID] = pos
}

// Get returns the last known position for a participant.
func (b *AvatarBoard) Get(userID string) (Position, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	pos, ok := b.positions[userID]
	return pos, ok
}

// Remove drops a participant's avatar, typically when they leave the room.
func (b *AvatarBoard) Remove(userID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.positions, userID)
}

// Snapshot returns a copy of all current positions keyed by participant.
func (b *AvatarBoard) Snapshot() map[string]Position {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make(map[string]Position, len(b.positions))
	for id, pos := range b.positions {
		out[id] = pos
	}
	return out
}
