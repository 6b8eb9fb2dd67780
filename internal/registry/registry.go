// Package registry is the in-memory source of truth for room membership.
// It is created at process start, injected into the gateway and router, and
// mutated only on join and leave.
package registry

import (
	"sort"
	"sync"
	"time"

	"github.com/MentalFish/huddle/internal/protocol"
)

// Conn is a live signaling connection as seen by the registry and router.
type Conn interface {
	ID() string
	RoomID() string
	// UserID is the optional authenticated identity, empty for anonymous.
	UserID() string
	CreatedAt() time.Time
	// Send queues a message for delivery. It must not block; a full
	// outbound buffer returns an error and the message is dropped.
	Send(msg *protocol.Message) error
}

type room struct {
	members map[string]Conn
}

// Registry maps room ids to their live member connections. A room exists
// exactly as long as it has members.
type Registry struct {
	mu    sync.RWMutex
	rooms map[string]*room
}

func New() *Registry {
	return &Registry{rooms: make(map[string]*room)}
}

// Add inserts conn into its room, creating the room if absent.
func (reg *Registry) Add(conn Conn) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	r, ok := reg.rooms[conn.RoomID()]
	if !ok {
		r = &room{members: make(map[string]Conn)}
		reg.rooms[conn.RoomID()] = r
	}
	r.members[conn.ID()] = conn
}

// Remove deletes conn from its room. It reports whether the connection was
// present and whether the room was discarded because it emptied.
func (reg *Registry) Remove(conn Conn) (found, emptied bool) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	r, ok := reg.rooms[conn.RoomID()]
	if !ok {
		return false, false
	}
	if _, ok := r.members[conn.ID()]; !ok {
		return false, false
	}
	delete(r.members, conn.ID())
	if len(r.members) == 0 {
		delete(reg.rooms, conn.RoomID())
		return true, true
	}
	return true, false
}

// Get returns the live connection with the given id in roomID, or nil.
func (reg *Registry) Get(roomID, connID string) Conn {
	reg.mu.RLock()
	defer reg.mu.RUnlock()

	r, ok := reg.rooms[roomID]
	if !ok {
		return nil
	}
	return r.members[connID]
}

// Members returns the sorted connection ids currently in roomID.
func (reg *Registry) Members(roomID string) []string {
	reg.mu.RLock()
	defer reg.mu.RUnlock()

	r, ok := reg.rooms[roomID]
	if !ok {
		return nil
	}
	ids := make([]string, 0, len(r.members))
	for id := range r.members {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Conns returns the live connections in roomID.
func (reg *Registry) Conns(roomID string) []Conn {
	reg.mu.RLock()
	defer reg.mu.RUnlock()

	r, ok := reg.rooms[roomID]
	if !ok {
		return nil
	}
	conns := make([]Conn, 0, len(r.members))
	for _, c := range r.members {
		conns = append(conns, c)
	}
	return conns
}

// Stats returns the current number of rooms and connections.
func (reg *Registry) Stats() (rooms, conns int) {
	reg.mu.RLock()
	defer reg.mu.RUnlock()

	rooms = len(reg.rooms)
	for _, r := range reg.rooms {
		conns += len(r.members)
	}
	return rooms, conns
}
