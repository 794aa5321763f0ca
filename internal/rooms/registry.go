// Package rooms holds the relay's shared membership state: the connection
// registry (who is connected, under what name, in which room) and the room
// table (which connections belong to which room).
//
// Both types are safe for concurrent use. All cross-field atomicity the relay
// needs (the join snapshot-then-insert) lives inside Table.Join.
package rooms

import "sync"

type connState struct {
	name   string
	roomID string
	inRoom bool
}

// Registry tracks per-connection identity: display name and current room.
type Registry struct {
	mu    sync.RWMutex
	conns map[string]*connState
}

func NewRegistry() *Registry {
	return &Registry{
		conns: make(map[string]*connState),
	}
}

// Register creates an entry for a newly connected id with no name and no
// room. Each connection registers exactly once, at connect time.
func (r *Registry) Register(id string) {
	r.mu.Lock()
	r.conns[id] = &connState{}
	r.mu.Unlock()
}

// SetName stores the display name. An empty name is stored as-is; the
// fallback to the connection id happens at lookup, not here.
func (r *Registry) SetName(id, name string) {
	r.mu.Lock()
	if c, ok := r.conns[id]; ok {
		c.name = name
	}
	r.mu.Unlock()
}

// ResolveName returns the stored display name, or the connection id itself
// when no name was set.
func (r *Registry) ResolveName(id string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if c, ok := r.conns[id]; ok && c.name != "" {
		return c.name
	}
	return id
}

// SetRoom records the room the connection most recently joined, silently
// overwriting any prior association.
func (r *Registry) SetRoom(id, roomID string) {
	r.mu.Lock()
	if c, ok := r.conns[id]; ok {
		c.roomID = roomID
		c.inRoom = true
	}
	r.mu.Unlock()
}

// Room returns the connection's current room, if any.
func (r *Registry) Room(id string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if c, ok := r.conns[id]; ok && c.inRoom {
		return c.roomID, true
	}
	return "", false
}

// Remove deletes the connection's name and room association. Removing an
// unknown id is a no-op.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	delete(r.conns, id)
	r.mu.Unlock()
}
