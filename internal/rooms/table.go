package rooms

import (
	"sort"
	"sync"

	"github.com/samber/lo"
)

// Table maps room ids to member connection ids.
//
// Rooms are created lazily on the first join and deleted synchronously when
// the last member leaves, so a room present in the table always has at least
// one member.
type Table struct {
	mu    sync.RWMutex
	rooms map[string]map[string]struct{}
}

func NewTable() *Table {
	return &Table{
		rooms: make(map[string]map[string]struct{}),
	}
}

// Join adds the connection to the room (creating it if absent) and returns a
// snapshot of the members present strictly before the insert. The snapshot is
// the joining connection's peer list and never contains the joiner itself,
// which is why snapshot and insert happen under one critical section.
func (t *Table) Join(roomID, id string) []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	members, ok := t.rooms[roomID]
	if !ok {
		members = make(map[string]struct{})
		t.rooms[roomID] = members
	}

	peers := lo.Keys(members)
	sort.Strings(peers)

	members[id] = struct{}{}
	return peers
}

// Leave removes the connection from the room and deletes the room entry when
// it becomes empty. Leaving an unknown room, or a room the connection is not
// in, is a no-op.
func (t *Table) Leave(roomID, id string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	members, ok := t.rooms[roomID]
	if !ok {
		return
	}
	delete(members, id)
	if len(members) == 0 {
		delete(t.rooms, roomID)
	}
}

// Members returns the room's member ids, sorted. Unknown rooms yield nil.
func (t *Table) Members(roomID string) []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	members, ok := t.rooms[roomID]
	if !ok {
		return nil
	}
	out := lo.Keys(members)
	sort.Strings(out)
	return out
}

// Has reports whether the room exists.
func (t *Table) Has(roomID string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.rooms[roomID]
	return ok
}

// Len returns the number of live rooms.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.rooms)
}
