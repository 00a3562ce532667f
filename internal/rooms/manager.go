// Package rooms owns room membership. Rooms are created on first join and
// kept, possibly empty, for the life of the process.
package rooms

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/samber/lo"

	"github.com/Tyrowin/nexus-chat-server/internal/chaterr"
)

// Kind distinguishes public rooms from private ones.
type Kind int

const (
	Public Kind = iota
	Private
)

func (k Kind) String() string {
	if k == Private {
		return "private"
	}
	return "public"
}

// privateCapacity is the member limit of a private room: a conversation
// between two users.
const privateCapacity = 2

type room struct {
	mu      sync.Mutex
	id      string
	kind    Kind
	members map[string]struct{}
}

// Manager tracks rooms and their member user ids. The room index has its own
// lock and each room is mutated under its own exclusive lock.
type Manager struct {
	mu    sync.RWMutex
	rooms map[string]*room
	log   *slog.Logger
}

// NewManager creates an empty manager.
func NewManager(log *slog.Logger) *Manager {
	return &Manager{
		rooms: make(map[string]*room),
		log:   log,
	}
}

// Join adds userID to roomID, creating the room with kind on first join. It
// reports whether membership changed; joining twice is a no-op.
func (m *Manager) Join(roomID, userID string, kind Kind) (bool, error) {
	r := m.getOrCreate(roomID, kind)

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.kind != kind {
		return false, fmt.Errorf("%w: %s is %s", chaterr.ErrRoomKindMismatch, roomID, r.kind)
	}
	if _, ok := r.members[userID]; ok {
		return false, nil
	}
	if r.kind == Private && len(r.members) >= privateCapacity {
		return false, fmt.Errorf("%w: %s", chaterr.ErrRoomFull, roomID)
	}
	r.members[userID] = struct{}{}
	m.log.Debug("User joined room", "room_id", roomID, "user_id", userID, "kind", r.kind.String(), "members", len(r.members))
	return true, nil
}

// Leave removes userID from roomID and reports whether membership changed.
// Leaving a room the user is not in, or an unknown room, is a no-op.
func (m *Manager) Leave(roomID, userID string) bool {
	r, ok := m.get(roomID)
	if !ok {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, member := r.members[userID]; !member {
		return false
	}
	delete(r.members, userID)
	m.log.Debug("User left room", "room_id", roomID, "user_id", userID, "members", len(r.members))
	return true
}

// RemoveUser takes userID out of every room and returns the rooms it left.
func (m *Manager) RemoveUser(userID string) []string {
	m.mu.RLock()
	all := lo.Values(m.rooms)
	m.mu.RUnlock()

	var left []string
	for _, r := range all {
		if m.Leave(r.id, userID) {
			left = append(left, r.id)
		}
	}
	return left
}

// MembersOf returns the member user ids of roomID in no particular order.
func (m *Manager) MembersOf(roomID string) []string {
	r, ok := m.get(roomID)
	if !ok {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	return lo.Keys(r.members)
}

// IsMember reports whether userID belongs to roomID.
func (m *Manager) IsMember(roomID, userID string) bool {
	r, ok := m.get(roomID)
	if !ok {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	_, member := r.members[userID]
	return member
}

// IsPrivate fails with chaterr.ErrRoomNotFound for unknown rooms.
func (m *Manager) IsPrivate(roomID string) (bool, error) {
	r, ok := m.get(roomID)
	if !ok {
		return false, fmt.Errorf("%w: %s", chaterr.ErrRoomNotFound, roomID)
	}
	return r.kind == Private, nil
}

// Exists reports whether roomID has ever been joined.
func (m *Manager) Exists(roomID string) bool {
	_, ok := m.get(roomID)
	return ok
}

// MemberCount returns the number of members of roomID.
func (m *Manager) MemberCount(roomID string) int {
	r, ok := m.get(roomID)
	if !ok {
		return 0
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.members)
}

// RoomCount returns the number of known rooms.
func (m *Manager) RoomCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.rooms)
}

func (m *Manager) get(roomID string) (*room, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.rooms[roomID]
	return r, ok
}

func (m *Manager) getOrCreate(roomID string, kind Kind) *room {
	if r, ok := m.get(roomID); ok {
		return r
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if r, ok := m.rooms[roomID]; ok {
		return r
	}
	r := &room{id: roomID, kind: kind, members: make(map[string]struct{})}
	m.rooms[roomID] = r
	m.log.Info("Room created", "room_id", roomID, "kind", kind.String(), "rooms", len(m.rooms))
	return r
}
