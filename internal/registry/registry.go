//go:generate go run go.uber.org/mock/mockgen -source=registry.go -destination=../mocks/mock_outbox.go -package=mocks

// Package registry tracks the live client connections of the gateway and the
// user identities behind them. A user may hold several connections at once.
package registry

import (
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/samber/lo"

	"github.com/Tyrowin/nexus-chat-server/internal/chaterr"
)

// Outbox is the bounded send queue of a connection. Enqueue must never block:
// it returns false when the frame could not be queued.
type Outbox interface {
	Enqueue(frame []byte) bool
}

// Connection is one live transport session.
type Connection struct {
	SessionID   string
	UserID      string
	RemoteAddr  string
	ConnectedAt time.Time
	Outbox      Outbox
}

// Registry owns every Connection. It is safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	sessions  map[string]*Connection
	byUser    map[string]map[string]struct{}
	observers []func(Connection)
	log       *slog.Logger
}

// New creates an empty registry.
func New(log *slog.Logger) *Registry {
	return &Registry{
		sessions: make(map[string]*Connection),
		byUser:   make(map[string]map[string]struct{}),
		log:      log,
	}
}

// OnUnregister adds an observer notified after a connection is removed.
// Observers run synchronously on the goroutine calling Unregister.
func (r *Registry) OnUnregister(fn func(Connection)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.observers = append(r.observers, fn)
}

// Register adds conn. It fails with chaterr.ErrDuplicateSession when the
// session id is already present.
func (r *Registry) Register(conn Connection) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sessions[conn.SessionID]; exists {
		return fmt.Errorf("%w: %s", chaterr.ErrDuplicateSession, conn.SessionID)
	}
	if conn.ConnectedAt.IsZero() {
		conn.ConnectedAt = time.Now()
	}
	r.sessions[conn.SessionID] = &conn
	if conn.UserID != "" {
		r.indexUser(conn.UserID, conn.SessionID)
	}
	r.log.Debug("Connection registered", "sid", conn.SessionID, "user_id", conn.UserID, "total", len(r.sessions))
	return nil
}

// Bind attaches userID to a session that connected anonymously. Binding the
// same user twice is a no-op; a different user fails with
// chaterr.ErrIdentityMismatch.
func (r *Registry) Bind(sessionID, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	conn, ok := r.sessions[sessionID]
	if !ok {
		return fmt.Errorf("%w: %s", chaterr.ErrSessionClosed, sessionID)
	}
	switch conn.UserID {
	case userID:
		return nil
	case "":
		conn.UserID = userID
		r.indexUser(userID, sessionID)
		return nil
	default:
		return chaterr.ErrIdentityMismatch
	}
}

// Unregister removes the session and notifies observers. Unknown sessions are
// ignored since disconnects race with evictions.
func (r *Registry) Unregister(sessionID string) {
	r.mu.Lock()
	conn, ok := r.sessions[sessionID]
	if !ok {
		r.mu.Unlock()
		return
	}
	delete(r.sessions, sessionID)
	if set, exists := r.byUser[conn.UserID]; exists {
		delete(set, sessionID)
		if len(set) == 0 {
			delete(r.byUser, conn.UserID)
		}
	}
	removed := *conn
	observers := slices.Clone(r.observers)
	total := len(r.sessions)
	r.mu.Unlock()

	r.log.Debug("Connection unregistered", "sid", sessionID, "user_id", removed.UserID, "total", total)
	for _, fn := range observers {
		fn(removed)
	}
}

// Lookup returns the connection for sessionID.
func (r *Registry) Lookup(sessionID string) (Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conn, ok := r.sessions[sessionID]
	if !ok {
		return Connection{}, false
	}
	return *conn, true
}

// ConnectionsForUser returns every live connection of userID.
func (r *Registry) ConnectionsForUser(userID string) []Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	set := r.byUser[userID]
	conns := make([]Connection, 0, len(set))
	for sid := range set {
		conns = append(conns, *r.sessions[sid])
	}
	return conns
}

// ConnectionsForUsers returns the live connections of all userIDs.
func (r *Registry) ConnectionsForUsers(userIDs []string) []Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return lo.FlatMap(lo.Uniq(userIDs), func(userID string, _ int) []Connection {
		return lo.MapToSlice(r.byUser[userID], func(sid string, _ struct{}) Connection {
			return *r.sessions[sid]
		})
	})
}

// All returns a snapshot of every live connection.
func (r *Registry) All() []Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return lo.MapToSlice(r.sessions, func(_ string, conn *Connection) Connection {
		return *conn
	})
}

// Count returns the number of live connections.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

func (r *Registry) indexUser(userID, sessionID string) {
	set, ok := r.byUser[userID]
	if !ok {
		set = make(map[string]struct{})
		r.byUser[userID] = set
	}
	set[sessionID] = struct{}{}
}
