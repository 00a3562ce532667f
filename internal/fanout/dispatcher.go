// Package fanout hands one encoded frame to many connections. Each recipient
// is isolated: a full queue or a panicking outbox only affects that
// recipient, which is reported to the drop handler.
package fanout

import (
	"log/slog"
	"sync"

	"github.com/samber/lo"

	"github.com/Tyrowin/nexus-chat-server/internal/registry"
)

// DropHandler is told about connections that could not take a frame.
type DropHandler func(conn registry.Connection)

// Dispatcher delivers frames to connection outboxes without blocking.
type Dispatcher struct {
	log    *slog.Logger
	mu     sync.RWMutex
	onDrop DropHandler
}

// NewDispatcher creates a dispatcher that only logs dropped frames until a
// DropHandler is installed.
func NewDispatcher(log *slog.Logger) *Dispatcher {
	return &Dispatcher{log: log}
}

// OnDrop installs the handler called for every failed delivery.
func (d *Dispatcher) OnDrop(fn DropHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.onDrop = fn
}

// Deliver enqueues frame on every connection and returns how many accepted it.
func (d *Dispatcher) Deliver(conns []registry.Connection, frame []byte) int {
	delivered := 0
	for _, conn := range conns {
		if d.deliverOne(conn, frame) {
			delivered++
			continue
		}
		d.dropped(conn)
	}
	return delivered
}

// DeliverExcept delivers to every connection not owned by userID.
func (d *Dispatcher) DeliverExcept(conns []registry.Connection, userID string, frame []byte) int {
	return d.Deliver(lo.Reject(conns, func(conn registry.Connection, _ int) bool {
		return conn.UserID == userID
	}), frame)
}

func (d *Dispatcher) deliverOne(conn registry.Connection, frame []byte) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Error("Recovered from panic while enqueuing", "sid", conn.SessionID, "panic", r)
			ok = false
		}
	}()

	if conn.Outbox == nil {
		return false
	}
	return conn.Outbox.Enqueue(frame)
}

func (d *Dispatcher) dropped(conn registry.Connection) {
	d.log.Warn("Frame dropped, send buffer full or closed", "sid", conn.SessionID, "user_id", conn.UserID)

	d.mu.RLock()
	fn := d.onDrop
	d.mu.RUnlock()

	if fn != nil {
		fn(conn)
	}
}
