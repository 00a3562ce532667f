// Package presence emits the join, leave and count events that keep clients
// aware of who is around. Notifications are fire-and-forget.
package presence

import (
	"log/slog"

	"github.com/Tyrowin/nexus-chat-server/internal/fanout"
	"github.com/Tyrowin/nexus-chat-server/internal/protocol"
	"github.com/Tyrowin/nexus-chat-server/internal/registry"
	"github.com/Tyrowin/nexus-chat-server/internal/rooms"
)

// Notifier broadcasts presence events.
type Notifier struct {
	registry   *registry.Registry
	rooms      *rooms.Manager
	dispatcher *fanout.Dispatcher
	log        *slog.Logger
}

// NewNotifier creates a notifier.
func NewNotifier(reg *registry.Registry, rm *rooms.Manager, d *fanout.Dispatcher, log *slog.Logger) *Notifier {
	return &Notifier{registry: reg, rooms: rm, dispatcher: d, log: log}
}

// Joined tells the existing members of roomID that userID arrived, then
// sends the new room_count to every member including the joiner.
func (n *Notifier) Joined(roomID, userID string) {
	conns := n.roomConnections(roomID)
	if frame, ok := n.encode(protocol.UserJoined, userID); ok {
		n.dispatcher.DeliverExcept(conns, userID, frame)
	}
	n.roomCount(roomID, conns)
}

// Left tells the remaining members of roomID that userID is gone.
func (n *Notifier) Left(roomID, userID string) {
	conns := n.roomConnections(roomID)
	if frame, ok := n.encode(protocol.UserLeft, userID); ok {
		n.dispatcher.Deliver(conns, frame)
	}
	n.roomCount(roomID, conns)
}

// RoomCountTo sends the current room_count of roomID to conns only.
func (n *Notifier) RoomCountTo(roomID string, conns []registry.Connection) {
	n.roomCount(roomID, conns)
}

// ClientCount sends the global client_count to every live connection.
func (n *Notifier) ClientCount() {
	conns := n.registry.All()
	if frame, ok := n.encode(protocol.ClientCount, len(conns)); ok {
		n.dispatcher.Deliver(conns, frame)
	}
}

func (n *Notifier) roomCount(roomID string, conns []registry.Connection) {
	count := n.rooms.MemberCount(roomID)
	if frame, ok := n.encode(protocol.RoomCount, count); ok {
		n.dispatcher.Deliver(conns, frame)
	}
	n.log.Debug("Room count sent", "room_id", roomID, "count", count, "targets", len(conns))
}

func (n *Notifier) roomConnections(roomID string) []registry.Connection {
	return n.registry.ConnectionsForUsers(n.rooms.MembersOf(roomID))
}

func (n *Notifier) encode(event string, data any) ([]byte, bool) {
	frame, err := protocol.Encode(event, data)
	if err != nil {
		n.log.Error("Failed to encode presence event", "event", event, "error", err)
		return nil, false
	}
	return frame, true
}
