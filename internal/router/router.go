// Package router delivers chat messages: public messages to every connection
// of every member of a room, private messages to every connection of a single
// recipient.
package router

import (
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/Tyrowin/nexus-chat-server/internal/chaterr"
	"github.com/Tyrowin/nexus-chat-server/internal/fanout"
	"github.com/Tyrowin/nexus-chat-server/internal/protocol"
	"github.com/Tyrowin/nexus-chat-server/internal/registry"
	"github.com/Tyrowin/nexus-chat-server/internal/rooms"
)

// MessageID identifies a routed message. Ids are never reused.
type MessageID string

// Sender identifies who sent a message and from which session.
type Sender struct {
	UserID    string
	SessionID string
}

// Router routes messages using the room memberships and live connections.
type Router struct {
	registry   *registry.Registry
	rooms      *rooms.Manager
	dispatcher *fanout.Dispatcher
	log        *slog.Logger
}

// New creates a router.
func New(reg *registry.Registry, rm *rooms.Manager, d *fanout.Dispatcher, log *slog.Logger) *Router {
	return &Router{registry: reg, rooms: rm, dispatcher: d, log: log}
}

// NewMessageID returns a time-ordered UUIDv7, unique within the process.
func NewMessageID() MessageID {
	id, err := uuid.NewV7()
	if err != nil {
		return MessageID(uuid.NewString())
	}
	return MessageID(id.String())
}

// SendPublic broadcasts text to roomID. The sender must be a member and
// receives its own echo.
func (r *Router) SendPublic(roomID string, sender Sender, text string) (MessageID, error) {
	if !r.rooms.Exists(roomID) {
		return "", fmt.Errorf("%w: %s", chaterr.ErrRoomNotFound, roomID)
	}
	if !r.rooms.IsMember(roomID, sender.UserID) {
		return "", fmt.Errorf("%w: %s", chaterr.ErrNotInRoom, roomID)
	}

	id := NewMessageID()
	frame, err := protocol.Encode(protocol.Message, protocol.MessagePayload{
		SID:       sender.SessionID,
		Message:   text,
		MessageID: string(id),
		UserID:    sender.UserID,
		RoomID:    roomID,
	})
	if err != nil {
		return "", err
	}

	conns := r.registry.ConnectionsForUsers(r.rooms.MembersOf(roomID))
	delivered := r.dispatcher.Deliver(conns, frame)
	r.log.Debug("Public message routed", "room_id", roomID, "user_id", sender.UserID, "message_id", id, "targets", len(conns), "delivered", delivered)
	return id, nil
}

// SendPrivate delivers text to every connection of recipientID. roomID is the
// private conversation the message belongs to and may be empty.
func (r *Router) SendPrivate(recipientID string, sender Sender, text, roomID string) (MessageID, error) {
	conns := r.registry.ConnectionsForUser(recipientID)
	if len(conns) == 0 {
		return "", fmt.Errorf("%w: %s", chaterr.ErrUnknownRecipient, recipientID)
	}

	id := NewMessageID()
	frame, err := protocol.Encode(protocol.PrivateMessage, protocol.PrivateMessagePayload{
		SID:         sender.SessionID,
		Message:     text,
		MessageID:   string(id),
		RecipientID: recipientID,
		SenderID:    sender.UserID,
		RoomID:      roomID,
	})
	if err != nil {
		return "", err
	}

	delivered := r.dispatcher.Deliver(conns, frame)
	r.log.Debug("Private message routed", "room_id", roomID, "sender_id", sender.UserID, "recipient_id", recipientID, "message_id", id, "delivered", delivered)
	return id, nil
}
