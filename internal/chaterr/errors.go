// Package chaterr defines the request-local errors surfaced to clients as
// `error` events. None of them is fatal to a connection or to the server.
package chaterr

import "errors"

var (
	ErrDuplicateSession = errors.New("session already registered")
	ErrRoomNotFound     = errors.New("room not found")
	ErrNotInRoom        = errors.New("user is not a member of the room")
	ErrUnknownRecipient = errors.New("recipient has no live connection")
	ErrInvalidPayload   = errors.New("invalid payload")
	ErrUnknownEvent     = errors.New("unknown event")
	ErrIdentityMismatch = errors.New("user_id does not match the session")
	ErrRoomKindMismatch = errors.New("room exists with a different kind")
	ErrRoomFull         = errors.New("private room already has two members")
	ErrNotPrivateRoom   = errors.New("room is not private")
	ErrSessionClosed    = errors.New("session is closed")
)
