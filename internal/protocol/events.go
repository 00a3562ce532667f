// Package protocol defines the JSON envelope exchanged over the WebSocket
// endpoint, the inbound commands clients may send and the outbound events
// the gateway emits.
package protocol

import (
	"encoding/json"
	"fmt"
)

// Inbound event names.
const (
	JoiningPublicRoom  = "joining_public_room"
	JoiningPrivateRoom = "joining_private_room"
	SendPublicMessage  = "send_public_message"
	SendPrivateMessage = "send_private_message"
	LeaveRoomEvent     = "leave_room"
)

// Outbound event names.
const (
	ClientCount    = "client_count"
	RoomCount      = "room_count"
	UserJoined     = "user_joined"
	UserLeft       = "user_left"
	Message        = "message"
	PrivateMessage = "private_message"
	Error          = "error"
)

// Envelope is the frame format in both directions.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// MessagePayload is the data of a `message` event.
type MessagePayload struct {
	SID       string `json:"sid"`
	Message   string `json:"message"`
	MessageID string `json:"message_id"`
	UserID    string `json:"user_id"`
	RoomID    string `json:"room_id"`
}

// PrivateMessagePayload is the data of a `private_message` event.
type PrivateMessagePayload struct {
	SID         string `json:"sid"`
	Message     string `json:"message"`
	MessageID   string `json:"message_id"`
	RecipientID string `json:"recipient_id"`
	SenderID    string `json:"sender_id"`
	RoomID      string `json:"room_id,omitempty"`
}

// Encode wraps data into an envelope named event and marshals it once, so a
// fanout can hand the same frame to every recipient.
func Encode(event string, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", event, err)
	}
	return json.Marshal(Envelope{Event: event, Data: raw})
}

// EncodeError builds an `error` frame carrying err's message.
func EncodeError(err error) []byte {
	frame, encErr := Encode(Error, err.Error())
	if encErr != nil {
		return []byte(`{"event":"error","data":"internal error"}`)
	}
	return frame
}
