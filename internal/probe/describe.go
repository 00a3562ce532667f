package probe

import (
	"encoding/json"
	"fmt"

	"github.com/gookit/color"

	"github.com/Tyrowin/nexus-chat-server/internal/protocol"
)

// Describe renders an event as one console line.
func Describe(env protocol.Envelope) (string, error) {
	switch env.Event {
	case protocol.ClientCount:
		n, err := decode[int](env)
		return fmt.Sprintf("Number of connected clients: %d", n), err
	case protocol.RoomCount:
		n, err := decode[int](env)
		return fmt.Sprintf("Number of connected clients in the room: %d", n), err
	case protocol.UserJoined:
		user, err := decode[string](env)
		return fmt.Sprintf("%s joined the chat room", user), err
	case protocol.UserLeft:
		user, err := decode[string](env)
		return fmt.Sprintf("%s left the chat room", user), err
	case protocol.Message:
		msg, err := decode[protocol.MessagePayload](env)
		return fmt.Sprintf("Message: %s with content %s from %s", msg.MessageID, msg.Message, msg.UserID), err
	case protocol.PrivateMessage:
		msg, err := decode[protocol.PrivateMessagePayload](env)
		return fmt.Sprintf("Private message: %s from %s to %s", msg.Message, msg.SenderID, msg.RecipientID), err
	case protocol.Error:
		text, err := decode[string](env)
		return fmt.Sprintf("An error occurred: %s", text), err
	default:
		return fmt.Sprintf("%s: %s", env.Event, env.Data), nil
	}
}

func decode[T any](env protocol.Envelope) (T, error) {
	var v T
	if err := json.Unmarshal(env.Data, &v); err != nil {
		return v, fmt.Errorf("decode %s: %w", env.Event, err)
	}
	return v, nil
}

// paint colours a line by event kind.
func paint(event, line string) string {
	switch event {
	case protocol.Error:
		return color.FgRed.Render(line)
	case protocol.Message, protocol.PrivateMessage:
		return color.FgGreen.Render(line)
	case protocol.UserJoined, protocol.UserLeft:
		return color.FgCyan.Render(line)
	default:
		return color.FgGray.Render(line)
	}
}
