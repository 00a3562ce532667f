package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
	"github.com/samber/lo"

	"github.com/Tyrowin/nexus-chat-server/internal/chaterr"
)

// MaxMessageLength bounds the text of a single chat message, in characters.
const MaxMessageLength = 4000

// MaxFrameSize is the largest frame a valid command can take: MaxMessageLength
// four-byte characters plus the envelope and ids.
const MaxFrameSize = 4*MaxMessageLength + 1024

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("chatlen", func(fl validator.FieldLevel) bool {
		return utf8.RuneCountInString(fl.Field().String()) <= MaxMessageLength
	})
	return v
}

// Command is an inbound client event. Concrete types are dispatched with a
// type switch.
type Command interface {
	Event() string
	User() string
	Room() string
}

type JoinPublicRoom struct {
	RoomID string `json:"room_id" validate:"required"`
	UserID string `json:"user_id" validate:"required"`
}

type JoinPrivateRoom struct {
	RoomID string `json:"room_id" validate:"required"`
	UserID string `json:"user_id" validate:"required"`
}

type LeaveRoom struct {
	RoomID string `json:"room_id" validate:"required"`
	UserID string `json:"user_id" validate:"required"`
}

type SendPublic struct {
	RoomID  string `json:"room_id" validate:"required"`
	Message string `json:"message" validate:"required,chatlen"`
	UserID  string `json:"user_id" validate:"required"`
}

// SendPrivate targets RecipientID, or the other member of the private room
// RoomID when RecipientID is empty.
type SendPrivate struct {
	RoomID      string `json:"room_id" validate:"required"`
	UserID      string `json:"user_id" validate:"required"`
	Message     string `json:"message" validate:"required,chatlen"`
	RecipientID string `json:"recipient_id,omitempty"`
}

func (c JoinPublicRoom) Event() string  { return JoiningPublicRoom }
func (c JoinPublicRoom) User() string   { return c.UserID }
func (c JoinPublicRoom) Room() string   { return c.RoomID }
func (c JoinPrivateRoom) Event() string { return JoiningPrivateRoom }
func (c JoinPrivateRoom) User() string  { return c.UserID }
func (c JoinPrivateRoom) Room() string  { return c.RoomID }
func (c LeaveRoom) Event() string       { return LeaveRoomEvent }
func (c LeaveRoom) User() string        { return c.UserID }
func (c LeaveRoom) Room() string        { return c.RoomID }
func (c SendPublic) Event() string      { return SendPublicMessage }
func (c SendPublic) User() string       { return c.UserID }
func (c SendPublic) Room() string       { return c.RoomID }
func (c SendPrivate) Event() string     { return SendPrivateMessage }
func (c SendPrivate) User() string      { return c.UserID }
func (c SendPrivate) Room() string      { return c.RoomID }

// Decode parses a client frame into a validated Command. Errors wrap
// chaterr.ErrInvalidPayload or chaterr.ErrUnknownEvent.
func Decode(frame []byte) (Command, error) {
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return nil, fmt.Errorf("%w: frame is not a JSON envelope", chaterr.ErrInvalidPayload)
	}

	switch env.Event {
	case JoiningPublicRoom:
		return decodeAs[JoinPublicRoom](env)
	case JoiningPrivateRoom:
		return decodeAs[JoinPrivateRoom](env)
	case LeaveRoomEvent:
		return decodeAs[LeaveRoom](env)
	case SendPublicMessage:
		return decodeAs[SendPublic](env)
	case SendPrivateMessage:
		return decodeAs[SendPrivate](env)
	case "":
		return nil, fmt.Errorf("%w: missing event name", chaterr.ErrInvalidPayload)
	default:
		return nil, fmt.Errorf("%w: %q", chaterr.ErrUnknownEvent, env.Event)
	}
}

func decodeAs[T Command](env Envelope) (Command, error) {
	var cmd T
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return nil, fmt.Errorf("%w: %s requires a data object", chaterr.ErrInvalidPayload, env.Event)
	}
	if err := json.Unmarshal(env.Data, &cmd); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) && typeErr.Field != "" {
			return nil, fmt.Errorf("%w: %s must be a %s", chaterr.ErrInvalidPayload, typeErr.Field, typeErr.Type.Kind())
		}
		return nil, fmt.Errorf("%w: %s data is not an object", chaterr.ErrInvalidPayload, env.Event)
	}
	if err := validate.Struct(cmd); err != nil {
		return nil, fmt.Errorf("%w: %s", chaterr.ErrInvalidPayload, describe(err))
	}
	return cmd, nil
}

func describe(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	return strings.Join(lo.Map(verrs, func(fe validator.FieldError, _ int) string {
		switch fe.Tag() {
		case "required":
			return fe.Field() + " is required"
		case "chatlen":
			return fe.Field() + " exceeds " + strconv.Itoa(MaxMessageLength) + " characters"
		default:
			return fe.Field() + " is invalid"
		}
	}), ", ")
}
