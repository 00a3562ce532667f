package server

import (
	"fmt"

	"github.com/samber/lo"

	"github.com/Tyrowin/nexus-chat-server/internal/chaterr"
)

// State is the lifecycle state of a connection on the gateway.
type State int

const (
	StateConnected State = iota
	StateJoined
	StateDisconnected
)

func (s State) String() string {
	switch s {
	case StateConnected:
		return "CONNECTED"
	case StateJoined:
		return "JOINED"
	case StateDisconnected:
		return "DISCONNECTED"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

type trigger string

const (
	triggerJoin        trigger = "join"
	triggerLeave       trigger = "leave"
	triggerSendPublic  trigger = "send_public"
	triggerSendPrivate trigger = "send_private"
	triggerDisconnect  trigger = "disconnect"
)

// transitions lists every allowed (state, trigger) pair. A leave from JOINED
// lands in CONNECTED once the last room is gone. DISCONNECTED is terminal.
var transitions = map[State]map[trigger]State{
	StateConnected: {
		triggerJoin:        StateJoined,
		triggerLeave:       StateConnected,
		triggerSendPrivate: StateConnected,
		triggerDisconnect:  StateDisconnected,
	},
	StateJoined: {
		triggerJoin:        StateJoined,
		triggerLeave:       StateJoined,
		triggerSendPublic:  StateJoined,
		triggerSendPrivate: StateJoined,
		triggerDisconnect:  StateDisconnected,
	},
}

// session is the per-connection state machine. It is only touched by the hub
// goroutine.
type session struct {
	id    string
	state State
	rooms map[string]struct{}
}

func newSession(id string) *session {
	return &session{id: id, state: StateConnected, rooms: make(map[string]struct{})}
}

func (s *session) next(t trigger) (State, error) {
	if s.state == StateDisconnected {
		return s.state, fmt.Errorf("%w: %s", chaterr.ErrSessionClosed, s.id)
	}
	to, ok := transitions[s.state][t]
	if !ok {
		if t == triggerSendPublic {
			return s.state, chaterr.ErrNotInRoom
		}
		return s.state, fmt.Errorf("%w: %s not allowed in %s", chaterr.ErrSessionClosed, t, s.state)
	}
	return to, nil
}

func (s *session) can(t trigger) error {
	_, err := s.next(t)
	return err
}

func (s *session) join(roomID string) error {
	to, err := s.next(triggerJoin)
	if err != nil {
		return err
	}
	s.rooms[roomID] = struct{}{}
	s.state = to
	return nil
}

func (s *session) leave(roomID string) error {
	to, err := s.next(triggerLeave)
	if err != nil {
		return err
	}
	delete(s.rooms, roomID)
	if len(s.rooms) == 0 {
		to = StateConnected
	}
	s.state = to
	return nil
}

func (s *session) canSendPublic(roomID string) error {
	if err := s.can(triggerSendPublic); err != nil {
		return fmt.Errorf("%w: %s", err, roomID)
	}
	if !s.holds(roomID) {
		return fmt.Errorf("%w: %s", chaterr.ErrNotInRoom, roomID)
	}
	return nil
}

func (s *session) holds(roomID string) bool {
	_, ok := s.rooms[roomID]
	return ok
}

// disconnect moves to DISCONNECTED and hands back the rooms the session held.
func (s *session) disconnect() []string {
	if s.state == StateDisconnected {
		return nil
	}
	held := lo.Keys(s.rooms)
	s.rooms = make(map[string]struct{})
	s.state = StateDisconnected
	return held
}
