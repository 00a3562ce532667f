package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"

	"github.com/Tyrowin/nexus-chat-server/internal/chaterr"
	"github.com/Tyrowin/nexus-chat-server/internal/protocol"
)

const frameTimeout = time.Second

type hubFixture struct {
	t   *testing.T
	srv *Server
	hub *Hub
}

func newHubFixture(t *testing.T) *hubFixture {
	t.Helper()
	cfg := NewConfig()
	srv := New(cfg, logs.GetLoggerFromLevel(slog.LevelDebug))
	srv.Start()
	t.Cleanup(func() { _ = srv.Hub().Shutdown(time.Second) })
	return &hubFixture{t: t, srv: srv, hub: srv.Hub()}
}

// connect registers a client without a network connection and consumes its
// initial client_count.
func (f *hubFixture) connect(userID string) *Client {
	return f.connectWithBuffer(userID, f.srv.cfg.SendBufferSize)
}

func (f *hubFixture) connectWithBuffer(userID string, size int) *Client {
	f.t.Helper()
	cfg := f.srv.cfg
	cfg.SendBufferSize = size
	c := NewClient(nil, f.hub, "test", userID, cfg, f.srv.log)
	require.True(f.t, f.hub.Register(c))
	return c
}

func (f *hubFixture) emit(c *Client, cmd protocol.Command) {
	f.t.Helper()
	require.True(f.t, f.hub.dispatch(inbound{client: c, cmd: cmd}))
}

// next returns the next frame queued for c.
func (f *hubFixture) next(c *Client) protocol.Envelope {
	f.t.Helper()
	select {
	case frame, ok := <-c.SendChan():
		require.True(f.t, ok, "client %s closed", c.id)
		var env protocol.Envelope
		require.NoError(f.t, json.Unmarshal(frame, &env))
		return env
	case <-time.After(frameTimeout):
		f.t.Fatalf("no frame for client %s", c.id)
		return protocol.Envelope{}
	}
}

// until skips frames until one named event arrives.
func (f *hubFixture) until(c *Client, event string) protocol.Envelope {
	f.t.Helper()
	for {
		if env := f.next(c); env.Event == event {
			return env
		}
	}
}

func (f *hubFixture) errorText(c *Client) string {
	f.t.Helper()
	var text string
	require.NoError(f.t, json.Unmarshal(f.until(c, protocol.Error).Data, &text))
	return text
}

func (f *hubFixture) quiet(c *Client, event string) {
	f.t.Helper()
	deadline := time.After(100 * time.Millisecond)
	for {
		select {
		case frame, ok := <-c.SendChan():
			if !ok {
				return
			}
			var env protocol.Envelope
			require.NoError(f.t, json.Unmarshal(frame, &env))
			require.NotEqual(f.t, event, env.Event, "unexpected %s", frame)
		case <-deadline:
			return
		}
	}
}

func count(t *testing.T, env protocol.Envelope) int {
	t.Helper()
	var n int
	require.NoError(t, json.Unmarshal(env.Data, &n))
	return n
}

func TestHub_ClientCountOnConnect(t *testing.T) {
	f := newHubFixture(t)

	alice := f.connect("alice")
	require.Equal(t, 1, count(t, f.until(alice, protocol.ClientCount)))

	f.connect("bob")
	require.Equal(t, 2, count(t, f.until(alice, protocol.ClientCount)))
}

func TestHub_RejoinFromSecondDeviceOnlyUpdatesThatDevice(t *testing.T) {
	f := newHubFixture(t)
	phone := f.connect("alice")
	laptop := f.connect("alice")

	f.emit(phone, protocol.JoinPublicRoom{RoomID: "R", UserID: "alice"})
	require.Equal(t, 1, count(t, f.until(phone, protocol.RoomCount)))

	f.emit(laptop, protocol.JoinPublicRoom{RoomID: "R", UserID: "alice"})
	require.Equal(t, 1, count(t, f.until(laptop, protocol.RoomCount)))
	f.quiet(phone, protocol.RoomCount)
}

func TestHub_LeaveIsUserWide(t *testing.T) {
	f := newHubFixture(t)
	phone := f.connect("alice")
	laptop := f.connect("alice")

	f.emit(phone, protocol.JoinPublicRoom{RoomID: "R", UserID: "alice"})
	f.emit(laptop, protocol.JoinPublicRoom{RoomID: "R", UserID: "alice"})
	f.until(laptop, protocol.RoomCount)

	f.emit(phone, protocol.LeaveRoom{RoomID: "R", UserID: "alice"})
	f.emit(laptop, protocol.SendPublic{RoomID: "R", UserID: "alice", Message: "hi"})

	require.Contains(t, f.errorText(laptop), chaterr.ErrNotInRoom.Error())
	require.False(t, f.hub.rooms.IsMember("R", "alice"))
}

func TestHub_LeaveUnknownRoom(t *testing.T) {
	f := newHubFixture(t)
	alice := f.connect("alice")

	f.emit(alice, protocol.LeaveRoom{RoomID: "nowhere", UserID: "alice"})

	require.Contains(t, f.errorText(alice), chaterr.ErrRoomNotFound.Error())
}

func TestHub_PrivateRecipientResolution(t *testing.T) {
	f := newHubFixture(t)
	alice := f.connect("alice")
	bob := f.connect("bob")

	f.emit(alice, protocol.JoinPublicRoom{RoomID: "lobby", UserID: "alice"})
	f.emit(alice, protocol.SendPrivate{RoomID: "lobby", UserID: "alice", Message: "x"})
	require.Contains(t, f.errorText(alice), chaterr.ErrNotPrivateRoom.Error())

	f.emit(alice, protocol.SendPrivate{RoomID: "ghost", UserID: "alice", Message: "x"})
	require.Contains(t, f.errorText(alice), chaterr.ErrRoomNotFound.Error())

	f.emit(alice, protocol.JoinPrivateRoom{RoomID: "dm", UserID: "alice"})
	f.emit(alice, protocol.SendPrivate{RoomID: "dm", UserID: "alice", Message: "x"})
	require.Contains(t, f.errorText(alice), chaterr.ErrUnknownRecipient.Error())

	f.emit(bob, protocol.SendPrivate{RoomID: "dm", UserID: "bob", Message: "x"})
	require.Contains(t, f.errorText(bob), chaterr.ErrNotInRoom.Error())

	f.emit(bob, protocol.JoinPrivateRoom{RoomID: "dm", UserID: "bob"})
	f.emit(bob, protocol.SendPrivate{RoomID: "dm", UserID: "bob", Message: "hello alice"})

	var got protocol.PrivateMessagePayload
	require.NoError(t, json.Unmarshal(f.until(alice, protocol.PrivateMessage).Data, &got))
	require.Equal(t, protocol.PrivateMessagePayload{
		SID:         bob.id,
		Message:     "hello alice",
		MessageID:   got.MessageID,
		RecipientID: "alice",
		SenderID:    "bob",
		RoomID:      "dm",
	}, got)
}

func TestHub_KindMismatch(t *testing.T) {
	f := newHubFixture(t)
	alice := f.connect("alice")

	f.emit(alice, protocol.JoinPublicRoom{RoomID: "R", UserID: "alice"})
	f.emit(alice, protocol.JoinPrivateRoom{RoomID: "R", UserID: "alice"})

	require.Contains(t, f.errorText(alice), chaterr.ErrRoomKindMismatch.Error())
}

func TestHub_DecodeErrorIsReported(t *testing.T) {
	f := newHubFixture(t)
	alice := f.connect("alice")

	_, err := protocol.Decode([]byte(`{"event":"leave_room"}`))
	require.True(t, f.hub.dispatch(inbound{client: alice, err: err}))

	require.Contains(t, f.errorText(alice), "requires a data object")
}

// TestHub_SlowClientIsEvicted fills a client's buffer; the next frame for it
// evicts the connection and prunes its rooms.
func TestHub_SlowClientIsEvicted(t *testing.T) {
	f := newHubFixture(t)

	slow := f.connectWithBuffer("slow", 2)
	f.emit(slow, protocol.JoinPublicRoom{RoomID: "R", UserID: "slow"})
	require.Eventually(t, func() bool { return f.hub.rooms.IsMember("R", "slow") }, time.Second, 5*time.Millisecond)

	fast := f.connect("fast")

	require.Equal(t, 2, count(t, f.until(fast, protocol.ClientCount)))
	require.Equal(t, 1, count(t, f.until(fast, protocol.ClientCount)))
	require.False(t, f.hub.rooms.IsMember("R", "slow"))
	require.Equal(t, 1, f.hub.ClientCount())

	drained := 0
	for range slow.SendChan() {
		drained++
	}
	require.Equal(t, 2, drained)
}

func TestHub_DisconnectPrunesRooms(t *testing.T) {
	f := newHubFixture(t)
	alice := f.connect("alice")
	bob := f.connect("bob")
	f.emit(alice, protocol.JoinPublicRoom{RoomID: "R", UserID: "alice"})
	f.emit(bob, protocol.JoinPublicRoom{RoomID: "R", UserID: "bob"})
	f.until(alice, protocol.UserJoined)

	f.hub.unregisterClient(bob)

	var left string
	require.NoError(t, json.Unmarshal(f.until(alice, protocol.UserLeft).Data, &left))
	require.Equal(t, "bob", left)
	require.Equal(t, 1, count(t, f.until(alice, protocol.RoomCount)))
	require.Equal(t, 1, count(t, f.until(alice, protocol.ClientCount)))
	require.Equal(t, []string{"alice"}, f.hub.rooms.MembersOf("R"))
}

func TestHub_ShutdownWithoutRunTimesOut(t *testing.T) {
	srv := New(NewConfig(), logs.GetLoggerFromLevel(slog.LevelDebug))

	start := time.Now()
	err := srv.Hub().Shutdown(50 * time.Millisecond)

	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Less(t, time.Since(start), frameTimeout)
}

func TestHub_ShutdownAfterRun(t *testing.T) {
	srv := New(NewConfig(), logs.GetLoggerFromLevel(slog.LevelDebug))
	srv.Start()

	require.NoError(t, srv.Hub().Shutdown(time.Second))
	require.NoError(t, srv.Hub().Shutdown(time.Second))
}
