package integration

import (
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/Tyrowin/nexus-chat-server/internal/protocol"
	"github.com/Tyrowin/nexus-chat-server/internal/server"
	"github.com/Tyrowin/nexus-chat-server/test/testhelpers"
)

// TestOriginValidation covers the origin allow-list on the upgrade.
func TestOriginValidation(t *testing.T) {
	tests := []struct {
		name    string
		allowed []string
		origin  string
		wantOK  bool
	}{
		{"allowed origin", []string{"http://localhost:8080"}, "http://localhost:8080", true},
		{"case insensitive", []string{"http://localhost:8080"}, "HTTP://LOCALHOST:8080", true},
		{"other origin", []string{"http://localhost:8080"}, "http://evil.example", false},
		{"missing origin", []string{"http://localhost:8080"}, "", false},
		{"different port", []string{"http://localhost:8080"}, "http://localhost:9090", false},
		{"wildcard", []string{"*"}, "http://anything.example", true},
		{"wildcard without origin", []string{"*"}, "", true},
		{"one of several", []string{"https://a.example", "https://b.example"}, "https://b.example", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, testServer := testhelpers.StartGateway(t, testhelpers.TestConfig(func(cfg *server.Config) {
				cfg.AllowedOrigins = tt.allowed
			}))

			conn, err := testhelpers.ConnectWebSocketWithOrigin(testhelpers.WebSocketURL(t, testServer.URL, "alice"), tt.origin)
			if tt.wantOK {
				require.NoError(t, err)
				_ = conn.Close()
				return
			}
			require.ErrorIs(t, err, websocket.ErrBadHandshake)
		})
	}
}

// TestMessageSizeLimit closes connections that send frames above MaxMessageSize.
func TestMessageSizeLimit(t *testing.T) {
	_, testServer := testhelpers.StartGateway(t, testhelpers.TestConfig(func(cfg *server.Config) {
		cfg.MaxMessageSize = 512
	}))

	alice := testhelpers.Connect(t, testServer.URL, "alice")
	bob := testhelpers.Connect(t, testServer.URL, "bob")
	bob.JoinPublic(t, "R", "bob")

	big := publicMessage("R", "alice", strings.Repeat("x", 1024))
	alice.Emit(t, protocol.SendPublicMessage, big)

	select {
	case <-alice.Closed():
	case <-time.After(testhelpers.DefaultTimeout):
		t.Fatal("oversized frame did not close the connection")
	}
	bob.WaitForCount(t, protocol.ClientCount, 1)
}

// TestMessageLengthLimit rejects chat text longer than the protocol limit
// while the frame itself fits.
func TestMessageLengthLimit(t *testing.T) {
	_, testServer := testhelpers.StartGateway(t, testhelpers.TestConfig(nil))

	alice := testhelpers.Connect(t, testServer.URL, "alice")
	alice.JoinPublic(t, "R", "alice")

	alice.Emit(t, protocol.SendPublicMessage, publicMessage("R", "alice", strings.Repeat("ж", protocol.MaxMessageLength+1)))
	require.Contains(t, alice.WaitForEvent(t, protocol.Error).Text(t), "message exceeds")

	select {
	case <-alice.Closed():
		t.Fatal("connection closed after an over-long message")
	default:
	}
}

// TestMultiByteMessageWithinDefaultLimits delivers a message of
// MaxMessageLength two-byte characters under the default frame size.
func TestMultiByteMessageWithinDefaultLimits(t *testing.T) {
	_, testServer := testhelpers.StartGateway(t, testhelpers.TestConfig(nil))

	alice := testhelpers.Connect(t, testServer.URL, "alice")
	alice.JoinPublic(t, "R", "alice")

	text := strings.Repeat("ж", protocol.MaxMessageLength)
	alice.Emit(t, protocol.SendPublicMessage, publicMessage("R", "alice", text))
	require.Equal(t, text, decodeMessage(t, alice.WaitForEvent(t, protocol.Message)).Message)
}

// TestWebSocketRateLimiting discards messages beyond the burst.
func TestWebSocketRateLimiting(t *testing.T) {
	_, testServer := testhelpers.StartGateway(t, testhelpers.TestConfig(func(cfg *server.Config) {
		cfg.RateLimit = server.RateLimitConfig{Burst: 3, RefillInterval: time.Minute}
	}))

	alice := testhelpers.Connect(t, testServer.URL, "alice")
	alice.JoinPublic(t, "R", "alice")

	for range 10 {
		alice.Emit(t, protocol.SendPublicMessage, publicMessage("R", "alice", "spam"))
	}

	received := 0
	for {
		ev, ok := alice.Next(quietPeriod * 2)
		if !ok {
			break
		}
		if ev.Name == protocol.Message {
			received++
		}
	}
	// The join used one token of the burst.
	require.Equal(t, 2, received)
}

// TestRateLimitedClientStaysConnected checks discarded messages do not
// close the connection.
func TestRateLimitedClientStaysConnected(t *testing.T) {
	_, testServer := testhelpers.StartGateway(t, testhelpers.TestConfig(func(cfg *server.Config) {
		cfg.RateLimit = server.RateLimitConfig{Burst: 1, RefillInterval: 100 * time.Millisecond}
	}))

	alice := testhelpers.Connect(t, testServer.URL, "alice")
	for range 5 {
		alice.Emit(t, protocol.JoiningPublicRoom, map[string]string{"room_id": "R", "user_id": "alice"})
	}
	time.Sleep(300 * time.Millisecond)
	alice.JoinPublic(t, "R", "alice")

	resp := testhelpers.MakeRequest(t, http.MethodGet, testServer.URL+"/stats")
	defer resp.Body.Close()
	testhelpers.AssertStatusCode(t, resp, http.StatusOK)
}
