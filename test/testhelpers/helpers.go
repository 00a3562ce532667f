// Package testhelpers provides common utilities and helper functions for testing the chat gateway.
//
// This package contains reusable test utilities that are shared across unit and integration tests.
// It provides functions for starting gateways, dialing WebSocket clients, emitting events and
// waiting for the events the gateway sends back.
package testhelpers

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"

	"github.com/Tyrowin/nexus-chat-server/internal/protocol"
	"github.com/Tyrowin/nexus-chat-server/internal/server"
)

// TestOrigin is the Origin header sent by ConnectWebSocket.
const TestOrigin = "http://localhost:8080"

// DefaultTimeout bounds every wait for a gateway event.
const DefaultTimeout = 2 * time.Second

// Logger returns a debug logger for tests.
func Logger() *slog.Logger {
	return logs.GetLoggerFromLevel(slog.LevelDebug)
}

// TestConfig returns the default configuration with limits loose enough for
// bursty tests. customize may be nil.
func TestConfig(customize func(cfg *server.Config)) server.Config {
	cfg := server.NewConfig()
	cfg.RateLimit.Burst = 1000
	cfg.HTTPRateLimit = 1000
	cfg.ShutdownTimeout = 2 * time.Second
	if customize != nil {
		customize(&cfg)
	}
	return cfg
}

// StartGateway builds and starts a gateway behind an httptest server. Both
// are stopped when the test ends.
func StartGateway(t *testing.T, cfg server.Config) (*server.Server, *httptest.Server) {
	t.Helper()

	srv := server.New(cfg, Logger())
	srv.Start()
	testServer := httptest.NewServer(srv.Routes())

	t.Cleanup(func() {
		testServer.Close()
		_ = srv.Hub().Shutdown(cfg.ShutdownTimeout)
	})
	return srv, testServer
}

// WebSocketURL turns an http test server URL into the /ws endpoint URL.
// userID is sent as the user_id query parameter when not empty.
func WebSocketURL(t *testing.T, serverURL, userID string) string {
	t.Helper()

	u, err := url.Parse(serverURL)
	require.NoError(t, err)
	u.Scheme = strings.Replace(u.Scheme, "http", "ws", 1)
	u.Path = "/ws"
	if userID != "" {
		u.RawQuery = url.Values{"user_id": {userID}}.Encode()
	}
	return u.String()
}

// ConnectWebSocket creates a WebSocket connection to the specified URL.
// It returns the connection or an error if connection fails.
func ConnectWebSocket(wsURL string) (*websocket.Conn, error) {
	return ConnectWebSocketWithOrigin(wsURL, TestOrigin)
}

// ConnectWebSocketWithOrigin dials with the given Origin header; an empty
// origin sends none.
func ConnectWebSocketWithOrigin(wsURL, origin string) (*websocket.Conn, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: 5 * time.Second,
	}

	headers := http.Header{}
	if origin != "" {
		headers.Set("Origin", origin)
	}

	conn, resp, err := dialer.Dial(wsURL, headers)
	if resp != nil {
		_ = resp.Body.Close()
	}
	return conn, err
}

// Client is a test WebSocket client. A background reader feeds received
// envelopes to a channel, so timing out on a wait keeps the connection usable.
type Client struct {
	Conn   *websocket.Conn
	events chan Event
	done   chan struct{}
}

// Event is a received envelope.
type Event struct {
	Name string
	Data json.RawMessage
}

// NewClient starts the background reader on conn.
func NewClient(conn *websocket.Conn) *Client {
	c := &Client{Conn: conn, events: make(chan Event, 1024), done: make(chan struct{})}
	go c.read()
	return c
}

func (c *Client) read() {
	defer close(c.done)
	defer close(c.events)
	for {
		var env protocol.Envelope
		if err := c.Conn.ReadJSON(&env); err != nil {
			return
		}
		c.events <- Event{Name: env.Event, Data: env.Data}
	}
}

// Closed is closed once the server side ended the connection.
func (c *Client) Closed() <-chan struct{} {
	return c.done
}

// Close closes the underlying connection.
func (c *Client) Close() {
	_ = c.Conn.Close()
}

// Connect dials the gateway as userID, waits for the initial client_count
// and closes the connection at the end of the test.
func Connect(t *testing.T, serverURL, userID string) *Client {
	t.Helper()

	conn, err := ConnectWebSocket(WebSocketURL(t, serverURL, userID))
	require.NoError(t, err)
	c := NewClient(conn)
	t.Cleanup(c.Close)

	c.WaitForEvent(t, protocol.ClientCount)
	return c
}

// Emit sends one event envelope.
func Emit(conn *websocket.Conn, event string, data any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	return conn.WriteJSON(protocol.Envelope{Event: event, Data: raw})
}

// Emit is Emit failing the test on error.
func (c *Client) Emit(t *testing.T, event string, data any) {
	t.Helper()
	require.NoError(t, Emit(c.Conn, event, data))
}

// Int decodes the event data as an integer count.
func (e Event) Int(t *testing.T) int {
	t.Helper()
	var n int
	require.NoError(t, json.Unmarshal(e.Data, &n), "event %s data %s", e.Name, e.Data)
	return n
}

// Text decodes the event data as a string.
func (e Event) Text(t *testing.T) string {
	t.Helper()
	var s string
	require.NoError(t, json.Unmarshal(e.Data, &s), "event %s data %s", e.Name, e.Data)
	return s
}

// Decode unmarshals the event data into v.
func (e Event) Decode(t *testing.T, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(e.Data, v), "event %s data %s", e.Name, e.Data)
}

// Next returns the next event, or false on timeout or once the connection
// is gone.
func (c *Client) Next(timeout time.Duration) (Event, bool) {
	select {
	case ev, ok := <-c.events:
		return ev, ok
	case <-time.After(timeout):
		return Event{}, false
	}
}

// WaitForEvent skips events until one named event arrives.
func (c *Client) WaitForEvent(t *testing.T, event string) Event {
	t.Helper()

	deadline := time.Now().Add(DefaultTimeout)
	for {
		got, ok := c.Next(time.Until(deadline))
		require.True(t, ok, "timed out waiting for %s", event)
		if got.Name == event {
			return got
		}
	}
}

// WaitForCount waits for a count event (client_count or room_count) equal
// to want. Counts may arrive several times while other clients come and go.
func (c *Client) WaitForCount(t *testing.T, event string, want int) {
	t.Helper()

	deadline := time.Now().Add(DefaultTimeout)
	last := -1
	for {
		got, ok := c.Next(time.Until(deadline))
		require.True(t, ok, "%s: want %d, last seen %d", event, want, last)
		if got.Name != event {
			continue
		}
		if last = got.Int(t); last == want {
			return
		}
	}
}

// ExpectNoEvent fails if an event named event arrives within timeout.
func (c *Client) ExpectNoEvent(t *testing.T, event string, timeout time.Duration) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for {
		got, ok := c.Next(time.Until(deadline))
		if !ok {
			return
		}
		require.NotEqual(t, event, got.Name, "unexpected %s: %s", got.Name, got.Data)
	}
}

// Drain discards everything received within timeout.
func (c *Client) Drain(timeout time.Duration) {
	deadline := time.Now().Add(timeout)
	for {
		if _, ok := c.Next(time.Until(deadline)); !ok {
			return
		}
	}
}

// JoinPublic emits joining_public_room and waits for the joiner's room_count.
func (c *Client) JoinPublic(t *testing.T, roomID, userID string) {
	t.Helper()
	c.Emit(t, protocol.JoiningPublicRoom, map[string]string{"room_id": roomID, "user_id": userID})
	c.WaitForEvent(t, protocol.RoomCount)
}

// JoinPrivate emits joining_private_room and waits for the joiner's room_count.
func (c *Client) JoinPrivate(t *testing.T, roomID, userID string) {
	t.Helper()
	c.Emit(t, protocol.JoiningPrivateRoom, map[string]string{"room_id": roomID, "user_id": userID})
	c.WaitForEvent(t, protocol.RoomCount)
}

// AssertStatusCode checks if the HTTP response has the expected status code.
func AssertStatusCode(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	require.Equal(t, expected, resp.StatusCode, "unexpected status code")
}

// AssertContentType checks if the HTTP response has the expected Content-Type header.
func AssertContentType(t *testing.T, resp *http.Response, expected string) {
	t.Helper()
	require.Equal(t, expected, resp.Header.Get("Content-Type"))
}

// MakeRequest creates and executes an HTTP request, returning the response.
// It includes a 5-second timeout and fails the test if the request cannot be
// created or executed successfully.
func MakeRequest(t *testing.T, method, target string) *http.Response {
	t.Helper()

	client := &http.Client{
		Timeout: 5 * time.Second,
	}

	req, err := http.NewRequest(method, target, http.NoBody)
	require.NoError(t, err, "failed to create request")

	resp, err := client.Do(req)
	require.NoError(t, err, "failed to make request")
	return resp
}

// CloseWebSocket gracefully closes a WebSocket connection.
func CloseWebSocket(conn *websocket.Conn) error {
	err := conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	if err != nil {
		return fmt.Errorf("write close frame: %w", err)
	}
	return conn.Close()
}
