// Package unit contains unit tests for individual components of the chat gateway.
//
// These tests focus on testing specific functions and methods in isolation,
// driving handlers with httptest recorders and clients without a network
// connection.
package unit

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Tyrowin/nexus-chat-server/internal/server"
	"github.com/Tyrowin/nexus-chat-server/test/testhelpers"
)

const healthBody = "Nexus chat server is running!"

func newServer(t *testing.T) *server.Server {
	t.Helper()
	srv := server.New(testhelpers.TestConfig(nil), testhelpers.Logger())
	srv.Start()
	t.Cleanup(func() { _ = srv.Hub().Shutdown(time.Second) })
	return srv
}

// TestHealthHandlerUnit tests the health handler function in isolation.
// It verifies that the handler answers every method on the root path.
func TestHealthHandlerUnit(t *testing.T) {
	srv := newServer(t)

	for _, method := range []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"} {
		t.Run("Test_"+method+"_method", func(t *testing.T) {
			req, err := http.NewRequest(method, "/", http.NoBody)
			if err != nil {
				t.Fatal(err)
			}

			rr := httptest.NewRecorder()
			srv.HealthHandler(rr, req)

			if status := rr.Code; status != http.StatusOK {
				t.Errorf("handler returned wrong status code: got %v want %v", status, http.StatusOK)
			}
			if rr.Body.String() != healthBody {
				t.Errorf("handler returned unexpected body: got %v want %v", rr.Body.String(), healthBody)
			}
		})
	}
}

// TestStatsHandlerUnit checks the JSON body of an idle gateway.
func TestStatsHandlerUnit(t *testing.T) {
	srv := newServer(t)

	rr := httptest.NewRecorder()
	srv.StatsHandler(rr, httptest.NewRequest(http.MethodGet, "/stats", http.NoBody))

	if rr.Code != http.StatusOK {
		t.Fatalf("handler returned wrong status code: got %v", rr.Code)
	}
	var stats server.Stats
	if err := json.Unmarshal(rr.Body.Bytes(), &stats); err != nil {
		t.Fatalf("stats body is not JSON: %v", err)
	}
	if stats != (server.Stats{}) {
		t.Errorf("expected empty stats, got %+v", stats)
	}
}

// TestWebSocketHandlerMethodValidation verifies that only GET reaches the upgrader.
func TestWebSocketHandlerMethodValidation(t *testing.T) {
	srv := newServer(t)

	for _, method := range []string{"POST", "PUT", "DELETE", "PATCH"} {
		t.Run(method, func(t *testing.T) {
			rr := httptest.NewRecorder()
			srv.WebSocketHandler(rr, httptest.NewRequest(method, "/ws", http.NoBody))

			if rr.Code != http.StatusMethodNotAllowed {
				t.Errorf("expected %d, got %d", http.StatusMethodNotAllowed, rr.Code)
			}
		})
	}
}

// TestWebSocketHandlerGETWithoutUpgrade verifies a plain GET is refused by the upgrader.
func TestWebSocketHandlerGETWithoutUpgrade(t *testing.T) {
	srv := newServer(t)

	req := httptest.NewRequest(http.MethodGet, "/ws", http.NoBody)
	req.Header.Set("Origin", testhelpers.TestOrigin)
	rr := httptest.NewRecorder()
	srv.WebSocketHandler(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Errorf("expected %d, got %d", http.StatusBadRequest, rr.Code)
	}
}

// TestRoutes tests the routing of the application handler.
func TestRoutes(t *testing.T) {
	handler := newServer(t).Routes()

	tests := []struct {
		path         string
		expectedCode int
		contains     string
	}{
		{"/", http.StatusOK, healthBody},
		{"/stats", http.StatusOK, `"clients":0`},
		{"/test", http.StatusOK, "<title>Nexus Chat WebSocket Test</title>"},
		{"/missing", http.StatusNotFound, ""},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, tt.path, http.NoBody))

			if rr.Code != tt.expectedCode {
				t.Errorf("handler returned wrong status code: got %v want %v", rr.Code, tt.expectedCode)
			}
			if !strings.Contains(rr.Body.String(), tt.contains) {
				t.Errorf("body %q does not contain %q", rr.Body.String(), tt.contains)
			}
		})
	}
}

// TestCreateServer tests the server creation function.
// It verifies that CreateServer returns an HTTP server with the correct
// configuration including address, handler, and timeout settings.
func TestCreateServer(t *testing.T) {
	port := ":8080"
	mux := http.NewServeMux()

	srv := server.CreateServer(port, mux)

	if srv.Addr != port {
		t.Errorf("Expected server addr %s, got %s", port, srv.Addr)
	}
	if srv.Handler != mux {
		t.Error("Server handler not set correctly")
	}
	if srv.ReadTimeout != 15*time.Second {
		t.Errorf("Expected ReadTimeout %v, got %v", 15*time.Second, srv.ReadTimeout)
	}
	if srv.WriteTimeout != 15*time.Second {
		t.Errorf("Expected WriteTimeout %v, got %v", 15*time.Second, srv.WriteTimeout)
	}
	if srv.IdleTimeout != 60*time.Second {
		t.Errorf("Expected IdleTimeout %v, got %v", 60*time.Second, srv.IdleTimeout)
	}
}

// TestNewConfig tests the default configuration.
func TestNewConfig(t *testing.T) {
	config := server.NewConfig()

	if config.Port != ":8080" {
		t.Errorf("Expected default port :8080, got %s", config.Port)
	}
	if config.SendBufferSize != 256 {
		t.Errorf("Expected send buffer 256, got %d", config.SendBufferSize)
	}
	if config.RateLimit.Burst != 5 || config.RateLimit.RefillInterval != time.Second {
		t.Errorf("Unexpected rate limit %+v", config.RateLimit)
	}
}
