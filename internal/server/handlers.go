// Package server exposes HTTP handlers, including WebSocket upgrades, health
// checks, stats, and the built-in test page.
package server

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gorilla/websocket"
)

// Stats is the body of GET /stats.
type Stats struct {
	Clients int `json:"clients"`
	Rooms   int `json:"rooms"`
}

func (s *Server) upgrader() *websocket.Upgrader {
	return &websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.origins.check,
	}
}

// WebSocketHandler handles WebSocket upgrade requests. The optional user_id
// query parameter binds the identity at connect time.
func (s *Server) WebSocketHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed. WebSocket endpoint only accepts GET requests.", http.StatusMethodNotAllowed)
		return
	}

	conn, err := s.upgrader().Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("WebSocket upgrade failed", "addr", r.RemoteAddr, "error", err)
		return
	}

	client := NewClient(conn, s.hub, r.RemoteAddr, r.URL.Query().Get("user_id"), s.cfg, s.log)

	// The hub launches the pump goroutines.
	if !s.hub.Register(client) {
		s.log.Warn("Hub stopped; rejecting connection", "addr", r.RemoteAddr)
		_ = conn.Close()
	}
}

// HealthHandler provides a simple health check endpoint that returns server status.
func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprintf(w, "Nexus chat server is running!")
}

// StatsHandler reports the number of live connections and known rooms.
func (s *Server) StatsHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	stats := Stats{Clients: s.hub.ClientCount(), Rooms: s.hub.RoomCount()}
	if err := json.NewEncoder(w).Encode(stats); err != nil {
		s.log.Error("Error writing stats response", "error", err)
	}
}

// TestPageHandler serves an HTML page that connects to the WebSocket
// endpoint, emits the room and message events and logs every event received.
func (s *Server) TestPageHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html")
	if _, err := fmt.Fprint(w, testPage); err != nil {
		s.log.Error("Error writing HTML response", "error", err)
	}
}

const testPage = `<!DOCTYPE html>
<html>
<head>
    <title>Nexus Chat WebSocket Test</title>
    <style>
        body { font-family: Arial, sans-serif; margin: 20px; }
        #messages {
            border: 1px solid #ccc;
            height: 300px;
            padding: 10px;
            overflow-y: scroll;
            margin: 10px 0;
            background-color: #f9f9f9;
        }
        input[type="text"] {
            width: 220px;
            padding: 5px;
            margin-right: 10px;
        }
        button {
            padding: 5px 15px;
            margin: 2px;
            background-color: #007cba;
            color: white;
            border: none;
            cursor: pointer;
        }
        button:hover { background-color: #005a87; }
        button:disabled { background-color: #9bbcd0; cursor: default; }
        .status {
            margin: 10px 0;
            padding: 5px;
            border-radius: 3px;
        }
        .connected { background-color: #d4edda; color: #155724; }
        .disconnected { background-color: #f8d7da; color: #721c24; }
    </style>
</head>
<body>
    <h1>Nexus Chat WebSocket Test</h1>

    <div id="status" class="status disconnected">Disconnected</div>

    <div>
        <input type="text" id="userInput" placeholder="User ID">
        <input type="text" id="roomInput" placeholder="Room ID">
        <button id="connectButton" onclick="toggleConnection()">Connect</button>
    </div>
    <div>
        <button class="action" onclick="emit('joining_public_room')" disabled>Join public</button>
        <button class="action" onclick="emit('joining_private_room')" disabled>Join private</button>
        <button class="action" onclick="emit('leave_room')" disabled>Leave</button>
    </div>
    <div>
        <input type="text" id="messageInput" placeholder="Type a message...">
        <button class="action" onclick="emit('send_public_message', true)" disabled>Send public</button>
        <button class="action" onclick="emit('send_private_message', true)" disabled>Send private</button>
    </div>

    <div id="messages"></div>

    <script>
        let ws = null;
        const messagesDiv = document.getElementById('messages');
        const statusDiv = document.getElementById('status');
        const connectButton = document.getElementById('connectButton');

        function addMessage(text, color) {
            const el = document.createElement('div');
            el.style.margin = '5px 0';
            el.style.color = color || 'gray';
            el.textContent = text;
            messagesDiv.appendChild(el);
            messagesDiv.scrollTop = messagesDiv.scrollHeight;
        }

        function updateStatus(connected) {
            statusDiv.textContent = connected ? 'Connected' : 'Disconnected';
            statusDiv.className = 'status ' + (connected ? 'connected' : 'disconnected');
            connectButton.textContent = connected ? 'Disconnect' : 'Connect';
            document.querySelectorAll('.action').forEach(b => b.disabled = !connected);
        }

        function describe(event, data) {
            switch (event) {
            case 'client_count': return 'Number of connected clients: ' + data;
            case 'room_count': return 'Number of connected clients in the room: ' + data;
            case 'user_joined': return data + ' joined the chat room';
            case 'user_left': return data + ' left the chat room';
            case 'message': return 'Message: ' + data.message_id + ' with content ' + data.message + ' from ' + data.user_id;
            case 'private_message': return 'Private message: ' + data.message + ' from ' + data.sender_id + ' to ' + data.recipient_id;
            case 'error': return 'An error occurred: ' + data;
            default: return event + ': ' + JSON.stringify(data);
            }
        }

        function connect() {
            const user = document.getElementById('userInput').value.trim();
            const scheme = location.protocol === 'https:' ? 'wss://' : 'ws://';
            let url = scheme + location.host + '/ws';
            if (user) {
                url += '?user_id=' + encodeURIComponent(user);
            }
            ws = new WebSocket(url);

            ws.onopen = function() {
                addMessage('Connected to the server');
                updateStatus(true);
            };

            ws.onmessage = function(event) {
                const frame = JSON.parse(event.data);
                addMessage(describe(frame.event, frame.data), frame.event === 'error' ? 'red' : 'green');
            };

            ws.onclose = function() {
                addMessage('Disconnected from the server');
                updateStatus(false);
                ws = null;
            };

            ws.onerror = function() {
                addMessage('Connection error', 'red');
            };
        }

        function toggleConnection() {
            if (ws && ws.readyState === WebSocket.OPEN) {
                ws.close();
            } else {
                connect();
            }
        }

        function emit(event, withMessage) {
            if (!ws || ws.readyState !== WebSocket.OPEN) {
                return;
            }
            const data = {
                room_id: document.getElementById('roomInput').value.trim(),
                user_id: document.getElementById('userInput').value.trim()
            };
            if (withMessage) {
                const input = document.getElementById('messageInput');
                data.message = input.value.trim();
                input.value = '';
            }
            ws.send(JSON.stringify({ event: event, data: data }));
            addMessage('-> ' + event, 'blue');
        }
    </script>
</body>
</html>`
