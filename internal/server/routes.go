// Package server wires HTTP handlers into a ServeMux for the gateway via
// routing helpers.
package server

import "net/http"

// Routes configures and returns the application handler: health check,
// stats, WebSocket endpoint and test page, behind the per-IP limiter.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.HealthHandler)
	mux.HandleFunc("/stats", s.StatsHandler)
	mux.HandleFunc("/ws", s.WebSocketHandler)
	mux.HandleFunc("/test", s.TestPageHandler)
	return s.ipLimiter.middleware(mux)
}
