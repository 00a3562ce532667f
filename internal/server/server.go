// Package server assembles the gateway components into a Server value so the
// binary and the tests build them the same way.
package server

import (
	"log/slog"

	"github.com/Tyrowin/nexus-chat-server/internal/fanout"
	"github.com/Tyrowin/nexus-chat-server/internal/presence"
	"github.com/Tyrowin/nexus-chat-server/internal/registry"
	"github.com/Tyrowin/nexus-chat-server/internal/rooms"
	"github.com/Tyrowin/nexus-chat-server/internal/router"
)

// Server owns the hub and the HTTP policy of one gateway instance.
type Server struct {
	cfg       Config
	hub       *Hub
	origins   *originPolicy
	ipLimiter *ipRateLimiter
	log       *slog.Logger
}

// New builds a gateway with its own registry and rooms. Call Start before
// serving requests.
func New(cfg Config, log *slog.Logger) *Server {
	cfg = SanitizeConfig(cfg)

	reg := registry.New(log)
	rm := rooms.NewManager(log)
	dispatcher := fanout.NewDispatcher(log)
	rt := router.New(reg, rm, dispatcher, log)
	pn := presence.NewNotifier(reg, rm, dispatcher, log)

	return &Server{
		cfg:       cfg,
		hub:       NewHub(reg, rm, rt, pn, dispatcher, log),
		origins:   newOriginPolicy(cfg.AllowedOrigins, log),
		ipLimiter: newIPRateLimiter(cfg.HTTPRateLimit, log),
		log:       log,
	}
}

// Start runs the hub in its own goroutine.
func (s *Server) Start() {
	go s.hub.Run()
	s.log.Info("Hub started and ready to manage WebSocket connections")
}

// Hub returns the hub for shutdown coordination.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Config returns the sanitized configuration.
func (s *Server) Config() Config {
	return s.cfg
}
