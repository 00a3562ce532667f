// Package server throttles inbound traffic: a token bucket per WebSocket
// connection and one per client IP for plain HTTP requests.
package server

import (
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// newRateLimiter allows capacity events per interval with bursts of capacity.
func newRateLimiter(capacity int, interval time.Duration) *rate.Limiter {
	if capacity <= 0 {
		capacity = 1
	}
	if interval <= 0 {
		interval = time.Second
	}

	return rate.NewLimiter(rate.Every(interval/time.Duration(capacity)), capacity)
}

const (
	ipLimiterIdle     = 3 * time.Minute
	ipLimiterSweepLen = 1024
)

type ipEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// ipRateLimiter answers 429 once a client IP exceeds perSecond requests.
type ipRateLimiter struct {
	mu        sync.Mutex
	perSecond int
	clients   map[string]*ipEntry
	log       *slog.Logger
}

func newIPRateLimiter(perSecond int, log *slog.Logger) *ipRateLimiter {
	return &ipRateLimiter{
		perSecond: perSecond,
		clients:   make(map[string]*ipEntry),
		log:       log,
	}
}

func (l *ipRateLimiter) allow(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	if len(l.clients) >= ipLimiterSweepLen {
		for key, entry := range l.clients {
			if now.Sub(entry.lastSeen) > ipLimiterIdle {
				delete(l.clients, key)
			}
		}
	}

	entry, ok := l.clients[ip]
	if !ok {
		entry = &ipEntry{limiter: newRateLimiter(l.perSecond, time.Second)}
		l.clients[ip] = entry
	}
	entry.lastSeen = now
	return entry.limiter.Allow()
}

func (l *ipRateLimiter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r)
		if !l.allow(ip) {
			l.log.Warn("Too many requests", "ip", ip, "path", r.URL.Path)
			http.Error(w, "Too many requests", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
