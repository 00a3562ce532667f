package server

import (
	"log/slog"
	"net/http/httptest"
	"testing"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/assert"
)

func TestOriginPolicy(t *testing.T) {
	log := logs.GetLoggerFromLevel(slog.LevelDebug)

	tests := []struct {
		name    string
		allowed []string
		origin  string
		want    bool
	}{
		{"exact", []string{"http://localhost:8080"}, "http://localhost:8080", true},
		{"upper case", []string{"http://localhost:8080"}, "HTTP://LocalHost:8080", true},
		{"trailing path ignored", []string{"http://localhost:8080/"}, "http://localhost:8080", true},
		{"other host", []string{"http://localhost:8080"}, "http://evil.example", false},
		{"missing header", []string{"http://localhost:8080"}, "", false},
		{"garbage header", []string{"http://localhost:8080"}, "::not a url", false},
		{"invalid config entry skipped", []string{"localhost", "http://ok.example"}, "http://ok.example", true},
		{"blank entries", []string{" ", ""}, "http://localhost:8080", false},
		{"wildcard", []string{"*"}, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newOriginPolicy(tt.allowed, log)
			r := httptest.NewRequest("GET", "/ws", nil)
			if tt.origin != "" {
				r.Header.Set("Origin", tt.origin)
			}

			assert.Equal(t, tt.want, p.check(r))
		})
	}
}
