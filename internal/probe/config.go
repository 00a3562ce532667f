// Package probe is a scripted WebSocket client for poking at a running
// gateway by hand: it connects, optionally joins rooms and sends messages,
// then prints every event it receives.
package probe

import (
	"fmt"
	"time"

	"github.com/Netflix/go-env"
)

// Config drives one probe run. Actions with an empty room id are skipped.
type Config struct {
	ServerURL      string        `env:"PROBE_SERVER_URL,default=ws://127.0.0.1:8080/ws"`
	Origin         string        `env:"PROBE_ORIGIN,default=http://localhost:8080"`
	UserID         string        `env:"PROBE_USER_ID,default=probe-user"`
	RoomID         string        `env:"PROBE_ROOM_ID"`
	PrivateRoomID  string        `env:"PROBE_PRIVATE_ROOM_ID"`
	PublicMessage  string        `env:"PROBE_PUBLIC_MESSAGE"`
	PrivateMessage string        `env:"PROBE_PRIVATE_MESSAGE"`
	RecipientID    string        `env:"PROBE_RECIPIENT_ID"`
	Duration       time.Duration `env:"PROBE_DURATION,default=10s"`
	Colours        bool          `env:"PROBE_COLOURS,default=true"`
	LogLevel       string        `env:"LOG_LEVEL,default=INFO"`
}

// LoadConfig reads the PROBE_* environment.
func LoadConfig() (Config, error) {
	var cfg Config
	if _, err := env.UnmarshalFromEnviron(&cfg); err != nil {
		return Config{}, fmt.Errorf("config error: %w", err)
	}
	if cfg.Duration <= 0 {
		cfg.Duration = 10 * time.Second
	}
	return cfg, nil
}
