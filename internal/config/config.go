// Package config handles configuration loading, saving, and schema definition.
package config

import (
	"os"
	"path/filepath"
	"time"
)

// Config is the top-level chatsync configuration.
// Uses json tags in camelCase to match the JSON config file format.
type Config struct {
	GatewayURL string       `json:"gatewayUrl"`
	APIURL     string       `json:"apiUrl"`
	DataDir    string       `json:"dataDir,omitempty"`
	Redis      *RedisConfig `json:"redis,omitempty"`
	Timings    Timings      `json:"timings,omitempty"`
}

// RedisConfig selects the Redis local-state backend when set.
type RedisConfig struct {
	URL      string `json:"url"`
	Password string `json:"password,omitempty"`
	DB       int    `json:"db,omitempty"`
}

// Timings collects the engine's liveness knobs. Zero values fall back to
// the defaults below; tests shrink them to run timeout paths quickly.
type Timings struct {
	SendInterval     time.Duration `json:"sendInterval,omitempty"`     // min gap between accepted sends
	AckTimeout       time.Duration `json:"ackTimeout,omitempty"`       // wait for a send acknowledgement
	IndicatorTimeout time.Duration `json:"indicatorTimeout,omitempty"` // "bot is responding" liveness
	ReconnectDelay   time.Duration `json:"reconnectDelay,omitempty"`   // base reconnect backoff
}

// DefaultTimings returns the production timing values.
func DefaultTimings() Timings {
	return Timings{
		SendInterval:     1500 * time.Millisecond,
		AckTimeout:       5 * time.Second,
		IndicatorTimeout: 30 * time.Second,
		ReconnectDelay:   time.Second,
	}
}

// Normalize fills zero fields with defaults.
func (t Timings) Normalize() Timings {
	def := DefaultTimings()
	if t.SendInterval == 0 {
		t.SendInterval = def.SendInterval
	}
	if t.AckTimeout == 0 {
		t.AckTimeout = def.AckTimeout
	}
	if t.IndicatorTimeout == 0 {
		t.IndicatorTimeout = def.IndicatorTimeout
	}
	if t.ReconnectDelay == 0 {
		t.ReconnectDelay = def.ReconnectDelay
	}
	return t
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() Config {
	return Config{
		GatewayURL: "ws://localhost:8080/ws",
		APIURL:     "http://localhost:8080",
		DataDir:    DefaultDataDir(),
		Timings:    DefaultTimings(),
	}
}

// DefaultDataDir returns the chatsync data directory (~/.chatsync).
func DefaultDataDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".chatsync")
}

// GetConfigPath returns the default config file path (~/.chatsync/config.json).
func GetConfigPath() string {
	return filepath.Join(DefaultDataDir(), "config.json")
}
