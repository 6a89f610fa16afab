package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	require.NoError(t, err)
	assert.Equal(t, "ws://localhost:8080/ws", cfg.GatewayURL)
	assert.Equal(t, DefaultTimings(), cfg.Timings)
}

func TestLoadSave_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")

	cfg := DefaultConfig()
	cfg.GatewayURL = "wss://chat.example.com/ws"
	cfg.Redis = &RedisConfig{URL: "redis://localhost:6379"}
	require.NoError(t, Save(cfg, path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "wss://chat.example.com/ws", loaded.GatewayURL)
	require.NotNil(t, loaded.Redis)
	assert.Equal(t, "redis://localhost:6379", loaded.Redis.URL)
}

func TestLoad_PartialFileFillsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"apiUrl":"http://api.example.com"}`), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "http://api.example.com", cfg.APIURL)
	assert.Equal(t, "ws://localhost:8080/ws", cfg.GatewayURL)
	assert.Equal(t, 5*time.Second, cfg.Timings.AckTimeout)
}

func TestTimings_Normalize(t *testing.T) {
	tm := Timings{AckTimeout: 100 * time.Millisecond}.Normalize()
	assert.Equal(t, 100*time.Millisecond, tm.AckTimeout)
	assert.Equal(t, 1500*time.Millisecond, tm.SendInterval)
	assert.Equal(t, 30*time.Second, tm.IndicatorTimeout)
}
