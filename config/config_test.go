// coursegen/config/config_test.go
package config_test // Use an external test package

import (
	"testing"
	"time"

	"coursegen/config"

	"github.com/stretchr/testify/assert"
)

func TestLoadConfig(t *testing.T) {
	t.Run("loads default values correctly", func(t *testing.T) {
		// Ensure no env vars are lingering from other tests
		t.Setenv("COURSEGEN_API_BASE", "")
		t.Setenv("COURSEGEN_KEEPALIVE_INTERVAL", "")
		t.Setenv("COURSEGEN_RECONNECT_DELAY", "")
		t.Setenv("COURSEGEN_MAX_RECONNECT_ATTEMPTS", "")
		t.Setenv("COURSEGEN_MAX_FRAME_SIZE", "")

		cfg, err := config.Load()
		assert.NoError(t, err)
		assert.NotNil(t, cfg)

		assert.Equal(t, "http://localhost:8000", cfg.APIBase)
		assert.Equal(t, 30*time.Second, cfg.KeepaliveInterval)
		assert.Equal(t, 3*time.Second, cfg.ReconnectDelay)
		assert.Equal(t, uint64(5), cfg.MaxReconnectAttempts)
		assert.Equal(t, int64(1024*1024), cfg.MaxFrameSize)
		assert.Equal(t, time.Duration(0), cfg.WatchTimeout)
		assert.Equal(t, "", cfg.SimListen)
		assert.Equal(t, "", cfg.SimFailStep)
	})

	t.Run("overrides defaults with environment variables", func(t *testing.T) {
		t.Setenv("COURSEGEN_API_BASE", "https://courses.example.com")
		t.Setenv("COURSEGEN_KEEPALIVE_INTERVAL", "5s")
		t.Setenv("COURSEGEN_MAX_RECONNECT_ATTEMPTS", "2")
		t.Setenv("COURSEGEN_MAX_FRAME_SIZE", "64KB")
		t.Setenv("COURSEGEN_SIM_LISTEN", ":9100")

		cfg, err := config.Load()
		assert.NoError(t, err)
		assert.NotNil(t, cfg)

		assert.Equal(t, "https://courses.example.com", cfg.APIBase)
		assert.Equal(t, 5*time.Second, cfg.KeepaliveInterval)
		assert.Equal(t, uint64(2), cfg.MaxReconnectAttempts)
		assert.Equal(t, int64(64*1024), cfg.MaxFrameSize)
		assert.Equal(t, ":9100", cfg.SimListen)
	})
}
