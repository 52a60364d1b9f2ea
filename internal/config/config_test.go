package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()

	require.NoError(t, err)
	assert.Equal(t, "8083", cfg.Server.Port)
	assert.Equal(t, "development", cfg.Server.Environment)
	assert.Equal(t, "messenger_events", cfg.AMQP.Exchange)
	assert.Empty(t, cfg.AMQP.URL)
	assert.Empty(t, cfg.Trace.OTLPEndpoint)
	assert.Equal(t, 30*time.Second, cfg.WS.HandshakeTimeout)
	assert.Equal(t, 60*time.Second, cfg.WS.PongWait)
	assert.Equal(t, int64(8192), cfg.WS.MaxMessageSize)
	assert.Equal(t, 256, cfg.WS.SendBuffer)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoadEnvironmentOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("JWT_SECRET", "super-secret")
	t.Setenv("WS_HANDSHAKE_TIMEOUT", "5s")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load()

	require.NoError(t, err)
	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, "super-secret", cfg.Auth.JWTSecret)
	assert.Equal(t, 5*time.Second, cfg.WS.HandshakeTimeout)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoadBadDurationFallsBack(t *testing.T) {
	t.Setenv("WS_HANDSHAKE_TIMEOUT", "not-a-duration")

	cfg, err := Load()

	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, cfg.WS.HandshakeTimeout)
}
