package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eldtechnologies/brokenphone/internal/models"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("ENV", "")
	t.Setenv("NODE_NAME", "")
	t.Setenv("NODE_HOST", "")
	t.Setenv("REGISTER_HOST", "")
	t.Setenv("PLAY_TIMEOUT_MS", "")
	t.Setenv("FORWARD_TIMEOUT_MS", "")
	t.Setenv("HASH_ALGORITHM", "")
	t.Setenv("MAX_BODY_BYTES", "")

	cfg := Load()
	assert.Equal(t, "8080", cfg.Port)
	assert.True(t, cfg.IsDevelopment())
	assert.Equal(t, "node-8080", cfg.NodeName)
	assert.Equal(t, models.Address{Host: "localhost", Port: 8080}, cfg.Self())
	assert.Equal(t, 30*time.Second, cfg.PlayTimeout)
	assert.Equal(t, 10*time.Second, cfg.ForwardTimeout)
	assert.Equal(t, "sha512", cfg.HashAlgorithm)
	assert.Equal(t, int64(1<<20), cfg.MaxBodyBytes)

	_, ok := cfg.Upstream()
	assert.False(t, ok)
}

func TestLoad_RelayNode(t *testing.T) {
	t.Setenv("PORT", "9001")
	t.Setenv("NODE_NAME", "relay-1")
	t.Setenv("NODE_HOST", "relay-1.internal")
	t.Setenv("REGISTER_HOST", "origin.internal")
	t.Setenv("REGISTER_PORT", "8080")
	t.Setenv("PLAY_TIMEOUT_MS", "1500")
	t.Setenv("RATE_LIMIT_WHITELIST", "10.0.0.0/8, 127.0.0.1 ,")

	cfg := Load()
	assert.Equal(t, models.Address{Host: "relay-1.internal", Port: 9001}, cfg.Self())
	assert.Equal(t, 1500*time.Millisecond, cfg.PlayTimeout)
	assert.Equal(t, []string{"10.0.0.0/8", "127.0.0.1"}, cfg.RateLimitWhitelist)

	upstream, ok := cfg.Upstream()
	require.True(t, ok)
	assert.Equal(t, models.Address{Host: "origin.internal", Port: 8080}, upstream)
}

func TestLoad_SaltsAreIndependent(t *testing.T) {
	t.Setenv("NODE_SALT", "cmVnaXN0cmF0aW9u")
	t.Setenv("HASH_SALT", "")

	cfg := Load()
	assert.Equal(t, "cmVnaXN0cmF0aW9u", cfg.NodeSalt)
	assert.Empty(t, cfg.HashSalt)

	t.Setenv("HASH_SALT", "aGFzaGluZw==")
	cfg = Load()
	assert.Equal(t, "aGFzaGluZw==", cfg.HashSalt)
	assert.NotEqual(t, cfg.NodeSalt, cfg.HashSalt)
}

func TestLoad_MalformedNumberPanics(t *testing.T) {
	t.Setenv("PLAY_TIMEOUT_MS", "soon")
	assert.Panics(t, func() { Load() })
}

func TestLoad_ProductionRequiresHost(t *testing.T) {
	t.Setenv("ENV", "production")
	t.Setenv("NODE_HOST", "")
	assert.Panics(t, func() { Load() })

	t.Setenv("NODE_HOST", "origin.example.com")
	assert.NotPanics(t, func() { Load() })
}
