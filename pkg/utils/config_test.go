package utils

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envOf(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func TestApplyEnv_Overrides(t *testing.T) {
	cfg := DefaultConfig()
	err := applyEnv(&cfg, envOf(map[string]string{
		"CHRONOZOOM_HTTP_ADDR":     ":1234",
		"CHRONOZOOM_CACHE_TTL":     "90s",
		"CHRONOZOOM_MAX_ELEMENTS":  "50",
		"CHRONOZOOM_JWT_TTL_HOURS": "2",
		"CHRONOZOOM_SEED_SANDBOX":  "false",
		"CHRONOZOOM_STORE":         "memory",
	}))

	require.NoError(t, err)
	assert.Equal(t, ":1234", cfg.Server.HTTPAddr)
	assert.Equal(t, 90*time.Second, cfg.CacheTTL)
	assert.Equal(t, 50, cfg.MaxElements)
	assert.Equal(t, 2*time.Hour, cfg.Auth.JWTDuration)
	assert.False(t, cfg.SeedSandbox)
	assert.Equal(t, "memory", cfg.Store)
}

func TestApplyEnv_Invalid(t *testing.T) {
	tests := map[string]string{
		"CHRONOZOOM_CACHE_TTL":     "soon",
		"CHRONOZOOM_MAX_ELEMENTS":  "-1",
		"CHRONOZOOM_JWT_TTL_HOURS": "x",
		"CHRONOZOOM_SEED_SANDBOX":  "maybe",
		"CHRONOZOOM_STORE":         "postgres",
	}
	for key, val := range tests {
		t.Run(key, func(t *testing.T) {
			cfg := DefaultConfig()
			assert.Error(t, applyEnv(&cfg, envOf(map[string]string{key: val})))
		})
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 2000, cfg.MaxElements)
	assert.Equal(t, 5*time.Minute, cfg.CacheTTL)
	assert.True(t, cfg.SeedSandbox)
}

func TestLoadConfig_YAMLOverlay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chronozoom.yaml")
	require.NoError(t, os.WriteFile(path, []byte("max_elements: 10\nserver:\n  http_addr: \":9999\"\n"), 0o600))
	t.Setenv("CHRONOZOOM_CONFIG", path)
	t.Setenv("CHRONOZOOM_MAX_ELEMENTS", "")

	cfg, err := LoadConfig()

	require.NoError(t, err)
	assert.Equal(t, 10, cfg.MaxElements)
	assert.Equal(t, ":9999", cfg.Server.HTTPAddr)
	assert.Equal(t, ":9090", cfg.Server.GRPCAddr)
}
