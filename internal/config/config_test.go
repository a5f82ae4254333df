package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "dir", cfg.CacheBackend)
	assert.Empty(t, cfg.CDN)
	require.NoError(t, cfg.Validate())
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sandlot.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
cdn: https://cdn.example.com
cache_dir: /tmp/sandlot-cache
cache_backend: bolt
rate_limit: 10
ignore:
  - dist/**
log:
  level: debug
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com", cfg.CDN)
	assert.Equal(t, "bolt", cfg.CacheBackend)
	assert.Equal(t, float64(10), cfg.RateLimit)
	assert.Equal(t, []string{"dist/**"}, cfg.Ignore)
	assert.Equal(t, "debug", cfg.Log.Level)
	require.NoError(t, cfg.Validate())
}

func TestEnvOverrides(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("SANDLOT_CDN", "https://override.example.com")
	t.Setenv("SANDLOT_CACHE_BACKEND", "bolt")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "https://override.example.com", cfg.CDN)
	assert.Equal(t, "bolt", cfg.CacheBackend)
}

func TestValidateRejectsBadBackend(t *testing.T) {
	cfg := Default()
	cfg.CacheBackend = "redis"
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.RateLimit = -1
	assert.Error(t, cfg.Validate())
}
