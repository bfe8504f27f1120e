package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func write(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "weft.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)

	cfg, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_OverridesDefaults(t *testing.T) {
	path := write(t, `
log:
  level: debug
  format: json
limits:
  max_tail_call_depth: 50
redis:
  addr: localhost:6379
  ttl: 1h
http:
  addr: ":9090"
runner:
  max_passes: 4
  lock_ttl: 5s
  rate_limit: 2.5
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 50, cfg.Limits.MaxTailCallDepth)
	assert.Equal(t, Default().Limits.MaxStackSize, cfg.Limits.MaxStackSize, "unset fields keep defaults")
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, "weft:", cfg.Redis.Prefix)
	assert.Equal(t, time.Hour, cfg.Redis.TTL)
	assert.Equal(t, ":9090", cfg.HTTP.Addr)
	assert.Equal(t, 4, cfg.Runner.MaxPasses)
	assert.Equal(t, 5*time.Second, cfg.Runner.LockTTL)
	assert.Equal(t, 2.5, cfg.Runner.RateLimit)
	assert.Equal(t, 1, cfg.Runner.Burst)

	logger, err := cfg.Logger()
	require.NoError(t, err)
	assert.NotNil(t, logger)
}

func TestLoad_Errors(t *testing.T) {
	tests := map[string]string{
		"unknown key":    "redis: {host: x}",
		"bad level":      "log: {level: loud}",
		"bad duration":   "redis: {ttl: soon}",
		"zero passes":    "runner: {max_passes: 0}",
		"negative limit": "limits: {max_stack_size: -1}",
		"negative rate":  "runner: {rate_limit: -2}",
		"zero burst":     "runner: {rate_limit: 5, burst: 0}",
		"not yaml":       "log: [",
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Load(write(t, body))
			assert.Error(t, err)
		})
	}
}

func TestMerge_FlagOverrides(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Merge(map[string]any{
		"http": map[string]any{"addr": ":7000"},
		"log":  map[string]any{"level": "warn"},
	}))
	assert.Equal(t, ":7000", cfg.HTTP.Addr)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestEncryption_Keys(t *testing.T) {
	cfg := Default()
	keys, err := cfg.Encryption.Keys()
	require.NoError(t, err)
	assert.Nil(t, keys)

	active := "MDEyMzQ1Njc4OWFiY2RlZjAxMjM0NTY3ODlhYmNkZWY=" // 32 bytes
	path := write(t, `
encryption:
  key: `+active+`
  fallback_keys: [`+active+`]
`)
	cfg, err = Load(path)
	require.NoError(t, err)
	keys, err = cfg.Encryption.Keys()
	require.NoError(t, err)
	require.NotNil(t, keys)
	assert.Equal(t, []byte("0123456789abcdef0123456789abcdef"), keys.ActiveKey)
	assert.Len(t, keys.FallbackKeys, 1)

	_, err = Load(write(t, "encryption:\n  key: c2hvcnQ=\n"))
	assert.ErrorContains(t, err, "need 32")
}
