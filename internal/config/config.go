// Package config loads weft's process configuration from YAML.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/aretw0/weft/internal/logging"
	"github.com/aretw0/weft/internal/runtime"
	"github.com/aretw0/weft/pkg/persistence/middleware"
	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"
)

// Config is the full process configuration.
type Config struct {
	Log    LogConfig      `yaml:"log" mapstructure:"log"`
	Limits runtime.Limits `yaml:"limits" mapstructure:"limits"`
	Redis  RedisConfig    `yaml:"redis" mapstructure:"redis"`
	HTTP   HTTPConfig     `yaml:"http" mapstructure:"http"`
	Runner RunnerConfig   `yaml:"runner" mapstructure:"runner"`

	Encryption EncryptionConfig `yaml:"encryption" mapstructure:"encryption"`
}

type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// RedisConfig selects the redis effect store. An empty Addr means the in-memory store.
type RedisConfig struct {
	Addr     string        `yaml:"addr" mapstructure:"addr"`
	Password string        `yaml:"password" mapstructure:"password"`
	DB       int           `yaml:"db" mapstructure:"db"`
	Prefix   string        `yaml:"prefix" mapstructure:"prefix"`
	TTL      time.Duration `yaml:"ttl" mapstructure:"ttl"`
}

type HTTPConfig struct {
	Addr            string        `yaml:"addr" mapstructure:"addr"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" mapstructure:"shutdown_timeout"`
}

type RunnerConfig struct {
	MaxPasses   int           `yaml:"max_passes" mapstructure:"max_passes"`
	Concurrency int           `yaml:"concurrency" mapstructure:"concurrency"`
	LockTTL     time.Duration `yaml:"lock_ttl" mapstructure:"lock_ttl"`
	// RateLimit is handler invocations per second; zero leaves handlers unpaced.
	RateLimit float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
	Burst     int     `yaml:"burst" mapstructure:"burst"`
}

// EncryptionConfig seals stored resolutions when Key is set. Keys are base64
// AES-256 keys; FallbackKeys only decrypt.
type EncryptionConfig struct {
	Key          string   `yaml:"key" mapstructure:"key"`
	FallbackKeys []string `yaml:"fallback_keys" mapstructure:"fallback_keys"`
}

// Keys decodes the configured keys. It returns nil when encryption is off.
func (e EncryptionConfig) Keys() (*middleware.EncryptionConfig, error) {
	if e.Key == "" {
		return nil, nil
	}
	active, err := middleware.ParseKey(e.Key)
	if err != nil {
		return nil, err
	}
	out := &middleware.EncryptionConfig{ActiveKey: active}
	for i, k := range e.FallbackKeys {
		key, err := middleware.ParseKey(k)
		if err != nil {
			return nil, fmt.Errorf("fallback_keys[%d]: %w", i, err)
		}
		out.FallbackKeys = append(out.FallbackKeys, key)
	}
	return out, nil
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Log:    LogConfig{Level: "info", Format: string(logging.FormatText)},
		Limits: runtime.DefaultLimits,
		Redis:  RedisConfig{Prefix: "weft:"},
		HTTP:   HTTPConfig{Addr: ":8080", ShutdownTimeout: 10 * time.Second},
		Runner: RunnerConfig{MaxPasses: 16, Concurrency: 8, LockTTL: 30 * time.Second, Burst: 1},
	}
}

// Load reads path over the defaults. A missing file yields the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("failed to read config: %w", err)
	}

	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return cfg, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Merge(raw); err != nil {
		return cfg, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Merge decodes a loose map (a parsed file, or flag overrides) onto c. Durations
// may be given as strings such as "30s".
func (c *Config) Merge(raw map[string]any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           c,
		ErrorUnused:      true,
		WeaklyTypedInput: true,
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(raw); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return c.Validate()
}

// Validate checks values that would otherwise fail later.
func (c *Config) Validate() error {
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return err
	}
	if _, err := logging.ParseFormat(c.Log.Format); err != nil {
		return err
	}
	if c.Runner.MaxPasses < 1 {
		return fmt.Errorf("runner.max_passes must be positive, got %d", c.Runner.MaxPasses)
	}
	if c.Runner.RateLimit < 0 {
		return fmt.Errorf("runner.rate_limit must not be negative, got %g", c.Runner.RateLimit)
	}
	if c.Runner.RateLimit > 0 && c.Runner.Burst < 1 {
		return fmt.Errorf("runner.burst must be positive when rate_limit is set, got %d", c.Runner.Burst)
	}
	if c.Limits.MaxStackSize < 0 || c.Limits.MaxTailCallDepth < 0 {
		return errors.New("limits must not be negative")
	}
	if _, err := c.Encryption.Keys(); err != nil {
		return fmt.Errorf("encryption: %w", err)
	}
	return nil
}

// Logger builds the logger the configuration describes.
func (c *Config) Logger() (*slog.Logger, error) {
	level, err := logging.ParseLevel(c.Log.Level)
	if err != nil {
		return nil, err
	}
	format, err := logging.ParseFormat(c.Log.Format)
	if err != nil {
		return nil, err
	}
	return logging.NewWith(logging.Options{Level: level, Format: format}), nil
}
