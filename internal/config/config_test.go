package config

import (
	"strings"
	"testing"
	"time"

	"github.com/auralis/tiercache/internal/buffer"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newViper(t *testing.T, yaml string) *viper.Viper {
	t.Helper()
	v := viper.New()
	Bind(v)
	v.SetConfigType("yaml")
	if yaml != "" {
		require.NoError(t, v.ReadConfig(strings.NewReader(yaml)))
	}
	return v
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(newViper(t, ""))
	require.NoError(t, err)

	assert.Equal(t, buffer.DefaultConfig(), cfg.Buffer())
	assert.True(t, cfg.Content.Enabled)
	assert.True(t, cfg.Predictor.Persist)
	assert.Equal(t, "tiercache", cfg.Metrics.Namespace)
	assert.NotEmpty(t, cfg.Library.Extensions)
}

func TestLoad_File(t *testing.T) {
	cfg, err := Load(newViper(t, `
cache:
  l1_size_mb: 24
timing:
  throttle: 250ms
  rapid_threshold: 5
content:
  enabled: false
library:
  extensions: [".flac"]
metrics:
  addr: ":9102"
`))
	require.NoError(t, err)

	assert.Equal(t, 24.0, cfg.Cache.L1SizeMB)
	assert.Equal(t, 36.0, cfg.Cache.L2SizeMB, "unset keys keep their default")
	assert.Equal(t, 250*time.Millisecond, cfg.Timing.Throttle)
	assert.Equal(t, 5, cfg.Timing.RapidThreshold)
	assert.False(t, cfg.Content.Enabled)
	assert.Equal(t, []string{".flac"}, cfg.Library.Extensions)
	assert.Equal(t, ":9102", cfg.Metrics.Addr)
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("TIERCACHE_CACHE_L3_SIZE_MB", "60")
	t.Setenv("TIERCACHE_TIMING_DEBOUNCE", "1s")

	cfg, err := Load(newViper(t, ""))
	require.NoError(t, err)

	assert.Equal(t, 60.0, cfg.Cache.L3SizeMB)
	assert.Equal(t, time.Second, cfg.Timing.Debounce)
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		cfg, err := Load(newViper(t, ""))
		require.NoError(t, err)
		return cfg
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"tier below one chunk", func(c *Config) { c.Cache.L1SizeMB = 2 }},
		{"tier too large", func(c *Config) { c.Cache.L2SizeMB = 20000 }},
		{"negative throttle", func(c *Config) { c.Timing.Throttle = -time.Second }},
		{"zero window", func(c *Config) { c.Timing.InteractionWindow = 0 }},
		{"zero rapid threshold", func(c *Config) { c.Timing.RapidThreshold = 0 }},
		{"negative rate", func(c *Config) { c.Content.RequestsPerSecond = -1 }},
		{"no extensions", func(c *Config) { c.Library.Extensions = nil }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
		})
	}
}

func TestLoad_InvalidFile(t *testing.T) {
	_, err := Load(newViper(t, "cache:\n  l1_size_mb: 1\n"))
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestLoadRuntime(t *testing.T) {
	t.Setenv("TIERCACHE_DEBUG", "true")
	t.Setenv("TIERCACHE_LOG_FILE", "/tmp/tiercache.log")

	rt, err := LoadRuntime()
	require.NoError(t, err)
	assert.True(t, rt.Debug)
	assert.Equal(t, "/tmp/tiercache.log", rt.LogFile)

	t.Setenv("TIERCACHE_DEBUG", "sometimes")
	_, err = LoadRuntime()
	assert.Error(t, err)
}
