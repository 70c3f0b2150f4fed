// Package config loads tiercache settings from a YAML file, TIERCACHE_*
// environment variables and command line flags through viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/auralis/tiercache/internal/buffer"
	"github.com/auralis/tiercache/internal/cache"
	"github.com/auralis/tiercache/internal/library"
	"github.com/caarlos0/env/v11"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. TIERCACHE_CACHE_L1_SIZE_MB.
const EnvPrefix = "tiercache"

// ErrInvalidConfig is wrapped by every validation failure.
var ErrInvalidConfig = errors.New("invalid configuration")

// maxTierSizeMB bounds a single tier budget.
const maxTierSizeMB = 10000

// Config is the full file configuration.
type Config struct {
	Cache     CacheConfig     `mapstructure:"cache"`
	Timing    TimingConfig    `mapstructure:"timing"`
	Content   ContentConfig   `mapstructure:"content"`
	Library   LibraryConfig   `mapstructure:"library"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Predictor PredictorConfig `mapstructure:"predictor"`
}

// CacheConfig holds the tier budgets in MB.
type CacheConfig struct {
	L1SizeMB float64 `mapstructure:"l1_size_mb"`
	L2SizeMB float64 `mapstructure:"l2_size_mb"`
	L3SizeMB float64 `mapstructure:"l3_size_mb"`
}

// TimingConfig holds the update throttling knobs.
type TimingConfig struct {
	Throttle          time.Duration `mapstructure:"throttle"`
	Debounce          time.Duration `mapstructure:"debounce"`
	InteractionWindow time.Duration `mapstructure:"interaction_window"`
	RapidThreshold    int           `mapstructure:"rapid_threshold"`
}

// ContentConfig controls content-aware prediction.
type ContentConfig struct {
	Enabled           bool    `mapstructure:"enabled"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
}

// LibraryConfig controls which files are treated as tracks.
type LibraryConfig struct {
	Extensions []string `mapstructure:"extensions"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Addr      string `mapstructure:"addr"`
	Namespace string `mapstructure:"namespace"`
}

// PredictorConfig controls persistence of learned switches.
type PredictorConfig struct {
	// Snapshot is the snapshot file; empty means the user state directory.
	Snapshot string `mapstructure:"snapshot"`
	Persist  bool   `mapstructure:"persist"`
}

// Runtime holds process settings read straight from the environment.
type Runtime struct {
	Debug      bool   `env:"TIERCACHE_DEBUG"`
	LogFile    string `env:"TIERCACHE_LOG_FILE"`
	ConfigHome string `env:"TIERCACHE_CONFIG_HOME"`
	NoColor    bool   `env:"NO_COLOR"`
}

// LoadRuntime parses Runtime from the environment.
func LoadRuntime() (Runtime, error) {
	rt, err := env.ParseAs[Runtime]()
	if err != nil {
		return Runtime{}, fmt.Errorf("error parsing environment: %w", err)
	}
	return rt, nil
}

// Bind registers defaults and environment overrides on v.
func Bind(v *viper.Viper) {
	def := buffer.DefaultConfig()

	v.SetDefault("cache.l1_size_mb", def.L1SizeMB)
	v.SetDefault("cache.l2_size_mb", def.L2SizeMB)
	v.SetDefault("cache.l3_size_mb", def.L3SizeMB)

	v.SetDefault("timing.throttle", def.ThrottleInterval)
	v.SetDefault("timing.debounce", def.DebounceInterval)
	v.SetDefault("timing.interaction_window", def.InteractionWindow)
	v.SetDefault("timing.rapid_threshold", def.RapidThreshold)

	v.SetDefault("content.enabled", true)
	v.SetDefault("content.requests_per_second", 20.0)
	v.SetDefault("content.burst", 1)

	v.SetDefault("library.extensions", library.DefaultExtensions)

	v.SetDefault("metrics.addr", "")
	v.SetDefault("metrics.namespace", "tiercache")

	v.SetDefault("predictor.snapshot", "")
	v.SetDefault("predictor.persist", true)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

// Load decodes and validates the configuration held by v.
func Load(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unable to decode configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks value ranges.
func (c Config) Validate() error {
	tiers := []struct {
		name string
		size float64
	}{
		{"cache.l1_size_mb", c.Cache.L1SizeMB},
		{"cache.l2_size_mb", c.Cache.L2SizeMB},
		{"cache.l3_size_mb", c.Cache.L3SizeMB},
	}
	for _, t := range tiers {
		if t.size < cache.ChunkSizeMB || t.size > maxTierSizeMB {
			return fmt.Errorf("%w: %s must be between %.0f and %d MB, got %.1f",
				ErrInvalidConfig, t.name, cache.ChunkSizeMB, maxTierSizeMB, t.size)
		}
	}

	if c.Timing.Throttle < 0 || c.Timing.Debounce < 0 {
		return fmt.Errorf("%w: timing intervals must not be negative", ErrInvalidConfig)
	}
	if c.Timing.InteractionWindow <= 0 {
		return fmt.Errorf("%w: timing.interaction_window must be positive, got %s",
			ErrInvalidConfig, c.Timing.InteractionWindow)
	}
	if c.Timing.RapidThreshold < 1 {
		return fmt.Errorf("%w: timing.rapid_threshold must be at least 1, got %d",
			ErrInvalidConfig, c.Timing.RapidThreshold)
	}

	if c.Content.RequestsPerSecond < 0 {
		return fmt.Errorf("%w: content.requests_per_second must not be negative", ErrInvalidConfig)
	}
	if len(c.Library.Extensions) == 0 {
		return fmt.Errorf("%w: library.extensions must not be empty", ErrInvalidConfig)
	}
	return nil
}

// Buffer returns the manager configuration.
func (c Config) Buffer() buffer.Config {
	return buffer.Config{
		L1SizeMB:          c.Cache.L1SizeMB,
		L2SizeMB:          c.Cache.L2SizeMB,
		L3SizeMB:          c.Cache.L3SizeMB,
		ThrottleInterval:  c.Timing.Throttle,
		DebounceInterval:  c.Timing.Debounce,
		InteractionWindow: c.Timing.InteractionWindow,
		RapidThreshold:    c.Timing.RapidThreshold,
	}
}
