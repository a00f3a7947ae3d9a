package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cast"
	"github.com/spf13/viper"

	"github.com/vjranagit/tscore/pkg/cache"
	"github.com/vjranagit/tscore/pkg/calculus"
	"github.com/vjranagit/tscore/pkg/downsample"
	"github.com/vjranagit/tscore/pkg/interpolation"
	"github.com/vjranagit/tscore/pkg/provenance"
	"github.com/vjranagit/tscore/pkg/synchronize"
)

// EnvPrefix prefixes every environment override
const EnvPrefix = "TSCORE"

// Config holds the application-layer defaults for every engine
type Config struct {
	LogLevel      string              `mapstructure:"log_level" json:"log_level"`
	Interpolation InterpolationConfig `mapstructure:"interpolation" json:"interpolation"`
	Calculus      CalculusConfig      `mapstructure:"calculus" json:"calculus"`
	Downsample    DownsampleConfig    `mapstructure:"downsample" json:"downsample"`
	Synchronize   SynchronizeConfig   `mapstructure:"synchronize" json:"synchronize"`
	Cache         CacheConfig         `mapstructure:"cache" json:"cache"`
}

// InterpolationConfig holds interpolation defaults
type InterpolationConfig struct {
	DefaultMethod string `mapstructure:"default_method" json:"default_method"`
	MaxGPRPoints  int    `mapstructure:"max_gpr_points" json:"max_gpr_points"`
	// SpectralFrequencies is the number of dominant frequencies lomb_scargle keeps
	SpectralFrequencies int `mapstructure:"spectral_frequencies" json:"spectral_frequencies"`
	// Disabled methods, comma separated in the environment
	Disabled []string `mapstructure:"disabled" json:"disabled"`
}

// CalculusConfig holds derivative defaults
type CalculusConfig struct {
	DerivativeMethod string `mapstructure:"derivative_method" json:"derivative_method"`
	DerivativeOrder  int    `mapstructure:"derivative_order" json:"derivative_order"`
	SGWindow         int    `mapstructure:"sg_window" json:"sg_window"`
	SGPolyOrder      int    `mapstructure:"sg_polyorder" json:"sg_polyorder"`
	// PreSmooth names a smoothing filter; empty disables pre-smoothing
	PreSmooth string `mapstructure:"presmooth" json:"presmooth"`
}

// DownsampleConfig holds downsampling defaults
type DownsampleConfig struct {
	Method string `mapstructure:"method" json:"method"`
	Points int    `mapstructure:"points" json:"points"`
}

// SynchronizeConfig holds alignment defaults
type SynchronizeConfig struct {
	Method        string `mapstructure:"method" json:"method"`
	MaxGridPoints int    `mapstructure:"max_grid_points" json:"max_grid_points"`
}

// CacheConfig holds result cache configuration
type CacheConfig struct {
	Enabled          bool          `mapstructure:"enabled" json:"enabled"`
	TTLHours         float64       `mapstructure:"ttl_hours" json:"ttl_hours"`
	MaxSizeMB        int           `mapstructure:"max_size_mb" json:"max_size_mb"`
	Path             string        `mapstructure:"path" json:"path"`
	CompressionLevel int           `mapstructure:"compression_level" json:"compression_level"`
	SweepInterval    time.Duration `mapstructure:"sweep_interval" json:"sweep_interval"`
}

// DefaultConfig returns default configuration with TSCORE_* environment
// overrides applied
func DefaultConfig() *Config {
	return &Config{
		LogLevel: getEnv("LOG_LEVEL", "info"),
		Interpolation: InterpolationConfig{
			DefaultMethod:       getEnv("INTERPOLATION_DEFAULT_METHOD", string(provenance.MethodLinear)),
			MaxGPRPoints:        getEnvInt("INTERPOLATION_MAX_GPR_POINTS", 1000),
			SpectralFrequencies: getEnvInt("INTERPOLATION_SPECTRAL_FREQUENCIES", 3),
			Disabled:            getEnvList("INTERPOLATION_DISABLED"),
		},
		Calculus: CalculusConfig{
			DerivativeMethod: getEnv("CALCULUS_DERIVATIVE_METHOD", string(calculus.FiniteDiff)),
			DerivativeOrder:  getEnvInt("CALCULUS_DERIVATIVE_ORDER", 1),
			SGWindow:         getEnvInt("CALCULUS_SG_WINDOW", 7),
			SGPolyOrder:      getEnvInt("CALCULUS_SG_POLYORDER", 3),
			PreSmooth:        getEnv("CALCULUS_PRESMOOTH", ""),
		},
		Downsample: DownsampleConfig{
			Method: getEnv("DOWNSAMPLE_METHOD", string(downsample.LTTB)),
			Points: getEnvInt("DOWNSAMPLE_POINTS", 1000),
		},
		Synchronize: SynchronizeConfig{
			Method:        getEnv("SYNCHRONIZE_METHOD", string(synchronize.CommonGrid)),
			MaxGridPoints: getEnvInt("SYNCHRONIZE_MAX_GRID_POINTS", 10_000_000),
		},
		Cache: CacheConfig{
			Enabled:          getEnvBool("CACHE_ENABLED", true),
			TTLHours:         getEnvFloat("CACHE_TTL_HOURS", 1),
			MaxSizeMB:        getEnvInt("CACHE_MAX_SIZE_MB", 256),
			Path:             getEnv("CACHE_PATH", ""),
			CompressionLevel: getEnvInt("CACHE_COMPRESSION_LEVEL", 2),
			SweepInterval:    getEnvDuration("CACHE_SWEEP_INTERVAL", 0),
		},
	}
}

// Load reads a YAML, JSON or TOML file on top of DefaultConfig. An empty
// path loads tscore.yaml from the working directory when present.
// Environment variables override file values.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v, DefaultConfig())

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("tscore")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	cfg.Interpolation.Disabled = splitList(cfg.Interpolation.Disabled)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper, c *Config) {
	v.SetDefault("log_level", c.LogLevel)
	v.SetDefault("interpolation.default_method", c.Interpolation.DefaultMethod)
	v.SetDefault("interpolation.max_gpr_points", c.Interpolation.MaxGPRPoints)
	v.SetDefault("interpolation.spectral_frequencies", c.Interpolation.SpectralFrequencies)
	v.SetDefault("interpolation.disabled", c.Interpolation.Disabled)
	v.SetDefault("calculus.derivative_method", c.Calculus.DerivativeMethod)
	v.SetDefault("calculus.derivative_order", c.Calculus.DerivativeOrder)
	v.SetDefault("calculus.sg_window", c.Calculus.SGWindow)
	v.SetDefault("calculus.sg_polyorder", c.Calculus.SGPolyOrder)
	v.SetDefault("calculus.presmooth", c.Calculus.PreSmooth)
	v.SetDefault("downsample.method", c.Downsample.Method)
	v.SetDefault("downsample.points", c.Downsample.Points)
	v.SetDefault("synchronize.method", c.Synchronize.Method)
	v.SetDefault("synchronize.max_grid_points", c.Synchronize.MaxGridPoints)
	v.SetDefault("cache.enabled", c.Cache.Enabled)
	v.SetDefault("cache.ttl_hours", c.Cache.TTLHours)
	v.SetDefault("cache.max_size_mb", c.Cache.MaxSizeMB)
	v.SetDefault("cache.path", c.Cache.Path)
	v.SetDefault("cache.compression_level", c.Cache.CompressionLevel)
	v.SetDefault("cache.sweep_interval", c.Cache.SweepInterval)
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("invalid log level %q", c.LogLevel)
	}

	if !knownInterpolation(provenance.Method(c.Interpolation.DefaultMethod)) {
		return fmt.Errorf("unknown default interpolation method %q", c.Interpolation.DefaultMethod)
	}
	for _, m := range c.Interpolation.Disabled {
		if !knownInterpolation(provenance.Method(m)) {
			return fmt.Errorf("cannot disable unknown interpolation method %q", m)
		}
		if m == c.Interpolation.DefaultMethod {
			return fmt.Errorf("default interpolation method %q is disabled", m)
		}
	}
	if c.Interpolation.MaxGPRPoints < 1 {
		return fmt.Errorf("gpr point ceiling must be at least 1")
	}
	if c.Interpolation.SpectralFrequencies < 1 {
		return fmt.Errorf("spectral frequency count must be at least 1")
	}

	switch calculus.DerivativeMethod(c.Calculus.DerivativeMethod) {
	case calculus.FiniteDiff, calculus.SavitzkyGolay, calculus.SplineDerivative:
	default:
		return fmt.Errorf("unknown derivative method %q", c.Calculus.DerivativeMethod)
	}
	if c.Calculus.DerivativeOrder < 1 || c.Calculus.DerivativeOrder > 3 {
		return fmt.Errorf("derivative order must be between 1 and 3")
	}
	if c.Calculus.SGWindow < 3 || c.Calculus.SGWindow%2 == 0 {
		return fmt.Errorf("savitzky-golay window must be odd and at least 3")
	}
	if c.Calculus.SGPolyOrder < 1 || c.Calculus.SGPolyOrder >= c.Calculus.SGWindow {
		return fmt.Errorf("savitzky-golay polyorder must be between 1 and window-1")
	}
	switch calculus.SmoothingMethod(c.Calculus.PreSmooth) {
	case "", calculus.SmoothSavitzkyGolay, calculus.SmoothGaussian, calculus.SmoothMedian, calculus.SmoothLowpass:
	default:
		return fmt.Errorf("unknown pre-smoothing filter %q", c.Calculus.PreSmooth)
	}

	if !knownDownsample(downsample.Method(c.Downsample.Method)) {
		return fmt.Errorf("unknown downsampling method %q", c.Downsample.Method)
	}
	if c.Downsample.Points < 2 {
		return fmt.Errorf("downsample point budget must be at least 2")
	}

	switch synchronize.Method(c.Synchronize.Method) {
	case synchronize.CommonGrid, synchronize.KalmanAlign:
	default:
		return fmt.Errorf("unknown synchronization method %q", c.Synchronize.Method)
	}
	if c.Synchronize.MaxGridPoints < 1 {
		return fmt.Errorf("max grid points must be at least 1")
	}

	if c.Cache.Enabled {
		if c.Cache.TTLHours < 0 {
			return fmt.Errorf("cache ttl must be non-negative")
		}
		if c.Cache.MaxSizeMB < 0 {
			return fmt.Errorf("cache size must be non-negative")
		}
		if c.Cache.CompressionLevel < 1 || c.Cache.CompressionLevel > 4 {
			return fmt.Errorf("compression level must be between 1 and 4")
		}
		if c.Cache.SweepInterval < 0 {
			return fmt.Errorf("sweep interval must be non-negative")
		}
	}

	return nil
}

// Logger builds a text logger at the configured level
func (c *Config) Logger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if lvl, err := logrus.ParseLevel(c.LogLevel); err == nil {
		l.SetLevel(lvl)
	}
	return l
}

// ToCacheOptions converts to cache.Options
func (c *Config) ToCacheOptions(log logrus.FieldLogger) cache.Options {
	opts := cache.DefaultOptions()
	opts.MaxBytes = int64(c.Cache.MaxSizeMB) << 20
	opts.TTL = time.Duration(c.Cache.TTLHours * float64(time.Hour))
	opts.Dir = c.Cache.Path
	opts.CompressionLevel = c.Cache.CompressionLevel
	opts.SweepInterval = c.Cache.SweepInterval
	opts.Logger = log
	return opts
}

// OpenCache opens the configured cache, or returns nil when caching is
// disabled. A nil cache is valid everywhere.
func (c *Config) OpenCache(log logrus.FieldLogger) (*cache.Cache, error) {
	if !c.Cache.Enabled {
		return nil, nil
	}
	return cache.New(c.ToCacheOptions(log))
}

// Engines bundles one engine per operation family sharing a cache and logger
type Engines struct {
	Interpolation *interpolation.Engine
	Calculus      *calculus.Engine
	Downsample    *downsample.Engine
	Synchronize   *synchronize.Engine
}

// NewEngines builds every engine from the configured defaults
func (c *Config) NewEngines(rc *cache.Cache, log logrus.FieldLogger) *Engines {
	iopts := []interpolation.Option{
		interpolation.WithCache(rc),
		interpolation.WithLogger(log),
		interpolation.WithDefaultMethod(provenance.Method(c.Interpolation.DefaultMethod)),
		interpolation.WithMaxGPRPoints(c.Interpolation.MaxGPRPoints),
		interpolation.WithMaxGridPoints(c.Synchronize.MaxGridPoints),
	}
	for _, m := range c.Interpolation.Disabled {
		iopts = append(iopts, interpolation.WithDisabled(provenance.Method(m), "disabled by configuration"))
	}
	ie := interpolation.NewEngine(iopts...)

	return &Engines{
		Interpolation: ie,
		Calculus: calculus.NewEngine(
			calculus.WithCache(rc),
			calculus.WithLogger(log),
			calculus.WithDefaults(c.DerivativeParams()),
		),
		Downsample: downsample.NewEngine(
			downsample.WithCache(rc),
			downsample.WithLogger(log),
			downsample.WithDefaultMethod(downsample.Method(c.Downsample.Method)),
		),
		Synchronize: synchronize.NewEngine(
			synchronize.WithCache(rc),
			synchronize.WithLogger(log),
			synchronize.WithInterpolation(ie),
			synchronize.WithDefaultMethod(synchronize.Method(c.Synchronize.Method)),
			synchronize.WithMaxGridPoints(c.Synchronize.MaxGridPoints),
		),
	}
}

// InterpolationParams returns the default parameters for method
func (c *Config) InterpolationParams(method provenance.Method) interpolation.Params {
	if method == "" {
		method = provenance.Method(c.Interpolation.DefaultMethod)
	}
	p := interpolation.DefaultParams(method)
	p.Spectral.Frequencies = c.Interpolation.SpectralFrequencies
	return p
}

// DerivativeParams returns the configured derivative defaults
func (c *Config) DerivativeParams() calculus.DerivativeParams {
	p := calculus.DefaultDerivativeParams()
	p.Method = calculus.DerivativeMethod(c.Calculus.DerivativeMethod)
	p.Order = c.Calculus.DerivativeOrder
	p.Window = c.Calculus.SGWindow
	p.PolyOrder = c.Calculus.SGPolyOrder
	if c.Calculus.PreSmooth != "" {
		p.PreSmooth = &calculus.Smoothing{Method: calculus.SmoothingMethod(c.Calculus.PreSmooth)}
	}
	return p
}

// DownsampleParams returns the configured method and point budget
func (c *Config) DownsampleParams() downsample.Params {
	return downsample.Params{
		Method: downsample.Method(c.Downsample.Method),
		Points: c.Downsample.Points,
	}
}

// SynchronizeParams returns the configured alignment defaults
func (c *Config) SynchronizeParams() synchronize.Params {
	p := synchronize.DefaultParams()
	p.Method = synchronize.Method(c.Synchronize.Method)
	return p
}

func knownInterpolation(m provenance.Method) bool {
	for _, known := range interpolation.NewEngine().Methods() {
		if m == known {
			return true
		}
	}
	return false
}

func knownDownsample(m downsample.Method) bool {
	for _, known := range downsample.NewEngine().Methods() {
		if m == known {
			return true
		}
	}
	return false
}

// Helper functions for environment variables
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(EnvPrefix + "_" + key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(EnvPrefix + "_" + key); value != "" {
		if intVal, err := cast.ToIntE(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(EnvPrefix + "_" + key); value != "" {
		if f, err := cast.ToFloat64E(value); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(EnvPrefix + "_" + key); value != "" {
		if b, err := cast.ToBoolE(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(EnvPrefix + "_" + key); value != "" {
		if d, err := cast.ToDurationE(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvList(key string) []string {
	return splitList(cast.ToStringSlice(os.Getenv(EnvPrefix + "_" + key)))
}

// splitList flattens comma separated entries and drops blanks
func splitList(in []string) []string {
	var out []string
	for _, s := range in {
		for _, part := range strings.Split(s, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
