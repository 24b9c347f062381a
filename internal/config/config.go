// Package config loads orbitrack settings from defaults, an optional config
// file and ORBITRACK_* environment variables, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/star/orbitrack/internal/acquire"
	"github.com/star/orbitrack/internal/auth"
	"github.com/star/orbitrack/internal/observability"
	"github.com/star/orbitrack/internal/timegrid"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "ORBITRACK"

// Defaults.
const (
	DefaultHours       = 24.0
	DefaultStepMinutes = 5
	DefaultLogLevel    = slog.LevelInfo
)

// Config is the resolved process configuration.
type Config struct {
	Root            string
	HTTPAddr        string // empty disables the HTTP surface
	TrustProxy      bool
	DownloadTimeout time.Duration
	MaxBodyBytes    int64
	KeepDownloads   int
	Step            time.Duration
	DefaultHours    float64
	Workers         int
	LogLevel        slog.Level
	Auth            auth.Config
	Tracing         observability.TracingConfig
}

// Acquire returns the acquisition settings.
func (c Config) Acquire() acquire.Config {
	return acquire.Config{
		Root:          c.Root,
		Timeout:       c.DownloadTimeout,
		MaxBodyBytes:  c.MaxBodyBytes,
		KeepDownloads: c.KeepDownloads,
	}
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("root", ".")
	v.SetDefault("http_addr", "")
	v.SetDefault("trust_proxy", false)
	v.SetDefault("download_timeout", acquire.DefaultTimeout.String())
	v.SetDefault("max_body_bytes", acquire.DefaultMaxBodyBytes)
	v.SetDefault("keep_downloads", 0)
	v.SetDefault("step_minutes", DefaultStepMinutes)
	v.SetDefault("default_hours", DefaultHours)
	v.SetDefault("workers", runtime.NumCPU())
	v.SetDefault("log_level", "info")
	v.SetDefault("auth_enabled", false)
	v.SetDefault("auth_token", "")
	v.SetDefault("tracing_enabled", false)
	v.SetDefault("tracing_exporter", "stdout")
	v.SetDefault("tracing_endpoint", "")
	v.SetDefault("tracing_sample_ratio", 1.0)
	return v
}

// Load resolves the configuration. Malformed values log a warning and fall
// back to their default; only an unreadable config file or an incomplete auth
// setup is an error.
func Load(logger *slog.Logger) (Config, error) {
	v := newViper()

	if path := os.Getenv(EnvPrefix + "_CONFIG"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("reading config file %s: %w", path, err)
		}
		logger.Info("config file loaded", "path", v.ConfigFileUsed())
	}

	l := loader{v: v, logger: logger}
	cfg := Config{
		Root:            v.GetString("root"),
		HTTPAddr:        v.GetString("http_addr"),
		TrustProxy:      l.boolean("trust_proxy", false),
		DownloadTimeout: l.duration("download_timeout", acquire.DefaultTimeout),
		MaxBodyBytes:    int64(l.positiveInt("max_body_bytes", acquire.DefaultMaxBodyBytes)),
		KeepDownloads:   l.nonNegativeInt("keep_downloads", 0),
		Step:            time.Duration(l.positiveInt("step_minutes", DefaultStepMinutes)) * time.Minute,
		DefaultHours:    l.hours("default_hours", DefaultHours),
		Workers:         l.positiveInt("workers", runtime.NumCPU()),
		LogLevel:        l.level("log_level", DefaultLogLevel),
		Tracing: observability.TracingConfig{
			Enabled:     l.boolean("tracing_enabled", false),
			ServiceName: "orbitrack",
			Exporter:    strings.ToLower(v.GetString("tracing_exporter")),
			Endpoint:    v.GetString("tracing_endpoint"),
			SampleRatio: l.ratio("tracing_sample_ratio", 1.0),
		},
	}
	if cfg.Root == "" {
		cfg.Root = "."
	}

	authCfg, err := l.auth()
	if err != nil {
		return Config{}, err
	}
	cfg.Auth = authCfg

	return cfg, nil
}

// loader reads individual keys, warning on malformed values.
type loader struct {
	v      *viper.Viper
	logger *slog.Logger
}

func (l loader) envName(key string) string {
	return EnvPrefix + "_" + strings.ToUpper(key)
}

func (l loader) warn(key, raw string, def any) {
	l.logger.Warn("invalid "+l.envName(key)+" value, using default", "value", raw, "default", def)
}

func (l loader) boolean(key string, def bool) bool {
	raw := l.v.GetString(key)
	b, err := strconv.ParseBool(raw)
	if err != nil {
		l.warn(key, raw, def)
		return def
	}
	return b
}

func (l loader) positiveInt(key string, def int) int {
	raw := l.v.GetString(key)
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		l.warn(key, raw, def)
		return def
	}
	return n
}

func (l loader) nonNegativeInt(key string, def int) int {
	raw := l.v.GetString(key)
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		l.warn(key, raw, def)
		return def
	}
	return n
}

// duration accepts a Go duration string or a number of seconds.
func (l loader) duration(key string, def time.Duration) time.Duration {
	raw := l.v.GetString(key)
	d, err := time.ParseDuration(raw)
	if err != nil {
		secs, serr := strconv.ParseFloat(raw, 64)
		if serr != nil {
			l.warn(key, raw, def.String())
			return def
		}
		d = time.Duration(secs * float64(time.Second))
	}
	if d <= 0 {
		l.warn(key, raw, def.String())
		return def
	}
	return d
}

func (l loader) hours(key string, def float64) float64 {
	raw := l.v.GetString(key)
	h, err := timegrid.ParseHours(raw)
	if err != nil {
		l.warn(key, raw, def)
		return def
	}
	return h
}

func (l loader) ratio(key string, def float64) float64 {
	raw := l.v.GetString(key)
	r, err := strconv.ParseFloat(raw, 64)
	if err != nil || r < 0 || r > 1 {
		l.warn(key, raw, def)
		return def
	}
	return r
}

func (l loader) level(key string, def slog.Level) slog.Level {
	raw := l.v.GetString(key)
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(raw)); err != nil {
		l.warn(key, raw, def.String())
		return def
	}
	return lvl
}

func (l loader) auth() (auth.Config, error) {
	cfg := auth.Config{}

	raw := l.v.GetString("auth_enabled")
	enabled, err := strconv.ParseBool(raw)
	if err != nil {
		return cfg, errors.New(l.envName("auth_enabled") + " must be a boolean value (true/false/1/0)")
	}
	cfg.Enabled = enabled

	if cfg.Enabled {
		cfg.Token = l.v.GetString("auth_token")
		if cfg.Token == "" {
			return cfg, errors.New(l.envName("auth_token") + " is required when auth is enabled")
		}
		l.logger.Info("auth enabled")
	}
	return cfg, nil
}
