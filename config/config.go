// Package config loads bridge settings from TOML with default overlay and
// environment overrides.
package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/wippyai/guest-bridge/errors"
)

const (
	EnvLogLevel = "GUESTBRIDGE_LOG_LEVEL"
	EnvWorkers  = "GUESTBRIDGE_WORKERS"
)

// Config is the top-level bridge configuration.
type Config struct {
	Log    LogConfig    `toml:"log"`
	Engine EngineConfig `toml:"engine"`
	Mode   ModeConfig   `toml:"mode"`
}

// LogConfig selects the zap logger built for the runtime.
type LogConfig struct {
	Level       string `toml:"level"`
	Format      string `toml:"format"` // console or json
	Development bool   `toml:"development"`
}

// EngineConfig tunes the guest engine.
type EngineConfig struct {
	// Workers bounds concurrent async guest calls.
	Workers int `toml:"workers"`
}

// ModeConfig is the default proxy mode applied to results and imports.
type ModeConfig struct {
	AttributeCheck        bool `toml:"attribute_check"`
	AsyncOverride         bool `toml:"async_override"`
	GetReference          bool `toml:"get_reference"`
	GetReferenceOnIterate bool `toml:"get_reference_on_iterate"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
		Engine: EngineConfig{Workers: 4},
		Mode:   ModeConfig{AttributeCheck: true},
	}
}

// Load reads path over the defaults, then applies environment overrides
// and validates. An empty path yields the defaults with overrides.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return Config{}, errors.Wrap(errors.PhaseConfig, errors.KindInvalidInput, err, "load "+path)
		}
	}
	applyEnvOverrides(&cfg)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Parse decodes TOML data over the defaults and validates. Environment
// overrides are not applied.
func Parse(data string) (Config, error) {
	cfg := Default()
	if _, err := toml.Decode(data, &cfg); err != nil {
		return Config{}, errors.Wrap(errors.PhaseConfig, errors.KindInvalidInput, err, "parse config")
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks value ranges and enumerations.
func (c Config) Validate() error {
	if _, ok := parseLevel(c.Log.Level); !ok {
		return errors.New(errors.PhaseConfig, errors.KindInvalidInput).
			Path("log", "level").
			Value(c.Log.Level).
			Detail("unknown log level").
			Build()
	}
	switch strings.ToLower(strings.TrimSpace(c.Log.Format)) {
	case "", "console", "json":
	default:
		return errors.New(errors.PhaseConfig, errors.KindInvalidInput).
			Path("log", "format").
			Value(c.Log.Format).
			Detail("expected console or json").
			Build()
	}
	if c.Engine.Workers < 1 {
		return errors.New(errors.PhaseConfig, errors.KindInvalidInput).
			Path("engine", "workers").
			Value(c.Engine.Workers).
			Detail("must be at least 1").
			Build()
	}
	return nil
}

// Build constructs the zap logger described by the log settings. The
// "off" level yields a no-op logger.
func (l LogConfig) Build() (*zap.Logger, error) {
	lvl, ok := parseLevel(l.Level)
	if !ok {
		return nil, errors.InvalidInput(errors.PhaseConfig, l.Level, "unknown log level")
	}
	if lvl == offLevel {
		return zap.NewNop(), nil
	}
	var zc zap.Config
	if l.Development {
		zc = zap.NewDevelopmentConfig()
	} else {
		zc = zap.NewProductionConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(lvl)
	switch strings.ToLower(strings.TrimSpace(l.Format)) {
	case "json":
		zc.Encoding = "json"
	default:
		zc.Encoding = "console"
		zc.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	}
	zc.EncoderConfig.TimeKey = "ts"
	zc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, err := zc.Build()
	if err != nil {
		return nil, errors.Wrap(errors.PhaseConfig, errors.KindInvalidInput, err, "build logger")
	}
	return logger, nil
}

func applyEnvOverrides(cfg *Config) {
	if raw := strings.TrimSpace(os.Getenv(EnvLogLevel)); raw != "" {
		if _, ok := parseLevel(raw); ok {
			cfg.Log.Level = raw
		}
	}
	if n, ok := parseInt(os.Getenv(EnvWorkers)); ok {
		cfg.Engine.Workers = n
	}
}

// offLevel sits above every zap level and marks a disabled logger.
const offLevel = zapcore.FatalLevel + 1

func parseLevel(raw string) (zapcore.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug", "trace":
		return zapcore.DebugLevel, true
	case "", "info":
		return zapcore.InfoLevel, true
	case "warn", "warning":
		return zapcore.WarnLevel, true
	case "error":
		return zapcore.ErrorLevel, true
	case "off", "disabled", "none":
		return offLevel, true
	default:
		return zapcore.InfoLevel, false
	}
}

func parseInt(raw string) (int, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, false
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return n, true
}
