// Package config provides configuration management for the backtest CLI.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	apperrors "delta-hedger/internal/errors"
	"delta-hedger/internal/hedging"
	"delta-hedger/internal/logging"
	"delta-hedger/internal/models"
	"delta-hedger/pkg/utils"
)

const configFileName = "config"

// ErrTemplateCreated is returned by Load when no config file existed and a
// template was written in its place.
var ErrTemplateCreated = errors.New("config file not found")

// Config holds all application configuration.
type Config struct {
	Backtest    BacktestConfig              `mapstructure:"backtest"`
	Data        DataConfig                  `mapstructure:"data"`
	Logging     LoggingConfig               `mapstructure:"logging"`
	Underlyings map[string]UnderlyingConfig `mapstructure:"underlyings"`

	// Dir is the directory the config was loaded from.
	Dir string `mapstructure:"-"`
}

// BacktestConfig holds the engine and batch parameters.
type BacktestConfig struct {
	Underlying          string    `mapstructure:"underlying"`
	StartAfter          string    `mapstructure:"start_after"`
	ScanExitTime        string    `mapstructure:"scan_exit_time"`
	ExpiryDayExitTime   string    `mapstructure:"expiry_day_exit_time"`
	ExpiryDayTTE        float64   `mapstructure:"expiry_day_tte"`
	StartingExposure    float64   `mapstructure:"starting_exposure"`
	MaxHedgeRatio       float64   `mapstructure:"max_hedge_ratio"`
	DeltaRange          []float64 `mapstructure:"delta_range"`
	TargetDelta         float64   `mapstructure:"target_delta"`
	DeltaThresholdPct   float64   `mapstructure:"delta_threshold_pct"`
	EntryStrikes        int       `mapstructure:"entry_strikes"`
	CacheStrikes        int       `mapstructure:"cache_strikes"`
	MissedStrikePadding int       `mapstructure:"missed_strike_padding"`
	Workers             int       `mapstructure:"workers"`
	OnlyExpiry          bool      `mapstructure:"only_expiry"`
	SummaryExposure     float64   `mapstructure:"summary_exposure"`
}

// DataConfig locates the price database and result folders.
type DataConfig struct {
	DBPath     string `mapstructure:"db_path"`
	ResultsDir string `mapstructure:"results_dir"`
}

// LoggingConfig mirrors logging.LogConfig.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Console    bool   `mapstructure:"console"`
	File       bool   `mapstructure:"file"`
	FilePath   string `mapstructure:"file_path"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
}

// UnderlyingConfig describes the strike grid of one index.
type UnderlyingConfig struct {
	Base float64 `mapstructure:"base"`
}

// DefaultBases are the strike steps of the indices with listed weeklies.
var DefaultBases = map[string]float64{
	"NIFTY":      50,
	"BANKNIFTY":  100,
	"FINNIFTY":   50,
	"MIDCPNIFTY": 25,
	"SENSEX":     100,
}

// DefaultConfigDir returns the default configuration directory.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".config/delta-hedger"
	}
	return filepath.Join(home, ".config", "delta-hedger")
}

// Load loads configuration from the specified directory.
// If configDir is empty, uses the default config directory.
func Load(configDir string) (*Config, error) {
	if configDir == "" {
		configDir = DefaultConfigDir()
	}

	// A missing .env is fine; variables already set take precedence.
	if err := godotenv.Load(filepath.Join(configDir, ".env")); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	v := viper.New()
	v.SetConfigName(configFileName)
	v.SetConfigType("toml")
	v.AddConfigPath(configDir)
	setDefaults(v, configDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil, createTemplateConfig(configDir)
		}
		return nil, fmt.Errorf("reading config.toml: %w", err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decoding config.toml: %w", err)
	}
	cfg.Dir = configDir
	cfg.fillPaths()

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper, configDir string) {
	p := hedging.DefaultParams()
	v.SetDefault("backtest.underlying", "NIFTY")
	v.SetDefault("backtest.start_after", p.StartAfter.String())
	v.SetDefault("backtest.scan_exit_time", p.ScanExitTime.String())
	v.SetDefault("backtest.expiry_day_exit_time", p.ExpiryDayExitTime.String())
	v.SetDefault("backtest.expiry_day_tte", p.ExpiryDayTTE)
	v.SetDefault("backtest.starting_exposure", p.StartingExposure)
	v.SetDefault("backtest.max_hedge_ratio", p.MaxHedgeRatio)
	v.SetDefault("backtest.delta_range", []float64{p.DeltaRange.Low, p.DeltaRange.High})
	v.SetDefault("backtest.target_delta", p.TargetDelta)
	v.SetDefault("backtest.delta_threshold_pct", p.DeltaThresholdPct)
	v.SetDefault("backtest.entry_strikes", p.EntryStrikes)
	v.SetDefault("backtest.cache_strikes", p.CacheStrikes)
	v.SetDefault("backtest.missed_strike_padding", p.MissedStrikePadding)
	v.SetDefault("backtest.workers", 5)
	v.SetDefault("backtest.only_expiry", false)
	v.SetDefault("backtest.summary_exposure", 12_000_000.0)

	v.SetDefault("data.db_path", filepath.Join(configDir, "hedger.db"))
	v.SetDefault("data.results_dir", "results")

	l := logging.DefaultLogConfig()
	v.SetDefault("logging.level", l.Level)
	v.SetDefault("logging.console", l.Console)
	v.SetDefault("logging.file", l.File)
	v.SetDefault("logging.file_path", filepath.Join(configDir, "logs", "hedger.log"))
	v.SetDefault("logging.max_size", l.MaxSize)
	v.SetDefault("logging.max_backups", l.MaxBackups)
	v.SetDefault("logging.max_age", l.MaxAge)
}

// fillPaths replaces empty paths left in the file with defaults under Dir.
func (c *Config) fillPaths() {
	if c.Data.DBPath == "" {
		c.Data.DBPath = filepath.Join(c.Dir, "hedger.db")
	}
	if c.Data.ResultsDir == "" {
		c.Data.ResultsDir = "results"
	}
	if c.Logging.FilePath == "" {
		c.Logging.FilePath = filepath.Join(c.Dir, "logs", "hedger.log")
	}
}

func applyEnvOverrides(cfg *Config) error {
	if v := os.Getenv("HEDGER_DB_PATH"); v != "" {
		cfg.Data.DBPath = v
	}
	if v := os.Getenv("HEDGER_RESULTS_DIR"); v != "" {
		cfg.Data.ResultsDir = v
	}
	if v := os.Getenv("HEDGER_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("HEDGER_WORKERS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: %w", apperrors.ErrConfigInvalid,
				apperrors.NewValidationError("HEDGER_WORKERS", v, "must be an integer"))
		}
		cfg.Backtest.Workers = n
	}
	return nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if _, err := c.Underlying(c.Backtest.Underlying); err != nil {
		return err
	}
	if c.Backtest.Workers < 1 {
		return invalid("workers", c.Backtest.Workers, "must be at least 1")
	}
	if c.Backtest.SummaryExposure < 0 {
		return invalid("summary_exposure", c.Backtest.SummaryExposure, "must not be negative")
	}
	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		return invalid("logging.level", c.Logging.Level, "must be debug, info, warn or error")
	}

	params, err := c.BacktestParams()
	if err != nil {
		return err
	}
	return params.Validate()
}

func invalid(field string, value interface{}, msg string) error {
	return fmt.Errorf("%w: %w", apperrors.ErrConfigInvalid, apperrors.NewValidationError(field, value, msg))
}

// BacktestParams converts the [backtest] section into engine parameters.
func (c *Config) BacktestParams() (hedging.Params, error) {
	b := c.Backtest
	p := hedging.Params{
		ExpiryDayTTE:        b.ExpiryDayTTE,
		StartingExposure:    b.StartingExposure,
		MaxHedgeRatio:       b.MaxHedgeRatio,
		TargetDelta:         b.TargetDelta,
		DeltaThresholdPct:   b.DeltaThresholdPct,
		EntryStrikes:        b.EntryStrikes,
		CacheStrikes:        b.CacheStrikes,
		MissedStrikePadding: b.MissedStrikePadding,
	}

	clocks := []struct {
		field string
		value string
		dst   *utils.Clock
	}{
		{"start_after", b.StartAfter, &p.StartAfter},
		{"scan_exit_time", b.ScanExitTime, &p.ScanExitTime},
		{"expiry_day_exit_time", b.ExpiryDayExitTime, &p.ExpiryDayExitTime},
	}
	for _, f := range clocks {
		clock, err := utils.ParseClock(f.value)
		if err != nil {
			return p, invalid(f.field, f.value, "must be HH:MM")
		}
		*f.dst = clock
	}

	if len(b.DeltaRange) != 2 {
		return p, invalid("delta_range", b.DeltaRange, "must have two bounds")
	}
	p.DeltaRange = hedging.DeltaRange{Low: b.DeltaRange[0], High: b.DeltaRange[1]}
	return p, nil
}

// Underlying returns the strike grid of name, taking [underlyings] entries
// before the built-in defaults.
func (c *Config) Underlying(name string) (models.Underlying, error) {
	name = strings.ToUpper(strings.TrimSpace(name))
	base := DefaultBases[name]
	// viper lower-cases map keys.
	for k, u := range c.Underlyings {
		if strings.EqualFold(k, name) && u.Base > 0 {
			base = u.Base
		}
	}
	if name == "" || base <= 0 {
		return models.Underlying{}, invalid("underlying", name, "unknown underlying, add [underlyings."+name+"] base")
	}
	return models.Underlying{Name: name, Base: base}, nil
}

// LogConfig converts the [logging] section.
func (c *Config) LogConfig() logging.LogConfig {
	return logging.LogConfig{
		Level:      c.Logging.Level,
		Console:    c.Logging.Console,
		File:       c.Logging.File,
		FilePath:   c.Logging.FilePath,
		MaxSize:    c.Logging.MaxSize,
		MaxBackups: c.Logging.MaxBackups,
		MaxAge:     c.Logging.MaxAge,
	}
}

// Path returns the config file location inside Dir.
func Path(configDir string) string {
	if configDir == "" {
		configDir = DefaultConfigDir()
	}
	return filepath.Join(configDir, configFileName+".toml")
}
