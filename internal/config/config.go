package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix namespaces environment overrides, e.g. RESPONDER_DB_PATH.
const EnvPrefix = "RESPONDER"

// #region types

// Config is the full runtime configuration.
type Config struct {
	DBPath         string          `mapstructure:"db_path"`
	AnalyzerAddr   string          `mapstructure:"analyzer_addr"` // empty = local analyzer
	RequestTimeout time.Duration   `mapstructure:"request_timeout"`
	HistorySize    int             `mapstructure:"history_size"`
	MetricsAddr    string          `mapstructure:"metrics_addr"` // empty = no /metrics endpoint
	Log            LogConfig       `mapstructure:"log"`
	Thresholds     ThresholdConfig `mapstructure:"thresholds"`
	Assembler      AssemblerConfig `mapstructure:"assembler"`
	Learner        LearnerConfig   `mapstructure:"learner"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type ThresholdConfig struct {
	LowConfidence      float64 `mapstructure:"low_confidence"`
	ColdStartResponses int     `mapstructure:"cold_start_responses"`
}

type AssemblerConfig struct {
	ContextLimit int     `mapstructure:"context_limit"`
	Discount     float64 `mapstructure:"discount"`
}

type LearnerConfig struct {
	RatePerSecond float64       `mapstructure:"rate_per_second"`
	Burst         int           `mapstructure:"burst"`
	Timeout       time.Duration `mapstructure:"timeout"`
}

// #endregion

// #region defaults

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		DBPath:         "responder.db",
		RequestTimeout: 10 * time.Second,
		HistorySize:    100,
		Log:            LogConfig{Level: "info", Format: "text"},
		Thresholds:     ThresholdConfig{LowConfidence: 0.1, ColdStartResponses: 10},
		Assembler:      AssemblerConfig{ContextLimit: 8, Discount: 0.75},
		Learner:        LearnerConfig{RatePerSecond: 5, Burst: 10, Timeout: 5 * time.Second},
	}
}

func setDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("db_path", d.DBPath)
	v.SetDefault("analyzer_addr", d.AnalyzerAddr)
	v.SetDefault("request_timeout", d.RequestTimeout)
	v.SetDefault("history_size", d.HistorySize)
	v.SetDefault("metrics_addr", d.MetricsAddr)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
	v.SetDefault("thresholds.low_confidence", d.Thresholds.LowConfidence)
	v.SetDefault("thresholds.cold_start_responses", d.Thresholds.ColdStartResponses)
	v.SetDefault("assembler.context_limit", d.Assembler.ContextLimit)
	v.SetDefault("assembler.discount", d.Assembler.Discount)
	v.SetDefault("learner.rate_per_second", d.Learner.RatePerSecond)
	v.SetDefault("learner.burst", d.Learner.Burst)
	v.SetDefault("learner.timeout", d.Learner.Timeout)
}

// #endregion

// #region load

// Load reads defaults, then the YAML file at path (if non-empty), then
// RESPONDER_* environment variables, and clamps the result.
func Load(path string) (Config, error) {
	return LoadWith(viper.New(), path)
}

// LoadWith is Load over a caller-supplied viper instance, so flags bound to
// v take precedence over the file and environment.
func LoadWith(v *viper.Viper, path string) (Config, error) {
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return Config{}, fmt.Errorf("read config %s: %w", path, err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	return cfg.Clamp(), nil
}

// #endregion

// #region clamp

// Clamp forces every value into its valid range.
func (c Config) Clamp() Config {
	d := Default()
	if c.DBPath == "" {
		c.DBPath = d.DBPath
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = d.RequestTimeout
	}
	c.HistorySize = min(max(c.HistorySize, 50), 100)
	if c.Thresholds.LowConfidence <= 0 || c.Thresholds.LowConfidence >= 0.5 {
		c.Thresholds.LowConfidence = d.Thresholds.LowConfidence
	}
	if c.Thresholds.ColdStartResponses < 0 {
		c.Thresholds.ColdStartResponses = d.Thresholds.ColdStartResponses
	}
	c.Assembler.ContextLimit = min(max(c.Assembler.ContextLimit, 5), 10)
	if c.Assembler.Discount <= 0 || c.Assembler.Discount >= 1 {
		c.Assembler.Discount = d.Assembler.Discount
	}
	if c.Learner.RatePerSecond <= 0 {
		c.Learner.RatePerSecond = d.Learner.RatePerSecond
	}
	if c.Learner.Burst <= 0 {
		c.Learner.Burst = d.Learner.Burst
	}
	if c.Learner.Timeout <= 0 {
		c.Learner.Timeout = d.Learner.Timeout
	}
	return c
}

// #endregion
