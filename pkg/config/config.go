// Package config loads narrowdown configuration from a YAML file and
// NARROWDOWN_* environment variables.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/spf13/viper"

	"github.com/Sumatoshi-tech/narrowdown/pkg/document"
	"github.com/Sumatoshi-tech/narrowdown/pkg/tokenize"
)

// Storage backends.
const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
)

// Log formats.
const (
	LogFormatText = "text"
	LogFormatJSON = "json"
)

// EnvPrefix prefixes every environment override, e.g. NARROWDOWN_INDEX_THRESHOLD.
const EnvPrefix = "NARROWDOWN"

// Sentinel validation errors.
var (
	ErrInvalidThreshold    = errors.New("similarity threshold must be within [0, 1]")
	ErrInvalidProbability  = errors.New("error probability must be within [0, 1]")
	ErrInvalidStorageLevel = errors.New("unknown storage level")
	ErrInvalidTokenizer    = errors.New("invalid tokenizer")
	ErrInvalidBackend      = errors.New("unknown storage backend")
	ErrInvalidPath         = errors.New("storage path must not be empty")
	ErrInvalidLogLevel     = errors.New("unknown log level")
	ErrInvalidLogFormat    = errors.New("unknown log format")
	ErrInvalidSampleRatio  = errors.New("sample ratio must be within [0, 1]")
)

// Config holds all narrowdown configuration.
type Config struct {
	Index     IndexConfig     `mapstructure:"index"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// IndexConfig tunes a new similarity store. An existing store keeps the
// settings it was created with.
type IndexConfig struct {
	Threshold        float64 `mapstructure:"threshold"`
	MaxFalseNegative float64 `mapstructure:"max_false_negative"`
	MaxFalsePositive float64 `mapstructure:"max_false_positive"`
	StorageLevel     string  `mapstructure:"storage_level"`
	Tokenizer        string  `mapstructure:"tokenizer"`
	Seed             uint64  `mapstructure:"seed"`
}

// StorageConfig selects the backend.
type StorageConfig struct {
	Backend string `mapstructure:"backend"`

	// Path is the snapshot file for the memory backend and the database
	// file for sqlite.
	Path     string `mapstructure:"path"`
	Compress bool   `mapstructure:"compress"`

	Redis RedisConfig `mapstructure:"redis"`
}

// RedisConfig holds redis connection settings.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

// LoggingConfig holds logging-specific configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// TelemetryConfig holds OpenTelemetry and Prometheus export settings.
type TelemetryConfig struct {
	OTLPEndpoint    string  `mapstructure:"otlp_endpoint"`
	OTLPInsecure    bool    `mapstructure:"otlp_insecure"`
	OTLPHeaders     string  `mapstructure:"otlp_headers"`
	SampleRatio     float64 `mapstructure:"sample_ratio"`
	MetricsTextfile string  `mapstructure:"metrics_textfile"`
}

// LoadConfig loads configuration from file and environment variables.
// An empty configPath searches ., ./config and /etc/narrowdown for
// narrowdown.yaml and tolerates its absence.
func LoadConfig(configPath string) (*Config, error) {
	viperCfg := viper.New()

	setDefaults(viperCfg)

	if configPath != "" {
		viperCfg.SetConfigFile(configPath)
	} else {
		viperCfg.SetConfigName("narrowdown")
		viperCfg.SetConfigType("yaml")
		viperCfg.AddConfigPath(".")
		viperCfg.AddConfigPath("./config")
		viperCfg.AddConfigPath("/etc/narrowdown")
	}

	viperCfg.SetEnvPrefix(EnvPrefix)
	viperCfg.AutomaticEnv()
	viperCfg.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	readErr := viperCfg.ReadInConfig()
	if readErr != nil {
		var notFoundErr viper.ConfigFileNotFoundError
		if !errors.As(readErr, &notFoundErr) {
			return nil, fmt.Errorf("failed to read config file: %w", readErr)
		}
	}

	var config Config

	unmarshalErr := viperCfg.Unmarshal(&config)
	if unmarshalErr != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", unmarshalErr)
	}

	validateErr := validateConfig(&config)
	if validateErr != nil {
		return nil, fmt.Errorf("invalid configuration: %w", validateErr)
	}

	return &config, nil
}

// setDefaults sets default configuration values.
func setDefaults(viperCfg *viper.Viper) {
	viperCfg.SetDefault("index.threshold", DefaultThreshold)
	viperCfg.SetDefault("index.max_false_negative", DefaultMaxFalseNegative)
	viperCfg.SetDefault("index.max_false_positive", DefaultMaxFalsePositive)
	viperCfg.SetDefault("index.storage_level", DefaultStorageLevel)
	viperCfg.SetDefault("index.tokenizer", DefaultTokenizer)
	viperCfg.SetDefault("index.seed", DefaultSeed)

	viperCfg.SetDefault("storage.backend", DefaultBackend)
	viperCfg.SetDefault("storage.path", DefaultPath)
	viperCfg.SetDefault("storage.compress", DefaultCompress)
	viperCfg.SetDefault("storage.redis.addr", DefaultRedisAddr)
	viperCfg.SetDefault("storage.redis.password", "")
	viperCfg.SetDefault("storage.redis.db", DefaultRedisDB)
	viperCfg.SetDefault("storage.redis.prefix", DefaultRedisPrefix)

	viperCfg.SetDefault("logging.level", DefaultLogLevel)
	viperCfg.SetDefault("logging.format", DefaultLogFormat)

	viperCfg.SetDefault("telemetry.otlp_endpoint", "")
	viperCfg.SetDefault("telemetry.otlp_insecure", false)
	viperCfg.SetDefault("telemetry.otlp_headers", "")
	viperCfg.SetDefault("telemetry.sample_ratio", DefaultSampleRatio)
	viperCfg.SetDefault("telemetry.metrics_textfile", "")
}

func inUnitInterval(v float64) bool {
	return v >= 0 && v <= 1
}

// validateConfig validates the configuration.
func validateConfig(config *Config) error {
	if !inUnitInterval(config.Index.Threshold) {
		return fmt.Errorf("%w: %v", ErrInvalidThreshold, config.Index.Threshold)
	}

	if !inUnitInterval(config.Index.MaxFalseNegative) || !inUnitInterval(config.Index.MaxFalsePositive) {
		return fmt.Errorf("%w: false negative %v, false positive %v",
			ErrInvalidProbability, config.Index.MaxFalseNegative, config.Index.MaxFalsePositive)
	}

	if _, ok := document.ParseStorageLevel(config.Index.StorageLevel); !ok {
		return fmt.Errorf("%w: %q", ErrInvalidStorageLevel, config.Index.StorageLevel)
	}

	if _, err := tokenize.Parse(config.Index.Tokenizer); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidTokenizer, err)
	}

	if !slices.Contains([]string{BackendMemory, BackendSQLite, BackendRedis}, config.Storage.Backend) {
		return fmt.Errorf("%w: %q", ErrInvalidBackend, config.Storage.Backend)
	}

	if config.Storage.Backend != BackendRedis && config.Storage.Path == "" {
		return ErrInvalidPath
	}

	if _, err := config.Logging.SlogLevel(); err != nil {
		return err
	}

	if config.Logging.Format != LogFormatText && config.Logging.Format != LogFormatJSON {
		return fmt.Errorf("%w: %q", ErrInvalidLogFormat, config.Logging.Format)
	}

	if !inUnitInterval(config.Telemetry.SampleRatio) {
		return fmt.Errorf("%w: %v", ErrInvalidSampleRatio, config.Telemetry.SampleRatio)
	}

	return nil
}

// Level returns the parsed storage level. It is valid after LoadConfig.
func (c IndexConfig) Level() document.StorageLevel {
	level, _ := document.ParseStorageLevel(c.StorageLevel)

	return level
}

// SlogLevel parses the configured level name.
func (c LoggingConfig) SlogLevel() (slog.Level, error) {
	var level slog.Level

	if err := level.UnmarshalText([]byte(c.Level)); err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidLogLevel, c.Level)
	}

	return level, nil
}
