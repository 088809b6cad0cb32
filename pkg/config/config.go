package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

type Config struct {
	Database   DatabaseConfig   `mapstructure:"database"`
	Pipeline   PipelineConfig   `mapstructure:"pipeline"`
	Thresholds ThresholdsConfig `mapstructure:"thresholds"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Kafka      KafkaConfig      `mapstructure:"kafka"`
	HTTP       HTTPConfig       `mapstructure:"http"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// DatabaseConfig selects the store backend through URL. The scheme picks the
// profile: sqlite:// or file: for the embedded engine, postgres:// for a
// relational server and timescaledb:// for a hypertable-backed server.
type DatabaseConfig struct {
	URL            string        `mapstructure:"url"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
	QueryTimeout   time.Duration `mapstructure:"query_timeout"`
	MaxOpenConns   int           `mapstructure:"max_open_conns"`
	MaxIdleConns   int           `mapstructure:"max_idle_conns"`
}

type PipelineConfig struct {
	SourcePath    string        `mapstructure:"source_path"`
	ProcessedPath string        `mapstructure:"processed_path"`
	TableName     string        `mapstructure:"table_name"`
	SyntheticRows int           `mapstructure:"synthetic_rows"`
	SyntheticSeed int64         `mapstructure:"synthetic_seed"`
	Interval      time.Duration `mapstructure:"interval"` // 0 disables periodic runs
}

type ThresholdsConfig struct {
	ZScoreTemperature        float64 `mapstructure:"zscore_temperature"`
	ZScorePressure           float64 `mapstructure:"zscore_pressure"`
	WarningZScoreTemperature float64 `mapstructure:"warning_zscore_temperature"`
	WarningZScorePressure    float64 `mapstructure:"warning_zscore_pressure"`
	TemperatureHigh          float64 `mapstructure:"temperature_high"`
	TemperatureLow           float64 `mapstructure:"temperature_low"`
	PressureHigh             float64 `mapstructure:"pressure_high"`
	PressureLow              float64 `mapstructure:"pressure_low"`
}

type RedisConfig struct {
	Addr     string        `mapstructure:"addr"` // empty disables the response cache
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	TTL      time.Duration `mapstructure:"ttl"`
}

type KafkaConfig struct {
	Brokers     []string `mapstructure:"brokers"` // empty disables event publishing
	TopicRuns   string   `mapstructure:"topic_runs"`
	TopicAlerts string   `mapstructure:"topic_alerts"`
}

type HTTPConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Addr returns the listen address for the HTTP server
func (h HTTPConfig) Addr() string {
	return fmt.Sprintf("%s:%d", h.Host, h.Port)
}

// Validate checks the configuration for values no component can work with
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Database.URL) == "" {
		return errors.New("database.url is required")
	}
	if c.Database.QueryTimeout <= 0 {
		return errors.New("database.query_timeout must be positive")
	}
	if c.Pipeline.TableName == "" {
		return errors.New("pipeline.table_name is required")
	}
	if c.Pipeline.SyntheticRows <= 0 {
		return fmt.Errorf("pipeline.synthetic_rows must be positive, got %d", c.Pipeline.SyntheticRows)
	}
	if c.Pipeline.Interval < 0 {
		return errors.New("pipeline.interval must not be negative")
	}

	t := c.Thresholds
	if t.ZScoreTemperature <= 0 || t.ZScorePressure <= 0 {
		return errors.New("z-score thresholds must be positive")
	}
	if t.WarningZScoreTemperature < 0 || t.WarningZScorePressure < 0 {
		return errors.New("warning z-score thresholds must not be negative")
	}
	if t.TemperatureLow >= t.TemperatureHigh {
		return fmt.Errorf("temperature_low (%v) must be below temperature_high (%v)", t.TemperatureLow, t.TemperatureHigh)
	}
	if t.PressureLow >= t.PressureHigh {
		return fmt.Errorf("pressure_low (%v) must be below pressure_high (%v)", t.PressureLow, t.PressureHigh)
	}

	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("invalid http port: %d", c.HTTP.Port)
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid logging level: %q", c.Logging.Level)
	}

	return nil
}
