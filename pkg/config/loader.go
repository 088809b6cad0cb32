package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// legacyEnv maps config keys to the bare environment variable names the
// deployment scripts already export. They are consulted after ETL_-prefixed names.
var legacyEnv = map[string]string{
	"database.url":            "DATABASE_URL",
	"pipeline.source_path":    "DATA_PATH",
	"pipeline.processed_path": "PROCESSED_DATA_PATH",
	"pipeline.table_name":     "TABLE_NAME",
	"pipeline.synthetic_rows": "ETL_NUM_ROWS",
	"redis.addr":              "REDIS_ADDR",
	"kafka.brokers":           "KAFKA_BROKERS",
	"logging.level":           "LOG_LEVEL",
}

// flagKeys maps command line flag names to config keys
var flagKeys = map[string]string{
	"source":       "pipeline.source_path",
	"processed":    "pipeline.processed_path",
	"table":        "pipeline.table_name",
	"rows":         "pipeline.synthetic_rows",
	"seed":         "pipeline.synthetic_seed",
	"interval":     "pipeline.interval",
	"database-url": "database.url",
	"port":         "http.port",
	"log-level":    "logging.level",
	"log-format":   "logging.format",
}

// RegisterFlags defines the --config flag and every flag Load understands on
// fs. It returns the --config value.
func RegisterFlags(fs *pflag.FlagSet) *string {
	configPath := fs.String("config", "", "path to a YAML config file")
	fs.String("source", "", "source CSV path")
	fs.String("processed", "", "processed CSV output path")
	fs.String("table", "", "target table name")
	fs.Int("rows", 0, "synthetic rows when the source is unavailable")
	fs.Int64("seed", 0, "synthetic data seed")
	fs.Duration("interval", 0, "periodic pipeline interval (0 disables)")
	fs.String("database-url", "", "store connection target (sqlite://, postgres://, timescaledb://)")
	fs.Int("port", 0, "HTTP listen port")
	fs.String("log-level", "", "log level (debug, info, warn, error)")
	fs.String("log-format", "", "log format (json, console)")
	return configPath
}

// Load reads configuration from (in increasing priority) defaults, an optional
// YAML file, the environment and any changed flags in fs. fs may be nil.
func Load(configPath string, fs *pflag.FlagSet) (*Config, error) {
	// Load .env file if it exists (ignore error if not present)
	_ = godotenv.Load()

	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
	}

	setDefaults(v)

	v.SetEnvPrefix("ETL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for key, name := range legacyEnv {
		envKey := "ETL_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, envKey, name); err != nil {
			return nil, fmt.Errorf("failed to bind env %s: %w", name, err)
		}
	}

	if fs != nil {
		for flagName, key := range flagKeys {
			if f := fs.Lookup(flagName); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("failed to bind flag %s: %w", flagName, err)
				}
			}
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) || configPath != "" {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	d := Default()

	v.SetDefault("database.url", d.Database.URL)
	v.SetDefault("database.connect_timeout", d.Database.ConnectTimeout)
	v.SetDefault("database.query_timeout", d.Database.QueryTimeout)
	v.SetDefault("database.max_open_conns", d.Database.MaxOpenConns)
	v.SetDefault("database.max_idle_conns", d.Database.MaxIdleConns)

	v.SetDefault("pipeline.source_path", d.Pipeline.SourcePath)
	v.SetDefault("pipeline.processed_path", d.Pipeline.ProcessedPath)
	v.SetDefault("pipeline.table_name", d.Pipeline.TableName)
	v.SetDefault("pipeline.synthetic_rows", d.Pipeline.SyntheticRows)
	v.SetDefault("pipeline.synthetic_seed", d.Pipeline.SyntheticSeed)
	v.SetDefault("pipeline.interval", d.Pipeline.Interval)

	v.SetDefault("thresholds.zscore_temperature", d.Thresholds.ZScoreTemperature)
	v.SetDefault("thresholds.zscore_pressure", d.Thresholds.ZScorePressure)
	v.SetDefault("thresholds.warning_zscore_temperature", d.Thresholds.WarningZScoreTemperature)
	v.SetDefault("thresholds.warning_zscore_pressure", d.Thresholds.WarningZScorePressure)
	v.SetDefault("thresholds.temperature_high", d.Thresholds.TemperatureHigh)
	v.SetDefault("thresholds.temperature_low", d.Thresholds.TemperatureLow)
	v.SetDefault("thresholds.pressure_high", d.Thresholds.PressureHigh)
	v.SetDefault("thresholds.pressure_low", d.Thresholds.PressureLow)

	v.SetDefault("redis.addr", d.Redis.Addr)
	v.SetDefault("redis.password", d.Redis.Password)
	v.SetDefault("redis.db", d.Redis.DB)
	v.SetDefault("redis.ttl", d.Redis.TTL)

	v.SetDefault("kafka.brokers", d.Kafka.Brokers)
	v.SetDefault("kafka.topic_runs", d.Kafka.TopicRuns)
	v.SetDefault("kafka.topic_alerts", d.Kafka.TopicAlerts)

	v.SetDefault("http.host", d.HTTP.Host)
	v.SetDefault("http.port", d.HTTP.Port)
	v.SetDefault("http.read_timeout", d.HTTP.ReadTimeout)
	v.SetDefault("http.write_timeout", d.HTTP.WriteTimeout)

	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)
}

// Default returns the configuration used when nothing is overridden
func Default() *Config {
	return &Config{
		Database: DatabaseConfig{
			URL:            "sqlite://data/sensor_data.db",
			ConnectTimeout: 5 * time.Second,
			QueryTimeout:   30 * time.Second,
			MaxOpenConns:   25,
			MaxIdleConns:   5,
		},
		Pipeline: PipelineConfig{
			SourcePath:    "data/raw_data.csv",
			ProcessedPath: "data/processed_data.csv",
			TableName:     "sensor_data",
			SyntheticRows: 100,
			SyntheticSeed: 42,
		},
		Thresholds: ThresholdsConfig{
			ZScoreTemperature:        2.0,
			ZScorePressure:           2.5,
			WarningZScoreTemperature: 0,
			WarningZScorePressure:    1.5,
			TemperatureHigh:          80,
			TemperatureLow:           10,
			PressureHigh:             1050,
			PressureLow:              950,
		},
		Redis: RedisConfig{
			TTL: 30 * time.Second,
		},
		Kafka: KafkaConfig{
			Brokers:     []string{},
			TopicRuns:   "sensor.pipeline.runs",
			TopicAlerts: "sensor.pipeline.alerts",
		},
		HTTP: HTTPConfig{
			Host:         "0.0.0.0",
			Port:         8000,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}
