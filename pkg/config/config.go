package config

import (
	"fmt"
	"os"
	"time"

	"github.com/creasty/defaults"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"OilCast/internal/services/forecast"
	"OilCast/internal/services/split"
	applogger "OilCast/pkg/logger"
)

// Data source types.
const (
	SourceCSV        = "csv"
	SourceClickHouse = "clickhouse"
)

type Config struct {
	Environment string `yaml:"environment" default:"development"`
	Server      struct {
		Host            string        `yaml:"host" default:"0.0.0.0"`
		Port            int           `yaml:"port" default:"8080"`
		ReadTimeout     time.Duration `yaml:"read_timeout" default:"10s"`
		WriteTimeout    time.Duration `yaml:"write_timeout" default:"30s"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"10s"`
		CORS            bool          `yaml:"cors" default:"true"`
		SlowRequest     time.Duration `yaml:"slow_request" default:"2s"`
		RateBurst       float64       `yaml:"rate_burst" default:"20"`
		RatePerSecond   float64       `yaml:"rate_per_second" default:"5"`
	} `yaml:"server"`
	Metrics struct {
		Enabled bool   `yaml:"enabled" default:"true"`
		Path    string `yaml:"path" default:"/metrics"`
	} `yaml:"metrics"`
	Logging applogger.Config `yaml:"logging"`
	Data    struct {
		Source          string `yaml:"source" default:"csv"`
		CSVPath         string `yaml:"csv_path" default:"data/brent_wti_merged.csv"`
		ClickHouseTable string `yaml:"clickhouse_table" default:"oil_prices_daily"`
	} `yaml:"data"`
	Models struct {
		Dir string `yaml:"dir" default:"models"`
	} `yaml:"models"`
	Split split.Ratios `yaml:"split"`
	Cache struct {
		TTL   time.Duration `yaml:"ttl" default:"5m"`
		Redis struct {
			Enabled  bool   `yaml:"enabled"`
			Addr     string `yaml:"addr" default:"localhost:6379"`
			Password string `yaml:"password"`
			DB       int    `yaml:"db"`
			Prefix   string `yaml:"prefix" default:"oilcast:"`
		} `yaml:"redis"`
	} `yaml:"cache"`
	ClickHouse struct {
		Host             string        `yaml:"host"`
		Port             int           `yaml:"port" default:"9000"`
		Database         string        `yaml:"database" default:"default"`
		User             string        `yaml:"user" default:"default"`
		Password         string        `yaml:"password"`
		UseHTTP          bool          `yaml:"use_http"`
		DialTimeout      time.Duration `yaml:"dial_timeout" default:"5s"`
		ReadTimeout      time.Duration `yaml:"read_timeout" default:"30s"`
		MaxExecutionTime time.Duration `yaml:"max_execution_time" default:"60s"`
	} `yaml:"clickhouse"`
	Kafka struct {
		Enabled      bool          `yaml:"enabled"`
		Brokers      []string      `yaml:"brokers"`
		Topic        string        `yaml:"topic" default:"oilcast.signals"`
		RequiredAcks int           `yaml:"required_acks" default:"-1"`
		Compression  string        `yaml:"compression" default:"snappy"`
		WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
	} `yaml:"kafka"`
	Export struct {
		FeatureDir string                `yaml:"feature_dir"`
		ReportPath string                `yaml:"report_path"`
		Ridge      float64               `yaml:"ridge" default:"1e-8"`
		Forest     forecast.ForestParams `yaml:"forest"`
		MLP        forecast.MLPParams    `yaml:"mlp"`
	} `yaml:"export"`
}

// envOverrides lists the settings that may come from OILCAST_* variables.
// Zero values leave the YAML setting untouched.
type envOverrides struct {
	Environment     string   `envconfig:"ENVIRONMENT"`
	ServerPort      int      `envconfig:"SERVER_PORT"`
	LogLevel        string   `envconfig:"LOG_LEVEL"`
	LogFormat       string   `envconfig:"LOG_FORMAT"`
	DataSource      string   `envconfig:"DATA_SOURCE"`
	CSVPath         string   `envconfig:"CSV_PATH"`
	ModelDir        string   `envconfig:"MODEL_DIR"`
	RedisAddr       string   `envconfig:"REDIS_ADDR"`
	RedisPassword   string   `envconfig:"REDIS_PASSWORD"`
	RedisEnabled    *bool    `envconfig:"REDIS_ENABLED"`
	ClickHouseHost  string   `envconfig:"CLICKHOUSE_HOST"`
	ClickHousePass  string   `envconfig:"CLICKHOUSE_PASSWORD"`
	KafkaEnabled    *bool    `envconfig:"KAFKA_ENABLED"`
	KafkaBrokers    []string `envconfig:"KAFKA_BROKERS"`
	KafkaTopic      string   `envconfig:"KAFKA_TOPIC"`
	ExportReport    string   `envconfig:"EXPORT_REPORT_PATH"`
	ExportFeatureDr string   `envconfig:"EXPORT_FEATURE_DIR"`
}

// EnvPrefix is the prefix of every environment override.
const EnvPrefix = "OILCAST"

// Default returns a configuration with every default applied.
func Default() (*Config, error) {
	var c Config
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("config defaults: %w", err)
	}
	return &c, nil
}

// Load reads and parses a YAML configuration file on top of the defaults.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(b)
}

// Parse decodes YAML on top of the defaults and validates the result.
func Parse(b []byte) (*Config, error) {
	c, err := Default()
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(b, c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

// LoadWithEnv loads config from YAML and overrides with OILCAST_* variables.
// An empty path skips the file and starts from defaults.
func LoadWithEnv(path string) (*Config, error) {
	var (
		c   *Config
		err error
	)
	if path == "" {
		c, err = Default()
	} else {
		c, err = Load(path)
	}
	if err != nil {
		return nil, err
	}
	if err := c.applyEnv(); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

func (c *Config) applyEnv() error {
	var env envOverrides
	if err := envconfig.Process(EnvPrefix, &env); err != nil {
		return fmt.Errorf("env overrides: %w", err)
	}
	setString(&c.Environment, env.Environment)
	if env.ServerPort != 0 {
		c.Server.Port = env.ServerPort
	}
	setString(&c.Logging.Level, env.LogLevel)
	setString(&c.Logging.Format, env.LogFormat)
	setString(&c.Data.Source, env.DataSource)
	setString(&c.Data.CSVPath, env.CSVPath)
	setString(&c.Models.Dir, env.ModelDir)
	setString(&c.Cache.Redis.Addr, env.RedisAddr)
	setString(&c.Cache.Redis.Password, env.RedisPassword)
	if env.RedisEnabled != nil {
		c.Cache.Redis.Enabled = *env.RedisEnabled
	}
	setString(&c.ClickHouse.Host, env.ClickHouseHost)
	setString(&c.ClickHouse.Password, env.ClickHousePass)
	if env.KafkaEnabled != nil {
		c.Kafka.Enabled = *env.KafkaEnabled
	}
	if len(env.KafkaBrokers) > 0 {
		c.Kafka.Brokers = env.KafkaBrokers
	}
	setString(&c.Kafka.Topic, env.KafkaTopic)
	setString(&c.Export.ReportPath, env.ExportReport)
	setString(&c.Export.FeatureDir, env.ExportFeatureDr)
	return nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Environment == "" {
		return fmt.Errorf("environment is required")
	}
	switch c.Data.Source {
	case SourceCSV:
		if c.Data.CSVPath == "" {
			return fmt.Errorf("data.csv_path is required for source %q", SourceCSV)
		}
	case SourceClickHouse:
		if c.ClickHouse.Host == "" {
			return fmt.Errorf("clickhouse.host is required for source %q", SourceClickHouse)
		}
		if c.Data.ClickHouseTable == "" {
			return fmt.Errorf("data.clickhouse_table is required for source %q", SourceClickHouse)
		}
	default:
		return fmt.Errorf("data.source must be '%s' or '%s', got '%s'", SourceCSV, SourceClickHouse, c.Data.Source)
	}
	if c.Server.RateBurst < 1 || c.Server.RatePerSecond <= 0 {
		return fmt.Errorf("server.rate_burst must be >= 1 and server.rate_per_second > 0")
	}
	if c.Models.Dir == "" {
		return fmt.Errorf("models.dir is required")
	}
	if err := c.Split.Validate(); err != nil {
		return fmt.Errorf("split: %w", err)
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers cannot be empty when kafka is enabled")
	}
	return nil
}
