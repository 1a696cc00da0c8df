package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. IOCDASH_KAFKA_BROKER.
const EnvPrefix = "IOCDASH"

// Config holds the runtime configuration shared by all iocdash binaries.
type Config struct {
	// Source is the provenance label stamped on extracted indicators
	Source string `mapstructure:"source" validate:"required"`

	// DuplicatePolicy is "first" or "prefer-table"
	DuplicatePolicy string `mapstructure:"duplicate_policy" validate:"oneof=first prefer-table"`

	DataDir   string `mapstructure:"data_dir" validate:"required"`
	DBPath    string `mapstructure:"db_path"`
	IndexPath string `mapstructure:"index_path"`

	Kafka  KafkaConfig  `mapstructure:"kafka"`
	HTTP   HTTPConfig   `mapstructure:"http"`
	Log    LogConfig    `mapstructure:"log"`
	Ingest IngestConfig `mapstructure:"ingest"`
}

// KafkaConfig configures the indicator topic
type KafkaConfig struct {
	Broker  string `mapstructure:"broker" validate:"required"`
	Topic   string `mapstructure:"topic" validate:"required"`
	GroupID string `mapstructure:"group_id" validate:"required"`
}

// HTTPConfig configures the search API
type HTTPConfig struct {
	ListenAddr     string   `mapstructure:"listen_addr" validate:"required"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// LogConfig configures the zap logger
type LogConfig struct {
	Level       string `mapstructure:"level" validate:"oneof=debug info warn error"`
	Development bool   `mapstructure:"development"`
}

// IngestConfig configures directory ingestion
type IngestConfig struct {
	Concurrency int      `mapstructure:"concurrency" validate:"min=1,max=64"`
	Extensions  []string `mapstructure:"extensions" validate:"min=1,dive,required"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("source", "CiberVengadores IOC Repository")
	v.SetDefault("duplicate_policy", "first")
	v.SetDefault("data_dir", "data")
	v.SetDefault("db_path", "") // Empty = derive from data_dir
	v.SetDefault("index_path", "")

	v.SetDefault("kafka.broker", "localhost:9092")
	v.SetDefault("kafka.topic", "ioc-records")
	v.SetDefault("kafka.group_id", "iocdash-builder-group")

	v.SetDefault("http.listen_addr", ":8080")
	v.SetDefault("http.allowed_origins", []string{"*"})

	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)

	v.SetDefault("ingest.concurrency", 4)
	v.SetDefault("ingest.extensions", []string{".adoc", ".asciidoc"})
}

func loadFromEnv(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// legacy names used by the container setup
	_ = v.BindEnv("kafka.broker", EnvPrefix+"_KAFKA_BROKER", "KAFKA_BROKER")
	_ = v.BindEnv("kafka.topic", EnvPrefix+"_KAFKA_TOPIC", "KAFKA_TOPIC")
	_ = v.BindEnv("db_path", EnvPrefix+"_DB_PATH", "DB_PATH")
}

// Load reads configuration from defaults, an optional YAML file and the
// environment. With an empty path, iocdash.yaml is looked up in the working
// directory and ./config; a missing file is not an error.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	loadFromEnv(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("iocdash")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	cfg.ResolvePaths()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// ResolvePaths derives unset storage paths from DataDir.
func (c *Config) ResolvePaths() {
	if c.DBPath == "" {
		c.DBPath = filepath.Join(c.DataDir, "iocdash.db")
	}
	if c.IndexPath == "" {
		c.IndexPath = filepath.Join(c.DataDir, "iocdash.bleve")
	}
}

// Validate checks struct constraints.
func (c *Config) Validate() error {
	return validator.New().Struct(c)
}
