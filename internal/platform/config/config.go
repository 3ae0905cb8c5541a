package config

import (
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"donorlink/pkg/platform/strutil"
)

// envPrefix namespaces every environment variable, e.g. DONORLINK_ADDR.
const envPrefix = "DONORLINK"

// Server captures process level configuration.
type Server struct {
	Addr            string        `yaml:"addr"            envconfig:"ADDR"`
	DiagnosticMode  bool          `yaml:"diagnosticMode"  envconfig:"DIAGNOSTIC_MODE"`
	RequestTimeout  time.Duration `yaml:"requestTimeout"  envconfig:"REQUEST_TIMEOUT"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout" envconfig:"SHUTDOWN_TIMEOUT"`

	Log      LogConfig      `yaml:"log"      envconfig:"LOG"`
	Database DatabaseConfig `yaml:"database" envconfig:"DATABASE"`
	Redis    RedisConfig    `yaml:"redis"    envconfig:"REDIS"`
	Kafka    KafkaConfig    `yaml:"kafka"    envconfig:"KAFKA"`
	Matching MatchingConfig `yaml:"matching" envconfig:"MATCHING"`
}

// LogConfig selects the slog handler.
type LogConfig struct {
	Level  string `yaml:"level"  envconfig:"LEVEL"`
	Format string `yaml:"format" envconfig:"FORMAT"`
}

// DatabaseConfig configures PostgreSQL. An empty URL selects in-memory stores.
type DatabaseConfig struct {
	URL             string        `yaml:"url"             envconfig:"URL"`
	MaxOpenConns    int           `yaml:"maxOpenConns"    envconfig:"MAX_OPEN_CONNS"`
	MaxIdleConns    int           `yaml:"maxIdleConns"    envconfig:"MAX_IDLE_CONNS"`
	ConnMaxLifetime time.Duration `yaml:"connMaxLifetime" envconfig:"CONN_MAX_LIFETIME"`
}

// RedisConfig configures the ledger lock backend. An empty URL selects the in-process locker.
type RedisConfig struct {
	URL          string        `yaml:"url"          envconfig:"URL"`
	PoolSize     int           `yaml:"poolSize"     envconfig:"POOL_SIZE"`
	MinIdleConns int           `yaml:"minIdleConns" envconfig:"MIN_IDLE_CONNS"`
	DialTimeout  time.Duration `yaml:"dialTimeout"  envconfig:"DIAL_TIMEOUT"`
	ReadTimeout  time.Duration `yaml:"readTimeout"  envconfig:"READ_TIMEOUT"`
	WriteTimeout time.Duration `yaml:"writeTimeout" envconfig:"WRITE_TIMEOUT"`
	LockTTL      time.Duration `yaml:"lockTTL"      envconfig:"LOCK_TTL"`
}

// KafkaConfig configures the outbox relay. No brokers disables the relay.
type KafkaConfig struct {
	Brokers       []string      `yaml:"brokers"       envconfig:"BROKERS"`
	Topic         string        `yaml:"topic"         envconfig:"TOPIC"`
	Partitions    int32         `yaml:"partitions"    envconfig:"PARTITIONS"`
	RelayInterval time.Duration `yaml:"relayInterval" envconfig:"RELAY_INTERVAL"`
	RelayBatch    int           `yaml:"relayBatch"    envconfig:"RELAY_BATCH"`
}

// MatchingConfig bounds the candidate snapshot taken at request creation.
type MatchingConfig struct {
	Cap int `yaml:"cap" envconfig:"CAP"`
}

// Defaults returns the configuration used when neither file nor environment override a value.
func Defaults() Server {
	return Server{
		Addr:            ":8080",
		RequestTimeout:  10 * time.Second,
		ShutdownTimeout: 10 * time.Second,
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Database: DatabaseConfig{
			MaxOpenConns:    20,
			MaxIdleConns:    5,
			ConnMaxLifetime: 30 * time.Minute,
		},
		Redis: RedisConfig{
			PoolSize:     10,
			MinIdleConns: 2,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
			LockTTL:      5 * time.Second,
		},
		Kafka: KafkaConfig{
			Topic:         "donorlink.request-events",
			Partitions:    3,
			RelayInterval: 2 * time.Second,
			RelayBatch:    100,
		},
		Matching: MatchingConfig{
			Cap: 50,
		},
	}
}

// Load builds the configuration: defaults, then the optional YAML file, then
// DONORLINK_* environment variables.
func Load(configFile string) (Server, error) {
	cfg := Defaults()
	if configFile != "" {
		buf, err := os.ReadFile(configFile)
		if err != nil {
			return Server{}, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(buf, &cfg); err != nil {
			return Server{}, fmt.Errorf("parse config file: %w", err)
		}
	}
	if err := envconfig.Process(envPrefix, &cfg); err != nil {
		return Server{}, fmt.Errorf("process environment: %w", err)
	}
	cfg.Kafka.Brokers = strutil.CleanList(cfg.Kafka.Brokers)
	if err := cfg.validate(); err != nil {
		return Server{}, err
	}
	return cfg, nil
}

func (c Server) validate() error {
	if c.Addr == "" {
		return fmt.Errorf("addr is required")
	}
	if c.Matching.Cap < 1 {
		return fmt.Errorf("matching cap must be positive, got %d", c.Matching.Cap)
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("request timeout must be positive")
	}
	if len(c.Kafka.Brokers) > 0 && c.Kafka.Topic == "" {
		return fmt.Errorf("kafka topic is required when brokers are set")
	}
	return nil
}
