// Package config loads the service configuration.
//
// Configuration is a YAML file decoded over Default(). Unknown keys are
// rejected.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Store drivers.
const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
)

// Notification transports.
const (
	TransportLog   = "log"
	TransportKafka = "kafka"
)

// Watermark backends.
const (
	BackendStore = "store"
	BackendRedis = "redis"
)

// Config is the complete service configuration.
type Config struct {
	Store      StoreConfig     `yaml:"store"`
	Scheduler  SchedulerConfig `yaml:"scheduler"`
	Notify     NotifyConfig    `yaml:"notify"`
	Watermarks WatermarkConfig `yaml:"watermarks"`
	Rules      RulesConfig     `yaml:"rules"`
}

// StoreConfig selects the ledger database.
type StoreConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

// SchedulerConfig controls periodic rule passes.
type SchedulerConfig struct {
	Interval time.Duration `yaml:"interval"`
	// PendingAlertAfter is the age at which the default rule set alerts on
	// pending orders. Ignored when a rule set file is configured.
	PendingAlertAfter time.Duration `yaml:"pendingAlertAfter"`
}

// NotifyConfig selects and guards the notification transport.
type NotifyConfig struct {
	Transport     string        `yaml:"transport"`
	Timeout       time.Duration `yaml:"timeout"`
	RatePerSecond float64       `yaml:"ratePerSecond"`
	Burst         int           `yaml:"burst"`
	Kafka         KafkaConfig   `yaml:"kafka"`
}

// KafkaConfig configures the Kafka transport.
type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

// WatermarkConfig selects where alert watermarks are kept.
type WatermarkConfig struct {
	Backend string      `yaml:"backend"`
	Redis   RedisConfig `yaml:"redis"`
}

// RedisConfig configures the Redis watermark backend.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// RulesConfig locates the rule set. An empty path selects the built-in
// default rules.
type RulesConfig struct {
	Path string `yaml:"path"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Store: StoreConfig{
			Driver: DriverSQLite,
			DSN:    "./fulfil.db",
		},
		Scheduler: SchedulerConfig{
			Interval:          5 * time.Minute,
			PendingAlertAfter: 24 * time.Hour,
		},
		Notify: NotifyConfig{
			Transport: TransportLog,
			Timeout:   5 * time.Second,
			Kafka: KafkaConfig{
				Topic: "fulfil.notifications",
			},
		},
		Watermarks: WatermarkConfig{
			Backend: BackendStore,
			Redis: RedisConfig{
				Addr: "localhost:6379",
			},
		},
	}
}

// Load reads path and decodes it over Default(). An empty path returns the
// defaults.
func Load(path string) (Config, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return Config{}, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes data over Default() and validates the result.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("decode: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports every invalid setting.
func (c Config) Validate() error {
	var errs []error
	switch c.Store.Driver {
	case DriverSQLite, DriverPostgres:
	default:
		errs = append(errs, fmt.Errorf("store.driver: unsupported driver %q", c.Store.Driver))
	}
	if c.Store.DSN == "" {
		errs = append(errs, errors.New("store.dsn: required"))
	}

	if c.Scheduler.Interval <= 0 {
		errs = append(errs, errors.New("scheduler.interval: must be positive"))
	}
	if c.Scheduler.PendingAlertAfter <= 0 {
		errs = append(errs, errors.New("scheduler.pendingAlertAfter: must be positive"))
	}

	switch c.Notify.Transport {
	case TransportLog:
	case TransportKafka:
		if len(c.Notify.Kafka.Brokers) == 0 {
			errs = append(errs, errors.New("notify.kafka.brokers: required for the kafka transport"))
		}
		if c.Notify.Kafka.Topic == "" {
			errs = append(errs, errors.New("notify.kafka.topic: required for the kafka transport"))
		}
	default:
		errs = append(errs, fmt.Errorf("notify.transport: unsupported transport %q", c.Notify.Transport))
	}
	if c.Notify.Timeout < 0 {
		errs = append(errs, errors.New("notify.timeout: must not be negative"))
	}
	if c.Notify.RatePerSecond < 0 {
		errs = append(errs, errors.New("notify.ratePerSecond: must not be negative"))
	}
	if c.Notify.RatePerSecond > 0 && c.Notify.Burst < 1 {
		errs = append(errs, errors.New("notify.burst: must be at least 1 when rate limiting"))
	}

	switch c.Watermarks.Backend {
	case BackendStore:
	case BackendRedis:
		if c.Watermarks.Redis.Addr == "" {
			errs = append(errs, errors.New("watermarks.redis.addr: required for the redis backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("watermarks.backend: unsupported backend %q", c.Watermarks.Backend))
	}

	return errors.Join(errs...)
}
