// Package config loads and validates service configuration via Viper.
package config

import (
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	DB          DBConfig          `mapstructure:"db"`
	Queue       QueueConfig       `mapstructure:"queue"`
	Storage     StorageConfig     `mapstructure:"storage"`
	Scheduler   SchedulerConfig   `mapstructure:"scheduler"`
	Executor    ExecutorConfig    `mapstructure:"executor"`
	RateLimit   RateLimitConfig   `mapstructure:"ratelimit"`
	Events      EventsConfig      `mapstructure:"events"`
	Credentials CredentialsConfig `mapstructure:"credentials"`
	Logging     LoggingConfig     `mapstructure:"logging"`
}

// ServerConfig controls the ops HTTP server.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// DBConfig controls access to the Postgres document store.
type DBConfig struct {
	DSN      string `mapstructure:"dsn"`
	MaxConns int32  `mapstructure:"max_conns"`
	MinConns int32  `mapstructure:"min_conns"`
}

// QueueConfig selects and configures the scrape job queue.
type QueueConfig struct {
	// Provider is "pubsub" or "memory".
	Provider     string `mapstructure:"provider"`
	ProjectID    string `mapstructure:"project_id"`
	Topic        string `mapstructure:"topic"`
	Subscription string `mapstructure:"subscription"`
	// Depth bounds the memory queue.
	Depth int `mapstructure:"depth"`
}

// StorageConfig configures raw payload archival.
type StorageConfig struct {
	// Provider is "gcs", "memory" or "none".
	Provider  string `mapstructure:"provider"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	Prefix    string `mapstructure:"prefix"`
}

// SchedulerConfig governs the scheduling cycle.
type SchedulerConfig struct {
	CycleSchedule         string `mapstructure:"cycle_schedule"`
	ResetSchedule         string `mapstructure:"reset_schedule"`
	BatchLimit            int    `mapstructure:"batch_limit"`
	ScrapeIntervalMinutes int    `mapstructure:"scrape_interval_minutes"`
}

// ExecutorConfig governs scrape job execution.
type ExecutorConfig struct {
	ScrapeTimeoutSeconds int `mapstructure:"scrape_timeout_seconds"`
	// Concurrency is how many consume loops run against the memory
	// queue; the Pub/Sub client manages its own concurrency.
	Concurrency int `mapstructure:"concurrency"`
}

// RateLimitConfig throttles scrape execution per platform.
type RateLimitConfig struct {
	Enabled bool    `mapstructure:"enabled"`
	RPS     float64 `mapstructure:"rps"`
	Burst   int     `mapstructure:"burst"`
}

// EventsConfig tunes the scheduling event hub.
type EventsConfig struct {
	BufferSize int `mapstructure:"buffer_size"`
	MaxBatch   int `mapstructure:"max_batch"`
	MaxWaitMs  int `mapstructure:"max_wait_ms"`
}

// CredentialsConfig holds the base64-encoded AES key for credential blobs.
type CredentialsConfig struct {
	Key string `mapstructure:"key"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("LEADSCOUT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("db.max_conns", 8)
	v.SetDefault("db.min_conns", 1)
	v.SetDefault("queue.provider", "memory")
	v.SetDefault("queue.topic", "scrape-jobs")
	v.SetDefault("queue.subscription", "scrape-jobs-executor")
	v.SetDefault("queue.depth", 64)
	v.SetDefault("storage.provider", "none")
	v.SetDefault("storage.prefix", "scrapes")
	v.SetDefault("scheduler.cycle_schedule", "*/30 * * * *")
	v.SetDefault("scheduler.reset_schedule", "0 0 * * *")
	v.SetDefault("scheduler.batch_limit", 50)
	v.SetDefault("scheduler.scrape_interval_minutes", 30)
	v.SetDefault("executor.scrape_timeout_seconds", 60)
	v.SetDefault("executor.concurrency", 4)
	v.SetDefault("ratelimit.enabled", true)
	v.SetDefault("ratelimit.rps", 1.0)
	v.SetDefault("ratelimit.burst", 2)
	v.SetDefault("events.buffer_size", 1024)
	v.SetDefault("events.max_batch", 256)
	v.SetDefault("events.max_wait_ms", 500)
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Scheduler.BatchLimit <= 0 {
		return fmt.Errorf("scheduler.batch_limit must be > 0")
	}
	if c.Scheduler.ScrapeIntervalMinutes <= 0 {
		return fmt.Errorf("scheduler.scrape_interval_minutes must be > 0")
	}
	if c.Executor.ScrapeTimeoutSeconds <= 0 {
		return fmt.Errorf("executor.scrape_timeout_seconds must be > 0")
	}
	if c.Executor.Concurrency <= 0 {
		return fmt.Errorf("executor.concurrency must be > 0")
	}
	switch c.Queue.Provider {
	case "memory":
	case "pubsub":
		if c.Queue.ProjectID == "" {
			return fmt.Errorf("queue.project_id must be set when queue.provider is pubsub")
		}
	default:
		return fmt.Errorf("unknown queue provider: %s", c.Queue.Provider)
	}
	switch c.Storage.Provider {
	case "none", "memory":
	case "gcs":
		if c.Storage.GCSBucket == "" {
			return fmt.Errorf("storage.gcs_bucket must be set when storage.provider is gcs")
		}
	default:
		return fmt.Errorf("unknown storage provider: %s", c.Storage.Provider)
	}
	if c.Credentials.Key != "" {
		key, err := base64.StdEncoding.DecodeString(c.Credentials.Key)
		if err != nil {
			return fmt.Errorf("credentials.key must be base64: %w", err)
		}
		if len(key) != 32 {
			return fmt.Errorf("credentials.key must decode to 32 bytes, got %d", len(key))
		}
	}
	return nil
}

// ScrapeInterval converts the configured cadence into a duration.
func (c Config) ScrapeInterval() time.Duration {
	return time.Duration(c.Scheduler.ScrapeIntervalMinutes) * time.Minute
}

// ScrapeTimeout converts the configured scrape bound into a duration.
func (c Config) ScrapeTimeout() time.Duration {
	return time.Duration(c.Executor.ScrapeTimeoutSeconds) * time.Second
}

// CredentialsKey decodes the configured AES key. Returns nil when unset.
func (c Config) CredentialsKey() []byte {
	if c.Credentials.Key == "" {
		return nil
	}
	key, err := base64.StdEncoding.DecodeString(c.Credentials.Key)
	if err != nil {
		return nil
	}
	return key
}
