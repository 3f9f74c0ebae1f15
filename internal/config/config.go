package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the dashboard server and worker.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Jobs     JobsConfig     `yaml:"jobs"`
	Publish  PublishConfig  `yaml:"publish"`
	Cache    CacheConfig    `yaml:"cache"`
	SMS      SMSConfig      `yaml:"sms"`
	AWS      AWSConfig      `yaml:"aws"`
	Log      LogConfig      `yaml:"log"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port               int      `yaml:"port"`
	Host               string   `yaml:"host"`
	CORSAllowedOrigins []string `yaml:"cors_allowed_origins"`
}

// GetHost returns the listen host. Containers listen on all interfaces.
func (c ServerConfig) GetHost() string {
	if os.Getenv("ECS_CONTAINER_METADATA_URI") != "" || os.Getenv("AWS_EXECUTION_ENV") != "" {
		return "0.0.0.0"
	}
	if host := os.Getenv("SERVER_HOST"); host != "" {
		return host
	}
	return c.Host
}

// Addr is host:port for http.Server.
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.GetHost(), c.Port)
}

// DatabaseConfig points at the dashboard's Postgres database.
type DatabaseConfig struct {
	URL             string `yaml:"url"`
	MaxOpenConns    int    `yaml:"max_open_conns"`
	MaxIdleConns    int    `yaml:"max_idle_conns"`
	ConnMaxLifetime int    `yaml:"conn_max_lifetime_seconds"`
}

// RedisConfig enables Redis-backed job locks. An empty URL falls back to
// Postgres advisory locks.
type RedisConfig struct {
	URL string `yaml:"url"`
}

// JobsConfig controls SMS job processing.
type JobsConfig struct {
	OutputBucket   string   `yaml:"output_bucket"`
	OutputPrefix   string   `yaml:"output_prefix"`
	WriteOutput    bool     `yaml:"write_output"`
	WindowSize     int      `yaml:"window_size"`
	LockTTLSeconds int      `yaml:"lock_ttl_seconds"`
	Schedule       string   `yaml:"schedule"`
	Statuses       []string `yaml:"statuses"`
}

// LockTTL returns the per-job lock lifetime.
func (c JobsConfig) LockTTL() time.Duration {
	return time.Duration(c.LockTTLSeconds) * time.Second
}

// Publish modes.
const (
	PublishHTTP = "http"
	PublishNATS = "nats"
)

// PublishConfig selects where processed events go.
type PublishConfig struct {
	Mode                  string `yaml:"mode"`
	URL                   string `yaml:"url"`
	NATSURL               string `yaml:"nats_url"`
	Topic                 string `yaml:"topic"`
	QueueGroup            string `yaml:"queue_group"`
	MaxRetries            int    `yaml:"max_retries"`
	TimeoutSeconds        int    `yaml:"timeout_seconds"`
	BreakerFailures       uint32 `yaml:"breaker_failures"`
	BreakerTimeoutSeconds int    `yaml:"breaker_timeout_seconds"`
	DispatcherEnabled     bool   `yaml:"dispatcher_enabled"`
	DispatcherSubscribers int    `yaml:"dispatcher_subscribers"`
}

// Timeout returns the HTTP publish timeout.
func (c PublishConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// BreakerTimeout returns how long the breaker stays open.
func (c PublishConfig) BreakerTimeout() time.Duration {
	return time.Duration(c.BreakerTimeoutSeconds) * time.Second
}

// CacheConfig sizes the DuckDB handle pool and query cache.
type CacheConfig struct {
	PoolMax         int `yaml:"pool_max"`
	PoolTTLSeconds  int `yaml:"pool_ttl_seconds"`
	QueryMax        int `yaml:"query_max"`
	QueryTTLSeconds int `yaml:"query_ttl_seconds"`
}

// SMSConfig holds Solapi credentials.
type SMSConfig struct {
	APIKey    string `yaml:"api_key"`
	APISecret string `yaml:"api_secret"`
	BaseURL   string `yaml:"base_url"`
}

// AWSConfig is the fallback region for S3 access when a cube provider
// does not name one.
type AWSConfig struct {
	Region string `yaml:"region"`
}

// LogConfig controls the structured logger.
type LogConfig struct {
	Level     string `yaml:"level"`
	RedactPII *bool  `yaml:"redact_pii"`
}

// ShouldRedact reports whether PII redaction is on. It defaults to true.
func (c LogConfig) ShouldRedact() bool {
	return c.RedactPII == nil || *c.RedactPII
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.setDefaults()
	return &cfg, nil
}

// Default returns a configuration with every default applied.
func Default() *Config {
	var cfg Config
	cfg.setDefaults()
	return &cfg
}

func (cfg *Config) setDefaults() {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if len(cfg.Server.CORSAllowedOrigins) == 0 {
		cfg.Server.CORSAllowedOrigins = []string{"http://localhost:3000"}
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 10
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Database.ConnMaxLifetime == 0 {
		cfg.Database.ConnMaxLifetime = 300
	}
	if cfg.Jobs.OutputBucket == "" {
		cfg.Jobs.OutputBucket = "pikachu-dev"
	}
	if cfg.Jobs.OutputPrefix == "" {
		cfg.Jobs.OutputPrefix = "jobs/processed"
	}
	if cfg.Jobs.WindowSize == 0 {
		cfg.Jobs.WindowSize = 100
	}
	if cfg.Jobs.LockTTLSeconds == 0 {
		cfg.Jobs.LockTTLSeconds = 1800
	}
	if cfg.Jobs.Schedule == "" {
		cfg.Jobs.Schedule = "@every 5m"
	}
	if len(cfg.Jobs.Statuses) == 0 {
		cfg.Jobs.Statuses = []string{"published"}
	}
	if cfg.Publish.Mode == "" {
		cfg.Publish.Mode = PublishHTTP
	}
	if cfg.Publish.URL == "" {
		cfg.Publish.URL = "http://localhost:8181/publishes/sms/abc"
	}
	if cfg.Publish.NATSURL == "" {
		cfg.Publish.NATSURL = "nats://localhost:4222"
	}
	if cfg.Publish.Topic == "" {
		cfg.Publish.Topic = "sms.events"
	}
	if cfg.Publish.QueueGroup == "" {
		cfg.Publish.QueueGroup = "sms-dispatcher"
	}
	if cfg.Publish.MaxRetries == 0 {
		cfg.Publish.MaxRetries = 3
	}
	if cfg.Publish.TimeoutSeconds == 0 {
		cfg.Publish.TimeoutSeconds = 10
	}
	if cfg.Publish.BreakerFailures == 0 {
		cfg.Publish.BreakerFailures = 5
	}
	if cfg.Publish.BreakerTimeoutSeconds == 0 {
		cfg.Publish.BreakerTimeoutSeconds = 30
	}
	if cfg.Publish.DispatcherSubscribers == 0 {
		cfg.Publish.DispatcherSubscribers = 1
	}
	if cfg.Cache.PoolMax == 0 {
		cfg.Cache.PoolMax = 3
	}
	if cfg.Cache.PoolTTLSeconds == 0 {
		cfg.Cache.PoolTTLSeconds = 600
	}
	if cfg.Cache.QueryMax == 0 {
		cfg.Cache.QueryMax = 50
	}
	if cfg.Cache.QueryTTLSeconds == 0 {
		cfg.Cache.QueryTTLSeconds = 600
	}
	if cfg.SMS.BaseURL == "" {
		cfg.SMS.BaseURL = "https://api.solapi.com"
	}
	if cfg.AWS.Region == "" {
		cfg.AWS.Region = "ap-northeast-2"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
}

// LoadFromEnv loads configuration with environment variable overrides.
// A .env file is loaded first when present. An empty path skips the YAML
// file and starts from defaults.
func LoadFromEnv(path string) (*Config, error) {
	_ = godotenv.Load()

	var cfg *Config
	if path == "" {
		cfg = Default()
	} else {
		var err error
		cfg, err = Load(path)
		if err != nil {
			return nil, err
		}
	}

	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Redis.URL = v
	}
	if v := os.Getenv("EVENT_PUBLISH_URI"); v != "" {
		cfg.Publish.URL = v
	}
	if v := os.Getenv("NATS_URL"); v != "" {
		cfg.Publish.NATSURL = v
	}
	if v := os.Getenv("PUBLISH_MODE"); v != "" {
		cfg.Publish.Mode = strings.ToLower(v)
	}
	if v := os.Getenv("SMS_API_KEY"); v != "" {
		cfg.SMS.APIKey = v
	}
	if v := os.Getenv("SMS_API_SECRET"); v != "" {
		cfg.SMS.APISecret = v
	}
	if v := os.Getenv("AWS_REGION"); v != "" {
		cfg.AWS.Region = v
	}
	if v := os.Getenv("SERVER_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid SERVER_PORT %q: %w", v, err)
		}
		cfg.Server.Port = port
	}
	if v := os.Getenv("JOB_SCHEDULE"); v != "" {
		cfg.Jobs.Schedule = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}

	return cfg, cfg.Validate()
}

// Validate rejects settings the server cannot start with.
func (cfg *Config) Validate() error {
	switch cfg.Publish.Mode {
	case PublishHTTP, PublishNATS:
	default:
		return fmt.Errorf("publish.mode must be %q or %q, got %q", PublishHTTP, PublishNATS, cfg.Publish.Mode)
	}
	if cfg.Jobs.WindowSize < 0 {
		return fmt.Errorf("jobs.window_size must be positive, got %d", cfg.Jobs.WindowSize)
	}
	return nil
}
