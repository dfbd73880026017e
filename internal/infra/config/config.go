package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/you-humble/resinkit/pkg/domain"

	"github.com/caarlos0/env/v9"
	"gopkg.in/yaml.v3"
)

const envPrefix = "RESINKIT_"

type Config struct {
	LogLevel string `yaml:"log_level" env:"LOG_LEVEL"`

	API       API              `yaml:"api"`
	Lifecycle domain.Lifecycle `yaml:"lifecycle"`
	Watch     Watch            `yaml:"watch"`

	Redis   Redis   `yaml:"redis"`
	NATS    NATS    `yaml:"nats"`
	MinIO   MinIO   `yaml:"minio"`
	Storage Storage `yaml:"storage"`
}

type API struct {
	BaseURL     string        `yaml:"base_url" env:"BASE_URL"`
	AccessToken string        `yaml:"access_token" env:"ACCESS_TOKEN"`
	SessionID   string        `yaml:"session_id" env:"SESSION_ID"`
	Timeout     time.Duration `yaml:"timeout" env:"TIMEOUT"`
	UserAgent   string        `yaml:"user_agent"`
}

type Watch struct {
	Interval    time.Duration `yaml:"interval" env:"WATCH_INTERVAL"`
	Timeout     time.Duration `yaml:"timeout" env:"WATCH_TIMEOUT"`
	RateLimit   float64       `yaml:"rate_limit"`
	Burst       int           `yaml:"burst"`
	Retries     uint          `yaml:"retries"`
	RetryDelay  time.Duration `yaml:"retry_delay"`
	Concurrency int           `yaml:"concurrency"`
}

type Redis struct {
	Addr     string `yaml:"addr" env:"REDIS_ADDR"`
	Password string `yaml:"password" env:"REDIS_PASSWORD"`
	DB       int    `yaml:"db" env:"REDIS_DB"`
}

type NATS struct {
	URL           string `yaml:"url" env:"NATS_URL"`
	Name          string `yaml:"name"`
	MaxReconnects int    `yaml:"max_reconnects"`
	Stream        string `yaml:"stream"`
	SubjectPrefix string `yaml:"subject_prefix"`
}

type MinIO struct {
	Endpoint        string `yaml:"endpoint" env:"MINIO_ENDPOINT"`
	AccessKeyID     string `yaml:"access_key_id" env:"MINIO_ACCESS_KEY_ID"`
	SecretAccessKey string `yaml:"secret_access_key" env:"MINIO_SECRET_ACCESS_KEY"`
	UseSSL          bool   `yaml:"use_ssl"`
	Bucket          string `yaml:"bucket" env:"MINIO_BUCKET"`
}

type Storage struct {
	Dir           string `yaml:"dir" env:"STORAGE_DIR"`
	QueueCapacity int    `yaml:"queue_capacity"`
	PoolSize      int    `yaml:"pool_size"`
	UploadRetries int    `yaml:"upload_retries"`
}

// Load reads path (optional) and then applies RESINKIT_* environment
// overrides. Unset fields get defaults.
func Load(path string) (*Config, error) {
	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: cannot read file %q: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("config: cannot unmarshal yaml: %w", err)
		}
	}

	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: envPrefix}); err != nil {
		return nil, fmt.Errorf("config: env: %w", err)
	}

	cfg.setDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}


func (c *Config) setDefaults() {
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.API.Timeout <= 0 {
		c.API.Timeout = 30 * time.Second
	}
	c.Lifecycle = c.Lifecycle.WithDefaults()

	if c.Watch.Interval <= 0 {
		c.Watch.Interval = 2 * time.Second
	}
	if c.Watch.Timeout <= 0 {
		c.Watch.Timeout = 10 * time.Minute
	}
	if c.Watch.RateLimit <= 0 {
		c.Watch.RateLimit = 5
	}
	if c.Watch.Burst <= 0 {
		c.Watch.Burst = 1
	}
	if c.Watch.Retries == 0 {
		c.Watch.Retries = 3
	}
	if c.Watch.RetryDelay <= 0 {
		c.Watch.RetryDelay = 500 * time.Millisecond
	}
	if c.Watch.Concurrency <= 0 {
		c.Watch.Concurrency = 8
	}

	if c.NATS.Name == "" {
		c.NATS.Name = "resinkit"
	}
	if c.NATS.MaxReconnects == 0 {
		c.NATS.MaxReconnects = 10
	}
	if c.NATS.Stream == "" {
		c.NATS.Stream = "RESINKIT_TASKS"
	}
	if c.NATS.SubjectPrefix == "" {
		c.NATS.SubjectPrefix = "resinkit.tasks"
	}

	if c.Storage.Dir == "" {
		c.Storage.Dir = "./resinkit-data"
	}
	if c.Storage.QueueCapacity <= 0 {
		c.Storage.QueueCapacity = 64
	}
	if c.Storage.PoolSize <= 0 {
		c.Storage.PoolSize = 4
	}
	if c.Storage.UploadRetries <= 0 {
		c.Storage.UploadRetries = 3
	}
}

func (c *Config) validate() error {
	if strings.TrimSpace(c.API.BaseURL) == "" {
		return errors.New("config: api.base_url is empty (set RESINKIT_BASE_URL)")
	}
	if c.MinIO.Endpoint != "" && c.MinIO.Bucket == "" {
		return errors.New("config: minio.bucket is empty")
	}
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: unknown log_level %q", c.LogLevel)
	}
	return nil
}
