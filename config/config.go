package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is prepended to every environment override, e.g. WARDROBE_DATABASE_DSN.
const EnvPrefix = "WARDROBE"

// Config represents the overall application configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Auth       AuthConfig       `yaml:"auth"`
	RFID       RFIDConfig       `yaml:"rfid"`
	Cache      CacheConfig      `yaml:"cache"`
	Push       PushConfig       `yaml:"push"`
	WorkerPool WorkerPoolConfig `yaml:"worker_pool" envconfig:"WORKER_POOL"`
	Log        LogConfig        `yaml:"log"`
}

// ServerConfig holds the server-related configuration.
type ServerConfig struct {
	Port                  int     `yaml:"port" envconfig:"PORT"`
	RateLimitPerSec       float64 `yaml:"rate_limit_per_sec" envconfig:"RATE_LIMIT_PER_SEC"`
	RateLimitBurst        int     `yaml:"rate_limit_burst" envconfig:"RATE_LIMIT_BURST"`
	DeviceRateLimitPerSec float64 `yaml:"device_rate_limit_per_sec" envconfig:"DEVICE_RATE_LIMIT_PER_SEC"`
	DeviceRateLimitBurst  int     `yaml:"device_rate_limit_burst" envconfig:"DEVICE_RATE_LIMIT_BURST"`
}

// DatabaseConfig holds the database connection configuration.
type DatabaseConfig struct {
	Driver                 string `yaml:"driver" envconfig:"DRIVER"` // postgres or sqlite
	DSN                    string `yaml:"dsn" envconfig:"DSN"`
	MaxOpenConns           int    `yaml:"max_open_conns" envconfig:"MAX_OPEN_CONNS"`
	MaxIdleConns           int    `yaml:"max_idle_conns" envconfig:"MAX_IDLE_CONNS"`
	ConnMaxLifetimeMinutes int    `yaml:"conn_max_lifetime_minutes" envconfig:"CONN_MAX_LIFETIME_MINUTES"`
	LogLevel               string `yaml:"log_level" envconfig:"LOG_LEVEL"`
}

// AuthConfig holds the bearer token verification settings.
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret" envconfig:"JWT_SECRET"`
	JWTIssuer string `yaml:"jwt_issuer" envconfig:"JWT_ISSUER"`
}

// RFIDConfig tunes the tag tracking core.
type RFIDConfig struct {
	HeartbeatIntervalMS  int           `yaml:"heartbeat_interval_ms" envconfig:"HEARTBEAT_INTERVAL_MS"`
	SerializeTagUpdates  bool          `yaml:"serialize_tag_updates" envconfig:"SERIALIZE_TAG_UPDATES"`
	DeleteItemOnOverride *bool         `yaml:"delete_item_on_override" envconfig:"DELETE_ITEM_ON_OVERRIDE"`
	OfflineAfterSeconds  int           `yaml:"offline_after_seconds" envconfig:"OFFLINE_AFTER_SECONDS"`
	SweepIntervalSeconds int           `yaml:"sweep_interval_seconds" envconfig:"SWEEP_INTERVAL_SECONDS"`
	OfflineAfter         time.Duration `yaml:"-" ignored:"true"`
	SweepInterval        time.Duration `yaml:"-" ignored:"true"`
}

// DeletesItemOnOverride reports whether a forced re-pair removes the previously bound item.
func (r RFIDConfig) DeletesItemOnOverride() bool {
	return r.DeleteItemOnOverride == nil || *r.DeleteItemOnOverride
}

// CacheConfig selects the backend for latest-scan and association-mode state.
type CacheConfig struct {
	Backend   string `yaml:"backend" envconfig:"BACKEND"` // memory or redis
	RedisURL  string `yaml:"redis_url" envconfig:"REDIS_URL"`
	RedisAddr string `yaml:"redis_addr" envconfig:"REDIS_ADDR"`
	RedisDB   int    `yaml:"redis_db" envconfig:"REDIS_DB"`
	KeyPrefix string `yaml:"key_prefix" envconfig:"KEY_PREFIX"`
}

// PushConfig holds the VAPID keys for web push notifications.
type PushConfig struct {
	Enabled    bool   `yaml:"enabled" envconfig:"ENABLED"`
	PublicKey  string `yaml:"vapid_public_key" envconfig:"VAPID_PUBLIC_KEY"`
	PrivateKey string `yaml:"vapid_private_key" envconfig:"VAPID_PRIVATE_KEY"`
	Subject    string `yaml:"subject" envconfig:"SUBJECT"`
	TTL        int    `yaml:"ttl" envconfig:"TTL"`
}

// WorkerPoolConfig holds the configuration for the notification worker pool.
type WorkerPoolConfig struct {
	Size      int `yaml:"size" envconfig:"SIZE"`
	QueueSize int `yaml:"queue_size" envconfig:"QUEUE_SIZE"`
}

// LogConfig controls the zerolog output.
type LogConfig struct {
	Level  string `yaml:"level" envconfig:"LEVEL"`
	Format string `yaml:"format" envconfig:"FORMAT"`
}

// Load reads the configuration from the given path, then applies .env and
// WARDROBE_* environment overrides.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg Config
	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, err
	}

	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("applying environment overrides: %w", err)
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ApplyDefaults fills every unset field with its default.
func (cfg *Config) ApplyDefaults() {
	if cfg.Server.Port <= 0 {
		cfg.Server.Port = 3000
	}
	if cfg.Server.RateLimitPerSec <= 0 {
		cfg.Server.RateLimitPerSec = 10
	}
	if cfg.Server.RateLimitBurst <= 0 {
		cfg.Server.RateLimitBurst = 20
	}
	if cfg.Server.DeviceRateLimitPerSec <= 0 {
		cfg.Server.DeviceRateLimitPerSec = 5
	}
	if cfg.Server.DeviceRateLimitBurst <= 0 {
		cfg.Server.DeviceRateLimitBurst = 10
	}

	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "postgres"
	}
	if cfg.Database.MaxOpenConns <= 0 {
		cfg.Database.MaxOpenConns = 20
	}
	if cfg.Database.MaxIdleConns <= 0 {
		cfg.Database.MaxIdleConns = 10
	}
	if cfg.Database.ConnMaxLifetimeMinutes <= 0 {
		cfg.Database.ConnMaxLifetimeMinutes = 60
	}

	if cfg.RFID.HeartbeatIntervalMS <= 0 {
		cfg.RFID.HeartbeatIntervalMS = 5000
	}
	if cfg.RFID.OfflineAfterSeconds <= 0 {
		cfg.RFID.OfflineAfterSeconds = 120
	}
	if cfg.RFID.SweepIntervalSeconds <= 0 {
		cfg.RFID.SweepIntervalSeconds = 60
	}
	cfg.RFID.OfflineAfter = time.Duration(cfg.RFID.OfflineAfterSeconds) * time.Second
	cfg.RFID.SweepInterval = time.Duration(cfg.RFID.SweepIntervalSeconds) * time.Second

	if cfg.Cache.Backend == "" {
		cfg.Cache.Backend = "memory"
	}
	if cfg.Cache.KeyPrefix == "" {
		cfg.Cache.KeyPrefix = "wardrobe"
	}

	if cfg.Push.TTL <= 0 {
		cfg.Push.TTL = 3600
	}

	if cfg.WorkerPool.Size <= 0 {
		cfg.WorkerPool.Size = 1
	}
	if cfg.WorkerPool.QueueSize <= 0 {
		cfg.WorkerPool.QueueSize = 64
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
}

// Validate rejects configurations the server cannot start with.
func (cfg *Config) Validate() error {
	switch strings.ToLower(cfg.Database.Driver) {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("database.driver must be postgres or sqlite, got %q", cfg.Database.Driver)
	}
	if cfg.Database.DSN == "" {
		return errors.New("database.dsn is required")
	}
	if cfg.Auth.JWTSecret == "" {
		return errors.New("auth.jwt_secret is required")
	}
	switch strings.ToLower(cfg.Cache.Backend) {
	case "memory":
	case "redis":
		if cfg.Cache.RedisURL == "" && cfg.Cache.RedisAddr == "" {
			return errors.New("cache.redis_url or cache.redis_addr is required for the redis backend")
		}
	default:
		return fmt.Errorf("cache.backend must be memory or redis, got %q", cfg.Cache.Backend)
	}
	if cfg.Push.Enabled && (cfg.Push.PublicKey == "" || cfg.Push.PrivateKey == "") {
		return errors.New("push.vapid_public_key and push.vapid_private_key are required when push is enabled")
	}
	return nil
}
