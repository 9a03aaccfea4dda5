package config

import (
	"fmt"
	"net/url"
	"time"

	"github.com/joshdurbin/guarded-shortener/internal/shortener"
)

// Supported backends
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"

	CacheMemory = "memory"
	CacheRedis  = "redis"
)

// Config holds the application configuration
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Cache     CacheConfig
	Security  SecurityConfig
	Logging   LoggingConfig
	Shortener shortener.Config
	Sync      SyncConfig
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Port      string
	ServerURL string
}

// DatabaseConfig holds database-related configuration
type DatabaseConfig struct {
	Driver string
	DSN    string
}

// CacheConfig selects and addresses the transient store
type CacheConfig struct {
	Backend       string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
}

// SecurityConfig controls how the abuse checks behave when their store misbehaves
type SecurityConfig struct {
	// FailOpen admits requests when the transient store is unreachable
	FailOpen     bool
	StoreTimeout time.Duration
}

// LoggingConfig holds logging-related configuration
type LoggingConfig struct {
	Verbose bool
}

// SyncConfig controls the click reconciler. A zero interval disables the background loop.
type SyncConfig struct {
	Interval time.Duration
}

// New creates a new config from its sections and validates it
func New(server ServerConfig, database DatabaseConfig, cache CacheConfig, security SecurityConfig,
	logging LoggingConfig, shortenerConfig shortener.Config, sync SyncConfig) (*Config, error) {
	cfg := &Config{
		Server:    server,
		Database:  database,
		Cache:     cache,
		Security:  security,
		Logging:   logging,
		Shortener: shortenerConfig,
		Sync:      sync,
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// validate validates the configuration values
func (c *Config) validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port cannot be empty")
	}

	if c.Server.ServerURL == "" {
		return fmt.Errorf("server URL cannot be empty")
	}
	if u, err := url.Parse(c.Server.ServerURL); err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("server URL must be absolute, got: %q", c.Server.ServerURL)
	}

	switch c.Database.Driver {
	case DriverSQLite, DriverPostgres:
	default:
		return fmt.Errorf("unsupported database driver: %q", c.Database.Driver)
	}
	if c.Database.DSN == "" {
		return fmt.Errorf("database DSN cannot be empty")
	}

	switch c.Cache.Backend {
	case CacheMemory:
	case CacheRedis:
		if c.Cache.RedisAddr == "" {
			return fmt.Errorf("redis address cannot be empty when cache backend is redis")
		}
		if c.Cache.RedisDB < 0 {
			return fmt.Errorf("redis db cannot be negative, got: %d", c.Cache.RedisDB)
		}
	default:
		return fmt.Errorf("unsupported cache backend: %q", c.Cache.Backend)
	}

	if c.Security.StoreTimeout <= 0 {
		return fmt.Errorf("store timeout must be positive, got: %v", c.Security.StoreTimeout)
	}

	if err := c.Shortener.Validate(); err != nil {
		return fmt.Errorf("shortener: %w", err)
	}

	if c.Sync.Interval < 0 {
		return fmt.Errorf("sync interval cannot be negative, got: %v", c.Sync.Interval)
	}

	return nil
}
