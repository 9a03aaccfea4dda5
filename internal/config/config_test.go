package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joshdurbin/guarded-shortener/internal/shortener"
)

func validConfig() Config {
	return Config{
		Server:    ServerConfig{Port: "8080", ServerURL: "http://localhost:8080"},
		Database:  DatabaseConfig{Driver: DriverSQLite, DSN: "/tmp/test.db"},
		Cache:     CacheConfig{Backend: CacheMemory},
		Security:  SecurityConfig{StoreTimeout: 2 * time.Second},
		Logging:   LoggingConfig{Verbose: true},
		Shortener: shortener.DefaultConfig(),
		Sync:      SyncConfig{Interval: time.Minute},
	}
}

func build(c Config) (*Config, error) {
	return New(c.Server, c.Database, c.Cache, c.Security, c.Logging, c.Shortener, c.Sync)
}

func TestConfig_New_Valid(t *testing.T) {
	cfg, err := build(validConfig())

	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "http://localhost:8080", cfg.Server.ServerURL)
	assert.Equal(t, DriverSQLite, cfg.Database.Driver)
	assert.Equal(t, "/tmp/test.db", cfg.Database.DSN)
	assert.Equal(t, CacheMemory, cfg.Cache.Backend)
	assert.False(t, cfg.Security.FailOpen)
	assert.Equal(t, 2*time.Second, cfg.Security.StoreTimeout)
	assert.True(t, cfg.Logging.Verbose)
	assert.Equal(t, time.Minute, cfg.Sync.Interval)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name        string
		modify      func(*Config)
		expectedErr string
	}{
		{
			name:        "empty server port",
			modify:      func(c *Config) { c.Server.Port = "" },
			expectedErr: "server port cannot be empty",
		},
		{
			name:        "empty server URL",
			modify:      func(c *Config) { c.Server.ServerURL = "" },
			expectedErr: "server URL cannot be empty",
		},
		{
			name:        "relative server URL",
			modify:      func(c *Config) { c.Server.ServerURL = "localhost:8080/x" },
			expectedErr: "server URL must be absolute",
		},
		{
			name:        "unknown driver",
			modify:      func(c *Config) { c.Database.Driver = "mysql" },
			expectedErr: "unsupported database driver",
		},
		{
			name:        "empty DSN",
			modify:      func(c *Config) { c.Database.DSN = "" },
			expectedErr: "database DSN cannot be empty",
		},
		{
			name:        "unknown cache backend",
			modify:      func(c *Config) { c.Cache.Backend = "memcached" },
			expectedErr: "unsupported cache backend",
		},
		{
			name:        "redis without address",
			modify:      func(c *Config) { c.Cache.Backend = CacheRedis },
			expectedErr: "redis address cannot be empty",
		},
		{
			name: "negative redis db",
			modify: func(c *Config) {
				c.Cache = CacheConfig{Backend: CacheRedis, RedisAddr: "localhost:6379", RedisDB: -1}
			},
			expectedErr: "redis db cannot be negative",
		},
		{
			name:        "zero store timeout",
			modify:      func(c *Config) { c.Security.StoreTimeout = 0 },
			expectedErr: "store timeout must be positive",
		},
		{
			name:        "code length out of range",
			modify:      func(c *Config) { c.Shortener.CodeLength = 4 },
			expectedErr: "code length must be between 6 and 10",
		},
		{
			name:        "negative sync interval",
			modify:      func(c *Config) { c.Sync.Interval = -time.Second },
			expectedErr: "sync interval cannot be negative",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := validConfig()
			tt.modify(&c)

			_, err := build(c)

			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.expectedErr)
		})
	}
}

func TestConfig_RealWorldScenarios(t *testing.T) {
	t.Run("development config", func(t *testing.T) {
		c := validConfig()
		c.Sync.Interval = 0
		cfg, err := build(c)
		require.NoError(t, err)
		assert.Zero(t, cfg.Sync.Interval)
	})

	t.Run("production config", func(t *testing.T) {
		c := validConfig()
		c.Server = ServerConfig{Port: "80", ServerURL: "https://sho.rt"}
		c.Database = DatabaseConfig{Driver: DriverPostgres, DSN: "postgres://app@db/shortener?sslmode=disable"}
		c.Cache = CacheConfig{Backend: CacheRedis, RedisAddr: "redis:6379", RedisPassword: "secret", RedisDB: 2}
		c.Shortener.DefaultTTL = 30 * 24 * time.Hour
		c.Logging.Verbose = false
		cfg, err := build(c)
		require.NoError(t, err)
		assert.Equal(t, 2, cfg.Cache.RedisDB)
	})

	t.Run("fail open", func(t *testing.T) {
		c := validConfig()
		c.Security.FailOpen = true
		cfg, err := build(c)
		require.NoError(t, err)
		assert.True(t, cfg.Security.FailOpen)
	})
}
