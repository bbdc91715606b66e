package config

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, DriverMemory, cfg.Database.Driver)
	assert.Equal(t, 300*time.Millisecond, cfg.Store.LatencyMin)
	assert.Equal(t, 500*time.Millisecond, cfg.Store.LatencyMax)
	assert.Equal(t, int64(1000), cfg.Chain.IDOffset)
	assert.False(t, cfg.Server.Debug)
	assert.Equal(t, "0.0.0.0:8080", cfg.Server.Addr())
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("DEBUG", "true")
	t.Setenv("DATABASE_DRIVER", "Postgres")
	t.Setenv("DATABASE_SCHEMA", "motify")
	t.Setenv("STORE_LATENCY_MIN", "0s")
	t.Setenv("STORE_LATENCY_MAX", "0s")
	t.Setenv("CHAIN_ID_OFFSET", "5000")
	t.Setenv("RATE_LIMIT_RPS", "2.5")
	t.Setenv("FINALIZER_INTERVAL", "30s")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.True(t, cfg.Server.Debug)
	assert.Equal(t, DriverPostgres, cfg.Database.Driver)
	assert.Equal(t, "motify", cfg.Database.Schema)
	assert.Equal(t, time.Duration(0), cfg.Store.LatencyMax)
	assert.Equal(t, int64(5000), cfg.Chain.IDOffset)
	assert.Equal(t, 2.5, cfg.RateLimit.RPS)
	assert.Equal(t, 30*time.Second, cfg.Finalizer.Interval)
}

func TestLoadIgnoresMalformedValues(t *testing.T) {
	t.Setenv("SERVER_PORT", "eighty")
	t.Setenv("REDIS_ENABLED", "maybe")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.False(t, cfg.Redis.Enabled)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Server:    ServerConfig{Port: 8080},
			Database:  DatabaseConfig{Driver: DriverMemory},
			Store:     StoreConfig{LatencyMin: time.Millisecond, LatencyMax: 2 * time.Millisecond},
			Finalizer: FinalizerConfig{Interval: time.Minute},
		}
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad port", func(c *Config) { c.Server.Port = 70000 }},
		{"unknown driver", func(c *Config) { c.Database.Driver = "sqlite" }},
		{"postgres without dsn", func(c *Config) { c.Database.Driver = DriverPostgres }},
		{"inverted latency", func(c *Config) { c.Store.LatencyMax = 0 }},
		{"negative offset", func(c *Config) { c.Chain.IDOffset = -1 }},
		{"zero interval", func(c *Config) { c.Finalizer.Interval = 0 }},
		{"negative burst", func(c *Config) { c.RateLimit.Burst = -1 }},
	}

	require.NoError(t, valid().Validate())

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestSlogLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, LogConfig{Level: "DEBUG"}.SlogLevel())
	assert.Equal(t, slog.LevelWarn, LogConfig{Level: "warning"}.SlogLevel())
	assert.Equal(t, slog.LevelError, LogConfig{Level: "error"}.SlogLevel())
	assert.Equal(t, slog.LevelInfo, LogConfig{Level: "verbose"}.SlogLevel())
}
