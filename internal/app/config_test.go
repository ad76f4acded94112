package app

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("APP_ENV", "development")
	t.Setenv("STORE", StorePostgres)
	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.Equal(t, StorePostgres, cfg.Store)
	require.Equal(t, 20, cfg.ProvisionMaxAttempts)
	require.Equal(t, 10*time.Second, cfg.NotifyTimeout)
	require.Equal(t, "@every 15m", cfg.SweepCron)
	require.False(t, cfg.IsProduction())
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("STORE", StoreMemory)
	t.Setenv("SWEEP_INTERVAL", "1m")
	t.Setenv("SWEEP_BATCH_SIZE", "50")
	t.Setenv("ROLE_CATALOG_PATH", "/etc/odyssey/roles.yaml")
	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.Equal(t, StoreMemory, cfg.Store)
	require.Equal(t, time.Minute, cfg.SweepInterval)
	require.Equal(t, 50, cfg.SweepBatchSize)
	require.Equal(t, "/etc/odyssey/roles.yaml", cfg.RoleCatalogPath)
}

func TestConfigValidate(t *testing.T) {
	base := Config{Store: StorePostgres, PGDSN: "postgres://x", ProvisionMaxAttempts: 5, SweepBatchSize: 10, SweepConcurrency: 2, SweepMode: SweepModeQueue}
	require.NoError(t, base.Validate())

	cases := map[string]func(c *Config){
		"unknown store":        func(c *Config) { c.Store = "sqlite" },
		"missing dsn":          func(c *Config) { c.PGDSN = "" },
		"memory in production": func(c *Config) { c.Store = StoreMemory; c.AppEnv = "production" },
		"zero attempts":        func(c *Config) { c.ProvisionMaxAttempts = 0 },
		"zero sweep workers":   func(c *Config) { c.SweepConcurrency = 0 },
		"unknown sweep mode":   func(c *Config) { c.SweepMode = "cronjob" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := base
			mutate(&cfg)
			require.Error(t, cfg.Validate())
		})
	}

	var nilCfg *Config
	require.Error(t, nilCfg.Validate())
}

func TestNewLoggerHonoursFormatAndLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&Config{LogFormat: "json", LogLevel: "warn", AppEnv: "staging"}, &buf)

	logger.Info("dropped")
	require.Zero(t, buf.Len())

	logger.Warn("kept")
	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	require.Equal(t, "kept", line["msg"])
	require.Equal(t, serviceName, line["service"])
	require.Equal(t, "staging", line["env"])
}

func TestInTestModeFollowsEnvironment(t *testing.T) {
	t.Setenv(testModeEnv, "1")
	RefreshTestMode()
	require.True(t, InTestMode())

	t.Setenv(testModeEnv, "")
	RefreshTestMode()
	require.False(t, InTestMode())
}
