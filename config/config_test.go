package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())
	for _, key := range []string{"PORT", "STORE_DRIVER", "SWEEP_INTERVAL", "ADMIN_COLLECTION", "ENABLE_METRICS", "EVENT_SINK"} {
		t.Setenv(key, "")
	}

	cfg := LoadConfig()

	assert.Equal(t, "8090", cfg.Port)
	assert.Equal(t, "pocketbase", cfg.StoreDriver)
	assert.Equal(t, 30*time.Second, cfg.SweepInterval)
	assert.Equal(t, 24*time.Hour, cfg.IdempotencyTTL)
	assert.Equal(t, "_superusers", cfg.AdminCollection)
	assert.Equal(t, "log", cfg.EventSink)
	assert.True(t, cfg.EnableMetrics)
	assert.False(t, cfg.IsProduction())
}

func TestLoadConfig_Overrides(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("STORE_DRIVER", "Postgres")
	t.Setenv("SWEEP_INTERVAL", "2m")
	t.Setenv("RATE_LIMIT_PER_MINUTE", "5")
	t.Setenv("ENABLE_METRICS", "false")
	t.Setenv("ENVIRONMENT", "production")

	cfg := LoadConfig()

	assert.Equal(t, "postgres", cfg.StoreDriver)
	assert.Equal(t, 2*time.Minute, cfg.SweepInterval)
	assert.Equal(t, 5, cfg.RateLimitPerMinute)
	assert.False(t, cfg.EnableMetrics)
	assert.True(t, cfg.IsProduction())
}

func TestLoadConfig_DotEnv(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("EVENT_QUEUE=from-dotenv\n"), 0o600))
	t.Chdir(dir)
	t.Setenv("EVENT_QUEUE", "")
	os.Unsetenv("EVENT_QUEUE")

	cfg := LoadConfig()
	assert.Equal(t, "from-dotenv", cfg.EventQueue)
}

func TestGetEnvHelpers_FallBackOnGarbage(t *testing.T) {
	t.Setenv("TEST_INT", "abc")
	t.Setenv("TEST_BOOL", "maybe")
	t.Setenv("TEST_DURATION", "soon")

	assert.Equal(t, 7, getEnvAsInt("TEST_INT", 7))
	assert.True(t, getEnvAsBool("TEST_BOOL", true))
	assert.Equal(t, time.Second, getEnvAsDuration("TEST_DURATION", "1s"))
}

func TestSlogLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, (&Config{LogLevel: "debug"}).SlogLevel())
	assert.Equal(t, slog.LevelWarn, (&Config{LogLevel: "WARN"}).SlogLevel())
	assert.Equal(t, slog.LevelInfo, (&Config{LogLevel: "loud"}).SlogLevel())
}
