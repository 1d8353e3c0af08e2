package config_test

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"sourcefetch/internal/config"
)

func TestLoadConfig(t *testing.T) {
	os.Setenv("DB_HOST", "test-host")
	defer os.Unsetenv("DB_HOST")

	cfg, err := config.Load()
	assert.NoError(t, err)
	assert.Equal(t, "test-host", cfg.DBHost)
	assert.Equal(t, 5*time.Minute, cfg.PriorityTick)
	assert.Equal(t, []string{"api", "rss", "scraper"}, cfg.Collectors)
}

func TestLoadConfig_FromEnvFile(t *testing.T) {
	content := []byte("DB_HOST=loaded-from-file")
	err := os.WriteFile(".env", content, 0o644)
	if err != nil {
		t.Fatal(err)
	}
	defer os.Remove(".env")

	cfg, err := config.Load()
	assert.NoError(t, err)
	assert.Equal(t, "loaded-from-file", cfg.DBHost)
}

func TestLoadConfig_Toggles(t *testing.T) {
	os.Setenv("ENABLE_API", "false")
	os.Setenv("ENABLE_SCHEDULER", "false")
	os.Setenv("COLLECTORS", "rss")
	os.Setenv("ORCHESTRATOR_CONCURRENCY", "3")
	defer os.Unsetenv("ENABLE_API")
	defer os.Unsetenv("ENABLE_SCHEDULER")
	defer os.Unsetenv("COLLECTORS")
	defer os.Unsetenv("ORCHESTRATOR_CONCURRENCY")

	cfg, err := config.Load()
	assert.NoError(t, err)
	assert.False(t, cfg.EnableAPI)
	assert.False(t, cfg.EnableScheduler)
	assert.Equal(t, []string{"rss"}, cfg.Collectors)
	assert.Equal(t, 3, cfg.OrchestratorPoolSize)
}

func TestLoadConfig_Durations(t *testing.T) {
	os.Setenv("PRIORITY_TICK", "90s")
	os.Setenv("ERROR_THRESHOLD", "3")
	defer os.Unsetenv("PRIORITY_TICK")
	defer os.Unsetenv("ERROR_THRESHOLD")

	cfg, err := config.Load()
	assert.NoError(t, err)
	assert.Equal(t, 90*time.Second, cfg.PriorityTick)
	assert.Equal(t, 3.0, cfg.ErrorThreshold)
}
