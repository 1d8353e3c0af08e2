package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sourcefetch/internal/config"
	"sourcefetch/internal/pipeline"
)

func TestLoadCollectorPools_MissingFileUsesDefaults(t *testing.T) {
	pools, err := config.LoadCollectorPools(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, config.DefaultCollectorPools(), pools)
}

func TestLoadCollectorPools_Overrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "collectors.yaml")
	content := []byte(`
collectors:
  rss:
    concurrency: 3
    rate_per_second: 0.5
    timeout: 10s
`)
	require.NoError(t, os.WriteFile(path, content, 0o644))

	pools, err := config.LoadCollectorPools(path)
	require.NoError(t, err)

	rss := pools[pipeline.CollectorRSS]
	assert.Equal(t, 3, rss.Concurrency)
	assert.Equal(t, 0.5, rss.RatePerSecond)
	assert.Equal(t, 10*time.Second, rss.Timeout)
	// Unset fields fall back to defaults
	assert.Equal(t, config.DefaultCollectorPools()[pipeline.CollectorRSS].Burst, rss.Burst)
	assert.Equal(t, config.DefaultCollectorPools()[pipeline.CollectorScraper], pools[pipeline.CollectorScraper])
}

func TestLoadCollectorPools_UnknownCollector(t *testing.T) {
	path := filepath.Join(t.TempDir(), "collectors.yaml")
	require.NoError(t, os.WriteFile(path, []byte("collectors:\n  carrier-pigeon:\n    concurrency: 1\n"), 0o644))

	_, err := config.LoadCollectorPools(path)
	assert.ErrorIs(t, err, config.ErrInvalid)
}
