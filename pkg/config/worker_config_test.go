package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dukex/area/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseWorkerConfig(t *testing.T) {
	t.Run("empty file keeps defaults", func(t *testing.T) {
		cfg, err := config.ParseWorkerConfig([]byte(""))
		require.NoError(t, err)
		assert.Equal(t, config.DefaultWorkerConfig(), cfg)
	})

	t.Run("overrides", func(t *testing.T) {
		cfg, err := config.ParseWorkerConfig([]byte(`
consumer_group: custom-group
batch_size: 25
execution_timeout: 2m
retry_stale_after: 30s
schedules:
  events: "@every 500ms"
  statistics: "*/5 * * * *"
pools:
  reactions:
    workers: 12
    backlog: 200
chain:
  max_hops: 8
`))
		require.NoError(t, err)

		s := cfg.Scheduler
		assert.Equal(t, "custom-group", s.ConsumerGroup)
		assert.Equal(t, 25, s.BatchSize)
		assert.Equal(t, 2*time.Minute, s.ExecutionTimeout)
		assert.Equal(t, 30*time.Second, s.RetryStaleAfter)
		assert.Equal(t, "@every 500ms", s.EventsSchedule)
		assert.Equal(t, "@every 5s", s.QueuedSchedule)
		assert.Equal(t, "*/5 * * * *", s.StatisticsSchedule)
		assert.Equal(t, 12, s.ReactionWorkers)
		assert.Equal(t, 200, s.ReactionBacklog)
		assert.Equal(t, 10, s.BookkeepingWorkers)
		assert.Equal(t, 8, cfg.MaxHops)
	})

	tests := []struct {
		name string
		yaml string
	}{
		{name: "bad duration", yaml: "execution_timeout: soon"},
		{name: "negative duration", yaml: "retry_stale_after: -1s"},
		{name: "bad schedule", yaml: "schedules:\n  retries: whenever"},
		{name: "bad yaml", yaml: "pools: [1, 2"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := config.ParseWorkerConfig([]byte(tt.yaml))
			assert.Error(t, err)
		})
	}
}

func TestLoadWorkerConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "worker.yaml")
	require.NoError(t, os.WriteFile(path, []byte("batch_size: 3\n"), 0o600))

	cfg, err := config.LoadWorkerConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Scheduler.BatchSize)

	_, err = config.LoadWorkerConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	cfg, err = config.LoadWorkerConfigOrDefault("")
	require.NoError(t, err)
	assert.Equal(t, config.DefaultWorkerConfig(), cfg)
}
