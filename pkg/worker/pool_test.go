package worker_test

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/dukex/area/pkg/worker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPool_TrySubmitRejectsWhenFull(t *testing.T) {
	pool := worker.NewPool("test", 1, 2)

	// Not started: the backlog fills up and nothing drains it.
	require.NoError(t, pool.TrySubmit(func(context.Context) {}))
	require.NoError(t, pool.TrySubmit(func(context.Context) {}))
	require.ErrorIs(t, pool.TrySubmit(func(context.Context) {}), worker.ErrPoolFull)

	stats := pool.Stats()
	assert.Equal(t, "test", stats.Name)
	assert.Equal(t, 2, stats.Queued)
	assert.Equal(t, 2, stats.Capacity)
	assert.Equal(t, int64(1), stats.Rejected)
	assert.False(t, stats.Healthy)
}

func TestPool_StopDrainsBacklog(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	pool := worker.NewPool("test", 2, 10)

	var ran atomic.Int64

	for range 5 {
		require.NoError(t, pool.TrySubmit(func(taskCtx context.Context) {
			if taskCtx.Err() == nil {
				ran.Add(1)
			}
		}))
	}

	pool.Start(ctx)
	cancel()
	pool.Stop()

	assert.Equal(t, int64(5), ran.Load())
	assert.Equal(t, int64(5), pool.Stats().Completed)
	assert.ErrorIs(t, pool.TrySubmit(func(context.Context) {}), worker.ErrPoolClosed)
}

func TestPool_SurvivesPanickingTask(t *testing.T) {
	pool := worker.NewPool("test", 1, 4)
	pool.Start(context.Background())

	var ran atomic.Bool

	require.NoError(t, pool.TrySubmit(func(context.Context) { panic("boom") }))
	require.NoError(t, pool.TrySubmit(func(context.Context) { ran.Store(true) }))

	pool.Stop()

	assert.True(t, ran.Load())
	assert.Equal(t, int64(2), pool.Stats().Completed)
}

func TestPool_HealthyBelowThreshold(t *testing.T) {
	pool := worker.NewPool("test", 1, 10)

	for range 7 {
		require.NoError(t, pool.TrySubmit(func(context.Context) {}))
	}

	assert.True(t, pool.Stats().Healthy)

	require.NoError(t, pool.TrySubmit(func(context.Context) {}))
	assert.False(t, pool.Stats().Healthy)
}
