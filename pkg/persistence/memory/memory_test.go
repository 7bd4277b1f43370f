package memory_test

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/dukex/area/pkg/models"
	"github.com/dukex/area/pkg/persistence"
	"github.com/dukex/area/pkg/persistence/memory"
	"github.com/dukex/area/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.now = c.now.Add(d)
}

func setupStore(t *testing.T) (*memory.Persistence, *testutil.Fixture, *testClock, context.Context) {
	t.Helper()

	ctx := context.Background()
	clock := &testClock{now: time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	p, err := memory.NewPersistence(logger, memory.WithClock(clock.Now))
	require.NoError(t, err)

	catalog, ok := p.CatalogRepository().(*memory.CatalogRepository)
	require.True(t, ok)

	return p, testutil.SeedArea(ctx, t, catalog), clock, ctx
}

func TestExecutionRepository_Create(t *testing.T) {
	t.Parallel()

	p, fixture, clock, ctx := setupStore(t)
	reaction := fixture.AddReaction(ctx, t)
	repo := p.ExecutionRepository()

	execution, err := repo.Create(ctx, models.NewExecution{
		ActionInstanceID: reaction.ID,
		ActivationMode:   models.ActivationModeWebhook,
		InputPayload:     map[string]any{"title": "hello"},
		CorrelationID:    "corr-1",
	})
	require.NoError(t, err)

	assert.NotEmpty(t, execution.ID)
	assert.Equal(t, models.ExecutionStatusQueued, execution.Status)
	assert.Equal(t, 0, execution.Attempt)
	assert.Equal(t, fixture.Area.ID, execution.AreaID)
	assert.Equal(t, "corr-1", execution.CorrelationID)
	assert.Equal(t, clock.Now(), execution.QueuedAt)
	assert.Nil(t, execution.FinishedAt)
	assert.Nil(t, execution.NextRetryAt)

	stored, err := repo.Get(ctx, execution.ID)
	require.NoError(t, err)
	assert.Equal(t, execution, stored)

	t.Run("generates correlation id", func(t *testing.T) {
		generated, err := repo.Create(ctx, models.NewExecution{ActionInstanceID: reaction.ID})
		require.NoError(t, err)
		assert.NotEmpty(t, generated.CorrelationID)
		assert.NotNil(t, generated.InputPayload)
	})

	t.Run("unknown action instance", func(t *testing.T) {
		_, err := repo.Create(ctx, models.NewExecution{ActionInstanceID: "missing"})
		require.Error(t, err)
		assert.True(t, persistence.IsActionInstanceNotFound(err))
	})
}

func TestExecutionRepository_Lifecycle(t *testing.T) {
	t.Parallel()

	p, fixture, clock, ctx := setupStore(t)
	reaction := fixture.AddReaction(ctx, t)
	repo := p.ExecutionRepository()

	execution, err := repo.Create(ctx, models.NewExecution{ActionInstanceID: reaction.ID})
	require.NoError(t, err)

	started, err := repo.MarkStarted(ctx, execution.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusRunning, started.Status)
	assert.Equal(t, int64(2), started.Version)

	again, err := repo.MarkStarted(ctx, execution.ID)
	require.ErrorIs(t, err, persistence.ErrExecutionAlreadyRunning)
	assert.Equal(t, models.ExecutionStatusRunning, again.Status)

	retryAt := clock.Now().Add(2 * time.Second)
	retried, err := repo.ApplyResult(ctx, models.Failure(execution.ID,
		map[string]any{"message": "Connection timeout"}, *started.StartedAt, &retryAt))
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusRetry, retried.Status)
	assert.Equal(t, 0, retried.Attempt)
	assert.Equal(t, retryAt, *retried.NextRetryAt)

	clock.Advance(3 * time.Second)

	restarted, err := repo.MarkStarted(ctx, execution.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, restarted.Attempt)
	assert.Nil(t, restarted.NextRetryAt)

	done, err := repo.ApplyResult(ctx, models.Success(execution.ID, map[string]any{"id": 42}, *restarted.StartedAt))
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusOK, done.Status)
	assert.Equal(t, map[string]any{"id": 42}, done.OutputPayload)
	assert.NotNil(t, done.FinishedAt)

	_, err = repo.Cancel(ctx, execution.ID, "too late")
	require.ErrorIs(t, err, persistence.ErrIllegalTransition)
}

func TestExecutionRepository_CancelIsIdempotent(t *testing.T) {
	t.Parallel()

	p, fixture, clock, ctx := setupStore(t)
	reaction := fixture.AddReaction(ctx, t)
	repo := p.ExecutionRepository()

	execution, err := repo.Create(ctx, models.NewExecution{ActionInstanceID: reaction.ID})
	require.NoError(t, err)

	_, err = repo.MarkStarted(ctx, execution.ID)
	require.NoError(t, err)

	canceled, err := repo.Cancel(ctx, execution.ID, "first")
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusCanceled, canceled.Status)

	clock.Advance(time.Minute)

	second, err := repo.Cancel(ctx, execution.ID, "second")
	require.NoError(t, err)
	assert.Equal(t, "first", second.Error["reason"])
	assert.Equal(t, canceled.Version, second.Version)
	assert.Equal(t, *canceled.FinishedAt, *second.FinishedAt)

	_, err = repo.ApplyResult(ctx, models.Success(execution.ID, map[string]any{}, clock.Now()))
	require.ErrorIs(t, err, persistence.ErrIllegalTransition)

	stored, err := repo.Get(ctx, execution.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusCanceled, stored.Status)
}

func TestExecutionRepository_Queries(t *testing.T) {
	t.Parallel()

	p, fixture, clock, ctx := setupStore(t)
	reaction := fixture.AddReaction(ctx, t)
	repo := p.ExecutionRepository()

	create := func(dedupKey string) *models.Execution {
		execution, err := repo.Create(ctx, models.NewExecution{
			ActionInstanceID: reaction.ID,
			CorrelationID:    "corr-q",
			DedupKey:         dedupKey,
		})
		require.NoError(t, err)
		clock.Advance(time.Second)

		return execution
	}

	first := create("evt-1")
	second := create("")
	stuck := create("")
	retrying := create("")

	_, err := repo.MarkStarted(ctx, stuck.ID)
	require.NoError(t, err)

	_, err = repo.MarkStarted(ctx, retrying.ID)
	require.NoError(t, err)

	retryAt := clock.Now().Add(10 * time.Second)
	_, err = repo.ApplyResult(ctx, models.Failure(retrying.ID, map[string]any{}, clock.Now(), &retryAt))
	require.NoError(t, err)

	queued, err := repo.ListQueued(ctx, 10)
	require.NoError(t, err)
	require.Len(t, queued, 2)
	assert.Equal(t, first.ID, queued[0].ID)
	assert.Equal(t, second.ID, queued[1].ID)

	limited, err := repo.ListQueued(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	notYet, err := repo.ListRetryReady(ctx, clock.Now(), clock.Now().Add(-time.Minute), 10)
	require.NoError(t, err)
	assert.Empty(t, notYet)

	ready, err := repo.ListRetryReady(ctx, retryAt, clock.Now().Add(-time.Minute), 10)
	require.NoError(t, err)
	require.Len(t, ready, 1)
	assert.Equal(t, retrying.ID, ready[0].ID)

	clock.Advance(10 * time.Minute)

	timedOut, err := repo.ListTimedOut(ctx, clock.Now().Add(-5*time.Minute), 10)
	require.NoError(t, err)
	require.Len(t, timedOut, 1)
	assert.Equal(t, stuck.ID, timedOut[0].ID)

	byKey, err := repo.FindByDedupKey(ctx, "evt-1")
	require.NoError(t, err)
	assert.Equal(t, first.ID, byKey.ID)

	_, err = repo.FindByDedupKey(ctx, "evt-unknown")
	assert.True(t, persistence.IsExecutionNotFound(err))

	correlated, err := repo.ListByCorrelation(ctx, "corr-q")
	require.NoError(t, err)
	assert.Len(t, correlated, 4)

	counts, err := repo.CountByStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, counts[models.ExecutionStatusQueued])
	assert.Equal(t, 1, counts[models.ExecutionStatusRunning])
	assert.Equal(t, 1, counts[models.ExecutionStatusRetry])
	assert.Equal(t, 0, counts[models.ExecutionStatusOK])
}

func TestExecutionRepository_ConcurrentMarkStarted(t *testing.T) {
	t.Parallel()

	p, fixture, _, ctx := setupStore(t)
	reaction := fixture.AddReaction(ctx, t)
	repo := p.ExecutionRepository()

	execution, err := repo.Create(ctx, models.NewExecution{ActionInstanceID: reaction.ID})
	require.NoError(t, err)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		winners int
	)

	for range 8 {
		wg.Add(1)

		go func() {
			defer wg.Done()

			if _, err := repo.MarkStarted(ctx, execution.ID); err == nil {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		}()
	}

	wg.Wait()
	assert.Equal(t, 1, winners)
}

func TestCatalogRepository(t *testing.T) {
	t.Parallel()

	p, fixture, _, ctx := setupStore(t)
	catalog := p.CatalogRepository()

	source := fixture.AddTrigger(ctx, t)
	b := fixture.AddReaction(ctx, t)
	c := fixture.AddReaction(ctx, t, testutil.WithParams(map[string]any{"channel": "#ops"}))

	fixture.Link(ctx, t, source, c, testutil.WithOrder(1))
	fixture.Link(ctx, t, source, b)

	instance, err := catalog.ActionInstance(ctx, c.ID)
	require.NoError(t, err)
	require.NotNil(t, instance.Definition)
	require.NotNil(t, instance.Definition.Service)
	assert.Equal(t, "test", instance.ServiceKey())
	assert.Equal(t, "echo", instance.ActionKey())
	assert.True(t, instance.IsExecutable())
	assert.Equal(t, "#ops", instance.Params["channel"])

	trigger, err := catalog.ActionInstance(ctx, source.ID)
	require.NoError(t, err)
	assert.False(t, trigger.IsExecutable())

	links, err := catalog.LinksFrom(ctx, source.ID)
	require.NoError(t, err)
	require.Len(t, links, 2)
	assert.Equal(t, c.ID, links[0].TargetActionInstanceID, "creation order")
	assert.Equal(t, b.ID, links[1].TargetActionInstanceID)
	assert.Equal(t, models.LinkTypeChain, links[0].LinkType)

	area, err := catalog.Area(ctx, fixture.Area.ID)
	require.NoError(t, err)
	assert.True(t, area.Enabled)

	_, err = catalog.Area(ctx, "missing")
	assert.True(t, persistence.IsAreaNotFound(err))

	_, err = catalog.ActionInstance(ctx, "missing")
	assert.True(t, persistence.IsActionInstanceNotFound(err))
}
