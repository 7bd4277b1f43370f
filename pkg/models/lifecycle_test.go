package models_test

import (
	"testing"
	"time"

	"github.com/dukex/area/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newExecution(status models.ExecutionStatus) *models.Execution {
	return &models.Execution{
		ID:               "exec-1",
		ActionInstanceID: "ai-1",
		Status:           status,
		QueuedAt:         time.Now().UTC(),
	}
}

func assertInvariants(t *testing.T, e *models.Execution) {
	t.Helper()

	assert.Equal(t, e.Status.IsTerminal(), e.FinishedAt != nil, "finishedAt iff terminal")
	assert.Equal(t, e.Status == models.ExecutionStatusRetry, e.NextRetryAt != nil, "nextRetryAt iff RETRY")

	if e.Status == models.ExecutionStatusOK {
		assert.NotNil(t, e.OutputPayload)
	}
}

func TestNextStatus(t *testing.T) {
	t.Parallel()

	tests := []struct {
		from     models.ExecutionStatus
		trigger  models.LifecycleTrigger
		expected models.ExecutionStatus
		illegal  bool
	}{
		{models.ExecutionStatusQueued, models.TriggerStart, models.ExecutionStatusRunning, false},
		{models.ExecutionStatusRetry, models.TriggerStart, models.ExecutionStatusRunning, false},
		{models.ExecutionStatusRunning, models.TriggerSucceed, models.ExecutionStatusOK, false},
		{models.ExecutionStatusRunning, models.TriggerRetry, models.ExecutionStatusRetry, false},
		{models.ExecutionStatusRunning, models.TriggerFail, models.ExecutionStatusFailed, false},
		{models.ExecutionStatusQueued, models.TriggerFail, models.ExecutionStatusFailed, false},
		{models.ExecutionStatusRunning, models.TriggerCancel, models.ExecutionStatusCanceled, false},
		{models.ExecutionStatusQueued, models.TriggerSucceed, "", true},
		{models.ExecutionStatusCanceled, models.TriggerSucceed, "", true},
		{models.ExecutionStatusCanceled, models.TriggerFail, "", true},
		{models.ExecutionStatusOK, models.TriggerStart, "", true},
		{models.ExecutionStatusFailed, models.TriggerCancel, "", true},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"/"+string(tt.trigger), func(t *testing.T) {
			t.Parallel()

			next, err := models.NextStatus(tt.from, tt.trigger)
			if tt.illegal {
				require.ErrorIs(t, err, models.ErrIllegalTransition)
				assert.Equal(t, tt.from, next)

				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.expected, next)
		})
	}
}

func TestExecution_Start(t *testing.T) {
	t.Parallel()

	now := time.Now().UTC()

	t.Run("from queued keeps attempt", func(t *testing.T) {
		t.Parallel()

		e := newExecution(models.ExecutionStatusQueued)
		require.NoError(t, e.Start(now))
		assert.Equal(t, models.ExecutionStatusRunning, e.Status)
		assert.Equal(t, 0, e.Attempt)
		require.NotNil(t, e.StartedAt)
		assert.Equal(t, now, *e.StartedAt)
		assertInvariants(t, e)
	})

	t.Run("from retry increments attempt", func(t *testing.T) {
		t.Parallel()

		retryAt := now.Add(-time.Second)
		e := newExecution(models.ExecutionStatusRetry)
		e.NextRetryAt = &retryAt

		require.NoError(t, e.Start(now))
		assert.Equal(t, 1, e.Attempt)
		assert.Nil(t, e.NextRetryAt)
		assertInvariants(t, e)
	})

	t.Run("already running", func(t *testing.T) {
		t.Parallel()

		e := newExecution(models.ExecutionStatusRunning)
		require.ErrorIs(t, e.Start(now), models.ErrAlreadyRunning)
	})

	t.Run("terminal", func(t *testing.T) {
		t.Parallel()

		e := newExecution(models.ExecutionStatusOK)
		require.ErrorIs(t, e.Start(now), models.ErrIllegalTransition)
	})
}

func TestExecution_Apply(t *testing.T) {
	t.Parallel()

	now := time.Now().UTC()
	retryAt := now.Add(2 * time.Second)

	tests := []struct {
		name     string
		result   models.ExecutionResult
		expected models.ExecutionStatus
	}{
		{
			name:     "success with nil output",
			result:   models.ExecutionResult{Status: models.ExecutionStatusOK},
			expected: models.ExecutionStatusOK,
		},
		{
			name: "retry",
			result: models.Failure("exec-1", map[string]any{"message": "Connection timeout"},
				now, &retryAt),
			expected: models.ExecutionStatusRetry,
		},
		{
			name:     "retry without time becomes failed",
			result:   models.ExecutionResult{Status: models.ExecutionStatusRetry},
			expected: models.ExecutionStatusFailed,
		},
		{
			name:     "failed",
			result:   models.Failure("exec-1", map[string]any{"message": "Invalid credentials"}, now, nil),
			expected: models.ExecutionStatusFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			e := newExecution(models.ExecutionStatusQueued)
			require.NoError(t, e.Start(now))
			require.NoError(t, e.Apply(tt.result, now))

			assert.Equal(t, tt.expected, e.Status)
			assert.Equal(t, 0, e.Attempt)
			assertInvariants(t, e)
		})
	}
}

func TestExecution_ApplyOnCanceledIsRejected(t *testing.T) {
	t.Parallel()

	now := time.Now().UTC()
	e := newExecution(models.ExecutionStatusQueued)
	require.NoError(t, e.Start(now))

	changed, err := e.Cancel("user request", now)
	require.NoError(t, err)
	assert.True(t, changed)

	err = e.Apply(models.Success(e.ID, map[string]any{"ok": true}, now), now)
	require.ErrorIs(t, err, models.ErrIllegalTransition)
	assert.Equal(t, models.ExecutionStatusCanceled, e.Status)
	assert.Nil(t, e.OutputPayload)
	assertInvariants(t, e)
}

func TestExecution_CancelTwiceKeepsFirstReason(t *testing.T) {
	t.Parallel()

	now := time.Now().UTC()
	e := newExecution(models.ExecutionStatusQueued)

	changed, err := e.Cancel("first", now)
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = e.Cancel("second", now.Add(time.Minute))
	require.NoError(t, err)
	assert.False(t, changed)

	assert.Equal(t, "first", e.Error["reason"])
	assert.Equal(t, now, *e.FinishedAt)
}

func TestExecution_CancelTerminal(t *testing.T) {
	t.Parallel()

	e := newExecution(models.ExecutionStatusFailed)
	finished := time.Now().UTC()
	e.FinishedAt = &finished

	_, err := e.Cancel("late", time.Now().UTC())
	require.ErrorIs(t, err, models.ErrIllegalTransition)
	assert.Equal(t, models.ExecutionStatusFailed, e.Status)
}

func TestActivationMode_EventType(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "chain", models.ActivationModeChain.EventType())
	assert.Equal(t, "webhook", models.ActivationModeWebhook.EventType())
}

func TestSuccess_Duration(t *testing.T) {
	t.Parallel()

	started := time.Now().UTC().Add(-1500 * time.Millisecond)
	result := models.Success("exec-1", nil, started)

	assert.True(t, result.Successful())
	assert.NotNil(t, result.OutputPayload)
	assert.GreaterOrEqual(t, result.DurationMs, int64(1500))
}
