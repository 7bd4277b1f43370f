package persistence_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/dukex/area/pkg/faults"
	"github.com/dukex/area/pkg/models"
	"github.com/dukex/area/pkg/persistence"
	"github.com/stretchr/testify/assert"
)

func TestStandardizedErrors(t *testing.T) {
	t.Parallel()

	t.Run("execution error keeps context", func(t *testing.T) {
		t.Parallel()

		err := persistence.NewExecutionError("MarkStarted", "exec-123", persistence.ErrExecutionNotFound)

		assert.True(t, persistence.IsExecutionNotFound(err))
		assert.Contains(t, err.Error(), "MarkStarted")
		assert.Contains(t, err.Error(), "exec-123")
		assert.Contains(t, err.Error(), "execution not found")
	})

	t.Run("not found errors classify as NotFound", func(t *testing.T) {
		t.Parallel()

		err := persistence.NewCatalogError("ActionInstance", "action instance", "ai-1", persistence.ErrActionInstanceNotFound)

		assert.True(t, persistence.IsActionInstanceNotFound(err))
		assert.Equal(t, faults.KindNotFound, faults.KindOf(err))
		assert.False(t, persistence.IsAreaNotFound(err))
	})

	t.Run("lifecycle errors are shared with models", func(t *testing.T) {
		t.Parallel()

		wrapped := fmt.Errorf("apply: %w", models.ErrIllegalTransition)
		assert.True(t, persistence.IsIllegalTransition(wrapped))
		assert.True(t, errors.Is(persistence.ErrExecutionAlreadyRunning, models.ErrAlreadyRunning))
		assert.True(t, persistence.IsConcurrentUpdate(
			persistence.NewExecutionError("ApplyResult", "exec-1", persistence.ErrConcurrentUpdate)))
	})
}
