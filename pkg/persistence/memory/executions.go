package memory

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"sort"
	"time"

	"github.com/dukex/area/pkg/models"
	"github.com/dukex/area/pkg/persistence"
	"github.com/google/uuid"
)

// ExecutionRepository keeps executions in memdb. Write transactions are serialized by memdb,
// so every read-modify-write below is atomic.
type ExecutionRepository struct {
	p       *Persistence
	catalog *CatalogRepository
}

func (r *ExecutionRepository) Create(ctx context.Context, req models.NewExecution) (*models.Execution, error) {
	instance, err := r.catalog.ActionInstance(ctx, req.ActionInstanceID)
	if err != nil {
		return nil, err
	}

	correlationID := req.CorrelationID
	if correlationID == "" {
		correlationID = uuid.NewString()
	}

	execution := &models.Execution{
		ID:               uuid.NewString(),
		CorrelationID:    correlationID,
		DedupKey:         req.DedupKey,
		ActionInstanceID: instance.ID,
		AreaID:           instance.AreaID,
		ActivationMode:   req.ActivationMode,
		Status:           models.ExecutionStatusQueued,
		Attempt:          0,
		ChainDepth:       req.ChainDepth,
		InputPayload:     maps.Clone(req.InputPayload),
		QueuedAt:         r.p.now(),
		Version:          1,
	}

	if execution.InputPayload == nil {
		execution.InputPayload = map[string]any{}
	}

	txn := r.p.db.Txn(true)
	defer txn.Abort()

	if req.DedupKey != "" {
		existing, err := txn.First(tableExecutions, "dedup_key", req.DedupKey)
		if err != nil {
			return nil, fmt.Errorf("failed to check dedup key: %w", err)
		}

		if existing != nil {
			return nil, persistence.NewExecutionError("Create", existing.(*models.Execution).ID, persistence.ErrDuplicateDedupKey)
		}
	}

	if err := txn.Insert(tableExecutions, execution.Clone()); err != nil {
		return nil, fmt.Errorf("failed to insert execution: %w", err)
	}

	txn.Commit()

	return execution, nil
}

// mutate runs fn against the stored record inside one write transaction and bumps the version.
// fn returning errSkipWrite leaves the record untouched but still returns it.
func (r *ExecutionRepository) mutate(op, id string, fn func(*models.Execution) error) (*models.Execution, error) {
	txn := r.p.db.Txn(true)
	defer txn.Abort()

	raw, err := txn.First(tableExecutions, "id", id)
	if err != nil {
		return nil, persistence.NewExecutionError(op, id, err)
	}

	if raw == nil {
		return nil, persistence.NewExecutionError(op, id, persistence.ErrExecutionNotFound)
	}

	execution := raw.(*models.Execution).Clone()

	err = fn(execution)
	if errors.Is(err, errSkipWrite) {
		return execution, nil
	}

	if err != nil {
		return execution, persistence.NewExecutionError(op, id, err)
	}

	execution.Version++

	if err := txn.Insert(tableExecutions, execution.Clone()); err != nil {
		return nil, persistence.NewExecutionError(op, id, err)
	}

	txn.Commit()

	return execution, nil
}

var errSkipWrite = errors.New("skip write")

func (r *ExecutionRepository) MarkStarted(_ context.Context, id string) (*models.Execution, error) {
	execution, err := r.mutate("MarkStarted", id, func(e *models.Execution) error {
		return e.Start(r.p.now())
	})
	if err != nil && errors.Is(err, persistence.ErrExecutionAlreadyRunning) {
		r.p.logger.Warn("execution already running", "executionId", id)
	}

	return execution, err
}

func (r *ExecutionRepository) ApplyResult(_ context.Context, result models.ExecutionResult) (*models.Execution, error) {
	return r.mutate("ApplyResult", result.ExecutionID, func(e *models.Execution) error {
		return e.Apply(result, r.p.now())
	})
}

func (r *ExecutionRepository) Cancel(_ context.Context, id string, reason string) (*models.Execution, error) {
	return r.mutate("Cancel", id, func(e *models.Execution) error {
		changed, err := e.Cancel(reason, r.p.now())
		if err != nil {
			return err
		}

		if !changed {
			return errSkipWrite
		}

		return nil
	})
}

func (r *ExecutionRepository) Get(_ context.Context, id string) (*models.Execution, error) {
	txn := r.p.db.Txn(false)
	defer txn.Abort()

	raw, err := txn.First(tableExecutions, "id", id)
	if err != nil {
		return nil, persistence.NewExecutionError("Get", id, err)
	}

	if raw == nil {
		return nil, persistence.NewExecutionError("Get", id, persistence.ErrExecutionNotFound)
	}

	return raw.(*models.Execution).Clone(), nil
}

func (r *ExecutionRepository) FindByDedupKey(_ context.Context, dedupKey string) (*models.Execution, error) {
	if dedupKey == "" {
		return nil, persistence.NewExecutionError("FindByDedupKey", "", persistence.ErrExecutionNotFound)
	}

	txn := r.p.db.Txn(false)
	defer txn.Abort()

	raw, err := txn.First(tableExecutions, "dedup_key", dedupKey)
	if err != nil {
		return nil, persistence.NewExecutionError("FindByDedupKey", "", err)
	}

	if raw == nil {
		return nil, persistence.NewExecutionError("FindByDedupKey", "", persistence.ErrExecutionNotFound)
	}

	return raw.(*models.Execution).Clone(), nil
}

func (r *ExecutionRepository) ListQueued(_ context.Context, limit int) ([]*models.Execution, error) {
	executions, err := r.byIndex("status", string(models.ExecutionStatusQueued), nil)
	if err != nil {
		return nil, err
	}

	return limitTo(sortByQueuedAt(executions), limit), nil
}

func (r *ExecutionRepository) ListRetryReady(_ context.Context, now, staleBefore time.Time, limit int) ([]*models.Execution, error) {
	executions, err := r.byIndex("status", string(models.ExecutionStatusRetry), func(e *models.Execution) bool {
		if e.NextRetryAt != nil {
			return !e.NextRetryAt.After(now)
		}

		return e.StartedAt == nil || e.StartedAt.Before(staleBefore)
	})
	if err != nil {
		return nil, err
	}

	return limitTo(sortByQueuedAt(executions), limit), nil
}

func (r *ExecutionRepository) ListTimedOut(_ context.Context, startedBefore time.Time, limit int) ([]*models.Execution, error) {
	executions, err := r.byIndex("status", string(models.ExecutionStatusRunning), func(e *models.Execution) bool {
		return e.StartedAt != nil && e.StartedAt.Before(startedBefore)
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(executions, func(i, j int) bool {
		return executions[i].StartedAt.Before(*executions[j].StartedAt)
	})

	return limitTo(executions, limit), nil
}

func (r *ExecutionRepository) ListByCorrelation(_ context.Context, correlationID string) ([]*models.Execution, error) {
	executions, err := r.byIndex("correlation_id", correlationID, nil)
	if err != nil {
		return nil, err
	}

	return sortByQueuedAt(executions), nil
}

func (r *ExecutionRepository) CountByStatus(_ context.Context) (map[models.ExecutionStatus]int, error) {
	counts := make(map[models.ExecutionStatus]int, len(models.ExecutionStatuses))

	for _, status := range models.ExecutionStatuses {
		executions, err := r.byIndex("status", string(status), nil)
		if err != nil {
			return nil, err
		}

		counts[status] = len(executions)
	}

	return counts, nil
}

func (r *ExecutionRepository) byIndex(index, value string, keep func(*models.Execution) bool) ([]*models.Execution, error) {
	txn := r.p.db.Txn(false)
	defer txn.Abort()

	it, err := txn.Get(tableExecutions, index, value)
	if err != nil {
		return nil, fmt.Errorf("failed to query executions by %s: %w", index, err)
	}

	var executions []*models.Execution

	for obj := it.Next(); obj != nil; obj = it.Next() {
		execution := obj.(*models.Execution)
		if keep == nil || keep(execution) {
			executions = append(executions, execution.Clone())
		}
	}

	return executions, nil
}

func sortByQueuedAt(executions []*models.Execution) []*models.Execution {
	sort.SliceStable(executions, func(i, j int) bool {
		return executions[i].QueuedAt.Before(executions[j].QueuedAt)
	})

	return executions
}

func limitTo(executions []*models.Execution, limit int) []*models.Execution {
	if limit > 0 && len(executions) > limit {
		return executions[:limit]
	}

	return executions
}
