package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"time"

	"github.com/dukex/area/pkg/models"
	"github.com/dukex/area/pkg/persistence"
	"github.com/google/uuid"
	"github.com/lib/pq"
)

const (
	uniqueViolation = "23505"

	// casAttempts bounds how often a lost compare-and-swap is re-read and re-applied.
	casAttempts = 3

	executionColumns = `
		id, correlation_id, dedup_key, action_instance_id, area_id, activation_mode, status,
		attempt, chain_depth, input_payload, output_payload, error_details,
		queued_at, started_at, finished_at, next_retry_at, version
	`
)

var errSkipWrite = errors.New("skip write")

// ExecutionRepository stores executions in PostgreSQL. Transitions are applied in Go through
// the execution lifecycle and written back with an optimistic version check.
type ExecutionRepository struct {
	db      *sql.DB
	logger  *slog.Logger
	catalog *CatalogRepository
	now     func() time.Time
}

func NewExecutionRepository(db *sql.DB, logger *slog.Logger, catalog *CatalogRepository, now func() time.Time) *ExecutionRepository {
	return &ExecutionRepository{
		db:      db,
		logger:  logger,
		catalog: catalog,
		now:     now,
	}
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
		ChainDepth:       req.ChainDepth,
		InputPayload:     maps.Clone(req.InputPayload),
		QueuedAt:         r.now(),
		Version:          1,
	}

	if execution.InputPayload == nil {
		execution.InputPayload = map[string]any{}
	}

	inputJSON, err := json.Marshal(execution.InputPayload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal input payload: %w", err)
	}

	query := `
		INSERT INTO executions (
			id, correlation_id, dedup_key, action_instance_id, area_id, activation_mode, status,
			attempt, chain_depth, input_payload, queued_at, version
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	_, err = r.db.ExecContext(ctx, query,
		execution.ID,
		execution.CorrelationID,
		nullString(execution.DedupKey),
		execution.ActionInstanceID,
		execution.AreaID,
		string(execution.ActivationMode),
		string(execution.Status),
		execution.Attempt,
		execution.ChainDepth,
		inputJSON,
		execution.QueuedAt,
		execution.Version,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation && req.DedupKey != "" {
			existingID := ""
			if existing, findErr := r.FindByDedupKey(ctx, req.DedupKey); findErr == nil {
				existingID = existing.ID
			}

			return nil, persistence.NewExecutionError("Create", existingID, persistence.ErrDuplicateDedupKey)
		}

		return nil, fmt.Errorf("failed to insert execution: %w", err)
	}

	return execution, nil
}

func (r *ExecutionRepository) MarkStarted(ctx context.Context, id string) (*models.Execution, error) {
	execution, err := r.mutate(ctx, "MarkStarted", id, func(e *models.Execution) error {
		return e.Start(r.now())
	})
	if err != nil && errors.Is(err, persistence.ErrExecutionAlreadyRunning) {
		r.logger.WarnContext(ctx, "execution already running", "executionId", id)
	}

	return execution, err
}

func (r *ExecutionRepository) ApplyResult(ctx context.Context, result models.ExecutionResult) (*models.Execution, error) {
	return r.mutate(ctx, "ApplyResult", result.ExecutionID, func(e *models.Execution) error {
		return e.Apply(result, r.now())
	})
}

func (r *ExecutionRepository) Cancel(ctx context.Context, id string, reason string) (*models.Execution, error) {
	return r.mutate(ctx, "Cancel", id, func(e *models.Execution) error {
		changed, err := e.Cancel(reason, r.now())
		if err != nil {
			return err
		}

		if !changed {
			return errSkipWrite
		}

		return nil
	})
}

// mutate loads the record, applies fn and writes it back if the version is unchanged. A lost
// race re-reads the row so the transition is evaluated against the winner's state.
func (r *ExecutionRepository) mutate(ctx context.Context, op, id string, fn func(*models.Execution) error) (*models.Execution, error) {
	for range casAttempts {
		execution, err := r.Get(ctx, id)
		if err != nil {
			return nil, persistence.NewExecutionError(op, id, err)
		}

		expected := execution.Version

		err = fn(execution)
		if errors.Is(err, errSkipWrite) {
			return execution, nil
		}

		if err != nil {
			return execution, persistence.NewExecutionError(op, id, err)
		}

		execution.Version = expected + 1

		updated, err := r.compareAndSwap(ctx, execution, expected)
		if err != nil {
			return nil, persistence.NewExecutionError(op, id, err)
		}

		if updated {
			return execution, nil
		}

		r.logger.DebugContext(ctx, "execution version changed, retrying", "executionId", id, "op", op)
	}

	return nil, persistence.NewExecutionError(op, id, persistence.ErrConcurrentUpdate)
}

func (r *ExecutionRepository) compareAndSwap(ctx context.Context, execution *models.Execution, expected int64) (bool, error) {
	outputJSON, err := marshalNullable(execution.OutputPayload)
	if err != nil {
		return false, fmt.Errorf("failed to marshal output payload: %w", err)
	}

	errorJSON, err := marshalNullable(execution.Error)
	if err != nil {
		return false, fmt.Errorf("failed to marshal error details: %w", err)
	}

	query := `
		UPDATE executions SET
			status = $3,
			attempt = $4,
			output_payload = $5,
			error_details = $6,
			started_at = $7,
			finished_at = $8,
			next_retry_at = $9,
			version = $10
		WHERE id = $1 AND version = $2
	`

	result, err := r.db.ExecContext(ctx, query,
		execution.ID,
		expected,
		string(execution.Status),
		execution.Attempt,
		outputJSON,
		errorJSON,
		execution.StartedAt,
		execution.FinishedAt,
		execution.NextRetryAt,
		execution.Version,
	)
	if err != nil {
		return false, fmt.Errorf("failed to update execution: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}

	return rows == 1, nil
}

func (r *ExecutionRepository) Get(ctx context.Context, id string) (*models.Execution, error) {
	query := `SELECT ` + executionColumns + ` FROM executions WHERE id = $1`

	execution, err := r.scanExecution(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewExecutionError("Get", id, persistence.ErrExecutionNotFound)
		}

		return nil, fmt.Errorf("failed to get execution: %w", err)
	}

	return execution, nil
}

func (r *ExecutionRepository) FindByDedupKey(ctx context.Context, dedupKey string) (*models.Execution, error) {
	if dedupKey == "" {
		return nil, persistence.NewExecutionError("FindByDedupKey", "", persistence.ErrExecutionNotFound)
	}

	query := `SELECT ` + executionColumns + ` FROM executions WHERE dedup_key = $1`

	execution, err := r.scanExecution(r.db.QueryRowContext(ctx, query, dedupKey))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewExecutionError("FindByDedupKey", "", persistence.ErrExecutionNotFound)
		}

		return nil, fmt.Errorf("failed to find execution by dedup key: %w", err)
	}

	return execution, nil
}

func (r *ExecutionRepository) ListQueued(ctx context.Context, limit int) ([]*models.Execution, error) {
	query := `SELECT ` + executionColumns + `
		FROM executions
		WHERE status = 'QUEUED'
		ORDER BY queued_at ASC
		LIMIT $1`

	return r.list(ctx, query, limitArg(limit))
}

// ListRetryReady returns RETRY rows whose nextRetryAt has passed, plus legacy rows without
// nextRetryAt whose start is older than staleBefore.
func (r *ExecutionRepository) ListRetryReady(ctx context.Context, now, staleBefore time.Time, limit int) ([]*models.Execution, error) {
	query := `SELECT ` + executionColumns + `
		FROM executions
		WHERE status = 'RETRY'
		  AND (
			(next_retry_at IS NOT NULL AND next_retry_at <= $1)
			OR (next_retry_at IS NULL AND (started_at IS NULL OR started_at < $2))
		  )
		ORDER BY queued_at ASC
		LIMIT $3`

	return r.list(ctx, query, now, staleBefore, limitArg(limit))
}

func (r *ExecutionRepository) ListTimedOut(ctx context.Context, startedBefore time.Time, limit int) ([]*models.Execution, error) {
	query := `SELECT ` + executionColumns + `
		FROM executions
		WHERE status = 'RUNNING' AND started_at < $1
		ORDER BY started_at ASC
		LIMIT $2`

	return r.list(ctx, query, startedBefore, limitArg(limit))
}

func (r *ExecutionRepository) ListByCorrelation(ctx context.Context, correlationID string) ([]*models.Execution, error) {
	query := `SELECT ` + executionColumns + `
		FROM executions
		WHERE correlation_id = $1
		ORDER BY queued_at ASC`

	return r.list(ctx, query, correlationID)
}

func (r *ExecutionRepository) CountByStatus(ctx context.Context) (map[models.ExecutionStatus]int, error) {
	counts := make(map[models.ExecutionStatus]int, len(models.ExecutionStatuses))
	for _, status := range models.ExecutionStatuses {
		counts[status] = 0
	}

	rows, err := r.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM executions GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("failed to count executions: %w", err)
	}

	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", closeErr)
		}
	}()

	for rows.Next() {
		var (
			status string
			count  int
		)

		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("failed to scan execution count: %w", err)
		}

		counts[models.ExecutionStatus(status)] = count
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating execution counts: %w", err)
	}

	return counts, nil
}

func (r *ExecutionRepository) list(ctx context.Context, query string, args ...any) ([]*models.Execution, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query executions: %w", err)
	}

	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", closeErr)
		}
	}()

	var executions []*models.Execution

	for rows.Next() {
		execution, err := r.scanExecution(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan execution: %w", err)
		}

		executions = append(executions, execution)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating executions: %w", err)
	}

	return executions, nil
}

func (r *ExecutionRepository) scanExecution(scanner interface{ Scan(dest ...any) error }) (*models.Execution, error) {
	var (
		execution                          models.Execution
		dedupKey                           sql.NullString
		activationMode, status             string
		inputJSON, outputJSON, errorJSON   []byte
		startedAt, finishedAt, nextRetryAt sql.NullTime
	)

	err := scanner.Scan(
		&execution.ID,
		&execution.CorrelationID,
		&dedupKey,
		&execution.ActionInstanceID,
		&execution.AreaID,
		&activationMode,
		&status,
		&execution.Attempt,
		&execution.ChainDepth,
		&inputJSON,
		&outputJSON,
		&errorJSON,
		&execution.QueuedAt,
		&startedAt,
		&finishedAt,
		&nextRetryAt,
		&execution.Version,
	)
	if err != nil {
		return nil, err
	}

	execution.DedupKey = dedupKey.String
	execution.ActivationMode = models.ActivationMode(activationMode)
	execution.Status = models.ExecutionStatus(status)
	execution.StartedAt = timePtr(startedAt)
	execution.FinishedAt = timePtr(finishedAt)
	execution.NextRetryAt = timePtr(nextRetryAt)

	if err := unmarshalMap(inputJSON, &execution.InputPayload); err != nil {
		return nil, fmt.Errorf("failed to unmarshal input payload: %w", err)
	}

	if err := unmarshalMap(outputJSON, &execution.OutputPayload); err != nil {
		return nil, fmt.Errorf("failed to unmarshal output payload: %w", err)
	}

	if err := unmarshalMap(errorJSON, &execution.Error); err != nil {
		return nil, fmt.Errorf("failed to unmarshal error details: %w", err)
	}

	return &execution, nil
}

// limitArg maps a non-positive limit to LIMIT NULL, which PostgreSQL treats as no limit.
func limitArg(limit int) any {
	if limit <= 0 {
		return nil
	}

	return limit
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}

	v := t.Time.UTC()

	return &v
}

// marshalNullable stores a nil map as SQL NULL rather than the JSON literal null.
func marshalNullable(m map[string]any) ([]byte, error) {
	if m == nil {
		return nil, nil
	}

	return json.Marshal(m)
}
