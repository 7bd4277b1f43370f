package worker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dukex/area/pkg/eventbus"
	"github.com/dukex/area/pkg/faults"
	"github.com/dukex/area/pkg/models"
	"github.com/dukex/area/pkg/otelhelper"
	"github.com/dukex/area/pkg/persistence"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// ProcessEvents reads one batch from the event bus and hands each entry to the reaction pool.
// Every entry is acknowledged once handled, or straight away when the pool refuses it; the queued
// sweep is the safety net for anything dropped that way.
func (s *Scheduler) ProcessEvents(ctx context.Context) error {
	entries, err := s.bus.Consume(ctx, s.cfg.ConsumerGroup, s.cfg.ConsumerName, s.cfg.BatchSize)
	if err != nil {
		return fmt.Errorf("failed to consume events: %w", err)
	}

	if len(entries) == 0 {
		return nil
	}

	s.logger.DebugContext(ctx, "Processing events", "count", len(entries))
	s.metrics.EventsProcessed.Add(float64(len(entries)))

	for _, entry := range entries {
		err := s.reactions.TrySubmit(func(taskCtx context.Context) {
			defer s.acknowledge(taskCtx, entry.ID)

			s.handleEntry(taskCtx, entry)
		})
		if err != nil {
			s.logger.WarnContext(ctx, "Event rejected by reaction pool",
				"entryId", entry.ID,
				"executionId", entry.Envelope.ExecutionID,
				"error", err,
			)
			s.acknowledge(ctx, entry.ID)
		}
	}

	return nil
}

func (s *Scheduler) acknowledge(ctx context.Context, entryID string) {
	if err := s.bus.Acknowledge(ctx, s.cfg.ConsumerGroup, entryID); err != nil {
		s.logger.ErrorContext(ctx, "Failed to acknowledge event", "entryId", entryID, "error", err)
	}
}

func (s *Scheduler) handleEntry(ctx context.Context, entry eventbus.Entry) {
	logger := s.logger.With("entryId", entry.ID, "executionId", entry.Envelope.ExecutionID)

	defer func() {
		if r := recover(); r != nil {
			logger.ErrorContext(ctx, "Panic while handling event", "panic", r)
		}
	}()

	execution, err := s.executions.Get(ctx, entry.Envelope.ExecutionID)
	if err != nil {
		if persistence.IsExecutionNotFound(err) {
			logger.WarnContext(ctx, "Execution not found for event")

			return
		}

		logger.ErrorContext(ctx, "Failed to load execution for event", "error", err)

		return
	}

	if execution.Status != models.ExecutionStatusQueued {
		logger.DebugContext(ctx, "Execution is not queued, ignoring event", "status", execution.Status)

		return
	}

	if !s.claim(execution.ID) {
		logger.DebugContext(ctx, "Execution already in flight")

		return
	}
	defer s.release(execution.ID)

	if err := s.ProcessExecution(ctx, execution); err != nil {
		logger.ErrorContext(ctx, "Failed to process execution", "error", err)
	}
}

// SweepQueued picks up QUEUED executions whose notification was lost or not yet consumed.
func (s *Scheduler) SweepQueued(ctx context.Context) error {
	queued, err := s.executions.ListQueued(ctx, s.cfg.SweepLimit)
	if err != nil {
		return fmt.Errorf("failed to list queued executions: %w", err)
	}

	if len(queued) == 0 {
		return nil
	}

	s.logger.InfoContext(ctx, "Processing queued executions", "count", len(queued))
	s.submitAll(ctx, queued)

	return nil
}

// SweepRetries picks up RETRY executions whose retry time has passed.
func (s *Scheduler) SweepRetries(ctx context.Context) error {
	now := s.now()

	ready, err := s.executions.ListRetryReady(ctx, now, now.Add(-s.cfg.RetryStaleAfter), s.cfg.SweepLimit)
	if err != nil {
		return fmt.Errorf("failed to list executions ready for retry: %w", err)
	}

	if len(ready) == 0 {
		return nil
	}

	s.logger.InfoContext(ctx, "Processing executions ready for retry", "count", len(ready))
	s.metrics.RetriesProcessed.Add(float64(len(ready)))
	s.submitAll(ctx, ready)

	return nil
}

func (s *Scheduler) submitAll(ctx context.Context, executions []*models.Execution) {
	for _, execution := range executions {
		if !s.claim(execution.ID) {
			continue
		}

		err := s.reactions.TrySubmit(func(taskCtx context.Context) {
			defer s.release(execution.ID)

			if err := s.ProcessExecution(taskCtx, execution); err != nil {
				s.logger.ErrorContext(taskCtx, "Failed to process execution", "executionId", execution.ID, "error", err)
			}
		})
		if err != nil {
			s.release(execution.ID)
			s.logger.WarnContext(ctx, "Execution rejected by reaction pool, will retry on next sweep",
				"executionId", execution.ID,
				"error", err,
			)

			if errors.Is(err, ErrPoolFull) || errors.Is(err, ErrPoolClosed) {
				return
			}
		}
	}
}

// SweepTimeouts fails RUNNING executions that started longer ago than the execution timeout.
// Their reactions are not dispatched again.
func (s *Scheduler) SweepTimeouts(ctx context.Context) error {
	now := s.now()

	timedOut, err := s.executions.ListTimedOut(ctx, now.Add(-s.cfg.ExecutionTimeout), s.cfg.SweepLimit)
	if err != nil {
		return fmt.Errorf("failed to list timed out executions: %w", err)
	}

	if len(timedOut) == 0 {
		return nil
	}

	s.logger.WarnContext(ctx, "Found timed out executions, marking as failed", "count", len(timedOut))

	for _, execution := range timedOut {
		var startedAt time.Time
		if execution.StartedAt != nil {
			startedAt = *execution.StartedAt
		}

		result := models.Failure(execution.ID, map[string]any{
			"reason":    "timeout",
			"timeoutAt": now.Format(time.RFC3339),
			"message":   "Execution timed out",
		}, startedAt, nil)
		result.FinishedAt = now

		if _, err := s.executions.ApplyResult(ctx, result); err != nil {
			if persistence.IsIllegalTransition(err) || persistence.IsConcurrentUpdate(err) {
				s.logger.DebugContext(ctx, "Timed out execution changed concurrently", "executionId", execution.ID)

				continue
			}

			s.logger.ErrorContext(ctx, "Failed to mark execution as timed out", "executionId", execution.ID, "error", err)

			continue
		}

		s.metrics.TimeoutsCleaned.Inc()
		s.logger.InfoContext(ctx, "Marked timed out execution as failed", "executionId", execution.ID)
	}

	return nil
}

// Statistics counts executions per status, keyed by the lower-case status name.
func (s *Scheduler) Statistics(ctx context.Context) (map[string]int, error) {
	return CountStatuses(ctx, s.executions)
}

// CountStatuses reports every status, including those with no execution.
func CountStatuses(ctx context.Context, executions persistence.ExecutionRepository) (map[string]int, error) {
	counts, err := executions.CountByStatus(ctx)
	if err != nil {
		return nil, err
	}

	stats := make(map[string]int, len(models.ExecutionStatuses))
	for _, status := range models.ExecutionStatuses {
		stats[strings.ToLower(string(status))] = counts[status]
	}

	return stats, nil
}

func (s *Scheduler) LogStatistics(ctx context.Context) error {
	stats, err := s.Statistics(ctx)
	if err != nil {
		s.logger.WarnContext(ctx, "Failed to log statistics", "error", err)

		return nil
	}

	s.logger.InfoContext(ctx, "Execution statistics",
		"queued", stats["queued"],
		"running", stats["running"],
		"ok", stats["ok"],
		"retry", stats["retry"],
		"failed", stats["failed"],
		"canceled", stats["canceled"],
	)

	return nil
}

// ProcessExecution runs one QUEUED or RETRY execution to its next state. Losing the race to start
// it is not an error. Anything that goes wrong after it started, panics included, leaves it FAILED
// with a worker error.
func (s *Scheduler) ProcessExecution(ctx context.Context, execution *models.Execution) (err error) {
	ctx, span := otelhelper.StartSpan(ctx, s.tracer, "worker.process_execution",
		append(otelhelper.ExecutionAttributes(execution), attribute.String(otelhelper.WorkerIDKey, s.cfg.ConsumerName))...)
	defer span.End()

	logger := s.logger.With("executionId", execution.ID, "actionInstanceId", execution.ActionInstanceID)

	started, err := s.executions.MarkStarted(ctx, execution.ID)
	if err != nil {
		if errors.Is(err, persistence.ErrExecutionAlreadyRunning) ||
			persistence.IsIllegalTransition(err) ||
			persistence.IsConcurrentUpdate(err) {
			logger.DebugContext(ctx, "Execution claimed elsewhere, skipping", "reason", err)

			return nil
		}

		otelhelper.SetError(span, err)

		return fmt.Errorf("failed to mark execution %s as started: %w", execution.ID, err)
	}

	s.metrics.ExecutionsProcessed.Inc()
	logger.InfoContext(ctx, "Processing execution", "attempt", started.Attempt)

	defer func() {
		if r := recover(); r != nil {
			err = s.failExecution(ctx, started, fmt.Errorf("panic: %v", r))
			otelhelper.SetError(span, err)
		}
	}()

	result := s.executor.Execute(ctx, started)

	updated, err := s.executions.ApplyResult(ctx, result)
	if err != nil {
		if current, ok := s.closedElsewhere(ctx, execution.ID, err); ok {
			logger.InfoContext(ctx, "Execution closed while running, result dropped",
				"status", current.Status,
				"resultStatus", result.Status,
			)
			span.SetAttributes(attribute.String(otelhelper.StatusKey, string(current.Status)))

			return nil
		}

		otelhelper.SetError(span, err)

		return s.failExecution(ctx, started, err)
	}

	span.SetAttributes(attribute.String(otelhelper.StatusKey, string(updated.Status)))

	logger.InfoContext(ctx, "Completed execution", "status", updated.Status, "durationMs", result.DurationMs)

	if updated.Status != models.ExecutionStatusOK {
		s.metrics.ExecutionsFailed.Inc()
		span.SetStatus(codes.Error, string(updated.Status))

		return nil
	}

	s.metrics.ExecutionsSuccessful.Inc()

	if s.successor != nil {
		s.successor.OnExecutionSucceeded(ctx, updated)
	}

	return nil
}

// failExecution stores a FAILED result describing a worker-side error. It returns the original
// error, joined with the store error if recording it failed too.
func (s *Scheduler) failExecution(ctx context.Context, execution *models.Execution, cause error) error {
	var startedAt time.Time
	if execution.StartedAt != nil {
		startedAt = *execution.StartedAt
	}

	now := s.now()
	result := models.Failure(execution.ID, map[string]any{
		"workerError": faults.Name(cause),
		"message":     "Worker processing error: " + cause.Error(),
		"timestamp":   now.Format(time.RFC3339),
	}, startedAt, nil)
	result.FinishedAt = now

	if _, err := s.executions.ApplyResult(ctx, result); err != nil {
		if current, ok := s.closedElsewhere(ctx, execution.ID, err); ok {
			s.logger.InfoContext(ctx, "Execution closed while running, worker error dropped",
				"executionId", execution.ID,
				"status", current.Status,
				"cause", cause,
			)

			return cause
		}

		s.metrics.ExecutionsFailed.Inc()
		s.logger.ErrorContext(ctx, "Failed to update execution after processing error",
			"executionId", execution.ID,
			"error", err,
		)

		return errors.Join(cause, err)
	}

	s.metrics.ExecutionsFailed.Inc()

	return cause
}

// closedElsewhere reports whether a rejected write hit an execution that a cancel or the timeout
// sweep already closed.
func (s *Scheduler) closedElsewhere(ctx context.Context, id string, err error) (*models.Execution, bool) {
	if !persistence.IsIllegalTransition(err) && !persistence.IsConcurrentUpdate(err) {
		return nil, false
	}

	current, getErr := s.executions.Get(ctx, id)
	if getErr != nil || !current.Status.IsTerminal() {
		return nil, false
	}

	return current, true
}
