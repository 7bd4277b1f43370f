package models

import (
	"errors"
	"fmt"
	"time"

	"github.com/qmuntal/stateless"
)

var (
	// ErrIllegalTransition is returned when a status change is not allowed from the current status.
	ErrIllegalTransition = errors.New("illegal execution transition")

	// ErrAlreadyRunning is returned by Start on a RUNNING execution.
	ErrAlreadyRunning = errors.New("execution already running")
)

// LifecycleTrigger names an event of the execution state machine.
type LifecycleTrigger string

const (
	TriggerStart   LifecycleTrigger = "start"
	TriggerSucceed LifecycleTrigger = "succeed"
	TriggerRetry   LifecycleTrigger = "retry"
	TriggerFail    LifecycleTrigger = "fail"
	TriggerCancel  LifecycleTrigger = "cancel"
)

func newLifecycle(current ExecutionStatus) *stateless.StateMachine {
	sm := stateless.NewStateMachine(current)

	sm.Configure(ExecutionStatusQueued).
		Permit(TriggerStart, ExecutionStatusRunning).
		Permit(TriggerFail, ExecutionStatusFailed).
		Permit(TriggerCancel, ExecutionStatusCanceled)

	sm.Configure(ExecutionStatusRetry).
		Permit(TriggerStart, ExecutionStatusRunning).
		Permit(TriggerFail, ExecutionStatusFailed).
		Permit(TriggerCancel, ExecutionStatusCanceled)

	sm.Configure(ExecutionStatusRunning).
		Permit(TriggerSucceed, ExecutionStatusOK).
		Permit(TriggerRetry, ExecutionStatusRetry).
		Permit(TriggerFail, ExecutionStatusFailed).
		Permit(TriggerCancel, ExecutionStatusCanceled)

	// OK, FAILED and CANCELED accept no trigger.
	sm.Configure(ExecutionStatusOK)
	sm.Configure(ExecutionStatusFailed)
	sm.Configure(ExecutionStatusCanceled)

	return sm
}

// NextStatus returns the status reached by firing trigger from current.
func NextStatus(current ExecutionStatus, trigger LifecycleTrigger) (ExecutionStatus, error) {
	sm := newLifecycle(current)

	if err := sm.Fire(trigger); err != nil {
		return current, fmt.Errorf("%w: %s from %s", ErrIllegalTransition, trigger, current)
	}

	next, ok := sm.MustState().(ExecutionStatus)
	if !ok {
		return current, fmt.Errorf("%w: unexpected state %v", ErrIllegalTransition, sm.MustState())
	}

	return next, nil
}

// Start moves a QUEUED or RETRY execution to RUNNING. Leaving RETRY counts one more attempt.
func (e *Execution) Start(now time.Time) error {
	if e.Status == ExecutionStatusRunning {
		return ErrAlreadyRunning
	}

	next, err := NextStatus(e.Status, TriggerStart)
	if err != nil {
		return err
	}

	if e.Status == ExecutionStatusRetry {
		e.Attempt++
	}

	e.Status = next
	e.StartedAt = &now
	e.NextRetryAt = nil
	e.FinishedAt = nil

	return nil
}

// Apply records a dispatch outcome. A RETRY result without a retry time is stored as FAILED.
func (e *Execution) Apply(result ExecutionResult, now time.Time) error {
	status := result.Status
	if status == ExecutionStatusRetry && result.NextRetryAt == nil {
		status = ExecutionStatusFailed
	}

	var trigger LifecycleTrigger

	switch status {
	case ExecutionStatusOK:
		trigger = TriggerSucceed
	case ExecutionStatusRetry:
		trigger = TriggerRetry
	case ExecutionStatusFailed:
		trigger = TriggerFail
	default:
		return fmt.Errorf("%w: result status %s", ErrIllegalTransition, result.Status)
	}

	next, err := NextStatus(e.Status, trigger)
	if err != nil {
		return err
	}

	finishedAt := now
	if !result.FinishedAt.IsZero() {
		finishedAt = result.FinishedAt
	}

	e.Status = next

	switch next {
	case ExecutionStatusOK:
		e.OutputPayload = result.OutputPayload
		if e.OutputPayload == nil {
			e.OutputPayload = map[string]any{}
		}

		e.Error = nil
		e.NextRetryAt = nil
		e.FinishedAt = &finishedAt
	case ExecutionStatusRetry:
		retryAt := *result.NextRetryAt
		e.Error = result.Error
		e.NextRetryAt = &retryAt
		e.FinishedAt = nil
	default:
		e.Error = result.Error
		e.NextRetryAt = nil
		e.FinishedAt = &finishedAt
	}

	return nil
}

// Cancel moves a non-terminal execution to CANCELED. It reports false when the execution
// was already canceled, in which case nothing changes.
func (e *Execution) Cancel(reason string, now time.Time) (bool, error) {
	if e.Status == ExecutionStatusCanceled {
		return false, nil
	}

	next, err := NextStatus(e.Status, TriggerCancel)
	if err != nil {
		return false, err
	}

	e.Status = next
	e.FinishedAt = &now
	e.NextRetryAt = nil
	e.Error = map[string]any{
		"reason":     reason,
		"canceledAt": now.UTC().Format(time.RFC3339),
	}

	return true, nil
}
