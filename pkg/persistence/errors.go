// Package persistence provides standardized error types for persistence operations.
package persistence

import (
	"errors"
	"fmt"

	"github.com/dukex/area/pkg/faults"
	"github.com/dukex/area/pkg/models"
)

// Standard persistence error types that all implementations should use.
var (
	// ErrExecutionNotFound indicates an execution was not found by the given identifier.
	ErrExecutionNotFound error = faults.NotFound("persistence", "execution not found", nil)

	// ErrActionInstanceNotFound indicates an action instance was not found by the given identifier.
	ErrActionInstanceNotFound error = faults.NotFound("persistence", "action instance not found", nil)

	// ErrActionDefinitionNotFound indicates an instance references a missing action definition.
	ErrActionDefinitionNotFound error = faults.NotFound("persistence", "action definition not found", nil)

	// ErrAreaNotFound indicates an area was not found by the given identifier.
	ErrAreaNotFound error = faults.NotFound("persistence", "area not found", nil)

	// ErrDuplicateDedupKey indicates another execution already carries the dedup key.
	ErrDuplicateDedupKey = errors.New("duplicate dedup key")

	// ErrConcurrentUpdate indicates the record changed between read and write.
	ErrConcurrentUpdate = errors.New("execution modified concurrently")

	// ErrExecutionAlreadyRunning is returned by MarkStarted for a RUNNING execution.
	ErrExecutionAlreadyRunning = models.ErrAlreadyRunning

	// ErrIllegalTransition is returned when a transition is not allowed from the current status.
	ErrIllegalTransition = models.ErrIllegalTransition
)

// ExecutionError wraps execution-related errors with additional context.
type ExecutionError struct {
	Op          string // Operation being performed (e.g., "MarkStarted", "ApplyResult")
	ExecutionID string
	Err         error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("%s operation failed for execution %s: %v", e.Op, e.ExecutionID, e.Err)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

// Is implements error comparison for execution errors.
func (e *ExecutionError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

func NewExecutionError(op, executionID string, err error) *ExecutionError {
	return &ExecutionError{
		Op:          op,
		ExecutionID: executionID,
		Err:         err,
	}
}

// CatalogError wraps errors raised while reading areas, instances and links.
type CatalogError struct {
	Op     string
	Entity string
	ID     string
	Err    error
}

func (e *CatalogError) Error() string {
	return fmt.Sprintf("%s operation failed for %s %s: %v", e.Op, e.Entity, e.ID, e.Err)
}

func (e *CatalogError) Unwrap() error {
	return e.Err
}

func (e *CatalogError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

func NewCatalogError(op, entity, id string, err error) *CatalogError {
	return &CatalogError{Op: op, Entity: entity, ID: id, Err: err}
}

// IsExecutionNotFound checks if an error indicates an execution was not found.
func IsExecutionNotFound(err error) bool {
	return errors.Is(err, ErrExecutionNotFound)
}

// IsActionInstanceNotFound checks if an error indicates an action instance was not found.
func IsActionInstanceNotFound(err error) bool {
	return errors.Is(err, ErrActionInstanceNotFound)
}

// IsAreaNotFound checks if an error indicates an area was not found.
func IsAreaNotFound(err error) bool {
	return errors.Is(err, ErrAreaNotFound)
}

// IsIllegalTransition checks if an error indicates a rejected status change.
func IsIllegalTransition(err error) bool {
	return errors.Is(err, ErrIllegalTransition)
}

// IsConcurrentUpdate checks if an error indicates a lost compare-and-swap.
func IsConcurrentUpdate(err error) bool {
	return errors.Is(err, ErrConcurrentUpdate)
}
