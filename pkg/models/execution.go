package models

import (
	"maps"
	"strings"
	"time"
)

type ExecutionStatus string

const (
	ExecutionStatusQueued   ExecutionStatus = "QUEUED"
	ExecutionStatusRunning  ExecutionStatus = "RUNNING"
	ExecutionStatusOK       ExecutionStatus = "OK"
	ExecutionStatusRetry    ExecutionStatus = "RETRY"
	ExecutionStatusFailed   ExecutionStatus = "FAILED"
	ExecutionStatusCanceled ExecutionStatus = "CANCELED"
)

// ExecutionStatuses lists every status in lifecycle order.
var ExecutionStatuses = []ExecutionStatus{
	ExecutionStatusQueued,
	ExecutionStatusRunning,
	ExecutionStatusOK,
	ExecutionStatusRetry,
	ExecutionStatusFailed,
	ExecutionStatusCanceled,
}

// IsTerminal reports whether no engine-driven transition leaves the status.
func (s ExecutionStatus) IsTerminal() bool {
	return s == ExecutionStatusOK || s == ExecutionStatusFailed || s == ExecutionStatusCanceled
}

func (s ExecutionStatus) IsValid() bool {
	for _, status := range ExecutionStatuses {
		if s == status {
			return true
		}
	}

	return false
}

// ActivationMode tells how an execution was started.
type ActivationMode string

const (
	ActivationModeWebhook ActivationMode = "WEBHOOK"
	ActivationModePoll    ActivationMode = "POLL"
	ActivationModeCron    ActivationMode = "CRON"
	ActivationModeManual  ActivationMode = "MANUAL"
	ActivationModeChain   ActivationMode = "CHAIN"
)

// EventType is the lower-case tag carried on the event bus.
func (m ActivationMode) EventType() string {
	return strings.ToLower(string(m))
}

// Execution is one attempt-tracked unit of work.
type Execution struct {
	ID               string          `json:"id"`
	CorrelationID    string          `json:"correlation_id"`
	DedupKey         string          `json:"dedup_key,omitempty"`
	ActionInstanceID string          `json:"action_instance_id"`
	AreaID           string          `json:"area_id"`
	ActivationMode   ActivationMode  `json:"activation_mode"`
	Status           ExecutionStatus `json:"status"`
	Attempt          int             `json:"attempt"`
	ChainDepth       int             `json:"chain_depth"`
	InputPayload     map[string]any  `json:"input_payload,omitempty"`
	OutputPayload    map[string]any  `json:"output_payload,omitempty"`
	Error            map[string]any  `json:"error,omitempty"`
	QueuedAt         time.Time       `json:"queued_at"`
	StartedAt        *time.Time      `json:"started_at,omitempty"`
	FinishedAt       *time.Time      `json:"finished_at,omitempty"`
	NextRetryAt      *time.Time      `json:"next_retry_at,omitempty"`
	Version          int64           `json:"version"`
}

// NewExecution is the input of the record store's create operation.
type NewExecution struct {
	ActionInstanceID string
	ActivationMode   ActivationMode
	InputPayload     map[string]any
	CorrelationID    string
	DedupKey         string
	ChainDepth       int
}

// Clone returns a deep enough copy for stores that must not share maps with callers.
func (e *Execution) Clone() *Execution {
	if e == nil {
		return nil
	}

	c := *e
	c.InputPayload = maps.Clone(e.InputPayload)
	c.OutputPayload = maps.Clone(e.OutputPayload)
	c.Error = maps.Clone(e.Error)
	c.StartedAt = cloneTime(e.StartedAt)
	c.FinishedAt = cloneTime(e.FinishedAt)
	c.NextRetryAt = cloneTime(e.NextRetryAt)

	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}

	v := *t

	return &v
}
