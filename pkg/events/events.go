// Package events defines the envelope handed from the trigger path to workers.
package events

import (
	"errors"
	"strings"
	"time"

	"github.com/dukex/area/pkg/models"
)

type EventType string

// Stream and topic names.
const (
	StreamKey     = "areas:events"    // Redis stream carrying execution notifications
	ConsumerGroup = "area-processors" // Consumer group shared by every worker
	Topic         = "area.events"     // Topic used by the watermill transports
)

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	EventTypeWebhook  EventType = "webhook"
	EventTypePoll     EventType = "poll"
	EventTypeCron     EventType = "cron"
	EventTypeManual   EventType = "manual"
	EventTypeChain    EventType = "chain"
	EventTypeReaction EventType = "reaction"
)

// Sources recorded on the envelope.
const (
	SourceWebhook   = "webhook"
	SourcePoller    = "poller"
	SourceScheduler = "scheduler"
	SourceAPI       = "api"
	SourceManual    = "manual_trigger"
	SourceChain     = "chain"
	SourceWorker    = "worker"
)

var (
	ErrMissingExecutionID      = errors.New("execution_id is required")
	ErrMissingActionInstanceID = errors.New("action_instance_id is required")
	ErrMissingEventType        = errors.New("event_type is required")
)

// Envelope tells workers that an execution is ready.
type Envelope struct {
	ExecutionID      string            `json:"executionId"`
	ActionInstanceID string            `json:"actionInstanceId"`
	AreaID           string            `json:"areaId"`
	CorrelationID    string            `json:"correlationId"`
	EventType        EventType         `json:"eventType"`
	Payload          map[string]any    `json:"payload"`
	Source           string            `json:"source"`
	Timestamp        time.Time         `json:"timestamp"`
	Priority         int               `json:"priority"` // 0 = normal, higher = more priority
	Metadata         map[string]string `json:"metadata,omitempty"`
}

func (e Envelope) GetType() EventType {
	return e.EventType
}

func (e Envelope) Validate() error {
	if e.ExecutionID == "" {
		return ErrMissingExecutionID
	}

	if e.ActionInstanceID == "" {
		return ErrMissingActionInstanceID
	}

	if e.EventType == "" {
		return ErrMissingEventType
	}

	return nil
}

// ForActivation builds the envelope published when an execution is created.
func ForActivation(execution *models.Execution, source string) Envelope {
	return Envelope{
		ExecutionID:      execution.ID,
		ActionInstanceID: execution.ActionInstanceID,
		AreaID:           execution.AreaID,
		CorrelationID:    execution.CorrelationID,
		EventType:        EventType(execution.ActivationMode.EventType()),
		Payload:          execution.InputPayload,
		Source:           source,
		Timestamp:        time.Now().UTC(),
	}
}

// FromExecution builds a worker-originated reaction envelope.
func FromExecution(executionID, actionInstanceID, areaID string, payload map[string]any) Envelope {
	return Envelope{
		ExecutionID:      executionID,
		ActionInstanceID: actionInstanceID,
		AreaID:           areaID,
		EventType:        EventTypeReaction,
		Payload:          payload,
		Source:           SourceWorker,
		Timestamp:        time.Now().UTC(),
	}
}

// ParseEventType maps a wire value to an event type, case-insensitively.
func ParseEventType(value string) (EventType, bool) {
	switch t := EventType(strings.ToLower(value)); t {
	case EventTypeWebhook, EventTypePoll, EventTypeCron, EventTypeManual, EventTypeChain, EventTypeReaction:
		return t, true
	default:
		return "", false
	}
}
