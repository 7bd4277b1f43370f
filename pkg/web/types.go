// Package web provides the HTTP API used by operators and external triggers.
package web

import "github.com/dukex/area/pkg/models"

// TriggerRequest is the body of a manual activation.
type TriggerRequest struct {
	Input         map[string]any `json:"input"`
	CorrelationID string         `json:"correlationId,omitempty" validate:"omitempty,max=128"`
	DedupKey      string         `json:"dedupKey,omitempty"      validate:"omitempty,max=255"`
	Provider      string         `json:"provider,omitempty"      validate:"omitempty,max=64"`
	Priority      int            `json:"priority,omitempty"      validate:"gte=0,lte=10"`
}

// TriggerResponse describes what an activation produced.
type TriggerResponse struct {
	Status    string            `json:"status"`
	Execution *models.Execution `json:"execution,omitempty"`
	// Warning carries a publish failure for an execution that was stored anyway.
	Warning string `json:"warning,omitempty"`
}

const (
	TriggerStatusQueued    = "queued"
	TriggerStatusDuplicate = "duplicate"
	TriggerStatusFannedOut = "fanned_out"
)

// TestEventRequest is read from the query string of the test-event endpoint.
type TestEventRequest struct {
	ActionInstanceID string `query:"actionInstanceId" validate:"required"`
	AreaID           string `query:"areaId"           validate:"required"`
}

type CancelResponse struct {
	Status      string `json:"status"`
	ExecutionID string `json:"executionId"`
	Reason      string `json:"reason"`
}

type TestEventResponse struct {
	Status           string `json:"status"`
	EventID          string `json:"eventId"`
	ExecutionID      string `json:"executionId"`
	ActionInstanceID string `json:"actionInstanceId"`
	AreaID           string `json:"areaId"`
}
