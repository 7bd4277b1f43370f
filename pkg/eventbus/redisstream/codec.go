package redisstream

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/dukex/area/pkg/events"
)

// Stream field names. Payload and metadata are JSON encoded; everything else is a plain string.
const (
	fieldExecutionID      = "executionId"
	fieldActionInstanceID = "actionInstanceId"
	fieldAreaID           = "areaId"
	fieldCorrelationID    = "correlationId"
	fieldEventType        = "eventType"
	fieldPayload          = "payload"
	fieldSource           = "source"
	fieldTimestamp        = "timestamp"
	fieldPriority         = "priority"
	fieldMetadata         = "metadata"
)

var errMissingField = errors.New("missing stream field")

func encode(envelope events.Envelope) (map[string]any, error) {
	payload := envelope.Payload
	if payload == nil {
		payload = map[string]any{}
	}

	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}

	values := map[string]any{
		fieldExecutionID:      envelope.ExecutionID,
		fieldActionInstanceID: envelope.ActionInstanceID,
		fieldAreaID:           envelope.AreaID,
		fieldCorrelationID:    envelope.CorrelationID,
		fieldEventType:        string(envelope.EventType),
		fieldPayload:          string(payloadJSON),
		fieldSource:           envelope.Source,
		fieldTimestamp:        envelope.Timestamp.UTC().Format(time.RFC3339Nano),
		fieldPriority:         strconv.Itoa(envelope.Priority),
	}

	if len(envelope.Metadata) > 0 {
		metadataJSON, err := json.Marshal(envelope.Metadata)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal metadata: %w", err)
		}

		values[fieldMetadata] = string(metadataJSON)
	}

	return values, nil
}

func decode(values map[string]any) (events.Envelope, error) {
	str := func(key string) string {
		v, _ := values[key].(string)

		return v
	}

	envelope := events.Envelope{
		ExecutionID:      str(fieldExecutionID),
		ActionInstanceID: str(fieldActionInstanceID),
		AreaID:           str(fieldAreaID),
		CorrelationID:    str(fieldCorrelationID),
		EventType:        events.EventType(str(fieldEventType)),
		Source:           str(fieldSource),
	}

	if envelope.ExecutionID == "" {
		return envelope, fmt.Errorf("%w: %s", errMissingField, fieldExecutionID)
	}

	if raw := str(fieldPayload); raw != "" {
		if err := json.Unmarshal([]byte(raw), &envelope.Payload); err != nil {
			return envelope, fmt.Errorf("failed to unmarshal payload: %w", err)
		}
	}

	if raw := str(fieldMetadata); raw != "" {
		if err := json.Unmarshal([]byte(raw), &envelope.Metadata); err != nil {
			return envelope, fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
	}

	if raw := str(fieldTimestamp); raw != "" {
		ts, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return envelope, fmt.Errorf("invalid timestamp: %w", err)
		}

		envelope.Timestamp = ts
	}

	if raw := str(fieldPriority); raw != "" {
		priority, err := strconv.Atoi(raw)
		if err != nil {
			return envelope, fmt.Errorf("invalid priority: %w", err)
		}

		envelope.Priority = priority
	}

	return envelope, nil
}
