package redisstream

import (
	"testing"
	"time"

	"github.com/dukex/area/pkg/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCodec_FlatFields(t *testing.T) {
	envelope := events.Envelope{
		ExecutionID:      "exec-1",
		ActionInstanceID: "ai-1",
		AreaID:           "area-1",
		CorrelationID:    "corr-1",
		EventType:        events.EventTypeWebhook,
		Payload:          map[string]any{"title": "hello", "count": float64(3)},
		Source:           events.SourceWebhook,
		Timestamp:        time.Date(2026, 5, 4, 10, 0, 0, 123000000, time.UTC),
		Priority:         2,
		Metadata:         map[string]string{"provider": "github"},
	}

	values, err := encode(envelope)
	require.NoError(t, err)

	assert.Equal(t, "exec-1", values["executionId"])
	assert.Equal(t, "webhook", values["eventType"])
	assert.Equal(t, `{"count":3,"title":"hello"}`, values["payload"])
	assert.Equal(t, "2", values["priority"])

	decoded, err := decode(values)
	require.NoError(t, err)
	assert.Equal(t, envelope, decoded)
}

func TestCodec_NilPayloadEncodesEmptyObject(t *testing.T) {
	values, err := encode(events.Envelope{ExecutionID: "exec-1"})
	require.NoError(t, err)

	assert.Equal(t, "{}", values["payload"])
	assert.NotContains(t, values, "metadata")
}

func TestCodec_DecodeErrors(t *testing.T) {
	tests := []struct {
		name   string
		values map[string]any
	}{
		{name: "missing_execution_id", values: map[string]any{"payload": "{}"}},
		{name: "bad_payload", values: map[string]any{"executionId": "e", "payload": "{"}},
		{name: "bad_timestamp", values: map[string]any{"executionId": "e", "timestamp": "yesterday"}},
		{name: "bad_priority", values: map[string]any{"executionId": "e", "priority": "high"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := decode(tt.values)
			assert.Error(t, err)
		})
	}
}
