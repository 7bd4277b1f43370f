package logmessage

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/dukex/area/pkg/models"
	"github.com/dukex/area/pkg/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReaction_Handle(t *testing.T) {
	tests := []struct {
		name          string
		params        map[string]any
		expectedMsg   string
		expectedLevel string
	}{
		{
			name:          "default message dumps input",
			params:        map[string]any{},
			expectedMsg:   `{"title":"hello"}`,
			expectedLevel: "info",
		},
		{
			name:          "templated message",
			params:        map[string]any{"message": "got {{ .input.title }}", "level": "warn"},
			expectedMsg:   "got hello",
			expectedLevel: "warn",
		},
		{
			name:          "unknown level falls back to info",
			params:        map[string]any{"message": "plain", "level": "loud"},
			expectedMsg:   "plain",
			expectedLevel: "info",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer

			reaction := New(slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))

			result, err := reaction.Handle(context.Background(), protocol.Request{
				Input:     map[string]any{"title": "hello"},
				Params:    tt.params,
				Execution: &models.Execution{ID: "exec-1", CorrelationID: "corr-1"},
			})

			require.NoError(t, err)
			assert.Equal(t, tt.expectedMsg, result["message"])
			assert.Equal(t, tt.expectedLevel, result["level"])
			assert.Contains(t, buf.String(), `"executionId":"exec-1"`)
		})
	}
}

func TestReaction_Handle_BadTemplate(t *testing.T) {
	reaction := New(slog.Default())

	_, err := reaction.Handle(context.Background(), protocol.Request{
		Params: map[string]any{"message": "{{ .input"},
	})

	require.Error(t, err)
}
