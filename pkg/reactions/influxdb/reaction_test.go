package influxdb_test

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/dukex/area/pkg/faults"
	"github.com/dukex/area/pkg/models"
	"github.com/dukex/area/pkg/protocol"
	"github.com/dukex/area/pkg/reactions/influxdb"
	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReaction_Handle(t *testing.T) {
	t.Parallel()

	lines := make(chan string, 1)

	server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		assert.Equal(t, "/api/v2/write", request.URL.Path)
		assert.Equal(t, "area", request.URL.Query().Get("org"))
		assert.Equal(t, "metrics", request.URL.Query().Get("bucket"))

		body, err := io.ReadAll(request.Body)
		assert.NoError(t, err)

		lines <- string(body)

		writer.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	client := influxdb2.NewClient(server.URL, "token")
	defer client.Close()

	reaction := influxdb.New(client, "area", "metrics", slog.Default())

	result, err := reaction.Handle(context.Background(), protocol.Request{
		Input: map[string]any{"temperature": 21.5, "room": "kitchen", "nested": map[string]any{"x": 1}},
		Params: map[string]any{
			"measurement": "climate",
			"tags":        map[string]any{"room": "{{ .input.room }}"},
		},
		Execution: &models.Execution{ID: "exec-1", AreaID: "area-1"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"room", "temperature"}, result["fields"])

	line := <-lines
	assert.True(t, strings.HasPrefix(line, "climate,area_id=area-1,room=kitchen "), line)
	assert.Contains(t, line, "temperature=21.5")
	assert.NotContains(t, line, "nested")
}

func TestReaction_Handle_ExplicitFields(t *testing.T) {
	t.Parallel()

	lines := make(chan string, 1)

	server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		body, _ := io.ReadAll(request.Body)
		lines <- string(body)

		writer.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	client := influxdb2.NewClient(server.URL, "token")
	defer client.Close()

	reaction := influxdb.New(client, "area", "default", slog.Default())

	_, err := reaction.Handle(context.Background(), protocol.Request{
		Input: map[string]any{"count": 4},
		Params: map[string]any{
			"measurement": "runs",
			"bucket":      "custom",
			"fields":      map[string]any{"doubled": "{{ .input.count }}{{ .input.count }}", "ok": true},
		},
	})
	require.NoError(t, err)

	line := <-lines
	assert.Contains(t, line, "doubled=44")
	assert.Contains(t, line, "ok=true")
}

func TestReaction_Handle_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		status int
		kind   faults.Kind
	}{
		{"unauthorized", http.StatusUnauthorized, faults.KindAuth},
		{"bucket missing", http.StatusNotFound, faults.KindNotFound},
		{"bad line protocol", http.StatusBadRequest, faults.KindValidation},
		{"unavailable", http.StatusServiceUnavailable, faults.KindTransient},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, _ *http.Request) {
				writer.Header().Set("Content-Type", "application/json")
				writer.WriteHeader(tt.status)
				_, _ = writer.Write([]byte(`{"code":"error","message":"rejected"}`))
			}))
			defer server.Close()

			client := influxdb2.NewClientWithOptions(server.URL, "token", influxdb2.DefaultOptions().SetMaxRetries(0))
			defer client.Close()

			reaction := influxdb.New(client, "area", "metrics", slog.Default())

			_, err := reaction.Handle(context.Background(), protocol.Request{
				Input:  map[string]any{"value": 1},
				Params: map[string]any{"measurement": "m"},
			})

			require.Error(t, err)
			assert.Equal(t, tt.kind, faults.KindOf(err))
		})
	}
}

func TestReaction_Handle_Validation(t *testing.T) {
	t.Parallel()

	reaction := influxdb.New(influxdb2.NewClient("http://localhost:1", "token"), "", "", slog.Default())

	_, err := reaction.Handle(context.Background(), protocol.Request{Params: map[string]any{}})
	require.ErrorIs(t, err, influxdb.ErrMissingMeasurement)

	_, err = reaction.Handle(context.Background(), protocol.Request{Params: map[string]any{"measurement": "m"}})
	require.ErrorIs(t, err, influxdb.ErrMissingBucket)
}
