package httprequest_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/dukex/area/pkg/faults"
	"github.com/dukex/area/pkg/models"
	"github.com/dukex/area/pkg/protocol"
	"github.com/dukex/area/pkg/reactions/httprequest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newReaction() *httprequest.Reaction {
	return httprequest.New(slog.New(slog.NewTextHandler(os.Stdout, nil)), nil)
}

func TestReaction_Key(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "http.request", newReaction().Key().String())
}

func TestReaction_Handle_Success(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		assert.Equal(t, http.MethodPost, request.Method)
		assert.Equal(t, "/issues/42", request.URL.Path)
		assert.Equal(t, "Bearer secret", request.Header.Get("Authorization"))
		assert.Equal(t, "exec-1", request.Header.Get("X-Execution"))

		body, err := io.ReadAll(request.Body)
		assert.NoError(t, err)
		assert.JSONEq(t, `{"title":"hello"}`, string(body))

		writer.Header().Set("Content-Type", "application/json")
		writer.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(writer).Encode(map[string]any{"id": 7})
	}))
	defer server.Close()

	result, err := newReaction().Handle(context.Background(), protocol.Request{
		Token: "secret",
		Input: map[string]any{"number": 42, "title": "hello"},
		Params: map[string]any{
			"url":    server.URL + "/issues/{{ .input.number }}",
			"method": "post",
			"body":   `{"title":"{{ .input.title }}"}`,
			"headers": map[string]any{
				"X-Execution": "{{ .execution.id }}",
			},
		},
		Execution: &models.Execution{ID: "exec-1"},
	})

	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, result["status_code"])
	assert.Equal(t, map[string]any{"id": float64(7)}, result["body"])
	assert.Equal(t, "application/json", result["headers"].(map[string]any)["Content-Type"])
}

func TestReaction_Handle_HostAndPath(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		assert.Equal(t, http.MethodGet, request.Method)
		assert.Equal(t, "/ping", request.URL.Path)
		_, _ = writer.Write([]byte("pong"))
	}))
	defer server.Close()

	result, err := newReaction().Handle(context.Background(), protocol.Request{
		Params: map[string]any{
			"host": strings.TrimPrefix(server.URL, "http://"),
			"path": "/ping",
		},
	})

	require.NoError(t, err)
	assert.Equal(t, "pong", result["body"])
}

func TestReaction_Handle_StatusClassification(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		status int
		kind   faults.Kind
	}{
		{"server error", http.StatusBadGateway, faults.KindTransient},
		{"rate limited", http.StatusTooManyRequests, faults.KindTransient},
		{"unauthorized", http.StatusUnauthorized, faults.KindAuth},
		{"forbidden", http.StatusForbidden, faults.KindAuth},
		{"not found", http.StatusNotFound, faults.KindNotFound},
		{"bad request", http.StatusBadRequest, faults.KindValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, _ *http.Request) {
				writer.WriteHeader(tt.status)
			}))
			defer server.Close()

			_, err := newReaction().Handle(context.Background(), protocol.Request{
				Params: map[string]any{"url": server.URL},
			})

			require.Error(t, err)
			assert.Equal(t, tt.kind, faults.KindOf(err))
		})
	}
}

func TestReaction_Handle_MissingHost(t *testing.T) {
	t.Parallel()

	_, err := newReaction().Handle(context.Background(), protocol.Request{Params: map[string]any{}})

	require.ErrorIs(t, err, httprequest.ErrHTTPRequestHostInvalid)
	assert.Equal(t, faults.KindValidation, faults.KindOf(err))
}

func TestReaction_Handle_ConnectionRefused(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	_, err := newReaction().Handle(context.Background(), protocol.Request{
		Params: map[string]any{"url": url},
	})

	require.Error(t, err)
	assert.Equal(t, faults.KindTransient, faults.KindOf(err))
}
