// Package logmessage provides the log.message reaction, which writes a rendered message to the
// worker log.
package logmessage

import (
	"context"
	"log/slog"
	"strings"

	"github.com/dukex/area/pkg/faults"
	"github.com/dukex/area/pkg/protocol"
	"github.com/dukex/area/pkg/template"
)

const defaultMessage = "{{ json .input }}"

type Reaction struct {
	logger *slog.Logger
}

func New(logger *slog.Logger) *Reaction {
	return &Reaction{logger: logger.With("reaction", "log.message")}
}

func (r *Reaction) Key() protocol.Key {
	return protocol.NewKey("log", "message")
}

func (r *Reaction) Handle(ctx context.Context, req protocol.Request) (map[string]any, error) {
	message := req.StringParam("message")
	if message == "" {
		message = defaultMessage
	}

	rendered, err := template.RenderString(message, template.Data(req.Input, req.Params, req.Execution))
	if err != nil {
		return nil, faults.Validation("log.message", "failed to render message", err)
	}

	level := parseLevel(req.StringParam("level"))

	attrs := []any{}
	if req.Execution != nil {
		attrs = append(attrs, "executionId", req.Execution.ID, "correlationId", req.Execution.CorrelationID)
	}

	r.logger.Log(ctx, level, rendered, attrs...)

	return map[string]any{
		"logged":  true,
		"message": rendered,
		"level":   strings.ToLower(level.String()),
	}, nil
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
