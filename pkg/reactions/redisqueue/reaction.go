// Package redisqueue provides the redis.lpush reaction, which pushes a message onto a Redis list.
package redisqueue

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/dukex/area/pkg/faults"
	"github.com/dukex/area/pkg/protocol"
	"github.com/dukex/area/pkg/template"
	redis "github.com/redis/go-redis/v9"
)

var ErrMissingQueue = errors.New("missing queue name")

type Reaction struct {
	client redis.UniversalClient
	logger *slog.Logger
}

func New(client redis.UniversalClient, logger *slog.Logger) *Reaction {
	return &Reaction{
		client: client,
		logger: logger.With("reaction", "redis.lpush"),
	}
}

func (r *Reaction) Key() protocol.Key {
	return protocol.NewKey("redis", "lpush")
}

// Handle pushes the rendered "message" param onto the "queue" list. Without a message the input
// is pushed as JSON.
func (r *Reaction) Handle(ctx context.Context, req protocol.Request) (map[string]any, error) {
	const op = "redis.lpush"

	queue := req.StringParam("queue")
	if queue == "" {
		return nil, faults.Validation(op, "queue param is required", ErrMissingQueue)
	}

	message, err := buildMessage(req)
	if err != nil {
		return nil, faults.Validation(op, "failed to build message", err)
	}

	length, err := r.client.LPush(ctx, queue, message).Result()
	if err != nil {
		return nil, faults.Transient(op, "failed to push message", err)
	}

	r.logger.DebugContext(ctx, "pushed message", "queue", queue, "length", length)

	return map[string]any{
		"queue":  queue,
		"length": length,
	}, nil
}

func buildMessage(req protocol.Request) (string, error) {
	if tmpl := req.StringParam("message"); tmpl != "" {
		return template.RenderString(tmpl, template.Data(req.Input, req.Params, req.Execution))
	}

	input := req.Input
	if input == nil {
		input = map[string]any{}
	}

	encoded, err := json.Marshal(input)
	if err != nil {
		return "", err
	}

	return string(encoded), nil
}
