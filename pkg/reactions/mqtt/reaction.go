// Package mqtt provides the mqtt.publish reaction.
package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/area/pkg/faults"
	"github.com/dukex/area/pkg/protocol"
	"github.com/dukex/area/pkg/template"
	pahomqtt "github.com/eclipse/paho.mqtt.golang"
)

const (
	defaultConnectTimeout = 10 * time.Second
	defaultPublishTimeout = 5 * time.Second
	defaultKeepAlive      = 60 * time.Second
	maxQoS                = 2
)

var (
	ErrMissingTopic   = errors.New("missing topic")
	ErrInvalidQoS     = errors.New("invalid qos")
	ErrConnectTimeout = errors.New("mqtt connect timeout")
	ErrPublishTimeout = errors.New("mqtt publish timeout")
)

type Reaction struct {
	client  pahomqtt.Client
	logger  *slog.Logger
	timeout time.Duration
}

// Connect dials brokerURL (tcp://host:port) and waits for the session.
func Connect(brokerURL, clientID string) (pahomqtt.Client, error) {
	opts := pahomqtt.NewClientOptions()
	opts.AddBroker(brokerURL)
	opts.SetClientID(clientID)
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectTimeout(defaultConnectTimeout)
	opts.SetKeepAlive(defaultKeepAlive)

	client := pahomqtt.NewClient(opts)

	token := client.Connect()
	if !token.WaitTimeout(defaultConnectTimeout) {
		return nil, fmt.Errorf("%w: %s", ErrConnectTimeout, brokerURL)
	}

	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("failed to connect to mqtt broker %s: %w", brokerURL, err)
	}

	return client, nil
}

func New(client pahomqtt.Client, logger *slog.Logger) *Reaction {
	return &Reaction{
		client:  client,
		logger:  logger.With("reaction", "mqtt.publish"),
		timeout: defaultPublishTimeout,
	}
}

func (r *Reaction) Key() protocol.Key {
	return protocol.NewKey("mqtt", "publish")
}

// Handle publishes to the rendered "topic" param with optional "qos" and "retained" params.
func (r *Reaction) Handle(ctx context.Context, req protocol.Request) (map[string]any, error) {
	const op = "mqtt.publish"

	data := template.Data(req.Input, req.Params, req.Execution)

	topic := req.StringParam("topic")
	if topic == "" {
		return nil, faults.Validation(op, "topic param is required", ErrMissingTopic)
	}

	topic, err := template.RenderString(topic, data)
	if err != nil {
		return nil, faults.Validation(op, "failed to render topic", err)
	}

	qos, err := qosParam(req)
	if err != nil {
		return nil, faults.Validation(op, "bad qos param", err)
	}

	retained, _ := req.Params["retained"].(bool)

	payload, err := buildPayload(req, data)
	if err != nil {
		return nil, faults.Validation(op, "failed to build payload", err)
	}

	token := r.client.Publish(topic, qos, retained, payload)

	select {
	case <-token.Done():
	case <-time.After(r.timeout):
		return nil, faults.Transient(op, topic, ErrPublishTimeout)
	case <-ctx.Done():
		return nil, faults.Transient(op, topic, ctx.Err())
	}

	if err := token.Error(); err != nil {
		return nil, faults.Transient(op, "publish failed", err)
	}

	r.logger.DebugContext(ctx, "published message", "topic", topic, "qos", qos, "bytes", len(payload))

	return map[string]any{
		"topic":    topic,
		"qos":      int(qos),
		"retained": retained,
	}, nil
}

func qosParam(req protocol.Request) (byte, error) {
	raw, ok := req.Params["qos"]
	if !ok {
		return 0, nil
	}

	var qos int

	switch v := raw.(type) {
	case int:
		qos = v
	case float64:
		qos = int(v)
	default:
		return 0, fmt.Errorf("%w: %v", ErrInvalidQoS, raw)
	}

	if qos < 0 || qos > maxQoS {
		return 0, fmt.Errorf("%w: %d", ErrInvalidQoS, qos)
	}

	return byte(qos), nil
}

func buildPayload(req protocol.Request, data map[string]any) ([]byte, error) {
	if tmpl := req.StringParam("message"); tmpl != "" {
		rendered, err := template.RenderString(tmpl, data)

		return []byte(rendered), err
	}

	input := req.Input
	if input == nil {
		input = map[string]any{}
	}

	return json.Marshal(input)
}
