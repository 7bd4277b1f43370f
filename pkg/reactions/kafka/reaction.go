// Package kafka provides the kafka.publish reaction backed by a sarama sync producer.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/IBM/sarama"
	"github.com/dukex/area/pkg/faults"
	"github.com/dukex/area/pkg/protocol"
	"github.com/dukex/area/pkg/template"
)

var (
	ErrMissingTopic = errors.New("missing topic")
	ErrNoBrokers    = errors.New("no kafka brokers configured")
)

type Reaction struct {
	producer sarama.SyncProducer
	logger   *slog.Logger
}

// NewProducer builds a sync producer that waits for all in-sync replicas.
func NewProducer(brokers []string) (sarama.SyncProducer, error) {
	if len(brokers) == 0 {
		return nil, ErrNoBrokers
	}

	config := sarama.NewConfig()
	config.Version = sarama.V2_6_0_0
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Return.Successes = true

	producer, err := sarama.NewSyncProducer(brokers, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}

	return producer, nil
}

func New(producer sarama.SyncProducer, logger *slog.Logger) *Reaction {
	return &Reaction{
		producer: producer,
		logger:   logger.With("reaction", "kafka.publish"),
	}
}

func (r *Reaction) Key() protocol.Key {
	return protocol.NewKey("kafka", "publish")
}

// Handle publishes the input (or the rendered "message" param) to "topic". The message key
// defaults to the execution's correlation id.
func (r *Reaction) Handle(ctx context.Context, req protocol.Request) (map[string]any, error) {
	const op = "kafka.publish"

	topic := req.StringParam("topic")
	if topic == "" {
		return nil, faults.Validation(op, "topic param is required", ErrMissingTopic)
	}

	data := template.Data(req.Input, req.Params, req.Execution)

	value, err := r.value(req, data)
	if err != nil {
		return nil, faults.Validation(op, "failed to build message", err)
	}

	msg := &sarama.ProducerMessage{
		Topic: topic,
		Value: sarama.ByteEncoder(value),
	}

	key := req.StringParam("key")
	if key != "" {
		key, err = template.RenderString(key, data)
		if err != nil {
			return nil, faults.Validation(op, "failed to render key", err)
		}
	} else if req.Execution != nil {
		key = req.Execution.CorrelationID
	}

	if key != "" {
		msg.Key = sarama.StringEncoder(key)
	}

	if req.Execution != nil {
		msg.Headers = []sarama.RecordHeader{
			{Key: []byte("execution_id"), Value: []byte(req.Execution.ID)},
		}
	}

	partition, offset, err := r.producer.SendMessage(msg)
	if err != nil {
		return nil, faults.Transient(op, "failed to publish message", err)
	}

	r.logger.DebugContext(ctx, "published message", "topic", topic, "partition", partition, "offset", offset)

	return map[string]any{
		"topic":     topic,
		"partition": partition,
		"offset":    offset,
	}, nil
}

func (r *Reaction) value(req protocol.Request, data map[string]any) ([]byte, error) {
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

func (r *Reaction) Close() error {
	return r.producer.Close()
}
