package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/dukex/area/pkg/events"
)

const defaultBlock = 100 * time.Millisecond

// WatermillBus implements EventBus over a watermill publisher/subscriber pair. Consumer groups are
// fixed when the subscriber is built, so the group argument only labels diagnostics.
type WatermillBus struct {
	logger     *slog.Logger
	publisher  message.Publisher
	subscriber message.Subscriber
	topic      string
	group      string
	block      time.Duration

	mu       sync.Mutex
	messages <-chan *message.Message
	pending  map[string]*message.Message
	ctx      context.Context
	cancel   context.CancelFunc
	closed   bool
}

type WatermillOption func(*WatermillBus)

func WithTopic(topic string) WatermillOption {
	return func(b *WatermillBus) { b.topic = topic }
}

func WithGroup(group string) WatermillOption {
	return func(b *WatermillBus) { b.group = group }
}

// WithBlock sets how long Consume waits for the first message.
func WithBlock(block time.Duration) WatermillOption {
	return func(b *WatermillBus) { b.block = block }
}

func NewWatermillBus(logger *slog.Logger, pub message.Publisher, sub message.Subscriber, opts ...WatermillOption) *WatermillBus {
	ctx, cancel := context.WithCancel(context.Background())

	bus := &WatermillBus{
		logger:     logger.With("module", "watermill_event_bus"),
		publisher:  pub,
		subscriber: sub,
		topic:      events.Topic,
		group:      events.ConsumerGroup,
		block:      defaultBlock,
		pending:    make(map[string]*message.Message),
		ctx:        ctx,
		cancel:     cancel,
	}

	for _, opt := range opts {
		opt(bus)
	}

	return bus
}

func (eb *WatermillBus) Publish(_ context.Context, envelope events.Envelope) (string, error) {
	payload, err := json.Marshal(envelope)
	if err != nil {
		return "", fmt.Errorf("failed to marshal envelope: %w", err)
	}

	msg := message.NewMessage(watermill.NewULID(), payload)
	msg.Metadata.Set(events.EventMetadataKey, envelope.ExecutionID)
	msg.Metadata.Set(events.EventTypeMetadataKey, string(envelope.EventType))

	if err := eb.publisher.Publish(eb.topic, msg); err != nil {
		return "", fmt.Errorf("failed to publish envelope: %w", err)
	}

	return msg.UUID, nil
}

func (eb *WatermillBus) InitializeStream(_ context.Context) error {
	if initializer, ok := eb.subscriber.(message.SubscribeInitializer); ok {
		if err := initializer.SubscribeInitialize(eb.topic); err != nil {
			return fmt.Errorf("failed to initialize topic %s: %w", eb.topic, err)
		}
	}

	return nil
}

// Consume waits up to the block timeout for the first message, then drains whatever is already
// buffered up to batch. Delivered messages are held until Acknowledge.
//
// The gochannel and Kafka subscribers hand out the next message only after the current one is
// acked, so while an entry is unacknowledged a call returns at most that one entry regardless of
// batch. Throughput on these transports is one entry per worker tick; the Redis stream bus has no
// such limit.
func (eb *WatermillBus) Consume(ctx context.Context, _, _ string, batch int) ([]Entry, error) {
	messages, err := eb.subscription()
	if err != nil {
		return nil, err
	}

	if batch <= 0 {
		batch = 1
	}

	timer := time.NewTimer(eb.block)
	defer timer.Stop()

	var entries []Entry

	for len(entries) < batch {
		var (
			msg *message.Message
			ok  bool
		)

		if len(entries) == 0 {
			select {
			case msg, ok = <-messages:
			case <-timer.C:
				return entries, nil
			case <-ctx.Done():
				return entries, ctx.Err()
			}
		} else {
			select {
			case msg, ok = <-messages:
			default:
				return entries, nil
			}
		}

		if !ok {
			return entries, ErrClosed
		}

		var envelope events.Envelope
		if err := json.Unmarshal(msg.Payload, &envelope); err != nil {
			eb.logger.WarnContext(ctx, "dropping undecodable message", "messageId", msg.UUID, "error", err)
			msg.Ack()

			continue
		}

		eb.mu.Lock()
		eb.pending[msg.UUID] = msg
		eb.mu.Unlock()

		entries = append(entries, Entry{ID: msg.UUID, Envelope: envelope})
	}

	return entries, nil
}

// Acknowledge acks a delivered message. Unknown ids are ignored.
func (eb *WatermillBus) Acknowledge(_ context.Context, _, entryID string) error {
	eb.mu.Lock()
	msg, ok := eb.pending[entryID]
	delete(eb.pending, entryID)
	eb.mu.Unlock()

	if ok {
		msg.Ack()
	}

	return nil
}

func (eb *WatermillBus) StreamInfo(_ context.Context) map[string]any {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	return map[string]any{
		"streamKey":     eb.topic,
		"consumerGroup": eb.group,
		"transport":     "watermill",
		"pending":       len(eb.pending),
	}
}

func (eb *WatermillBus) Close() error {
	eb.mu.Lock()
	if eb.closed {
		eb.mu.Unlock()

		return nil
	}

	eb.closed = true

	for id, msg := range eb.pending {
		msg.Nack()
		delete(eb.pending, id)
	}
	eb.mu.Unlock()

	eb.cancel()

	err := eb.publisher.Close()
	if err != nil {
		return err
	}

	return eb.subscriber.Close()
}

func (eb *WatermillBus) subscription() (<-chan *message.Message, error) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	if eb.closed {
		return nil, ErrClosed
	}

	if eb.messages != nil {
		return eb.messages, nil
	}

	messages, err := eb.subscriber.Subscribe(eb.ctx, eb.topic)
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to %s: %w", eb.topic, err)
	}

	eb.messages = messages

	return messages, nil
}
