// Package redisstream implements the event bus over a Redis stream with consumer groups.
package redisstream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dukex/area/pkg/eventbus"
	"github.com/dukex/area/pkg/events"
	redis "github.com/redis/go-redis/v9"
)

const defaultBlock = 100 * time.Millisecond

// Bus is an eventbus.EventBus over XADD/XREADGROUP/XACK. The Redis client is owned by the caller.
type Bus struct {
	client    redis.UniversalClient
	logger    *slog.Logger
	streamKey string
	group     string
	block     time.Duration
}

var _ eventbus.EventBus = (*Bus)(nil)

type Option func(*Bus)

func WithStreamKey(key string) Option {
	return func(b *Bus) { b.streamKey = key }
}

// WithGroup sets the group created by InitializeStream and reported by StreamInfo.
func WithGroup(group string) Option {
	return func(b *Bus) { b.group = group }
}

func WithBlock(block time.Duration) Option {
	return func(b *Bus) { b.block = block }
}

func New(client redis.UniversalClient, logger *slog.Logger, opts ...Option) *Bus {
	bus := &Bus{
		client:    client,
		streamKey: events.StreamKey,
		group:     events.ConsumerGroup,
		block:     defaultBlock,
	}

	for _, opt := range opts {
		opt(bus)
	}

	bus.logger = logger.With("module", "redis_stream_bus", "stream", bus.streamKey)

	return bus
}

func (b *Bus) Publish(ctx context.Context, envelope events.Envelope) (string, error) {
	values, err := encode(envelope)
	if err != nil {
		return "", err
	}

	id, err := b.client.XAdd(ctx, &redis.XAddArgs{
		Stream: b.streamKey,
		Values: values,
	}).Result()
	if err != nil {
		b.logger.ErrorContext(ctx, "failed to publish event", "executionId", envelope.ExecutionID, "error", err)

		return "", fmt.Errorf("failed to publish event to stream %s: %w", b.streamKey, err)
	}

	b.logger.DebugContext(ctx, "published event",
		"entryId", id,
		"executionId", envelope.ExecutionID,
		"actionInstanceId", envelope.ActionInstanceID,
		"eventType", envelope.EventType,
	)

	return id, nil
}

// InitializeStream creates the stream and group, reading from the beginning of the stream.
func (b *Bus) InitializeStream(ctx context.Context) error {
	err := b.client.XGroupCreateMkStream(ctx, b.streamKey, b.group, "0").Err()
	if err != nil {
		if isBusyGroup(err) {
			b.logger.DebugContext(ctx, "consumer group already exists", "group", b.group)

			return nil
		}

		return fmt.Errorf("failed to create consumer group %s: %w", b.group, err)
	}

	b.logger.InfoContext(ctx, "created consumer group", "group", b.group)

	return nil
}

// Consume reads new entries for the group. Entries that cannot be decoded are acknowledged and
// dropped so they do not stay pending forever.
func (b *Bus) Consume(ctx context.Context, group, consumer string, batch int) ([]eventbus.Entry, error) {
	if batch <= 0 {
		batch = 1
	}

	streams, err := b.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    group,
		Consumer: consumer,
		Streams:  []string{b.streamKey, ">"},
		Count:    int64(batch),
		Block:    b.block,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}

		if isNoGroup(err) {
			b.logger.WarnContext(ctx, "consumer group missing, initializing stream", "group", group)

			if initErr := b.client.XGroupCreateMkStream(ctx, b.streamKey, group, "0").Err(); initErr != nil && !isBusyGroup(initErr) {
				return nil, fmt.Errorf("failed to create consumer group %s: %w", group, initErr)
			}

			return nil, nil
		}

		return nil, fmt.Errorf("failed to read from stream %s: %w", b.streamKey, err)
	}

	var entries []eventbus.Entry

	for _, stream := range streams {
		for _, msg := range stream.Messages {
			envelope, err := decode(msg.Values)
			if err != nil {
				b.logger.WarnContext(ctx, "dropping undecodable entry", "entryId", msg.ID, "error", err)

				if ackErr := b.Acknowledge(ctx, group, msg.ID); ackErr != nil {
					b.logger.ErrorContext(ctx, "failed to acknowledge undecodable entry", "entryId", msg.ID, "error", ackErr)
				}

				continue
			}

			entries = append(entries, eventbus.Entry{ID: msg.ID, Envelope: envelope})
		}
	}

	return entries, nil
}

func (b *Bus) Acknowledge(ctx context.Context, group, entryID string) error {
	err := b.client.XAck(ctx, b.streamKey, group, entryID).Err()
	if err != nil {
		return fmt.Errorf("failed to acknowledge entry %s: %w", entryID, err)
	}

	return nil
}

func (b *Bus) StreamInfo(ctx context.Context) map[string]any {
	info := map[string]any{
		"streamKey":     b.streamKey,
		"consumerGroup": b.group,
	}

	length, err := b.client.XLen(ctx, b.streamKey).Result()
	if err != nil {
		b.logger.WarnContext(ctx, "failed to get stream info", "error", err)
		info["error"] = err.Error()

		return info
	}

	info["length"] = length

	groups, err := b.client.XInfoGroups(ctx, b.streamKey).Result()
	if err != nil {
		info["error"] = err.Error()

		return info
	}

	groupInfo := make([]map[string]any, 0, len(groups))
	for _, g := range groups {
		groupInfo = append(groupInfo, map[string]any{
			"name":            g.Name,
			"consumers":       g.Consumers,
			"pending":         g.Pending,
			"lastDeliveredId": g.LastDeliveredID,
		})
	}

	info["groups"] = groupInfo

	return info
}

func (b *Bus) Close() error {
	return nil
}

func isBusyGroup(err error) bool {
	return strings.HasPrefix(err.Error(), "BUSYGROUP")
}

func isNoGroup(err error) bool {
	return strings.HasPrefix(err.Error(), "NOGROUP")
}
