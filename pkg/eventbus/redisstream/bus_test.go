package redisstream_test

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/dukex/area/pkg/eventbus/redisstream"
	"github.com/dukex/area/pkg/events"
	"github.com/dukex/area/pkg/testutil"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBus(t *testing.T) (*redisstream.Bus, string) {
	t.Helper()

	client := testutil.RedisClient(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	streamKey := "areas:events:" + uuid.NewString()

	return redisstream.New(client, logger, redisstream.WithStreamKey(streamKey)), streamKey
}

func TestBus_InitializeStreamIsIdempotent(t *testing.T) {
	ctx := context.Background()
	bus, streamKey := newBus(t)

	require.NoError(t, bus.InitializeStream(ctx))
	require.NoError(t, bus.InitializeStream(ctx))

	info := bus.StreamInfo(ctx)
	assert.Equal(t, streamKey, info["streamKey"])
	assert.Equal(t, events.ConsumerGroup, info["consumerGroup"])
	assert.EqualValues(t, 0, info["length"])
	assert.NotContains(t, info, "error")

	groups, ok := info["groups"].([]map[string]any)
	require.True(t, ok)
	require.Len(t, groups, 1)
	assert.Equal(t, events.ConsumerGroup, groups[0]["name"])
}

func TestBus_AcknowledgedEntryIsNotRedelivered(t *testing.T) {
	ctx := context.Background()
	bus, _ := newBus(t)

	require.NoError(t, bus.InitializeStream(ctx))

	envelope := events.FromExecution("exec-1", "ai-1", "area-1", map[string]any{"title": "hello"})

	id, err := bus.Publish(ctx, envelope)
	require.NoError(t, err)

	entries, err := bus.Consume(ctx, events.ConsumerGroup, "worker-a", 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, id, entries[0].ID)
	assert.Equal(t, "exec-1", entries[0].Envelope.ExecutionID)
	assert.Equal(t, "hello", entries[0].Envelope.Payload["title"])

	require.NoError(t, bus.Acknowledge(ctx, events.ConsumerGroup, entries[0].ID))

	again, err := bus.Consume(ctx, events.ConsumerGroup, "worker-b", 10)
	require.NoError(t, err)
	assert.Empty(t, again)

	groups := bus.StreamInfo(ctx)["groups"].([]map[string]any)
	assert.EqualValues(t, 0, groups[0]["pending"])
}

func TestBus_EntriesAreSplitAcrossConsumers(t *testing.T) {
	ctx := context.Background()
	bus, _ := newBus(t)

	require.NoError(t, bus.InitializeStream(ctx))

	for i := range 3 {
		_, err := bus.Publish(ctx, events.FromExecution(uuid.NewString(), "ai-1", "area-1", map[string]any{"i": i}))
		require.NoError(t, err)
	}

	first, err := bus.Consume(ctx, events.ConsumerGroup, "worker-a", 2)
	require.NoError(t, err)
	assert.Len(t, first, 2)

	second, err := bus.Consume(ctx, events.ConsumerGroup, "worker-b", 10)
	require.NoError(t, err)
	assert.Len(t, second, 1)

	// unacknowledged entries stay pending for the group
	groups := bus.StreamInfo(ctx)["groups"].([]map[string]any)
	assert.EqualValues(t, 3, groups[0]["pending"])
}

func TestBus_ConsumeCreatesMissingGroup(t *testing.T) {
	ctx := context.Background()
	bus, _ := newBus(t)

	entries, err := bus.Consume(ctx, events.ConsumerGroup, "worker-a", 10)
	require.NoError(t, err)
	assert.Empty(t, entries)

	_, err = bus.Publish(ctx, events.FromExecution("exec-1", "ai-1", "area-1", nil))
	require.NoError(t, err)

	entries, err = bus.Consume(ctx, events.ConsumerGroup, "worker-a", 10)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestBus_StreamInfoReportsMissingStream(t *testing.T) {
	ctx := context.Background()
	bus, _ := newBus(t)

	info := bus.StreamInfo(ctx)
	assert.EqualValues(t, 0, info["length"])
	assert.Contains(t, info, "error")
}
