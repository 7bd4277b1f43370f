package redisqueue_test

import (
	"context"
	"log/slog"
	"testing"

	"github.com/dukex/area/pkg/faults"
	"github.com/dukex/area/pkg/protocol"
	"github.com/dukex/area/pkg/reactions/redisqueue"
	"github.com/dukex/area/pkg/testutil"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReaction_Handle(t *testing.T) {
	client := testutil.RedisClient(t)
	ctx := context.Background()
	reaction := redisqueue.New(client, slog.Default())

	t.Run("pushes input as json", func(t *testing.T) {
		queue := "queue:" + uuid.NewString()

		result, err := reaction.Handle(ctx, protocol.Request{
			Input:  map[string]any{"title": "hello"},
			Params: map[string]any{"queue": queue},
		})
		require.NoError(t, err)
		assert.Equal(t, int64(1), result["length"])

		value, err := client.LPop(ctx, queue).Result()
		require.NoError(t, err)
		assert.JSONEq(t, `{"title":"hello"}`, value)
	})

	t.Run("pushes rendered message", func(t *testing.T) {
		queue := "queue:" + uuid.NewString()

		_, err := reaction.Handle(ctx, protocol.Request{
			Input:  map[string]any{"title": "hello"},
			Params: map[string]any{"queue": queue, "message": "new: {{ .input.title }}"},
		})
		require.NoError(t, err)

		value, err := client.LPop(ctx, queue).Result()
		require.NoError(t, err)
		assert.Equal(t, "new: hello", value)
	})

	t.Run("missing queue", func(t *testing.T) {
		_, err := reaction.Handle(ctx, protocol.Request{Params: map[string]any{}})

		require.ErrorIs(t, err, redisqueue.ErrMissingQueue)
		assert.Equal(t, faults.KindValidation, faults.KindOf(err))
	})
}
