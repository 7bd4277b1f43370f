package testutil

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/dukex/area/pkg/persistence/memory"
	"github.com/stretchr/testify/require"
)

// Clock is a manually advanced clock safe for concurrent use.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

func NewClock(start time.Time) *Clock {
	return &Clock{now: start}
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.now
}

func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.now = c.now.Add(d)
}

// DiscardLogger drops everything.
func DiscardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// MemoryStore returns an in-memory store on clock with a seeded area.
func MemoryStore(ctx context.Context, t *testing.T, clock *Clock) (*memory.Persistence, *Fixture) {
	t.Helper()

	opts := []memory.Option{}
	if clock != nil {
		opts = append(opts, memory.WithClock(clock.Now))
	}

	p, err := memory.NewPersistence(DiscardLogger(), opts...)
	require.NoError(t, err)

	return p, SeedArea(ctx, t, p.Catalog())
}
