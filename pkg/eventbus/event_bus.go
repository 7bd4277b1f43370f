// Package eventbus provides the durable hand-off of "execution ready" notifications between the
// trigger path and worker processes.
package eventbus

import (
	"context"
	"errors"

	"github.com/dukex/area/pkg/events"
)

var ErrClosed = errors.New("event bus closed")

// Entry is one delivered envelope. ID is the transport's entry id and is what Acknowledge takes.
type Entry struct {
	ID       string
	Envelope events.Envelope
}

type Publisher interface {
	Publish(ctx context.Context, envelope events.Envelope) (string, error)
}

// EventBus is an at-least-once, consumer-group based stream. Entries delivered by Consume stay
// pending for their group until acknowledged.
type EventBus interface {
	Publisher

	Consume(ctx context.Context, group, consumer string, batch int) ([]Entry, error)
	Acknowledge(ctx context.Context, group, entryID string) error

	// InitializeStream creates the stream and group if missing. It is safe to call repeatedly.
	InitializeStream(ctx context.Context) error

	// StreamInfo never fails; problems are reported under the "error" key.
	StreamInfo(ctx context.Context) map[string]any

	Close() error
}
