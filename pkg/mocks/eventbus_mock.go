package mocks

import (
	"context"

	"github.com/dukex/area/pkg/eventbus"
	"github.com/dukex/area/pkg/events"
	"github.com/stretchr/testify/mock"
)

// MockEventBus is a mock implementation of eventbus.EventBus interface.
type MockEventBus struct {
	mock.Mock
}

var _ eventbus.EventBus = (*MockEventBus)(nil)

func (m *MockEventBus) Publish(ctx context.Context, envelope events.Envelope) (string, error) {
	args := m.Called(ctx, envelope)

	return args.String(0), args.Error(1)
}

func (m *MockEventBus) Consume(ctx context.Context, group, consumer string, batch int) ([]eventbus.Entry, error) {
	args := m.Called(ctx, group, consumer, batch)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]eventbus.Entry), args.Error(1)
}

func (m *MockEventBus) Acknowledge(ctx context.Context, group, entryID string) error {
	args := m.Called(ctx, group, entryID)

	return args.Error(0)
}

func (m *MockEventBus) InitializeStream(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}

func (m *MockEventBus) StreamInfo(ctx context.Context) map[string]any {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil
	}

	return args.Get(0).(map[string]any)
}

func (m *MockEventBus) Close() error {
	args := m.Called()

	return args.Error(0)
}
