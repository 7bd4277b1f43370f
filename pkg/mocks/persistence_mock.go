package mocks

import (
	"context"
	"time"

	"github.com/dukex/area/pkg/models"
	"github.com/dukex/area/pkg/persistence"
	"github.com/stretchr/testify/mock"
)

// MockExecutionRepository is a mock implementation of persistence.ExecutionRepository interface.
type MockExecutionRepository struct {
	mock.Mock
}

var _ persistence.ExecutionRepository = (*MockExecutionRepository)(nil)

func (m *MockExecutionRepository) execution(args mock.Arguments) (*models.Execution, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.Execution), args.Error(1)
}

func (m *MockExecutionRepository) executions(args mock.Arguments) ([]*models.Execution, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.Execution), args.Error(1)
}

func (m *MockExecutionRepository) Create(ctx context.Context, req models.NewExecution) (*models.Execution, error) {
	return m.execution(m.Called(ctx, req))
}

func (m *MockExecutionRepository) MarkStarted(ctx context.Context, id string) (*models.Execution, error) {
	return m.execution(m.Called(ctx, id))
}

func (m *MockExecutionRepository) ApplyResult(ctx context.Context, result models.ExecutionResult) (*models.Execution, error) {
	return m.execution(m.Called(ctx, result))
}

func (m *MockExecutionRepository) Cancel(ctx context.Context, id string, reason string) (*models.Execution, error) {
	return m.execution(m.Called(ctx, id, reason))
}

func (m *MockExecutionRepository) Get(ctx context.Context, id string) (*models.Execution, error) {
	return m.execution(m.Called(ctx, id))
}

func (m *MockExecutionRepository) FindByDedupKey(ctx context.Context, dedupKey string) (*models.Execution, error) {
	return m.execution(m.Called(ctx, dedupKey))
}

func (m *MockExecutionRepository) ListQueued(ctx context.Context, limit int) ([]*models.Execution, error) {
	return m.executions(m.Called(ctx, limit))
}

func (m *MockExecutionRepository) ListRetryReady(ctx context.Context, now, staleBefore time.Time, limit int) ([]*models.Execution, error) {
	return m.executions(m.Called(ctx, now, staleBefore, limit))
}

func (m *MockExecutionRepository) ListTimedOut(ctx context.Context, startedBefore time.Time, limit int) ([]*models.Execution, error) {
	return m.executions(m.Called(ctx, startedBefore, limit))
}

func (m *MockExecutionRepository) ListByCorrelation(ctx context.Context, correlationID string) ([]*models.Execution, error) {
	return m.executions(m.Called(ctx, correlationID))
}

func (m *MockExecutionRepository) CountByStatus(ctx context.Context) (map[models.ExecutionStatus]int, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(map[models.ExecutionStatus]int), args.Error(1)
}

// MockCatalogRepository is a mock implementation of persistence.CatalogRepository interface.
type MockCatalogRepository struct {
	mock.Mock
}

var _ persistence.CatalogRepository = (*MockCatalogRepository)(nil)

func (m *MockCatalogRepository) ActionInstance(ctx context.Context, id string) (*models.ActionInstance, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.ActionInstance), args.Error(1)
}

func (m *MockCatalogRepository) Area(ctx context.Context, id string) (*models.Area, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.Area), args.Error(1)
}

func (m *MockCatalogRepository) LinksFrom(ctx context.Context, sourceActionInstanceID string) ([]*models.ActionLink, error) {
	args := m.Called(ctx, sourceActionInstanceID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.ActionLink), args.Error(1)
}

// MockPersistence is a mock implementation of persistence.Persistence interface.
type MockPersistence struct {
	mock.Mock

	Executions *MockExecutionRepository
	Catalog    *MockCatalogRepository
}

var _ persistence.Persistence = (*MockPersistence)(nil)

func NewMockPersistence() *MockPersistence {
	return &MockPersistence{
		Executions: &MockExecutionRepository{},
		Catalog:    &MockCatalogRepository{},
	}
}

func (m *MockPersistence) ExecutionRepository() persistence.ExecutionRepository {
	return m.Executions
}

func (m *MockPersistence) CatalogRepository() persistence.CatalogRepository {
	return m.Catalog
}

func (m *MockPersistence) HealthCheck(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}

func (m *MockPersistence) Close(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}
