// Package persistence provides the storage contracts of the execution engine.
package persistence

import (
	"context"
	"time"

	"github.com/dukex/area/pkg/models"
)

// ExecutionRepository owns execution records. Every mutation goes through a lifecycle
// transition and a version compare-and-swap.
type ExecutionRepository interface {
	Create(ctx context.Context, req models.NewExecution) (*models.Execution, error)
	MarkStarted(ctx context.Context, id string) (*models.Execution, error)
	ApplyResult(ctx context.Context, result models.ExecutionResult) (*models.Execution, error)
	Cancel(ctx context.Context, id string, reason string) (*models.Execution, error)

	Get(ctx context.Context, id string) (*models.Execution, error)
	FindByDedupKey(ctx context.Context, dedupKey string) (*models.Execution, error)
	ListQueued(ctx context.Context, limit int) ([]*models.Execution, error)
	// ListRetryReady returns RETRY executions whose retry time elapsed, plus those without a
	// retry time that never started or started before staleBefore.
	ListRetryReady(ctx context.Context, now, staleBefore time.Time, limit int) ([]*models.Execution, error)
	ListTimedOut(ctx context.Context, startedBefore time.Time, limit int) ([]*models.Execution, error)
	ListByCorrelation(ctx context.Context, correlationID string) ([]*models.Execution, error)
	CountByStatus(ctx context.Context) (map[models.ExecutionStatus]int, error)
}

// CatalogRepository is the read-only view of areas, action instances and links.
type CatalogRepository interface {
	// ActionInstance resolves the instance with its definition and service.
	ActionInstance(ctx context.Context, id string) (*models.ActionInstance, error)
	Area(ctx context.Context, id string) (*models.Area, error)
	// LinksFrom returns the outgoing links of an instance in creation order.
	LinksFrom(ctx context.Context, sourceActionInstanceID string) ([]*models.ActionLink, error)
}

type Persistence interface {
	ExecutionRepository() ExecutionRepository
	CatalogRepository() CatalogRepository
	HealthCheck(ctx context.Context) error

	Close(ctx context.Context) error
}
