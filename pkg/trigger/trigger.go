// Package trigger is the single entry point that turns an activation into a QUEUED execution and
// an event bus notification. Webhooks, pollers, the API and chained links all go through it.
package trigger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dukex/area/pkg/dedup"
	"github.com/dukex/area/pkg/eventbus"
	"github.com/dukex/area/pkg/events"
	"github.com/dukex/area/pkg/models"
	"github.com/dukex/area/pkg/persistence"
	"github.com/google/uuid"
)

var (
	// ErrSkipped is returned when the instance or its area is disabled.
	ErrSkipped = errors.New("activation skipped: action instance or area disabled")
	// ErrDuplicate is returned with the existing execution, when known, for a repeated dedup key.
	ErrDuplicate = errors.New("duplicate activation")
	// ErrFannedOut is returned for trigger-only instances: no execution was created and the
	// links of the instance were fired directly.
	ErrFannedOut = errors.New("trigger instance fanned out to its links")
)

// Request describes one activation.
type Request struct {
	ActionInstanceID string
	Mode             models.ActivationMode
	Input            map[string]any
	CorrelationID    string
	DedupKey         string
	// Provider selects the dedup window, e.g. "github" or "slack".
	Provider   string
	Source     string
	ChainDepth int
	Priority   int
}

// Enqueuer is what the chain trigger needs from the trigger path.
type Enqueuer interface {
	Enqueue(ctx context.Context, req Request) (*models.Execution, error)
}

// Source is a finished (or trigger-only) node whose output feeds its links.
type Source struct {
	ActionInstanceID string
	CorrelationID    string
	ChainDepth       int
	Output           map[string]any
}

// FanOut fires the outgoing links of a source.
type FanOut interface {
	FanOut(ctx context.Context, source Source)
}

type Service struct {
	catalog    persistence.CatalogRepository
	executions persistence.ExecutionRepository
	publisher  eventbus.Publisher
	guard      dedup.Guard
	fanOut     FanOut
	logger     *slog.Logger
}

var _ Enqueuer = (*Service)(nil)

type Option func(*Service)

func WithDedupGuard(guard dedup.Guard) Option {
	return func(s *Service) { s.guard = guard }
}

func NewService(
	catalog persistence.CatalogRepository,
	executions persistence.ExecutionRepository,
	publisher eventbus.Publisher,
	logger *slog.Logger,
	opts ...Option,
) *Service {
	s := &Service{
		catalog:    catalog,
		executions: executions,
		publisher:  publisher,
		logger:     logger.With("module", "trigger"),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// UseFanOut sets the link fan-out used for trigger-only instances. The chain trigger itself
// enqueues through the service, so it is attached after both are built.
func (s *Service) UseFanOut(fanOut FanOut) {
	s.fanOut = fanOut
}

// Manual activates an instance on behalf of a user.
func (s *Service) Manual(ctx context.Context, actionInstanceID string, input map[string]any) (*models.Execution, error) {
	return s.Enqueue(ctx, Request{
		ActionInstanceID: actionInstanceID,
		Mode:             models.ActivationModeManual,
		Input:            input,
		Source:           events.SourceManual,
	})
}

// Enqueue creates a QUEUED execution and publishes it. Store and bus failures are returned. When
// publishing fails the execution is still returned: it exists and the queue sweep will run it.
func (s *Service) Enqueue(ctx context.Context, req Request) (*models.Execution, error) {
	instance, err := s.catalog.ActionInstance(ctx, req.ActionInstanceID)
	if err != nil {
		return nil, err
	}

	area, err := s.catalog.Area(ctx, instance.AreaID)
	if err != nil {
		return nil, err
	}

	logger := s.logger.With("actionInstanceId", instance.ID, "areaId", area.ID)

	if !instance.Enabled || !area.Enabled {
		logger.DebugContext(ctx, "activation skipped", "instanceEnabled", instance.Enabled, "areaEnabled", area.Enabled)

		return nil, ErrSkipped
	}

	if req.CorrelationID == "" {
		req.CorrelationID = uuid.NewString()
	}

	if req.DedupKey != "" {
		existing, err := s.checkDuplicate(ctx, req)
		if err != nil {
			return existing, err
		}
	}

	if !instance.IsExecutable() {
		if s.fanOut != nil {
			s.fanOut.FanOut(ctx, Source{
				ActionInstanceID: instance.ID,
				CorrelationID:    req.CorrelationID,
				ChainDepth:       req.ChainDepth,
				Output:           req.Input,
			})
		}

		return nil, ErrFannedOut
	}

	execution, err := s.executions.Create(ctx, models.NewExecution{
		ActionInstanceID: instance.ID,
		ActivationMode:   req.Mode,
		InputPayload:     req.Input,
		CorrelationID:    req.CorrelationID,
		DedupKey:         req.DedupKey,
		ChainDepth:       req.ChainDepth,
	})
	if err != nil {
		if errors.Is(err, persistence.ErrDuplicateDedupKey) {
			existing, findErr := s.executions.FindByDedupKey(ctx, req.DedupKey)
			if findErr != nil {
				return nil, ErrDuplicate
			}

			return existing, ErrDuplicate
		}

		s.releaseClaim(ctx, req)

		return nil, fmt.Errorf("failed to create execution: %w", err)
	}

	envelope := events.ForActivation(execution, req.Source)
	envelope.Priority = req.Priority

	entryID, err := s.publisher.Publish(ctx, envelope)
	if err != nil {
		logger.ErrorContext(ctx, "failed to publish execution", "executionId", execution.ID, "error", err)

		return execution, fmt.Errorf("failed to publish execution %s: %w", execution.ID, err)
	}

	logger.InfoContext(ctx, "execution enqueued",
		"executionId", execution.ID,
		"correlationId", execution.CorrelationID,
		"mode", execution.ActivationMode,
		"entryId", entryID,
	)

	return execution, nil
}

func (s *Service) checkDuplicate(ctx context.Context, req Request) (*models.Execution, error) {
	existing, err := s.executions.FindByDedupKey(ctx, req.DedupKey)
	switch {
	case err == nil:
		return existing, ErrDuplicate
	case !persistence.IsExecutionNotFound(err):
		return nil, fmt.Errorf("failed to look up dedup key: %w", err)
	}

	if s.guard == nil {
		return nil, nil
	}

	claimed, err := s.guard.Claim(ctx, req.Provider, req.DedupKey)
	if err != nil {
		s.logger.WarnContext(ctx, "dedup guard unavailable, relying on the store", "dedupKey", req.DedupKey, "error", err)

		return nil, nil
	}

	if !claimed {
		return nil, ErrDuplicate
	}

	return nil, nil
}

// A claim without a stored execution would turn the producer's retry into a false duplicate.
func (s *Service) releaseClaim(ctx context.Context, req Request) {
	if s.guard == nil || req.DedupKey == "" {
		return
	}

	if err := s.guard.Release(ctx, req.Provider, req.DedupKey); err != nil {
		s.logger.WarnContext(ctx, "failed to release dedup key", "dedupKey", req.DedupKey, "error", err)
	}
}
