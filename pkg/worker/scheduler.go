// Package worker drives executions through their lifecycle: it consumes bus notifications, sweeps
// the record store for queued, retryable and stuck executions, dispatches reactions and fans out
// successful results.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dukex/area/pkg/eventbus"
	"github.com/dukex/area/pkg/metrics"
	"github.com/dukex/area/pkg/models"
	"github.com/dukex/area/pkg/persistence"
	"github.com/robfig/cron/v3"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// Executor runs the reaction of a RUNNING execution. It never fails; failures are results.
type Executor interface {
	Execute(ctx context.Context, execution *models.Execution) models.ExecutionResult
}

// Successor is told about every execution that finished OK.
type Successor interface {
	OnExecutionSucceeded(ctx context.Context, execution *models.Execution)
}

type Scheduler struct {
	cfg        Config
	executions persistence.ExecutionRepository
	bus        eventbus.EventBus
	executor   Executor
	successor  Successor
	metrics    *metrics.Metrics
	tracer     trace.Tracer
	logger     *slog.Logger
	now        func() time.Time

	bookkeeping *Pool
	reactions   *Pool
	inFlight    sync.Map
	running     atomic.Bool
	startedAt   atomic.Pointer[time.Time]
}

type Option func(*Scheduler)

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Scheduler) { s.metrics = m }
}

func WithTracer(tracer trace.Tracer) Option {
	return func(s *Scheduler) { s.tracer = tracer }
}

func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

func New(
	cfg Config,
	executions persistence.ExecutionRepository,
	bus eventbus.EventBus,
	executor Executor,
	successor Successor,
	logger *slog.Logger,
	opts ...Option,
) *Scheduler {
	cfg = cfg.withDefaults()

	s := &Scheduler{
		cfg:         cfg,
		executions:  executions,
		bus:         bus,
		executor:    executor,
		successor:   successor,
		metrics:     metrics.New(nil),
		tracer:      noop.NewTracerProvider().Tracer("area-worker"),
		now:         func() time.Time { return time.Now().UTC() },
		bookkeeping: NewPool("bookkeeping", cfg.BookkeepingWorkers, cfg.BookkeepingBacklog),
		reactions:   NewPool("reactions", cfg.ReactionWorkers, cfg.ReactionBacklog),
	}

	for _, opt := range opts {
		opt(s)
	}

	s.logger = logger.With("module", "worker", "consumer", cfg.ConsumerName)

	return s
}

// ID is the consumer name used on the event bus.
func (s *Scheduler) ID() string {
	return s.cfg.ConsumerName
}

// Start initializes the stream, schedules the activities and blocks until ctx is done. It then
// stops scheduling and waits for both pools to drain.
func (s *Scheduler) Start(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return fmt.Errorf("scheduler %s already running", s.cfg.ConsumerName)
	}
	defer s.running.Store(false)

	now := s.now()
	s.startedAt.Store(&now)

	s.logger.InfoContext(ctx, "Starting worker scheduler", "group", s.cfg.ConsumerGroup)

	if err := s.bus.InitializeStream(ctx); err != nil {
		s.logger.WarnContext(ctx, "Failed to initialize event stream, continuing with sweeps", "error", err)
	}

	s.bookkeeping.Start(ctx)
	s.reactions.Start(ctx)

	scheduler, err := s.schedule(ctx)
	if err != nil {
		s.bookkeeping.Stop()
		s.reactions.Stop()

		return err
	}

	scheduler.Start()
	s.logger.InfoContext(ctx, "Worker scheduler started")

	<-ctx.Done()

	s.logger.InfoContext(ctx, "Stopping worker scheduler")

	<-scheduler.Stop().Done()
	s.bookkeeping.Stop()
	s.reactions.Stop()

	s.logger.InfoContext(ctx, "Worker scheduler stopped")

	return nil
}

func (s *Scheduler) schedule(ctx context.Context) (*cron.Cron, error) {
	logger := cronLogger{logger: s.logger}

	scheduler := cron.New(
		cron.WithLogger(logger),
		cron.WithChain(
			cron.Recover(logger),
			cron.SkipIfStillRunning(logger),
		),
	)

	activities := []struct {
		name string
		spec string
		run  func(context.Context) error
	}{
		{"events", s.cfg.EventsSchedule, s.ProcessEvents},
		{"queued", s.cfg.QueuedSchedule, s.SweepQueued},
		{"retries", s.cfg.RetriesSchedule, s.SweepRetries},
		{"timeouts", s.cfg.TimeoutsSchedule, s.SweepTimeouts},
		{"statistics", s.cfg.StatisticsSchedule, s.LogStatistics},
	}

	for _, activity := range activities {
		_, err := scheduler.AddFunc(activity.spec, func() {
			s.runActivity(ctx, activity.name, activity.run)
		})
		if err != nil {
			return nil, fmt.Errorf("invalid schedule %q for %s: %w", activity.spec, activity.name, err)
		}
	}

	return scheduler, nil
}

// runActivity runs one tick of an activity on the bookkeeping pool and waits for it, so cron's
// skip-if-still-running applies and the pool bounds how many activities run at once.
func (s *Scheduler) runActivity(ctx context.Context, name string, run func(context.Context) error) {
	if ctx.Err() != nil {
		return
	}

	done := make(chan struct{})

	err := s.bookkeeping.TrySubmit(func(taskCtx context.Context) {
		defer close(done)
		defer s.recoverActivity(taskCtx, name)

		if err := run(taskCtx); err != nil {
			s.logger.ErrorContext(taskCtx, "Worker activity failed", "activity", name, "error", err)
		}
	})
	if err != nil {
		s.logger.WarnContext(ctx, "Worker activity skipped", "activity", name, "error", err)

		return
	}

	<-done
}

func (s *Scheduler) recoverActivity(ctx context.Context, name string) {
	if r := recover(); r != nil {
		s.logger.ErrorContext(ctx, "Worker activity panicked", "activity", name, "panic", r)
	}
}

// claim marks an execution as being handled by this process.
func (s *Scheduler) claim(id string) bool {
	_, loaded := s.inFlight.LoadOrStore(id, struct{}{})

	return !loaded
}

func (s *Scheduler) release(id string) {
	s.inFlight.Delete(id)
}

// InFlight reports how many executions this process is currently handling.
func (s *Scheduler) InFlight() int {
	n := 0

	s.inFlight.Range(func(_, _ any) bool {
		n++

		return true
	})

	return n
}
