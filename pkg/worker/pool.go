package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

var (
	// ErrPoolFull is returned by TrySubmit when the backlog is at capacity.
	ErrPoolFull = errors.New("worker pool backlog is full")
	// ErrPoolClosed is returned by TrySubmit after Stop.
	ErrPoolClosed = errors.New("worker pool stopped")
)

// healthyBacklogRatio is the backlog fill level above which a pool reports unhealthy.
const healthyBacklogRatio = 0.8

type Task func(ctx context.Context)

// Pool runs tasks on a fixed number of goroutines fed by a bounded backlog.
type Pool struct {
	name    string
	workers int
	tasks   chan Task

	mu      sync.RWMutex
	started bool
	closed  bool
	group   *errgroup.Group

	active    atomic.Int64
	completed atomic.Int64
	rejected  atomic.Int64
}

// PoolStats is a point-in-time view of a pool.
type PoolStats struct {
	Name      string `json:"name"`
	Workers   int    `json:"workers"`
	Active    int64  `json:"active"`
	Queued    int    `json:"queued"`
	Capacity  int    `json:"capacity"`
	Completed int64  `json:"completed"`
	Rejected  int64  `json:"rejected"`
	Healthy   bool   `json:"healthy"`
}

func NewPool(name string, workers, capacity int) *Pool {
	if workers <= 0 {
		workers = 1
	}

	if capacity < 0 {
		capacity = 0
	}

	return &Pool{
		name:    name,
		workers: workers,
		tasks:   make(chan Task, capacity),
	}
}

// Start launches the workers. Tasks run with ctx detached from its cancellation, so work accepted
// before Stop is finished rather than abandoned.
func (p *Pool) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.started {
		return
	}

	p.started = true
	p.group = &errgroup.Group{}
	taskCtx := context.WithoutCancel(ctx)

	for range p.workers {
		p.group.Go(func() error {
			for task := range p.tasks {
				p.run(taskCtx, task)
			}

			return nil
		})
	}
}

func (p *Pool) run(ctx context.Context, task Task) {
	p.active.Add(1)

	defer func() {
		p.active.Add(-1)
		p.completed.Add(1)
		// Tasks recover their own panics; this keeps a worker goroutine alive if one does not.
		_ = recover()
	}()

	task(ctx)
}

// TrySubmit queues task without blocking.
func (p *Pool) TrySubmit(task Task) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return ErrPoolClosed
	}

	select {
	case p.tasks <- task:
		return nil
	default:
		p.rejected.Add(1)

		return ErrPoolFull
	}
}

// Stop refuses new tasks and waits for the backlog to drain.
func (p *Pool) Stop() {
	p.mu.Lock()

	if p.closed {
		p.mu.Unlock()

		return
	}

	p.closed = true
	close(p.tasks)
	group := p.group
	p.mu.Unlock()

	if group != nil {
		_ = group.Wait()
	}
}

func (p *Pool) Stats() PoolStats {
	queued := len(p.tasks)
	capacity := cap(p.tasks)

	return PoolStats{
		Name:      p.name,
		Workers:   p.workers,
		Active:    p.active.Load(),
		Queued:    queued,
		Capacity:  capacity,
		Completed: p.completed.Load(),
		Rejected:  p.rejected.Load(),
		Healthy:   float64(queued) < float64(capacity)*healthyBacklogRatio || capacity == 0,
	}
}
