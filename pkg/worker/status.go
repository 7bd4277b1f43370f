package worker

import (
	"context"
	"time"
)

// Status is the operator view of one worker process.
type Status struct {
	WorkerID      string         `json:"workerId"`
	ConsumerGroup string         `json:"consumerGroup"`
	Running       bool           `json:"running"`
	StartedAt     *time.Time     `json:"startedAt,omitempty"`
	InFlight      int            `json:"inFlight"`
	Healthy       bool           `json:"healthy"`
	Pools         []PoolStats    `json:"pools"`
	StreamInfo    map[string]any `json:"streamInfo"`
}

func (s *Scheduler) Status(ctx context.Context) Status {
	pools := []PoolStats{s.bookkeeping.Stats(), s.reactions.Stats()}

	healthy := true
	for _, pool := range pools {
		healthy = healthy && pool.Healthy
	}

	return Status{
		WorkerID:      s.cfg.ConsumerName,
		ConsumerGroup: s.cfg.ConsumerGroup,
		Running:       s.running.Load(),
		StartedAt:     s.startedAt.Load(),
		InFlight:      s.InFlight(),
		Healthy:       healthy,
		Pools:         pools,
		StreamInfo:    s.bus.StreamInfo(ctx),
	}
}
