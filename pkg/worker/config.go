package worker

import (
	"fmt"
	"os"
	"time"

	"github.com/dukex/area/pkg/events"
	"github.com/google/uuid"
)

// Config tunes the scheduler. Zero values are replaced by the defaults in DefaultConfig.
type Config struct {
	ConsumerGroup string
	ConsumerName  string
	BatchSize     int

	EventsSchedule     string
	QueuedSchedule     string
	RetriesSchedule    string
	TimeoutsSchedule   string
	StatisticsSchedule string

	ExecutionTimeout time.Duration
	// RetryStaleAfter is how long a RETRY execution without a retry time waits before it is picked up.
	RetryStaleAfter time.Duration
	SweepLimit      int

	BookkeepingWorkers int
	BookkeepingBacklog int
	ReactionWorkers    int
	ReactionBacklog    int
}

func DefaultConfig() Config {
	return Config{
		ConsumerGroup:      events.ConsumerGroup,
		BatchSize:          10,
		EventsSchedule:     "@every 1s",
		QueuedSchedule:     "@every 5s",
		RetriesSchedule:    "@every 10s",
		TimeoutsSchedule:   "@every 30s",
		StatisticsSchedule: "@every 60s",
		ExecutionTimeout:   5 * time.Minute,
		RetryStaleAfter:    time.Minute,
		SweepLimit:         100,
		BookkeepingWorkers: 10,
		BookkeepingBacklog: 100,
		ReactionWorkers:    6,
		ReactionBacklog:    50,
	}
}

// withDefaults fills every zero field from DefaultConfig.
func (c Config) withDefaults() Config {
	d := DefaultConfig()

	setString := func(v *string, def string) {
		if *v == "" {
			*v = def
		}
	}
	setInt := func(v *int, def int) {
		if *v <= 0 {
			*v = def
		}
	}
	setDuration := func(v *time.Duration, def time.Duration) {
		if *v <= 0 {
			*v = def
		}
	}

	setString(&c.ConsumerGroup, d.ConsumerGroup)
	setString(&c.EventsSchedule, d.EventsSchedule)
	setString(&c.QueuedSchedule, d.QueuedSchedule)
	setString(&c.RetriesSchedule, d.RetriesSchedule)
	setString(&c.TimeoutsSchedule, d.TimeoutsSchedule)
	setString(&c.StatisticsSchedule, d.StatisticsSchedule)
	setInt(&c.BatchSize, d.BatchSize)
	setInt(&c.SweepLimit, d.SweepLimit)
	setInt(&c.BookkeepingWorkers, d.BookkeepingWorkers)
	setInt(&c.BookkeepingBacklog, d.BookkeepingBacklog)
	setInt(&c.ReactionWorkers, d.ReactionWorkers)
	setInt(&c.ReactionBacklog, d.ReactionBacklog)
	setDuration(&c.ExecutionTimeout, d.ExecutionTimeout)
	setDuration(&c.RetryStaleAfter, d.RetryStaleAfter)

	if c.ConsumerName == "" {
		c.ConsumerName = ConsumerName()
	}

	return c
}

// ConsumerName returns "<hostname>-<8 hex chars>", unique per process.
func ConsumerName() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "area-worker"
	}

	return fmt.Sprintf("%s-%s", host, uuid.NewString()[:8])
}
