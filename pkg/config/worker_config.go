// Package config provides configuration loading for the worker
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/dukex/area/pkg/chain"
	"github.com/dukex/area/pkg/worker"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

var ErrInvalidConfig = errors.New("invalid worker configuration")

// WorkerConfigFile represents the structure of the worker.yaml file
type WorkerConfigFile struct {
	ConsumerGroup    string        `yaml:"consumer_group"`
	ConsumerName     string        `yaml:"consumer_name"`
	BatchSize        int           `yaml:"batch_size"`
	SweepLimit       int           `yaml:"sweep_limit"`
	ExecutionTimeout string        `yaml:"execution_timeout"`
	RetryStaleAfter  string        `yaml:"retry_stale_after"`
	Schedules        SchedulesFile `yaml:"schedules"`
	Pools            PoolsFile     `yaml:"pools"`
	Chain            ChainFile     `yaml:"chain"`
}

type SchedulesFile struct {
	Events     string `yaml:"events"`
	Queued     string `yaml:"queued"`
	Retries    string `yaml:"retries"`
	Timeouts   string `yaml:"timeouts"`
	Statistics string `yaml:"statistics"`
}

type PoolsFile struct {
	Bookkeeping PoolFile `yaml:"bookkeeping"`
	Reactions   PoolFile `yaml:"reactions"`
}

type PoolFile struct {
	Workers int `yaml:"workers"`
	Backlog int `yaml:"backlog"`
}

type ChainFile struct {
	MaxHops int `yaml:"max_hops"`
}

// WorkerConfig is the resolved configuration of a worker process.
type WorkerConfig struct {
	Scheduler worker.Config
	MaxHops   int
}

// DefaultWorkerConfig is used when no file is given.
func DefaultWorkerConfig() WorkerConfig {
	return WorkerConfig{
		Scheduler: worker.DefaultConfig(),
		MaxHops:   chain.DefaultMaxHops,
	}
}

// LoadWorkerConfig loads worker configuration from a YAML file. Missing keys keep their defaults.
func LoadWorkerConfig(filepath string) (WorkerConfig, error) {
	data, err := os.ReadFile(filepath)
	if err != nil {
		return WorkerConfig{}, fmt.Errorf("failed to read config file %s: %w", filepath, err)
	}

	return ParseWorkerConfig(data)
}

func ParseWorkerConfig(data []byte) (WorkerConfig, error) {
	var file WorkerConfigFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return WorkerConfig{}, fmt.Errorf("failed to parse YAML config: %w", err)
	}

	cfg := DefaultWorkerConfig()
	s := &cfg.Scheduler

	overrideString(&s.ConsumerGroup, file.ConsumerGroup)
	overrideString(&s.ConsumerName, file.ConsumerName)
	overrideInt(&s.BatchSize, file.BatchSize)
	overrideInt(&s.SweepLimit, file.SweepLimit)

	overrideString(&s.EventsSchedule, file.Schedules.Events)
	overrideString(&s.QueuedSchedule, file.Schedules.Queued)
	overrideString(&s.RetriesSchedule, file.Schedules.Retries)
	overrideString(&s.TimeoutsSchedule, file.Schedules.Timeouts)
	overrideString(&s.StatisticsSchedule, file.Schedules.Statistics)

	overrideInt(&s.BookkeepingWorkers, file.Pools.Bookkeeping.Workers)
	overrideInt(&s.BookkeepingBacklog, file.Pools.Bookkeeping.Backlog)
	overrideInt(&s.ReactionWorkers, file.Pools.Reactions.Workers)
	overrideInt(&s.ReactionBacklog, file.Pools.Reactions.Backlog)

	overrideInt(&cfg.MaxHops, file.Chain.MaxHops)

	if err := overrideDuration(&s.ExecutionTimeout, file.ExecutionTimeout); err != nil {
		return WorkerConfig{}, fmt.Errorf("%w: execution_timeout: %w", ErrInvalidConfig, err)
	}

	if err := overrideDuration(&s.RetryStaleAfter, file.RetryStaleAfter); err != nil {
		return WorkerConfig{}, fmt.Errorf("%w: retry_stale_after: %w", ErrInvalidConfig, err)
	}

	if err := ValidateWorkerConfig(cfg); err != nil {
		return WorkerConfig{}, err
	}

	return cfg, nil
}

// LoadWorkerConfigOrDefault returns the defaults when filepath is empty.
func LoadWorkerConfigOrDefault(filepath string) (WorkerConfig, error) {
	if filepath == "" {
		return DefaultWorkerConfig(), nil
	}

	return LoadWorkerConfig(filepath)
}

// ValidateWorkerConfig validates the schedules and limits
func ValidateWorkerConfig(cfg WorkerConfig) error {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

	schedules := map[string]string{
		"events":     cfg.Scheduler.EventsSchedule,
		"queued":     cfg.Scheduler.QueuedSchedule,
		"retries":    cfg.Scheduler.RetriesSchedule,
		"timeouts":   cfg.Scheduler.TimeoutsSchedule,
		"statistics": cfg.Scheduler.StatisticsSchedule,
	}

	for name, spec := range schedules {
		if _, err := parser.Parse(spec); err != nil {
			return fmt.Errorf("%w: schedule %s %q: %w", ErrInvalidConfig, name, spec, err)
		}
	}

	if cfg.MaxHops < 1 {
		return fmt.Errorf("%w: chain.max_hops must be positive", ErrInvalidConfig)
	}

	return nil
}

func overrideString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func overrideInt(dst *int, v int) {
	if v > 0 {
		*dst = v
	}
}

func overrideDuration(dst *time.Duration, v string) error {
	if v == "" {
		return nil
	}

	d, err := time.ParseDuration(v)
	if err != nil {
		return err
	}

	if d <= 0 {
		return errors.New("must be positive")
	}

	*dst = d

	return nil
}
