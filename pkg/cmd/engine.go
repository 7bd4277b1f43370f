package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/dukex/area/pkg/chain"
	"github.com/dukex/area/pkg/credentials"
	"github.com/dukex/area/pkg/dedup"
	"github.com/dukex/area/pkg/dispatcher"
	"github.com/dukex/area/pkg/eventbus"
	"github.com/dukex/area/pkg/metrics"
	"github.com/dukex/area/pkg/otelhelper"
	"github.com/dukex/area/pkg/persistence"
	kafkareaction "github.com/dukex/area/pkg/reactions/kafka"
	"github.com/dukex/area/pkg/reactions/mqtt"
	"github.com/dukex/area/pkg/registry"
	"github.com/dukex/area/pkg/trigger"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	redis "github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/trace"
)

const (
	defaultHTTPTimeout = 30 * time.Second
	tokenKeyPrefix     = "area:tokens"
)

// EngineConfig holds everything needed to assemble the execution engine of one process.
// Optional integrations stay off while their URL is empty.
type EngineConfig struct {
	ServiceName  string
	DatabaseURL  string
	EventBus     string
	RedisURL     string
	KafkaBrokers []string
	PluginsPath  string
	MQTTURL      string
	InfluxURL    string
	InfluxToken  string
	InfluxOrg    string
	InfluxBucket string
	Otel         bool
	MaxHops      int
	Group        string
	Registerer   prometheus.Registerer
}

// Engine is the assembled store, bus, dispatcher and trigger path shared by the binaries.
type Engine struct {
	Persistence persistence.Persistence
	EventBus    eventbus.EventBus
	Redis       *redis.Client
	Registry    *registry.Registry
	Dispatcher  *dispatcher.Dispatcher
	Trigger     *trigger.Service
	Chain       *chain.Chain
	Metrics     *metrics.Metrics
	Tracer      trace.Tracer

	closers []func(context.Context) error
}

// NewEngine opens every client named by cfg. On error the clients opened so far are closed.
func NewEngine(ctx context.Context, cfg EngineConfig, logger *slog.Logger) (*Engine, error) {
	e := &Engine{}

	err := e.open(ctx, cfg, logger)
	if err != nil {
		if closeErr := e.Close(ctx); closeErr != nil {
			logger.WarnContext(ctx, "Failed to release clients after startup error", "error", closeErr)
		}

		return nil, err
	}

	return e, nil
}

func (e *Engine) open(ctx context.Context, cfg EngineConfig, logger *slog.Logger) error {
	tracer, shutdown, err := otelhelper.NewTracer(ctx, cfg.ServiceName, cfg.Otel)
	if err != nil {
		return fmt.Errorf("failed to initialize tracer: %w", err)
	}

	e.Tracer = tracer
	e.onClose(shutdown)

	if cfg.RedisURL != "" {
		e.Redis, err = NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			return err
		}

		e.onClose(func(context.Context) error { return e.Redis.Close() })
	}

	e.Persistence, err = NewPersistence(ctx, logger, cfg.DatabaseURL)
	if err != nil {
		return err
	}

	e.onClose(e.Persistence.Close)

	busCfg := EventBusConfig{
		Provider:     cfg.EventBus,
		Group:        cfg.Group,
		KafkaBrokers: cfg.KafkaBrokers,
		OtelEnabled:  cfg.Otel,
	}
	if e.Redis != nil {
		busCfg.Redis = e.Redis
	}

	e.EventBus, err = NewEventBus(busCfg, logger)
	if err != nil {
		return err
	}

	e.onClose(func(context.Context) error { return e.EventBus.Close() })

	deps, err := e.reactionDeps(ctx, cfg, logger)
	if err != nil {
		return err
	}

	e.Registry, err = NewRegistry(logger, cfg.PluginsPath, deps)
	if err != nil {
		return err
	}

	registerer := cfg.Registerer
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	e.Metrics = metrics.New(registerer)

	e.Dispatcher = dispatcher.New(
		e.Persistence.CatalogRepository(),
		e.Registry,
		logger,
		dispatcher.WithTokenProvider(e.tokenProvider()),
		dispatcher.WithMetrics(e.Metrics),
		dispatcher.WithTracer(e.Tracer),
	)

	e.Trigger = trigger.NewService(
		e.Persistence.CatalogRepository(),
		e.Persistence.ExecutionRepository(),
		e.EventBus,
		logger,
		trigger.WithDedupGuard(e.dedupGuard()),
	)

	var chainOpts []chain.Option
	if cfg.MaxHops > 0 {
		chainOpts = append(chainOpts, chain.WithMaxHops(cfg.MaxHops))
	}

	e.Chain = chain.New(e.Persistence.CatalogRepository(), e.Trigger, logger, chainOpts...)
	e.Trigger.UseFanOut(e.Chain)

	return nil
}

func (e *Engine) reactionDeps(ctx context.Context, cfg EngineConfig, logger *slog.Logger) (ReactionDeps, error) {
	deps := ReactionDeps{
		HTTPClient:   &http.Client{Timeout: defaultHTTPTimeout},
		InfluxOrg:    cfg.InfluxOrg,
		InfluxBucket: cfg.InfluxBucket,
	}

	if e.Redis != nil {
		deps.Redis = e.Redis
	}

	if len(cfg.KafkaBrokers) > 0 && cfg.KafkaBrokers[0] != "" {
		producer, err := kafkareaction.NewProducer(cfg.KafkaBrokers)
		if err != nil {
			return deps, fmt.Errorf("failed to create kafka producer: %w", err)
		}

		deps.KafkaProducer = producer
		e.onClose(func(context.Context) error { return producer.Close() })
	}

	if cfg.MQTTURL != "" {
		client, err := mqtt.Connect(cfg.MQTTURL, cfg.ServiceName+"-"+shortID())
		if err != nil {
			return deps, err
		}

		deps.MQTT = client
		e.onClose(func(context.Context) error {
			client.Disconnect(250)

			return nil
		})
	}

	if cfg.InfluxURL != "" {
		client, err := NewInfluxClient(ctx, cfg.InfluxURL, cfg.InfluxToken)
		if err != nil {
			return deps, err
		}

		deps.Influx = client
		e.onClose(func(context.Context) error {
			client.Close()

			return nil
		})
	}

	logger.DebugContext(ctx, "Reaction clients ready",
		"redis", deps.Redis != nil,
		"kafka", deps.KafkaProducer != nil,
		"mqtt", deps.MQTT != nil,
		"influxdb", deps.Influx != nil,
	)

	return deps, nil
}

// Without Redis, tokens come from an empty static provider and every token-requiring reaction
// fails as not connected.
func (e *Engine) tokenProvider() credentials.TokenProvider {
	if e.Redis != nil {
		return credentials.NewRedisProvider(e.Redis, tokenKeyPrefix)
	}

	return credentials.NewStaticProvider()
}

func (e *Engine) dedupGuard() dedup.Guard {
	if e.Redis != nil {
		return dedup.NewRedisGuard(e.Redis)
	}

	return dedup.NewMemoryGuard(time.Now)
}

func shortID() string {
	return uuid.NewString()[:8]
}

func (e *Engine) onClose(fn func(context.Context) error) {
	e.closers = append(e.closers, fn)
}

// Close releases clients in reverse opening order.
func (e *Engine) Close(ctx context.Context) error {
	var errs []error

	for i := len(e.closers) - 1; i >= 0; i-- {
		if err := e.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}

	e.closers = nil

	return errors.Join(errs...)
}
