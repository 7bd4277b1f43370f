package cmd

import (
	"cmp"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/dukex/area/pkg/channels/gochannel"
	"github.com/dukex/area/pkg/channels/kafka"
	"github.com/dukex/area/pkg/eventbus"
	"github.com/dukex/area/pkg/eventbus/redisstream"
	"github.com/dukex/area/pkg/events"
	redis "github.com/redis/go-redis/v9"
)

var (
	ErrUnsupportedEventBus = errors.New("unsupported event bus provider")
	ErrRedisRequired       = errors.New("redis event bus requires a redis client")
)

// EventBusConfig selects and tunes an event bus. Provider is one of redis, kafka or gochannel.
// StreamKey names the Redis stream and Topic the watermill topic. Zero values keep the defaults.
type EventBusConfig struct {
	Provider     string
	StreamKey    string
	Topic        string
	Group        string
	Block        time.Duration
	Redis        redis.UniversalClient
	KafkaBrokers []string
	OtelEnabled  bool
}

func NewEventBus(cfg EventBusConfig, logger *slog.Logger) (eventbus.EventBus, error) {
	switch cfg.Provider {
	case "redis", "":
		if cfg.Redis == nil {
			return nil, ErrRedisRequired
		}

		return redisstream.New(cfg.Redis, logger, redisOptions(cfg)...), nil
	case "kafka":
		pub, sub, err := kafka.CreateChannel(watermill.NewSlogLogger(logger), cfg.KafkaBrokers, cmp.Or(cfg.Group, events.ConsumerGroup), cfg.OtelEnabled)
		if err != nil {
			return nil, fmt.Errorf("failed to create Kafka pub/sub: %w", err)
		}

		return eventbus.NewWatermillBus(logger, pub, sub, watermillOptions(cfg)...), nil
	case "gochannel":
		pub, sub, err := gochannel.CreateChannel(watermill.NewSlogLogger(logger))
		if err != nil {
			return nil, fmt.Errorf("failed to create in-memory pub/sub: %w", err)
		}

		return eventbus.NewWatermillBus(logger, pub, sub, watermillOptions(cfg)...), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedEventBus, cfg.Provider)
	}
}

func redisOptions(cfg EventBusConfig) []redisstream.Option {
	var opts []redisstream.Option

	if cfg.StreamKey != "" {
		opts = append(opts, redisstream.WithStreamKey(cfg.StreamKey))
	}

	if cfg.Group != "" {
		opts = append(opts, redisstream.WithGroup(cfg.Group))
	}

	if cfg.Block > 0 {
		opts = append(opts, redisstream.WithBlock(cfg.Block))
	}

	return opts
}

func watermillOptions(cfg EventBusConfig) []eventbus.WatermillOption {
	var opts []eventbus.WatermillOption

	if cfg.Topic != "" {
		opts = append(opts, eventbus.WithTopic(cfg.Topic))
	}

	if cfg.Group != "" {
		opts = append(opts, eventbus.WithGroup(cfg.Group))
	}

	if cfg.Block > 0 {
		opts = append(opts, eventbus.WithBlock(cfg.Block))
	}

	return opts
}
