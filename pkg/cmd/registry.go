// Package cmd provides common initialization functions for command-line applications.
package cmd

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/IBM/sarama"
	"github.com/dukex/area/pkg/protocol"
	"github.com/dukex/area/pkg/reactions/httprequest"
	"github.com/dukex/area/pkg/reactions/influxdb"
	"github.com/dukex/area/pkg/reactions/kafka"
	"github.com/dukex/area/pkg/reactions/logmessage"
	"github.com/dukex/area/pkg/reactions/mqtt"
	"github.com/dukex/area/pkg/reactions/redisqueue"
	"github.com/dukex/area/pkg/reactions/transform"
	"github.com/dukex/area/pkg/registry"
	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	redis "github.com/redis/go-redis/v9"
)

// ReactionDeps carries the clients of the built-in reactions. Reactions whose client is nil are
// not registered and their pairs fall back to the generic handler.
type ReactionDeps struct {
	HTTPClient    *http.Client
	Redis         redis.UniversalClient
	KafkaProducer sarama.SyncProducer
	MQTT          pahomqtt.Client
	Influx        influxdb2.Client
	InfluxOrg     string
	InfluxBucket  string
}

func nativeReactions(log *slog.Logger, deps ReactionDeps) []protocol.ReactionPlugin {
	reactions := []protocol.ReactionPlugin{
		httprequest.New(log, deps.HTTPClient),
		logmessage.New(log),
		transform.New(),
	}

	if deps.Redis != nil {
		reactions = append(reactions, redisqueue.New(deps.Redis, log))
	}

	if deps.KafkaProducer != nil {
		reactions = append(reactions, kafka.New(deps.KafkaProducer, log))
	}

	if deps.MQTT != nil {
		reactions = append(reactions, mqtt.New(deps.MQTT, log))
	}

	if deps.Influx != nil {
		reactions = append(reactions, influxdb.New(deps.Influx, deps.InfluxOrg, deps.InfluxBucket, log))
	}

	return reactions
}

// NewRegistry registers the built-in reactions, then the plugins found under pluginsPath so a
// plugin can replace a built-in.
func NewRegistry(log *slog.Logger, pluginsPath string, deps ReactionDeps) (*registry.Registry, error) {
	reg := registry.NewRegistry(log)

	for _, reaction := range nativeReactions(log, deps) {
		reg.Register(reaction.Key(), reaction)
	}

	if pluginsPath == "" {
		return reg, nil
	}

	count, err := reg.LoadPlugins(pluginsPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load reaction plugins: %w", err)
	}

	log.Info("Registered reactions", "plugins", count, "total", len(reg.Keys()))

	return reg, nil
}
