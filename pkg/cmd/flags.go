package cmd

import cli "github.com/urfave/cli/v3"

// EngineFlags are the flags read by EngineConfigFromCommand.
func EngineFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "database-url",
			Usage:   "Database connection URL (postgres://... or memory://)",
			Value:   "memory://",
			Sources: cli.EnvVars("DATABASE_URL"),
		},
		&cli.StringFlag{
			Name:    "event-bus",
			Usage:   "Event bus type (redis, kafka, gochannel)",
			Value:   "redis",
			Sources: cli.EnvVars("EVENT_BUS_TYPE"),
		},
		&cli.StringFlag{
			Name:    "redis-url",
			Usage:   "Redis URL for the event stream, dedup keys and service tokens",
			Value:   "redis://localhost:6379/0",
			Sources: cli.EnvVars("REDIS_URL"),
		},
		&cli.StringSliceFlag{
			Name:    "kafka-brokers",
			Usage:   "Kafka brokers for the kafka event bus and the kafka.publish reaction",
			Sources: cli.EnvVars("KAFKA_BROKERS"),
		},
		&cli.StringFlag{
			Name:    "plugins-path",
			Usage:   "Path to the directory containing reaction plugins",
			Value:   "./plugins",
			Sources: cli.EnvVars("PLUGINS_PATH"),
		},
		&cli.StringFlag{
			Name:    "mqtt-url",
			Usage:   "MQTT broker for the mqtt.publish reaction (tcp://host:1883)",
			Sources: cli.EnvVars("MQTT_URL"),
		},
		&cli.StringFlag{
			Name:    "influxdb-url",
			Usage:   "InfluxDB server for the influxdb.write reaction",
			Sources: cli.EnvVars("INFLUXDB_URL"),
		},
		&cli.StringFlag{
			Name:    "influxdb-token",
			Usage:   "InfluxDB API token",
			Sources: cli.EnvVars("INFLUXDB_TOKEN"),
		},
		&cli.StringFlag{
			Name:    "influxdb-org",
			Usage:   "Default InfluxDB organization",
			Sources: cli.EnvVars("INFLUXDB_ORG"),
		},
		&cli.StringFlag{
			Name:    "influxdb-bucket",
			Usage:   "Default InfluxDB bucket",
			Sources: cli.EnvVars("INFLUXDB_BUCKET"),
		},
		&cli.BoolFlag{
			Name:    "otel-enabled",
			Usage:   "Export traces over OTLP/HTTP",
			Sources: cli.EnvVars("OTEL_ENABLED"),
		},
		&cli.StringFlag{
			Name:    "log-level",
			Usage:   "Log level (debug, info, warn, error)",
			Value:   "info",
			Sources: cli.EnvVars("LOG_LEVEL"),
		},
		&cli.StringFlag{
			Name:    "log-format",
			Usage:   "Log format (text, json)",
			Value:   "text",
			Sources: cli.EnvVars("LOG_FORMAT"),
		},
	}
}

// EngineConfigFromCommand reads EngineFlags.
func EngineConfigFromCommand(command *cli.Command, serviceName string) EngineConfig {
	cfg := EngineConfig{
		ServiceName:  serviceName,
		DatabaseURL:  command.String("database-url"),
		EventBus:     command.String("event-bus"),
		RedisURL:     command.String("redis-url"),
		PluginsPath:  command.String("plugins-path"),
		MQTTURL:      command.String("mqtt-url"),
		InfluxURL:    command.String("influxdb-url"),
		InfluxToken:  command.String("influxdb-token"),
		InfluxOrg:    command.String("influxdb-org"),
		InfluxBucket: command.String("influxdb-bucket"),
		Otel:         command.Bool("otel-enabled"),
	}

	if brokers := command.StringSlice("kafka-brokers"); len(brokers) > 0 {
		cfg.KafkaBrokers = brokers
	}

	return cfg
}
