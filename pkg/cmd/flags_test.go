package cmd

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	cli "github.com/urfave/cli/v3"
)

func TestEngineConfigFromCommand(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		env      map[string]string
		expected EngineConfig
	}{
		{
			name: "defaults",
			expected: EngineConfig{
				ServiceName: "area-test",
				DatabaseURL: "memory://",
				EventBus:    "redis",
				RedisURL:    "redis://localhost:6379/0",
				PluginsPath: "./plugins",
			},
		},
		{
			name: "flags",
			args: []string{
				"--database-url", "postgres://localhost/area",
				"--event-bus", "kafka",
				"--kafka-brokers", "k1:9092,k2:9092",
				"--mqtt-url", "tcp://localhost:1883",
				"--otel-enabled",
			},
			expected: EngineConfig{
				ServiceName:  "area-test",
				DatabaseURL:  "postgres://localhost/area",
				EventBus:     "kafka",
				RedisURL:     "redis://localhost:6379/0",
				KafkaBrokers: []string{"k1:9092", "k2:9092"},
				PluginsPath:  "./plugins",
				MQTTURL:      "tcp://localhost:1883",
				Otel:         true,
			},
		},
		{
			name: "environment",
			env: map[string]string{
				"EVENT_BUS_TYPE":  "gochannel",
				"REDIS_URL":       "redis://cache:6379/1",
				"INFLUXDB_URL":    "http://influx:8086",
				"INFLUXDB_ORG":    "area",
				"INFLUXDB_BUCKET": "executions",
			},
			expected: EngineConfig{
				ServiceName:  "area-test",
				DatabaseURL:  "memory://",
				EventBus:     "gochannel",
				RedisURL:     "redis://cache:6379/1",
				PluginsPath:  "./plugins",
				InfluxURL:    "http://influx:8086",
				InfluxOrg:    "area",
				InfluxBucket: "executions",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			var got EngineConfig

			command := &cli.Command{
				Name:  "area-test",
				Flags: EngineFlags(),
				Action: func(_ context.Context, command *cli.Command) error {
					got = EngineConfigFromCommand(command, "area-test")

					return nil
				},
			}

			err := command.Run(context.Background(), append([]string{"area-test"}, tt.args...))
			require.NoError(t, err)

			assert.Equal(t, tt.expected, got)
		})
	}
}
