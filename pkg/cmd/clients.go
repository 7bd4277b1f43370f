package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	redis "github.com/redis/go-redis/v9"
)

var ErrInfluxNotReady = errors.New("influxdb is not ready")

// NewRedisClient parses a redis:// URL and checks the connection.
func NewRedisClient(ctx context.Context, redisURL string) (*redis.Client, error) {
	options, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}

	client := redis.NewClient(options)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()

		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return client, nil
}

// NewInfluxClient opens an InfluxDB v2 client and checks that the server answers.
func NewInfluxClient(ctx context.Context, serverURL, token string) (influxdb2.Client, error) {
	client := influxdb2.NewClientWithOptions(serverURL, token, influxdb2.DefaultOptions().SetHTTPRequestTimeout(10))

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	ok, err := client.Ping(pingCtx)
	if err != nil {
		client.Close()

		return nil, fmt.Errorf("failed to connect to influxdb: %w", err)
	}

	if !ok {
		client.Close()

		return nil, fmt.Errorf("%w: %s", ErrInfluxNotReady, serverURL)
	}

	return client, nil
}
