package mqtt_test

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/dukex/area/pkg/faults"
	"github.com/dukex/area/pkg/protocol"
	"github.com/dukex/area/pkg/reactions/mqtt"
	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	mqttserver "github.com/mochi-mqtt/server/v2"
	"github.com/mochi-mqtt/server/v2/hooks/auth"
	"github.com/mochi-mqtt/server/v2/listeners"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startBroker(t *testing.T) string {
	t.Helper()

	listener, err := net.Listen("tcp", "localhost:0")
	require.NoError(t, err)

	address := listener.Addr().String()
	require.NoError(t, listener.Close())

	broker := mqttserver.New(nil)
	require.NoError(t, broker.AddHook(new(auth.AllowHook), nil))
	require.NoError(t, broker.AddListener(listeners.NewTCP(listeners.Config{
		ID:      "area-test",
		Address: address,
	})))

	go func() {
		_ = broker.Serve()
	}()

	t.Cleanup(func() {
		_ = broker.Close()
	})

	return "tcp://" + address
}

func TestReaction_Handle(t *testing.T) {
	brokerURL := startBroker(t)

	var (
		client pahomqtt.Client
		err    error
	)

	require.Eventually(t, func() bool {
		client, err = mqtt.Connect(brokerURL, "area-reaction")

		return err == nil
	}, 5*time.Second, 100*time.Millisecond)

	defer client.Disconnect(100)

	subscriber, err := mqtt.Connect(brokerURL, "area-subscriber")
	require.NoError(t, err)

	defer subscriber.Disconnect(100)

	received := make(chan string, 1)
	token := subscriber.Subscribe("area/devices/lamp", 1, func(_ pahomqtt.Client, msg pahomqtt.Message) {
		received <- string(msg.Payload())
	})
	require.True(t, token.WaitTimeout(5*time.Second))
	require.NoError(t, token.Error())

	reaction := mqtt.New(client, slog.Default())

	result, err := reaction.Handle(context.Background(), protocol.Request{
		Input: map[string]any{"device": "lamp", "state": "on"},
		Params: map[string]any{
			"topic": "area/devices/{{ .input.device }}",
			"qos":   float64(1),
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "area/devices/lamp", result["topic"])
	assert.Equal(t, 1, result["qos"])

	select {
	case payload := <-received:
		assert.JSONEq(t, `{"device":"lamp","state":"on"}`, payload)
	case <-time.After(5 * time.Second):
		t.Fatal("message not delivered")
	}
}

func TestReaction_Handle_Validation(t *testing.T) {
	reaction := mqtt.New(pahomqtt.NewClient(pahomqtt.NewClientOptions()), slog.Default())

	tests := []struct {
		name    string
		params  map[string]any
		wantErr error
	}{
		{"missing topic", map[string]any{}, mqtt.ErrMissingTopic},
		{"qos too high", map[string]any{"topic": "a", "qos": 3}, mqtt.ErrInvalidQoS},
		{"qos not a number", map[string]any{"topic": "a", "qos": "high"}, mqtt.ErrInvalidQoS},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := reaction.Handle(context.Background(), protocol.Request{Params: tt.params})

			require.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, faults.KindValidation, faults.KindOf(err))
		})
	}
}

func TestConnect_Unreachable(t *testing.T) {
	_, err := mqtt.Connect(fmt.Sprintf("tcp://localhost:%d", 1), "area-unreachable")

	require.Error(t, err)
}
