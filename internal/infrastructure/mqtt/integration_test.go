//go:build integration

package mqtt

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-lighting/internal/infrastructure/config"
)

// Integration tests need a broker at 127.0.0.1:1883.
//
// Run with:
//   go test -tags=integration -count=1 -v ./internal/infrastructure/mqtt/...

func integrationConfig(clientID string) config.MQTTConfig {
	return config.MQTTConfig{
		Broker: config.MQTTBrokerConfig{
			Host:     "127.0.0.1",
			Port:     1883,
			ClientID: clientID,
		},
		QoS: 1,
		Reconnect: config.MQTTReconnectConfig{
			InitialDelay: 1,
			MaxDelay:     5,
		},
	}
}

func TestIntegration_ConnectAndClose(t *testing.T) {
	client, err := Connect(integrationConfig("graylogic-lighting-int-connect"))
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	if !client.IsConnected() {
		t.Error("IsConnected() = false, want true")
	}
	if err := client.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}

	if err := client.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if client.IsConnected() {
		t.Error("IsConnected() = true after Close")
	}
}

func TestIntegration_SubscriptionTracking(t *testing.T) {
	client, err := Connect(integrationConfig("graylogic-lighting-int-subs"))
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()

	topics := Topics{}
	patterns := []string{
		topics.BridgeResponses("matter"),
		topics.BridgeStates("matter"),
		topics.BridgeDiscovery("matter"),
	}
	handler := func(string, []byte) error { return nil }

	for _, p := range patterns {
		if err := client.Subscribe(p, 1, handler); err != nil {
			t.Fatalf("Subscribe(%s) error = %v", p, err)
		}
	}
	if got := client.SubscriptionCount(); got != len(patterns) {
		t.Errorf("SubscriptionCount() = %d, want %d", got, len(patterns))
	}

	if err := client.Unsubscribe(patterns[0]); err != nil {
		t.Fatalf("Unsubscribe() error = %v", err)
	}
	if client.HasSubscription(patterns[0]) {
		t.Errorf("HasSubscription(%s) = true after unsubscribe", patterns[0])
	}
}

func TestIntegration_RequestResponseRoundtrip(t *testing.T) {
	requester, err := Connect(integrationConfig("graylogic-lighting-int-req"))
	if err != nil {
		t.Fatalf("Connect() requester error = %v", err)
	}
	defer requester.Close()

	controller, err := Connect(integrationConfig("graylogic-lighting-int-ctl"))
	if err != nil {
		t.Fatalf("Connect() controller error = %v", err)
	}
	defer controller.Close()

	topics := Topics{}
	err = controller.Subscribe(topics.BridgeRequest("matter", "+"), 1, func(_ string, p []byte) error {
		return controller.Publish(topics.BridgeResponse("matter", "req-1"), p, 1, false)
	})
	if err != nil {
		t.Fatalf("controller Subscribe() error = %v", err)
	}

	received := make(chan string, 1)
	var once sync.Once
	err = requester.Subscribe(topics.BridgeResponses("matter"), 1, func(_ string, p []byte) error {
		once.Do(func() { received <- string(p) })
		return nil
	})
	if err != nil {
		t.Fatalf("requester Subscribe() error = %v", err)
	}

	time.Sleep(100 * time.Millisecond)

	if err := requester.PublishJSON(topics.BridgeRequest("matter", "req-1"), map[string]string{"action": "ping"}, 1, false); err != nil {
		t.Fatalf("PublishJSON() error = %v", err)
	}

	select {
	case msg := <-received:
		if msg != `{"action":"ping"}` {
			t.Errorf("received %q", msg)
		}
	case <-time.After(5 * time.Second):
		t.Error("timeout waiting for response")
	}
}

func TestIntegration_ListenersRun(t *testing.T) {
	var connects atomic.Int32

	client, err := Connect(integrationConfig("graylogic-lighting-int-listen"))
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()

	client.OnConnect(func() { connects.Add(1) })
	client.handleConnect()

	if got := connects.Load(); got != 1 {
		t.Errorf("connect listener ran %d times, want 1", got)
	}
}
