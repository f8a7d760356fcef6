package eventbus

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/gray-logic-lighting/internal/lighting"
)

func receive(t *testing.T, sub *Subscription) lighting.Event {
	t.Helper()
	select {
	case ev, ok := <-sub.C():
		require.True(t, ok, "subscription closed")
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return lighting.Event{}
	}
}

func receiveType(t *testing.T, sub *Subscription, typ lighting.EventType) lighting.Event {
	t.Helper()
	for {
		ev := receive(t, sub)
		if ev.Type == typ {
			return ev
		}
	}
}

func TestBus_FanIn(t *testing.T) {
	bridge := NewStream()
	mesh := NewStream()

	bus := NewBus(Options{HeartbeatInterval: time.Hour})
	bus.Attach("bridge", bridge)
	bus.Attach("mesh", mesh)
	out := bus.Subscribe(16)

	bus.Start(context.Background())
	defer bus.Stop()

	require.Eventually(t, func() bool {
		return bridge.Subscribers() == 1 && mesh.Subscribers() == 1
	}, time.Second, 5*time.Millisecond)

	for i := range 3 {
		bridge.Publish(stateEvent("b", float64(i)))
	}
	mesh.Publish(lighting.StateChanged(lighting.ProtocolMesh, "m", lighting.State{On: lighting.Bool(true)}))

	var fromBridge []float64
	sawMesh := false
	for range 4 {
		ev := receive(t, out)
		switch ev.Source {
		case lighting.ProtocolBridge:
			fromBridge = append(fromBridge, *ev.State.Brightness)
		case lighting.ProtocolMesh:
			sawMesh = true
		}
	}

	assert.Equal(t, []float64{0, 1, 2}, fromBridge, "per-source order kept")
	assert.True(t, sawMesh)
	assert.Equal(t, 2, bus.Stats().Sources)
}

func TestBus_Heartbeat(t *testing.T) {
	bus := NewBus(Options{HeartbeatInterval: 20 * time.Millisecond})
	sub := bus.Subscribe(4)
	bus.Start(context.Background())
	defer bus.Stop()

	ev := receiveType(t, sub, lighting.EventHeartbeat)
	assert.False(t, ev.Timestamp.IsZero())
	assert.Empty(t, ev.DeviceExternalID)

	require.Eventually(t, func() bool {
		return bus.Stats().HeartbeatsSent >= 1
	}, time.Second, 5*time.Millisecond)
}

func TestBus_AttachAfterStart(t *testing.T) {
	bus := NewBus(Options{HeartbeatInterval: time.Hour})
	sub := bus.Subscribe(4)
	bus.Start(context.Background())
	defer bus.Stop()

	late := NewStream()
	bus.Attach("late", late)
	require.Eventually(t, func() bool { return late.Subscribers() == 1 }, time.Second, 5*time.Millisecond)

	late.Publish(stateEvent("x", 5))
	assert.Equal(t, "x", receive(t, sub).DeviceExternalID)
}

func TestBus_StopClosesSubscribersAndReleasesSources(t *testing.T) {
	src := NewStream()
	bus := NewBus(Options{HeartbeatInterval: time.Hour})
	bus.Attach("src", src)
	sub := bus.Subscribe(4)

	bus.Start(context.Background())
	require.Eventually(t, func() bool { return src.Subscribers() == 1 }, time.Second, 5*time.Millisecond)

	bus.Stop()
	bus.Stop()

	_, ok := <-sub.C()
	assert.False(t, ok)
	assert.Zero(t, src.Subscribers(), "source subscription released")
}

func TestBus_ContextCancelStopsForwarding(t *testing.T) {
	src := NewStream()
	bus := NewBus(Options{HeartbeatInterval: time.Hour})
	bus.Attach("src", src)

	ctx, cancel := context.WithCancel(context.Background())
	bus.Start(ctx)
	require.Eventually(t, func() bool { return src.Subscribers() == 1 }, time.Second, 5*time.Millisecond)

	cancel()
	require.Eventually(t, func() bool { return src.Subscribers() == 0 }, time.Second, 5*time.Millisecond)
	bus.Stop()
}

func TestBus_SlowSubscriberDrops(t *testing.T) {
	bus := NewBus(Options{HeartbeatInterval: time.Hour})
	slow := bus.Subscribe(1)
	bus.Start(context.Background())
	defer bus.Stop()

	for i := range 10 {
		bus.Publish(stateEvent("l", float64(i)))
	}

	ev := receive(t, slow)
	assert.Equal(t, 9.0, *ev.State.Brightness, "latest event survives")
	assert.Equal(t, uint64(9), slow.Dropped())
	assert.Equal(t, uint64(9), bus.Stats().Dropped)
}
