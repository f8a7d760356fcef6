package matter

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nerrad567/gray-logic-lighting/internal/credential"
	"github.com/nerrad567/gray-logic-lighting/internal/eventbus"
	"github.com/nerrad567/gray-logic-lighting/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-lighting/internal/lighting"
)

type memStore struct {
	mu    sync.Mutex
	creds map[lighting.Protocol]credential.Credential
}

func newMemStore(creds ...credential.Credential) *memStore {
	s := &memStore{creds: make(map[lighting.Protocol]credential.Credential)}
	for _, c := range creds {
		s.creds[c.Protocol] = c
	}
	return s
}

func (s *memStore) Lookup(_ context.Context, p lighting.Protocol) (credential.Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.creds[p]
	if !ok {
		return credential.Credential{}, credential.ErrNotFound
	}
	return c, nil
}

func (s *memStore) Put(_ context.Context, c credential.Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creds[c.Protocol] = c
	return nil
}

// fakeController answers requests the way the mesh controller does.
type fakeController struct {
	mu        sync.Mutex
	nodes     map[string]NodeInfo
	errs      map[string]*ResponseError // keyed by action or invoke command
	silent    bool
	requests  []RequestMessage
	commanded []string
}

func newFakeController(nodes ...NodeInfo) *fakeController {
	c := &fakeController{nodes: make(map[string]NodeInfo), errs: make(map[string]*ResponseError)}
	for _, n := range nodes {
		c.nodes[n.NodeID] = n
	}
	return c
}

func (c *fakeController) fail(key, code string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errs[key] = &ResponseError{Code: code, Message: "injected"}
}

func (c *fakeController) setSilent(v bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.silent = v
}

func (c *fakeController) commands() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.commanded...)
}

func (c *fakeController) lastRequest(action string) RequestMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := len(c.requests) - 1; i >= 0; i-- {
		if c.requests[i].Action == action {
			return c.requests[i]
		}
	}
	return RequestMessage{}
}

func (c *fakeController) answer(req RequestMessage) *ResponseMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.requests = append(c.requests, req)
	if c.silent {
		return nil
	}

	key := req.Action
	if req.Action == ActionInvoke {
		cmd, _ := req.Parameters["command"].(string)
		c.commanded = append(c.commanded, cmd)
		key = cmd
	}
	if e, ok := c.errs[key]; ok {
		return &ResponseMessage{Success: false, Error: e}
	}

	var data any
	switch req.Action {
	case ActionListNodes:
		nodes := make([]NodeInfo, 0, len(c.nodes))
		for _, n := range c.nodes {
			nodes = append(nodes, n)
		}
		data = map[string]any{"nodes": nodes}
	case ActionReadAttributes:
		n, ok := c.nodes[req.NodeID]
		if !ok {
			return &ResponseMessage{Error: &ResponseError{Code: CodeUnknownNode, Message: req.NodeID}}
		}
		data = map[string]any{"reachable": n.Reachable, "attributes": n.Attributes}
	case ActionCommission:
		n := NodeInfo{
			NodeID:       "77",
			DeviceTypeID: TypeDimmableLight,
			Clusters:     Clusters{OnOff: true, LevelControl: true},
			Reachable:    true,
		}
		c.nodes[n.NodeID] = n
		data = map[string]any{"node": n}
	case ActionRemoveNode:
		if _, ok := c.nodes[req.NodeID]; !ok {
			return &ResponseMessage{Error: &ResponseError{Code: CodeUnknownNode, Message: req.NodeID}}
		}
		delete(c.nodes, req.NodeID)
	}

	raw, _ := json.Marshal(data)
	return &ResponseMessage{Success: true, Data: raw}
}

// fakeBroker is an in-process MQTT broker with one controller attached.
type fakeBroker struct {
	mu         sync.Mutex
	connected  bool
	subs       map[string]mqtt.MessageHandler
	controller *fakeController
}

func newFakeBroker(ctl *fakeController) *fakeBroker {
	return &fakeBroker{connected: true, subs: make(map[string]mqtt.MessageHandler), controller: ctl}
}

func (b *fakeBroker) IsConnected() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.connected
}

func (b *fakeBroker) setConnected(v bool) {
	b.mu.Lock()
	b.connected = v
	b.mu.Unlock()
}

func (b *fakeBroker) Subscribe(topic string, _ byte, handler mqtt.MessageHandler) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.connected {
		return mqtt.ErrNotConnected
	}
	b.subs[topic] = handler
	return nil
}

func (b *fakeBroker) Publish(topic string, payload []byte, _ byte, _ bool) error {
	if !b.IsConnected() {
		return mqtt.ErrNotConnected
	}
	prefix := "graylogic/request/matter/"
	if !strings.HasPrefix(topic, prefix) {
		return nil
	}

	var req RequestMessage
	if err := json.Unmarshal(payload, &req); err != nil {
		return err
	}
	resp := b.controller.answer(req)
	if resp == nil {
		return nil
	}
	resp.RequestID = req.RequestID
	resp.Timestamp = time.Now().UTC()
	raw, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	b.deliver(mqtt.Topics{}.BridgeResponse("matter", req.RequestID), raw)
	return nil
}

// deliver hands payload to the subscription whose pattern matches topic.
func (b *fakeBroker) deliver(topic string, payload []byte) {
	b.mu.Lock()
	var handler mqtt.MessageHandler
	for pattern, h := range b.subs {
		if topicMatches(pattern, topic) {
			handler = h
			break
		}
	}
	b.mu.Unlock()
	if handler != nil {
		handler(topic, payload) //nolint:errcheck // errors are logged by the real client
	}
}

func (b *fakeBroker) deliverJSON(t *testing.T, topic string, v any) {
	t.Helper()
	raw, err := json.Marshal(v)
	require.NoError(t, err)
	b.deliver(topic, raw)
}

func topicMatches(pattern, topic string) bool {
	p := strings.Split(pattern, "/")
	s := strings.Split(topic, "/")
	if len(p) != len(s) {
		return false
	}
	for i := range p {
		if p[i] != "+" && p[i] != s[i] {
			return false
		}
	}
	return true
}

func meshCredential() credential.Credential {
	return credential.Credential{Protocol: lighting.ProtocolMesh, Host: "fabric-1", Secret: "ctl-token"}
}

func newTestAdapter(t *testing.T, broker *fakeBroker) *Adapter {
	t.Helper()
	a := New(broker, newMemStore(meshCredential()), Options{
		RequestTimeout:    200 * time.Millisecond,
		CommissionTimeout: 200 * time.Millisecond,
		BaseDelay:         10 * time.Millisecond,
		MaxDelay:          20 * time.Millisecond,
	})
	t.Cleanup(func() { a.Disconnect() }) //nolint:errcheck // Test cleanup
	return a
}

// connectedAdapter returns an adapter whose first session is up.
func connectedAdapter(t *testing.T, broker *fakeBroker) (*Adapter, *eventbus.Subscription) {
	t.Helper()
	a := newTestAdapter(t, broker)
	sub := a.Subscribe(32)
	t.Cleanup(sub.Close)
	require.NoError(t, a.Connect(context.Background()))
	nextOfType(t, sub, lighting.EventConnectionUp)
	return a, sub
}

func nextOfType(t *testing.T, sub *eventbus.Subscription, typ lighting.EventType) lighting.Event {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case ev, ok := <-sub.C():
			require.True(t, ok, "subscription closed")
			if ev.Type == typ {
				return ev
			}
		case <-timeout:
			t.Fatalf("no %s event", typ)
		}
	}
}

func colourNode() NodeInfo {
	return NodeInfo{
		NodeID:       "12",
		Name:         "Hall",
		DeviceTypeID: TypeExtendedColorLight,
		Clusters:     Clusters{OnOff: true, LevelControl: true, ColorControl: true, ColorTemperature: true},
		Reachable:    true,
		Attributes: Attributes{
			OnOff:                  lighting.Bool(true),
			CurrentLevel:           lighting.Int(127),
			CurrentX:               lighting.Int(29491),
			CurrentY:               lighting.Int(26869),
			ColorTemperatureMireds: lighting.Int(370),
		},
	}
}
