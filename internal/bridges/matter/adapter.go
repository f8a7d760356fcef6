package matter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/gray-logic-lighting/internal/bridges/reconnect"
	"github.com/nerrad567/gray-logic-lighting/internal/credential"
	"github.com/nerrad567/gray-logic-lighting/internal/eventbus"
	"github.com/nerrad567/gray-logic-lighting/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-lighting/internal/lighting"
)

// controllerProtocol is the protocol segment of the controller's topics.
const controllerProtocol = "matter"

// Defaults for Options.
const (
	DefaultRequestTimeout    = 10 * time.Second
	DefaultCommissionTimeout = 2 * time.Minute
)

// Logger is the logging interface used by the adapter.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Transport is the MQTT client the adapter talks through. *mqtt.Client
// satisfies it.
type Transport interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	IsConnected() bool
}

// Options configures an Adapter.
type Options struct {
	RequestTimeout    time.Duration
	CommissionTimeout time.Duration
	QoS               byte
	BaseDelay         time.Duration
	MaxDelay          time.Duration
	Logger            Logger
	OnTransition      func(lighting.Connection)
}

type reply struct {
	resp ResponseMessage
	err  error
}

// Adapter drives one mesh controller. Instances share nothing.
type Adapter struct {
	transport Transport
	store     credential.Store
	opts      Options
	logger    Logger
	stream    *eventbus.Stream
	machine   *reconnect.Machine
	topics    mqtt.Topics

	mu   sync.RWMutex
	cred *credential.Credential
	lost chan error // loss signal of the current session

	pendingMu sync.Mutex
	pending   map[string]chan reply
}

// New creates a disconnected adapter.
func New(transport Transport, store credential.Store, opts Options) *Adapter {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = DefaultRequestTimeout
	}
	if opts.CommissionTimeout <= 0 {
		opts.CommissionTimeout = DefaultCommissionTimeout
	}
	if opts.QoS == 0 {
		opts.QoS = 1
	}
	logger := opts.Logger
	if logger == nil {
		logger = noopLogger{}
	}

	a := &Adapter{
		transport: transport,
		store:     store,
		opts:      opts,
		logger:    logger,
		stream:    eventbus.NewStream(),
		pending:   make(map[string]chan reply),
	}
	a.machine = reconnect.New(reconnect.Options{
		Protocol:     lighting.ProtocolMesh,
		Dial:         a.dial,
		Events:       a.stream,
		BaseDelay:    opts.BaseDelay,
		MaxDelay:     opts.MaxDelay,
		Logger:       logger,
		OnTransition: opts.OnTransition,
	})
	return a
}

// Protocol returns lighting.ProtocolMesh.
func (a *Adapter) Protocol() lighting.Protocol { return lighting.ProtocolMesh }

// Connect looks up the mesh credential and starts the session loop. Without
// a credential the connection moves to the error status and a
// *lighting.ConnectionError wrapping lighting.ErrNoCredential is returned.
func (a *Adapter) Connect(ctx context.Context) error {
	cred, err := credential.Require(ctx, a.store, lighting.ProtocolMesh)
	if err != nil {
		a.machine.Fail(err)
		return err
	}

	a.mu.Lock()
	a.cred = &cred
	a.mu.Unlock()

	return a.machine.Start(ctx)
}

// Disconnect ends the session and cancels any pending retry.
func (a *Adapter) Disconnect() error {
	a.machine.Stop()
	return nil
}

// Subscribe returns a subscription to the adapter's event stream.
func (a *Adapter) Subscribe(buffer int) *eventbus.Subscription {
	return a.stream.Subscribe(buffer)
}

// Connection returns the current connection record.
func (a *Adapter) Connection() lighting.Connection {
	return a.machine.Connection()
}

// NotifyTransportLost ends the current session. Register it with the MQTT
// client's OnDisconnect.
func (a *Adapter) NotifyTransportLost(err error) {
	a.signalLost(fmt.Errorf("%w: %v", ErrTransportLost, err))
	a.failPending(ErrTransportLost)
}

// ListDevices lists the nodes commissioned on the fabric.
func (a *Adapter) ListDevices(ctx context.Context) ([]lighting.DiscoveredDevice, error) {
	var out struct {
		Nodes []NodeInfo `json:"nodes"`
	}
	if err := a.call(ctx, a.opts.RequestTimeout, ActionListNodes, "", nil, &out); err != nil {
		return nil, fmt.Errorf("listing mesh nodes: %w", err)
	}

	devices := make([]lighting.DiscoveredDevice, 0, len(out.Nodes))
	for _, n := range out.Nodes {
		if n.NodeID == "" {
			continue
		}
		devices = append(devices, discovered(n))
	}
	return devices, nil
}

// ReadState reads a node's attributes through the controller.
func (a *Adapter) ReadState(ctx context.Context, externalID string) (lighting.State, error) {
	var out struct {
		Reachable  *bool      `json:"reachable"`
		Attributes Attributes `json:"attributes"`
	}
	err := a.call(ctx, a.opts.RequestTimeout, ActionReadAttributes, externalID, nil, &out)
	if err != nil {
		var connErr *lighting.ConnectionError
		switch {
		case errors.As(err, &connErr):
			return lighting.State{}, err
		case controllerCode(err) == CodeUnknownNode:
			return lighting.State{}, fmt.Errorf("%w: %w", lighting.ErrNotFound, err)
		default:
			return lighting.State{}, fmt.Errorf("%w: %w", lighting.ErrDeviceUnreachable, err)
		}
	}

	s := stateFromAttributes(out.Attributes)
	if out.Reachable != nil {
		s.Reachable = lighting.Bool(*out.Reachable)
	}
	return s, nil
}

// WriteState clamps patch and invokes one cluster command per field group
// in lighting.WriteOrder. Every group is attempted; failures are collected
// into a *lighting.PartialFailureError.
func (a *Adapter) WriteState(ctx context.Context, externalID string, patch lighting.State) error {
	if _, err := a.session(); err != nil {
		return err
	}

	write := patch.Clamped()
	failed := make(map[lighting.FieldGroup]error)
	for _, g := range write.Groups() {
		inv, ok := commandFor(g, write)
		if !ok {
			continue
		}
		params := map[string]any{"command": inv.Command}
		if inv.Parameters != nil {
			params["arguments"] = inv.Parameters
		}
		if err := a.call(ctx, a.opts.RequestTimeout, ActionInvoke, externalID, params, nil); err != nil {
			a.logger.Warn("mesh sub-command failed",
				"node", externalID, "group", g, "command", inv.Command, "error", err)
			failed[g] = err
		}
	}

	if len(failed) > 0 {
		return &lighting.PartialFailureError{ExternalID: externalID, Failed: failed}
	}
	return nil
}

// Commission asks the controller to commission the device with the given
// pairing code onto the fabric.
func (a *Adapter) Commission(ctx context.Context, pairingCode string) (lighting.DiscoveredDevice, error) {
	pairingCode = strings.TrimSpace(pairingCode)
	if pairingCode == "" {
		return lighting.DiscoveredDevice{}, ErrInvalidPairingCode
	}

	var out struct {
		Node NodeInfo `json:"node"`
	}
	params := map[string]any{"pairing_code": pairingCode}
	if err := a.call(ctx, a.opts.CommissionTimeout, ActionCommission, "", params, &out); err != nil {
		return lighting.DiscoveredDevice{}, err
	}
	if out.Node.NodeID == "" {
		return lighting.DiscoveredDevice{}, fmt.Errorf("%w: commission response has no node id", ErrControllerError)
	}

	a.logger.Info("mesh node commissioned", "node", out.Node.NodeID, "type", out.Node.DeviceTypeID)
	return discovered(out.Node), nil
}

// Decommission removes a node from the fabric. A node the controller does
// not know is already gone.
func (a *Adapter) Decommission(ctx context.Context, externalID string) error {
	err := a.call(ctx, a.opts.CommissionTimeout, ActionRemoveNode, externalID, nil, nil)
	if controllerCode(err) == CodeUnknownNode {
		return nil
	}
	return err
}

func (a *Adapter) session() (credential.Credential, error) {
	a.mu.RLock()
	cred := a.cred
	a.mu.RUnlock()

	if cred == nil || !a.transport.IsConnected() {
		return credential.Credential{}, &lighting.ConnectionError{Protocol: lighting.ProtocolMesh, Err: lighting.ErrNotConnected}
	}
	return *cred, nil
}

// call sends one request and decodes the response data into out, which
// may be nil.
func (a *Adapter) call(ctx context.Context, timeout time.Duration, action, nodeID string, params map[string]any, out any) error {
	data, err := a.request(ctx, timeout, action, nodeID, params)
	if err != nil {
		return err
	}
	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%w: decoding %s response: %w", ErrControllerError, action, err)
	}
	return nil
}

func (a *Adapter) request(ctx context.Context, timeout time.Duration, action, nodeID string, params map[string]any) (json.RawMessage, error) {
	cred, err := a.session()
	if err != nil {
		return nil, err
	}

	id := uuid.NewString()
	ch := make(chan reply, 1)
	a.pendingMu.Lock()
	a.pending[id] = ch
	a.pendingMu.Unlock()
	defer func() {
		a.pendingMu.Lock()
		delete(a.pending, id)
		a.pendingMu.Unlock()
	}()

	payload, err := json.Marshal(RequestMessage{
		RequestID:  id,
		Timestamp:  time.Now().UTC(),
		Action:     action,
		Fabric:     cred.Host,
		Token:      cred.Secret,
		NodeID:     nodeID,
		Parameters: params,
	})
	if err != nil {
		return nil, fmt.Errorf("encoding %s request: %w", action, err)
	}
	if err := a.transport.Publish(a.topics.BridgeRequest(controllerProtocol, id), payload, a.opts.QoS, false); err != nil {
		return nil, fmt.Errorf("publishing %s request: %w", action, err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	select {
	case r := <-ch:
		if r.err != nil {
			return nil, r.err
		}
		if !r.resp.Success {
			if r.resp.Error == nil {
				return nil, fmt.Errorf("%w: %s failed", ErrControllerError, action)
			}
			return nil, fmt.Errorf("%w: %s: %w", ErrControllerError, action, r.resp.Error)
		}
		return r.resp.Data, nil
	case <-reqCtx.Done():
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %s after %v", ErrRequestTimeout, action, timeout)
	}
}

// controllerCode returns the controller error code carried by err, if any.
func controllerCode(err error) string {
	var re *ResponseError
	if errors.As(err, &re) {
		return re.Code
	}
	return ""
}

// dial subscribes to the controller's topics and pings it.
func (a *Adapter) dial(ctx context.Context) (reconnect.ServeFunc, error) {
	if !a.transport.IsConnected() {
		return nil, ErrTransportLost
	}

	subs := []struct {
		topic   string
		handler mqtt.MessageHandler
	}{
		{a.topics.BridgeResponses(controllerProtocol), a.handleResponse},
		{a.topics.BridgeStates(controllerProtocol), a.handleState},
		{a.topics.BridgeDiscovery(controllerProtocol), a.handleDiscovery},
		{a.topics.BridgeHealth(controllerProtocol), a.handleHealth},
	}
	for _, s := range subs {
		if err := a.transport.Subscribe(s.topic, a.opts.QoS, s.handler); err != nil {
			return nil, fmt.Errorf("subscribing to %s: %w", s.topic, err)
		}
	}

	lost := make(chan error, 1)
	a.mu.Lock()
	a.lost = lost
	a.mu.Unlock()

	if _, err := a.request(ctx, a.opts.RequestTimeout, ActionPing, "", nil); err != nil {
		return nil, fmt.Errorf("pinging controller: %w", err)
	}

	return func(ctx context.Context) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-lost:
			return err
		}
	}, nil
}

func (a *Adapter) signalLost(err error) {
	a.mu.RLock()
	lost := a.lost
	a.mu.RUnlock()
	if lost == nil {
		return
	}
	select {
	case lost <- err:
	default:
	}
}

func (a *Adapter) failPending(err error) {
	a.pendingMu.Lock()
	defer a.pendingMu.Unlock()
	for _, ch := range a.pending {
		select {
		case ch <- reply{err: err}:
		default:
		}
	}
}

func (a *Adapter) handleResponse(topic string, payload []byte) error {
	var resp ResponseMessage
	if err := json.Unmarshal(payload, &resp); err != nil {
		return fmt.Errorf("decoding controller response: %w", err)
	}
	if resp.RequestID == "" {
		resp.RequestID = lastSegment(topic)
	}

	a.pendingMu.Lock()
	ch, ok := a.pending[resp.RequestID]
	a.pendingMu.Unlock()
	if !ok {
		a.logger.Debug("dropping response for unknown request", "request_id", resp.RequestID)
		return nil
	}
	select {
	case ch <- reply{resp: resp}:
	default:
	}
	return nil
}

func (a *Adapter) handleState(topic string, payload []byte) error {
	var msg StateMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return fmt.Errorf("decoding state report: %w", err)
	}
	node := msg.NodeID
	if node == "" {
		node = lastSegment(topic)
	}

	s := stateFromAttributes(msg.Attributes)
	if msg.Reachable != nil {
		s.Reachable = lighting.Bool(*msg.Reachable)
	}
	if s.IsEmpty() {
		return nil
	}
	a.stream.Publish(lighting.StateChanged(lighting.ProtocolMesh, node, s))
	return nil
}

func (a *Adapter) handleDiscovery(_ string, payload []byte) error {
	var msg DiscoveryMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return fmt.Errorf("decoding discovery message: %w", err)
	}
	if msg.Node.NodeID == "" {
		return fmt.Errorf("discovery %q without node id", msg.Event)
	}

	switch msg.Event {
	case DiscoveryNodeAdded:
		a.stream.Publish(lighting.DeviceAdded(lighting.ProtocolMesh, discovered(msg.Node)))
	case DiscoveryNodeRemoved:
		a.stream.Publish(lighting.DeviceRemoved(lighting.ProtocolMesh, msg.Node.NodeID))
	default:
		a.logger.Debug("ignoring discovery event", "event", msg.Event)
	}
	return nil
}

func (a *Adapter) handleHealth(_ string, payload []byte) error {
	var msg HealthMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return fmt.Errorf("decoding controller health: %w", err)
	}
	if msg.Status == "offline" {
		a.logger.Warn("mesh controller offline", "reason", msg.Reason)
		a.signalLost(fmt.Errorf("%w: %s", ErrControllerOffline, msg.Reason))
		a.failPending(ErrControllerOffline)
	}
	return nil
}

func lastSegment(topic string) string {
	return topic[strings.LastIndex(topic, "/")+1:]
}
