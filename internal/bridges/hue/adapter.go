package hue

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-lighting/internal/bridges/reconnect"
	"github.com/nerrad567/gray-logic-lighting/internal/credential"
	"github.com/nerrad567/gray-logic-lighting/internal/eventbus"
	"github.com/nerrad567/gray-logic-lighting/internal/lighting"
)

// DefaultRequestTimeout bounds each REST call to the bridge.
const DefaultRequestTimeout = 5 * time.Second

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

// Options configures an Adapter.
type Options struct {
	RequestTimeout     time.Duration
	InsecureSkipVerify bool
	BaseDelay          time.Duration
	MaxDelay           time.Duration
	Logger             Logger
	// OnTransition is called on every connection status change.
	OnTransition func(lighting.Connection)
}

// Adapter connects to one bridge. Instances share nothing; several can
// run side by side.
type Adapter struct {
	store   credential.Store
	opts    Options
	logger  Logger
	stream  *eventbus.Stream
	machine *reconnect.Machine

	// streamClient has no overall timeout; the event stream is long-lived.
	httpClient   *http.Client
	streamClient *http.Client

	// newAPI builds the REST client for a credential. Tests replace it.
	newAPI func(cred credential.Credential) (lightAPI, error)

	mu     sync.RWMutex
	api    lightAPI
	cred   credential.Credential
	owners map[string][]string // device resource id -> light ids
}

// New creates a disconnected adapter that reads its credential from store.
func New(store credential.Store, opts Options) *Adapter {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = DefaultRequestTimeout
	}
	logger := opts.Logger
	if logger == nil {
		logger = noopLogger{}
	}

	a := &Adapter{
		store:        store,
		opts:         opts,
		logger:       logger,
		stream:       eventbus.NewStream(),
		httpClient:   newHTTPClient(opts.InsecureSkipVerify, opts.RequestTimeout),
		streamClient: newHTTPClient(opts.InsecureSkipVerify, 0),
		owners:       make(map[string][]string),
	}
	a.newAPI = func(cred credential.Credential) (lightAPI, error) {
		return newOpenhueAPI(cred.Host, cred.Secret, a.httpClient)
	}
	a.machine = reconnect.New(reconnect.Options{
		Protocol:     lighting.ProtocolBridge,
		Dial:         a.dial,
		Events:       a.stream,
		BaseDelay:    opts.BaseDelay,
		MaxDelay:     opts.MaxDelay,
		Logger:       logger,
		OnTransition: opts.OnTransition,
	})
	return a
}

// Protocol returns lighting.ProtocolBridge.
func (a *Adapter) Protocol() lighting.Protocol { return lighting.ProtocolBridge }

// Connect looks up the bridge credential and starts the session loop,
// which runs until ctx ends or Disconnect is called. Without a credential
// the connection moves to the error status and a *lighting.ConnectionError
// wrapping lighting.ErrNoCredential is returned.
func (a *Adapter) Connect(ctx context.Context) error {
	cred, err := credential.Require(ctx, a.store, lighting.ProtocolBridge)
	if err != nil {
		a.machine.Fail(err)
		return err
	}

	api, err := a.newAPI(cred)
	if err != nil {
		connErr := &lighting.ConnectionError{Protocol: lighting.ProtocolBridge, Err: err}
		a.machine.Fail(connErr)
		return connErr
	}

	a.mu.Lock()
	a.api = api
	a.cred = cred
	a.mu.Unlock()

	return a.machine.Start(ctx)
}

// Disconnect ends the session and cancels any pending retry.
func (a *Adapter) Disconnect() error {
	a.machine.Stop()
	return nil
}

// Subscribe returns a subscription to the adapter's event stream. The
// stream outlives reconnects.
func (a *Adapter) Subscribe(buffer int) *eventbus.Subscription {
	return a.stream.Subscribe(buffer)
}

// Connection returns the current connection record.
func (a *Adapter) Connection() lighting.Connection {
	return a.machine.Connection()
}

// ListDevices lists the bridge's lights with their rooms and radio
// connectivity. A failed room or connectivity listing only loses that
// information.
func (a *Adapter) ListDevices(ctx context.Context) ([]lighting.DiscoveredDevice, error) {
	api, err := a.session()
	if err != nil {
		return nil, err
	}

	lights, err := api.Lights(ctx)
	if err != nil {
		return nil, &lighting.ConnectionError{Protocol: lighting.ProtocolBridge, Err: err}
	}
	a.indexOwners(lights)

	rooms, err := api.Rooms(ctx)
	if err != nil {
		a.logger.Warn("bridge room listing failed", "error", err)
	}
	roomOf := make(map[string]room)
	for _, r := range rooms {
		for _, child := range r.Children {
			roomOf[child] = r
		}
	}

	links, err := api.Connectivity(ctx)
	if err != nil {
		a.logger.Warn("bridge connectivity listing failed", "error", err)
	}

	devices := make([]lighting.DiscoveredDevice, 0, len(lights))
	for _, l := range lights {
		dd := discovered(l)
		if up, ok := links[l.Owner]; ok {
			dd.Online = up
			dd.State.Reachable = lighting.Bool(up)
		}
		if r, ok := roomOf[l.Owner]; ok {
			dd.RoomName = r.Name
			dd.RoomArchetype = r.Archetype
		}
		devices = append(devices, dd)
	}
	return devices, nil
}

// ReadState reads a light's current state from the bridge.
func (a *Adapter) ReadState(ctx context.Context, externalID string) (lighting.State, error) {
	api, err := a.session()
	if err != nil {
		return lighting.State{}, err
	}

	l, err := api.Light(ctx, externalID)
	if err != nil {
		if errors.Is(err, ErrLightNotFound) {
			return lighting.State{}, fmt.Errorf("%w: %w", lighting.ErrNotFound, err)
		}
		return lighting.State{}, fmt.Errorf("%w: %w", lighting.ErrDeviceUnreachable, err)
	}
	return lightState(l), nil
}

// WriteState clamps patch and sends one update per field group in
// lighting.WriteOrder. Every group is attempted; failures are collected
// into a *lighting.PartialFailureError.
func (a *Adapter) WriteState(ctx context.Context, externalID string, patch lighting.State) error {
	api, err := a.session()
	if err != nil {
		return err
	}

	write := patch.Clamped()
	failed := make(map[lighting.FieldGroup]error)
	for _, g := range write.Groups() {
		if err := api.UpdateLight(ctx, externalID, write.Only(g)); err != nil {
			a.logger.Warn("bridge sub-command failed",
				"light", externalID, "group", g, "error", err)
			failed[g] = err
		}
	}

	if len(failed) > 0 {
		return &lighting.PartialFailureError{ExternalID: externalID, Failed: failed}
	}
	return nil
}

// session returns the REST client, or a connection error when Connect has
// not succeeded.
func (a *Adapter) session() (lightAPI, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.api == nil {
		return nil, &lighting.ConnectionError{Protocol: lighting.ProtocolBridge, Err: lighting.ErrNotConnected}
	}
	return a.api, nil
}

// dial verifies the bridge answers, then opens the event stream.
func (a *Adapter) dial(ctx context.Context) (reconnect.ServeFunc, error) {
	api, err := a.session()
	if err != nil {
		return nil, err
	}

	reqCtx, cancel := context.WithTimeout(ctx, a.opts.RequestTimeout)
	lights, err := api.Lights(reqCtx)
	cancel()
	if err != nil {
		return nil, err
	}
	a.indexOwners(lights)

	body, err := a.openStream(ctx)
	if err != nil {
		return nil, err
	}

	return func(ctx context.Context) error {
		defer body.Close()
		return readEventStream(body, func(data []byte) error {
			events, err := parseEvents(data)
			if err != nil {
				a.logger.Warn("dropping malformed bridge event", "error", err)
				return nil
			}
			for _, ev := range events {
				a.handle(ctx, ev)
			}
			return nil
		})
	}, nil
}

func (a *Adapter) openStream(ctx context.Context) (io.ReadCloser, error) {
	a.mu.RLock()
	cred := a.cred
	a.mu.RUnlock()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL(cred.Host)+eventStreamPath, nil)
	if err != nil {
		return nil, fmt.Errorf("building event stream request: %w", err)
	}
	req.Header.Set(applicationKeyHeader, cred.Secret)
	req.Header.Set("Accept", "text/event-stream")

	resp, err := a.streamClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("opening event stream: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close() //nolint:errcheck // nothing to read
		return nil, statusError("opening event stream", resp)
	}
	return resp.Body, nil
}

// handle translates one bridge event into lighting events.
func (a *Adapter) handle(ctx context.Context, ev clipEvent) {
	for _, res := range ev.Data {
		switch {
		case ev.Type == "update" && res.Type == "light":
			if s := res.state(); !s.IsEmpty() {
				a.stream.Publish(lighting.StateChanged(lighting.ProtocolBridge, res.ID, s))
			}

		case ev.Type == "update" && res.Type == "zigbee_connectivity":
			if res.Owner == nil {
				continue
			}
			reachable := res.Status == connectivityConnected
			for _, id := range a.lightsOwnedBy(res.Owner.Rid) {
				a.stream.Publish(lighting.StateChanged(lighting.ProtocolBridge, id,
					lighting.State{Reachable: lighting.Bool(reachable)}))
			}

		case ev.Type == "add" && res.Type == "light":
			a.announceAdded(ctx, res.ID)

		case ev.Type == "delete" && res.Type == "light":
			a.forgetLight(res.ID)
			a.stream.Publish(lighting.DeviceRemoved(lighting.ProtocolBridge, res.ID))
		}
	}
}

// announceAdded fetches a newly added light so the event carries a full
// device description.
func (a *Adapter) announceAdded(ctx context.Context, id string) {
	api, err := a.session()
	if err != nil {
		return
	}
	reqCtx, cancel := context.WithTimeout(ctx, a.opts.RequestTimeout)
	defer cancel()

	l, err := api.Light(reqCtx, id)
	if err != nil {
		a.logger.Warn("fetching added light failed", "light", id, "error", err)
		return
	}
	a.indexOwners([]light{l})
	a.stream.Publish(lighting.DeviceAdded(lighting.ProtocolBridge, discovered(l)))
}

func (a *Adapter) indexOwners(lights []light) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, l := range lights {
		if l.Owner == "" {
			continue
		}
		ids := a.owners[l.Owner]
		known := false
		for _, id := range ids {
			if id == l.ID {
				known = true
				break
			}
		}
		if !known {
			a.owners[l.Owner] = append(ids, l.ID)
		}
	}
}

func (a *Adapter) lightsOwnedBy(owner string) []string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return append([]string(nil), a.owners[owner]...)
}

func (a *Adapter) forgetLight(id string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for owner, ids := range a.owners {
		kept := ids[:0]
		for _, lid := range ids {
			if lid != id {
				kept = append(kept, lid)
			}
		}
		if len(kept) == 0 {
			delete(a.owners, owner)
		} else {
			a.owners[owner] = kept
		}
	}
}

// lightState converts a light resource to canonical state.
func lightState(l light) lighting.State {
	s := lighting.State{
		On:         l.On,
		Brightness: l.Brightness,
		Color:      l.Color,
	}
	if l.Mirek != nil {
		s.ColorTemperature = l.Mirek
	}
	return s.Clamped()
}

// discovered converts a light resource to a discovered device. Capabilities
// come from which feature objects the bridge reports for the light.
func discovered(l light) lighting.DiscoveredDevice {
	name := l.Name
	if name == "" {
		name = "Light " + l.ID
	}
	return lighting.DiscoveredDevice{
		ExternalID: l.ID,
		Name:       name,
		Type:       lighting.DeviceTypeLight,
		Capabilities: lighting.Capabilities{
			SupportsBrightness:       l.Dimmable,
			SupportsColor:            l.HasColor,
			SupportsColorTemperature: l.HasMirek,
			MinMirek:                 l.MirekMin,
			MaxMirek:                 l.MirekMax,
		},
		State:  lightState(l),
		Online: true,
	}
}
