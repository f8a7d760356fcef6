// Package reconnect drives an adapter session through
// disconnected -> connecting -> connected with capped exponential backoff.
//
// The delay before retry n (counting from zero) is min(base*2^n, max).
// The attempt counter resets on every successful connect. Exactly one
// connection_down event is published per loss of session, however many
// dial attempts fail before the next connection_up.
package reconnect

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/nerrad567/gray-logic-lighting/internal/lighting"
)

const (
	DefaultBaseDelay = time.Second
	DefaultMaxDelay  = 30 * time.Second
)

var (
	// ErrAlreadyRunning is returned by Start on a running machine.
	ErrAlreadyRunning = errors.New("reconnect: already running")

	// ErrStreamEnded is recorded when a session ends without an error.
	ErrStreamEnded = errors.New("reconnect: session ended")

	// ErrStopped is recorded when the machine is stopped deliberately.
	ErrStopped = errors.New("reconnect: stopped")
)

// ServeFunc runs an established session until it fails or ctx ends.
type ServeFunc func(ctx context.Context) error

// DialFunc establishes a session. On success it returns the function that
// serves it.
type DialFunc func(ctx context.Context) (ServeFunc, error)

// Publisher receives connection_up and connection_down events.
type Publisher interface {
	Publish(ev lighting.Event)
}

// Logger is the logging interface used by the machine.
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

// Options configures a Machine.
type Options struct {
	Protocol  lighting.Protocol
	Dial      DialFunc
	Events    Publisher
	BaseDelay time.Duration
	MaxDelay  time.Duration
	Logger    Logger
	// OnTransition, if set, is called after every status change.
	OnTransition func(lighting.Connection)
}

// Machine owns one adapter's connection lifecycle. Several machines may
// run side by side; none of them share state.
type Machine struct {
	opts    Options
	logger  Logger
	backoff *backoff.ExponentialBackOff

	// sleep waits for d or until ctx ends, reporting whether d elapsed.
	sleep func(ctx context.Context, d time.Duration) bool

	mu            sync.Mutex
	conn          lighting.Connection
	announcedDown bool
	cancel        context.CancelFunc
	done          chan struct{}
}

// New creates a stopped machine in the disconnected state.
func New(opts Options) *Machine {
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = DefaultBaseDelay
	}
	if opts.MaxDelay < opts.BaseDelay {
		opts.MaxDelay = max(DefaultMaxDelay, opts.BaseDelay)
	}
	logger := opts.Logger
	if logger == nil {
		logger = noopLogger{}
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = opts.BaseDelay
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxInterval = opts.MaxDelay
	b.Reset()

	return &Machine{
		opts:    opts,
		logger:  logger,
		backoff: b,
		sleep:   sleepContext,
		conn: lighting.Connection{
			Protocol: opts.Protocol,
			Status:   lighting.StatusDisconnected,
			Since:    time.Now().UTC(),
		},
	}
}

// Start launches the connect loop. It returns immediately.
func (m *Machine) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.done != nil {
		return ErrAlreadyRunning
	}
	ctx, m.cancel = context.WithCancel(ctx)
	m.done = make(chan struct{})
	go m.run(ctx, m.done)
	return nil
}

// Stop cancels the session and any pending retry timer, then waits for the
// loop to exit. Safe to call on a machine that was never started.
func (m *Machine) Stop() {
	m.mu.Lock()
	cancel, done := m.cancel, m.done
	m.cancel, m.done = nil, nil
	m.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Running reports whether the connect loop is active.
func (m *Machine) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.done != nil
}

// Connection returns a snapshot of the connection record.
func (m *Machine) Connection() lighting.Connection {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.conn
}

// Fail records a terminal error that keeps the adapter from connecting,
// such as a missing credential. The machine is not started.
func (m *Machine) Fail(err error) {
	m.transition(func(c *lighting.Connection) {
		c.Status = lighting.StatusError
		c.LastError = err.Error()
	})
}

func (m *Machine) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	for {
		if ctx.Err() != nil {
			m.disconnected(ErrStopped)
			return
		}

		m.transition(func(c *lighting.Connection) {
			c.Status = lighting.StatusConnecting
		})

		serve, err := m.opts.Dial(ctx)
		if err == nil {
			m.connected()
			err = serve(ctx)
			if err == nil {
				err = ErrStreamEnded
			}
		}

		if ctx.Err() != nil {
			m.disconnected(ErrStopped)
			return
		}
		m.disconnected(err)

		delay := m.nextDelay()
		attempts := m.Connection().ReconnectAttempts
		m.logger.Warn("adapter session lost, retry scheduled",
			"protocol", m.opts.Protocol,
			"error", err,
			"attempt", attempts,
			"retry_in", delay,
		)

		if !m.sleep(ctx, delay) {
			m.disconnected(ErrStopped)
			return
		}
	}
}

// nextDelay advances the backoff policy and counts the attempt.
func (m *Machine) nextDelay() time.Duration {
	m.mu.Lock()
	delay := m.backoff.NextBackOff()
	m.mu.Unlock()

	m.transition(func(c *lighting.Connection) {
		c.ReconnectAttempts++
	})
	return delay
}

func (m *Machine) connected() {
	m.mu.Lock()
	m.backoff.Reset()
	m.announcedDown = false
	m.mu.Unlock()

	m.transition(func(c *lighting.Connection) {
		c.Status = lighting.StatusConnected
		c.ReconnectAttempts = 0
		c.LastError = ""
	})
	m.logger.Info("adapter connected", "protocol", m.opts.Protocol)
	m.publish(lighting.Event{
		Type:      lighting.EventConnectionUp,
		Timestamp: time.Now().UTC(),
		Source:    m.opts.Protocol,
	})
}

// disconnected moves to disconnected and announces it once per loss.
func (m *Machine) disconnected(cause error) {
	m.mu.Lock()
	announce := !m.announcedDown
	m.announcedDown = true
	m.mu.Unlock()

	m.transition(func(c *lighting.Connection) {
		c.Status = lighting.StatusDisconnected
		c.LastError = cause.Error()
	})

	if announce {
		m.publish(lighting.Event{
			Type:      lighting.EventConnectionDown,
			Timestamp: time.Now().UTC(),
			Source:    m.opts.Protocol,
			Error:     cause.Error(),
		})
	}
}

func (m *Machine) transition(update func(*lighting.Connection)) {
	m.mu.Lock()
	prev := m.conn.Status
	update(&m.conn)
	if m.conn.Status != prev {
		m.conn.Since = time.Now().UTC()
	}
	snapshot := m.conn
	m.mu.Unlock()

	if m.opts.OnTransition != nil {
		m.opts.OnTransition(snapshot)
	}
}

func (m *Machine) publish(ev lighting.Event) {
	if m.opts.Events != nil {
		m.opts.Events.Publish(ev)
	}
}

func sleepContext(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
