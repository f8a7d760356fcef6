package eventbus

import (
	"context"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-lighting/internal/lighting"
)

// DefaultHeartbeatInterval is the heartbeat period when none is configured.
const DefaultHeartbeatInterval = 30 * time.Second

// Logger is the logging interface used by the bus.
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

// Source is anything the bus can pull events from. Protocol adapters
// implement it.
type Source interface {
	Subscribe(buffer int) *Subscription
}

// Options configures a Bus.
type Options struct {
	// HeartbeatInterval defaults to 30s.
	HeartbeatInterval time.Duration
	// SourceBuffer is the buffer the bus requests from each source.
	SourceBuffer int
	Logger       Logger
}

// Stats is a point-in-time snapshot of bus counters.
type Stats struct {
	Sources        int    `json:"sources"`
	Subscribers    int    `json:"subscribers"`
	Published      uint64 `json:"published"`
	Dropped        uint64 `json:"dropped"`
	SourceDropped  uint64 `json:"source_dropped"`
	HeartbeatsSent uint64 `json:"heartbeats_sent"`
}

type attached struct {
	name string
	src  Source
	sub  *Subscription
}

// Bus merges adapter streams into one output stream and adds periodic
// heartbeats. Sources may be attached before or after Start.
type Bus struct {
	out    *Stream
	opts   Options
	logger Logger

	mu         sync.Mutex
	sources    []*attached
	ctx        context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	heartbeats uint64
	stopped    bool
}

// NewBus creates a bus. Call Start to begin forwarding.
func NewBus(opts Options) *Bus {
	if opts.HeartbeatInterval <= 0 {
		opts.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if opts.SourceBuffer <= 0 {
		opts.SourceBuffer = 256
	}
	logger := opts.Logger
	if logger == nil {
		logger = noopLogger{}
	}
	return &Bus{
		out:    NewStream(),
		opts:   opts,
		logger: logger,
	}
}

// Attach adds a source. If the bus is running, forwarding starts at once.
func (b *Bus) Attach(name string, src Source) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.stopped {
		return
	}
	a := &attached{name: name, src: src}
	b.sources = append(b.sources, a)
	if b.ctx != nil {
		b.forward(a)
	}
}

// Start begins forwarding from every attached source and emitting
// heartbeats until ctx is cancelled or Stop is called.
func (b *Bus) Start(ctx context.Context) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.ctx != nil || b.stopped {
		return
	}
	b.ctx, b.cancel = context.WithCancel(ctx)
	for _, a := range b.sources {
		b.forward(a)
	}

	b.wg.Add(1)
	go b.heartbeatLoop(b.ctx)

	b.logger.Info("event bus started",
		"sources", len(b.sources),
		"heartbeat", b.opts.HeartbeatInterval,
	)
}

// forward starts one goroutine per source so per-source order is kept.
// Caller holds b.mu.
func (b *Bus) forward(a *attached) {
	a.sub = a.src.Subscribe(b.opts.SourceBuffer)
	ctx := b.ctx
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		defer a.sub.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-a.sub.C():
				if !ok {
					b.logger.Debug("event source closed", "source", a.name)
					return
				}
				b.out.Publish(ev)
			}
		}
	}()
}

func (b *Bus) heartbeatLoop(ctx context.Context) {
	defer b.wg.Done()
	ticker := time.NewTicker(b.opts.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case t := <-ticker.C:
			b.mu.Lock()
			b.heartbeats++
			b.mu.Unlock()
			b.out.Publish(lighting.Event{
				Type:      lighting.EventHeartbeat,
				Timestamp: t.UTC(),
			})
		}
	}
}

// Subscribe attaches a consumer to the merged stream.
func (b *Bus) Subscribe(buffer int) *Subscription {
	return b.out.Subscribe(buffer)
}

// Publish injects an event directly into the merged stream.
func (b *Bus) Publish(ev lighting.Event) {
	b.out.Publish(ev)
}

// Stop halts forwarding, waits for the goroutines and closes every
// subscriber channel.
func (b *Bus) Stop() {
	b.mu.Lock()
	if b.stopped {
		b.mu.Unlock()
		return
	}
	b.stopped = true
	cancel := b.cancel
	b.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	b.wg.Wait()
	b.out.Close()
	b.logger.Info("event bus stopped")
}

// Stats returns the current counters.
func (b *Bus) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	st := Stats{
		Sources:        len(b.sources),
		Subscribers:    b.out.Subscribers(),
		Published:      b.out.Published(),
		Dropped:        b.out.Dropped(),
		HeartbeatsSent: b.heartbeats,
	}
	for _, a := range b.sources {
		if a.sub != nil {
			st.SourceDropped += a.sub.Dropped()
		}
	}
	return st
}
