// Package health publishes the connection health of each protocol adapter
// to MQTT, retained on graylogic/health/{protocol}.
//
// A message goes out when an adapter's connection status changes and on
// every tick of the report interval, so a late subscriber never waits
// longer than one interval for a fresh view.
package health

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-lighting/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-lighting/internal/lighting"
)

// DefaultInterval is the periodic report interval.
const DefaultInterval = 30 * time.Second

// Status is the health of one adapter.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
	StatusStopping  Status = "stopping"
)

// Message is published for each adapter.
// Topic: graylogic/health/{protocol}
// QoS: 1, Retained: Yes
type Message struct {
	Adapter        lighting.Protocol   `json:"adapter"`
	Timestamp      time.Time           `json:"timestamp"`
	Status         Status              `json:"status"`
	Version        string              `json:"version"`
	UptimeSeconds  int64               `json:"uptime_seconds"`
	Connection     lighting.Connection `json:"connection"`
	DevicesManaged int                 `json:"devices_managed"`
	Reason         string              `json:"reason,omitempty"`
}

// Source is an adapter whose connection is reported.
type Source interface {
	Protocol() lighting.Protocol
	Connection() lighting.Connection
}

// Publisher sends health messages. *mqtt.Client satisfies it.
type Publisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	IsConnected() bool
}

// Logger is the logging interface used by the reporter.
type Logger interface {
	Error(msg string, args ...any)
}

// Config configures a Reporter.
type Config struct {
	Version   string
	Interval  time.Duration
	Publisher Publisher
	Sources   []Source
}

// Reporter publishes adapter health.
type Reporter struct {
	version   string
	startTime time.Time
	interval  time.Duration
	publisher Publisher
	sources   []Source
	topics    mqtt.Topics

	changed chan lighting.Protocol

	deviceCount   map[lighting.Protocol]int
	deviceCountMu sync.RWMutex

	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once

	logger   Logger
	loggerMu sync.RWMutex
}

// NewReporter creates a reporter. Call Start to begin reporting.
func NewReporter(cfg Config) *Reporter {
	interval := cfg.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Reporter{
		version:     cfg.Version,
		startTime:   time.Now(),
		interval:    interval,
		publisher:   cfg.Publisher,
		sources:     cfg.Sources,
		changed:     make(chan lighting.Protocol, 16),
		deviceCount: make(map[lighting.Protocol]int),
		done:        make(chan struct{}),
	}
}

// Start publishes every adapter's health now and then runs the report loop
// until ctx ends or Stop is called.
func (r *Reporter) Start(ctx context.Context) {
	r.wg.Add(1)
	go r.loop(ctx)
}

// Stop ends reporting and publishes a final stopping status for each
// adapter. Safe to call more than once.
func (r *Reporter) Stop() {
	r.stopOnce.Do(func() {
		close(r.done)
		r.wg.Wait()
		for _, s := range r.sources {
			//nolint:errcheck // Best-effort during shutdown
			r.publish(s, StatusStopping, "core stopping")
		}
	})
}

// Notify queues an immediate report for the adapter whose connection
// changed. It never blocks; use it as an adapter's OnTransition hook.
func (r *Reporter) Notify(conn lighting.Connection) {
	select {
	case r.changed <- conn.Protocol:
	default:
		// A periodic report follows anyway.
	}
}

// SetDeviceCount records how many catalogue devices an adapter owns.
func (r *Reporter) SetDeviceCount(p lighting.Protocol, n int) {
	r.deviceCountMu.Lock()
	r.deviceCount[p] = n
	r.deviceCountMu.Unlock()
}

// SetLogger sets the logger for publish failures.
func (r *Reporter) SetLogger(logger Logger) {
	r.loggerMu.Lock()
	r.logger = logger
	r.loggerMu.Unlock()
}

// PublishNow publishes every adapter's current health.
func (r *Reporter) PublishNow() error {
	var firstErr error
	for _, s := range r.sources {
		status, reason := Evaluate(s.Connection())
		if err := r.publish(s, status, reason); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Evaluate maps a connection record to a health status.
func Evaluate(conn lighting.Connection) (Status, string) {
	switch conn.Status {
	case lighting.StatusConnected:
		return StatusHealthy, ""
	case lighting.StatusError:
		return StatusUnhealthy, conn.LastError
	default:
		reason := string(conn.Status)
		if conn.LastError != "" {
			reason = conn.LastError
		}
		return StatusDegraded, reason
	}
}

func (r *Reporter) loop(ctx context.Context) {
	defer r.wg.Done()

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	if err := r.PublishNow(); err != nil {
		r.logError("failed to publish initial health", err)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-r.done:
			return
		case p := <-r.changed:
			if s := r.source(p); s != nil {
				status, reason := Evaluate(s.Connection())
				if err := r.publish(s, status, reason); err != nil {
					r.logError("failed to publish health", err)
				}
			}
		case <-ticker.C:
			if err := r.PublishNow(); err != nil {
				r.logError("failed to publish health", err)
			}
		}
	}
}

func (r *Reporter) source(p lighting.Protocol) Source {
	for _, s := range r.sources {
		if s.Protocol() == p {
			return s
		}
	}
	return nil
}

func (r *Reporter) publish(s Source, status Status, reason string) error {
	if r.publisher == nil || !r.publisher.IsConnected() {
		return nil
	}

	r.deviceCountMu.RLock()
	devices := r.deviceCount[s.Protocol()]
	r.deviceCountMu.RUnlock()

	msg := Message{
		Adapter:        s.Protocol(),
		Timestamp:      time.Now().UTC(),
		Status:         status,
		Version:        r.version,
		UptimeSeconds:  int64(time.Since(r.startTime).Seconds()),
		Connection:     s.Connection(),
		DevicesManaged: devices,
		Reason:         reason,
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encoding health message: %w", err)
	}
	return r.publisher.Publish(r.topics.BridgeHealth(string(s.Protocol())), payload, 1, true)
}

func (r *Reporter) logError(msg string, err error) {
	r.loggerMu.RLock()
	logger := r.logger
	r.loggerMu.RUnlock()
	if logger != nil {
		logger.Error(msg, "error", err)
	}
}
