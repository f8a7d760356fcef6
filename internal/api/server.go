package api

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-lighting/internal/audit"
	"github.com/nerrad567/gray-logic-lighting/internal/device"
	"github.com/nerrad567/gray-logic-lighting/internal/eventbus"
	"github.com/nerrad567/gray-logic-lighting/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-lighting/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-lighting/internal/lighting"
	"github.com/nerrad567/gray-logic-lighting/internal/scene"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// defaultEventBuffer is the per-stream subscription buffer when none is set.
const defaultEventBuffer = 64

// DeviceService is the reconciler surface the handlers use.
// *device.Reconciler implements it.
type DeviceService interface {
	List(ctx context.Context) ([]device.Device, error)
	Get(ctx context.Context, id string) (*device.Device, error)
	SetState(ctx context.Context, id string, patch lighting.State) (*device.Device, error)
	SyncAll(ctx context.Context) (device.SyncResult, error)
	Rooms(ctx context.Context) ([]device.Room, error)
	Commission(ctx context.Context, protocol lighting.Protocol, pairingCode string) (*device.Device, error)
	Decommission(ctx context.Context, id string) error
	Resolve(protocol lighting.Protocol, externalID string) (string, bool)
}

// SceneService stores scenes. *scene.Registry implements it.
type SceneService interface {
	ListScenes(ctx context.Context, roomID string) ([]scene.Scene, error)
	GetScene(ctx context.Context, id string) (*scene.Scene, error)
	CreateScene(ctx context.Context, s *scene.Scene) error
	UpdateScene(ctx context.Context, s *scene.Scene) error
	DeleteScene(ctx context.Context, id string) error
	ListExecutions(ctx context.Context, sceneID string, limit int) ([]scene.Execution, error)
}

// SceneActivator runs scenes. *scene.Engine implements it.
type SceneActivator interface {
	Activate(ctx context.Context, sceneID, subject string) (*scene.Execution, error)
}

// AdapterStatus reports one protocol adapter's connection.
type AdapterStatus interface {
	Protocol() lighting.Protocol
	Connection() lighting.Connection
}

// EventSource hands out subscriptions to the fan-in bus.
// *eventbus.Bus implements it.
type EventSource interface {
	Subscribe(buffer int) *eventbus.Subscription
	Stats() eventbus.Stats
}

// BrokerStatus reports MQTT connectivity. *mqtt.Client implements it.
type BrokerStatus interface {
	IsConnected() bool
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config      config.APIConfig
	WS          config.WebSocketConfig
	Security    config.SecurityConfig
	Logger      *logging.Logger
	Devices     DeviceService
	Adapters    []AdapterStatus
	Events      EventSource
	EventBuffer int
	MQTT        BrokerStatus     // optional
	DB          *sql.DB          // optional, for pool metrics
	Audit       audit.Repository // optional
	Scenes      SceneService     // optional, enables /scenes
	SceneEngine SceneActivator   // required with Scenes
	Version     string
}

// Server is the HTTP API server.
//
// It is created with New and started with Start.
type Server struct {
	cfg         config.APIConfig
	wsCfg       config.WebSocketConfig
	secCfg      config.SecurityConfig
	logger      *logging.Logger
	devices     DeviceService
	adapters    []AdapterStatus
	events      EventSource
	eventBuffer int
	mqtt        BrokerStatus
	db          *sql.DB
	audit       audit.Repository
	scenes      SceneService
	sceneEngine SceneActivator
	version     string
	startTime   time.Time

	server  *http.Server
	hub     *Hub
	tickets *ticketStore
	cancel  context.CancelFunc // cancels background goroutines on Close()

	closing   chan struct{} // ends open event streams
	closeOnce sync.Once
}

// New creates an API server. It is not listening until Start is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Devices == nil {
		return nil, fmt.Errorf("device service is required")
	}
	if deps.Events == nil {
		return nil, fmt.Errorf("event source is required")
	}
	if deps.Scenes != nil && deps.SceneEngine == nil {
		return nil, fmt.Errorf("scene engine is required with scenes")
	}
	if deps.EventBuffer <= 0 {
		deps.EventBuffer = defaultEventBuffer
	}

	return &Server{
		cfg:         deps.Config,
		wsCfg:       deps.WS,
		secCfg:      deps.Security,
		logger:      deps.Logger,
		devices:     deps.Devices,
		adapters:    deps.Adapters,
		events:      deps.Events,
		eventBuffer: deps.EventBuffer,
		mqtt:        deps.MQTT,
		db:          deps.DB,
		audit:       deps.Audit,
		scenes:      deps.Scenes,
		sceneEngine: deps.SceneEngine,
		version:     deps.Version,
		startTime:   time.Now(),
		hub:         NewHub(deps.WS, deps.Logger),
		tickets:     newTicketStore(),
		closing:     make(chan struct{}),
	}, nil
}

// Hub returns the WebSocket hub, for components that push their own
// channels to clients.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Handler returns the router. Start serves the same handler.
func (s *Server) Handler() http.Handler {
	return s.buildRouter()
}

// Start launches the WebSocket hub feed, ticket cleanup and the HTTP
// listener in background goroutines. Stop it with Close.
func (s *Server) Start(ctx context.Context) error {
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	sub := s.events.Subscribe(s.eventBuffer)
	go func() {
		defer sub.Close()
		s.hub.Run(srvCtx, sub.C(), s.devices)
	}()
	go s.tickets.cleanLoop(srvCtx)

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		var err error
		if s.cfg.TLS.Enabled {
			s.logger.Info("API server starting with TLS",
				"address", s.server.Addr,
				"cert", s.cfg.TLS.CertFile,
			)
			err = s.server.ListenAndServeTLS(s.cfg.TLS.CertFile, s.cfg.TLS.KeyFile)
		} else {
			s.logger.Info("API server starting", "address", s.server.Addr)
			err = s.server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Close gracefully shuts down the API server, waiting up to 10 seconds for
// in-flight requests.
func (s *Server) Close() error {
	s.closeOnce.Do(func() { close(s.closing) })
	if s.cancel != nil {
		s.cancel()
	}
	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck reports whether the server has been started.
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	if s.server == nil {
		return fmt.Errorf("api server not started")
	}
	return nil
}
