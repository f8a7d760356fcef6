// Gray Logic Lighting - unified lighting core
//
// This is the main entry point. It runs one adapter per lighting protocol
// (the REST+SSE bridge and the MQTT-attached mesh controller), fans their
// events into a single bus, keeps the SQLite device catalogue reconciled
// and serves the REST/SSE/WebSocket API.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	_ "github.com/nerrad567/gray-logic-lighting/migrations"

	"github.com/nerrad567/gray-logic-lighting/internal/api"
	"github.com/nerrad567/gray-logic-lighting/internal/audit"
	"github.com/nerrad567/gray-logic-lighting/internal/bridges/health"
	"github.com/nerrad567/gray-logic-lighting/internal/bridges/hue"
	"github.com/nerrad567/gray-logic-lighting/internal/bridges/matter"
	"github.com/nerrad567/gray-logic-lighting/internal/credential"
	"github.com/nerrad567/gray-logic-lighting/internal/device"
	"github.com/nerrad567/gray-logic-lighting/internal/eventbus"
	"github.com/nerrad567/gray-logic-lighting/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-lighting/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-lighting/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-lighting/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-lighting/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-lighting/internal/lighting"
	"github.com/nerrad567/gray-logic-lighting/internal/relay"
	"github.com/nerrad567/gray-logic-lighting/internal/scene"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

// protocolAdapter is what main needs from every adapter.
type protocolAdapter interface {
	device.Adapter
	eventbus.Source
	Connect(ctx context.Context) error
	Disconnect() error
	Connection() lighting.Connection
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the application logic, separated from main for testability.
func run(ctx context.Context) error {
	log := logging.Default()
	log.Info("starting Gray Logic Lighting",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log = logging.New(cfg.Logging, version)
	log.Info("configuration loaded", "path", configPath, "site", cfg.Site.ID)

	db, err := database.Open(database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database ready", "path", cfg.Database.Path)

	creds := credential.NewSQLiteStore(db.DB)
	if seedErr := seedCredentials(ctx, cfg, creds); seedErr != nil {
		return fmt.Errorf("seeding credentials: %w", seedErr)
	}

	mqttClient, err := mqtt.Connect(cfg.MQTT)
	if err != nil {
		return fmt.Errorf("connecting to MQTT: %w", err)
	}
	defer func() {
		log.Info("disconnecting from MQTT")
		if closeErr := mqttClient.Close(); closeErr != nil {
			log.Error("error closing MQTT", "error", closeErr)
		}
	}()
	mqttClient.SetLogger(log.With("component", "mqtt"))
	mqttClient.OnConnect(func() { log.Info("MQTT reconnected") })
	mqttClient.OnDisconnect(func(err error) { log.Warn("MQTT disconnected", "error", err) })
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)

	influxClient, err := influxdb.Connect(cfg.InfluxDB)
	switch {
	case errors.Is(err, influxdb.ErrDisabled):
		log.Info("InfluxDB disabled")
	case err != nil:
		return fmt.Errorf("connecting to InfluxDB: %w", err)
	default:
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		log.Info("InfluxDB connected", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
	}

	bus := eventbus.NewBus(eventbus.Options{
		HeartbeatInterval: cfg.HeartbeatInterval(),
		SourceBuffer:      cfg.Bus.SourceBuffer,
		Logger:            log.With("component", "bus"),
	})

	// Assigned before any adapter connects.
	var (
		telemetry *relay.Telemetry
		reporter  *health.Reporter
	)

	// Adapters report connection transitions to health and telemetry.
	onTransition := func(conn lighting.Connection) {
		if reporter != nil {
			reporter.Notify(conn)
		}
		if telemetry != nil {
			telemetry.RecordConnection(conn)
		}
	}

	adapters := buildAdapters(cfg, creds, mqttClient, onTransition, log)
	if len(adapters) == 0 {
		log.Warn("no lighting protocol enabled")
	}

	sources := make([]health.Source, 0, len(adapters))
	statuses := make([]api.AdapterStatus, 0, len(adapters))
	deviceAdapters := make([]device.Adapter, 0, len(adapters))
	for _, a := range adapters {
		bus.Attach(string(a.Protocol()), a)
		sources = append(sources, a)
		statuses = append(statuses, a)
		deviceAdapters = append(deviceAdapters, a)
	}
	reporter = health.NewReporter(health.Config{
		Version:   version,
		Publisher: mqttClient,
		Sources:   sources,
	})
	reporter.SetLogger(log.With("component", "health"))

	reconciler := device.NewReconciler(device.NewSQLiteRepository(db.DB), deviceAdapters...)
	reconciler.SetLogger(log.With("component", "reconciler"))
	reconciler.SetReadTimeout(cfg.BridgeRequestTimeout())
	if refreshErr := reconciler.RefreshCache(ctx); refreshErr != nil {
		return fmt.Errorf("loading device cache: %w", refreshErr)
	}
	if influxClient != nil {
		telemetry = relay.NewTelemetry(influxClient, reconciler, bus, cfg.StatsInterval())
	}

	republisher := relay.NewRepublisher(mqttClient, reconciler, byte(cfg.MQTT.QoS)) //nolint:gosec // qos validated 0..2
	republisher.SetLogger(log.With("component", "relay"))

	// Subscribe every consumer before the bus starts so no event is missed.
	reconcileSub := bus.Subscribe(cfg.Bus.SubscriberBuffer)
	relaySub := bus.Subscribe(cfg.Bus.SubscriberBuffer)
	resyncSub := bus.Subscribe(cfg.Bus.SubscriberBuffer)
	var telemetrySub *eventbus.Subscription
	if telemetry != nil {
		telemetrySub = bus.Subscribe(cfg.Bus.SubscriberBuffer)
	}

	sceneRepo := scene.NewSQLiteRepository(db.DB)
	scenes := scene.NewRegistry(sceneRepo)
	scenes.SetLogger(log.With("component", "scenes"))
	if refreshErr := scenes.RefreshCache(ctx); refreshErr != nil {
		return fmt.Errorf("loading scenes: %w", refreshErr)
	}
	sceneEngine := scene.NewEngine(scenes, reconciler, sceneRepo)
	sceneEngine.SetLogger(log.With("component", "scenes"))

	srv, err := api.New(api.Deps{
		Config:      cfg.API,
		WS:          cfg.WebSocket,
		Security:    cfg.Security,
		Logger:      log.With("component", "api"),
		Devices:     reconciler,
		Adapters:    statuses,
		Events:      bus,
		EventBuffer: cfg.Bus.SubscriberBuffer,
		MQTT:        mqttClient,
		DB:          db.DB,
		Audit:       audit.NewSQLiteRepository(db.DB),
		Scenes:      scenes,
		SceneEngine: sceneEngine,
		Version:     version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	sceneEngine.SetBroadcaster(srv.Hub())

	runCtx, stop := context.WithCancel(ctx)
	defer stop()

	bus.Start(runCtx)
	defer bus.Stop()
	reporter.Start(runCtx)
	defer reporter.Stop()

	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error {
		defer reconcileSub.Close()
		reconciler.Run(gctx, reconcileSub.C())
		return nil
	})
	g.Go(func() error {
		defer resyncSub.Close()
		resyncOnConnect(gctx, resyncSub.C(), reconciler, reporter, log)
		return nil
	})
	if telemetrySub != nil {
		g.Go(func() error {
			defer telemetrySub.Close()
			telemetry.Run(gctx, telemetrySub.C())
			return nil
		})
	}

	for _, a := range adapters {
		if connErr := a.Connect(runCtx); connErr != nil {
			log.Warn("adapter not connected", "protocol", a.Protocol(), "error", connErr)
		}
	}
	defer func() {
		for _, a := range adapters {
			if dcErr := a.Disconnect(); dcErr != nil {
				log.Error("error disconnecting adapter", "protocol", a.Protocol(), "error", dcErr)
			}
		}
	}()

	// Adapters still dialling are synced by resyncOnConnect once they are up.
	if up := connectedProtocols(adapters); len(up) > 0 {
		result, syncErr := reconciler.Sync(ctx, up...)
		if syncErr != nil {
			log.Warn("initial sync incomplete", "error", syncErr)
		}
		log.Info("initial sync complete",
			"protocols", up,
			"discovered", result.Discovered,
			"upserted", result.Upserted,
			"errors", len(result.Errors),
		)
	}

	if devices, listErr := reconciler.List(ctx); listErr == nil {
		republisher.Seed(devices)
		updateDeviceCounts(reporter, devices)
	}
	g.Go(func() error {
		defer relaySub.Close()
		republisher.Run(gctx, relaySub.C())
		return nil
	})

	if startErr := srv.Start(runCtx); startErr != nil {
		return fmt.Errorf("starting API server: %w", startErr)
	}
	defer func() {
		if closeErr := srv.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("initialisation complete, waiting for shutdown signal")

	<-ctx.Done()
	log.Info("shutdown signal received, cleaning up")

	stop()
	if err := g.Wait(); err != nil {
		log.Error("background task failed", "error", err)
	}

	log.Info("Gray Logic Lighting stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses GRAYLOGIC_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("GRAYLOGIC_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// seedCredentials stores credentials supplied in config. Protocols without
// a configured secret keep whatever the store already holds.
func seedCredentials(ctx context.Context, cfg *config.Config, store credential.Store) error {
	if b := cfg.Protocols.Bridge; b.Enabled && b.ApplicationKey != "" {
		err := store.Put(ctx, credential.Credential{
			Protocol: lighting.ProtocolBridge,
			Host:     b.Host,
			Secret:   b.ApplicationKey,
		})
		if err != nil {
			return fmt.Errorf("bridge: %w", err)
		}
	}
	if m := cfg.Protocols.Mesh; m.Enabled && m.FabricID != "" {
		err := store.Put(ctx, credential.Credential{
			Protocol: lighting.ProtocolMesh,
			Secret:   m.FabricID,
		})
		if err != nil {
			return fmt.Errorf("mesh: %w", err)
		}
	}
	return nil
}

// buildAdapters creates one adapter per enabled protocol.
func buildAdapters(cfg *config.Config, creds credential.Store, mqttClient *mqtt.Client,
	onTransition func(lighting.Connection), log *logging.Logger) []protocolAdapter {
	var adapters []protocolAdapter

	if cfg.Protocols.Bridge.Enabled {
		adapters = append(adapters, hue.New(creds, hue.Options{
			RequestTimeout:     cfg.BridgeRequestTimeout(),
			InsecureSkipVerify: cfg.Protocols.Bridge.InsecureSkipVerify,
			BaseDelay:          cfg.ReconnectBaseDelay(),
			MaxDelay:           cfg.ReconnectMaxDelay(),
			Logger:             log.With("adapter", lighting.ProtocolBridge),
			OnTransition:       onTransition,
		}))
	}

	if cfg.Protocols.Mesh.Enabled {
		mesh := matter.New(mqttClient, creds, matter.Options{
			RequestTimeout:    cfg.MeshRequestTimeout(),
			CommissionTimeout: cfg.MeshCommissionTimeout(),
			QoS:               byte(cfg.MQTT.QoS), //nolint:gosec // qos validated 0..2
			BaseDelay:         cfg.ReconnectBaseDelay(),
			MaxDelay:          cfg.ReconnectMaxDelay(),
			Logger:            log.With("adapter", lighting.ProtocolMesh),
			OnTransition:      onTransition,
		})
		// The mesh session rides on the broker connection.
		mqttClient.OnDisconnect(mesh.NotifyTransportLost)
		adapters = append(adapters, mesh)
	}

	return adapters
}

// connectedProtocols lists the adapters whose session is up.
func connectedProtocols(adapters []protocolAdapter) []lighting.Protocol {
	var up []lighting.Protocol
	for _, a := range adapters {
		if a.Connection().Status == lighting.StatusConnected {
			up = append(up, a.Protocol())
		}
	}
	return up
}

// resyncOnConnect syncs an adapter each time it (re)connects, so devices
// added or renamed while it was away reach the catalogue.
func resyncOnConnect(ctx context.Context, events <-chan lighting.Event, reconciler *device.Reconciler,
	reporter *health.Reporter, log *logging.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if ev.Type != lighting.EventConnectionUp {
				continue
			}
			result, err := reconciler.Sync(ctx, ev.Source)
			if err != nil {
				log.Warn("resync failed", "protocol", ev.Source, "error", err)
				continue
			}
			log.Info("resync complete", "protocol", ev.Source, "upserted", result.Upserted, "errors", len(result.Errors))
			if devices, listErr := reconciler.List(ctx); listErr == nil {
				updateDeviceCounts(reporter, devices)
			}
		}
	}
}

func updateDeviceCounts(reporter *health.Reporter, devices []device.Device) {
	counts := map[lighting.Protocol]int{
		lighting.ProtocolBridge: 0,
		lighting.ProtocolMesh:   0,
	}
	for _, d := range devices {
		counts[d.Protocol]++
	}
	for p, n := range counts {
		reporter.SetDeviceCount(p, n)
	}
}

// healthCheck verifies all infrastructure connections are healthy.
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if err := mqttClient.HealthCheck(ctx); err != nil {
		return fmt.Errorf("mqtt: %w", err)
	}
	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}
	return nil
}
