package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// envPrefix is the prefix for all environment variable overrides.
const envPrefix = "GRAYLOGIC"

// Config is the root configuration structure for the lighting core.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Site      SiteConfig      `yaml:"site"`
	Database  DatabaseConfig  `yaml:"database"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	API       APIConfig       `yaml:"api"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Logging   LoggingConfig   `yaml:"logging"`
	Protocols ProtocolsConfig `yaml:"protocols"`
	Bus       BusConfig       `yaml:"bus"`
	Security  SecurityConfig  `yaml:"security"`
}

// SiteConfig contains site-specific information.
type SiteConfig struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
	MaxAttempts  int `yaml:"max_attempts"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	TLS      TLSConfig        `yaml:"tls"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

// TLSConfig contains TLS certificate settings.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// APITimeoutConfig contains HTTP timeout settings.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
}

// WebSocketConfig contains WebSocket server settings.
type WebSocketConfig struct {
	Path           string `yaml:"path"`
	MaxMessageSize int    `yaml:"max_message_size"`
	PingInterval   int    `yaml:"ping_interval"`
	PongTimeout    int    `yaml:"pong_timeout"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// ProtocolsConfig contains per-protocol adapter settings.
type ProtocolsConfig struct {
	Bridge    BridgeConfig    `yaml:"bridge"`
	Mesh      MeshConfig      `yaml:"mesh"`
	Reconnect ReconnectConfig `yaml:"reconnect"`
}

// BridgeConfig configures the local REST+SSE lighting bridge adapter.
//
// Host and ApplicationKey seed the credential store at startup; an empty key
// leaves the adapter in the error state until a credential is stored.
type BridgeConfig struct {
	Enabled            bool   `yaml:"enabled"`
	Host               string `yaml:"host"`
	ApplicationKey     string `yaml:"application_key"`
	InsecureSkipVerify bool   `yaml:"insecure_skip_verify"`
	RequestTimeout     int    `yaml:"request_timeout"` // seconds
}

// MeshConfig configures the mesh adapter, which talks to the mesh
// controller over MQTT.
type MeshConfig struct {
	Enabled           bool   `yaml:"enabled"`
	FabricID          string `yaml:"fabric_id"`
	RequestTimeout    int    `yaml:"request_timeout"`    // seconds
	CommissionTimeout int    `yaml:"commission_timeout"` // seconds
}

// ReconnectConfig holds the adapter reconnection backoff bounds.
type ReconnectConfig struct {
	BaseDelayMS int `yaml:"base_delay_ms"`
	MaxDelayMS  int `yaml:"max_delay_ms"`
}

// BusConfig configures the event fan-in bus.
type BusConfig struct {
	HeartbeatInterval int `yaml:"heartbeat_interval"` // seconds
	SubscriberBuffer  int `yaml:"subscriber_buffer"`
	SourceBuffer      int `yaml:"source_buffer"`
	StatsInterval     int `yaml:"stats_interval"` // seconds
}

// SecurityConfig contains security settings.
type SecurityConfig struct {
	JWT JWTConfig `yaml:"jwt"`
}

// JWTConfig contains JWT token settings.
type JWTConfig struct {
	Secret         string `yaml:"secret"`
	AccessTokenTTL int    `yaml:"access_token_ttl"`
}

// envOverrides lists every supported environment variable. Unset pointer
// fields stay nil so file values survive.
type envOverrides struct {
	DatabasePath  string `envconfig:"DATABASE_PATH"`
	MQTTHost      string `envconfig:"MQTT_HOST"`
	MQTTPort      *int   `envconfig:"MQTT_PORT"`
	MQTTUsername  string `envconfig:"MQTT_USERNAME"`
	MQTTPassword  string `envconfig:"MQTT_PASSWORD"`
	APIHost       string `envconfig:"API_HOST"`
	APIPort       *int   `envconfig:"API_PORT"`
	InfluxDBToken string `envconfig:"INFLUXDB_TOKEN"`
	JWTSecret     string `envconfig:"JWT_SECRET"`
	LogLevel      string `envconfig:"LOG_LEVEL"`
	BridgeEnabled *bool  `envconfig:"BRIDGE_ENABLED"`
	BridgeHost    string `envconfig:"BRIDGE_HOST"`
	BridgeAppKey  string `envconfig:"BRIDGE_APP_KEY"`
	MeshEnabled   *bool  `envconfig:"MESH_ENABLED"`
	MeshFabricID  string `envconfig:"MESH_FABRIC_ID"`
	SubscriberBuf *int   `envconfig:"BUS_SUBSCRIBER_BUFFER"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: GRAYLOGIC_SECTION_KEY
// For example: GRAYLOGIC_DATABASE_PATH, GRAYLOGIC_BRIDGE_APP_KEY
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, fmt.Errorf("reading environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Site: SiteConfig{
			ID:   "site-001",
			Name: "Gray Logic",
		},
		Database: DatabaseConfig{
			Path:        "./data/graylogic-lighting.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "graylogic-lighting",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 8080,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		WebSocket: WebSocketConfig{
			Path:           "/ws",
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Protocols: ProtocolsConfig{
			Bridge: BridgeConfig{
				InsecureSkipVerify: true,
				RequestTimeout:     5,
			},
			Mesh: MeshConfig{
				RequestTimeout:    10,
				CommissionTimeout: 120,
			},
			Reconnect: ReconnectConfig{
				BaseDelayMS: 1000,
				MaxDelayMS:  30000,
			},
		},
		Bus: BusConfig{
			HeartbeatInterval: 30,
			SubscriberBuffer:  64,
			SourceBuffer:      256,
			StatsInterval:     60,
		},
		Security: SecurityConfig{
			JWT: JWTConfig{
				AccessTokenTTL: 15,
			},
		},
	}
}

// applyEnvOverrides applies GRAYLOGIC_* environment variables on top of cfg.
func applyEnvOverrides(cfg *Config) error {
	var env envOverrides
	if err := envconfig.Process(envPrefix, &env); err != nil {
		return err
	}

	setString(&cfg.Database.Path, env.DatabasePath)
	setString(&cfg.MQTT.Broker.Host, env.MQTTHost)
	setString(&cfg.MQTT.Auth.Username, env.MQTTUsername)
	setString(&cfg.MQTT.Auth.Password, env.MQTTPassword)
	setString(&cfg.API.Host, env.APIHost)
	setString(&cfg.InfluxDB.Token, env.InfluxDBToken)
	setString(&cfg.Security.JWT.Secret, env.JWTSecret)
	setString(&cfg.Logging.Level, env.LogLevel)
	setString(&cfg.Protocols.Bridge.Host, env.BridgeHost)
	setString(&cfg.Protocols.Bridge.ApplicationKey, env.BridgeAppKey)
	setString(&cfg.Protocols.Mesh.FabricID, env.MeshFabricID)

	if env.MQTTPort != nil {
		cfg.MQTT.Broker.Port = *env.MQTTPort
	}
	if env.APIPort != nil {
		cfg.API.Port = *env.APIPort
	}
	if env.BridgeEnabled != nil {
		cfg.Protocols.Bridge.Enabled = *env.BridgeEnabled
	}
	if env.MeshEnabled != nil {
		cfg.Protocols.Mesh.Enabled = *env.MeshEnabled
	}
	if env.SubscriberBuf != nil {
		cfg.Bus.SubscriberBuffer = *env.SubscriberBuf
	}
	return nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

// Validate checks the configuration for errors and security issues.
func (c *Config) Validate() error {
	var errs []string

	if c.Site.ID == "" {
		errs = append(errs, "site.id is required")
	}

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	if c.Protocols.Bridge.Enabled && c.Protocols.Bridge.Host == "" {
		errs = append(errs, "protocols.bridge.host is required when the bridge adapter is enabled")
	}

	if c.Protocols.Reconnect.BaseDelayMS <= 0 {
		errs = append(errs, "protocols.reconnect.base_delay_ms must be positive")
	}
	if c.Protocols.Reconnect.MaxDelayMS < c.Protocols.Reconnect.BaseDelayMS {
		errs = append(errs, "protocols.reconnect.max_delay_ms must not be less than base_delay_ms")
	}

	if c.Bus.HeartbeatInterval <= 0 {
		errs = append(errs, "bus.heartbeat_interval must be positive")
	}
	if c.Bus.SubscriberBuffer < 1 {
		errs = append(errs, "bus.subscriber_buffer must be at least 1")
	}

	// Tokens signed with a short secret can be brute forced offline.
	const minJWTSecretLength = 32
	if c.Security.JWT.Secret == "" {
		errs = append(errs, "security.jwt.secret is required (set GRAYLOGIC_JWT_SECRET environment variable)")
	} else if len(c.Security.JWT.Secret) < minJWTSecretLength {
		errs = append(errs, "security.jwt.secret must be at least 32 characters for adequate security")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}

// ReconnectBaseDelay returns the first adapter retry delay.
func (c *Config) ReconnectBaseDelay() time.Duration {
	return time.Duration(c.Protocols.Reconnect.BaseDelayMS) * time.Millisecond
}

// ReconnectMaxDelay returns the adapter retry delay cap.
func (c *Config) ReconnectMaxDelay() time.Duration {
	return time.Duration(c.Protocols.Reconnect.MaxDelayMS) * time.Millisecond
}

// HeartbeatInterval returns the bus heartbeat period.
func (c *Config) HeartbeatInterval() time.Duration {
	return time.Duration(c.Bus.HeartbeatInterval) * time.Second
}

// StatsInterval returns how often bus statistics are reported.
func (c *Config) StatsInterval() time.Duration {
	return time.Duration(c.Bus.StatsInterval) * time.Second
}

// BridgeRequestTimeout returns the per-request timeout for the bridge adapter.
func (c *Config) BridgeRequestTimeout() time.Duration {
	return time.Duration(c.Protocols.Bridge.RequestTimeout) * time.Second
}

// MeshRequestTimeout returns the per-request timeout for the mesh controller.
func (c *Config) MeshRequestTimeout() time.Duration {
	return time.Duration(c.Protocols.Mesh.RequestTimeout) * time.Second
}

// MeshCommissionTimeout returns how long a commissioning request may take.
func (c *Config) MeshCommissionTimeout() time.Duration {
	return time.Duration(c.Protocols.Mesh.CommissionTimeout) * time.Second
}
