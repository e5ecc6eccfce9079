// Package config contains all knobs and defaults used to configure a recordrelay server.
package config

import (
	"errors"
	"fmt"
	"net"
	"slices"
	"time"

	"github.com/openfga/recordrelay/internal/build"
	"github.com/openfga/recordrelay/pkg/relay"
	"github.com/openfga/recordrelay/pkg/storage"
)

const (
	DefaultRelayCapacity      = relay.DefaultCapacity
	DefaultMaxRecordsPerWrite = storage.DefaultMaxRecordsPerWrite
	DefaultRequestTimeout     = 30 * time.Second
)

var (
	supportedEngines   = []string{"memory", "sqlite", "postgres", "mysql"}
	supportedLogLevels = []string{"none", "debug", "info", "warn", "error", "panic", "fatal"}
)

type DatastoreMetricsConfig struct {
	// Enabled enables export of the database/sql pool metrics.
	Enabled bool
}

// DatastoreConfig defines the datastore the records are read from and written to.
type DatastoreConfig struct {
	// Engine is the datastore engine to use (e.g. 'memory', 'sqlite', 'postgres', 'mysql')
	Engine   string
	URI      string
	Username string
	Password string

	// MaxRecordsPerWrite caps the number of records of a single WriteRecords call.
	MaxRecordsPerWrite int

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxIdleTime time.Duration
	ConnMaxLifetime time.Duration

	Metrics DatastoreMetricsConfig
}

type GRPCConfig struct {
	Addr string
}

// RelayConfig sizes the buffer between a datastore read and its stream.
type RelayConfig struct {
	Capacity int
}

// LogConfig defines the log output. For production we recommend using the 'json' log format.
type LogConfig struct {
	// Format is the log format to use in the log output (e.g. 'text' or 'json')
	Format string

	// Level is the log level to use in the log output (e.g. 'none', 'debug', or 'info')
	Level string

	// Format of the timestamp in the log output (e.g. 'Unix'(default) or 'ISO8601')
	TimestampFormat string
}

type TraceConfig struct {
	Enabled     bool
	OTLP        OTLPTraceConfig `mapstructure:"otlp"`
	SampleRatio float64
	ServiceName string
}

type OTLPTraceConfig struct {
	Endpoint string
}

// MetricConfig defines the prometheus endpoint.
type MetricConfig struct {
	Enabled             bool
	Addr                string
	EnableRPCHistograms bool
}

type Config struct {
	// RequestTimeout bounds every RPC, including a whole ReadRecords stream. Zero disables it.
	RequestTimeout time.Duration

	GRPC      GRPCConfig
	Datastore DatastoreConfig
	Relay     RelayConfig
	Log       LogConfig
	Trace     TraceConfig
	Metrics   MetricConfig
}

func (cfg *Config) Verify() error {
	if cfg.Relay.Capacity <= 0 {
		return fmt.Errorf("config 'relay.capacity' must be greater than zero, got %d: %w", cfg.Relay.Capacity, relay.ErrInvalidCapacity)
	}

	if cfg.RequestTimeout < 0 {
		return errors.New("config 'requestTimeout' must not be negative")
	}

	if !slices.Contains(supportedEngines, cfg.Datastore.Engine) {
		return fmt.Errorf("config 'datastore.engine' must be one of %v", supportedEngines)
	}

	if cfg.Datastore.Engine != "memory" && cfg.Datastore.URI == "" {
		return fmt.Errorf("config 'datastore.uri' is required for the '%s' engine", cfg.Datastore.Engine)
	}

	if cfg.Datastore.MaxRecordsPerWrite <= 0 {
		return errors.New("config 'datastore.maxRecordsPerWrite' must be greater than zero")
	}

	if _, _, err := net.SplitHostPort(cfg.GRPC.Addr); err != nil {
		return fmt.Errorf("config 'grpc.addr' is not a host:port address: %w", err)
	}

	if cfg.Log.Format != "text" && cfg.Log.Format != "json" {
		return errors.New("config 'log.format' must be one of ['text', 'json']")
	}

	if !slices.Contains(supportedLogLevels, cfg.Log.Level) {
		return fmt.Errorf("config 'log.level' must be one of %v", supportedLogLevels)
	}

	if cfg.Log.TimestampFormat != "Unix" && cfg.Log.TimestampFormat != "ISO8601" {
		return errors.New("config 'log.TimestampFormat' must be one of ['Unix', 'ISO8601']")
	}

	if cfg.Trace.Enabled && (cfg.Trace.SampleRatio < 0 || cfg.Trace.SampleRatio > 1) {
		return errors.New("config 'trace.sampleRatio' must be within [0, 1]")
	}

	if cfg.Metrics.Enabled && cfg.Metrics.Addr == cfg.GRPC.Addr {
		return errors.New("config 'metrics.addr' must differ from 'grpc.addr'")
	}

	return nil
}

// DefaultConfig is the recordrelay server default configuration.
func DefaultConfig() *Config {
	return &Config{
		RequestTimeout: DefaultRequestTimeout,
		GRPC: GRPCConfig{
			Addr: "0.0.0.0:8081",
		},
		Datastore: DatastoreConfig{
			Engine:             "memory",
			MaxRecordsPerWrite: DefaultMaxRecordsPerWrite,
			MaxIdleConns:       10,
			MaxOpenConns:       30,
		},
		Relay: RelayConfig{
			Capacity: DefaultRelayCapacity,
		},
		Log: LogConfig{
			Format:          "text",
			Level:           "info",
			TimestampFormat: "Unix",
		},
		Trace: TraceConfig{
			OTLP: OTLPTraceConfig{
				Endpoint: "0.0.0.0:4317",
			},
			SampleRatio: 0.2,
			ServiceName: build.ProjectName,
		},
		Metrics: MetricConfig{
			Enabled: true,
			Addr:    "0.0.0.0:2112",
		},
	}
}

// MustDefaultConfigWithRandomPorts returns the default config with metrics turned off
// and the gRPC server on a free local port. It panics if no port can be found.
func MustDefaultConfigWithRandomPorts() *Config {
	config := DefaultConfig()
	config.Metrics.Enabled = false

	grpcPort, release := TCPRandomPort()
	defer release()
	config.GRPC.Addr = fmt.Sprintf("127.0.0.1:%d", grpcPort)

	return config
}

// TCPRandomPort tries to find a random TCP Port. If it can't find one, it panics. Else, it returns the port and a function that releases the port.
// It is the responsibility of the caller to call the release function right before trying to listen on the given port.
func TCPRandomPort() (int, func()) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		panic(err)
	}
	return l.Addr().(*net.TCPAddr).Port, func() {
		l.Close()
	}
}
