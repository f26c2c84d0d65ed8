// Package config loads the daemon's Config from JSON, with
// environment-variable overrides — the same JSON-plus-env-override
// pattern as the teacher's internal/config, trimmed to the sections this
// repository's daemon actually needs.
package config

import (
	"encoding/json"
	"os"
	"time"
)

// QueueConfig controls default MsgQueue sizing and shutdown behaviour.
type QueueConfig struct {
	DefaultCapacity int           `json:"default_capacity"` // Default: 64
	DrainTimeout    time.Duration `json:"drain_timeout"`    // Default: 5s
}

// DaemonConfig holds scalemqd's own listener settings.
type DaemonConfig struct {
	MetricsAddr  string `json:"metrics_addr"`  // Default: :9090
	ControlAddr  string `json:"control_addr"`  // Default: :7070 (gRPC control API)
	LogLevel     string `json:"log_level"`     // Default: info
	RaiseNoFiles bool   `json:"raise_nofiles"` // Default: true (internal/platform)
}

// TracingConfig mirrors the teacher's OpenTelemetry settings.
type TracingConfig struct {
	Enabled     bool    `json:"enabled"`
	Exporter    string  `json:"exporter"`     // otlp-http, stdout
	Endpoint    string  `json:"endpoint"`     // localhost:4318
	ServiceName string  `json:"service_name"` // scalemqd
	SampleRate  float64 `json:"sample_rate"`
}

// MetricsConfig controls the Prometheus registry namespace.
type MetricsConfig struct {
	Enabled   bool   `json:"enabled"`
	Namespace string `json:"namespace"` // scalemq
}

// LoggingConfig mirrors the teacher's structured logging settings.
type LoggingConfig struct {
	Level  string `json:"level"`  // debug, info, warn, error
	Format string `json:"format"` // text, json
}

// ObservabilityConfig bundles tracing/metrics/logging.
type ObservabilityConfig struct {
	Tracing TracingConfig `json:"tracing"`
	Metrics MetricsConfig `json:"metrics"`
	Logging LoggingConfig `json:"logging"`
}

// TCPTransportConfig configures the stdlib net.Listen/Dial transport.
type TCPTransportConfig struct {
	Enabled     bool   `json:"enabled"`
	ListenAddr  string `json:"listen_addr"`
	DialTimeout time.Duration `json:"dial_timeout"`
}

// VsockTransportConfig configures the mdlayher/vsock transport.
type VsockTransportConfig struct {
	Enabled    bool   `json:"enabled"`
	ListenPort uint32 `json:"listen_port"`
	DialCID    uint32 `json:"dial_cid"`
	DialPort   uint32 `json:"dial_port"`
}

// RedisStreamConfig configures the Redis Streams transport adapter. The
// daemon builds one Redis client, shared with the rate limiter's Redis
// backend when that is enabled.
type RedisStreamConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr"`
	Stream  string `json:"stream"`
	Group   string `json:"group"`
}

// TransportConfig bundles every wire transport this daemon can expose.
type TransportConfig struct {
	TCP         TCPTransportConfig   `json:"tcp"`
	Vsock       VsockTransportConfig `json:"vsock"`
	RedisStream RedisStreamConfig    `json:"redis_stream"`
}

// CircuitBreakerConfig configures internal/circuitbreaker for transport
// dialers.
type CircuitBreakerConfig struct {
	Enabled        bool          `json:"enabled"`
	ErrorPct       float64       `json:"error_pct"`
	WindowDuration time.Duration `json:"window_duration"`
	OpenDuration   time.Duration `json:"open_duration"`
	HalfOpenProbes int           `json:"half_open_probes"`
}

// RateLimitTier configures one token-bucket admission tier.
type RateLimitTier struct {
	RequestsPerSecond float64 `json:"requests_per_second"`
	BurstSize         int     `json:"burst_size"`
}

// RateLimitConfig controls the per-socket admission-control wrapper.
type RateLimitConfig struct {
	Enabled bool          `json:"enabled"`
	Default RateLimitTier `json:"default"`
	Redis   struct {
		Enabled bool   `json:"enabled"`
		Addr    string `json:"addr"`
	} `json:"redis"`
}

// EventLogConfig controls the optional Postgres lifecycle-event sink.
type EventLogConfig struct {
	Enabled bool   `json:"enabled"`
	DSN     string `json:"dsn"`
}

// Config is the top-level ScaleMQ daemon configuration.
type Config struct {
	Queue          QueueConfig          `json:"queue"`
	Daemon         DaemonConfig         `json:"daemon"`
	Observability  ObservabilityConfig  `json:"observability"`
	Transport      TransportConfig      `json:"transport"`
	CircuitBreaker CircuitBreakerConfig `json:"circuit_breaker"`
	RateLimit      RateLimitConfig      `json:"rate_limit"`
	EventLog       EventLogConfig       `json:"event_log"`
}

// Default returns a Config with sensible defaults, matching the
// teacher's DefaultConfig shape.
func Default() *Config {
	return &Config{
		Queue: QueueConfig{
			DefaultCapacity: 64,
			DrainTimeout:    5 * time.Second,
		},
		Daemon: DaemonConfig{
			MetricsAddr:  ":9090",
			ControlAddr:  ":7070",
			LogLevel:     "info",
			RaiseNoFiles: true,
		},
		Observability: ObservabilityConfig{
			Tracing: TracingConfig{
				Enabled:     false,
				Exporter:    "otlp-http",
				Endpoint:    "localhost:4318",
				ServiceName: "scalemqd",
				SampleRate:  1.0,
			},
			Metrics: MetricsConfig{
				Enabled:   true,
				Namespace: "scalemq",
			},
			Logging: LoggingConfig{
				Level:  "info",
				Format: "text",
			},
		},
		Transport: TransportConfig{
			TCP: TCPTransportConfig{
				Enabled:     true,
				ListenAddr:  ":7700",
				DialTimeout: 5 * time.Second,
			},
			Vsock: VsockTransportConfig{
				Enabled:    false,
				ListenPort: 7700,
			},
			RedisStream: RedisStreamConfig{
				Enabled: false,
				Addr:    "localhost:6379",
				Stream:  "scalemq:events",
				Group:   "scalemq",
			},
		},
		CircuitBreaker: CircuitBreakerConfig{
			Enabled:        true,
			ErrorPct:       50,
			WindowDuration: 30 * time.Second,
			OpenDuration:   10 * time.Second,
			HalfOpenProbes: 3,
		},
		RateLimit: RateLimitConfig{
			Enabled: false,
			Default: RateLimitTier{
				RequestsPerSecond: 1000,
				BurstSize:         2000,
			},
		},
		EventLog: EventLogConfig{
			Enabled: false,
		},
	}
}

// LoadFromFile loads a Config from a JSON file, starting from Default()
// so unset fields keep their defaults.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := Default()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromEnv applies a small set of environment-variable overrides, the
// same override mechanism the teacher's config package offers for
// container-friendly deploys without a mounted file.
func LoadFromEnv(cfg *Config) {
	if v := os.Getenv("SCALEMQ_METRICS_ADDR"); v != "" {
		cfg.Daemon.MetricsAddr = v
	}
	if v := os.Getenv("SCALEMQ_CONTROL_ADDR"); v != "" {
		cfg.Daemon.ControlAddr = v
	}
	if v := os.Getenv("SCALEMQ_LOG_LEVEL"); v != "" {
		cfg.Daemon.LogLevel = v
	}
	if v := os.Getenv("SCALEMQ_TCP_LISTEN_ADDR"); v != "" {
		cfg.Transport.TCP.ListenAddr = v
	}
	if v := os.Getenv("SCALEMQ_REDIS_ADDR"); v != "" {
		cfg.Transport.RedisStream.Addr = v
		cfg.RateLimit.Redis.Addr = v
	}
	if v := os.Getenv("SCALEMQ_EVENTLOG_DSN"); v != "" {
		cfg.EventLog.Enabled = true
		cfg.EventLog.DSN = v
	}
}
