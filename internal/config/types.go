package config

import "time"

// Config holds all configuration for the async-http-pool engine and its
// demo ingress server.
type Config struct {
	Logging     LoggingConfig     `yaml:"logging"`
	Server      ServerConfig      `yaml:"server"`
	Processor   ProcessorConfig   `yaml:"processor"`
	ClientPool  ClientPoolConfig  `yaml:"client_pool"`
	Storage     StorageConfig     `yaml:"storage"`
	Engineering EngineeringConfig `yaml:"engineering"`
}

// ServerConfig holds the demo ingress HTTP server configuration — the
// surface that accepts "submit a task" requests and exposes status/metrics.
type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// ProcessorConfig governs the Processor's admission control, retry budget
// and per-request defaults, per spec §5 (CONCURRENCY & RESOURCE MODEL).
type ProcessorConfig struct {
	// MaxConcurrentRequests bounds the number of requests executing at once.
	MaxConcurrentRequests int `yaml:"max_concurrent_requests"`
	// MaxQueueSize bounds the number of requests waiting for a worker slot;
	// enqueue beyond this returns MaxCapacityError.
	MaxQueueSize int `yaml:"max_queue_size"`
	// DefaultTimeout applies to a task whose Request has no timeout of its
	// own (zero).
	DefaultTimeout time.Duration `yaml:"default_timeout"`
	// DefaultMaxRedirects applies when the Request did not set MaxRedirects;
	// an explicit 0 on the Request allows no redirects.
	DefaultMaxRedirects int `yaml:"default_max_redirects"`
	// TransportRetries is the retry budget for connect/IO failures, scoped
	// to the whole logical request including any redirect chain.
	TransportRetries int `yaml:"transport_retries"`
	// MaxResponseSize caps bytes read from a response body before
	// ResponseTooLargeError is raised.
	MaxResponseSize ByteSize `yaml:"max_response_size"`
	// UserAgent is sent on every outbound request unless overridden.
	UserAgent string `yaml:"user_agent"`
	// ProxyURL, if set, is used for every outbound client.
	ProxyURL string `yaml:"proxy_url"`
	// DrainTimeout bounds how long Stop() waits for in-flight work before
	// forcing completion/retry dispatch.
	DrainTimeout time.Duration `yaml:"drain_timeout"`
	// RaiseErrorResponses opts every task into HttpError wrapping for 4xx/5xx
	// responses instead of delivering them as ordinary successful Response.
	RaiseErrorResponses bool `yaml:"raise_error_responses"`
}

// ClientPoolConfig governs per-origin HTTP client pooling.
type ClientPoolConfig struct {
	MaxClients          int           `yaml:"max_clients"`
	IdleTimeout         time.Duration `yaml:"idle_timeout"`
	FailureThreshold    int           `yaml:"failure_threshold"`
	HealthCheckInterval time.Duration `yaml:"health_check_interval"`
}

// StorageConfig governs payload offload to external storage.
type StorageConfig struct {
	// OffloadThreshold is the payload size above which a body is offloaded
	// to the PayloadStore instead of carried inline.
	OffloadThreshold ByteSize `yaml:"offload_threshold"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `yaml:"level"`
	Theme      string `yaml:"theme"`
	PrettyLogs bool   `yaml:"pretty_logs"`
	FileOutput bool   `yaml:"file_output"`
	LogDir     string `yaml:"log_dir"`
	MaxSize    int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAge     int    `yaml:"max_age_days"`
}

// EngineeringConfig holds development/debugging configuration.
type EngineeringConfig struct {
	ShowNerdStats bool `yaml:"show_nerdstats"`
	EnableMetrics bool `yaml:"enable_metrics"`
	// EnableProfiler starts a pprof HTTP server on localhost for ad-hoc
	// CPU/heap profiling; never exposed on the ingress listener.
	EnableProfiler bool `yaml:"enable_profiler"`
}
