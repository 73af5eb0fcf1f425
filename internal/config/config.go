package config

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

const (
	DefaultPort = 8942
	DefaultHost = "localhost"

	DefaultFileWriteDelay = 150 * time.Millisecond // small delay to let the file write settle
)

var (
	lastReload  time.Time
	reloadMutex sync.Mutex
)

// DefaultConfig returns a configuration with sensible defaults for a single
// process running the engine behind a demo ingress server.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            DefaultHost,
			Port:            DefaultPort,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Processor: ProcessorConfig{
			MaxConcurrentRequests: 64,
			MaxQueueSize:          1024,
			DefaultTimeout:        30 * time.Second,
			DefaultMaxRedirects:   5,
			TransportRetries:      2,
			MaxResponseSize:       ByteSize(10 * 1024 * 1024), // 10MB
			UserAgent:             "async-http-pool/1.0",
			DrainTimeout:          30 * time.Second,
			RaiseErrorResponses:   false,
		},
		ClientPool: ClientPoolConfig{
			MaxClients:          256,
			IdleTimeout:         90 * time.Second,
			FailureThreshold:    5,
			HealthCheckInterval: 10 * time.Second,
		},
		Storage: StorageConfig{
			OffloadThreshold: ByteSize(256 * 1024), // 256KB
		},
		Logging: LoggingConfig{
			Level:      "info",
			Theme:      "default",
			PrettyLogs: true,
			FileOutput: false,
			LogDir:     "./logs",
			MaxSize:    50,
			MaxBackups: 5,
			MaxAge:     14,
		},
		Engineering: EngineeringConfig{
			ShowNerdStats:  false,
			EnableMetrics:  true,
			EnableProfiler: false,
		},
	}
}

// Load loads configuration from config.yaml (or OFFLOAD_CONFIG_FILE),
// merged with OFFLOAD_-prefixed environment variables, and hot-reloads on
// file changes via fsnotify (wired transitively through viper.WatchConfig).
func Load(onConfigChange func()) (*Config, error) {
	cfg := DefaultConfig()

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	viper.SetEnvPrefix("OFFLOAD")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		if configFile := os.Getenv("OFFLOAD_CONFIG_FILE"); configFile != "" {
			viper.SetConfigFile(configFile)
			if err := viper.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("error reading config file %s: %w", configFile, err)
			}
		}
	}

	decodeHook := mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		byteSizeDecodeHook,
	)
	if err := viper.Unmarshal(cfg, viper.DecodeHook(decodeHook)); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	viper.WatchConfig()

	if onConfigChange != nil {
		viper.OnConfigChange(func(e fsnotify.Event) {
			reloadMutex.Lock()
			defer reloadMutex.Unlock()

			now := time.Now()
			if now.Sub(lastReload) < 500*time.Millisecond {
				return // ignore rapid-fire duplicate events
			}
			lastReload = now

			// the write event can fire before the file is fully flushed
			time.Sleep(DefaultFileWriteDelay)
			onConfigChange()
		})
	}
	return cfg, nil
}
