package config

import (
	"os"
	"reflect"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Server.Host != DefaultHost {
		t.Errorf("Expected host %s, got %s", DefaultHost, cfg.Server.Host)
	}
	if cfg.Server.Port != DefaultPort {
		t.Errorf("Expected port %d, got %d", DefaultPort, cfg.Server.Port)
	}

	if cfg.Processor.MaxConcurrentRequests <= 0 {
		t.Error("Expected MaxConcurrentRequests to be positive")
	}
	if cfg.Processor.MaxQueueSize <= 0 {
		t.Error("Expected MaxQueueSize to be positive")
	}
	if cfg.Processor.MaxResponseSize.Int64() != 10*1024*1024 {
		t.Errorf("Expected default max response size 10MB, got %d", cfg.Processor.MaxResponseSize.Int64())
	}
	if cfg.Processor.RaiseErrorResponses {
		t.Error("Expected RaiseErrorResponses false by default")
	}

	if cfg.ClientPool.MaxClients <= 0 {
		t.Error("Expected MaxClients to be positive")
	}

	if cfg.Storage.OffloadThreshold.Int64() != 256*1024 {
		t.Errorf("Expected default offload threshold 256KB, got %d", cfg.Storage.OffloadThreshold.Int64())
	}

	if cfg.Logging.Level != "info" {
		t.Errorf("Expected log level 'info', got %s", cfg.Logging.Level)
	}

	if cfg.Engineering.ShowNerdStats != false {
		t.Error("Expected ShowNerdStats to be false by default")
	}
}

func TestLoadConfig_WithoutFile(t *testing.T) {
	cfg, err := Load(nil)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.Port != DefaultPort {
		t.Errorf("Expected default port %d, got %d", DefaultPort, cfg.Server.Port)
	}
	if cfg.Server.Host != DefaultHost {
		t.Errorf("Expected default host %s, got %s", DefaultHost, cfg.Server.Host)
	}
}

func TestLoadConfig_WithEnvironmentVariables(t *testing.T) {
	testEnvVars := map[string]string{
		"OFFLOAD_SERVER_PORT":                     "8080",
		"OFFLOAD_SERVER_HOST":                     "0.0.0.0",
		"OFFLOAD_LOGGING_LEVEL":                   "debug",
		"OFFLOAD_PROCESSOR_MAX_CONCURRENT_REQUESTS": "128",
		"OFFLOAD_PROCESSOR_RAISE_ERROR_RESPONSES":  "true",
	}

	for key, value := range testEnvVars {
		os.Setenv(key, value)
	}
	defer func() {
		for key := range testEnvVars {
			os.Unsetenv(key)
		}
	}()

	cfg, err := Load(nil)
	if err != nil {
		t.Fatalf("Load with env vars failed: %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Errorf("Expected port 8080 from env var, got %d", cfg.Server.Port)
	}
	if cfg.Server.Host != "0.0.0.0" {
		t.Errorf("Expected host 0.0.0.0 from env var, got %s", cfg.Server.Host)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Expected log level debug from env var, got %s", cfg.Logging.Level)
	}
	if cfg.Processor.MaxConcurrentRequests != 128 {
		t.Errorf("Expected max_concurrent_requests 128 from env var, got %d", cfg.Processor.MaxConcurrentRequests)
	}
	if !cfg.Processor.RaiseErrorResponses {
		t.Error("Expected RaiseErrorResponses true from env var")
	}
}

func TestLoadConfig_ByteSizeFromEnv(t *testing.T) {
	os.Setenv("OFFLOAD_PROCESSOR_MAX_RESPONSE_SIZE", "50MB")
	defer os.Unsetenv("OFFLOAD_PROCESSOR_MAX_RESPONSE_SIZE")

	cfg, err := Load(nil)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	expected := int64(50 * 1024 * 1024)
	if cfg.Processor.MaxResponseSize.Int64() != expected {
		t.Errorf("Expected max_response_size %d from env var, got %d", expected, cfg.Processor.MaxResponseSize.Int64())
	}
}

func TestByteSizeDecodeHook(t *testing.T) {
	testCases := []struct {
		input    interface{}
		expected int64
		hasError bool
	}{
		{"100", 100, false},
		{"1KB", 1024, false},
		{"1MB", 1024 * 1024, false},
		{"100MB", 100 * 1024 * 1024, false},
		{int64(2048), 2048, false},
		{"invalid", 0, true},
	}

	for _, tc := range testCases {
		got, err := byteSizeDecodeHook(nil, reflect.TypeOf(ByteSize(0)), tc.input)
		if tc.hasError {
			if err == nil {
				t.Errorf("expected error for input %v, got none", tc.input)
			}
			continue
		}
		if err != nil {
			t.Fatalf("unexpected error for input %v: %v", tc.input, err)
		}
		if got.(ByteSize).Int64() != tc.expected {
			t.Errorf("expected %d for input %v, got %d", tc.expected, tc.input, got.(ByteSize).Int64())
		}
	}
}

func TestConfigTypes(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Server.ReadTimeout.String() == "" {
		t.Error("ReadTimeout should be a valid duration")
	}
	if cfg.Processor.DefaultTimeout != 30*time.Second {
		t.Errorf("Expected DefaultTimeout 30s, got %v", cfg.Processor.DefaultTimeout)
	}
}
