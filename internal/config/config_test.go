package config_test

import (
	"os"
	"testing"
	"time"

	"github.com/JaimeStill/docflow/internal/config"
	"github.com/JaimeStill/docflow/pkg/broker"
)

func chdirRoot(t *testing.T) {
	t.Helper()
	old, err := os.Getwd()
	if err != nil {
		t.Fatalf("Getwd() error = %v", err)
	}
	if err := os.Chdir("../../"); err != nil {
		t.Fatalf("Chdir() error = %v", err)
	}
	t.Cleanup(func() { os.Chdir(old) })
}

func TestLoad_BaseConfig(t *testing.T) {
	chdirRoot(t)
	t.Setenv(config.EnvServiceEnv, "")

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Ingest.BulkQueue != "uploads.bulk" {
		t.Errorf("Ingest.BulkQueue = %q, want %q", cfg.Ingest.BulkQueue, "uploads.bulk")
	}
	if cfg.Saga.Queues.StepCompleted != "saga.step.completed" {
		t.Errorf("Saga.Queues.StepCompleted = %q", cfg.Saga.Queues.StepCompleted)
	}
	if !cfg.Saga.IsEnabled() {
		t.Error("saga should be enabled")
	}
	if got := cfg.API.MaxBodySizeBytes(); got != 1_000_000 {
		t.Errorf("MaxBodySizeBytes() = %d, want 1000000", got)
	}
	if cfg.ShutdownTimeoutDuration() != 30*time.Second {
		t.Errorf("ShutdownTimeoutDuration() = %v", cfg.ShutdownTimeoutDuration())
	}
}

func TestLoad_WithOverlay(t *testing.T) {
	chdirRoot(t)

	overlay := `shutdown_timeout = "60s"

[server]
port = 9090

[store]
backend = "memory"

[saga]
enabled = false
`
	if err := os.WriteFile("config.overlaytest.toml", []byte(overlay), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	t.Cleanup(func() { os.Remove("config.overlaytest.toml") })
	t.Setenv(config.EnvServiceEnv, "overlaytest")

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.ShutdownTimeout != "60s" {
		t.Errorf("ShutdownTimeout = %q, want %q", cfg.ShutdownTimeout, "60s")
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("Server.Port = %d, want 9090", cfg.Server.Port)
	}
	if cfg.Server.Host != "0.0.0.0" {
		t.Errorf("Server.Host = %q, should keep base value", cfg.Server.Host)
	}
	if cfg.Store.Backend != config.BackendMemory {
		t.Errorf("Store.Backend = %q, want memory", cfg.Store.Backend)
	}
	if cfg.Saga.IsEnabled() {
		t.Error("overlay should disable saga")
	}
}

func TestFinalize_Defaults(t *testing.T) {
	cfg := config.Config{Store: config.StoreConfig{Backend: config.BackendMemory}}
	if err := cfg.Finalize(); err != nil {
		t.Fatalf("Finalize() error = %v", err)
	}

	if cfg.Server.Addr() != "0.0.0.0:8080" {
		t.Errorf("Addr() = %q", cfg.Server.Addr())
	}
	if cfg.API.BasePath != "/api" {
		t.Errorf("API.BasePath = %q", cfg.API.BasePath)
	}
	if cfg.Ingest.DocumentQueue != "uploads.document" || cfg.Ingest.DeadLetterPrefix != "deadletter" {
		t.Errorf("Ingest = %+v", cfg.Ingest)
	}
	if cfg.Saga.Queues.SaveMetadata != "saga.save_metadata" {
		t.Errorf("Saga.Queues.SaveMetadata = %q", cfg.Saga.Queues.SaveMetadata)
	}
	if p := cfg.Ingest.ConflictRetry.Policy(); p.MaxAttempts != 5 {
		t.Errorf("conflict retry MaxAttempts = %d, want 5", p.MaxAttempts)
	}
	if cfg.API.Pagination.MaxPageSize != 100 {
		t.Errorf("MaxPageSize = %d, want 100", cfg.API.Pagination.MaxPageSize)
	}
}

func TestFinalize_EnvOverrides(t *testing.T) {
	t.Setenv(config.EnvServerPort, "7070")
	t.Setenv(config.EnvStoreBackend, config.BackendMemory)
	t.Setenv(config.EnvIngestBulkQueue, "uploads.batch")
	t.Setenv(config.EnvSagaEnabled, "false")

	var cfg config.Config
	if err := cfg.Finalize(); err != nil {
		t.Fatalf("Finalize() error = %v", err)
	}

	if cfg.Server.Port != 7070 {
		t.Errorf("Server.Port = %d, want 7070", cfg.Server.Port)
	}
	if cfg.Store.Backend != config.BackendMemory {
		t.Errorf("Store.Backend = %q", cfg.Store.Backend)
	}
	if cfg.Ingest.BulkQueue != "uploads.batch" {
		t.Errorf("Ingest.BulkQueue = %q", cfg.Ingest.BulkQueue)
	}
	if cfg.Saga.IsEnabled() {
		t.Error("SAGA_ENABLED=false should disable saga")
	}
}

func TestFinalize_Invalid(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.Config
	}{
		{"shutdown timeout", config.Config{ShutdownTimeout: "later"}},
		{"server port", config.Config{Server: config.ServerConfig{Port: 70000}}},
		{"store backend", config.Config{Store: config.StoreConfig{Backend: "sqlite"}}},
		{"base path", config.Config{API: config.APIConfig{BasePath: "/api/v1"}}},
		{"body size", config.Config{API: config.APIConfig{MaxBodySize: "huge"}}},
		{"same upload queues", config.Config{Ingest: config.IngestConfig{DocumentQueue: "uploads", BulkQueue: "uploads"}}},
		{"queue under dead letters", config.Config{Ingest: config.IngestConfig{BulkQueue: "deadletter.bulk"}}},
		{"broker driver", config.Config{Broker: brokerDriver("kafka")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := tt.cfg
			if cfg.Store.Backend == "" {
				cfg.Store.Backend = config.BackendMemory
			}
			if err := cfg.Finalize(); err == nil {
				t.Error("Finalize() expected error")
			}
		})
	}
}

func TestSagaConfig_MergeKeepsUnsetQueues(t *testing.T) {
	off := false
	base := config.SagaConfig{}
	base.Merge(&config.SagaConfig{Enabled: &off})
	base.Queues.StepFailed = "custom.failed"

	if err := base.Finalize(); err != nil {
		t.Fatalf("Finalize() error = %v", err)
	}
	if base.IsEnabled() {
		t.Error("merged Enabled=false should disable")
	}
	if base.Queues.StepFailed != "custom.failed" {
		t.Errorf("StepFailed = %q, want custom.failed", base.Queues.StepFailed)
	}
	if base.Queues.DocumentUploaded != "saga.document_uploaded" {
		t.Errorf("DocumentUploaded = %q", base.Queues.DocumentUploaded)
	}
}

func brokerDriver(d string) broker.Config {
	return broker.Config{Driver: d}
}
