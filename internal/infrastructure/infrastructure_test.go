package infrastructure_test

import (
	"context"
	"testing"

	"github.com/JaimeStill/docflow/internal/config"
	"github.com/JaimeStill/docflow/internal/infrastructure"
	"github.com/JaimeStill/docflow/pkg/broker"
)

func memoryConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := &config.Config{}
	cfg.Store.Backend = config.BackendMemory
	cfg.Broker.Driver = broker.DriverMemory
	if err := cfg.Finalize(); err != nil {
		t.Fatalf("Finalize() error = %v", err)
	}
	return cfg
}

func TestNew_MemoryBackend(t *testing.T) {
	infra, err := infrastructure.New(memoryConfig(t))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if infra.Database != nil {
		t.Error("memory backend should not open a database")
	}
	if err := infra.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if infra.Ready() {
		t.Error("Ready() before startup completes should be false")
	}

	infra.Lifecycle.WaitForStartup()
	if !infra.Ready() {
		t.Error("Ready() after startup should be true")
	}

	if err := infra.Broker.Publish(context.Background(), "uploads.document", []byte(`{}`)); err != nil {
		t.Errorf("Publish() error = %v", err)
	}
	if err := infra.Lifecycle.Shutdown(memoryConfig(t).ShutdownTimeoutDuration()); err != nil {
		t.Errorf("Shutdown() error = %v", err)
	}
}
