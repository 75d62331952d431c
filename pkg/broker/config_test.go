package broker_test

import (
	"testing"
	"time"

	"github.com/JaimeStill/docflow/pkg/broker"
)

func TestConfig_Finalize(t *testing.T) {
	tests := []struct {
		name    string
		cfg     broker.Config
		wantErr bool
	}{
		{name: "defaults", cfg: broker.Config{}},
		{name: "memory driver", cfg: broker.Config{Driver: broker.DriverMemory}},
		{name: "unknown driver", cfg: broker.Config{Driver: "kafka"}, wantErr: true},
		{name: "dotted stream", cfg: broker.Config{Stream: "doc.flow"}, wantErr: true},
		{name: "bad payload", cfg: broker.Config{MaxPayload: "lots"}, wantErr: true},
		{name: "bad ack wait", cfg: broker.Config{AckWait: "forever"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := tt.cfg
			err := cfg.Finalize(nil)
			if (err != nil) != tt.wantErr {
				t.Errorf("Finalize() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_Defaults(t *testing.T) {
	cfg := broker.Config{}
	if err := cfg.Finalize(nil); err != nil {
		t.Fatalf("Finalize() error = %v", err)
	}

	if cfg.Prefetch != 1 {
		t.Errorf("Prefetch = %d, want 1", cfg.Prefetch)
	}
	if got := cfg.MaxPayloadBytes(); got != 1_000_000 {
		t.Errorf("MaxPayloadBytes() = %d, want 1000000", got)
	}
	if p := cfg.Startup.Policy(); p.MaxAttempts != 10 {
		t.Errorf("startup MaxAttempts = %d, want 10", p.MaxAttempts)
	}
	if p := cfg.Reconnect.Policy(); !p.Allows(1000) {
		t.Errorf("reconnect policy should be unbounded")
	}
	if got := cfg.Redelivery.Policy().Backoff(1); got < 500*time.Millisecond {
		t.Errorf("redelivery Backoff(1) = %v, want at least 500ms", got)
	}
}
