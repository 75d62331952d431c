package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/JaimeStill/docflow/internal/sagas"
	"github.com/JaimeStill/docflow/pkg/retry"
)

// EnvSagaEnabled toggles the saga orchestrator.
const EnvSagaEnabled = "SAGA_ENABLED"

var sagaStartupDefaults = retry.Config{
	MaxAttempts:  5,
	InitialDelay: "1s",
	MaxDelay:     "15s",
	Multiplier:   2,
	Jitter:       true,
}

// SagaConfig contains upload saga settings. Enabled is a pointer so an
// overlay can switch the orchestrator off.
type SagaConfig struct {
	Enabled      *bool        `toml:"enabled"`
	Queues       sagas.Queues `toml:"queues"`
	StartupRetry retry.Config `toml:"startup_retry"`
}

// IsEnabled reports whether the orchestrator and its listeners run.
func (c *SagaConfig) IsEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}

// Finalize applies defaults, loads environment overrides, and validates the saga configuration.
func (c *SagaConfig) Finalize() error {
	c.loadDefaults()
	c.loadEnv()

	if err := c.StartupRetry.Finalize(sagaStartupDefaults); err != nil {
		return fmt.Errorf("startup_retry: %w", err)
	}
	return c.validate()
}

// Merge applies values from overlay configuration that differ from zero values.
func (c *SagaConfig) Merge(overlay *SagaConfig) {
	if overlay.Enabled != nil {
		enabled := *overlay.Enabled
		c.Enabled = &enabled
	}
	mergeString(&c.Queues.DocumentUploaded, overlay.Queues.DocumentUploaded)
	mergeString(&c.Queues.SaveMetadata, overlay.Queues.SaveMetadata)
	mergeString(&c.Queues.IndexDocument, overlay.Queues.IndexDocument)
	mergeString(&c.Queues.StepCompleted, overlay.Queues.StepCompleted)
	mergeString(&c.Queues.StepFailed, overlay.Queues.StepFailed)
	c.StartupRetry.Merge(&overlay.StartupRetry)
}

func (c *SagaConfig) loadDefaults() {
	defaults := sagas.DefaultQueues()
	mergeString(&defaults.DocumentUploaded, c.Queues.DocumentUploaded)
	mergeString(&defaults.SaveMetadata, c.Queues.SaveMetadata)
	mergeString(&defaults.IndexDocument, c.Queues.IndexDocument)
	mergeString(&defaults.StepCompleted, c.Queues.StepCompleted)
	mergeString(&defaults.StepFailed, c.Queues.StepFailed)
	c.Queues = defaults
}

func (c *SagaConfig) loadEnv() {
	if v := os.Getenv(EnvSagaEnabled); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Enabled = &b
		}
	}
}

func (c *SagaConfig) validate() error {
	seen := map[string]bool{}
	for _, q := range []string{
		c.Queues.DocumentUploaded,
		c.Queues.SaveMetadata,
		c.Queues.IndexDocument,
		c.Queues.StepCompleted,
		c.Queues.StepFailed,
	} {
		if seen[q] {
			return fmt.Errorf("duplicate saga queue %q", q)
		}
		seen[q] = true
	}
	return nil
}

func mergeString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
