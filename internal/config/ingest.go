package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/JaimeStill/docflow/pkg/retry"
)

const (
	// EnvIngestDocumentQueue overrides the single-record upload queue.
	EnvIngestDocumentQueue = "INGEST_DOCUMENT_QUEUE"

	// EnvIngestBulkQueue overrides the batch upload queue.
	EnvIngestBulkQueue = "INGEST_BULK_QUEUE"

	// EnvIngestDeadLetterPrefix overrides the dead-letter subject prefix.
	EnvIngestDeadLetterPrefix = "INGEST_DEAD_LETTER_PREFIX"
)

var conflictRetryDefaults = retry.Config{
	MaxAttempts:  5,
	InitialDelay: "10ms",
	MaxDelay:     "200ms",
	Multiplier:   2,
	Jitter:       true,
}

// IngestConfig contains upload queue settings.
type IngestConfig struct {
	DocumentQueue    string       `toml:"document_queue"`
	BulkQueue        string       `toml:"bulk_queue"`
	DeadLetterPrefix string       `toml:"dead_letter_prefix"`
	ConflictRetry    retry.Config `toml:"conflict_retry"`
}

// Queues returns the upload queues consumed by the ingest listeners.
func (c *IngestConfig) Queues() []string {
	return []string{c.DocumentQueue, c.BulkQueue}
}

// Finalize applies defaults, loads environment overrides, and validates the ingest configuration.
func (c *IngestConfig) Finalize() error {
	c.loadDefaults()
	c.loadEnv()

	if err := c.ConflictRetry.Finalize(conflictRetryDefaults); err != nil {
		return fmt.Errorf("conflict_retry: %w", err)
	}
	return c.validate()
}

// Merge applies values from overlay configuration that differ from zero values.
func (c *IngestConfig) Merge(overlay *IngestConfig) {
	if overlay.DocumentQueue != "" {
		c.DocumentQueue = overlay.DocumentQueue
	}
	if overlay.BulkQueue != "" {
		c.BulkQueue = overlay.BulkQueue
	}
	if overlay.DeadLetterPrefix != "" {
		c.DeadLetterPrefix = overlay.DeadLetterPrefix
	}
	c.ConflictRetry.Merge(&overlay.ConflictRetry)
}

func (c *IngestConfig) loadDefaults() {
	if c.DocumentQueue == "" {
		c.DocumentQueue = "uploads.document"
	}
	if c.BulkQueue == "" {
		c.BulkQueue = "uploads.bulk"
	}
	if c.DeadLetterPrefix == "" {
		c.DeadLetterPrefix = "deadletter"
	}
}

func (c *IngestConfig) loadEnv() {
	if v := os.Getenv(EnvIngestDocumentQueue); v != "" {
		c.DocumentQueue = v
	}
	if v := os.Getenv(EnvIngestBulkQueue); v != "" {
		c.BulkQueue = v
	}
	if v := os.Getenv(EnvIngestDeadLetterPrefix); v != "" {
		c.DeadLetterPrefix = v
	}
}

func (c *IngestConfig) validate() error {
	if c.DocumentQueue == c.BulkQueue {
		return fmt.Errorf("document_queue and bulk_queue must differ")
	}
	if strings.HasPrefix(c.DocumentQueue, c.DeadLetterPrefix+".") || strings.HasPrefix(c.BulkQueue, c.DeadLetterPrefix+".") {
		return fmt.Errorf("upload queues must not fall under dead_letter_prefix %q", c.DeadLetterPrefix)
	}
	return nil
}
