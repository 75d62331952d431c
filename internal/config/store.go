package config

import (
	"fmt"
	"os"
)

// EnvStoreBackend overrides the persistence backend.
const EnvStoreBackend = "STORE_BACKEND"

const (
	// BackendPostgres persists documents, ledger entries and sagas in PostgreSQL.
	BackendPostgres = "postgres"

	// BackendMemory keeps all state in process. Intended for development.
	BackendMemory = "memory"
)

// StoreConfig selects the persistence backend.
type StoreConfig struct {
	Backend string `toml:"backend"`
}

// Finalize applies defaults, loads environment overrides, and validates the store configuration.
func (c *StoreConfig) Finalize() error {
	if c.Backend == "" {
		c.Backend = BackendPostgres
	}
	if v := os.Getenv(EnvStoreBackend); v != "" {
		c.Backend = v
	}

	switch c.Backend {
	case BackendPostgres, BackendMemory:
		return nil
	default:
		return fmt.Errorf("invalid backend %q (must be postgres or memory)", c.Backend)
	}
}

// Merge applies values from overlay configuration that differ from zero values.
func (c *StoreConfig) Merge(overlay *StoreConfig) {
	if overlay.Backend != "" {
		c.Backend = overlay.Backend
	}
}
