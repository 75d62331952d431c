// Package infrastructure provides core service initialization for application startup.
// It assembles the shared dependencies (logging, database, message broker) that
// domain systems and listeners require.
package infrastructure

import (
	"fmt"
	"log/slog"

	"github.com/JaimeStill/docflow/internal/config"
	"github.com/JaimeStill/docflow/internal/schema"
	"github.com/JaimeStill/docflow/pkg/broker"
	"github.com/JaimeStill/docflow/pkg/database"
	"github.com/JaimeStill/docflow/pkg/lifecycle"
	"github.com/JaimeStill/docflow/pkg/logging"
)

// Broker is a message channel with a managed connection.
type Broker interface {
	broker.Channel
	lifecycle.ReadinessChecker
	Start(lc *lifecycle.Coordinator) error
}

// Infrastructure holds the core systems required by all domain modules.
// Database is nil when the memory store backend is selected.
type Infrastructure struct {
	Lifecycle *lifecycle.Coordinator
	Logger    *slog.Logger
	Database  database.System
	Broker    Broker
}

// New creates an Infrastructure from the application configuration.
// It initializes all systems but does not start them; call Start separately.
func New(cfg *config.Config) (*Infrastructure, error) {
	lc := lifecycle.New()
	logger := logging.New(&cfg.Logging)

	var db database.System
	if cfg.Store.Backend == config.BackendPostgres {
		var err error
		db, err = database.New(&cfg.Database, schema.Migrations(), logger)
		if err != nil {
			return nil, fmt.Errorf("database init failed: %w", err)
		}
	}

	return &Infrastructure{
		Lifecycle: lc,
		Logger:    logger,
		Database:  db,
		Broker:    newBroker(&cfg.Broker, logger),
	}, nil
}

// Start initializes all infrastructure systems and registers them with the lifecycle coordinator.
func (i *Infrastructure) Start() error {
	if i.Database != nil {
		if err := i.Database.Start(i.Lifecycle); err != nil {
			return fmt.Errorf("database start failed: %w", err)
		}
	}
	if err := i.Broker.Start(i.Lifecycle); err != nil {
		return fmt.Errorf("broker start failed: %w", err)
	}
	return nil
}

// Ready reports whether startup has finished and the broker is connected.
func (i *Infrastructure) Ready() bool {
	return i.Lifecycle.Ready() && i.Broker.Ready()
}

func newBroker(cfg *broker.Config, logger *slog.Logger) Broker {
	if cfg.Driver == broker.DriverMemory {
		logger.Warn("using in-process broker; messages do not survive restart")
		return &memoryBroker{Memory: broker.NewMemory(cfg.MaxPayloadBytes())}
	}
	return broker.NewNATS(cfg, logger)
}

type memoryBroker struct {
	*broker.Memory
}

func (m *memoryBroker) Start(lc *lifecycle.Coordinator) error { return nil }
func (m *memoryBroker) Ready() bool                          { return true }
