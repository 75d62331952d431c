package api

import (
	"github.com/JaimeStill/docflow/internal/config"
	"github.com/JaimeStill/docflow/internal/documents"
	"github.com/JaimeStill/docflow/internal/idempotency"
	"github.com/JaimeStill/docflow/internal/ingest"
	"github.com/JaimeStill/docflow/internal/listener"
	"github.com/JaimeStill/docflow/internal/sagas"
)

// Domain holds all domain systems served over HTTP and the message channel.
// Sagas is nil when the orchestrator is disabled.
type Domain struct {
	Documents   documents.System
	Ingest      *ingest.Consumer
	Sagas       *sagas.Orchestrator
	DeadLetters *listener.DeadLetters
}

// NewDomain creates all domain systems over the configured store backend.
func NewDomain(cfg *config.Config, runtime *Runtime) *Domain {
	var (
		docStore  documents.Store
		sagaStore sagas.Store
		boundary  ingest.Boundary
	)

	switch cfg.Store.Backend {
	case config.BackendMemory:
		store := documents.NewMemoryStore()
		docStore = store
		sagaStore = sagas.NewMemoryStore()
		boundary = ingest.NewMemoryBoundary(store, idempotency.NewMemoryLedger())
	default:
		db := runtime.Database.Connection()
		docStore = documents.NewStore(db)
		sagaStore = sagas.NewStore(db)
		boundary = ingest.NewBoundary(db)
	}

	docs := documents.New(docStore, cfg.Ingest.ConflictRetry.Policy(), runtime.Logger)
	deadLetters := listener.NewDeadLetters(runtime.Broker, cfg.Ingest.DeadLetterPrefix)

	d := &Domain{
		Documents: docs,
		Ingest: ingest.NewConsumer(
			ingest.NewApplier(boundary, docs, runtime.Logger),
			runtime.Broker,
			deadLetters,
			cfg.Saga.Queues,
			runtime.Logger,
		),
		DeadLetters: deadLetters,
	}

	if cfg.Saga.IsEnabled() {
		d.Sagas = sagas.New(sagaStore, runtime.Broker, cfg.Saga.Queues, runtime.Logger)
	}
	return d
}
