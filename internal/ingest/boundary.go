package ingest

import (
	"context"
	"database/sql"
	"sync"

	"github.com/JaimeStill/docflow/internal/documents"
	"github.com/JaimeStill/docflow/internal/idempotency"
	"github.com/JaimeStill/docflow/pkg/repository"
)

// UnitFunc performs writes through store and ledger.
type UnitFunc func(ctx context.Context, store documents.Store, ledger idempotency.Ledger) error

// Boundary makes the writes of one UnitFunc durable together or not at all.
type Boundary interface {
	Atomic(ctx context.Context, fn UnitFunc) error
}

type pgBoundary struct {
	db *sql.DB
}

// NewBoundary returns a Boundary running each unit in a PostgreSQL
// transaction.
func NewBoundary(db *sql.DB) Boundary {
	return &pgBoundary{db: db}
}

func (b *pgBoundary) Atomic(ctx context.Context, fn UnitFunc) error {
	_, err := repository.WithTx(ctx, b.db, func(tx *sql.Tx) (struct{}, error) {
		return struct{}{}, fn(ctx, documents.NewStore(tx), idempotency.NewLedger(tx))
	})
	return err
}

// MemoryBoundary stages a unit's writes against the in-memory store and
// ledger and commits them when the unit succeeds. Units run one at a time.
type MemoryBoundary struct {
	mu     sync.Mutex
	store  *documents.MemoryStore
	ledger *idempotency.MemoryLedger
}

// NewMemoryBoundary returns a Boundary over store and ledger.
func NewMemoryBoundary(store *documents.MemoryStore, ledger *idempotency.MemoryLedger) *MemoryBoundary {
	return &MemoryBoundary{store: store, ledger: ledger}
}

func (b *MemoryBoundary) Atomic(ctx context.Context, fn UnitFunc) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	store := b.store.Begin()
	ledger := b.ledger.Begin()

	if err := fn(ctx, store, ledger); err != nil {
		store.Rollback()
		ledger.Rollback()
		return err
	}

	if err := store.Commit(); err != nil {
		ledger.Rollback()
		return err
	}
	return ledger.Commit()
}
