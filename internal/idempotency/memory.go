package idempotency

import (
	"context"
	"maps"
	"sync"
)

// MemoryLedger is an in-process Ledger.
type MemoryLedger struct {
	mu      sync.RWMutex
	records map[string]Record
}

// NewMemoryLedger returns an empty MemoryLedger.
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{records: make(map[string]Record)}
}

func (m *MemoryLedger) Find(ctx context.Context, key string) (Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.records[key]
	if !ok {
		return Record{}, ErrNotFound
	}
	return rec, nil
}

func (m *MemoryLedger) Record(ctx context.Context, rec Record) (Record, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.records[rec.Key]; ok {
		return Record{}, ErrDuplicate
	}
	if rec.ProcessedAt.IsZero() {
		rec.ProcessedAt = now()
	}
	m.records[rec.Key] = rec
	return rec, nil
}

// Len returns the number of recorded keys.
func (m *MemoryLedger) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records)
}

// Begin opens a staged unit of work whose entries reach the ledger on Commit.
func (m *MemoryLedger) Begin() *MemoryTx {
	return &MemoryTx{base: m, staged: make(map[string]Record)}
}

// MemoryTx stages ledger entries.
type MemoryTx struct {
	base   *MemoryLedger
	mu     sync.Mutex
	staged map[string]Record
	done   bool
}

func (tx *MemoryTx) Find(ctx context.Context, key string) (Record, error) {
	tx.mu.Lock()
	rec, ok := tx.staged[key]
	tx.mu.Unlock()
	if ok {
		return rec, nil
	}
	return tx.base.Find(ctx, key)
}

func (tx *MemoryTx) Record(ctx context.Context, rec Record) (Record, error) {
	if _, err := tx.Find(ctx, rec.Key); err == nil {
		return Record{}, ErrDuplicate
	}

	tx.mu.Lock()
	defer tx.mu.Unlock()

	if rec.ProcessedAt.IsZero() {
		rec.ProcessedAt = now()
	}
	tx.staged[rec.Key] = rec
	return rec, nil
}

// Commit publishes staged entries. It fails with ErrDuplicate, publishing
// nothing, if any staged key was recorded by another writer first.
func (tx *MemoryTx) Commit() error {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if tx.done {
		return nil
	}
	tx.done = true

	tx.base.mu.Lock()
	defer tx.base.mu.Unlock()

	for key := range tx.staged {
		if _, ok := tx.base.records[key]; ok {
			return ErrDuplicate
		}
	}
	maps.Copy(tx.base.records, tx.staged)
	return nil
}

// Rollback discards staged entries.
func (tx *MemoryTx) Rollback() {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	tx.done = true
	clear(tx.staged)
}
