package ingest_test

import (
	"context"
	"testing"
	"time"

	"github.com/JaimeStill/docflow/internal/documents"
	"github.com/JaimeStill/docflow/internal/idempotency"
	"github.com/JaimeStill/docflow/internal/ingest"
	"github.com/JaimeStill/docflow/internal/schema/schematest"
	"github.com/JaimeStill/docflow/pkg/logging"
	"github.com/JaimeStill/docflow/pkg/pagination"
	"github.com/JaimeStill/docflow/pkg/retry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryEnv struct {
	store   *documents.MemoryStore
	ledger  *idempotency.MemoryLedger
	docs    documents.System
	applier *ingest.Applier
}

func newMemoryEnv() *memoryEnv {
	store := documents.NewMemoryStore()
	ledger := idempotency.NewMemoryLedger()
	docs := documents.New(store, retry.Fixed(time.Millisecond), logging.Discard())
	return &memoryEnv{
		store:   store,
		ledger:  ledger,
		docs:    docs,
		applier: ingest.NewApplier(ingest.NewMemoryBoundary(store, ledger), docs, logging.Discard()),
	}
}

func single(t *testing.T, raw map[string]any) ingest.Record {
	t.Helper()
	batch, err := ingest.Transform(mustJSON(t, raw))
	require.NoError(t, err)
	require.Empty(t, batch.Errors)
	require.Len(t, batch.Records, 1)
	return batch.Records[0]
}

func TestApply_SameKeyOnce(t *testing.T) {
	ctx := context.Background()
	env := newMemoryEnv()
	rec := single(t, flattenedRecord())

	first, err := env.applier.Apply(ctx, rec)
	require.NoError(t, err)
	assert.Equal(t, ingest.OutcomeApplied, first.Outcome)
	require.NotNil(t, first.DocumentID)
	assert.Equal(t, 1, *first.Revision)

	second, err := env.applier.Apply(ctx, rec)
	require.NoError(t, err)
	assert.Equal(t, ingest.OutcomeSkipped, second.Outcome)
	assert.Equal(t, *first.DocumentID, *second.DocumentID)

	history, err := env.docs.History(ctx, *first.DocumentID)
	require.NoError(t, err)
	assert.Len(t, history, 1)
	assert.Equal(t, 1, env.ledger.Len())
}

func TestApply_NewWithTakenNaturalKeyIsDuplicate(t *testing.T) {
	ctx := context.Background()
	env := newMemoryEnv()

	_, err := env.applier.Apply(ctx, single(t, flattenedRecord()))
	require.NoError(t, err)

	again := flattenedRecord()
	again["idempotency_key"] = "upload-2"
	_, err = env.applier.Apply(ctx, single(t, again))
	assert.ErrorIs(t, err, documents.ErrDuplicate)
	assert.True(t, ingest.IsPermanent(err))

	page, err := env.store.List(ctx, pagination.PageRequest{Page: 1, PageSize: 10}, documents.Filters{})
	require.NoError(t, err)
	assert.Equal(t, 1, page.Total)
	assert.Equal(t, 1, env.ledger.Len())
}

func TestApply_UpdateAndDeleteByNaturalKey(t *testing.T) {
	ctx := context.Background()
	env := newMemoryEnv()

	created, err := env.applier.Apply(ctx, single(t, flattenedRecord()))
	require.NoError(t, err)

	updated, err := env.applier.Apply(ctx, single(t, map[string]any{
		"idempotency_key":  "upload-1-update",
		"transaction_type": "update",
		"brand":            "Acme",
		"business_unit":    "Pumps",
		"document_title":   "Install Guide",
		"source_revision":  "B",
		"description":      "revised",
	}))
	require.NoError(t, err)
	assert.Equal(t, *created.DocumentID, *updated.DocumentID)
	assert.Equal(t, 2, *updated.Revision)

	deleted, err := env.applier.Apply(ctx, single(t, map[string]any{
		"idempotency_key":  "upload-1-delete",
		"transaction_type": "delete",
		"document_id":      created.DocumentID.String(),
	}))
	require.NoError(t, err)
	assert.Equal(t, 3, *deleted.Revision)

	_, err = env.docs.Find(ctx, *created.DocumentID, false)
	assert.ErrorIs(t, err, documents.ErrNotFound)
}

func TestApply_FailureWritesNothing(t *testing.T) {
	ctx := context.Background()
	env := newMemoryEnv()

	_, err := env.applier.Apply(ctx, single(t, map[string]any{
		"idempotency_key":  "missing-target",
		"transaction_type": "update",
		"document_id":      "0c3a1d52-8a52-4c2c-9f2e-0f0a8a3c1e11",
		"description":      "v2",
	}))
	assert.ErrorIs(t, err, documents.ErrNotFound)
	assert.Zero(t, env.ledger.Len())
}

func TestApply_Postgres(t *testing.T) {
	db := schematest.Postgres(t)
	ctx := context.Background()

	docs := documents.New(documents.NewStore(db), retry.Fixed(time.Millisecond), logging.Discard())
	applier := ingest.NewApplier(ingest.NewBoundary(db), docs, logging.Discard())
	ledger := idempotency.NewLedger(db)

	raw := flattenedRecord()
	raw["idempotency_key"] = "pg-upload-1"
	raw["document_title"] = "Postgres Guide"
	rec := single(t, raw)

	first, err := applier.Apply(ctx, rec)
	require.NoError(t, err)
	assert.Equal(t, ingest.OutcomeApplied, first.Outcome)

	second, err := applier.Apply(ctx, rec)
	require.NoError(t, err)
	assert.Equal(t, ingest.OutcomeSkipped, second.Outcome)

	entry, err := ledger.Find(ctx, "pg-upload-1")
	require.NoError(t, err)
	assert.Equal(t, *first.DocumentID, *entry.DocumentID)

	dup := flattenedRecord()
	dup["idempotency_key"] = "pg-upload-2"
	dup["document_title"] = "Postgres Guide"
	_, err = applier.Apply(ctx, single(t, dup))
	assert.ErrorIs(t, err, documents.ErrDuplicate)

	_, err = ledger.Find(ctx, "pg-upload-2")
	assert.ErrorIs(t, err, idempotency.ErrNotFound)

	history, err := docs.History(ctx, *first.DocumentID)
	require.NoError(t, err)
	assert.Len(t, history, 1)
}
