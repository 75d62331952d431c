package idempotency_test

import (
	"context"
	"testing"

	"github.com/JaimeStill/docflow/internal/idempotency"
	"github.com/JaimeStill/docflow/internal/schema/schematest"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func exerciseLedger(t *testing.T, ledger idempotency.Ledger) {
	ctx := context.Background()
	key := "key-" + uuid.NewString()

	_, err := ledger.Find(ctx, key)
	assert.ErrorIs(t, err, idempotency.ErrNotFound)

	_, applied, err := idempotency.Applied(ctx, ledger, key)
	require.NoError(t, err)
	assert.False(t, applied)

	docID := uuid.New()
	rev := 3
	stored, err := ledger.Record(ctx, idempotency.Record{
		Key:        key,
		Outcome:    idempotency.OutcomeSuccess,
		DocumentID: &docID,
		Revision:   &rev,
	})
	require.NoError(t, err)
	assert.False(t, stored.ProcessedAt.IsZero())

	found, applied, err := idempotency.Applied(ctx, ledger, key)
	require.NoError(t, err)
	assert.True(t, applied)
	require.NotNil(t, found.DocumentID)
	assert.Equal(t, docID, *found.DocumentID)
	assert.Equal(t, 3, *found.Revision)

	_, err = ledger.Record(ctx, idempotency.Record{Key: key, Outcome: "other"})
	assert.ErrorIs(t, err, idempotency.ErrDuplicate)

	again, err := ledger.Find(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, idempotency.OutcomeSuccess, again.Outcome)
}

func TestMemoryLedger(t *testing.T) {
	exerciseLedger(t, idempotency.NewMemoryLedger())
}

func TestPostgresLedger(t *testing.T) {
	db := schematest.Postgres(t)
	exerciseLedger(t, idempotency.NewLedger(db))
}

func TestMemoryTx(t *testing.T) {
	ctx := context.Background()
	ledger := idempotency.NewMemoryLedger()

	tx := ledger.Begin()
	_, err := tx.Record(ctx, idempotency.Record{Key: "a", Outcome: idempotency.OutcomeSuccess})
	require.NoError(t, err)

	_, err = tx.Find(ctx, "a")
	require.NoError(t, err)
	_, err = ledger.Find(ctx, "a")
	assert.ErrorIs(t, err, idempotency.ErrNotFound)

	_, err = tx.Record(ctx, idempotency.Record{Key: "a", Outcome: idempotency.OutcomeSuccess})
	assert.ErrorIs(t, err, idempotency.ErrDuplicate)

	require.NoError(t, tx.Commit())
	assert.Equal(t, 1, ledger.Len())

	tx = ledger.Begin()
	_, err = tx.Record(ctx, idempotency.Record{Key: "b", Outcome: idempotency.OutcomeSuccess})
	require.NoError(t, err)
	tx.Rollback()
	assert.Equal(t, 1, ledger.Len())
}

func TestMemoryTx_CommitDuplicate(t *testing.T) {
	ctx := context.Background()
	ledger := idempotency.NewMemoryLedger()

	tx := ledger.Begin()
	_, err := tx.Record(ctx, idempotency.Record{Key: "a", Outcome: idempotency.OutcomeSuccess})
	require.NoError(t, err)

	_, err = ledger.Record(ctx, idempotency.Record{Key: "a", Outcome: idempotency.OutcomeSuccess})
	require.NoError(t, err)

	assert.ErrorIs(t, tx.Commit(), idempotency.ErrDuplicate)
}
