package idempotency

import (
	"context"
	"database/sql"
	"errors"

	"github.com/JaimeStill/docflow/pkg/repository"
	"github.com/google/uuid"
)

const (
	findQuery = `SELECT idempotency_key, outcome, document_id, revision, processed_at
		FROM idempotency_keys
		WHERE idempotency_key = $1`

	insertQuery = `INSERT INTO idempotency_keys(idempotency_key, outcome, document_id, revision, processed_at)
		VALUES($1, $2, $3, $4, $5)
		ON CONFLICT (idempotency_key) DO NOTHING
		RETURNING idempotency_key, outcome, document_id, revision, processed_at`
)

type pgLedger struct {
	db repository.Querier
}

// NewLedger returns a Ledger backed by PostgreSQL. Pass the *sql.Tx that
// carries the guarded effect so both commit together.
func NewLedger(db repository.Querier) Ledger {
	return &pgLedger{db: db}
}

func (l *pgLedger) Find(ctx context.Context, key string) (Record, error) {
	rec, err := repository.QueryOne(ctx, l.db, findQuery, []any{key}, scanRecord)
	if err != nil {
		return Record{}, repository.MapError(err, ErrNotFound, ErrDuplicate)
	}
	return rec, nil
}

func (l *pgLedger) Record(ctx context.Context, rec Record) (Record, error) {
	if rec.ProcessedAt.IsZero() {
		rec.ProcessedAt = now()
	}

	docID := uuid.NullUUID{}
	if rec.DocumentID != nil {
		docID = uuid.NullUUID{UUID: *rec.DocumentID, Valid: true}
	}

	stored, err := repository.QueryOne(ctx, l.db, insertQuery,
		[]any{rec.Key, string(rec.Outcome), docID, rec.Revision, rec.ProcessedAt}, scanRecord)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Record{}, ErrDuplicate
		}
		return Record{}, repository.MapError(err, ErrNotFound, ErrDuplicate)
	}
	return stored, nil
}

func scanRecord(s repository.Scanner) (Record, error) {
	var (
		r       Record
		outcome string
	)
	err := s.Scan(&r.Key, &outcome, &r.DocumentID, &r.Revision, &r.ProcessedAt)
	r.Outcome = Outcome(outcome)
	r.ProcessedAt = r.ProcessedAt.UTC()
	return r, err
}
