package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/JaimeStill/docflow/internal/documents"
	"github.com/JaimeStill/docflow/internal/idempotency"
	"github.com/google/uuid"
)

// Outcome is how Apply disposed of a record.
type Outcome string

const (
	OutcomeApplied Outcome = "applied"
	OutcomeSkipped Outcome = "skipped"
)

// Result describes an applied or skipped record. DocumentID and Revision
// name the revision the record produced, on first application.
type Result struct {
	Outcome    Outcome    `json:"outcome"`
	Key        string     `json:"idempotency_key"`
	DocumentID *uuid.UUID `json:"document_id,omitempty"`
	Revision   *int       `json:"revision,omitempty"`
}

// Applier applies normalized records at most once each.
type Applier struct {
	boundary Boundary
	docs     documents.System
	logger   *slog.Logger
}

// NewApplier creates an Applier writing through boundary with the
// revisioning rules of docs.
func NewApplier(boundary Boundary, docs documents.System, logger *slog.Logger) *Applier {
	return &Applier{
		boundary: boundary,
		docs:     docs,
		logger:   logger.With("system", "ingest"),
	}
}

// Apply checks the ledger for rec.Key and, when absent, performs the
// record's transaction and records the key in the same boundary. A new
// record whose natural key already belongs to a live document fails with
// documents.ErrDuplicate and writes nothing.
func (a *Applier) Apply(ctx context.Context, rec Record) (Result, error) {
	var result Result

	err := a.boundary.Atomic(ctx, func(ctx context.Context, store documents.Store, ledger idempotency.Ledger) error {
		prior, done, err := idempotency.Applied(ctx, ledger, rec.Key)
		if err != nil {
			return fmt.Errorf("check idempotency key: %w", err)
		}
		if done {
			result = Result{Outcome: OutcomeSkipped, Key: rec.Key, DocumentID: prior.DocumentID, Revision: prior.Revision}
			return nil
		}

		doc, err := a.perform(ctx, a.docs.WithStore(store), store, rec)
		if err != nil {
			return err
		}

		entry, err := ledger.Record(ctx, idempotency.Record{
			Key:        rec.Key,
			Outcome:    idempotency.OutcomeSuccess,
			DocumentID: &doc.DocumentID,
			Revision:   &doc.Revision,
		})
		if err != nil {
			return fmt.Errorf("record idempotency key: %w", err)
		}

		result = Result{Outcome: OutcomeApplied, Key: rec.Key, DocumentID: entry.DocumentID, Revision: entry.Revision}
		return nil
	})
	if err != nil {
		return Result{}, err
	}

	if result.Outcome == OutcomeSkipped {
		a.logger.Info("record already applied", "key", rec.Key, "row_num", rec.RowNum)
	} else {
		a.logger.Info("record applied",
			"key", rec.Key,
			"row_num", rec.RowNum,
			"transaction", rec.Transaction,
			"document_id", *result.DocumentID,
			"revision", *result.Revision)
	}
	return result, nil
}

// Reject runs publish once per key. A key already recorded as rejected is
// skipped and reports false. The key is recorded only after publish
// succeeds, so a failed publish is retried on redelivery.
func (a *Applier) Reject(ctx context.Context, key string, publish func(context.Context) error) (bool, error) {
	key = idempotency.Derive("rejected", key)

	var published bool
	err := a.boundary.Atomic(ctx, func(ctx context.Context, _ documents.Store, ledger idempotency.Ledger) error {
		_, err := ledger.Find(ctx, key)
		switch {
		case err == nil:
			return nil
		case !errors.Is(err, idempotency.ErrNotFound):
			return fmt.Errorf("check rejection key: %w", err)
		}

		if err := publish(ctx); err != nil {
			return err
		}
		published = true

		if _, err := ledger.Record(ctx, idempotency.Record{Key: key, Outcome: idempotency.OutcomeRejected}); err != nil {
			return fmt.Errorf("record rejection key: %w", err)
		}
		return nil
	})
	return published, err
}

func (a *Applier) perform(ctx context.Context, sys documents.System, store documents.Store, rec Record) (documents.Document, error) {
	switch rec.Transaction {
	case TransactionNew:
		if rec.NaturalKey != nil {
			existing, err := store.FindByNaturalKey(ctx, *rec.NaturalKey)
			switch {
			case err == nil:
				return documents.Document{}, fmt.Errorf("%w: natural key held by document %s", documents.ErrDuplicate, existing.DocumentID)
			case !errors.Is(err, documents.ErrNotFound):
				return documents.Document{}, err
			}
		}
		return sys.Create(ctx, rec.Input)

	case TransactionUpdate:
		id, err := target(ctx, sys, rec)
		if err != nil {
			return documents.Document{}, err
		}
		return sys.Update(ctx, id, rec.Input.Fields)

	case TransactionDelete:
		id, err := target(ctx, sys, rec)
		if err != nil {
			return documents.Document{}, err
		}
		return sys.Delete(ctx, id)

	default:
		return documents.Document{}, fmt.Errorf("%w: unknown transaction %q", documents.ErrValidation, rec.Transaction)
	}
}

// target resolves the document an update or delete refers to.
func target(ctx context.Context, sys documents.System, rec Record) (uuid.UUID, error) {
	if rec.DocumentID != nil {
		return *rec.DocumentID, nil
	}
	doc, err := sys.FindByNaturalKey(ctx, *rec.NaturalKey)
	if err != nil {
		return uuid.Nil, err
	}
	return doc.DocumentID, nil
}
