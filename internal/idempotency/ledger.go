// Package idempotency records the operation keys whose effects have already
// been applied, so that redelivered messages are not applied twice.
package idempotency

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound  = errors.New("idempotency key not found")
	ErrDuplicate = errors.New("idempotency key already recorded")
)

// Outcome is the result recorded for a processed key.
type Outcome string

const (
	// OutcomeSuccess means the guarded effect was applied and must not be
	// applied again.
	OutcomeSuccess Outcome = "success"
	// OutcomeRejected means the input was dead-lettered and must not be
	// dead-lettered again.
	OutcomeRejected Outcome = "rejected"
)

// Record is one ledger entry. DocumentID and Revision identify the revision
// the guarded operation produced, when it produced one.
type Record struct {
	Key         string     `json:"idempotency_key"`
	Outcome     Outcome    `json:"outcome"`
	DocumentID  *uuid.UUID `json:"document_id,omitempty"`
	Revision    *int       `json:"revision,omitempty"`
	ProcessedAt time.Time  `json:"processed_at"`
}

// Ledger is a write-once key store. Entries are never updated.
type Ledger interface {
	// Find returns the entry for key or ErrNotFound.
	Find(ctx context.Context, key string) (Record, error)

	// Record inserts rec. ProcessedAt defaults to now. An existing key fails
	// with ErrDuplicate and leaves the original entry untouched.
	Record(ctx context.Context, rec Record) (Record, error)
}

// Applied reports whether key has a success entry in l.
func Applied(ctx context.Context, l Ledger, key string) (Record, bool, error) {
	rec, err := l.Find(ctx, key)
	switch {
	case errors.Is(err, ErrNotFound):
		return Record{}, false, nil
	case err != nil:
		return Record{}, false, err
	}
	return rec, rec.Outcome == OutcomeSuccess, nil
}

func now() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}
