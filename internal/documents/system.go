package documents

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/JaimeStill/docflow/pkg/pagination"
	"github.com/JaimeStill/docflow/pkg/retry"
	"github.com/google/uuid"
)

// System defines the document revisioning operations. Every successful
// create, update or delete appends exactly one revision.
type System interface {
	Create(ctx context.Context, in Input) (Document, error)
	Update(ctx context.Context, id uuid.UUID, fields Fields) (Document, error)
	Find(ctx context.Context, id uuid.UUID, includeDeleted bool) (Document, error)
	History(ctx context.Context, id uuid.UUID) ([]Document, error)
	Delete(ctx context.Context, id uuid.UUID) (Document, error)
	List(ctx context.Context, page pagination.PageRequest, filters Filters) (pagination.PageResult[Document], error)
	FindByNaturalKey(ctx context.Context, key NaturalKey) (Document, error)

	// WithStore returns a System that reads and writes through store, used to
	// run operations inside a caller-owned transaction.
	WithStore(store Store) System
}

// DefaultConflictRetry bounds revision allocation retries.
var DefaultConflictRetry = retry.Policy{
	MaxAttempts:  5,
	InitialDelay: 10 * time.Millisecond,
	MaxDelay:     200 * time.Millisecond,
	Multiplier:   2,
	Jitter:       true,
}

type service struct {
	store     Store
	conflicts retry.Policy
	logger    *slog.Logger
	now       func() time.Time
}

// New creates the revisioning service over store. Revision allocation
// retries under conflicts when a concurrent writer claims the same revision.
func New(store Store, conflicts retry.Policy, logger *slog.Logger) System {
	return &service{
		store:     store,
		conflicts: conflicts,
		logger:    logger.With("system", "documents"),
		now:       func() time.Time { return time.Now().UTC().Truncate(time.Microsecond) },
	}
}

func (s *service) WithStore(store Store) System {
	cp := *s
	cp.store = store
	return &cp
}

func (s *service) Create(ctx context.Context, in Input) (Document, error) {
	id := uuid.New()
	if in.DocumentID != nil && *in.DocumentID != uuid.Nil {
		id = *in.DocumentID
	}

	fields := in.Fields
	now := s.now()
	if fields.UploadDate == nil {
		fields.UploadDate = &now
	}
	if fields.LastModifiedDate == nil {
		fields.LastModifiedDate = &now
	}
	if missing := fields.Missing(); len(missing) > 0 {
		return Document{}, &ValidationError{Missing: missing}
	}

	doc, _, err := s.revise(ctx, id, func(*Document) (Document, bool, error) {
		return fields.document(), true, nil
	})
	if err != nil {
		return Document{}, err
	}

	revisionsWritten.WithLabelValues("create").Inc()
	s.logger.Info("document created", "document_id", doc.DocumentID, "revision", doc.Revision)
	return doc, nil
}

func (s *service) Update(ctx context.Context, id uuid.UUID, fields Fields) (Document, error) {
	doc, _, err := s.revise(ctx, id, func(current *Document) (Document, bool, error) {
		if current == nil || current.IsDeleted {
			return Document{}, false, ErrNotFound
		}

		merged := fieldsOf(*current).Overlay(fields)
		merged.UploadDate = &current.UploadDate

		modified := s.now()
		if fields.LastModifiedDate != nil {
			modified = fields.LastModifiedDate.UTC().Truncate(time.Microsecond)
		}
		merged.LastModifiedDate = &modified

		if missing := merged.Missing(); len(missing) > 0 {
			return Document{}, false, &ValidationError{Missing: missing}
		}
		return merged.document(), true, nil
	})
	if err != nil {
		return Document{}, err
	}

	revisionsWritten.WithLabelValues("update").Inc()
	s.logger.Info("document updated", "document_id", doc.DocumentID, "revision", doc.Revision)
	return doc, nil
}

func (s *service) Find(ctx context.Context, id uuid.UUID, includeDeleted bool) (Document, error) {
	doc, err := s.store.FetchLatest(ctx, id, true)
	if err != nil {
		return Document{}, err
	}
	if doc.IsDeleted && !includeDeleted {
		return Document{}, ErrNotFound
	}
	return doc, nil
}

func (s *service) History(ctx context.Context, id uuid.UUID) ([]Document, error) {
	return s.store.FetchHistory(ctx, id)
}

// Delete appends a tombstone. Deleting a document whose latest revision is
// already a tombstone returns that tombstone without writing.
func (s *service) Delete(ctx context.Context, id uuid.UUID) (Document, error) {
	doc, written, err := s.revise(ctx, id, func(current *Document) (Document, bool, error) {
		if current == nil {
			return Document{}, false, ErrNotFound
		}
		if current.IsDeleted {
			return *current, false, nil
		}

		tomb := current.clone()
		tomb.LastModifiedDate = s.now()
		tomb.IsDeleted = true
		return tomb, true, nil
	})
	if err != nil || !written {
		return doc, err
	}

	revisionsWritten.WithLabelValues("delete").Inc()
	s.logger.Info("document deleted", "document_id", doc.DocumentID, "revision", doc.Revision)
	return doc, nil
}

func (s *service) List(ctx context.Context, page pagination.PageRequest, filters Filters) (pagination.PageResult[Document], error) {
	return s.store.List(ctx, page, filters)
}

func (s *service) FindByNaturalKey(ctx context.Context, key NaturalKey) (Document, error) {
	return s.store.FindByNaturalKey(ctx, key)
}

// revise appends the revision produced by build on top of the latest
// revision of id, including tombstones. build receives nil when id has no
// revisions and reports whether its result should be written; an unwritten
// result is returned as is. If a concurrent writer claims the revision first,
// the latest revision is re-read and build runs again.
func (s *service) revise(ctx context.Context, id uuid.UUID, build func(current *Document) (Document, bool, error)) (Document, bool, error) {
	var written bool

	doc, err := retry.DoWithResult(ctx, s.conflicts, isConflict, func() (Document, error) {
		var current *Document
		latest, err := s.store.FetchLatest(ctx, id, true)
		switch {
		case err == nil:
			current = &latest
		case !errors.Is(err, ErrNotFound):
			return Document{}, err
		}

		next, write, err := build(current)
		if err != nil || !write {
			written = false
			return next, err
		}

		next.ID = uuid.Nil
		next.DocumentID = id
		next.Revision = 1
		if current != nil {
			next.Revision = current.Revision + 1
		}

		stored, err := s.store.Persist(ctx, next)
		if errors.Is(err, ErrRevisionConflict) {
			revisionConflicts.Inc()
			s.logger.Debug("revision conflict", "document_id", id, "revision", next.Revision)
		}
		written = err == nil
		return stored, err
	})
	return doc, written, err
}

func isConflict(err error) bool {
	return errors.Is(err, ErrRevisionConflict)
}
