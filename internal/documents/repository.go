package documents

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/JaimeStill/docflow/pkg/pagination"
	"github.com/JaimeStill/docflow/pkg/query"
	"github.com/JaimeStill/docflow/pkg/repository"
	"github.com/google/uuid"
)

var (
	selectColumns = strings.Join(columns, ", ")

	insertQuery = fmt.Sprintf(
		`INSERT INTO documents(%s)
		VALUES(%s)
		ON CONFLICT (document_id, revision) DO NOTHING
		RETURNING %s`,
		strings.Join(columns[1:len(columns)-1], ", "),
		placeholders(len(columns)-2),
		selectColumns,
	)

	latestQuery = fmt.Sprintf(
		`SELECT %s FROM documents
		WHERE document_id = $1 AND ($2 OR NOT is_deleted)
		ORDER BY revision DESC
		LIMIT 1`,
		selectColumns,
	)

	historyQuery = fmt.Sprintf(
		`SELECT %s FROM documents
		WHERE document_id = $1
		ORDER BY revision DESC`,
		selectColumns,
	)

	naturalKeyQuery = fmt.Sprintf(
		`SELECT %s FROM document_heads
		WHERE brand = $1 AND business_unit = $2 AND document_title = $3
		AND COALESCE(source_revision, '') = $4
		AND NOT is_deleted
		ORDER BY last_modified_date DESC
		LIMIT 1`,
		selectColumns,
	)
)

type pgStore struct {
	db repository.Querier
}

// NewStore returns a Store backed by PostgreSQL. db may be a *sql.DB or a
// *sql.Tx; callers sharing a transaction with other writes pass the Tx.
func NewStore(db repository.Querier) Store {
	return &pgStore{db: db}
}

func (s *pgStore) Persist(ctx context.Context, doc Document) (Document, error) {
	args, err := insertArgs(doc)
	if err != nil {
		return Document{}, fmt.Errorf("encode document: %w", err)
	}

	stored, err := repository.QueryOne(ctx, s.db, insertQuery, args, scanDocument)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Document{}, ErrRevisionConflict
		}
		return Document{}, repository.MapError(err, ErrNotFound, ErrRevisionConflict)
	}
	return stored, nil
}

func (s *pgStore) FetchLatest(ctx context.Context, id uuid.UUID, includeDeleted bool) (Document, error) {
	doc, err := repository.QueryOne(ctx, s.db, latestQuery, []any{id, includeDeleted}, scanDocument)
	if err != nil {
		return Document{}, repository.MapError(err, ErrNotFound, ErrDuplicate)
	}
	return doc, nil
}

func (s *pgStore) FetchHistory(ctx context.Context, id uuid.UUID) ([]Document, error) {
	docs, err := repository.QueryMany(ctx, s.db, historyQuery, []any{id}, scanDocument)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	return docs, nil
}

// FindByNaturalKey serializes concurrent lookups of the same key for the rest
// of the enclosing transaction, so a check-then-insert of a new document
// cannot race another writer with the same key.
func (s *pgStore) FindByNaturalKey(ctx context.Context, key NaturalKey) (Document, error) {
	lock := strings.Join([]string{key.Brand, key.BusinessUnit, key.Title, key.Revision}, "\x1f")
	if _, err := s.db.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, lock); err != nil {
		return Document{}, fmt.Errorf("lock natural key: %w", err)
	}

	doc, err := repository.QueryOne(ctx, s.db, naturalKeyQuery,
		[]any{key.Brand, key.BusinessUnit, key.Title, key.Revision}, scanDocument)
	if err != nil {
		return Document{}, repository.MapError(err, ErrNotFound, ErrDuplicate)
	}
	return doc, nil
}

func (s *pgStore) List(ctx context.Context, page pagination.PageRequest, filters Filters) (pagination.PageResult[Document], error) {
	qb := query.
		NewBuilder(heads, defaultSort).
		WhereSearch(page.Search, "file_name", "document_title")

	filters.apply(qb)

	if len(page.Sort) > 0 {
		qb.OrderBy(page.Sort...)
	}

	countSQL, countArgs := qb.BuildCount()
	var total int
	if err := s.db.QueryRowContext(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return pagination.PageResult[Document]{}, fmt.Errorf("count documents: %w", err)
	}

	pageSQL, pageArgs := qb.BuildPage(page.Page, page.PageSize)
	docs, err := repository.QueryMany(ctx, s.db, pageSQL, pageArgs, scanDocument)
	if err != nil {
		return pagination.PageResult[Document]{}, fmt.Errorf("query documents: %w", err)
	}

	return pagination.NewPageResult(docs, total, page.Page, page.PageSize), nil
}

func placeholders(n int) string {
	p := make([]string, n)
	for i := range p {
		p[i] = fmt.Sprintf("$%d", i+1)
	}
	return strings.Join(p, ", ")
}
