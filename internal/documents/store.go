package documents

import (
	"context"
	"net/url"
	"strconv"

	"github.com/JaimeStill/docflow/pkg/pagination"
	"github.com/google/uuid"
)

// Store is the append-only revision store. Implementations never update or
// delete a persisted row.
type Store interface {
	// Persist inserts doc as a new row, assigning its row id and creation
	// time. A row with the same document id and revision fails with
	// ErrRevisionConflict.
	Persist(ctx context.Context, doc Document) (Document, error)

	// FetchLatest returns the highest revision of id. When includeDeleted is
	// false, tombstone rows are skipped.
	FetchLatest(ctx context.Context, id uuid.UUID, includeDeleted bool) (Document, error)

	// FetchHistory returns every revision of id, newest first.
	FetchHistory(ctx context.Context, id uuid.UUID) ([]Document, error)

	// FindByNaturalKey returns the head of the live document carrying key.
	FindByNaturalKey(ctx context.Context, key NaturalKey) (Document, error)

	// List pages over document heads.
	List(ctx context.Context, page pagination.PageRequest, filters Filters) (pagination.PageResult[Document], error)
}

// Filters narrows List results. Nil fields do not filter.
type Filters struct {
	DocumentType   *string
	Brand          *string
	BusinessUnit   *string
	Category       *string
	UserID         *uuid.UUID
	IncludeDeleted bool
}

// FiltersFromQuery extracts filters from URL query parameters. An unparsable
// user_id is ignored.
func FiltersFromQuery(values url.Values) Filters {
	var f Filters

	if v := values.Get("document_type"); v != "" {
		f.DocumentType = &v
	}
	if v := values.Get("brand"); v != "" {
		f.Brand = &v
	}
	if v := values.Get("business_unit"); v != "" {
		f.BusinessUnit = &v
	}
	if v := values.Get("category"); v != "" {
		f.Category = &v
	}
	if v := values.Get("user_id"); v != "" {
		if id, err := uuid.Parse(v); err == nil {
			f.UserID = &id
		}
	}
	f.IncludeDeleted, _ = strconv.ParseBool(values.Get("include_deleted"))

	return f
}

func (f Filters) matches(d *Document) bool {
	switch {
	case !f.IncludeDeleted && d.IsDeleted:
		return false
	case f.DocumentType != nil && d.DocumentType != *f.DocumentType:
		return false
	case f.Brand != nil && (d.Brand == nil || *d.Brand != *f.Brand):
		return false
	case f.BusinessUnit != nil && (d.BusinessUnit == nil || *d.BusinessUnit != *f.BusinessUnit):
		return false
	case f.Category != nil && (d.Category == nil || *d.Category != *f.Category):
		return false
	case f.UserID != nil && d.UserID != *f.UserID:
		return false
	}
	return true
}
