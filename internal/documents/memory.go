package documents

import (
	"cmp"
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/JaimeStill/docflow/pkg/pagination"
	"github.com/JaimeStill/docflow/pkg/query"
	"github.com/google/uuid"
)

type revisionKey struct {
	id       uuid.UUID
	revision int
}

// MemoryStore is an in-process Store. It enforces the same per-document
// revision uniqueness as the durable store.
type MemoryStore struct {
	mu   sync.RWMutex
	rows map[uuid.UUID][]Document
	now  func() time.Time
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		rows: make(map[uuid.UUID][]Document),
		now:  func() time.Time { return time.Now().UTC().Truncate(time.Microsecond) },
	}
}

func (m *MemoryStore) Persist(ctx context.Context, doc Document) (Document, error) {
	if err := ctx.Err(); err != nil {
		return Document{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.exists(revisionKey{doc.DocumentID, doc.Revision}) {
		return Document{}, ErrRevisionConflict
	}
	return m.insert(doc), nil
}

func (m *MemoryStore) FetchLatest(ctx context.Context, id uuid.UUID, includeDeleted bool) (Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return latest(m.rows[id], includeDeleted)
}

func (m *MemoryStore) FetchHistory(ctx context.Context, id uuid.UUID) ([]Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return history(m.rows[id]), nil
}

func (m *MemoryStore) FindByNaturalKey(ctx context.Context, key NaturalKey) (Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return findByKey(m.heads(), key)
}

func (m *MemoryStore) List(ctx context.Context, page pagination.PageRequest, filters Filters) (pagination.PageResult[Document], error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return listHeads(m.heads(), page, filters), nil
}

// Begin opens a staged unit of work. Writes made through the returned
// MemoryTx are visible to its own reads and reach the store only on Commit.
func (m *MemoryStore) Begin() *MemoryTx {
	return &MemoryTx{base: m, staged: make(map[uuid.UUID][]Document)}
}

func (m *MemoryStore) exists(k revisionKey) bool {
	for _, d := range m.rows[k.id] {
		if d.Revision == k.revision {
			return true
		}
	}
	return false
}

func (m *MemoryStore) insert(doc Document) Document {
	doc = doc.clone()
	doc.ID = uuid.New()
	doc.CreatedAt = m.now()
	m.rows[doc.DocumentID] = append(m.rows[doc.DocumentID], doc)
	return doc.clone()
}

func (m *MemoryStore) heads() []Document {
	out := make([]Document, 0, len(m.rows))
	for _, rows := range m.rows {
		if d, err := latest(rows, true); err == nil {
			out = append(out, d)
		}
	}
	return out
}

// MemoryTx is a staged unit of work over a MemoryStore.
type MemoryTx struct {
	base   *MemoryStore
	mu     sync.Mutex
	staged map[uuid.UUID][]Document
	done   bool
}

func (tx *MemoryTx) Persist(ctx context.Context, doc Document) (Document, error) {
	if err := ctx.Err(); err != nil {
		return Document{}, err
	}

	tx.mu.Lock()
	defer tx.mu.Unlock()

	for _, d := range tx.rows(doc.DocumentID) {
		if d.Revision == doc.Revision {
			return Document{}, ErrRevisionConflict
		}
	}

	doc = doc.clone()
	doc.ID = uuid.New()
	doc.CreatedAt = tx.base.now()
	tx.staged[doc.DocumentID] = append(tx.staged[doc.DocumentID], doc)
	return doc.clone(), nil
}

func (tx *MemoryTx) FetchLatest(ctx context.Context, id uuid.UUID, includeDeleted bool) (Document, error) {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	return latest(tx.rows(id), includeDeleted)
}

func (tx *MemoryTx) FetchHistory(ctx context.Context, id uuid.UUID) ([]Document, error) {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	return history(tx.rows(id)), nil
}

func (tx *MemoryTx) FindByNaturalKey(ctx context.Context, key NaturalKey) (Document, error) {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	return findByKey(tx.heads(), key)
}

func (tx *MemoryTx) List(ctx context.Context, page pagination.PageRequest, filters Filters) (pagination.PageResult[Document], error) {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	return listHeads(tx.heads(), page, filters), nil
}

// Commit publishes staged rows to the store. It fails with
// ErrRevisionConflict, publishing nothing, if another writer claimed any
// staged revision first.
func (tx *MemoryTx) Commit() error {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if tx.done {
		return nil
	}
	tx.done = true

	tx.base.mu.Lock()
	defer tx.base.mu.Unlock()

	for id, rows := range tx.staged {
		for _, d := range rows {
			if tx.base.exists(revisionKey{id, d.Revision}) {
				return ErrRevisionConflict
			}
		}
	}
	for id, rows := range tx.staged {
		tx.base.rows[id] = append(tx.base.rows[id], rows...)
	}
	return nil
}

// Rollback discards staged rows.
func (tx *MemoryTx) Rollback() {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	tx.done = true
	clear(tx.staged)
}

func (tx *MemoryTx) rows(id uuid.UUID) []Document {
	tx.base.mu.RLock()
	rows := slices.Clone(tx.base.rows[id])
	tx.base.mu.RUnlock()
	return append(rows, tx.staged[id]...)
}

func (tx *MemoryTx) heads() []Document {
	tx.base.mu.RLock()
	ids := make(map[uuid.UUID]struct{}, len(tx.base.rows)+len(tx.staged))
	for id := range tx.base.rows {
		ids[id] = struct{}{}
	}
	tx.base.mu.RUnlock()
	for id := range tx.staged {
		ids[id] = struct{}{}
	}

	out := make([]Document, 0, len(ids))
	for id := range ids {
		if d, err := latest(tx.rows(id), true); err == nil {
			out = append(out, d)
		}
	}
	return out
}

func latest(rows []Document, includeDeleted bool) (Document, error) {
	var (
		best  Document
		found bool
	)
	for _, d := range rows {
		if d.IsDeleted && !includeDeleted {
			continue
		}
		if !found || d.Revision > best.Revision {
			best, found = d, true
		}
	}
	if !found {
		return Document{}, ErrNotFound
	}
	return best.clone(), nil
}

func history(rows []Document) []Document {
	out := make([]Document, len(rows))
	for i, d := range rows {
		out[i] = d.clone()
	}
	slices.SortFunc(out, func(a, b Document) int {
		return cmp.Compare(b.Revision, a.Revision)
	})
	return out
}

func findByKey(heads []Document, key NaturalKey) (Document, error) {
	var (
		best  Document
		found bool
	)
	for _, d := range heads {
		if d.IsDeleted || !key.Matches(&d) {
			continue
		}
		if !found || d.LastModifiedDate.After(best.LastModifiedDate) {
			best, found = d, true
		}
	}
	if !found {
		return Document{}, ErrNotFound
	}
	return best, nil
}

var memorySorts = map[string]func(a, b *Document) int{
	"file_name":          func(a, b *Document) int { return strings.Compare(a.FileName, b.FileName) },
	"file_size":          func(a, b *Document) int { return cmp.Compare(a.FileSize, b.FileSize) },
	"document_type":      func(a, b *Document) int { return strings.Compare(a.DocumentType, b.DocumentType) },
	"revision":           func(a, b *Document) int { return cmp.Compare(a.Revision, b.Revision) },
	"upload_date":        func(a, b *Document) int { return a.UploadDate.Compare(b.UploadDate) },
	"last_modified_date": func(a, b *Document) int { return a.LastModifiedDate.Compare(b.LastModifiedDate) },
	"created_at":         func(a, b *Document) int { return a.CreatedAt.Compare(b.CreatedAt) },
}

func listHeads(heads []Document, page pagination.PageRequest, filters Filters) pagination.PageResult[Document] {
	var search string
	if page.Search != nil {
		search = strings.ToLower(*page.Search)
	}

	matched := make([]Document, 0, len(heads))
	for _, d := range heads {
		if !filters.matches(&d) {
			continue
		}
		if search != "" && !containsFold(d.FileName, search) &&
			(d.DocumentTitle == nil || !containsFold(*d.DocumentTitle, search)) {
			continue
		}
		matched = append(matched, d)
	}

	sorts := page.Sort
	if len(sorts) == 0 {
		sorts = []query.SortField{defaultSort}
	}
	slices.SortFunc(matched, func(a, b Document) int {
		for _, s := range sorts {
			cmpFn, ok := memorySorts[s.Field]
			if !ok {
				continue
			}
			c := cmpFn(&a, &b)
			if s.Descending {
				c = -c
			}
			if c != 0 {
				return c
			}
		}
		return strings.Compare(a.DocumentID.String(), b.DocumentID.String())
	})

	return pagination.Slice(matched, page)
}

func containsFold(s, lowerSub string) bool {
	return strings.Contains(strings.ToLower(s), lowerSub)
}
