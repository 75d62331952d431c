package sagas

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"github.com/JaimeStill/docflow/pkg/pagination"
	"github.com/google/uuid"
)

// MemoryStore is an in-process Store.
type MemoryStore struct {
	mu    sync.Mutex
	sagas map[uuid.UUID]*Saga
	now   func() time.Time
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sagas: make(map[uuid.UUID]*Saga),
		now:   func() time.Time { return time.Now().UTC().Truncate(time.Microsecond) },
	}
}

func (m *MemoryStore) Create(ctx context.Context, saga Saga) (Saga, error) {
	if err := ctx.Err(); err != nil {
		return Saga{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	s := saga.clone()
	s.CreatedAt, s.UpdatedAt = now, now
	for i := range s.Steps {
		s.Steps[i].SagaID = s.ID
		s.Steps[i].Sequence = i + 1
		s.Steps[i].CreatedAt = now
	}

	m.sagas[s.ID] = &s
	return s.clone(), nil
}

func (m *MemoryStore) Find(ctx context.Context, id uuid.UUID) (Saga, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sagas[id]
	if !ok {
		return Saga{}, ErrNotFound
	}
	return s.clone(), nil
}

func (m *MemoryStore) List(ctx context.Context, page pagination.PageRequest, filters Filters) (pagination.PageResult[Saga], error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	items := m.sorted(func(s *Saga) bool {
		return filters.Status == nil || s.Status == *filters.Status
	})
	slices.Reverse(items)
	return pagination.Slice(items, page), nil
}

func (m *MemoryStore) Active(ctx context.Context) ([]Saga, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.sorted(func(s *Saga) bool { return s.Status == StatusInProgress }), nil
}

func (m *MemoryStore) Advance(ctx context.Context, sagaID, stepID uuid.UUID, next *Step) (Saga, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, i, err := m.pending(sagaID, stepID)
	if err != nil {
		return Saga{}, err
	}

	now := m.now()
	s.Steps[i].Status = StepCompleted
	s.Steps[i].CompletedAt = &now

	if next != nil {
		step := *next
		step.SagaID = sagaID
		step.Sequence = len(s.Steps) + 1
		step.Status = StepPending
		step.Payload = slices.Clone(next.Payload)
		step.CreatedAt = now
		s.Steps = append(s.Steps, step)
	} else {
		s.Status = StatusCompleted
	}

	s.UpdatedAt = now
	return s.clone(), nil
}

func (m *MemoryStore) Fail(ctx context.Context, sagaID, stepID uuid.UUID, reason string) (Saga, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, i, err := m.pending(sagaID, stepID)
	if err != nil {
		return Saga{}, err
	}

	now := m.now()
	s.Steps[i].Status = StepFailed
	s.Steps[i].Error = &reason
	s.Steps[i].CompletedAt = &now
	s.Status = StatusFailed
	s.UpdatedAt = now
	return s.clone(), nil
}

func (m *MemoryStore) pending(sagaID, stepID uuid.UUID) (*Saga, int, error) {
	s, ok := m.sagas[sagaID]
	if !ok {
		return nil, 0, ErrNotFound
	}

	i := slices.IndexFunc(s.Steps, func(st Step) bool { return st.ID == stepID })
	if i < 0 {
		return nil, 0, ErrNotFound
	}
	if s.Steps[i].Status != StepPending {
		return nil, 0, ErrStepSettled
	}
	return s, i, nil
}

// sorted returns copies of the sagas matching keep, oldest first.
func (m *MemoryStore) sorted(keep func(*Saga) bool) []Saga {
	items := make([]Saga, 0, len(m.sagas))
	for _, s := range m.sagas {
		if keep(s) {
			items = append(items, s.clone())
		}
	}

	slices.SortFunc(items, func(a, b Saga) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID.String(), b.ID.String())
	})
	return items
}
