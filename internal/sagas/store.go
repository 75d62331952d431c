package sagas

import (
	"context"
	"net/url"

	"github.com/JaimeStill/docflow/pkg/pagination"
	"github.com/google/uuid"
)

// Store persists sagas and their steps. Steps are only ever appended; the
// single mutation a step allows is leaving pending.
type Store interface {
	// Create stores a new saga together with its initial steps.
	Create(ctx context.Context, saga Saga) (Saga, error)
	Find(ctx context.Context, id uuid.UUID) (Saga, error)
	List(ctx context.Context, page pagination.PageRequest, filters Filters) (pagination.PageResult[Saga], error)

	// Active returns every in-progress saga, oldest first.
	Active(ctx context.Context) ([]Saga, error)

	// Advance completes the pending step stepID. When next is non-nil it is
	// appended as the new pending step; otherwise the saga completes. A step
	// that is no longer pending yields ErrStepSettled.
	Advance(ctx context.Context, sagaID, stepID uuid.UUID, next *Step) (Saga, error)

	// Fail marks the pending step stepID and its saga failed.
	Fail(ctx context.Context, sagaID, stepID uuid.UUID, reason string) (Saga, error)
}

// Filters narrows saga listings.
type Filters struct {
	Status *Status
}

// FiltersFromQuery reads the status filter.
func FiltersFromQuery(values url.Values) Filters {
	var f Filters
	if s := values.Get("status"); s != "" {
		status := Status(s)
		f.Status = &status
	}
	return f
}
