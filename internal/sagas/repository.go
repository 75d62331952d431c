package sagas

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/JaimeStill/docflow/pkg/pagination"
	"github.com/JaimeStill/docflow/pkg/query"
	"github.com/JaimeStill/docflow/pkg/repository"
	"github.com/google/uuid"
)

const (
	sagaColumns = "id, status, payload, created_at, updated_at"
	stepColumns = "id, saga_id, sequence, service_name, status, payload, error, created_at, completed_at"

	insertSagaQuery = `INSERT INTO sagas(id, status, payload, created_at, updated_at)
		VALUES($1, $2, $3, $4, $4)`

	insertStepQuery = `INSERT INTO saga_steps(id, saga_id, sequence, service_name, status, payload, created_at)
		SELECT $1, $2, COALESCE(MAX(sequence), 0) + 1, $3, 'pending', $4, $5
		FROM saga_steps WHERE saga_id = $2`

	findSagaQuery = `SELECT ` + sagaColumns + ` FROM sagas WHERE id = $1`

	lockSagaQuery = `SELECT ` + sagaColumns + ` FROM sagas WHERE id = $1 FOR UPDATE`

	activeQuery = `SELECT ` + sagaColumns + ` FROM sagas
		WHERE status = 'in_progress'
		ORDER BY created_at, id`

	stepsQuery = `SELECT ` + stepColumns + ` FROM saga_steps
		WHERE saga_id::text = ANY($1)
		ORDER BY saga_id, sequence`

	settleStepQuery = `UPDATE saga_steps
		SET status = $3, error = $4, completed_at = $5
		WHERE id = $1 AND saga_id = $2 AND status = 'pending'`

	stepExistsQuery = `SELECT EXISTS(SELECT 1 FROM saga_steps WHERE id = $1 AND saga_id = $2)`

	updateSagaQuery = `UPDATE sagas SET status = $2, updated_at = $3 WHERE id = $1`
)

type pgStore struct {
	db *sql.DB
}

// NewStore returns a Store backed by PostgreSQL.
func NewStore(db *sql.DB) Store {
	return &pgStore{db: db}
}

func (s *pgStore) Create(ctx context.Context, saga Saga) (Saga, error) {
	return repository.WithTx(ctx, s.db, func(tx *sql.Tx) (Saga, error) {
		now := time.Now().UTC()
		if _, err := tx.ExecContext(ctx, insertSagaQuery, saga.ID, string(saga.Status), []byte(saga.Payload), now); err != nil {
			return Saga{}, fmt.Errorf("insert saga: %w", err)
		}
		for _, st := range saga.Steps {
			if err := insertStep(ctx, tx, saga.ID, st, now); err != nil {
				return Saga{}, err
			}
		}
		return find(ctx, tx, findSagaQuery, saga.ID)
	})
}

func (s *pgStore) Find(ctx context.Context, id uuid.UUID) (Saga, error) {
	return find(ctx, s.db, findSagaQuery, id)
}

func (s *pgStore) List(ctx context.Context, page pagination.PageRequest, filters Filters) (pagination.PageResult[Saga], error) {
	qb := query.NewBuilder(projection, defaultSort)
	filters.apply(qb)

	if len(page.Sort) > 0 {
		qb.OrderBy(page.Sort...)
	}

	countSQL, countArgs := qb.BuildCount()
	var total int
	if err := s.db.QueryRowContext(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return pagination.PageResult[Saga]{}, fmt.Errorf("count sagas: %w", err)
	}

	pageSQL, pageArgs := qb.BuildPage(page.Page, page.PageSize)
	items, err := repository.QueryMany(ctx, s.db, pageSQL, pageArgs, scanSaga)
	if err != nil {
		return pagination.PageResult[Saga]{}, fmt.Errorf("query sagas: %w", err)
	}
	if err := attachSteps(ctx, s.db, items); err != nil {
		return pagination.PageResult[Saga]{}, err
	}

	return pagination.NewPageResult(items, total, page.Page, page.PageSize), nil
}

func (s *pgStore) Active(ctx context.Context) ([]Saga, error) {
	items, err := repository.QueryMany(ctx, s.db, activeQuery, nil, scanSaga)
	if err != nil {
		return nil, fmt.Errorf("query active sagas: %w", err)
	}
	if err := attachSteps(ctx, s.db, items); err != nil {
		return nil, err
	}
	return items, nil
}

func (s *pgStore) Advance(ctx context.Context, sagaID, stepID uuid.UUID, next *Step) (Saga, error) {
	return repository.WithTx(ctx, s.db, func(tx *sql.Tx) (Saga, error) {
		now := time.Now().UTC()
		if err := settle(ctx, tx, sagaID, stepID, StepCompleted, nil, now); err != nil {
			return Saga{}, err
		}

		status := StatusInProgress
		if next != nil {
			if err := insertStep(ctx, tx, sagaID, *next, now); err != nil {
				return Saga{}, err
			}
		} else {
			status = StatusCompleted
		}

		if _, err := tx.ExecContext(ctx, updateSagaQuery, sagaID, string(status), now); err != nil {
			return Saga{}, fmt.Errorf("update saga: %w", err)
		}
		return find(ctx, tx, findSagaQuery, sagaID)
	})
}

func (s *pgStore) Fail(ctx context.Context, sagaID, stepID uuid.UUID, reason string) (Saga, error) {
	return repository.WithTx(ctx, s.db, func(tx *sql.Tx) (Saga, error) {
		now := time.Now().UTC()
		if err := settle(ctx, tx, sagaID, stepID, StepFailed, &reason, now); err != nil {
			return Saga{}, err
		}
		if _, err := tx.ExecContext(ctx, updateSagaQuery, sagaID, string(StatusFailed), now); err != nil {
			return Saga{}, fmt.Errorf("update saga: %w", err)
		}
		return find(ctx, tx, findSagaQuery, sagaID)
	})
}

// settle moves a pending step to status after locking its saga row, so
// concurrent outcomes for one saga apply one at a time.
func settle(ctx context.Context, tx *sql.Tx, sagaID, stepID uuid.UUID, status StepStatus, reason *string, now time.Time) error {
	if _, err := repository.QueryOne(ctx, tx, lockSagaQuery, []any{sagaID}, scanSaga); err != nil {
		return repository.MapError(err, ErrNotFound, ErrStepSettled)
	}

	err := repository.ExecExpectOne(ctx, tx, settleStepQuery, stepID, sagaID, string(status), reason, now)
	if err == nil {
		return nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("settle step: %w", err)
	}

	var exists bool
	if err := tx.QueryRowContext(ctx, stepExistsQuery, stepID, sagaID).Scan(&exists); err != nil {
		return fmt.Errorf("check step: %w", err)
	}
	if !exists {
		return ErrNotFound
	}
	return ErrStepSettled
}

func insertStep(ctx context.Context, q repository.Querier, sagaID uuid.UUID, st Step, now time.Time) error {
	if _, err := q.ExecContext(ctx, insertStepQuery, st.ID, sagaID, st.Service, []byte(st.Payload), now); err != nil {
		return fmt.Errorf("insert step: %w", err)
	}
	return nil
}

func find(ctx context.Context, q repository.Querier, stmt string, id uuid.UUID) (Saga, error) {
	saga, err := repository.QueryOne(ctx, q, stmt, []any{id}, scanSaga)
	if err != nil {
		return Saga{}, repository.MapError(err, ErrNotFound, ErrStepSettled)
	}

	items := []Saga{saga}
	if err := attachSteps(ctx, q, items); err != nil {
		return Saga{}, err
	}
	return items[0], nil
}

// attachSteps loads the steps of every saga in items with one query.
func attachSteps(ctx context.Context, q repository.Querier, items []Saga) error {
	if len(items) == 0 {
		return nil
	}

	ids := make([]string, len(items))
	index := make(map[uuid.UUID]int, len(items))
	for i, s := range items {
		ids[i] = s.ID.String()
		index[s.ID] = i
	}

	steps, err := repository.QueryMany(ctx, q, stepsQuery, []any{ids}, scanStep)
	if err != nil {
		return fmt.Errorf("query saga steps: %w", err)
	}
	for _, st := range steps {
		i := index[st.SagaID]
		items[i].Steps = append(items[i].Steps, st)
	}
	return nil
}
