package sagas

import (
	"github.com/JaimeStill/docflow/pkg/query"
	"github.com/JaimeStill/docflow/pkg/repository"
)

var projection = query.
	NewProjectionMap("public", "sagas", "s").
	Project("id", "id").
	Project("status", "status").
	Project("payload", "payload").
	Project("created_at", "created_at").
	Project("updated_at", "updated_at")

var defaultSort = query.SortField{Field: "created_at", Descending: true}

func (f Filters) apply(qb *query.Builder) {
	if f.Status != nil {
		qb.WhereEquals("status", string(*f.Status))
	}
}

func scanSaga(s repository.Scanner) (Saga, error) {
	var (
		saga    Saga
		status  string
		payload []byte
	)
	if err := s.Scan(&saga.ID, &status, &payload, &saga.CreatedAt, &saga.UpdatedAt); err != nil {
		return Saga{}, err
	}
	saga.Status = Status(status)
	saga.Payload = payload
	saga.CreatedAt = saga.CreatedAt.UTC()
	saga.UpdatedAt = saga.UpdatedAt.UTC()
	saga.Steps = []Step{}
	return saga, nil
}

func scanStep(s repository.Scanner) (Step, error) {
	var (
		st      Step
		status  string
		payload []byte
	)
	err := s.Scan(
		&st.ID,
		&st.SagaID,
		&st.Sequence,
		&st.Service,
		&status,
		&payload,
		&st.Error,
		&st.CreatedAt,
		&st.CompletedAt,
	)
	if err != nil {
		return Step{}, err
	}
	st.Status = StepStatus(status)
	st.Payload = payload
	st.CreatedAt = st.CreatedAt.UTC()
	if st.CompletedAt != nil {
		t := st.CompletedAt.UTC()
		st.CompletedAt = &t
	}
	return st, nil
}
