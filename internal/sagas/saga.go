package sagas

import (
	"encoding/json"
	"slices"
	"time"

	"github.com/google/uuid"
)

// Status is the overall state of a saga.
type Status string

const (
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// StepStatus is the state of a single step. A step leaves pending exactly
// once.
type StepStatus string

const (
	StepPending   StepStatus = "pending"
	StepCompleted StepStatus = "completed"
	StepFailed    StepStatus = "failed"
)

// Services taking part in the upload workflow, in execution order.
const (
	ServiceIngestion = "ingestion-service"
	ServiceMetadata  = "metadata-service"
	ServiceSearch    = "search-service"
)

// Stages lists the workflow services in order.
var Stages = []string{ServiceIngestion, ServiceMetadata, ServiceSearch}

// Saga is a persisted upload workflow and its append-only steps.
type Saga struct {
	ID        uuid.UUID       `json:"saga_id"`
	Status    Status          `json:"status"`
	Payload   json.RawMessage `json:"payload"`
	Steps     []Step          `json:"steps"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Step records one service invocation within a saga.
type Step struct {
	ID          uuid.UUID       `json:"step_id"`
	SagaID      uuid.UUID       `json:"saga_id"`
	Sequence    int             `json:"sequence"`
	Service     string          `json:"service_name"`
	Status      StepStatus      `json:"status"`
	Payload     json.RawMessage `json:"payload"`
	Error       *string         `json:"error,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
}

// Step returns the step with id.
func (s *Saga) Step(id uuid.UUID) (Step, bool) {
	i := slices.IndexFunc(s.Steps, func(st Step) bool { return st.ID == id })
	if i < 0 {
		return Step{}, false
	}
	return s.Steps[i], true
}

// Pending returns the step awaiting an outcome, if any.
func (s *Saga) Pending() (Step, bool) {
	i := slices.IndexFunc(s.Steps, func(st Step) bool { return st.Status == StepPending })
	if i < 0 {
		return Step{}, false
	}
	return s.Steps[i], true
}

func (s Saga) clone() Saga {
	s.Payload = slices.Clone(s.Payload)
	s.Steps = slices.Clone(s.Steps)
	for i := range s.Steps {
		s.Steps[i].Payload = slices.Clone(s.Steps[i].Payload)
	}
	if s.Steps == nil {
		s.Steps = []Step{}
	}
	return s
}

// nextStage returns the service following service, or false after the last
// stage.
func nextStage(service string) (string, bool) {
	i := slices.Index(Stages, service)
	if i < 0 || i == len(Stages)-1 {
		return "", false
	}
	return Stages[i+1], true
}
