package sagas

import (
	"encoding/json"
	"fmt"
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/google/uuid"
)

// Event types exchanged with workflow services.
const (
	TypeDocumentUploaded = "docflow.saga.document_uploaded"
	TypeSaveMetadata     = "docflow.saga.save_metadata"
	TypeIndexDocument    = "docflow.saga.index_document"
	TypeStepCompleted    = "docflow.saga.step.completed"
	TypeStepFailed       = "docflow.saga.step.failed"
)

// SagaExtension carries the saga id on every event.
const SagaExtension = "sagaid"

// Queues names the subjects the orchestrator publishes to and consumes from.
type Queues struct {
	DocumentUploaded string `toml:"document_uploaded"`
	SaveMetadata     string `toml:"save_metadata"`
	IndexDocument    string `toml:"index_document"`
	StepCompleted    string `toml:"step_completed"`
	StepFailed       string `toml:"step_failed"`
}

// DefaultQueues returns the standard saga subjects.
func DefaultQueues() Queues {
	return Queues{
		DocumentUploaded: "saga.document_uploaded",
		SaveMetadata:     "saga.save_metadata",
		IndexDocument:    "saga.index_document",
		StepCompleted:    "saga.step.completed",
		StepFailed:       "saga.step.failed",
	}
}

// route returns the event type and subject that invoke service.
func (q Queues) route(service string) (string, string, error) {
	switch service {
	case ServiceIngestion:
		return TypeDocumentUploaded, q.DocumentUploaded, nil
	case ServiceMetadata:
		return TypeSaveMetadata, q.SaveMetadata, nil
	case ServiceSearch:
		return TypeIndexDocument, q.IndexDocument, nil
	default:
		return "", "", fmt.Errorf("no route for service %q", service)
	}
}

// StepEvent is the data of every saga event. Invocations carry Document;
// completions may carry Result; failures carry Error.
type StepEvent struct {
	SagaID   uuid.UUID       `json:"saga_id"`
	StepID   uuid.UUID       `json:"step_id"`
	Service  string          `json:"service"`
	Document json.RawMessage `json:"document,omitempty"`
	Result   json.RawMessage `json:"result,omitempty"`
	Error    string          `json:"error,omitempty"`
}

// Encode wraps data in a CloudEvents JSON envelope.
func Encode(source, eventType string, data StepEvent) ([]byte, error) {
	e := cloudevents.NewEvent()
	e.SetID(uuid.NewString())
	e.SetSource(source)
	e.SetType(eventType)
	e.SetTime(time.Now().UTC())
	e.SetExtension(SagaExtension, data.SagaID.String())

	if err := e.SetData(cloudevents.ApplicationJSON, data); err != nil {
		return nil, fmt.Errorf("encode %s data: %w", eventType, err)
	}
	if err := e.Validate(); err != nil {
		return nil, fmt.Errorf("encode %s: %w", eventType, err)
	}
	return json.Marshal(e)
}

// Decode parses a CloudEvents JSON envelope of eventType. Malformed
// envelopes, unexpected types and data without saga and step ids wrap
// ErrInvalidEvent.
func Decode(raw []byte, eventType string) (StepEvent, error) {
	var e cloudevents.Event
	if err := json.Unmarshal(raw, &e); err != nil {
		return StepEvent{}, fmt.Errorf("%w: %v", ErrInvalidEvent, err)
	}
	if e.Type() != eventType {
		return StepEvent{}, fmt.Errorf("%w: type %q, want %q", ErrInvalidEvent, e.Type(), eventType)
	}

	var data StepEvent
	if err := e.DataAs(&data); err != nil {
		return StepEvent{}, fmt.Errorf("%w: %v", ErrInvalidEvent, err)
	}
	if data.SagaID == uuid.Nil || data.StepID == uuid.Nil {
		return StepEvent{}, fmt.Errorf("%w: saga_id and step_id are required", ErrInvalidEvent)
	}
	return data, nil
}

// Completed builds the reply a service publishes after finishing the step
// carried by in.
func Completed(source string, in StepEvent, result any) ([]byte, error) {
	out := StepEvent{SagaID: in.SagaID, StepID: in.StepID, Service: in.Service}
	if result != nil {
		b, err := json.Marshal(result)
		if err != nil {
			return nil, fmt.Errorf("encode step result: %w", err)
		}
		out.Result = b
	}
	return Encode(source, TypeStepCompleted, out)
}

// Failed builds the reply a service publishes when the step carried by in
// cannot succeed.
func Failed(source string, in StepEvent, reason error) ([]byte, error) {
	return Encode(source, TypeStepFailed, StepEvent{
		SagaID:  in.SagaID,
		StepID:  in.StepID,
		Service: in.Service,
		Error:   reason.Error(),
	})
}
