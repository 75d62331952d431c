package sagas

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/JaimeStill/docflow/internal/listener"
	"github.com/JaimeStill/docflow/pkg/broker"
	"github.com/JaimeStill/docflow/pkg/pagination"
	"github.com/google/uuid"
)

// Source identifies events published by the orchestrator.
const Source = "docflow/saga-orchestrator"

// System is the saga surface exposed to HTTP callers.
type System interface {
	Start(ctx context.Context, document json.RawMessage) (Saga, error)
	Find(ctx context.Context, id uuid.UUID) (Saga, error)
	List(ctx context.Context, page pagination.PageRequest, filters Filters) (pagination.PageResult[Saga], error)
}

// Orchestrator drives upload sagas through their stages. It persists every
// step before publishing the event that invokes it and consumes completion
// and failure events to settle steps.
type Orchestrator struct {
	store   Store
	channel broker.Channel
	queues  Queues
	logger  *slog.Logger
}

// New creates an Orchestrator publishing to queues on channel.
func New(store Store, channel broker.Channel, queues Queues, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{
		store:   store,
		channel: channel,
		queues:  queues,
		logger:  logger.With("system", "sagas"),
	}
}

// Queues returns the subjects the orchestrator uses.
func (o *Orchestrator) Queues() Queues {
	return o.queues
}

// Start records a saga with a pending ingestion step and publishes the
// document_uploaded event. If the event cannot be published the saga is
// failed and the publish error returned.
func (o *Orchestrator) Start(ctx context.Context, document json.RawMessage) (Saga, error) {
	if !isObject(document) {
		return Saga{}, ErrInvalidPayload
	}

	saga, err := o.store.Create(ctx, Saga{
		ID:      uuid.New(),
		Status:  StatusInProgress,
		Payload: document,
		Steps: []Step{{
			ID:      uuid.New(),
			Service: ServiceIngestion,
			Status:  StepPending,
			Payload: document,
		}},
	})
	if err != nil {
		return Saga{}, fmt.Errorf("create saga: %w", err)
	}

	sagasStarted.Inc()
	o.logger.Info("saga started", "saga_id", saga.ID)

	first := saga.Steps[0]
	if err := o.invoke(ctx, saga.ID, first); err != nil {
		if _, ferr := o.store.Fail(ctx, saga.ID, first.ID, err.Error()); ferr != nil {
			o.logger.Error("record saga failure", "saga_id", saga.ID, "error", ferr)
		} else {
			o.failed(saga.ID, first.Service, err.Error())
		}
		return Saga{}, err
	}
	return saga, nil
}

func (o *Orchestrator) Find(ctx context.Context, id uuid.UUID) (Saga, error) {
	return o.store.Find(ctx, id)
}

func (o *Orchestrator) List(ctx context.Context, page pagination.PageRequest, filters Filters) (pagination.PageResult[Saga], error) {
	return o.store.List(ctx, page, filters)
}

// HandleDocumentUploaded completes the ingestion step and invokes the
// metadata stage.
func (o *Orchestrator) HandleDocumentUploaded(ctx context.Context, data []byte) error {
	ev, err := Decode(data, TypeDocumentUploaded)
	if err != nil {
		return listener.Reject(err)
	}
	return o.advance(ctx, ev)
}

// HandleStepCompleted completes the step named by the event and either
// invokes the next stage or completes the saga.
func (o *Orchestrator) HandleStepCompleted(ctx context.Context, data []byte) error {
	ev, err := Decode(data, TypeStepCompleted)
	if err != nil {
		return listener.Reject(err)
	}
	return o.advance(ctx, ev)
}

// HandleStepFailed fails the step named by the event and its saga. Events
// for steps that already settled are ignored.
func (o *Orchestrator) HandleStepFailed(ctx context.Context, data []byte) error {
	ev, err := Decode(data, TypeStepFailed)
	if err != nil {
		return listener.Reject(err)
	}

	reason := ev.Error
	if reason == "" {
		reason = "step failed"
	}

	saga, err := o.store.Fail(ctx, ev.SagaID, ev.StepID, reason)
	switch {
	case errors.Is(err, ErrStepSettled):
		o.logger.Debug("ignoring failure for settled step", "saga_id", ev.SagaID, "step_id", ev.StepID)
		return nil
	case errors.Is(err, ErrNotFound):
		return listener.Reject(err)
	case err != nil:
		return err
	}

	step, _ := saga.Step(ev.StepID)
	o.failed(saga.ID, step.Service, reason)
	return nil
}

// Resume republishes the invoking event of the pending step of every
// in-progress saga and returns how many were sent.
func (o *Orchestrator) Resume(ctx context.Context) (int, error) {
	active, err := o.store.Active(ctx)
	if err != nil {
		return 0, fmt.Errorf("load active sagas: %w", err)
	}

	var (
		sent int
		errs []error
	)
	for _, saga := range active {
		step, ok := saga.Pending()
		if !ok {
			continue
		}
		if err := o.invoke(ctx, saga.ID, step); err != nil {
			errs = append(errs, fmt.Errorf("saga %s: %w", saga.ID, err))
			continue
		}
		sent++
	}

	o.logger.Info("sagas resumed", "active", len(active), "republished", sent)
	return sent, errors.Join(errs...)
}

func (o *Orchestrator) advance(ctx context.Context, ev StepEvent) error {
	saga, err := o.store.Find(ctx, ev.SagaID)
	if errors.Is(err, ErrNotFound) {
		return listener.Reject(err)
	}
	if err != nil {
		return err
	}

	step, ok := saga.Step(ev.StepID)
	if !ok {
		return listener.Reject(fmt.Errorf("step %s: %w", ev.StepID, ErrNotFound))
	}
	if step.Status != StepPending {
		return o.settled(ctx, saga, step)
	}

	var next *Step
	if service, ok := nextStage(step.Service); ok {
		payload := step.Payload
		if isObject(ev.Result) {
			payload = ev.Result
		}
		next = &Step{ID: uuid.New(), Service: service, Status: StepPending, Payload: payload}
	}

	saga, err = o.store.Advance(ctx, ev.SagaID, ev.StepID, next)
	switch {
	case errors.Is(err, ErrStepSettled):
		o.logger.Debug("ignoring completion for settled step", "saga_id", ev.SagaID, "step_id", ev.StepID)
		return nil
	case errors.Is(err, ErrNotFound):
		return listener.Reject(err)
	case err != nil:
		return err
	}

	stepTransitions.WithLabelValues(step.Service, string(StepCompleted)).Inc()

	if next == nil {
		sagasFinished.WithLabelValues(string(StatusCompleted)).Inc()
		o.logger.Info("saga completed", "saga_id", saga.ID)
		return nil
	}

	o.logger.Info("saga step completed", "saga_id", saga.ID, "service", step.Service, "next", next.Service)
	pending, _ := saga.Pending()
	return o.invoke(ctx, saga.ID, pending)
}

// settled handles a redelivered completion. If the step that followed it
// is still pending its event is published again, covering a publish that
// failed after the step was recorded.
func (o *Orchestrator) settled(ctx context.Context, saga Saga, step Step) error {
	pending, ok := saga.Pending()
	if saga.Status != StatusInProgress || !ok || pending.Sequence <= step.Sequence {
		o.logger.Debug("ignoring completion for settled step", "saga_id", saga.ID, "step_id", step.ID)
		return nil
	}

	o.logger.Debug("republishing pending step", "saga_id", saga.ID, "service", pending.Service)
	return o.invoke(ctx, saga.ID, pending)
}

func (o *Orchestrator) invoke(ctx context.Context, sagaID uuid.UUID, step Step) error {
	eventType, subject, err := o.queues.route(step.Service)
	if err != nil {
		return err
	}

	data, err := Encode(Source, eventType, StepEvent{
		SagaID:   sagaID,
		StepID:   step.ID,
		Service:  step.Service,
		Document: step.Payload,
	})
	if err != nil {
		return err
	}

	if err := o.channel.Publish(ctx, subject, data); err != nil {
		return fmt.Errorf("publish %s: %w", eventType, err)
	}
	return nil
}

func (o *Orchestrator) failed(sagaID uuid.UUID, service, reason string) {
	stepTransitions.WithLabelValues(service, string(StepFailed)).Inc()
	sagasFinished.WithLabelValues(string(StatusFailed)).Inc()
	o.logger.Warn("saga failed", "saga_id", sagaID, "service", service, "reason", reason)
}

func isObject(raw json.RawMessage) bool {
	b := bytes.TrimSpace(raw)
	return len(b) > 0 && b[0] == '{' && json.Valid(b)
}
