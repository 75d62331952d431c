package ingest

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/JaimeStill/docflow/internal/idempotency"
	"github.com/JaimeStill/docflow/internal/listener"
	"github.com/JaimeStill/docflow/internal/sagas"
	"github.com/JaimeStill/docflow/pkg/broker"
)

// Source identifies saga replies published by the metadata stage.
const Source = "docflow/metadata-service"

// Consumer provides the listener handlers for upload and saga queues.
type Consumer struct {
	applier     *Applier
	channel     broker.Channel
	deadLetters *listener.DeadLetters
	sagaQueues  sagas.Queues
	logger      *slog.Logger
}

// NewConsumer creates a Consumer. Rejected records are published through
// deadLetters; saga replies go to the completion and failure subjects of
// sagaQueues.
func NewConsumer(applier *Applier, channel broker.Channel, deadLetters *listener.DeadLetters, sagaQueues sagas.Queues, logger *slog.Logger) *Consumer {
	return &Consumer{
		applier:     applier,
		channel:     channel,
		deadLetters: deadLetters,
		sagaQueues:  sagaQueues,
		logger:      logger.With("consumer", "ingest"),
	}
}

// Uploads returns the handler for an upload queue carrying single records
// or batches. Records that fail validation or collide with an existing
// natural key are dead-lettered individually; an infrastructure failure
// requeues the whole message. On redelivery, records already applied are
// skipped and records already dead-lettered are not published again.
func (c *Consumer) Uploads(queue string) listener.Handler {
	return func(ctx context.Context, data []byte) error {
		batch, err := Transform(data)
		if err != nil {
			return listener.Reject(err)
		}

		for _, e := range batch.Errors {
			if err := c.deadLetter(ctx, queue, e); err != nil {
				return err
			}
		}

		counts := map[string]int{}
		for _, rec := range batch.Records {
			res, err := c.applier.Apply(ctx, rec)
			switch {
			case IsPermanent(err):
				if err := c.deadLetter(ctx, queue, RecordError{Key: rec.Key, RowNum: rec.RowNum, Reason: err.Error(), Raw: rec.Raw}); err != nil {
					return err
				}
				counts[outcomeRejected]++
			case err != nil:
				return fmt.Errorf("row %d: %w", rec.RowNum, err)
			default:
				counts[string(res.Outcome)]++
				recordsProcessed.WithLabelValues(queue, string(res.Outcome)).Inc()
			}
		}

		c.logger.Info("upload processed",
			"queue", queue,
			"kind", batch.Kind,
			"job_id", batch.JobID,
			"batch_id", batch.BatchID,
			"applied", counts[string(OutcomeApplied)],
			"skipped", counts[string(OutcomeSkipped)],
			"rejected", counts[outcomeRejected]+len(batch.Errors))
		return nil
	}
}

// deadLetter publishes e unless a previous delivery already did.
func (c *Consumer) deadLetter(ctx context.Context, queue string, e RecordError) error {
	published, err := c.applier.Reject(ctx, e.Key, func(ctx context.Context) error {
		return c.deadLetters.Publish(ctx, queue, e.Reason, e.RowNum, e.Raw)
	})
	if err != nil {
		return fmt.Errorf("row %d: %w", e.RowNum, err)
	}
	if !published {
		c.logger.Info("record already dead-lettered", "queue", queue, "row_num", e.RowNum)
		return nil
	}

	recordsProcessed.WithLabelValues(queue, outcomeRejected).Inc()
	c.logger.Warn("record rejected", "queue", queue, "row_num", e.RowNum, "error", e.Reason)
	return nil
}

// SaveMetadata handles the metadata stage of an upload saga: it applies the
// saga document once per step and replies with step completed or failed.
func (c *Consumer) SaveMetadata(ctx context.Context, data []byte) error {
	ev, err := sagas.Decode(data, sagas.TypeSaveMetadata)
	if err != nil {
		return listener.Reject(err)
	}

	rec, err := c.sagaRecord(ev)
	if err != nil {
		return c.reply(ctx, ev, nil, err)
	}

	res, err := c.applier.Apply(ctx, rec)
	if err != nil && !IsPermanent(err) {
		return err
	}
	return c.reply(ctx, ev, &res, err)
}

// sagaRecord normalizes the saga document under a key bound to the step, so
// redelivered invocations of one step apply once.
func (c *Consumer) sagaRecord(ev sagas.StepEvent) (Record, error) {
	batch, err := Transform(ev.Document)
	if err != nil {
		return Record{}, err
	}
	if len(batch.Errors) > 0 {
		return Record{}, fmt.Errorf("row %d: %s", batch.Errors[0].RowNum, batch.Errors[0].Reason)
	}
	if len(batch.Records) != 1 {
		return Record{}, fmt.Errorf("saga document must hold one record, got %d", len(batch.Records))
	}

	rec := batch.Records[0]
	rec.Key = idempotency.Derive("saga", ev.StepID.String())
	return rec, nil
}

func (c *Consumer) reply(ctx context.Context, ev sagas.StepEvent, res *Result, failure error) error {
	var (
		data    []byte
		subject string
		err     error
	)
	if failure != nil {
		data, err = sagas.Failed(Source, ev, failure)
		subject = c.sagaQueues.StepFailed
		c.logger.Warn("saga step failed", "saga_id", ev.SagaID, "step_id", ev.StepID, "error", failure)
	} else {
		data, err = sagas.Completed(Source, ev, res)
		subject = c.sagaQueues.StepCompleted
	}
	if err != nil {
		return err
	}

	if err := c.channel.Publish(ctx, subject, data); err != nil {
		return fmt.Errorf("publish saga reply: %w", err)
	}
	return nil
}
