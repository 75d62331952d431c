// Package listener runs reconnecting consume loops that hand queue messages
// to a handler and settle them by outcome: acknowledged on success,
// dead-lettered on rejection, and requeued on any other failure.
package listener

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/JaimeStill/docflow/pkg/broker"
	"github.com/JaimeStill/docflow/pkg/retry"
)

// Handler processes one message body.
type Handler func(ctx context.Context, data []byte) error

// RejectedError marks a message that can never succeed and must not be
// redelivered.
type RejectedError struct {
	Err error
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("rejected: %v", e.Err)
}

func (e *RejectedError) Unwrap() error {
	return e.Err
}

// Reject wraps err so the listener dead-letters the message instead of
// requeueing it.
func Reject(err error) error {
	if err == nil {
		return nil
	}
	return &RejectedError{Err: err}
}

// IsRejected reports whether err was marked with Reject.
func IsRejected(err error) bool {
	var re *RejectedError
	return errors.As(err, &re)
}

// Listener consumes one queue.
type Listener struct {
	channel     broker.Channel
	queue       string
	handler     Handler
	policy      retry.Policy
	redelivery  retry.Policy
	deadLetters *DeadLetters
	logger      *slog.Logger
}

// Option configures a Listener.
type Option func(*Listener)

// WithDeadLetters routes rejected messages through d. Without it, rejected
// messages are terminated and logged.
func WithDeadLetters(d *DeadLetters) Option {
	return func(l *Listener) {
		l.deadLetters = d
	}
}

// WithRedelivery paces requeued messages: the nth delivery of a message
// is redelivered after p.Backoff(n). Only the delay schedule of p is used.
func WithRedelivery(p retry.Policy) Option {
	return func(l *Listener) {
		l.redelivery = p
	}
}

// DefaultRedelivery is used when no WithRedelivery option is given.
var DefaultRedelivery = retry.Policy{
	InitialDelay: 500 * time.Millisecond,
	MaxDelay:     30 * time.Second,
	Multiplier:   2,
	Jitter:       true,
}

// New creates a listener for queue. policy paces reconnect attempts after
// the subscription is lost; an unbounded policy reconnects until ctx ends.
func New(channel broker.Channel, queue string, handler Handler, policy retry.Policy, logger *slog.Logger, opts ...Option) *Listener {
	l := &Listener{
		channel:    channel,
		queue:      queue,
		handler:    handler,
		policy:     policy,
		redelivery: DefaultRedelivery,
		logger:     logger.With("listener", queue),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Queue returns the consumed queue name.
func (l *Listener) Queue() string {
	return l.queue
}

// Run consumes until ctx is cancelled, returning nil, or until the reconnect
// policy is exhausted, returning the last connection error.
func (l *Listener) Run(ctx context.Context) error {
	failed := 0

	for {
		sub, err := l.channel.Consume(ctx, l.queue, l.deliver)
		if err == nil {
			l.logger.Info("listening")
			connected.WithLabelValues(l.queue).Set(1)

			err = <-sub.Done()
			connected.WithLabelValues(l.queue).Set(0)

			if ctx.Err() != nil {
				l.logger.Info("listener stopped")
				return nil
			}
			if err == nil {
				err = broker.ErrConnectionClosed
			}
			failed = 0
		}

		if ctx.Err() != nil {
			return nil
		}

		failed++
		reconnects.WithLabelValues(l.queue).Inc()

		if !l.policy.Allows(failed) {
			l.logger.Error("reconnect attempts exhausted", "attempts", failed, "error", err)
			return fmt.Errorf("listener %s: %w", l.queue, err)
		}

		l.logger.Warn("subscription lost, reconnecting", "attempt", failed, "delay", l.policy.Backoff(failed), "error", err)
		if werr := l.policy.Wait(ctx, failed); werr != nil {
			return nil
		}
	}
}

func (l *Listener) deliver(ctx context.Context, d broker.Delivery) {
	start := time.Now()
	outcome := l.settle(ctx, d)

	deliveries.WithLabelValues(l.queue, outcome).Inc()
	handleDuration.WithLabelValues(l.queue).Observe(time.Since(start).Seconds())
}

func (l *Listener) settle(ctx context.Context, d broker.Delivery) string {
	err := l.invoke(ctx, d.Data())

	switch {
	case err == nil:
		if aerr := d.Ack(); aerr != nil {
			l.logger.Warn("ack failed", "error", aerr)
		}
		return "acked"

	case IsRejected(err):
		if l.deadLetters != nil {
			if perr := l.deadLetters.Publish(ctx, l.queue, err.Error(), 0, d.Data()); perr != nil {
				l.logger.Error("dead letter publish failed, requeueing", "error", perr)
				l.requeue(d)
				return "requeued"
			}
		}
		l.logger.Warn("message rejected", "error", err)
		if terr := d.Term(); terr != nil {
			l.logger.Warn("term failed", "error", terr)
		}
		return "rejected"

	default:
		l.logger.Warn("handler failed, requeueing", "deliveries", d.Deliveries(), "error", err)
		l.requeue(d)
		return "requeued"
	}
}

func (l *Listener) requeue(d broker.Delivery) {
	delay := l.redelivery.Backoff(d.Deliveries())
	if err := d.NakWithDelay(delay); err != nil {
		l.logger.Warn("nak failed", "delay", delay, "error", err)
	}
}

func (l *Listener) invoke(ctx context.Context, data []byte) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("handler panic: %v", p)
		}
	}()
	return l.handler(ctx, data)
}
