// Package broker abstracts the durable message channel used between services:
// named queues with at-least-once delivery, explicit acknowledgment and one
// in-flight message per consumer. Channel has a NATS JetStream implementation
// and an in-process implementation for tests and single-node development.
package broker

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrConnectionClosed signals that the underlying connection was lost.
	// Consumers re-subscribe after backing off.
	ErrConnectionClosed = errors.New("broker connection closed")

	// ErrPayloadTooLarge is returned by Publish when a message exceeds the
	// configured maximum payload.
	ErrPayloadTooLarge = errors.New("message payload too large")
)

// Delivery is one message handed to a consumer. Exactly one of Ack, Nak,
// NakWithDelay or Term should be called. Deliveries counts attempts
// including this one.
type Delivery interface {
	Subject() string
	Data() []byte
	Deliveries() int
	Ack() error
	Nak() error
	NakWithDelay(delay time.Duration) error
	Term() error
}

// Handler processes a delivery. Handlers are invoked sequentially per
// subscription.
type Handler func(ctx context.Context, d Delivery)

// Subscription is an active consumer. Done yields nil when the subscription
// ended because its context was cancelled, or an error when the connection
// was lost.
type Subscription interface {
	Done() <-chan error
	Stop()
}

// Channel publishes to and consumes from named queues.
type Channel interface {
	Publish(ctx context.Context, subject string, data []byte) error
	Consume(ctx context.Context, queue string, h Handler) (Subscription, error)
}

type subscription struct {
	done chan error
	stop func()
}

func (s *subscription) Done() <-chan error { return s.done }
func (s *subscription) Stop()              { s.stop() }
