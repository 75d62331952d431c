package broker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/JaimeStill/docflow/pkg/lifecycle"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// NATS is a Channel backed by a JetStream stream. Each queue is a durable
// consumer filtered to one subject with explicit acknowledgment.
//
// The client does not reconnect on its own: a lost connection ends every
// active subscription with ErrConnectionClosed and the next Publish or
// Consume dials again. Reconnection pacing belongs to the caller's retry
// policy.
type NATS struct {
	cfg    *Config
	logger *slog.Logger

	mu     sync.Mutex
	nc     *nats.Conn
	js     jetstream.JetStream
	closed chan struct{}
}

// NewNATS creates an unconnected client.
func NewNATS(cfg *Config, logger *slog.Logger) *NATS {
	return &NATS{
		cfg:    cfg,
		logger: logger.With("system", "broker"),
	}
}

// Start dials the server using the startup retry policy, ensures the stream
// exists, and drains the connection on shutdown.
func (n *NATS) Start(lc *lifecycle.Coordinator) error {
	policy := n.cfg.Startup.Policy()
	attempt := 0

	err := policy.Do(lc.Context(), func() error {
		attempt++
		_, _, err := n.connection(lc.Context())
		if err != nil {
			n.logger.Warn("broker connect failed", "attempt", attempt, "error", err)
		}
		return err
	})
	if err != nil {
		return fmt.Errorf("broker connect: %w", err)
	}

	lc.OnShutdown(func() {
		<-lc.Context().Done()
		n.Close()
	})
	return nil
}

// Ready reports whether a live connection is held.
func (n *NATS) Ready() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.nc != nil && n.nc.IsConnected()
}

// Close drains and closes the current connection.
func (n *NATS) Close() {
	n.mu.Lock()
	nc := n.nc
	n.nc = nil
	n.mu.Unlock()

	if nc == nil {
		return
	}
	if err := nc.Drain(); err != nil {
		n.logger.Warn("broker drain failed", "error", err)
		nc.Close()
	}
	n.logger.Info("broker connection closed")
}

func (n *NATS) Publish(ctx context.Context, subject string, data []byte) error {
	if max := n.cfg.MaxPayloadBytes(); max > 0 && int64(len(data)) > max {
		return fmt.Errorf("%w: %d bytes on %s", ErrPayloadTooLarge, len(data), subject)
	}

	js, _, err := n.connection(ctx)
	if err != nil {
		return err
	}

	if _, err := js.Publish(ctx, subject, data); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	return nil
}

func (n *NATS) Consume(ctx context.Context, queue string, h Handler) (Subscription, error) {
	js, closed, err := n.connection(ctx)
	if err != nil {
		return nil, err
	}

	consumer, err := js.CreateOrUpdateConsumer(ctx, n.cfg.Stream, jetstream.ConsumerConfig{
		Durable:       durableName(queue),
		FilterSubject: queue,
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       n.cfg.AckWaitDuration(),
		MaxAckPending: n.cfg.Prefetch,
		DeliverPolicy: jetstream.DeliverAllPolicy,
	})
	if err != nil {
		return nil, fmt.Errorf("create consumer %s: %w", queue, err)
	}

	logger := n.logger.With("queue", queue)

	cc, err := consumer.Consume(
		func(msg jetstream.Msg) {
			h(ctx, natsDelivery{msg})
		},
		jetstream.PullMaxMessages(n.cfg.Prefetch),
		jetstream.ConsumeErrHandler(func(_ jetstream.ConsumeContext, err error) {
			logger.Warn("consume error", "error", err)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("consume %s: %w", queue, err)
	}

	done := make(chan error, 1)
	go func() {
		select {
		case <-ctx.Done():
			cc.Stop()
			done <- nil
		case <-closed:
			cc.Stop()
			done <- ErrConnectionClosed
		case <-cc.Closed():
			done <- ErrConnectionClosed
		}
	}()

	return &subscription{done: done, stop: cc.Stop}, nil
}

func (n *NATS) connection(ctx context.Context) (jetstream.JetStream, <-chan struct{}, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.nc != nil && !n.nc.IsClosed() {
		return n.js, n.closed, nil
	}

	closed := make(chan struct{})
	var once sync.Once

	nc, err := nats.Connect(
		n.cfg.URL,
		nats.Name(n.cfg.Name),
		nats.Timeout(n.cfg.ConnectTimeoutDuration()),
		nats.NoReconnect(),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				n.logger.Warn("broker disconnected", "error", err)
			}
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			once.Do(func() { close(closed) })
		}),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("connect %s: %w", n.cfg.URL, err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("jetstream: %w", err)
	}

	_, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:       n.cfg.Stream,
		Subjects:   n.cfg.Subjects,
		Storage:    jetstream.FileStorage,
		Retention:  jetstream.LimitsPolicy,
		MaxAge:     n.cfg.MaxAgeDuration(),
		MaxMsgSize: int32(n.cfg.MaxPayloadBytes()),
	})
	if err != nil && !errors.Is(err, jetstream.ErrStreamNameAlreadyInUse) {
		nc.Close()
		return nil, nil, fmt.Errorf("ensure stream %s: %w", n.cfg.Stream, err)
	}

	n.nc, n.js, n.closed = nc, js, closed
	n.logger.Info("broker connected", "url", nc.ConnectedUrlRedacted(), "stream", n.cfg.Stream)
	return js, closed, nil
}

// durableName converts a subject into a valid durable consumer name.
func durableName(subject string) string {
	r := strings.NewReplacer(".", "-", "*", "any", ">", "all")
	return r.Replace(subject)
}

type natsDelivery struct {
	jetstream.Msg
}

func (d natsDelivery) Deliveries() int {
	md, err := d.Metadata()
	if err != nil {
		return 1
	}
	return int(md.NumDelivered)
}
