package broker

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Memory is an in-process Channel. Queues are exact subjects. Nak and
// unacknowledged deliveries return the message to the head of its queue.
// NakWithDelay pauses the queue's consumer before the message returns.
type Memory struct {
	maxPayload int64

	mu     sync.Mutex
	queues map[string]*memoryQueue
	down   bool
	subs   map[*subscription]struct{}
}

type memoryQueue struct {
	msgs   []*memoryMessage
	notify chan struct{}
}

type memoryMessage struct {
	subject    string
	data       []byte
	deliveries int
}

// NewMemory creates an empty in-process channel. A maxPayload of zero
// disables the size check.
func NewMemory(maxPayload int64) *Memory {
	return &Memory{
		maxPayload: maxPayload,
		queues:     make(map[string]*memoryQueue),
		subs:       make(map[*subscription]struct{}),
	}
}

func (m *Memory) Publish(ctx context.Context, subject string, data []byte) error {
	if m.maxPayload > 0 && int64(len(data)) > m.maxPayload {
		return fmt.Errorf("%w: %d bytes on %s", ErrPayloadTooLarge, len(data), subject)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.down {
		return ErrConnectionClosed
	}

	q := m.queue(subject)
	q.msgs = append(q.msgs, &memoryMessage{subject: subject, data: append([]byte(nil), data...)})
	q.signal()
	return nil
}

func (m *Memory) Consume(ctx context.Context, queue string, h Handler) (Subscription, error) {
	m.mu.Lock()
	if m.down {
		m.mu.Unlock()
		return nil, ErrConnectionClosed
	}

	q := m.queue(queue)
	subCtx, cancel := context.WithCancel(ctx)
	sub := &subscription{done: make(chan error, 1), stop: cancel}
	m.subs[sub] = struct{}{}
	m.mu.Unlock()

	go m.run(subCtx, ctx, sub, q, h)
	return sub, nil
}

func (m *Memory) run(subCtx, parent context.Context, sub *subscription, q *memoryQueue, h Handler) {
	defer func() {
		m.mu.Lock()
		_, live := m.subs[sub]
		delete(m.subs, sub)
		m.mu.Unlock()

		if live {
			sub.done <- nil
		}
	}()

	for {
		msg, ok := m.next(subCtx, q)
		if !ok {
			return
		}

		d := &memoryDelivery{msg: msg}
		h(parent, d)

		if d.outcome == outcomeNak && d.delay > 0 {
			timer := time.NewTimer(d.delay)
			select {
			case <-subCtx.Done():
				timer.Stop()
			case <-timer.C:
			}
		}

		m.mu.Lock()
		if d.outcome != outcomeAck && d.outcome != outcomeTerm {
			q.msgs = append([]*memoryMessage{msg}, q.msgs...)
			q.signal()
		}
		m.mu.Unlock()
	}
}

func (m *Memory) next(ctx context.Context, q *memoryQueue) (*memoryMessage, bool) {
	for {
		if ctx.Err() != nil {
			return nil, false
		}

		m.mu.Lock()
		if len(q.msgs) > 0 {
			msg := q.msgs[0]
			q.msgs = q.msgs[1:]
			msg.deliveries++
			m.mu.Unlock()
			return msg, true
		}
		m.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, false
		case <-q.notify:
		}
	}
}

// Disconnect ends every active subscription with ErrConnectionClosed and
// rejects Publish and Consume until Reconnect is called.
func (m *Memory) Disconnect() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.down = true
	for sub := range m.subs {
		delete(m.subs, sub)
		sub.done <- ErrConnectionClosed
		sub.stop()
	}
}

// Reconnect restores the channel after Disconnect.
func (m *Memory) Reconnect() {
	m.mu.Lock()
	m.down = false
	m.mu.Unlock()
}

// Pending returns the number of queued messages on subject.
func (m *Memory) Pending(subject string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queue(subject).msgs)
}

// Drain removes and returns every queued message on subject.
func (m *Memory) Drain(subject string) [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()

	q := m.queue(subject)
	out := make([][]byte, 0, len(q.msgs))
	for _, msg := range q.msgs {
		out = append(out, msg.data)
	}
	q.msgs = nil
	return out
}

func (m *Memory) queue(subject string) *memoryQueue {
	q, ok := m.queues[subject]
	if !ok {
		q = &memoryQueue{notify: make(chan struct{}, 1)}
		m.queues[subject] = q
	}
	return q
}

func (q *memoryQueue) signal() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

type outcome int

const (
	outcomeNone outcome = iota
	outcomeAck
	outcomeNak
	outcomeTerm
)

type memoryDelivery struct {
	msg     *memoryMessage
	outcome outcome
	delay   time.Duration
}

func (d *memoryDelivery) Subject() string { return d.msg.subject }
func (d *memoryDelivery) Data() []byte    { return d.msg.data }
func (d *memoryDelivery) Deliveries() int { return d.msg.deliveries }

func (d *memoryDelivery) Ack() error  { return d.settle(outcomeAck) }
func (d *memoryDelivery) Nak() error  { return d.settle(outcomeNak) }
func (d *memoryDelivery) Term() error { return d.settle(outcomeTerm) }

// NakWithDelay holds the consumer for delay before the message returns to
// the head of its queue, so ordering is kept.
func (d *memoryDelivery) NakWithDelay(delay time.Duration) error {
	if err := d.settle(outcomeNak); err != nil {
		return err
	}
	d.delay = delay
	return nil
}

func (d *memoryDelivery) settle(o outcome) error {
	if d.outcome != outcomeNone {
		return fmt.Errorf("message already settled")
	}
	d.outcome = o
	return nil
}
