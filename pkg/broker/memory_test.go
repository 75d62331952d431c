package broker_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/JaimeStill/docflow/pkg/broker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemory_DeliversInOrder(t *testing.T) {
	ch := broker.NewMemory(0)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	for _, body := range []string{"a", "b", "c"} {
		require.NoError(t, ch.Publish(ctx, "uploads.document", []byte(body)))
	}

	var mu sync.Mutex
	var got []string
	done := make(chan struct{})

	_, err := ch.Consume(ctx, "uploads.document", func(_ context.Context, d broker.Delivery) {
		mu.Lock()
		got = append(got, string(d.Data()))
		n := len(got)
		mu.Unlock()
		assert.NoError(t, d.Ack())
		if n == 3 {
			close(done)
		}
	})
	require.NoError(t, err)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for deliveries")
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"a", "b", "c"}, got)
	assert.Zero(t, ch.Pending("uploads.document"))
}

func TestMemory_NakRedelivers(t *testing.T) {
	ch := broker.NewMemory(0)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, ch.Publish(ctx, "q", []byte("first")))
	require.NoError(t, ch.Publish(ctx, "q", []byte("second")))

	var seen []string
	done := make(chan struct{})
	attempts := 0

	_, err := ch.Consume(ctx, "q", func(_ context.Context, d broker.Delivery) {
		seen = append(seen, string(d.Data()))
		if string(d.Data()) == "first" && attempts == 0 {
			attempts++
			d.Nak()
			return
		}
		d.Ack()
		if len(seen) == 3 {
			close(done)
		}
	})
	require.NoError(t, err)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for redelivery")
	}
	assert.Equal(t, []string{"first", "first", "second"}, seen)
}

func TestMemory_NakWithDelayHoldsMessage(t *testing.T) {
	ch := broker.NewMemory(0)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, ch.Publish(ctx, "q", []byte("retry")))

	type delivery struct {
		at    time.Time
		count int
	}
	got := make(chan delivery, 2)

	_, err := ch.Consume(ctx, "q", func(_ context.Context, d broker.Delivery) {
		got <- delivery{at: time.Now(), count: d.Deliveries()}
		if d.Deliveries() == 1 {
			d.NakWithDelay(50 * time.Millisecond)
			return
		}
		d.Ack()
	})
	require.NoError(t, err)

	first := <-got
	var second delivery
	select {
	case second = <-got:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for delayed redelivery")
	}

	assert.Equal(t, 1, first.count)
	assert.Equal(t, 2, second.count)
	assert.GreaterOrEqual(t, second.at.Sub(first.at), 50*time.Millisecond)
}

func TestMemory_TermDrops(t *testing.T) {
	ch := broker.NewMemory(0)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, ch.Publish(ctx, "q", []byte("poison")))

	handled := make(chan struct{}, 2)
	_, err := ch.Consume(ctx, "q", func(_ context.Context, d broker.Delivery) {
		d.Term()
		handled <- struct{}{}
	})
	require.NoError(t, err)

	<-handled
	select {
	case <-handled:
		t.Fatal("terminated message was redelivered")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestMemory_Disconnect(t *testing.T) {
	ch := broker.NewMemory(0)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sub, err := ch.Consume(ctx, "q", func(_ context.Context, d broker.Delivery) { d.Ack() })
	require.NoError(t, err)

	ch.Disconnect()

	select {
	case err := <-sub.Done():
		assert.ErrorIs(t, err, broker.ErrConnectionClosed)
	case <-time.After(time.Second):
		t.Fatal("subscription did not observe disconnect")
	}

	_, err = ch.Consume(ctx, "q", func(_ context.Context, d broker.Delivery) {})
	assert.ErrorIs(t, err, broker.ErrConnectionClosed)
	assert.ErrorIs(t, ch.Publish(ctx, "q", []byte("x")), broker.ErrConnectionClosed)

	ch.Reconnect()
	assert.NoError(t, ch.Publish(ctx, "q", []byte("x")))
}

func TestMemory_CancelEndsSubscription(t *testing.T) {
	ch := broker.NewMemory(0)
	ctx, cancel := context.WithCancel(context.Background())

	sub, err := ch.Consume(ctx, "q", func(_ context.Context, d broker.Delivery) {})
	require.NoError(t, err)

	cancel()
	select {
	case err := <-sub.Done():
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("subscription did not stop")
	}
}

func TestMemory_PayloadLimit(t *testing.T) {
	ch := broker.NewMemory(4)
	err := ch.Publish(context.Background(), "q", []byte("too large"))
	assert.True(t, errors.Is(err, broker.ErrPayloadTooLarge))
}
