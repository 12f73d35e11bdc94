package eventbus

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sbilibin2017/gw-wallet-transfer/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memTransport is an in-memory Transport for exercising the dispatch loop
// without Redis.
type memTransport struct {
	mu     sync.Mutex
	topics map[string]*memSubscription
}

func newMemTransport() *memTransport {
	return &memTransport{topics: make(map[string]*memSubscription)}
}

func (t *memTransport) Connect(ctx context.Context) error { return nil }

func (t *memTransport) Publish(ctx context.Context, topic string, payload []byte) error {
	t.mu.Lock()
	sub, ok := t.topics[topic]
	t.mu.Unlock()
	if !ok {
		// No live subscription: the message is dropped, as in real pub/sub.
		return nil
	}
	sub.msgs <- payload
	return nil
}

func (t *memTransport) Subscribe(ctx context.Context, topic string) (Subscription, error) {
	sub := &memSubscription{msgs: make(chan []byte, 64)}
	t.mu.Lock()
	t.topics[topic] = sub
	t.mu.Unlock()
	return sub, nil
}

func (t *memTransport) Close() error { return nil }

type memSubscription struct {
	once sync.Once
	msgs chan []byte
}

func (s *memSubscription) Messages() <-chan []byte { return s.msgs }

func (s *memSubscription) Close() error {
	s.once.Do(func() { close(s.msgs) })
	return nil
}

func publishEnvelope(t *testing.T, ch *Channel, eventType models.EventType, txnID uuid.UUID) {
	t.Helper()
	evt, err := models.NewEnvelope(eventType, txnID, struct{}{})
	require.NoError(t, err)
	require.NoError(t, ch.Publish(context.Background(), evt))
}

func TestChannel_NotConnected(t *testing.T) {
	ch := New(newMemTransport())

	err := ch.Publish(context.Background(), models.Envelope{Type: models.EventDebitSuccess})
	assert.ErrorIs(t, err, ErrNotConnected)

	err = ch.Subscribe(context.Background(), models.EventDebitSuccess, func(ctx context.Context, evt models.Envelope) error {
		return nil
	})
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestChannel_PublishWithoutSubscriberIsLost(t *testing.T) {
	ctx := context.Background()
	ch := New(newMemTransport())
	require.NoError(t, ch.Connect(ctx))
	defer ch.Disconnect()

	// Nothing is listening; the publish succeeds and the message is gone.
	publishEnvelope(t, ch, models.EventDebitSuccess, uuid.New())

	delivered := make(chan models.Envelope, 1)
	require.NoError(t, ch.Subscribe(ctx, models.EventDebitSuccess, func(ctx context.Context, evt models.Envelope) error {
		delivered <- evt
		return nil
	}))

	txnID := uuid.New()
	publishEnvelope(t, ch, models.EventDebitSuccess, txnID)

	select {
	case evt := <-delivered:
		assert.Equal(t, txnID, evt.TransactionID)
	case <-time.After(time.Second):
		t.Fatal("subscribed handler never received the event")
	}
}

func TestChannel_HandlersRunInRegistrationOrder(t *testing.T) {
	ctx := context.Background()
	ch := New(newMemTransport())
	require.NoError(t, ch.Connect(ctx))
	defer ch.Disconnect()

	var mu sync.Mutex
	var order []string
	done := make(chan struct{})

	record := func(name string) Handler {
		return func(ctx context.Context, evt models.Envelope) error {
			mu.Lock()
			order = append(order, name)
			last := len(order) == 3
			mu.Unlock()
			if last {
				close(done)
			}
			return nil
		}
	}

	require.NoError(t, ch.Subscribe(ctx, models.EventCreditSuccess, record("first")))
	require.NoError(t, ch.Subscribe(ctx, models.EventCreditSuccess, record("second")))
	require.NoError(t, ch.Subscribe(ctx, models.EventCreditSuccess, record("third")))

	publishEnvelope(t, ch, models.EventCreditSuccess, uuid.New())

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("handlers did not all run")
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"first", "second", "third"}, order)
}

func TestChannel_MessagesOnOneTopicAreSequential(t *testing.T) {
	ctx := context.Background()
	ch := New(newMemTransport())
	require.NoError(t, ch.Connect(ctx))
	defer ch.Disconnect()

	const n = 20
	var mu sync.Mutex
	var seen []uuid.UUID
	done := make(chan struct{})

	require.NoError(t, ch.Subscribe(ctx, models.EventDebitSuccess, func(ctx context.Context, evt models.Envelope) error {
		mu.Lock()
		seen = append(seen, evt.TransactionID)
		last := len(seen) == n
		mu.Unlock()
		if last {
			close(done)
		}
		return nil
	}))

	ids := make([]uuid.UUID, n)
	for i := range ids {
		ids[i] = uuid.New()
		publishEnvelope(t, ch, models.EventDebitSuccess, ids[i])
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("not all messages were delivered")
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, ids, seen)
}

func TestChannel_HandlerErrorDoesNotStopDelivery(t *testing.T) {
	ctx := context.Background()
	ch := New(newMemTransport())
	require.NoError(t, ch.Connect(ctx))
	defer ch.Disconnect()

	delivered := make(chan uuid.UUID, 2)

	require.NoError(t, ch.Subscribe(ctx, models.EventDebitFailed, func(ctx context.Context, evt models.Envelope) error {
		return errors.New("handler exploded")
	}))
	require.NoError(t, ch.Subscribe(ctx, models.EventDebitFailed, func(ctx context.Context, evt models.Envelope) error {
		delivered <- evt.TransactionID
		return nil
	}))

	first := uuid.New()
	second := uuid.New()
	publishEnvelope(t, ch, models.EventDebitFailed, first)
	publishEnvelope(t, ch, models.EventDebitFailed, second)

	for _, want := range []uuid.UUID{first, second} {
		select {
		case got := <-delivered:
			assert.Equal(t, want, got)
		case <-time.After(time.Second):
			t.Fatal("second handler stopped receiving after the first one errored")
		}
	}
}

func TestChannel_Unsubscribe(t *testing.T) {
	ctx := context.Background()
	transport := newMemTransport()
	ch := New(transport)
	require.NoError(t, ch.Connect(ctx))
	defer ch.Disconnect()

	delivered := make(chan struct{}, 1)
	require.NoError(t, ch.Subscribe(ctx, models.EventRefundCompleted, func(ctx context.Context, evt models.Envelope) error {
		delivered <- struct{}{}
		return nil
	}))

	require.NoError(t, ch.Unsubscribe(models.EventRefundCompleted))

	// Unsubscribing an event type that was never subscribed is a no-op.
	require.NoError(t, ch.Unsubscribe(models.EventCreditFailed))

	select {
	case <-delivered:
		t.Fatal("handler received an event after unsubscribe")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestChannel_DisconnectIsIdempotent(t *testing.T) {
	ctx := context.Background()
	ch := New(newMemTransport())
	require.NoError(t, ch.Connect(ctx))

	require.NoError(t, ch.Subscribe(ctx, models.EventTransactionCompleted, func(ctx context.Context, evt models.Envelope) error {
		return nil
	}))

	require.NoError(t, ch.Disconnect())
	require.NoError(t, ch.Disconnect())

	err := ch.Publish(ctx, models.Envelope{Type: models.EventTransactionCompleted})
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestChannel_ConnectTwice(t *testing.T) {
	ctx := context.Background()
	ch := New(newMemTransport())

	require.NoError(t, ch.Connect(ctx))
	require.NoError(t, ch.Connect(ctx))
	require.NoError(t, ch.Disconnect())
}
