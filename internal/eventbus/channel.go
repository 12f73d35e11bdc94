package eventbus

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/sbilibin2017/gw-wallet-transfer/internal/logger"
	"github.com/sbilibin2017/gw-wallet-transfer/internal/models"
)

// ErrNotConnected is returned when Publish or Subscribe is called before
// Connect or after Disconnect.
var ErrNotConnected = errors.New("event channel is not connected")

// Handler processes one delivered event. A returned error is logged and
// does not stop delivery to the remaining handlers for the message.
type Handler func(ctx context.Context, evt models.Envelope) error

// Transport is the underlying pub/sub system. Publish is fire-and-forget:
// the transport does not persist messages, and a message published with no
// live subscription is lost.
type Transport interface {
	Connect(ctx context.Context) error
	Publish(ctx context.Context, topic string, payload []byte) error
	Subscribe(ctx context.Context, topic string) (Subscription, error)
	Close() error
}

// Subscription is one open topic stream. Messages is closed when the
// subscription is closed.
type Subscription interface {
	Messages() <-chan []byte
	Close() error
}

// Channel dispatches envelopes between publishers and in-process handlers
// over a Transport. Each subscribed event type gets its own dispatch
// goroutine, so handlers for one topic run strictly sequentially while
// independent topics proceed concurrently.
type Channel struct {
	transport Transport

	mu        sync.Mutex
	connected bool
	handlers  map[models.EventType][]Handler
	subs      map[models.EventType]Subscription
	wg        sync.WaitGroup
}

// New creates a Channel over the given transport. Connect must be called
// before publishing or subscribing.
func New(transport Transport) *Channel {
	return &Channel{
		transport: transport,
		handlers:  make(map[models.EventType][]Handler),
		subs:      make(map[models.EventType]Subscription),
	}
}

// Connect establishes the transport. Calling Connect on a connected
// channel is a no-op.
func (c *Channel) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.connected {
		return nil
	}
	if err := c.transport.Connect(ctx); err != nil {
		return err
	}
	c.connected = true
	return nil
}

// Publish serializes the envelope and broadcasts it on the topic named
// after its event type. It does not wait for subscriber completion.
func (c *Channel) Publish(ctx context.Context, evt models.Envelope) error {
	c.mu.Lock()
	connected := c.connected
	c.mu.Unlock()
	if !connected {
		return ErrNotConnected
	}

	data, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	return c.transport.Publish(ctx, string(evt.Type), data)
}

// Subscribe registers a handler for the event type and, for the first
// handler of a type, opens the transport subscription and starts its
// dispatch loop. Handlers run in registration order.
func (c *Channel) Subscribe(ctx context.Context, eventType models.EventType, handler Handler) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.connected {
		return ErrNotConnected
	}

	c.handlers[eventType] = append(c.handlers[eventType], handler)
	if _, ok := c.subs[eventType]; ok {
		return nil
	}

	sub, err := c.transport.Subscribe(ctx, string(eventType))
	if err != nil {
		n := len(c.handlers[eventType])
		c.handlers[eventType] = c.handlers[eventType][:n-1]
		return err
	}
	c.subs[eventType] = sub

	c.wg.Add(1)
	go c.dispatch(eventType, sub)
	return nil
}

// Unsubscribe removes all handlers for the event type and closes its
// transport subscription.
func (c *Channel) Unsubscribe(eventType models.EventType) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.handlers, eventType)
	sub, ok := c.subs[eventType]
	if !ok {
		return nil
	}
	delete(c.subs, eventType)
	return sub.Close()
}

// Disconnect closes every subscription and the transport, and waits for
// the dispatch loops to drain. Disconnect is idempotent.
func (c *Channel) Disconnect() error {
	c.mu.Lock()
	if !c.connected {
		c.mu.Unlock()
		return nil
	}
	c.connected = false
	for eventType, sub := range c.subs {
		if err := sub.Close(); err != nil {
			logger.Log.Errorw("failed to close subscription", "event_type", eventType, "error", err)
		}
	}
	c.subs = make(map[models.EventType]Subscription)
	c.handlers = make(map[models.EventType][]Handler)
	c.mu.Unlock()

	c.wg.Wait()
	return c.transport.Close()
}

// dispatch delivers each incoming message to the registered handlers, one
// handler at a time. A handler error is logged and delivery continues with
// the next handler; the loop itself never stops on handler failure.
func (c *Channel) dispatch(eventType models.EventType, sub Subscription) {
	defer c.wg.Done()

	for data := range sub.Messages() {
		var evt models.Envelope
		if err := json.Unmarshal(data, &evt); err != nil {
			logger.Log.Errorw("discarding malformed event", "event_type", eventType, "error", err)
			continue
		}

		c.mu.Lock()
		handlers := append([]Handler(nil), c.handlers[eventType]...)
		c.mu.Unlock()

		for _, handler := range handlers {
			if err := handler(context.Background(), evt); err != nil {
				logger.Log.Errorw("event handler failed",
					"event_type", eventType,
					"transaction_id", evt.TransactionID,
					"error", err,
				)
			}
		}
	}
}
