package eventbus

import (
	"context"

	"github.com/redis/go-redis/v9"
)

// RedisTransport implements Transport over Redis pub/sub. Redis pub/sub is
// at-most-once and non-durable, which is exactly the delivery contract the
// channel promises.
type RedisTransport struct {
	rdb *redis.Client
}

// NewRedisTransport wraps an existing Redis client. The client's lifecycle
// is owned by the caller.
func NewRedisTransport(rdb *redis.Client) *RedisTransport {
	return &RedisTransport{rdb: rdb}
}

// Connect verifies the connection with a ping.
func (t *RedisTransport) Connect(ctx context.Context) error {
	return t.rdb.Ping(ctx).Err()
}

// Publish broadcasts the payload on the topic. Messages published while no
// subscriber is listening are dropped by Redis.
func (t *RedisTransport) Publish(ctx context.Context, topic string, payload []byte) error {
	return t.rdb.Publish(ctx, topic, payload).Err()
}

// Subscribe opens a Redis subscription and confirms it before returning,
// so messages published after Subscribe returns are not missed.
func (t *RedisTransport) Subscribe(ctx context.Context, topic string) (Subscription, error) {
	ps := t.rdb.Subscribe(ctx, topic)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, err
	}

	sub := &redisSubscription{ps: ps, out: make(chan []byte)}
	go sub.forward()
	return sub, nil
}

// Close is a no-op: the Redis client is shared and closed by its owner.
func (t *RedisTransport) Close() error {
	return nil
}

type redisSubscription struct {
	ps  *redis.PubSub
	out chan []byte
}

func (s *redisSubscription) forward() {
	defer close(s.out)
	for msg := range s.ps.Channel() {
		s.out <- []byte(msg.Payload)
	}
}

func (s *redisSubscription) Messages() <-chan []byte {
	return s.out
}

func (s *redisSubscription) Close() error {
	return s.ps.Close()
}
