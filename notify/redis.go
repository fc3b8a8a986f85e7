// Package notify provides cross-process cache-invalidation transports. The
// engine publishes cache-clear keys after each committed mutation; sibling
// processes subscribe and apply the clears to their local caches. Delivery
// is at-least-once and clears are idempotent, so duplicates are harmless.
package notify

import (
	"context"

	"github.com/redis/go-redis/v9"

	access "github.com/shanliu/lsys-access"
)

// DefaultChannel is the pub/sub channel cache-clear keys travel on.
const DefaultChannel = "lsys:access:invalidate"

// Compile-time interface check.
var _ access.Notifier = (*Redis)(nil)

// Redis broadcasts cache-clear keys over a Redis pub/sub channel.
type Redis struct {
	client  redis.UniversalClient
	channel string
}

// RedisOption configures the Redis notifier.
type RedisOption func(*Redis)

// WithChannel overrides the pub/sub channel name.
func WithChannel(name string) RedisOption {
	return func(r *Redis) { r.channel = name }
}

// NewRedis creates a notifier on an existing client. The caller owns the
// client's lifecycle.
func NewRedis(client redis.UniversalClient, opts ...RedisOption) *Redis {
	r := &Redis{client: client, channel: DefaultChannel}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Publish broadcasts one cache-clear key.
func (r *Redis) Publish(ctx context.Context, key string) error {
	return r.client.Publish(ctx, r.channel, key).Err()
}

// Subscribe invokes fn for every key broadcast by a sibling process. It
// returns once the subscription is confirmed; delivery runs on its own
// goroutine until ctx is done.
func (r *Redis) Subscribe(ctx context.Context, fn func(key string)) error {
	sub := r.client.Subscribe(ctx, r.channel)
	// Receive forces the SUBSCRIBE round-trip so a nil return means the
	// subscription is live.
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return err
	}

	ch := sub.Channel()
	go func() {
		defer sub.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				fn(msg.Payload)
			}
		}
	}()
	return nil
}
