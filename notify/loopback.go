package notify

import (
	"context"
	"sync"

	access "github.com/shanliu/lsys-access"
)

// Compile-time interface checks.
var (
	_ access.Notifier = (*Noop)(nil)
	_ access.Notifier = (*Loopback)(nil)
)

// Noop discards every broadcast. Single-process deployments need no
// cross-process invalidation; the engine's local clear is already complete.
type Noop struct{}

// NewNoop creates a no-op notifier.
func NewNoop() *Noop { return &Noop{} }

func (*Noop) Publish(context.Context, string) error { return nil }

func (*Noop) Subscribe(context.Context, func(key string)) error { return nil }

// Loopback delivers every published key to every subscriber in-process.
// Test transport for exercising the subscribe path without Redis.
type Loopback struct {
	mu   sync.RWMutex
	subs []func(key string)
}

// NewLoopback creates an in-process notifier.
func NewLoopback() *Loopback { return &Loopback{} }

// Publish delivers key to every subscriber synchronously.
func (l *Loopback) Publish(_ context.Context, key string) error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for _, fn := range l.subs {
		fn(key)
	}
	return nil
}

// Subscribe registers fn for all future publishes.
func (l *Loopback) Subscribe(_ context.Context, fn func(key string)) error {
	l.mu.Lock()
	l.subs = append(l.subs, fn)
	l.mu.Unlock()
	return nil
}
