// Package bus is an in-process publish/subscribe registry that decouples
// data producers (pollers, watchers) from UI consumers.
//
// A Bus is keyed by a data-type string ("orders", "show-toast", ...).
// Handlers for one key run synchronously, in subscription order, on the
// publishing goroutine. A handler that panics is logged and skipped; the
// remaining handlers still run.
package bus

import (
	"log"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// SubscriptionID identifies one registration. It is unique per Bus.
type SubscriptionID string

// Options are per-subscription filters.
type Options struct {
	// CategoryID restricts delivery to publishes for the same category.
	// Publishes without a category reach every subscriber.
	CategoryID string
}

// PublishOptions describe a single publish call.
type PublishOptions struct {
	CategoryID string
}

// Handler receives a payload published under the subscribed data type.
type Handler[T any] func(payload T, opts PublishOptions)

// Hooks observe subscription changes. Count is the number of
// subscriptions for the data type after the change. Hooks run after the
// registry lock is released.
type Hooks struct {
	Subscribed   func(dataType string, opts Options, count int)
	Unsubscribed func(dataType string, opts Options, count int)
}

type subscription[T any] struct {
	id      SubscriptionID
	handler Handler[T]
	opts    Options
	active  atomic.Bool
}

// Bus is a typed fan-out registry.
type Bus[T any] struct {
	name  string
	mu    sync.RWMutex
	subs  map[string][]*subscription[T]
	hooks Hooks
}

// New creates an empty Bus. The name only appears in log lines.
func New[T any](name string) *Bus[T] {
	return &Bus[T]{
		name: name,
		subs: make(map[string][]*subscription[T]),
	}
}

// SetHooks installs subscription observers, replacing any previous ones.
func (b *Bus[T]) SetHooks(h Hooks) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.hooks = h
}

// Subscribe registers handler under dataType and returns the id used to
// remove it.
func (b *Bus[T]) Subscribe(dataType string, handler Handler[T], opts Options) SubscriptionID {
	sub := &subscription[T]{
		id:      SubscriptionID(dataType + "_" + uuid.NewString()),
		handler: handler,
		opts:    opts,
	}
	sub.active.Store(true)

	b.mu.Lock()
	b.subs[dataType] = append(b.subs[dataType], sub)
	count := len(b.subs[dataType])
	hook := b.hooks.Subscribed
	b.mu.Unlock()

	if hook != nil {
		hook(dataType, opts, count)
	}
	return sub.id
}

// Unsubscribe removes a subscription. It reports whether the id was
// registered; a second call for the same id returns false. Once it
// returns, the handler is never invoked again, including by a publish
// that is already iterating.
func (b *Bus[T]) Unsubscribe(dataType string, id SubscriptionID) bool {
	b.mu.Lock()
	list := b.subs[dataType]
	idx := -1
	for i, sub := range list {
		if sub.id == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		b.mu.Unlock()
		return false
	}

	removed := list[idx]
	removed.active.Store(false)

	next := make([]*subscription[T], 0, len(list)-1)
	next = append(next, list[:idx]...)
	next = append(next, list[idx+1:]...)
	if len(next) == 0 {
		delete(b.subs, dataType)
	} else {
		b.subs[dataType] = next
	}
	count := len(next)
	hook := b.hooks.Unsubscribed
	b.mu.Unlock()

	if hook != nil {
		hook(dataType, removed.opts, count)
	}
	return true
}

// Publish delivers payload to every current subscriber of dataType and
// returns how many handlers ran.
func (b *Bus[T]) Publish(dataType string, payload T, opts PublishOptions) int {
	b.mu.RLock()
	snapshot := b.subs[dataType]
	b.mu.RUnlock()

	delivered := 0
	for _, sub := range snapshot {
		if !sub.active.Load() || !matches(sub.opts, opts) {
			continue
		}
		if b.invoke(dataType, sub, payload, opts) {
			delivered++
		}
	}
	return delivered
}

// invoke runs one handler, containing any panic.
func (b *Bus[T]) invoke(
	dataType string,
	sub *subscription[T],
	payload T,
	opts PublishOptions,
) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[Bus:%s] subscriber %s for %q panicked: %v", b.name, sub.id, dataType, r)
			ok = false
		}
	}()
	sub.handler(payload, opts)
	return true
}

// Count returns the number of subscriptions for dataType.
func (b *Bus[T]) Count(dataType string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[dataType])
}

// DataTypes returns the keys that currently have subscribers.
func (b *Bus[T]) DataTypes() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	keys := make([]string, 0, len(b.subs))
	for k := range b.subs {
		keys = append(keys, k)
	}
	return keys
}

// Clear drops every subscription without running hooks.
func (b *Bus[T]) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, list := range b.subs {
		for _, sub := range list {
			sub.active.Store(false)
		}
	}
	b.subs = make(map[string][]*subscription[T])
}

func matches(sub Options, pub PublishOptions) bool {
	if sub.CategoryID != "" && pub.CategoryID != "" {
		return sub.CategoryID == pub.CategoryID
	}
	return true
}
