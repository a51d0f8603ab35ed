// Package pubsub provides a fire-and-forget fan-out of events to subscribers.
package pubsub

import "sync"

// DefaultBuffer is the channel capacity of each subscription.
const DefaultBuffer = 64

// Broadcaster fans events out to every subscriber without blocking the
// publisher. When a subscriber's buffer is full its oldest event is discarded,
// so the latest event is always delivered.
type Broadcaster[T any] struct {
	mu   sync.RWMutex
	subs []chan T
}

// New creates a broadcaster.
func New[T any]() *Broadcaster[T] {
	return &Broadcaster[T]{}
}

// Subscribe returns a channel receiving subsequent events.
// The caller must call Unsubscribe when done.
func (b *Broadcaster[T]) Subscribe() <-chan T {
	ch := make(chan T, DefaultBuffer)
	b.mu.Lock()
	b.subs = append(b.subs, ch)
	b.mu.Unlock()
	return ch
}

// Unsubscribe removes a subscription. The channel is not closed; after
// Unsubscribe returns no further events are sent to it.
func (b *Broadcaster[T]) Unsubscribe(ch <-chan T) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, sub := range b.subs {
		if sub == ch {
			b.subs = append(b.subs[:i], b.subs[i+1:]...)
			return
		}
	}
}

// Publish delivers e to all current subscribers.
func (b *Broadcaster[T]) Publish(e T) {
	b.mu.RLock()
	subs := make([]chan T, len(b.subs))
	copy(subs, b.subs)
	b.mu.RUnlock()

	for _, ch := range subs {
		deliver(ch, e)
	}
}

func deliver[T any](ch chan T, e T) {
	for {
		select {
		case ch <- e:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}
