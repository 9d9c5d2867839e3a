// Package eventbus implements the in-process publish/subscribe bus that
// decouples fleet state mutation from monitor broadcasting and telemetry.
package eventbus

import "sync"

// Bus is a fan-out publish/subscribe bus for events of type T.
// Publish never blocks: a subscriber whose channel is full loses the event,
// so subscribers that care about completeness size their buffer accordingly.
type Bus[T any] struct {
	mu     sync.RWMutex
	buf    int
	subs   []chan T
	closed bool
}

// New creates a Bus whose subscriber channels buffer buf events.
func New[T any](buf int) *Bus[T] {
	if buf < 1 {
		buf = 1
	}
	return &Bus[T]{buf: buf}
}

// Publish sends the event to all subscribers. Delivery is non-blocking.
func (b *Bus[T]) Publish(e T) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	for _, ch := range b.subs {
		select {
		case ch <- e:
		default:
		}
	}
}

// Subscribe registers a new subscriber and returns its channel.
func (b *Bus[T]) Subscribe() <-chan T {
	ch := make(chan T, b.buf)
	b.mu.Lock()
	if b.closed {
		close(ch)
	} else {
		b.subs = append(b.subs, ch)
	}
	b.mu.Unlock()
	return ch
}

// Unsubscribe removes the subscriber and closes its channel.
func (b *Bus[T]) Unsubscribe(sub <-chan T) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, ch := range b.subs {
		if ch == sub {
			b.subs = append(b.subs[:i], b.subs[i+1:]...)
			if !b.closed {
				close(ch)
			}
			return
		}
	}
}

// Close closes all subscriber channels and clears the list.
func (b *Bus[T]) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	for _, ch := range b.subs {
		close(ch)
	}
	b.subs = nil
	b.mu.Unlock()
}
