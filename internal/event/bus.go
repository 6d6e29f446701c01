package event

import (
	"context"
	"sync"
	"sync/atomic"
)

const defaultBufferSize = 1024

// Option configures a Bus.
type Option func(*Bus)

// WithBufferSize sets the per-subscriber channel buffer.
func WithBufferSize(n int) Option {
	return func(b *Bus) {
		if n > 0 {
			b.bufferSize = n
		}
	}
}

// Bus is an in-process fan-out of events to buffered subscriber channels.
// A full subscriber loses the event; Dropped counts the losses.
type Bus struct {
	bufferSize int

	mu     sync.RWMutex
	subs   []chan Event
	closed bool

	dropped atomic.Int64
}

// NewBus creates a bus.
func NewBus(opts ...Option) *Bus {
	b := &Bus{bufferSize: defaultBufferSize}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Subscribe returns a channel receiving every event published after the call.
// The channel is closed by Close.
func (b *Bus) Subscribe() <-chan Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Event, b.bufferSize)
	if b.closed {
		close(ch)
		return ch
	}
	b.subs = append(b.subs, ch)
	return ch
}

// Publish delivers e to every subscriber without blocking. It returns false
// when the bus is closed, ctx is done, or any subscriber dropped the event.
func (b *Bus) Publish(ctx context.Context, e Event) bool {
	if ctx.Err() != nil {
		return false
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return false
	}

	delivered := true
	for _, ch := range b.subs {
		select {
		case ch <- e:
		default:
			b.dropped.Add(1)
			delivered = false
		}
	}
	return delivered
}

// Dropped returns how many deliveries were lost to full subscribers.
func (b *Bus) Dropped() int64 { return b.dropped.Load() }

// Close closes all subscriber channels. Further publishes return false.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for _, ch := range b.subs {
		close(ch)
	}
	b.subs = nil
}
