// Package eventdispatch fans events out to a single buffered consumer
// channel without ever blocking the producer. Slow consumers lose
// events rather than stalling receive loops.
package eventdispatch

import (
	"sync"
	"sync/atomic"
)

// Dispatcher owns the consumer channel for one event stream. The type
// parameter keeps producers and the consumer on one concrete event
// type without an import cycle against the package that defines it.
type Dispatcher[E any] struct {
	events  chan E
	dropped atomic.Uint64
	onDrop  func()

	mu     sync.Mutex
	closed bool
}

// New creates a dispatcher with the given buffer size. onDrop, if not
// nil, runs after each dropped event; keep it cheap, it runs on the
// producer's goroutine.
func New[E any](bufferSize int, onDrop func()) *Dispatcher[E] {
	if bufferSize <= 0 {
		bufferSize = 1
	}
	return &Dispatcher[E]{
		events: make(chan E, bufferSize),
		onDrop: onDrop,
	}
}

// Emit delivers event to the consumer without blocking. It reports
// whether the event was buffered; a full buffer or a closed dispatcher
// drops the event.
func (d *Dispatcher[E]) Emit(event E) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return false
	}

	select {
	case d.events <- event:
		return true
	default:
		d.dropped.Add(1)
		if d.onDrop != nil {
			d.onDrop()
		}
		return false
	}
}

// Events returns the consumer channel. It is closed when the
// dispatcher closes.
func (d *Dispatcher[E]) Events() <-chan E {
	return d.events
}

// Dropped returns the number of events lost to a full buffer.
func (d *Dispatcher[E]) Dropped() uint64 {
	return d.dropped.Load()
}

// Close closes the consumer channel. Safe to call multiple times.
func (d *Dispatcher[E]) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.closed {
		d.closed = true
		close(d.events)
	}
}

// IsClosed reports whether Close has run.
func (d *Dispatcher[E]) IsClosed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}
