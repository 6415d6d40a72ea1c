// Package buffer provides the queue that carries snapshots from the fetch
// task to the scheduler.
package buffer

import "sync"

// Unbounded is a single-producer, single-consumer queue whose Send never
// blocks. Items are handed to the consumer in order through Receive.
//
//	feed := buffer.NewUnbounded[*snapshot.Snapshot]()
//	go producer(feed)      // feed.Send(s)
//	for s := range feed.Receive() { ... }
type Unbounded[T any] struct {
	mu     sync.Mutex
	items  []T
	closed bool
	wake   chan struct{}
	out    chan T
	done   chan struct{}
	stop   sync.Once
}

// NewUnbounded creates an empty queue and starts its delivery goroutine.
func NewUnbounded[T any]() *Unbounded[T] {
	b := &Unbounded[T]{
		items: make([]T, 0, 16),
		wake:  make(chan struct{}, 1),
		out:   make(chan T),
		done:  make(chan struct{}),
	}
	go b.deliver()
	return b
}

// deliver moves queued items to the output channel. It closes the output
// once the queue is closed and empty, or as soon as Stop is called.
func (b *Unbounded[T]) deliver() {
	defer close(b.out)
	for {
		b.mu.Lock()
		if len(b.items) == 0 {
			closed := b.closed
			b.mu.Unlock()
			if closed {
				return
			}
			select {
			case <-b.wake:
			case <-b.done:
				return
			}
			continue
		}
		item := b.items[0]
		var zero T
		b.items[0] = zero
		b.items = b.items[1:]
		b.mu.Unlock()

		select {
		case b.out <- item:
		case <-b.done:
			return
		}
	}
}

func (b *Unbounded[T]) signal() {
	select {
	case b.wake <- struct{}{}:
	default:
	}
}

// Send enqueues item. It never blocks. Sends after Close are dropped.
func (b *Unbounded[T]) Send(item T) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.items = append(b.items, item)
	b.mu.Unlock()
	b.signal()
}

// Receive returns the consumer side. It is closed after Close once every
// queued item has been delivered.
func (b *Unbounded[T]) Receive() <-chan T {
	return b.out
}

// Close stops accepting items. It is safe to call more than once.
func (b *Unbounded[T]) Close() {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()
	b.signal()
}

// Stop closes the queue and discards anything not yet delivered. Call it when
// the consumer has stopped reading; Close alone would leave delivery blocked
// on an item nobody will take. It is safe to call more than once.
func (b *Unbounded[T]) Stop() {
	b.stop.Do(func() {
		b.mu.Lock()
		b.closed = true
		clear(b.items)
		b.items = b.items[:0]
		b.mu.Unlock()
		close(b.done)
	})
}

// Len returns the number of items waiting to be delivered.
func (b *Unbounded[T]) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.items)
}
