package util

import (
	"runtime"
	"sync"
	"sync/atomic"
)

// slot is a single element of the mailbox's linked list
type slot[T any] struct {
	value T
	next  atomic.Pointer[slot[T]]
}

// Mailbox is an unbounded multi-producer single-consumer queue that delivers
// its items through a channel. Producers never block, so it is safe to push
// from a transport's read goroutine while the consumer is slow.
//
// Items pushed by one goroutine are delivered in the order they were pushed.
// Items pushed concurrently by several goroutines are ordered by which push
// completes first.
type Mailbox[T any] struct {
	head   atomic.Pointer[slot[T]]
	tail   atomic.Pointer[slot[T]]
	out    chan T
	closed atomic.Bool
	abort  chan struct{}
	once   sync.Once
	done   sync.WaitGroup

	mu   sync.Mutex
	cond *sync.Cond
}

// NewMailbox creates a mailbox and starts its delivery goroutine.
func NewMailbox[T any]() *Mailbox[T] {
	sentinel := &slot[T]{}

	m := &Mailbox[T]{
		out:   make(chan T),
		abort: make(chan struct{}),
	}
	m.cond = sync.NewCond(&m.mu)
	m.head.Store(sentinel)
	m.tail.Store(sentinel)

	m.done.Add(1)
	go m.deliver()

	return m
}

// Push appends an item. Returns false if the mailbox is closed.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (m *Mailbox[T]) Push(value T) bool {
	if m.closed.Load() {
		return false
	}

	s := &slot[T]{value: value}
	var backoff uint8

	for {
		tail := m.tail.Load()
		next := tail.next.Load()
		if next == nil {
			if tail.next.CompareAndSwap(nil, s) {
				m.tail.CompareAndSwap(tail, s)

				// taking the lock pairs with the consumer's check-then-wait
				m.mu.Lock()
				m.cond.Signal()
				m.mu.Unlock()
				return true
			}
		} else {
			// help a producer that appended but has not moved the tail yet
			m.tail.CompareAndSwap(tail, next)
		}

		if backoff < 10 {
			backoff++
			for i := 0; i < 1<<backoff; i++ {
				runtime.Gosched()
			}
		}
		runtime.Gosched()
	}
}

// deliver moves items from the list into the output channel
func (m *Mailbox[T]) deliver() {
	defer m.done.Done()
	defer close(m.out)

	var zero T
	for {
		delivered := false

		for {
			head := m.head.Load()
			next := head.next.Load()
			if next == nil {
				break
			}
			delivered = true

			value := next.value
			m.head.Store(next)

			select {
			case m.out <- value:
			case <-m.abort:
				return
			}
			next.value = zero
		}

		if !delivered && m.closed.Load() {
			return
		}

		if !delivered {
			m.mu.Lock()
			if m.head.Load().next.Load() == nil && !m.closed.Load() {
				m.cond.Wait()
			}
			m.mu.Unlock()
		}
	}
}

// Recv returns the channel items are delivered on. The channel is closed
// after Close once every item pushed before it has been received.
func (m *Mailbox[T]) Recv() <-chan T {
	return m.out
}

// Close stops accepting new items. Items already queued are still delivered.
func (m *Mailbox[T]) Close() {
	m.closed.Store(true)
	m.mu.Lock()
	m.cond.Signal()
	m.mu.Unlock()
}

// Discard closes the mailbox and drops every undelivered item, so the
// delivery goroutine exits even if nobody reads anymore.
func (m *Mailbox[T]) Discard() {
	m.Close()
	m.once.Do(func() { close(m.abort) })
	m.done.Wait()
}

// IsClosed returns true if the mailbox is closed.
func (m *Mailbox[T]) IsClosed() bool {
	return m.closed.Load()
}

// Len returns an approximate count of undelivered items. O(n), debugging only.
func (m *Mailbox[T]) Len() int {
	count := 0
	current := m.head.Load()
	for {
		next := current.next.Load()
		if next == nil {
			break
		}
		count++
		current = next
	}
	return count
}
