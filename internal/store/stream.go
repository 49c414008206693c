package store

import "sync"

// Stream is a publish/subscribe channel for immutable snapshots. Each store
// mutation publishes a fresh snapshot; each subscriber holds a buffered
// latest-value channel, so a slow consumer is conflated onto the newest
// snapshot instead of blocking the publisher.
type Stream[T any] struct {
	mu      sync.Mutex
	subs    map[int]*Subscription[T]
	nextID  int
	current T
	primed  bool // true once the first snapshot has been published
}

// NewStream creates an empty stream with no subscribers.
func NewStream[T any]() *Stream[T] {
	return &Stream[T]{subs: make(map[int]*Subscription[T])}
}

// Subscription is one subscriber's view of a Stream. Close must be called on
// teardown to avoid leaking the subscriber entry.
type Subscription[T any] struct {
	ch     chan T
	cancel func()
	once   sync.Once
}

// Updates returns the snapshot channel. The channel is never closed while
// the subscription is open; it yields the current snapshot immediately on
// subscribe and a fresh one after every publish.
func (s *Subscription[T]) Updates() <-chan T { return s.ch }

// Close unsubscribes.
func (s *Subscription[T]) Close() {
	s.once.Do(s.cancel)
}

// Subscribe registers a new subscriber. If a snapshot has already been
// published, it is delivered immediately.
func (st *Stream[T]) Subscribe() *Subscription[T] {
	st.mu.Lock()
	defer st.mu.Unlock()

	id := st.nextID
	st.nextID++

	sub := &Subscription[T]{ch: make(chan T, 1)}
	sub.cancel = func() {
		st.mu.Lock()
		delete(st.subs, id)
		st.mu.Unlock()
	}
	st.subs[id] = sub

	if st.primed {
		sub.ch <- st.current
	}
	return sub
}

// Publish replaces the current snapshot and offers it to every subscriber.
// A subscriber that has not drained the previous snapshot loses it.
func (st *Stream[T]) Publish(snapshot T) {
	st.mu.Lock()
	defer st.mu.Unlock()

	st.current = snapshot
	st.primed = true

	for _, sub := range st.subs {
		select {
		case sub.ch <- snapshot:
		default:
			// Drop the stale pending snapshot, then offer the new one.
			select {
			case <-sub.ch:
			default:
			}
			select {
			case sub.ch <- snapshot:
			default:
			}
		}
	}
}
