// Package bus provides in-process broadcast channels for trade signals and
// PnL updates.
package bus

import "sync"

// Policy controls what happens when a subscriber's buffer is full.
type Policy int

const (
	// Lossless blocks the publisher until the subscriber drains. Use for
	// the execution sink, which must receive every signal exactly once.
	Lossless Policy = iota

	// DropOldest evicts the oldest buffered value to make room. Use for
	// dashboard-style subscribers that must never back-pressure the
	// strategy.
	DropOldest
)

type subscriber[T any] struct {
	ch     chan T
	policy Policy
}

// Broadcaster fans values out to any number of subscribers.
type Broadcaster[T any] struct {
	mu     sync.Mutex
	subs   map[int]*subscriber[T]
	nextID int
	closed bool
}

// NewBroadcaster creates an empty broadcaster.
func NewBroadcaster[T any]() *Broadcaster[T] {
	return &Broadcaster[T]{subs: make(map[int]*subscriber[T])}
}

// Subscribe registers a new subscriber with the given buffer size and
// overflow policy. The returned cancel func unregisters and closes the
// channel.
func (b *Broadcaster[T]) Subscribe(buffer int, policy Policy) (<-chan T, func()) {
	if buffer <= 0 {
		buffer = 1
	}
	sub := &subscriber[T]{ch: make(chan T, buffer), policy: policy}

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	if b.closed {
		close(sub.ch)
	} else {
		b.subs[id] = sub
	}
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		if s, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(s.ch)
		}
		b.mu.Unlock()
	}
	return sub.ch, cancel
}

// Publish delivers v to every subscriber according to its policy.
func (b *Broadcaster[T]) Publish(v T) {
	b.mu.Lock()
	subs := make([]*subscriber[T], 0, len(b.subs))
	for _, s := range b.subs {
		subs = append(subs, s)
	}
	b.mu.Unlock()

	for _, s := range subs {
		switch s.policy {
		case Lossless:
			s.ch <- v
		case DropOldest:
			for {
				select {
				case s.ch <- v:
				default:
					select {
					case <-s.ch:
					default:
					}
					continue
				}
				break
			}
		}
	}
}

// Close closes every subscriber channel. Publish must not be called after
// Close.
func (b *Broadcaster[T]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, s := range b.subs {
		delete(b.subs, id)
		close(s.ch)
	}
}
