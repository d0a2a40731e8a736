// Package bus fans decoded throws and connection-state transitions out to
// registered consumers.
package bus

import (
	"sync"

	"github.com/openboard/dartlink/internal/board"
	"github.com/openboard/dartlink/internal/throw"
)

// throwSub and stateSub wrap callbacks in identity-carrying structs so
// unsubscription removes exactly the registration it was issued for, even
// when the same function is registered twice.
type throwSub struct {
	fn func(*throw.Throw)
}

type stateSub struct {
	fn func(board.State)
}

// Bus distributes throw and connection-state events on independent
// streams. Callbacks run inline on the publishing goroutine, so per-stream
// delivery order matches emission order. Events are not persisted.
//
// Bus implements board.Publisher.
type Bus struct {
	mu     sync.Mutex
	throws []*throwSub
	states []*stateSub
}

// New creates an empty Bus.
func New() *Bus {
	return &Bus{}
}

// SubscribeThrows registers a throw consumer and returns its unsubscribe
// function. Unsubscribing is safe to call multiple times and never affects
// other subscribers.
func (b *Bus) SubscribeThrows(fn func(*throw.Throw)) (unsub func()) {
	s := &throwSub{fn: fn}
	b.mu.Lock()
	b.throws = append(b.throws, s)
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		for i, cur := range b.throws {
			if cur == s {
				b.throws = append(b.throws[:i], b.throws[i+1:]...)
				return
			}
		}
	}
}

// SubscribeState registers a connection-state consumer; same unsubscribe
// semantics as SubscribeThrows.
func (b *Bus) SubscribeState(fn func(board.State)) (unsub func()) {
	s := &stateSub{fn: fn}
	b.mu.Lock()
	b.states = append(b.states, s)
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		for i, cur := range b.states {
			if cur == s {
				b.states = append(b.states[:i], b.states[i+1:]...)
				return
			}
		}
	}
}

// PublishThrow delivers a throw to every current subscriber in
// registration order.
func (b *Bus) PublishThrow(t *throw.Throw) {
	b.mu.Lock()
	subs := make([]*throwSub, len(b.throws))
	copy(subs, b.throws)
	b.mu.Unlock()

	for _, s := range subs {
		s.fn(t)
	}
}

// PublishState delivers a connection-state transition to every current
// subscriber in registration order.
func (b *Bus) PublishState(s board.State) {
	b.mu.Lock()
	subs := make([]*stateSub, len(b.states))
	copy(subs, b.states)
	b.mu.Unlock()

	for _, sub := range subs {
		sub.fn(s)
	}
}

// ThrowSubscribers returns the current throw-subscriber count.
func (b *Bus) ThrowSubscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.throws)
}

// StateSubscribers returns the current state-subscriber count.
func (b *Bus) StateSubscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.states)
}
