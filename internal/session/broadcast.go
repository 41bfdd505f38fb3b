package session

import (
	"sync"
)

// EventType identifies a session event.
type EventType string

// EventSessionInvalidated is published whenever the session is cleared.
const EventSessionInvalidated EventType = "session-invalidated"

// Reason explains why a session was invalidated.
type Reason string

const (
	ReasonRefreshFailed Reason = "refresh-failed"
	ReasonLogout        Reason = "logout"
	ReasonManual        Reason = "manual"
)

// Event is delivered to subscribers.
type Event struct {
	Type   EventType
	Reason Reason
}

type subscriber struct {
	id int
	fn func(Event)
}

// Broadcaster is a synchronous publish/subscribe channel for session
// events. Subscribers run in subscription order on the publishing goroutine.
type Broadcaster struct {
	mu   sync.RWMutex
	next int
	subs []subscriber
}

// NewBroadcaster creates an empty broadcaster
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{}
}

// Subscribe registers fn and returns a function that removes it.
func (b *Broadcaster) Subscribe(fn func(Event)) (unsubscribe func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.next++
	id := b.next
	b.subs = append(b.subs, subscriber{id: id, fn: fn})

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			for i, s := range b.subs {
				if s.id == id {
					b.subs = append(b.subs[:i:i], b.subs[i+1:]...)
					return
				}
			}
		})
	}
}

// Publish delivers e to every current subscriber.
func (b *Broadcaster) Publish(e Event) {
	b.mu.RLock()
	subs := make([]subscriber, len(b.subs))
	copy(subs, b.subs)
	b.mu.RUnlock()

	for _, s := range subs {
		s.fn(e)
	}
}

// Len returns the number of subscribers
func (b *Broadcaster) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
