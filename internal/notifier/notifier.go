// Package notifier provides a broadcast mechanism for editor state changes.
package notifier

import "sync"

// Kind is a bit set describing what changed.
type Kind uint8

// Change kinds.
const (
	Graph Kind = 1 << iota
	Selection
	Dirty
	Preview
	Run
	Schema
)

// All matches every change kind.
const All = Graph | Selection | Dirty | Preview | Run | Schema

// Has reports whether k includes any of the kinds in other.
func (k Kind) Has(other Kind) bool {
	return k&other != 0
}

// Subscription receives a ping whenever a change matching its filter is
// broadcast. Pings coalesce: a slow listener sees one ping for a burst of
// changes and reads the accumulated kinds with Take.
type Subscription struct {
	C chan struct{}

	filter  Kind
	mu      sync.Mutex
	pending Kind
}

// Take returns and clears the kinds accumulated since the last call.
func (s *Subscription) Take() Kind {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := s.pending
	s.pending = 0
	return k
}

func (s *Subscription) push(k Kind) {
	s.mu.Lock()
	s.pending |= k
	s.mu.Unlock()

	select {
	case s.C <- struct{}{}:
	default:
		// Already signalled, the listener will pick up the merged kinds
	}
}

// Notifier broadcasts change signals to all subscribed listeners.
type Notifier struct {
	mu        sync.RWMutex
	listeners map[*Subscription]struct{}
}

// New creates a new Notifier instance.
func New() *Notifier {
	return &Notifier{
		listeners: make(map[*Subscription]struct{}),
	}
}

// Subscribe registers a listener for the given kinds.
// The caller must call Unsubscribe when done to prevent goroutine leaks.
func (n *Notifier) Subscribe(filter Kind) *Subscription {
	s := &Subscription{C: make(chan struct{}, 1), filter: filter}
	n.mu.Lock()
	n.listeners[s] = struct{}{}
	n.mu.Unlock()
	return s
}

// Unsubscribe removes a listener and closes its channel.
func (n *Notifier) Unsubscribe(s *Subscription) {
	n.mu.Lock()
	_, ok := n.listeners[s]
	delete(n.listeners, s)
	n.mu.Unlock()
	if ok {
		close(s.C)
	}
}

// Broadcast signals every listener whose filter matches k. Never blocks.
func (n *Notifier) Broadcast(k Kind) {
	n.mu.RLock()
	defer n.mu.RUnlock()

	for s := range n.listeners {
		if s.filter.Has(k) {
			s.push(k & s.filter)
		}
	}
}
