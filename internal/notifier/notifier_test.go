package notifier

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func listenerCount(n *Notifier) int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.listeners)
}

func TestNotifier_Subscribe_Unsubscribe(t *testing.T) {
	n := New()

	sub := n.Subscribe(All)
	require.NotNil(t, sub)
	assert.Equal(t, 1, listenerCount(n))

	n.Unsubscribe(sub)
	assert.Equal(t, 0, listenerCount(n))

	// Channel is closed after unsubscribe
	_, open := <-sub.C
	assert.False(t, open)

	// Second unsubscribe is harmless
	n.Unsubscribe(sub)
}

func TestNotifier_Broadcast(t *testing.T) {
	n := New()

	sub1 := n.Subscribe(All)
	sub2 := n.Subscribe(All)
	defer n.Unsubscribe(sub1)
	defer n.Unsubscribe(sub2)

	n.Broadcast(Graph)

	for _, sub := range []*Subscription{sub1, sub2} {
		select {
		case <-sub.C:
			assert.Equal(t, Graph, sub.Take())
		case <-time.After(100 * time.Millisecond):
			t.Error("subscriber did not receive broadcast")
		}
	}
}

func TestNotifier_Filter(t *testing.T) {
	n := New()

	graphOnly := n.Subscribe(Graph | Dirty)
	defer n.Unsubscribe(graphOnly)

	n.Broadcast(Preview)
	select {
	case <-graphOnly.C:
		t.Fatal("filtered subscriber should not be signalled")
	default:
	}

	n.Broadcast(Selection | Dirty)
	select {
	case <-graphOnly.C:
		assert.Equal(t, Dirty, graphOnly.Take())
	case <-time.After(100 * time.Millisecond):
		t.Fatal("expected a signal")
	}
}

func TestNotifier_Coalesces(t *testing.T) {
	n := New()

	sub := n.Subscribe(All)
	defer n.Unsubscribe(sub)

	n.Broadcast(Graph)
	n.Broadcast(Preview)
	n.Broadcast(Run)

	<-sub.C
	assert.Equal(t, Graph|Preview|Run, sub.Take())
	assert.Equal(t, Kind(0), sub.Take())

	select {
	case <-sub.C:
		t.Fatal("expected a single coalesced ping")
	default:
	}
}

func TestNotifier_Concurrent(t *testing.T) {
	n := New()

	var wg sync.WaitGroup
	const numGoroutines = 10

	for i := 0; i < numGoroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sub := n.Subscribe(All)
			n.Broadcast(Graph)
			n.Unsubscribe(sub)
		}()
	}

	wg.Wait()
	assert.Equal(t, 0, listenerCount(n))
}
