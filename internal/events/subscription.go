package events

import (
	"sync"
	"sync/atomic"
)

// Subscription is the capability to cancel one registration. It can be
// passed around freely and outlive the Source it came from.
type Subscription struct {
	once   sync.Once
	done   atomic.Bool
	cancel func()
}

func newSubscription(cancel func()) *Subscription {
	return &Subscription{cancel: cancel}
}

// Unsubscribe removes the registration. Calling it more than once, or on a
// nil Subscription, does nothing.
func (s *Subscription) Unsubscribe() {
	if s == nil {
		return
	}
	s.once.Do(func() {
		s.done.Store(true)
		s.cancel()
	})
}

// Active reports whether Unsubscribe has not been called yet.
func (s *Subscription) Active() bool {
	return s != nil && !s.done.Load()
}

// Group collects subscriptions so they can be cancelled together.
type Group struct {
	mu   sync.Mutex
	subs []*Subscription
}

// Add tracks sub and returns it.
func (g *Group) Add(sub *Subscription) *Subscription {
	g.mu.Lock()
	g.subs = append(g.subs, sub)
	g.mu.Unlock()
	return sub
}

// Unsubscribe cancels every tracked subscription.
func (g *Group) Unsubscribe() {
	g.mu.Lock()
	subs := g.subs
	g.subs = nil
	g.mu.Unlock()

	for _, sub := range subs {
		sub.Unsubscribe()
	}
}
