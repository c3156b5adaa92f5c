// Package events provides a typed, keyed event source used by connections
// and the server registry to fan notifications out to listeners.
package events

import (
	"sync"
	"sync/atomic"
)

// Source maps event keys to an ordered list of listeners. Listeners for a
// key are invoked in registration order, synchronously, on the goroutine
// that calls Dispatch.
//
// A Source is safe for concurrent use. Dispatch works on a snapshot of the
// listeners taken when it starts, so listeners may subscribe or unsubscribe
// from inside a callback without affecting the pass in progress.
type Source[K comparable, V any] struct {
	mu        sync.Mutex
	listeners map[K][]*registration[V]
	onPanic   func(key any, recovered any)
}

type registration[V any] struct {
	fn func(V)
}

// Option configures a Source.
type Option func(*options)

type options struct {
	onPanic func(key any, recovered any)
}

// WithRecover makes Dispatch recover a panicking listener, report it to fn
// and carry on with the next listener. Without it a panic propagates to the
// caller of Dispatch.
func WithRecover(fn func(key any, recovered any)) Option {
	return func(o *options) {
		o.onPanic = fn
	}
}

// New creates an empty Source.
func New[K comparable, V any](opts ...Option) *Source[K, V] {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	return &Source[K, V]{
		listeners: make(map[K][]*registration[V]),
		onPanic:   o.onPanic,
	}
}

// Subscribe appends fn to the listeners for key and returns a handle that
// removes exactly this registration. Subscribing the same function twice
// yields two independent registrations.
func (s *Source[K, V]) Subscribe(key K, fn func(V)) *Subscription {
	reg := &registration[V]{fn: fn}

	s.mu.Lock()
	s.listeners[key] = append(s.listeners[key], reg)
	s.mu.Unlock()

	return newSubscription(func() { s.remove(key, reg) })
}

// SubscribeOnce registers fn so that it runs for at most one dispatch of
// key. The returned handle may cancel the registration before it fires.
func (s *Source[K, V]) SubscribeOnce(key K, fn func(V)) *Subscription {
	var fired atomic.Bool
	var sub *Subscription

	// The claim happens before fn runs, so overlapping dispatches from other
	// goroutines cannot invoke fn a second time while it is still running.
	reg := &registration[V]{}
	reg.fn = func(v V) {
		if !fired.CompareAndSwap(false, true) {
			return
		}
		sub.Unsubscribe()
		fn(v)
	}

	s.mu.Lock()
	s.listeners[key] = append(s.listeners[key], reg)
	sub = newSubscription(func() { s.remove(key, reg) })
	s.mu.Unlock()

	return sub
}

// Dispatch invokes every listener currently registered for key with v.
// Dispatching a key without listeners is a no-op.
func (s *Source[K, V]) Dispatch(key K, v V) {
	s.mu.Lock()
	regs := s.listeners[key]
	if len(regs) == 0 {
		s.mu.Unlock()
		return
	}
	snapshot := make([]*registration[V], len(regs))
	copy(snapshot, regs)
	s.mu.Unlock()

	for _, reg := range snapshot {
		s.invoke(key, reg, v)
	}
}

func (s *Source[K, V]) invoke(key K, reg *registration[V], v V) {
	if s.onPanic != nil {
		defer func() {
			if r := recover(); r != nil {
				s.onPanic(key, r)
			}
		}()
	}
	reg.fn(v)
}

// Count returns the number of listeners registered for key.
func (s *Source[K, V]) Count(key K) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.listeners[key])
}

// Clear drops every registration. Handles issued earlier remain valid and
// become no-ops.
func (s *Source[K, V]) Clear() {
	s.mu.Lock()
	s.listeners = make(map[K][]*registration[V])
	s.mu.Unlock()
}

func (s *Source[K, V]) remove(key K, target *registration[V]) {
	s.mu.Lock()
	defer s.mu.Unlock()

	regs := s.listeners[key]
	for i, reg := range regs {
		if reg != target {
			continue
		}
		if len(regs) == 1 {
			delete(s.listeners, key)
			return
		}
		s.listeners[key] = append(regs[:i:i], regs[i+1:]...)
		return
	}
}
