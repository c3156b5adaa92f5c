package events

// Host is anything listeners can be attached to by key. Source satisfies it.
type Host[K comparable, V any] interface {
	Subscribe(key K, fn func(V)) *Subscription
}

// Wrap returns a new Source that re-dispatches the given keys of host. The
// returned Subscription detaches the forwarding listeners from host;
// listeners on the new Source are left alone.
func Wrap[K comparable, V any](host Host[K, V], keys []K, opts ...Option) (*Source[K, V], *Subscription) {
	src := New[K, V](opts...)
	var g Group
	for _, key := range keys {
		g.Add(host.Subscribe(key, func(v V) { src.Dispatch(key, v) }))
	}
	return src, newSubscription(g.Unsubscribe)
}
