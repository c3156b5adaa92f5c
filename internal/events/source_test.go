package events

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDispatchInRegistrationOrder(t *testing.T) {
	src := New[string, int]()

	var got []string
	src.Subscribe("a", func(v int) { got = append(got, "first") })
	src.Subscribe("a", func(v int) { got = append(got, "second") })
	src.Subscribe("b", func(v int) { got = append(got, "other") })

	src.Dispatch("a", 1)

	assert.Equal(t, []string{"first", "second"}, got)
}

func TestDispatchWithoutListeners(t *testing.T) {
	src := New[string, int]()

	assert.NotPanics(t, func() { src.Dispatch("missing", 1) })
	assert.Equal(t, 0, src.Count("missing"))
}

func TestUnsubscribeRemovesOnlyThatRegistration(t *testing.T) {
	src := New[string, int]()

	var calls int
	fn := func(int) { calls++ }

	first := src.Subscribe("k", fn)
	src.Subscribe("k", fn)
	require.Equal(t, 2, src.Count("k"))

	first.Unsubscribe()
	src.Dispatch("k", 0)

	assert.Equal(t, 1, calls, "the second registration of the same func stays active")
	assert.Equal(t, 1, src.Count("k"))
	assert.False(t, first.Active())
}

func TestUnsubscribeIsIdempotent(t *testing.T) {
	src := New[string, int]()

	var calls int
	sub := src.Subscribe("k", func(int) { calls++ })
	src.Subscribe("k", func(int) { calls += 10 })

	sub.Unsubscribe()
	sub.Unsubscribe()

	src.Dispatch("k", 0)
	assert.Equal(t, 10, calls)

	var nilSub *Subscription
	assert.NotPanics(t, nilSub.Unsubscribe)
	assert.False(t, nilSub.Active())
}

func TestUnsubscribeAfterClear(t *testing.T) {
	src := New[string, int]()
	sub := src.Subscribe("k", func(int) {})

	src.Clear()
	assert.Equal(t, 0, src.Count("k"))
	assert.NotPanics(t, sub.Unsubscribe)
}

func TestDispatchUsesSnapshot(t *testing.T) {
	src := New[string, int]()

	var order []string
	var late *Subscription
	var second *Subscription

	src.Subscribe("k", func(int) {
		order = append(order, "first")
		if late == nil {
			late = src.Subscribe("k", func(int) { order = append(order, "late") })
		}
		second.Unsubscribe()
	})
	second = src.Subscribe("k", func(int) { order = append(order, "second") })

	src.Dispatch("k", 0)
	assert.Equal(t, []string{"first", "second"}, order, "changes made during dispatch apply to the next pass")

	order = nil
	src.Dispatch("k", 0)
	assert.Equal(t, []string{"first", "late"}, order)
}

func TestSubscribeOnceFiresOnce(t *testing.T) {
	src := New[string, int]()

	var got []int
	src.SubscribeOnce("k", func(v int) { got = append(got, v) })

	src.Dispatch("k", 1)
	src.Dispatch("k", 2)

	assert.Equal(t, []int{1}, got)
	assert.Equal(t, 0, src.Count("k"))
}

func TestSubscribeOnceReentrantDispatch(t *testing.T) {
	src := New[string, int]()

	var calls int
	src.SubscribeOnce("k", func(v int) {
		calls++
		src.Dispatch("k", v+1)
	})

	src.Dispatch("k", 0)
	assert.Equal(t, 1, calls)
}

func TestSubscribeOnceCancelledBeforeDispatch(t *testing.T) {
	src := New[string, int]()

	var calls int
	sub := src.SubscribeOnce("k", func(int) { calls++ })
	sub.Unsubscribe()

	src.Dispatch("k", 0)
	assert.Equal(t, 0, calls)
}

func TestSubscribeOnceConcurrentDispatch(t *testing.T) {
	src := New[string, int]()

	var calls atomic.Int32
	src.SubscribeOnce("k", func(int) { calls.Add(1) })

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(v int) {
			defer wg.Done()
			src.Dispatch("k", v)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
}

func TestConcurrentSubscribeAndDispatch(t *testing.T) {
	src := New[int, int]()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func(key int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				sub := src.Subscribe(key%3, func(int) {})
				if j%2 == 0 {
					sub.Unsubscribe()
				}
			}
		}(i)
		go func(key int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				src.Dispatch(key%3, j)
			}
		}(i)
	}
	wg.Wait()

	total := src.Count(0) + src.Count(1) + src.Count(2)
	assert.Equal(t, 500, total)
}

func TestGroupUnsubscribe(t *testing.T) {
	src := New[string, int]()

	var calls int
	var g Group
	g.Add(src.Subscribe("a", func(int) { calls++ }))
	g.Add(src.Subscribe("b", func(int) { calls++ }))

	g.Unsubscribe()
	g.Unsubscribe()

	src.Dispatch("a", 0)
	src.Dispatch("b", 0)
	assert.Equal(t, 0, calls)
}

func TestDispatchRecoversPanickingListener(t *testing.T) {
	var recovered []any
	src := New[string, int](WithRecover(func(key any, r any) {
		recovered = append(recovered, key, r)
	}))

	var calls int
	src.Subscribe("k", func(int) { panic("boom") })
	src.Subscribe("k", func(int) { calls++ })

	src.Dispatch("k", 0)
	src.Dispatch("k", 0)

	assert.Equal(t, 2, calls, "listeners after a panicking one still run")
	assert.Equal(t, []any{"k", "boom", "k", "boom"}, recovered)
}

func TestDispatchPanicsWithoutRecover(t *testing.T) {
	src := New[string, int]()
	src.Subscribe("k", func(int) { panic("boom") })

	assert.PanicsWithValue(t, "boom", func() { src.Dispatch("k", 0) })
}

func TestWrapForwardsSelectedKeys(t *testing.T) {
	host := New[string, int]()
	wrapped, sub := Wrap[string, int](host, []string{"click"})

	var got []int
	wrapped.Subscribe("click", func(v int) { got = append(got, v) })
	wrapped.Subscribe("hover", func(int) { t.Error("hover was not forwarded") })

	host.Dispatch("click", 1)
	host.Dispatch("hover", 2)
	assert.Equal(t, []int{1}, got)

	sub.Unsubscribe()
	assert.Zero(t, host.Count("click"))
	host.Dispatch("click", 3)
	assert.Equal(t, []int{1}, got)

	wrapped.Dispatch("click", 4)
	assert.Equal(t, []int{1, 4}, got, "the wrapped source still works on its own")
}
