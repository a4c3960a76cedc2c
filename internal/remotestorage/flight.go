package remotestorage

import "sync"

type waiter[V any] struct {
	on Executor
	fn func(V)
}

// flightTable coalesces work per key. The cache lookup, the waiter
// registration and the final store all happen under one lock, so a result
// is either observed from the cache or delivered to the waiter, never lost
// between the two.
type flightTable[K comparable, V any] struct {
	mu      sync.Mutex
	waiters map[K][]waiter[V]
}

func newFlightTable[K comparable, V any]() *flightTable[K, V] {
	return &flightTable[K, V]{waiters: make(map[K][]waiter[V])}
}

// resolveOrAwait returns a cached value when lookup finds one. Otherwise it
// registers w and reports whether the caller is first and must start the work.
func (t *flightTable[K, V]) resolveOrAwait(key K, lookup func() (V, bool), w waiter[V]) (v V, cached bool, first bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if lookup != nil {
		if v, ok := lookup(); ok {
			return v, true, false
		}
	}

	ws, running := t.waiters[key]
	t.waiters[key] = append(ws, w)
	return v, false, !running
}

// settle runs store, then hands v to every waiter of key and clears the
// registration. It returns the number of waiters served.
func (t *flightTable[K, V]) settle(key K, v V, store func()) int {
	t.mu.Lock()
	if store != nil {
		store()
	}
	ws := t.waiters[key]
	delete(t.waiters, key)
	t.mu.Unlock()

	for _, w := range ws {
		fn := w.fn
		orBackground(w.on).Execute(func() { fn(v) })
	}
	return len(ws)
}

func (t *flightTable[K, V]) inFlight(key K) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.waiters[key]
	return ok
}
