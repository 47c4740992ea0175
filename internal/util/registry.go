package util

import (
	"sync"
)

func mod(a int, b int) int {
	return ((a % b) + b) % b
}

// fixed-size ring-buffer queue of free slot indices
type slotRing struct {
	data	[]int
	head	int // next slot to write to
	cnt 	int
}

func createSlotRing(size int) slotRing {
	r := slotRing {
		head: 	0,
		cnt: 	0,
		data: 	make([]int, size),
	}
	for i := range size {
		r.push(i)
	}
	return r
}

func (r *slotRing) push(val int) {
	if r.cnt == len(r.data) { panic("slot ring overflow") }
	r.data[r.head] = val
	r.head = mod((r.head + 1), len(r.data))
	r.cnt++
}

func (r *slotRing) pop() (int, bool) {
	if r.cnt == 0 { return 0, false }
	i := mod((r.head - r.cnt), len(r.data))
	r.cnt--
	return r.data[i], true
}

// Registry hands out integer tokens for registered values. A token stays
// valid until Release. Tokens are 1-based so 0 can mean "no token" to callers.
//
// Acquire can run from any goroutine, lookups usually run on the loop
// goroutine, hence the lock.
type Registry[T any] struct {
	mu		sync.Mutex
	free	slotRing
	slots	[]T
	live	[]bool
}

func CreateRegistry[T any](size int) *Registry[T] {
	return &Registry[T] {
		free: 	createSlotRing(size),
		slots: 	make([]T, size),
		live: 	make([]bool, size),
	}
}

// Acquire registers val and returns its token. Returns false when the
// registry is full.
func (r *Registry[T]) Acquire(val T) (int, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	slot, ok := r.free.pop()
	if !ok { return 0, false }
	r.slots[slot] = val
	r.live[slot] = true
	return slot + 1, true
}

func (r *Registry[T]) Release(token int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	slot := token - 1
	if slot < 0 || slot >= len(r.slots) || !r.live[slot] { return }
	var zero T
	r.slots[slot] = zero
	r.live[slot] = false
	r.free.push(slot)
}

func (r *Registry[T]) Get(token int) (T, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	slot := token - 1
	if slot < 0 || slot >= len(r.slots) || !r.live[slot] {
		var zero T
		return zero, false
	}
	return r.slots[slot], true
}

func (r *Registry[T]) Live() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.slots) - r.free.cnt
}

// Each walks every live entry. Used for drain-on-close paths; the callback
// must not touch the registry.
func (r *Registry[T]) Each(fn func(token int, val T)) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for slot, ok := range r.live {
		if ok { fn(slot + 1, r.slots[slot]) }
	}
}
