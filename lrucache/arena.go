/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package lrucache

// nilSlot marks an absent link (end of the recency chain or empty cache).
const nilSlot = -1

type entry[V any] struct {
	key   string
	value V
	prev  int
	next  int
}

// arena owns the memory of all cache entries.
// Entries refer to each other by slot index, so there are no pointer cycles
// and a released slot is simply put on the free list for reuse.
type arena[V any] struct {
	slots []entry[V]
	free  []int
}

func newArena[V any](capacity int) arena[V] {
	// One extra slot: Set inserts before it evicts.
	return arena[V]{slots: make([]entry[V], 0, capacity+1)}
}

// alloc places a detached entry into a free slot (or a new one) and returns its index.
func (a *arena[V]) alloc(key string, value V) int {
	e := entry[V]{key: key, value: value, prev: nilSlot, next: nilSlot}
	if n := len(a.free); n > 0 {
		idx := a.free[n-1]
		a.free = a.free[:n-1]
		a.slots[idx] = e
		return idx
	}
	a.slots = append(a.slots, e)
	return len(a.slots) - 1
}

// release returns the slot to the free list.
// The entry is zeroed, so the arena doesn't keep the evicted value reachable.
func (a *arena[V]) release(idx int) {
	a.slots[idx] = entry[V]{prev: nilSlot, next: nilSlot}
	a.free = append(a.free, idx)
}

func (a *arena[V]) at(idx int) *entry[V] {
	return &a.slots[idx]
}

// size returns the number of slots ever allocated (live and free).
func (a *arena[V]) size() int {
	return len(a.slots)
}
