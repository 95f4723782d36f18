/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package lrucache

import (
	"errors"
	"fmt"
)

// ErrInvalidCapacity is returned by New and NewWithOpts when the capacity is negative.
var ErrInvalidCapacity = errors.New("capacity must be greater or equal to 0")

// LRUCache represents an LRU cache keyed by strings.
// All operations are O(1) on average.
//
// LRUCache is not safe for concurrent use.
// Callers that share a cache between goroutines must serialize all calls (e.g. with a sync.Mutex)
// or confine the cache to a single owning goroutine.
type LRUCache[V any] struct {
	capacity int

	index map[string]int // map of keys to arena slots
	head  int            // most recently used
	tail  int            // least recently used
	arena arena[V]

	onEvicted func(key string, value V)
}

// Options represents options for the cache.
type Options[V any] struct {
	// OnEvicted is called when an entry is evicted because the cache exceeded its capacity.
	// It is called synchronously from Set, after the entry has been removed from the cache.
	OnEvicted func(key string, value V)
}

// New creates a new LRUCache with the provided capacity.
// Zero capacity is allowed, such a cache never retains anything.
func New[V any](capacity int) (*LRUCache[V], error) {
	return NewWithOpts[V](capacity, Options[V]{})
}

// NewWithOpts creates a new LRUCache with the provided capacity and options.
func NewWithOpts[V any](capacity int, opts Options[V]) (*LRUCache[V], error) {
	if capacity < 0 {
		return nil, fmt.Errorf("%w, got %d", ErrInvalidCapacity, capacity)
	}
	return &LRUCache[V]{
		capacity:  capacity,
		index:     make(map[string]int, capacity+1),
		head:      nilSlot,
		tail:      nilSlot,
		arena:     newArena[V](capacity),
		onEvicted: opts.OnEvicted,
	}, nil
}

// MustNew is like New but panics if the capacity is invalid.
func MustNew[V any](capacity int) *LRUCache[V] {
	c, err := New[V](capacity)
	if err != nil {
		panic(err)
	}
	return c
}

// Set stores the value under the key and marks the entry as the most recently used one.
// If the cache grows over its capacity, the least recently used entry is evicted.
func (c *LRUCache[V]) Set(key string, value V) {
	if idx, ok := c.index[key]; ok {
		c.arena.at(idx).value = value
		c.promote(idx)
		return
	}

	idx := c.arena.alloc(key, value)
	c.index[key] = idx
	c.promote(idx)
	if len(c.index) > c.capacity {
		c.removeOldest()
	}
}

// Get returns the value stored under the key and marks the entry as the most recently used one.
func (c *LRUCache[V]) Get(key string) (value V, ok bool) {
	idx, ok := c.index[key]
	if !ok {
		return value, false
	}
	c.promote(idx)
	return c.arena.at(idx).value, true
}

// Peek returns the value stored under the key without updating its recency.
func (c *LRUCache[V]) Peek(key string) (value V, ok bool) {
	idx, ok := c.index[key]
	if !ok {
		return value, false
	}
	return c.arena.at(idx).value, true
}

// Count returns the number of entries in the cache.
func (c *LRUCache[V]) Count() int {
	return len(c.index)
}

// Capacity returns the maximum number of entries the cache holds.
func (c *LRUCache[V]) Capacity() int {
	return c.capacity
}

// Keys returns keys of all entries ordered from the most recently used to the least recently used.
func (c *LRUCache[V]) Keys() []string {
	keys := make([]string, 0, len(c.index))
	for idx := c.head; idx != nilSlot; idx = c.arena.at(idx).next {
		keys = append(keys, c.arena.at(idx).key)
	}
	return keys
}

// promote moves the entry to the head of the recency chain.
// The entry may be detached (just allocated) or already linked.
func (c *LRUCache[V]) promote(idx int) {
	if c.head == nilSlot {
		c.head, c.tail = idx, idx
		return
	}
	if c.head == idx {
		return
	}

	e := c.arena.at(idx)
	if c.tail == idx {
		c.tail = e.prev
		c.arena.at(c.tail).next = nilSlot
	} else {
		if e.prev != nilSlot {
			c.arena.at(e.prev).next = e.next
		}
		if e.next != nilSlot {
			c.arena.at(e.next).prev = e.prev
		}
	}

	e.prev = nilSlot
	e.next = c.head
	c.arena.at(c.head).prev = idx
	c.head = idx
}

func (c *LRUCache[V]) removeOldest() {
	idx := c.tail
	if idx == nilSlot {
		return
	}

	e := c.arena.at(idx)
	key, value, prev := e.key, e.value, e.prev
	delete(c.index, key)
	if prev != nilSlot {
		c.arena.at(prev).next = nilSlot
	} else {
		c.head = nilSlot
	}
	c.tail = prev
	c.arena.release(idx)

	if c.onEvicted != nil {
		c.onEvicted(key, value)
	}
}
