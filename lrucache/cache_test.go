/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package lrucache

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLRUCache(t *testing.T) {
	tests := []struct {
		name     string
		capacity int
		fn       func(t *testing.T, cache *LRUCache[string])
	}{
		{
			name:     "zero capacity never retains entries",
			capacity: 0,
			fn: func(t *testing.T, cache *LRUCache[string]) {
				cache.Set("0", "arst")
				requireConsistent(t, cache)
				requireAbsent(t, cache, "0")
				requireAbsent(t, cache, "1")
				require.Equal(t, 0, cache.Count())
			},
		},
		{
			name:     "capacity 1, overwrite and evict",
			capacity: 1,
			fn: func(t *testing.T, cache *LRUCache[string]) {
				cache.Set("0", "arst")
				requireValue(t, cache, "0", "arst")

				cache.Set("0", "neio")
				requireValue(t, cache, "0", "neio")
				require.Equal(t, 1, cache.Count())

				cache.Set("1", "qwfp")
				requireAbsent(t, cache, "0")
				requireValue(t, cache, "1", "qwfp")
			},
		},
		{
			name:     "capacity 2, get changes eviction order",
			capacity: 2,
			fn: func(t *testing.T, cache *LRUCache[string]) {
				cache.Set("0", "arst")
				cache.Set("0", "neio")
				cache.Set("1", "qwfp")
				cache.Set("2", "arst")
				requireAbsent(t, cache, "0")
				requireValue(t, cache, "2", "arst")
				requireValue(t, cache, "1", "qwfp")

				cache.Set("3", "arst")
				requireValue(t, cache, "1", "qwfp")
				requireAbsent(t, cache, "2")
				requireValue(t, cache, "3", "arst")
			},
		},
		{
			name:     "capacity 3, fill then overflow",
			capacity: 3,
			fn: func(t *testing.T, cache *LRUCache[string]) {
				cache.Set("0", "arst")
				cache.Set("1", "neio")
				cache.Set("2", "qwfp")
				cache.Set("3", "1234")
				requireAbsent(t, cache, "0")
				requireValue(t, cache, "1", "neio")
				requireValue(t, cache, "2", "qwfp")
				requireValue(t, cache, "3", "1234")
				require.Equal(t, 3, cache.Count())
			},
		},
		{
			name:     "overwrite does not grow count",
			capacity: 3,
			fn: func(t *testing.T, cache *LRUCache[string]) {
				cache.Set("0", "arst")
				cache.Set("0", "neio")
				require.Equal(t, 1, cache.Count())
				requireValue(t, cache, "0", "neio")
			},
		},
		{
			name:     "get promotes recency",
			capacity: 3,
			fn: func(t *testing.T, cache *LRUCache[string]) {
				cache.Set("0", "arst")
				cache.Set("1", "neio")
				cache.Set("2", "qwfp")
				requireValue(t, cache, "0", "arst")
				requireValue(t, cache, "2", "qwfp")

				cache.Set("3", "1234")
				requireValue(t, cache, "0", "arst")
				requireAbsent(t, cache, "1")
				requireValue(t, cache, "2", "qwfp")
				requireValue(t, cache, "3", "1234")
			},
		},
		{
			name:     "set on existing key promotes recency",
			capacity: 2,
			fn: func(t *testing.T, cache *LRUCache[string]) {
				cache.Set("0", "arst")
				cache.Set("1", "neio")
				cache.Set("0", "qwfp")
				require.Equal(t, []string{"0", "1"}, cache.Keys())

				cache.Set("2", "1234")
				requireAbsent(t, cache, "1")
				requireValue(t, cache, "0", "qwfp")
			},
		},
		{
			name:     "promote tail, middle and head",
			capacity: 4,
			fn: func(t *testing.T, cache *LRUCache[string]) {
				for _, k := range []string{"a", "b", "c", "d"} {
					cache.Set(k, k)
				}
				require.Equal(t, []string{"d", "c", "b", "a"}, cache.Keys())

				requireValue(t, cache, "a", "a") // tail
				require.Equal(t, []string{"a", "d", "c", "b"}, cache.Keys())

				requireValue(t, cache, "c", "c") // middle
				require.Equal(t, []string{"c", "a", "d", "b"}, cache.Keys())

				requireValue(t, cache, "c", "c") // head
				require.Equal(t, []string{"c", "a", "d", "b"}, cache.Keys())
			},
		},
		{
			name:     "miss does not change recency",
			capacity: 2,
			fn: func(t *testing.T, cache *LRUCache[string]) {
				cache.Set("0", "arst")
				cache.Set("1", "neio")
				requireAbsent(t, cache, "2")
				require.Equal(t, []string{"1", "0"}, cache.Keys())
			},
		},
		{
			name:     "peek does not change recency",
			capacity: 2,
			fn: func(t *testing.T, cache *LRUCache[string]) {
				cache.Set("0", "arst")
				cache.Set("1", "neio")

				val, ok := cache.Peek("0")
				require.True(t, ok)
				require.Equal(t, "arst", val)
				_, ok = cache.Peek("2")
				require.False(t, ok)

				cache.Set("2", "qwfp")
				requireAbsent(t, cache, "0")
			},
		},
		{
			name:     "keys are not normalized",
			capacity: 3,
			fn: func(t *testing.T, cache *LRUCache[string]) {
				cache.Set("key", "lower")
				cache.Set("KEY", "upper")
				cache.Set(" key ", "padded")
				require.Equal(t, 3, cache.Count())
				requireValue(t, cache, "key", "lower")
				requireValue(t, cache, "KEY", "upper")
				requireValue(t, cache, " key ", "padded")
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cache, err := New[string](tt.capacity)
			require.NoError(t, err)
			require.Equal(t, tt.capacity, cache.Capacity())
			tt.fn(t, cache)
			requireConsistent(t, cache)
		})
	}
}

func TestNew(t *testing.T) {
	for _, capacity := range []int{-1, -100} {
		cache, err := New[int](capacity)
		require.ErrorIs(t, err, ErrInvalidCapacity)
		require.Nil(t, cache)
	}
	require.Panics(t, func() { MustNew[int](-1) })

	cache := MustNew[int](0)
	require.Equal(t, 0, cache.Count())
	require.Empty(t, cache.Keys())
}

func TestLRUCache_OnEvicted(t *testing.T) {
	type evicted struct {
		key   string
		value int
	}
	var got []evicted
	cache, err := NewWithOpts[int](2, Options[int]{OnEvicted: func(key string, value int) {
		got = append(got, evicted{key, value})
	}})
	require.NoError(t, err)

	cache.Set("a", 1)
	cache.Set("b", 2)
	cache.Set("a", 10) // update, no eviction
	require.Empty(t, got)

	cache.Set("c", 3)
	require.Equal(t, []evicted{{"b", 2}}, got)

	_, ok := cache.Get("a")
	require.True(t, ok)
	cache.Set("d", 4)
	require.Equal(t, []evicted{{"b", 2}, {"c", 3}}, got)

	t.Run("callback sees the cache without the evicted entry", func(t *testing.T) {
		var c *LRUCache[int]
		c, err = NewWithOpts[int](1, Options[int]{OnEvicted: func(key string, _ int) {
			_, found := c.Peek(key)
			assert.False(t, found)
			assert.Equal(t, 1, c.Count())
		}})
		require.NoError(t, err)
		c.Set("x", 1)
		c.Set("y", 2)
	})

	t.Run("zero capacity evicts the just inserted entry", func(t *testing.T) {
		var keys []string
		c, err := NewWithOpts[int](0, Options[int]{OnEvicted: func(key string, _ int) {
			keys = append(keys, key)
		}})
		require.NoError(t, err)
		c.Set("x", 1)
		c.Set("x", 2)
		require.Equal(t, []string{"x", "x"}, keys)
	})
}

func TestLRUCache_ArenaReusesSlots(t *testing.T) {
	const capacity = 3
	cache := MustNew[[]byte](capacity)
	for i := 0; i < 100; i++ {
		cache.Set(fmt.Sprintf("key:%d", i), make([]byte, 16))
		require.LessOrEqual(t, cache.arena.size(), capacity+1)
	}
	require.Equal(t, capacity, cache.Count())

	// Released slots must not keep evicted values reachable.
	for _, idx := range cache.arena.free {
		require.Nil(t, cache.arena.at(idx).value)
		require.Empty(t, cache.arena.at(idx).key)
	}
}

// TestLRUCache_Model runs random operation sequences against a naive reference implementation.
func TestLRUCache_Model(t *testing.T) {
	keySpace := []string{"k0", "k1", "k2", "k3", "k4", "k5", "k6", "k7"}

	for capacity := 0; capacity <= 5; capacity++ {
		capacity := capacity
		t.Run(fmt.Sprintf("capacity %d", capacity), func(t *testing.T) {
			rnd := rand.New(rand.NewSource(int64(capacity) + 42)) //nolint:gosec // reproducible sequence
			m := newModel(capacity)

			var evicted []string
			cache, err := NewWithOpts[int](capacity, Options[int]{OnEvicted: func(key string, value int) {
				evicted = append(evicted, key)
				assert.Equal(t, m.evictedValue, value)
			}})
			require.NoError(t, err)

			for i := 0; i < 2000; i++ {
				key := keySpace[rnd.Intn(len(keySpace))]
				if rnd.Intn(2) == 0 {
					wantEvicted := m.set(key, i)
					evicted = nil
					cache.Set(key, i)
					require.Equal(t, wantEvicted, evicted, "op %d: set %q", i, key)

					val, ok := cache.Peek(key)
					if capacity > 0 {
						require.True(t, ok, "op %d: just set key %q must be present", i, key)
						require.Equal(t, i, val)
					} else {
						require.False(t, ok)
					}
				} else {
					wantVal, wantOK := m.get(key)
					val, ok := cache.Get(key)
					require.Equal(t, wantOK, ok, "op %d: get %q", i, key)
					require.Equal(t, wantVal, val, "op %d: get %q", i, key)
				}

				require.Equal(t, m.keys(), cache.Keys(), "op %d", i)
				require.Equal(t, len(m.order), cache.Count())
				require.LessOrEqual(t, cache.Count(), capacity)
				require.LessOrEqual(t, cache.arena.size(), capacity+1)
				requireConsistent(t, cache)
			}
		})
	}
}

// model is a slice-based LRU used as an oracle: order[0] is the most recently used key.
type model struct {
	capacity     int
	order        []string
	values       map[string]int
	evictedValue int
}

func newModel(capacity int) *model {
	return &model{capacity: capacity, values: make(map[string]int)}
}

func (m *model) touch(key string) {
	for i, k := range m.order {
		if k == key {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	m.order = append([]string{key}, m.order...)
}

func (m *model) set(key string, value int) (evicted []string) {
	m.values[key] = value
	m.touch(key)
	if len(m.order) > m.capacity {
		oldest := m.order[len(m.order)-1]
		m.order = m.order[:len(m.order)-1]
		m.evictedValue = m.values[oldest]
		delete(m.values, oldest)
		evicted = append(evicted, oldest)
	}
	return evicted
}

func (m *model) get(key string) (int, bool) {
	v, ok := m.values[key]
	if ok {
		m.touch(key)
	}
	return v, ok
}

func (m *model) keys() []string {
	return append([]string{}, m.order...)
}

func requireValue(t *testing.T, cache *LRUCache[string], key, want string) {
	t.Helper()
	val, ok := cache.Get(key)
	require.True(t, ok, "key %q should be present", key)
	require.Equal(t, want, val)
	requireConsistent(t, cache)
}

func requireAbsent(t *testing.T, cache *LRUCache[string], key string) {
	t.Helper()
	val, ok := cache.Get(key)
	require.False(t, ok, "key %q should be absent", key)
	require.Empty(t, val)
	requireConsistent(t, cache)
}

// requireConsistent walks the recency chain in both directions and checks it against the index.
func requireConsistent[V any](t *testing.T, c *LRUCache[V]) {
	t.Helper()

	if len(c.index) == 0 {
		require.Equal(t, nilSlot, c.head)
		require.Equal(t, nilSlot, c.tail)
		return
	}
	require.NotEqual(t, nilSlot, c.head)
	require.NotEqual(t, nilSlot, c.tail)
	require.Equal(t, nilSlot, c.arena.at(c.head).prev)
	require.Equal(t, nilSlot, c.arena.at(c.tail).next)
	if c.capacity > 0 {
		require.LessOrEqual(t, len(c.index), c.capacity)
	}

	seen := make(map[int]bool, len(c.index))
	prev := nilSlot
	for idx := c.head; idx != nilSlot; idx = c.arena.at(idx).next {
		require.False(t, seen[idx], "cycle at slot %d", idx)
		seen[idx] = true
		e := c.arena.at(idx)
		require.Equal(t, prev, e.prev, "broken back link at slot %d", idx)
		indexed, ok := c.index[e.key]
		require.True(t, ok, "key %q is linked but not indexed", e.key)
		require.Equal(t, idx, indexed)
		prev = idx
	}
	require.Equal(t, c.tail, prev)
	require.Len(t, seen, len(c.index))

	backward := 0
	for idx := c.tail; idx != nilSlot; idx = c.arena.at(idx).prev {
		backward++
		require.LessOrEqual(t, backward, len(c.index))
	}
	require.Equal(t, len(c.index), backward)
}
