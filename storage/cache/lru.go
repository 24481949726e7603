// Package cache provides the weight-bounded LRU used to short-circuit
// disk reads. The cache is never authoritative: every entry can be
// re-derived from the index and the append log.
package cache

import (
	"container/list"
	"sync"
)

// Weigher estimates the cost of holding a key/value pair, typically the
// codec-reported serialized size of both.
type Weigher[K comparable, V any] func(key K, value V) int

// WeightedLRU evicts least-recently-used entries once the summed weight
// of cached pairs exceeds capacity. Safe for concurrent use.
type WeightedLRU[K comparable, V any] struct {
	capacity int
	weigher  Weigher[K, V]

	mu     sync.Mutex
	weight int
	items  map[K]*list.Element
	order  *list.List // front = most recently used
}

type entry[K comparable, V any] struct {
	key    K
	value  V
	weight int
}

// NewWeightedLRU creates a cache bounded by total weight.
func NewWeightedLRU[K comparable, V any](capacity int, weigher Weigher[K, V]) *WeightedLRU[K, V] {
	return &WeightedLRU[K, V]{
		capacity: capacity,
		weigher:  weigher,
		items:    make(map[K]*list.Element),
		order:    list.New(),
	}
}

// Insert adds or refreshes a pair. A pair heavier than the whole capacity
// is not cached at all.
func (c *WeightedLRU[K, V]) Insert(key K, value V) {
	w := c.weigher(key, value)

	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[key]; ok {
		ent := elem.Value.(*entry[K, V])
		c.weight += w - ent.weight
		ent.value = value
		ent.weight = w
		c.order.MoveToFront(elem)
	} else {
		if w > c.capacity {
			return
		}
		elem := c.order.PushFront(&entry[K, V]{key: key, value: value, weight: w})
		c.items[key] = elem
		c.weight += w
	}

	for c.weight > c.capacity {
		c.removeOldest()
	}
}

// Find returns the cached value and refreshes its recency.
func (c *WeightedLRU[K, V]) Find(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[key]; ok {
		c.order.MoveToFront(elem)
		return elem.Value.(*entry[K, V]).value, true
	}
	var zero V
	return zero, false
}

// Delete drops a pair if present. Deleting a missing key is a no-op.
func (c *WeightedLRU[K, V]) Delete(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[key]; ok {
		c.weight -= elem.Value.(*entry[K, V]).weight
		c.order.Remove(elem)
		delete(c.items, key)
	}
}

// Exist reports presence without touching recency.
func (c *WeightedLRU[K, V]) Exist(key K) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.items[key]
	return ok
}

// Weight returns the summed weight of cached pairs.
func (c *WeightedLRU[K, V]) Weight() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.weight
}

// Purge empties the cache.
func (c *WeightedLRU[K, V]) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.order.Init()
	c.items = make(map[K]*list.Element)
	c.weight = 0
}

func (c *WeightedLRU[K, V]) removeOldest() {
	oldest := c.order.Back()
	if oldest == nil {
		return
	}
	ent := oldest.Value.(*entry[K, V])
	c.weight -= ent.weight
	c.order.Remove(oldest)
	delete(c.items, ent.key)
}
