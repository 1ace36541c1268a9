// Copyright (c) 2026 The OTIS DDS Bridge developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package reactor

import "container/list"

// duplicateCache is the insertion-ordered, capacity-bounded set of recently
// seen interactive packet IDs described in §3: any ID inserted is rejected
// as a duplicate until it is evicted by newer arrivals pushing it out the
// front (I2). It is implemented as the design notes suggest for ordered
// caches: a doubly-linked list for eviction order plus a hash index for
// O(1) membership tests.
type duplicateCache struct {
	capacity int
	order    *list.List
	index    map[uint32]*list.Element
}

func newDuplicateCache(capacity int) *duplicateCache {
	if capacity < 1 {
		capacity = 1
	}
	return &duplicateCache{
		capacity: capacity,
		order:    list.New(),
		index:    make(map[uint32]*list.Element, capacity),
	}
}

// Contains reports whether id is currently held in the cache.
func (c *duplicateCache) Contains(id uint32) bool {
	_, ok := c.index[id]
	return ok
}

// Insert records id as seen, evicting the oldest entry if the cache is now
// over capacity.
func (c *duplicateCache) Insert(id uint32) {
	if c.Contains(id) {
		return
	}
	elem := c.order.PushBack(id)
	c.index[id] = elem
	for c.order.Len() > c.capacity {
		oldest := c.order.Front()
		c.order.Remove(oldest)
		delete(c.index, oldest.Value.(uint32))
	}
}

// Len reports the number of IDs currently cached.
func (c *duplicateCache) Len() int {
	return c.order.Len()
}
