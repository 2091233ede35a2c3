// Package dedup keeps a bounded memory of recently handled item ids so a
// consumer does not act twice on a redelivered item.
package dedup

import "sync"

const DefaultCapacity = 100

// Cache is a fixed-size recency set with FIFO eviction. It is safe for
// concurrent use.
type Cache struct {
	mu    sync.Mutex
	cap   int
	order []string // ring buffer of remembered ids, oldest at next
	next  int
	ids   map[string]struct{}
}

func New(capacity int) *Cache {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Cache{
		cap:   capacity,
		order: make([]string, 0, capacity),
		ids:   make(map[string]struct{}, capacity),
	}
}

func (c *Cache) Seen(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.ids[id]
	return ok
}

// Remember records id, evicting the oldest entry when full. Remembering an
// id that is already present does not refresh its position.
func (c *Cache) Remember(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rememberLocked(id)
}

// CheckAndRemember reports whether id was already seen and remembers it if
// not, as one atomic step.
func (c *Cache) CheckAndRemember(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.ids[id]; ok {
		return true
	}
	c.rememberLocked(id)
	return false
}

func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.ids)
}

func (c *Cache) rememberLocked(id string) {
	if _, ok := c.ids[id]; ok {
		return
	}
	if len(c.order) < c.cap {
		c.order = append(c.order, id)
	} else {
		delete(c.ids, c.order[c.next])
		c.order[c.next] = id
		c.next = (c.next + 1) % c.cap
	}
	c.ids[id] = struct{}{}
}
