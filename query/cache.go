package query

import (
	"container/list"
	"sync"
)

// CompiledQuery is what the cache stores: the dialect-compiled SQL text
// and a template for the parameter slice shape (callers re-derive actual
// parameter values per invocation; only the compiled text is reused).
type CompiledQuery struct {
	SQL    string
	Params []interface{}
}

// CompileCache is a bounded LRU cache from a structural query key to its
// compiled SQL, letting repeatedly-issued queries (e.g. one compiled
// once per handler, executed per request with different parameter
// values) skip recompilation. No TTL: a compiled query is invalid only
// when its Query shape changes, never on a clock.
type CompileCache struct {
	mu      sync.Mutex
	maxSize int
	data    map[string]*list.Element
	order   *list.List // front = most recently used
}

type cacheEntry struct {
	key   string
	value CompiledQuery
}

// NewCompileCache creates a cache holding at most maxSize compiled
// queries.
func NewCompileCache(maxSize int) *CompileCache {
	return &CompileCache{
		maxSize: maxSize,
		data:    make(map[string]*list.Element),
		order:   list.New(),
	}
}

// Get returns the cached compiled query for key, if present.
func (c *CompileCache) Get(key string) (CompiledQuery, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.data[key]
	if !ok {
		return CompiledQuery{}, false
	}
	c.order.MoveToFront(el)
	return el.Value.(*cacheEntry).value, true
}

// Set stores value under key, evicting the least-recently-used entry if
// the cache is at capacity.
func (c *CompileCache) Set(key string, value CompiledQuery) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.data[key]; ok {
		el.Value.(*cacheEntry).value = value
		c.order.MoveToFront(el)
		return
	}

	if c.maxSize > 0 && len(c.data) >= c.maxSize {
		oldest := c.order.Back()
		if oldest != nil {
			c.order.Remove(oldest)
			delete(c.data, oldest.Value.(*cacheEntry).key)
		}
	}

	el := c.order.PushFront(&cacheEntry{key: key, value: value})
	c.data[key] = el
}

// Len reports the number of cached entries.
func (c *CompileCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.data)
}

// Clear empties the cache.
func (c *CompileCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data = make(map[string]*list.Element)
	c.order = list.New()
}
