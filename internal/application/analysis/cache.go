package analysis

import (
	"sync"

	domain "github.com/bryanwahyu/analytics-bridge/internal/domain/analysis"
)

const defaultCacheSize = 256

// ResultCache keeps the latest result per session. Entries are stored as
// values and replaced wholesale; callers never see a result change under
// them.
type ResultCache struct {
	mu    sync.RWMutex
	max   int
	items map[int64]domain.Result
	order []int64
}

func NewResultCache(max int) *ResultCache {
	if max <= 0 {
		max = defaultCacheSize
	}
	return &ResultCache{max: max, items: make(map[int64]domain.Result)}
}

func (c *ResultCache) Get(id int64) (domain.Result, bool) {
	if c == nil {
		return domain.Result{}, false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	r, ok := c.items[id]
	return r, ok
}

// Put stores r under its session id. Results without an id are not cached.
func (c *ResultCache) Put(r domain.Result) {
	if c == nil || r.SessionID <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.items[r.SessionID]; !ok {
		c.order = append(c.order, r.SessionID)
		for len(c.order) > c.max {
			delete(c.items, c.order[0])
			c.order = c.order[1:]
		}
	}
	c.items[r.SessionID] = r
}

func (c *ResultCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}
