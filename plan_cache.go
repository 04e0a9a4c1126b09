package fusion

import (
	"time"

	"github.com/buildbuildio/fusion/executor"
	"github.com/cespare/xxhash/v2"
	lru "github.com/hashicorp/golang-lru"
)

type cacheEntry struct {
	plan    *executor.OperationExecutionPlan
	expires time.Time
}

// planCache keeps the execution plans of recently seen operations. Entries
// expire after ttl. A nil cache stores nothing.
type planCache struct {
	ttl   time.Duration
	cache *lru.Cache
	now   func() time.Time
}

func newPlanCache(size int, ttl time.Duration) *planCache {
	if size <= 0 {
		return nil
	}
	cache, err := lru.New(size)
	if err != nil {
		return nil
	}
	return &planCache{
		ttl:   ttl,
		cache: cache,
		now:   time.Now,
	}
}

func planKey(query, operationName string) uint64 {
	d := xxhash.New()
	_, _ = d.WriteString(query)
	_, _ = d.WriteString("\x00")
	_, _ = d.WriteString(operationName)
	return d.Sum64()
}

func (c *planCache) get(key uint64) (*executor.OperationExecutionPlan, bool) {
	if c == nil {
		return nil, false
	}
	v, ok := c.cache.Get(key)
	if !ok {
		return nil, false
	}
	entry := v.(cacheEntry)
	if c.ttl > 0 && !c.now().Before(entry.expires) {
		c.cache.Remove(key)
		return nil, false
	}
	return entry.plan, true
}

func (c *planCache) add(key uint64, plan *executor.OperationExecutionPlan) {
	if c == nil {
		return
	}
	c.cache.Add(key, cacheEntry{plan: plan, expires: c.now().Add(c.ttl)})
}

// Len returns the number of cached plans, expired ones included.
func (c *planCache) Len() int {
	if c == nil {
		return 0
	}
	return c.cache.Len()
}
