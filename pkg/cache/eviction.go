package cache

import (
	"sort"

	"github.com/dustin/go-humanize"
)

// evictLocked enforces the memory budget. When usage exceeds it, entries
// are removed in ascending score order until usage drops to
// evictionTarget of the budget.
//
// This is an O(n log n) scan over all entries.
func (c *Cache[T]) evictLocked() {
	budget := c.cfg.maxBytes()
	if c.memory <= budget {
		return
	}

	type candidate struct {
		key   string
		score int64
	}
	candidates := make([]candidate, 0, len(c.entries))
	for key, e := range c.entries {
		candidates = append(candidates, candidate{key: key, score: e.score(c.cfg.EvictionHitWeight)})
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score < candidates[j].score
		}
		return candidates[i].key < candidates[j].key
	})

	before := c.memory
	target := int64(float64(budget) * evictionTarget)
	evicted := 0
	for _, cand := range candidates {
		if c.memory <= target {
			break
		}
		c.removeLocked(cand.key)
		c.stats.Evictions++
		CacheEvictions.Inc()
		evicted++
	}

	c.logger.Warn().
		Int("evicted", evicted).
		Str("memory_before", humanize.IBytes(uint64(before))).
		Str("memory_after", humanize.IBytes(uint64(c.memory))).
		Str("memory_budget", humanize.IBytes(uint64(budget))).
		Msg("Memory budget exceeded, evicted entries")
}
