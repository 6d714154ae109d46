package jobs

import (
	"context"
	"fmt"
	"sync"

	"github.com/Sternrassler/statuscache/pkg/cache"
)

// WarmupTaskName is the name of the scheduled warmup task.
const WarmupTaskName = "warmup"

// WarmupTask warms a cache with priority ordering on every run.
type WarmupTask[T any] struct {
	cache       *cache.Cache[T]
	subjects    []cache.Subject
	priorityIDs []string
	fetcher     cache.Fetcher[T]

	mu   sync.Mutex
	last *cache.WarmupResult
}

// NewWarmupTask creates the warmup task.
func NewWarmupTask[T any](c *cache.Cache[T], subjects []cache.Subject, priorityIDs []string, fetcher cache.Fetcher[T]) *WarmupTask[T] {
	return &WarmupTask[T]{
		cache:       c,
		subjects:    subjects,
		priorityIDs: priorityIDs,
		fetcher:     fetcher,
	}
}

// Name implements Task.
func (w *WarmupTask[T]) Name() string {
	return WarmupTaskName
}

// Run implements Task. Individual fetch failures are not errors; a run
// fails only when cancelled or when every subject failed.
func (w *WarmupTask[T]) Run(ctx context.Context) error {
	result, err := w.cache.WarmupPriority(ctx, w.subjects, w.priorityIDs, w.fetcher)

	w.mu.Lock()
	w.last = &result
	w.mu.Unlock()

	if err != nil {
		return fmt.Errorf("warmup: %w", err)
	}
	if len(w.subjects) > 0 && result.TotalWarmed == 0 {
		return fmt.Errorf("warmup: all %d subjects failed", len(w.subjects))
	}
	return nil
}

// LastResult returns the result of the most recent run.
func (w *WarmupTask[T]) LastResult() (cache.WarmupResult, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.last == nil {
		return cache.WarmupResult{}, false
	}
	return *w.last, true
}
