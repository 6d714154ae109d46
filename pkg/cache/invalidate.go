package cache

import (
	"context"
	"regexp"
	"strings"

	"golang.org/x/sync/errgroup"
)

// DeleteBatch deletes keys in chunks of Config.BatchInvalidationSize. The
// keys of a chunk are deleted concurrently, chunks one after another, so
// a large invalidation never fans out into thousands of backend calls.
func (c *Cache[T]) DeleteBatch(ctx context.Context, keys []string) {
	size := c.cfg.BatchInvalidationSize
	for start := 0; start < len(keys); start += size {
		chunk := keys[start:min(start+size, len(keys))]

		var g errgroup.Group
		for _, key := range chunk {
			g.Go(func() error {
				c.Delete(ctx, key)
				return nil
			})
		}
		_ = g.Wait()
	}

	if len(keys) > 0 {
		c.logger.Debug().Int("keys", len(keys)).Int("chunk_size", size).Msg("Batch delete complete")
	}
}

// InvalidatePattern deletes every local key matching pattern and returns
// how many matched. '*' matches any run of characters and '?' exactly one;
// the pattern must match the whole key. Keys that exist only in the remote
// backend are not found, since the backend is not scanned.
func (c *Cache[T]) InvalidatePattern(ctx context.Context, pattern string) int {
	re := compilePattern(pattern)

	c.mu.Lock()
	matches := make([]string, 0)
	for key := range c.entries {
		if re.MatchString(key) {
			matches = append(matches, key)
		}
	}
	c.mu.Unlock()

	c.DeleteBatch(ctx, matches)

	c.logger.Info().
		Str("pattern", pattern).
		Int("invalidated", len(matches)).
		Msg("Pattern invalidation complete")

	return len(matches)
}

// compilePattern translates a glob-like pattern into an anchored regexp.
// Literal runs are quoted, so it cannot fail to compile.
func compilePattern(pattern string) *regexp.Regexp {
	var b strings.Builder
	b.WriteString("^")

	literal := strings.Builder{}
	flush := func() {
		if literal.Len() > 0 {
			b.WriteString(regexp.QuoteMeta(literal.String()))
			literal.Reset()
		}
	}

	for _, r := range pattern {
		switch r {
		case '*':
			flush()
			b.WriteString(".*")
		case '?':
			flush()
			b.WriteString(".")
		default:
			literal.WriteRune(r)
		}
	}
	flush()
	b.WriteString("$")

	return regexp.MustCompile("(?s)" + b.String())
}
