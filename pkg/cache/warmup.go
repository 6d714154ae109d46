package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

// Subject is something whose value can be fetched and warmed, typically a
// status provider.
type Subject struct {
	ID   string `json:"id" yaml:"id"`
	Name string `json:"name,omitempty" yaml:"name"`
}

// SubjectKey is the default cache key of a subject: "status:<id>".
func SubjectKey(s Subject) string {
	return CacheKey{Namespace: NamespaceStatus, Subject: s.ID}.String()
}

// Fetcher produces the value of a subject. The cache never inspects it;
// it only decides when to call it.
type Fetcher[T any] func(ctx context.Context, s Subject) (T, error)

// Phase identifies the warmup phase a subject was processed in.
type Phase string

const (
	PhasePriority Phase = "priority"
	PhaseStandard Phase = "standard"
)

// Progress is reported after every completed subject.
type Progress struct {
	Completed int    `json:"completed"`
	Total     int    `json:"total"`
	Subject   string `json:"current_subject"`
	Phase     Phase  `json:"phase"`
}

// ProgressFunc receives warmup progress. Calls are serialized.
type ProgressFunc func(Progress)

// WarmupResult summarizes a warmup run. Errors counts failed Fetcher calls.
type WarmupResult struct {
	TotalWarmed    int           `json:"total_warmed"`
	PriorityWarmed int           `json:"priority_warmed"`
	StandardWarmed int           `json:"standard_warmed"`
	Errors         int           `json:"errors"`
	Duration       time.Duration `json:"duration"`
}

// WarmupOption configures a single warmup run.
type WarmupOption func(*warmupOptions)

type warmupOptions struct {
	progress    ProgressFunc
	concurrency int
}

// WithProgress registers a progress callback.
func WithProgress(fn ProgressFunc) WarmupOption {
	return func(o *warmupOptions) { o.progress = fn }
}

// WithMaxConcurrency overrides Config.WarmupConcurrency for one run.
func WithMaxConcurrency(n int) WarmupOption {
	return func(o *warmupOptions) {
		if n > 0 {
			o.concurrency = n
		}
	}
}

type outcome int

const (
	outcomeWarmed outcome = iota
	outcomeFailed
	outcomeSkipped
)

// warmupRun tracks progress across the phases of one run.
type warmupRun struct {
	mu        sync.Mutex
	completed int
	total     int
	progress  ProgressFunc
}

func (r *warmupRun) done(subject string, phase Phase) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.completed++
	if r.progress != nil {
		r.progress(Progress{
			Completed: r.completed,
			Total:     r.total,
			Subject:   subject,
			Phase:     phase,
		})
	}
}

// WarmupFlat fetches every subject and writes it as a warmup entry.
// Subjects are processed in sequential batches of the warmup concurrency,
// concurrently within a batch. Fetcher failures are logged and counted,
// never returned; the error is non-nil only if ctx is cancelled.
func (c *Cache[T]) WarmupFlat(ctx context.Context, subjects []Subject, fetcher Fetcher[T], opts ...WarmupOption) (WarmupResult, error) {
	start := time.Now()
	o := c.warmupOptions(opts)
	run := &warmupRun{total: len(subjects), progress: o.progress}

	warmed, failed, err := c.warmBatches(ctx, subjects, fetcher, o.concurrency, PhaseStandard, run)
	result := WarmupResult{
		TotalWarmed:    warmed,
		StandardWarmed: warmed,
		Errors:         failed,
		Duration:       time.Since(start),
	}
	c.logWarmup("flat", len(subjects), result, err)
	return result, err
}

// WarmupPriority warms the subjects named in priorityIDs one at a time, in
// priorityIDs order, before any other subject starts. The remaining
// subjects are then warmed as in WarmupFlat. Unknown priority IDs are
// ignored.
func (c *Cache[T]) WarmupPriority(ctx context.Context, subjects []Subject, priorityIDs []string, fetcher Fetcher[T], opts ...WarmupOption) (WarmupResult, error) {
	start := time.Now()
	o := c.warmupOptions(opts)

	priority, standard := splitPriority(subjects, priorityIDs)
	run := &warmupRun{total: len(priority) + len(standard), progress: o.progress}

	var result WarmupResult
	finish := func(err error) (WarmupResult, error) {
		result.TotalWarmed = result.PriorityWarmed + result.StandardWarmed
		result.Duration = time.Since(start)
		c.logWarmup("priority", run.total, result, err)
		return result, err
	}

	for _, s := range priority {
		if err := ctx.Err(); err != nil {
			return finish(err)
		}
		switch c.warmOne(ctx, s, fetcher, PhasePriority, run) {
		case outcomeWarmed:
			result.PriorityWarmed++
		case outcomeFailed:
			result.Errors++
		}
	}

	warmed, failed, err := c.warmBatches(ctx, standard, fetcher, o.concurrency, PhaseStandard, run)
	result.StandardWarmed = warmed
	result.Errors += failed
	return finish(err)
}

func (c *Cache[T]) warmupOptions(opts []WarmupOption) warmupOptions {
	o := warmupOptions{concurrency: c.cfg.WarmupConcurrency}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// warmBatches processes subjects in sequential batches of size, all
// members of a batch concurrently.
func (c *Cache[T]) warmBatches(ctx context.Context, subjects []Subject, fetcher Fetcher[T], size int, phase Phase, run *warmupRun) (int, int, error) {
	var warmed, failed atomic.Int64

	for start := 0; start < len(subjects); start += size {
		if err := ctx.Err(); err != nil {
			return int(warmed.Load()), int(failed.Load()), err
		}

		batch := subjects[start:min(start+size, len(subjects))]
		var g errgroup.Group
		for _, s := range batch {
			g.Go(func() error {
				switch c.warmOne(ctx, s, fetcher, phase, run) {
				case outcomeWarmed:
					warmed.Add(1)
				case outcomeFailed:
					failed.Add(1)
				}
				return nil
			})
		}
		_ = g.Wait()

		c.logger.Debug().
			Str("phase", string(phase)).
			Int("batch_start", start).
			Int("batch_size", len(batch)).
			Int64("warmed", warmed.Load()).
			Int64("failed", failed.Load()).
			Msg("Warmup batch complete")
	}

	return int(warmed.Load()), int(failed.Load()), ctx.Err()
}

// warmOne fetches one subject with the per-call timeout and writes it as a
// warmup entry that remembers how to refresh itself.
func (c *Cache[T]) warmOne(ctx context.Context, s Subject, fetcher Fetcher[T], phase Phase, run *warmupRun) outcome {
	if ctx.Err() != nil {
		return outcomeSkipped
	}

	fetchCtx, cancel := context.WithTimeout(ctx, c.cfg.FetchTimeout)
	value, err := fetcher(fetchCtx, s)
	cancel()

	if err != nil {
		WarmupSubjects.WithLabelValues(string(phase), "error").Inc()
		c.logger.Warn().
			Err(&FetchError{Subject: s.ID, Err: err}).
			Str("subject", s.ID).
			Str("phase", string(phase)).
			Msg("Warmup fetch failed")
		run.done(s.ID, phase)
		return outcomeFailed
	}

	refresh := func(ctx context.Context) (T, error) {
		return fetcher(ctx, s)
	}
	c.write(ctx, c.keyFunc(s), value, c.cfg.WarmupTTL, true, refresh)

	WarmupSubjects.WithLabelValues(string(phase), "ok").Inc()
	run.done(s.ID, phase)
	return outcomeWarmed
}

// splitPriority separates subjects named in priorityIDs (in that order)
// from the rest (in their original order).
func splitPriority(subjects []Subject, priorityIDs []string) ([]Subject, []Subject) {
	byID := make(map[string]Subject, len(subjects))
	for _, s := range subjects {
		if _, seen := byID[s.ID]; !seen {
			byID[s.ID] = s
		}
	}

	selected := make(map[string]bool, len(priorityIDs))
	priority := make([]Subject, 0, len(priorityIDs))
	for _, id := range priorityIDs {
		s, ok := byID[id]
		if !ok || selected[id] {
			continue
		}
		selected[id] = true
		priority = append(priority, s)
	}

	standard := make([]Subject, 0, len(subjects)-len(priority))
	for _, s := range subjects {
		if !selected[s.ID] {
			standard = append(standard, s)
		}
	}
	return priority, standard
}

func (c *Cache[T]) logWarmup(mode string, total int, result WarmupResult, err error) {
	event := c.logger.Info()
	if err != nil {
		event = c.logger.Warn().Err(err)
	}
	event.
		Str("mode", mode).
		Int("subjects", total).
		Int("total_warmed", result.TotalWarmed).
		Int("priority_warmed", result.PriorityWarmed).
		Int("standard_warmed", result.StandardWarmed).
		Int("errors", result.Errors).
		Dur("duration", result.Duration).
		Msg("Warmup complete")
}
