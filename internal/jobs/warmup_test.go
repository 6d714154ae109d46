package jobs

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"github.com/Sternrassler/statuscache/pkg/cache"
)

func newCache(t *testing.T) *cache.Cache[string] {
	t.Helper()
	c, err := cache.New[string](cache.DefaultConfig(), cache.WithLogger(zerolog.Nop()))
	if err != nil {
		t.Fatalf("cache.New() error = %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestWarmupTask_Run(t *testing.T) {
	c := newCache(t)
	subjects := []cache.Subject{{ID: "a"}, {ID: "b"}, {ID: "c"}}

	task := NewWarmupTask(c, subjects, []string{"b"}, func(ctx context.Context, s cache.Subject) (string, error) {
		if s.ID == "c" {
			return "", errors.New("down")
		}
		return "ok", nil
	})

	if _, ok := task.LastResult(); ok {
		t.Error("LastResult() before first run should report false")
	}

	if err := task.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	result, ok := task.LastResult()
	if !ok {
		t.Fatal("LastResult() missing after run")
	}
	if result.TotalWarmed != 2 || result.PriorityWarmed != 1 || result.Errors != 1 {
		t.Errorf("result = %+v", result)
	}
	if c.Size() != 2 {
		t.Errorf("Size() = %d, want 2", c.Size())
	}
}

func TestWarmupTask_AllFailed(t *testing.T) {
	c := newCache(t)
	task := NewWarmupTask(c, []cache.Subject{{ID: "a"}}, nil, func(ctx context.Context, s cache.Subject) (string, error) {
		return "", errors.New("down")
	})

	if err := task.Run(context.Background()); err == nil {
		t.Error("Run() expected error when every subject failed")
	}
}

func TestWarmupTask_Cancelled(t *testing.T) {
	c := newCache(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	task := NewWarmupTask(c, []cache.Subject{{ID: "a"}}, nil, func(ctx context.Context, s cache.Subject) (string, error) {
		return "ok", nil
	})

	if err := task.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Run() error = %v, want context.Canceled", err)
	}
}

func TestWarmupTask_Scheduled(t *testing.T) {
	c := newCache(t)
	task := NewWarmupTask(c, []cache.Subject{{ID: "a"}}, nil, func(ctx context.Context, s cache.Subject) (string, error) {
		return "ok", nil
	})

	s := NewScheduler(zerolog.Nop())
	defer s.Stop()
	if err := s.Add("*/10 * * * *", task); err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	if err := s.RunNow(context.Background(), WarmupTaskName); err != nil {
		t.Fatalf("RunNow() error = %v", err)
	}
	if c.Size() != 1 {
		t.Errorf("Size() = %d, want 1", c.Size())
	}
}
