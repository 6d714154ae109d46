// Package jobs runs named tasks on cron schedules with panic recovery,
// logging, metrics and overlap protection.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// ErrUnknownTask is returned by RunNow for a task that was never added.
var ErrUnknownTask = errors.New("unknown task")

// Task is a unit of scheduled work.
type Task interface {
	Name() string
	Run(ctx context.Context) error
}

// Scheduler runs tasks on cron specs. Specs use the standard five field
// format or descriptors such as "@every 5m".
type Scheduler struct {
	cron   *cron.Cron
	logger zerolog.Logger
	ctx    context.Context
	cancel context.CancelFunc

	mu    sync.Mutex
	tasks map[string]Task
}

// NewScheduler creates a stopped scheduler.
func NewScheduler(logger zerolog.Logger) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	adapter := cronLogger{logger: logger}
	return &Scheduler{
		cron: cron.New(
			cron.WithLogger(adapter),
			cron.WithChain(cron.SkipIfStillRunning(adapter)),
		),
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
		tasks:  make(map[string]Task),
	}
}

// Add registers task under spec. An empty spec registers the task for
// RunNow only.
func (s *Scheduler) Add(spec string, task Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.tasks[task.Name()]; exists {
		return fmt.Errorf("task %s already added", task.Name())
	}

	if spec != "" {
		_, err := s.cron.AddFunc(spec, func() {
			_ = s.execute(s.ctx, task)
		})
		if err != nil {
			return fmt.Errorf("failed to add task %s with spec %s: %w", task.Name(), spec, err)
		}
	}
	s.tasks[task.Name()] = task

	s.logger.Info().
		Str("task", task.Name()).
		Str("spec", spec).
		Bool("scheduled", spec != "").
		Msg("Task registered")
	return nil
}

// RunNow executes a registered task synchronously, outside its schedule.
func (s *Scheduler) RunNow(ctx context.Context, name string) error {
	s.mu.Lock()
	task, ok := s.tasks[name]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTask, name)
	}
	return s.execute(ctx, task)
}

// Start begins the cron scheduler.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop cancels running tasks and waits for them to return.
func (s *Scheduler) Stop() {
	s.cancel()
	<-s.cron.Stop().Done()
}

// execute runs task with recovery, logging and metrics.
func (s *Scheduler) execute(ctx context.Context, task Task) (err error) {
	name := task.Name()
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().
				Str("task", name).
				Interface("panic", r).
				Str("stack", string(debug.Stack())).
				Msg("Task panicked")
			err = fmt.Errorf("panic recovered: %v", r)
		}

		duration := time.Since(start)
		jobDuration.WithLabelValues(name).Observe(duration.Seconds())
		if err != nil {
			jobRunsTotal.WithLabelValues(name, "error").Inc()
			s.logger.Error().Err(err).Str("task", name).Dur("duration", duration).Msg("Task failed")
			return
		}
		jobRunsTotal.WithLabelValues(name, "ok").Inc()
		s.logger.Info().Str("task", name).Dur("duration", duration).Msg("Task completed")
	}()

	s.logger.Debug().Str("task", name).Msg("Task started")
	return task.Run(ctx)
}

// cronLogger adapts zerolog to cron.Logger.
type cronLogger struct {
	logger zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
