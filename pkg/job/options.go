package job

import (
	"context"
	"log/slog"
)

// config holds job manager configuration.
type config struct {
	registry   taskRegistry
	errs       []error
	queues     map[string]int
	logger     *slog.Logger
	schedules  []scheduleConfig
	maxWorkers int
}

func newConfig() *config {
	return &config{
		registry: newTaskRegistry(),
		queues:   make(map[string]int),
	}
}

func (c *config) addTask(name string, executor taskExecutor) {
	if err := c.registry.register(name, executor); err != nil {
		c.errs = append(c.errs, err)
	}
}

// scheduleConfig holds scheduled task configuration.
//
//nolint:betteralign // all fields contain pointers, no optimization possible
type scheduleConfig struct {
	handler  scheduledHandler
	name     string
	schedule string
}

// scheduledHandler is a function type for scheduled task handlers.
type scheduledHandler func(context.Context) error

// Option configures the job manager.
type Option func(*config)

// WithTask registers a task handler using structural typing.
// P names the payload type decoded from JSON before Handle runs.
//
//	job.WithTask[dispatch.SendPayload](dispatch.NewSendTask(deps, cfg, limits))
func WithTask[P any, T interface {
	Name() string
	Handle(context.Context, P) error
}](task T) Option {
	return func(c *config) {
		c.addTask(task.Name(), newTaskWrapper[P, T](task))
	}
}

// WithScheduledTask registers a periodic task.
// Schedule returns a 5-field cron expression (min hour day month weekday).
//
//	func (s *Sweeper) Name() string     { return "sweep_stuck_sends" }
//	func (s *Sweeper) Schedule() string { return "*/10 * * * *" }
//	func (s *Sweeper) Handle(ctx context.Context) error { ... }
func WithScheduledTask[T interface {
	Name() string
	Schedule() string
	Handle(context.Context) error
}](task T) Option {
	return func(c *config) {
		c.schedules = append(c.schedules, scheduleConfig{
			name:     task.Name(),
			schedule: task.Schedule(),
			handler:  task.Handle,
		})
	}
}

// WithQueue configures a named queue with the given number of workers.
// Non-positive worker counts are ignored.
func WithQueue(name string, workers int) Option {
	return func(c *config) {
		if workers > 0 {
			c.queues[name] = workers
		}
	}
}

// WithLogger sets the logger for job processing. Nil keeps the no-op logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *config) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithMaxWorkers sets the worker count of the default queue (default 100).
func WithMaxWorkers(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.maxWorkers = n
		}
	}
}
