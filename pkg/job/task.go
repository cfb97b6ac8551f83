package job

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"slices"
)

// taskExecutor runs a task from its stored JSON payload.
type taskExecutor interface {
	Execute(ctx context.Context, payload json.RawMessage) error
}

// taskRegistry maps task names to executors. It is filled by options before
// the River client exists and is read-only afterwards.
type taskRegistry map[string]taskExecutor

func newTaskRegistry() taskRegistry {
	return make(taskRegistry)
}

// register adds an executor. Two tasks sharing a name would silently steal
// each other's jobs, so a second registration is an error.
func (r taskRegistry) register(name string, executor taskExecutor) error {
	if name == "" {
		return fmt.Errorf("%w: empty task name", ErrInvalidTask)
	}
	if _, exists := r[name]; exists {
		return fmt.Errorf("%w: %s registered twice", ErrInvalidTask, name)
	}
	r[name] = executor
	return nil
}

func (r taskRegistry) get(name string) (taskExecutor, bool) {
	executor, ok := r[name]
	return executor, ok
}

// names returns the registered task names in sorted order.
func (r taskRegistry) names() []string {
	return slices.Sorted(maps.Keys(r))
}

type taskWrapper[P any, T interface {
	Name() string
	Handle(context.Context, P) error
}] struct {
	task T
}

// Execute decodes the payload and calls the typed handler. A payload that does
// not decode never will, so the failure is permanent.
func (w *taskWrapper[P, T]) Execute(ctx context.Context, raw json.RawMessage) error {
	var payload P
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &payload); err != nil {
			return Permanent(errors.Join(ErrInvalidPayload, err))
		}
	}
	return w.task.Handle(ctx, payload)
}

func newTaskWrapper[P any, T interface {
	Name() string
	Handle(context.Context, P) error
}](task T) *taskWrapper[P, T] {
	return &taskWrapper[P, T]{task: task}
}
