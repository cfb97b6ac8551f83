package job

import (
	"context"
	"errors"
)

// ErrUnhealthy is returned by the readiness check.
var ErrUnhealthy = errors.New("job: unhealthy")

var errNilManager = errors.New("job: nil manager")

// Healthcheck reports a worker as ready once River is running and the shared
// pool answers. An enqueue-only process has no manager and should not
// register this check.
func Healthcheck(m *Manager) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		if m == nil {
			return errors.Join(ErrUnhealthy, errNilManager)
		}

		m.mu.Lock()
		running := m.started
		m.mu.Unlock()
		if !running {
			return errors.Join(ErrUnhealthy, ErrNotStarted)
		}

		if err := m.pool.Ping(ctx); err != nil {
			return errors.Join(ErrUnhealthy, err)
		}
		return nil
	}
}
