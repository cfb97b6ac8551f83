package dispatch

import (
	"fmt"
	"slices"
	"time"
)

// Config controls send jobs.
type Config struct {
	// Backoff is the delay before each retry: Backoff[0] after the first failed
	// attempt, and so on. The last value repeats when attempts outnumber it.
	Backoff         []time.Duration `env:"SEND_BACKOFF" envSeparator:"," envDefault:"60s,300s,900s"`
	Queue           string          `env:"SEND_QUEUE" envDefault:"email"`
	// Queues are the extra queues a request may pick. Workers poll these and
	// Queue; a request naming any other queue is rejected.
	Queues          []string        `env:"SEND_QUEUES" envSeparator:","`
	SweepSchedule   string          `env:"SEND_SWEEP_SCHEDULE" envDefault:"*/10 * * * *"`
	MaxAttempts     int             `env:"SEND_MAX_ATTEMPTS" envDefault:"3"`
	MaxAge          time.Duration   `env:"SEND_MAX_AGE" envDefault:"1h"`
	ProviderTimeout time.Duration   `env:"SEND_PROVIDER_TIMEOUT" envDefault:"30s"`
	SweepGrace      time.Duration   `env:"SEND_SWEEP_GRACE" envDefault:"15m"`
	SweepBatch      int             `env:"SEND_SWEEP_BATCH" envDefault:"100"`
	QueueWorkers    int             `env:"SEND_QUEUE_WORKERS" envDefault:"20"`
	// JobMaxAttempts bounds River's own retries, which only happen when the
	// handler hits an infrastructure error (database, Redis, queue).
	JobMaxAttempts int `env:"SEND_JOB_MAX_ATTEMPTS" envDefault:"10"`
}

// Validate rejects settings the send job cannot work with.
func (c Config) Validate() error {
	switch {
	case c.MaxAttempts <= 0:
		return fmt.Errorf("%w: max attempts must be positive", ErrInvalidConfig)
	case len(c.Backoff) == 0:
		return fmt.Errorf("%w: backoff sequence is empty", ErrInvalidConfig)
	case c.MaxAge <= 0:
		return fmt.Errorf("%w: max age must be positive", ErrInvalidConfig)
	case c.ProviderTimeout <= 0:
		return fmt.Errorf("%w: provider timeout must be positive", ErrInvalidConfig)
	case c.Queue == "":
		return fmt.Errorf("%w: queue name is empty", ErrInvalidConfig)
	}
	for _, q := range c.Queues {
		if q == "" {
			return fmt.Errorf("%w: empty name in extra queues", ErrInvalidConfig)
		}
	}
	for i, d := range c.Backoff {
		if d <= 0 {
			return fmt.Errorf("%w: backoff[%d] must be positive", ErrInvalidConfig, i)
		}
		if i > 0 && d < c.Backoff[i-1] {
			return fmt.Errorf("%w: backoff must not decrease", ErrInvalidConfig)
		}
	}
	return nil
}

// backoff returns the delay after the given failed attempt (1-based).
func (c Config) backoff(attempt int) time.Duration {
	i := min(max(attempt-1, 0), len(c.Backoff)-1)
	return c.Backoff[i]
}

// WorkerQueues lists every queue send jobs may be routed to.
func (c Config) WorkerQueues() []string {
	queues := []string{c.Queue}
	for _, q := range c.Queues {
		if !slices.Contains(queues, q) {
			queues = append(queues, q)
		}
	}
	return queues
}
