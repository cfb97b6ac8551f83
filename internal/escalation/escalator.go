// Package escalation handles sends that will not be retried: it marks the
// record failed, publishes a domain event, alerts operators about critical
// events and raises an hourly threshold alert.
package escalation

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/courier/internal/email"
	"github.com/dmitrymomot/courier/internal/metrics"
	"github.com/dmitrymomot/courier/pkg/logger"
)

// Escalator processes permanent failures.
type Escalator struct {
	store     email.Store
	publisher Publisher
	notifier  Notifier
	counter   *FailureCounter
	metrics   *metrics.Metrics
	log       *slog.Logger
	cfg       Config
}

// Option configures an Escalator.
type Option func(*Escalator)

func WithPublisher(p Publisher) Option {
	return func(e *Escalator) { e.publisher = p }
}

func WithNotifier(n Notifier) Option {
	return func(e *Escalator) { e.notifier = n }
}

func WithCounter(c *FailureCounter) Option {
	return func(e *Escalator) { e.counter = c }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Escalator) { e.metrics = m }
}

func WithLogger(l *slog.Logger) Option {
	return func(e *Escalator) {
		if l != nil {
			e.log = l
		}
	}
}

// New creates an escalator. Without a publisher, events are logged.
func New(store email.Store, cfg Config, opts ...Option) *Escalator {
	e := &Escalator{
		store: store,
		cfg:   cfg,
		log:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.publisher == nil {
		e.publisher = NewLogPublisher(e.log)
	}
	return e
}

// Escalate marks the record failed and runs the side effects. A record that
// already left queued/sending is left alone and nothing is escalated, since
// another worker got there first.
//
// Side-effect errors are logged and returned joined; the record update is
// never rolled back because of them.
func (e *Escalator) Escalate(ctx context.Context, f Failure) error {
	if f.At.IsZero() {
		f.At = time.Now()
	}

	if f.RecordID != uuid.Nil {
		applied, err := e.store.Apply(ctx, f.RecordID, email.Update{
			Status: email.StatusFailed,
			From:   []email.Status{email.StatusQueued, email.StatusSending},
			Error:  f.message(),
			Merge:  map[string]any{"failure_reason": f.Reason},
			Append: map[string]any{email.MetaAttempts: map[string]any{
				"attempt": f.Attempt,
				"outcome": "failed",
				"reason":  f.Reason,
				"error":   f.message(),
				"at":      f.At.UTC().Format(time.RFC3339),
			}},
		})
		switch {
		case errors.Is(err, email.ErrNotFound):
		case err != nil:
			return err
		case !applied.StatusChanged():
			e.log.InfoContext(ctx, "failure not escalated, record already moved on",
				slog.String("record_id", f.RecordID.String()),
				slog.String("status", applied.Record.Status.String()),
			)
			return nil
		}
	}

	e.log.ErrorContext(ctx, "email failed permanently",
		slog.String("record_id", f.RecordID.String()),
		slog.String("event_name", f.Event),
		logger.Email("recipient", f.Recipient),
		slog.Int("attempt", f.Attempt),
		slog.String("reason", f.Reason),
		logger.Error(f.Err),
	)
	e.metrics.EmailFailed(f.Event, f.Reason)

	var errs []error
	if err := e.publisher.Publish(ctx, NewEvent(f)); err != nil {
		errs = append(errs, err)
	}

	if e.cfg.IsCritical(f.Event) {
		subject, body := failureNotice(f)
		if err := e.notify(ctx, subject, body); err != nil {
			errs = append(errs, err)
		}
	}

	if err := e.countFailure(ctx, f); err != nil {
		errs = append(errs, err)
	}

	if err := errors.Join(errs...); err != nil {
		e.log.WarnContext(ctx, "failure escalation incomplete", logger.Error(err))
		return err
	}
	return nil
}

func (e *Escalator) countFailure(ctx context.Context, f Failure) error {
	if e.counter == nil {
		return nil
	}

	count, err := e.counter.Incr(ctx, f.Event, f.At)
	if err != nil {
		return err
	}
	if e.cfg.HourlyThreshold <= 0 || count.Global < int64(e.cfg.HourlyThreshold) {
		return nil
	}

	claimed, err := e.counter.ClaimAlert(ctx, count.Hour)
	if err != nil || !claimed {
		return err
	}

	e.log.ErrorContext(ctx, "email failure threshold exceeded",
		slog.String("hour", count.Hour),
		slog.Int64("failures", count.Global),
		slog.Int("threshold", e.cfg.HourlyThreshold),
	)
	subject, body := thresholdNotice(count.Global, e.cfg.HourlyThreshold, count.Hour)
	return e.notify(ctx, subject, body)
}

func (e *Escalator) notify(ctx context.Context, subject, body string) error {
	if e.notifier == nil {
		return nil
	}
	if e.cfg.NotifyTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.NotifyTimeout)
		defer cancel()
	}
	return e.notifier.Notify(ctx, subject, body)
}
