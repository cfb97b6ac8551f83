// Package dispatch turns send requests into queued jobs and runs them:
// validation, rate limiting, delivery and retries with backoff.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/courier/internal/metrics"
	"github.com/dmitrymomot/courier/internal/templates"
	"github.com/dmitrymomot/courier/pkg/job"
	"github.com/dmitrymomot/courier/pkg/logger"
)

// TaskName is the job task that performs one send attempt.
const TaskName = "send_email"

// Enqueuer adds jobs. *job.Enqueuer and *job.Manager implement it.
type Enqueuer interface {
	Enqueue(ctx context.Context, name string, payload any, opts ...job.EnqueueOption) error
}

// Accepted confirms a queued send.
type Accepted struct {
	RecordID uuid.UUID `json:"record_id"`
	Event    string    `json:"event_name"`
}

// Dispatcher validates requests and enqueues their first attempt.
type Dispatcher struct {
	registry *templates.Registry
	enqueuer Enqueuer
	resolver Resolver
	metrics  *metrics.Metrics
	log      *slog.Logger
	now      func() time.Time
	cfg      Config
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

func WithResolver(r Resolver) DispatcherOption {
	return func(d *Dispatcher) { d.resolver = r }
}

func WithDispatcherMetrics(m *metrics.Metrics) DispatcherOption {
	return func(d *Dispatcher) { d.metrics = m }
}

func WithDispatcherLogger(l *slog.Logger) DispatcherOption {
	return func(d *Dispatcher) {
		if l != nil {
			d.log = l
		}
	}
}

func WithDispatcherClock(now func() time.Time) DispatcherOption {
	return func(d *Dispatcher) { d.now = now }
}

func NewDispatcher(registry *templates.Registry, enqueuer Enqueuer, cfg Config, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		registry: registry,
		enqueuer: enqueuer,
		cfg:      cfg,
		log:      slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch validates req and enqueues its first attempt. Errors matching
// ErrConfiguration mean the request can never succeed; nothing is enqueued.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) (*Accepted, error) {
	tpl, err := d.registry.Resolve(req.Event)
	if err != nil {
		return nil, err
	}
	if err := templates.Validate(tpl, req.Variables); err != nil {
		return nil, err
	}

	contact, err := d.resolve(ctx, req.Recipient)
	if err != nil {
		return nil, err
	}

	if p := req.Options.Priority; p != 0 && (p < 1 || p > 4) {
		return nil, fmt.Errorf("%w: %w", ErrConfiguration, ErrInvalidPriority)
	}
	if q := req.Options.Queue; q != "" && !slices.Contains(d.cfg.WorkerQueues(), q) {
		return nil, fmt.Errorf("%w: %w: %q", ErrConfiguration, ErrUnknownQueue, q)
	}

	payload := SendPayload{
		RecordID:        uuid.New(),
		Event:           req.Event,
		UserID:          req.Recipient.UserID,
		Email:           contact.Email,
		Name:            contact.Name,
		Variables:       req.Variables,
		Queue:           req.Options.Queue,
		Priority:        req.Options.Priority,
		Attempt:         1,
		FirstEnqueuedAt: d.now().UTC(),
	}

	if err := d.enqueuer.Enqueue(ctx, TaskName, payload, enqueueOptions(d.cfg, payload, 0)...); err != nil {
		return nil, fmt.Errorf("dispatch: enqueue: %w", err)
	}

	d.metrics.EmailEnqueued(req.Event)
	d.log.InfoContext(ctx, "email enqueued",
		slog.String("record_id", payload.RecordID.String()),
		slog.String("event_name", req.Event),
		logger.Email("recipient", contact.Email),
	)

	return &Accepted{RecordID: payload.RecordID, Event: req.Event}, nil
}

func (d *Dispatcher) resolve(ctx context.Context, r Recipient) (Contact, error) {
	contact := Contact{Email: strings.TrimSpace(r.Email), Name: strings.TrimSpace(r.Name)}

	if contact.Email == "" && r.UserID != "" && d.resolver != nil {
		resolved, err := d.resolver.Resolve(ctx, r.UserID)
		switch {
		case errors.Is(err, ErrUnknownRecipient):
			return Contact{}, fmt.Errorf("%w: %w: user %q", ErrConfiguration, ErrUnknownRecipient, r.UserID)
		case err != nil:
			return Contact{}, fmt.Errorf("dispatch: resolve recipient: %w", err)
		}
		contact.Email = resolved.Email
		if contact.Name == "" {
			contact.Name = resolved.Name
		}
	}

	if contact.Email == "" {
		return Contact{}, fmt.Errorf("%w: %w: no email address", ErrConfiguration, ErrInvalidRecipient)
	}
	if !validAddress(contact.Email) {
		return Contact{}, fmt.Errorf("%w: %w: %q", ErrConfiguration, ErrInvalidRecipient, contact.Email)
	}
	return contact, nil
}

func enqueueOptions(cfg Config, p SendPayload, delay time.Duration) []job.EnqueueOption {
	queue := p.Queue
	if queue == "" {
		queue = cfg.Queue
	}

	opts := []job.EnqueueOption{
		job.InQueue(queue),
		job.UniqueKey(p.uniqueKey()),
		job.UniqueFor(cfg.MaxAge),
		job.MaxAttempts(cfg.JobMaxAttempts),
		job.Tags("email"),
		job.ScheduledIn(delay),
	}
	if p.Priority > 0 {
		opts = append(opts, job.Priority(p.Priority))
	}
	return opts
}
