package dispatch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/dmitrymomot/courier/internal/email"
	"github.com/dmitrymomot/courier/internal/escalation"
	"github.com/dmitrymomot/courier/internal/metrics"
	"github.com/dmitrymomot/courier/internal/templates"
	"github.com/dmitrymomot/courier/pkg/job"
	"github.com/dmitrymomot/courier/pkg/logger"
	"github.com/dmitrymomot/courier/pkg/mailer"
	"github.com/dmitrymomot/courier/pkg/ratelimit"
)

// Limiter checks all rules of a send at once.
type Limiter interface {
	Allow(ctx context.Context, rules ...ratelimit.Rule) error
}

// Mailer renders and sends a message, returning the provider message id.
type Mailer interface {
	Send(ctx context.Context, params mailer.SendParams) (string, error)
}

// Escalator handles permanent failures.
type Escalator interface {
	Escalate(ctx context.Context, f escalation.Failure) error
}

// SendTask performs one send attempt. Retries are new jobs carrying the next
// attempt number, scheduled after the configured backoff.
type SendTask struct {
	registry  *templates.Registry
	limiter   Limiter
	mailer    Mailer
	store     email.Store
	enqueuer  Enqueuer
	escalator Escalator
	metrics   *metrics.Metrics
	log       *slog.Logger
	now       func() time.Time
	jitter    func(time.Duration) time.Duration
	limits    RateLimits
	cfg       Config
}

// SendTaskDeps are the collaborators of SendTask.
type SendTaskDeps struct {
	Registry  *templates.Registry
	Limiter   Limiter
	Mailer    Mailer
	Store     email.Store
	Enqueuer  Enqueuer
	Escalator Escalator
	Metrics   *metrics.Metrics
	Logger    *slog.Logger
	// Now defaults to time.Now.
	Now func() time.Time
}

func NewSendTask(deps SendTaskDeps, cfg Config, limits RateLimits) *SendTask {
	t := &SendTask{
		registry:  deps.Registry,
		limiter:   deps.Limiter,
		mailer:    deps.Mailer,
		store:     deps.Store,
		enqueuer:  deps.Enqueuer,
		escalator: deps.Escalator,
		metrics:   deps.Metrics,
		log:       deps.Logger,
		now:       deps.Now,
		jitter:    jitter,
		limits:    limits,
		cfg:       cfg,
	}
	if t.log == nil {
		t.log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if t.now == nil {
		t.now = time.Now
	}
	return t
}

func (t *SendTask) Name() string { return TaskName }

// Handle runs one attempt. It returns nil when the attempt is settled (sent,
// re-queued or escalated), job.Permanent for failures that were escalated, and
// a plain error for infrastructure problems, which River retries with the
// payload unchanged.
func (t *SendTask) Handle(ctx context.Context, p SendPayload) error {
	log := t.log.With(
		slog.String("record_id", p.RecordID.String()),
		slog.String("event_name", p.Event),
		logger.Email("recipient", p.Email),
		slog.Int("attempt", p.Attempt),
	)

	rec, proceed, err := t.ensureRecord(ctx, p)
	if err != nil || !proceed {
		return err
	}

	// The catalog may have changed since the request was accepted.
	tpl, err := t.registry.Resolve(p.Event)
	if err == nil {
		err = templates.Validate(tpl, p.Variables)
	}
	if err != nil {
		return t.fail(ctx, p, escalation.ReasonConfiguration, err)
	}

	if t.now().After(p.deadline(t.cfg.MaxAge)) {
		return t.fail(ctx, p, escalation.ReasonDeadline, ErrDeadlineExceeded)
	}

	if err := t.limiter.Allow(ctx, t.limits.Rules(p.Email, p.Event)...); err != nil {
		var denied *ratelimit.DeniedError
		if !errors.As(err, &denied) {
			return fmt.Errorf("dispatch: check rate limits: %w", err)
		}
		return t.deferSend(ctx, log, p, denied)
	}

	applied, err := t.store.Apply(ctx, rec.ID, email.Update{Status: email.StatusSending})
	if err != nil {
		return fmt.Errorf("dispatch: mark sending: %w", err)
	}
	if applied.Record.Status != email.StatusSending {
		log.InfoContext(ctx, "send skipped, record is no longer pending",
			slog.String("status", applied.Record.Status.String()))
		return nil
	}

	sendCtx, cancel := context.WithTimeout(ctx, t.cfg.ProviderTimeout)
	defer cancel()

	start := time.Now()
	providerID, sendErr := t.mailer.Send(sendCtx, mailer.SendParams{
		To:       p.Recipient(),
		Template: tpl.Name,
		Layout:   tpl.Layout,
		Subject:  tpl.Subject,
		Data:     p.Variables,
		Tags:     messageTags(p, tpl),
	})
	t.metrics.ObserveSend(p.Event, time.Since(start).Seconds())

	if sendErr == nil {
		return t.markSent(ctx, log, p, providerID)
	}

	// The worker is shutting down: leave the record in sending and let River
	// run this job again. No attempt is consumed.
	if ctx.Err() != nil {
		return ctx.Err()
	}

	if mailer.IsFatal(sendErr) {
		return t.fail(ctx, p, escalation.ReasonFatal, sendErr)
	}
	return t.retry(ctx, log, p, sendErr)
}

// ensureRecord creates the record on the first run of an attempt. It reports
// false when an earlier run already settled the record.
func (t *SendTask) ensureRecord(ctx context.Context, p SendPayload) (*email.Record, bool, error) {
	rec := &email.Record{
		ID:             p.RecordID,
		UserID:         p.UserID,
		RecipientEmail: p.Email,
		RecipientName:  p.Name,
		EventName:      p.Event,
		Status:         email.StatusQueued,
		Metadata:       map[string]any{},
	}

	created, err := t.store.Create(ctx, rec)
	if err != nil {
		if errors.Is(err, email.ErrInvalidRecord) {
			return nil, false, t.fail(ctx, p, escalation.ReasonConfiguration, err)
		}
		return nil, false, fmt.Errorf("dispatch: create record: %w", err)
	}
	if created {
		return rec, true, nil
	}

	existing, err := t.store.Get(ctx, p.RecordID)
	if err != nil {
		return nil, false, fmt.Errorf("dispatch: load record: %w", err)
	}
	if existing.Status != email.StatusQueued && existing.Status != email.StatusSending {
		t.log.InfoContext(ctx, "send skipped, record already settled",
			slog.String("record_id", p.RecordID.String()),
			slog.String("status", existing.Status.String()),
		)
		return existing, false, nil
	}
	return existing, true, nil
}

// markSent records the provider acceptance. The message is out, so a failed
// update is never returned to River, which would send it again. Instead the
// update is handed to a RecordSentTask job that River retries on its own.
func (t *SendTask) markSent(ctx context.Context, log *slog.Logger, p SendPayload, providerID string) error {
	sent := SentPayload{
		RecordID:          p.RecordID,
		Event:             p.Event,
		ProviderMessageID: providerID,
		SentAt:            t.now().UTC(),
		Attempt:           p.Attempt,
	}

	t.metrics.SendAttempt(p.Event, metrics.OutcomeSent)

	if _, err := t.store.Apply(ctx, p.RecordID, sent.update()); err != nil {
		log.WarnContext(ctx, "email sent but record update failed, handing off",
			slog.String("provider_message_id", providerID), logger.Error(err))

		if err := t.enqueuer.Enqueue(ctx, SentTaskName, sent, sentEnqueueOptions(t.cfg, sent)...); err != nil {
			log.ErrorContext(ctx, "email sent but record could not be updated",
				slog.String("provider_message_id", providerID), logger.Error(err))
		}
		return nil
	}

	log.InfoContext(ctx, "email sent", slog.String("provider_message_id", providerID))
	return nil
}

func (t *SendTask) retry(ctx context.Context, log *slog.Logger, p SendPayload, sendErr error) error {
	if p.Attempt >= t.cfg.MaxAttempts {
		return t.fail(ctx, p, escalation.ReasonExhausted, sendErr)
	}

	now := t.now()
	delay := t.cfg.backoff(p.Attempt)
	if now.Add(delay).After(p.deadline(t.cfg.MaxAge)) {
		return t.fail(ctx, p, escalation.ReasonDeadline, errors.Join(ErrDeadlineExceeded, sendErr))
	}

	entry := attemptEntry(p.Attempt, metrics.OutcomeRetry, sendErr, now.UTC())
	entry["retry_in"] = delay.String()
	if _, err := t.store.Apply(ctx, p.RecordID, email.Update{
		Status: email.StatusQueued,
		Error:  sendErr.Error(),
		Append: map[string]any{email.MetaAttempts: entry},
	}); err != nil {
		return fmt.Errorf("dispatch: record retry: %w", err)
	}

	next := p.retry()
	if err := t.enqueuer.Enqueue(ctx, TaskName, next, enqueueOptions(t.cfg, next, delay)...); err != nil {
		return fmt.Errorf("dispatch: enqueue retry: %w", err)
	}

	t.metrics.SendAttempt(p.Event, metrics.OutcomeRetry)
	log.WarnContext(ctx, "send failed, retry scheduled",
		slog.Duration("retry_in", delay),
		slog.String("error", sendErr.Error()),
	)
	return nil
}

func (t *SendTask) deferSend(ctx context.Context, log *slog.Logger, p SendPayload, denied *ratelimit.DeniedError) error {
	now := t.now()
	delay := denied.RetryAfter + t.jitter(time.Second)
	limited := fmt.Errorf("%w: %w", ErrRateLimited, denied)

	if now.Add(delay).After(p.deadline(t.cfg.MaxAge)) {
		return t.fail(ctx, p, escalation.ReasonDeadline, errors.Join(ErrDeadlineExceeded, limited))
	}

	entry := attemptEntry(p.Attempt, metrics.OutcomeRateLimited, limited, now.UTC())
	entry["retry_in"] = delay.String()
	if _, err := t.store.Apply(ctx, p.RecordID, email.Update{
		Append: map[string]any{email.MetaAttempts: entry},
	}); err != nil {
		return fmt.Errorf("dispatch: record deferral: %w", err)
	}

	next := p.deferred()
	if err := t.enqueuer.Enqueue(ctx, TaskName, next, enqueueOptions(t.cfg, next, delay)...); err != nil {
		return fmt.Errorf("dispatch: enqueue deferred send: %w", err)
	}

	t.metrics.SendAttempt(p.Event, metrics.OutcomeRateLimited)
	log.WarnContext(ctx, "send rate limited, deferred",
		slog.String("scope", denied.Rule),
		slog.Duration("retry_in", delay),
	)
	return nil
}

func (t *SendTask) fail(ctx context.Context, p SendPayload, reason string, cause error) error {
	t.metrics.SendAttempt(p.Event, metrics.OutcomeFailed)

	err := t.escalator.Escalate(ctx, escalation.Failure{
		RecordID:  p.RecordID,
		Event:     p.Event,
		Recipient: p.Email,
		Reason:    reason,
		Attempt:   p.Attempt,
		Err:       cause,
		At:        t.now(),
	})
	if err != nil {
		t.log.WarnContext(ctx, "failure escalation returned errors",
			slog.String("record_id", p.RecordID.String()), logger.Error(err))
	}
	return job.Permanent(cause)
}

func messageTags(p SendPayload, tpl templates.Template) mailer.Tags {
	tags := mailer.SimpleTags(tpl.Tags...)
	tags["log_id"] = p.RecordID.String()
	tags["event_name"] = p.Event
	return tags
}

func attemptEntry(attempt int, outcome string, err error, at time.Time) map[string]any {
	entry := map[string]any{
		"attempt": attempt,
		"outcome": outcome,
		"at":      at.Format(time.RFC3339),
	}
	if err != nil {
		entry["error"] = err.Error()
	}
	return entry
}

func jitter(limit time.Duration) time.Duration {
	if limit <= 0 {
		return 0
	}
	return rand.N(limit)
}
