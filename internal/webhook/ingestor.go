// Package webhook ingests provider delivery callbacks and applies them to
// email records.
package webhook

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/courier/internal/email"
	"github.com/dmitrymomot/courier/internal/metrics"
	"github.com/dmitrymomot/courier/pkg/logger"
)

// Per-event results, also used as the metrics label.
const (
	ResultApplied  = "applied"
	ResultLate     = "late"
	ResultNotFound = "not_found"
	ResultIgnored  = "ignored"
	ResultError    = "error"
)

// Summary counts the outcome of one batch. Accepted includes events for
// unknown records and unknown types, which are skipped without error.
type Summary struct {
	Accepted int `json:"accepted"`
	Rejected int `json:"rejected"`
}

// Payload is one inbound delivery. Form is set for form-encoded requests,
// Body holds the raw JSON fallback.
type Payload struct {
	Form url.Values
	URL  string
	Body []byte
}

// Archiver stores raw batches. *storage.Store implements it.
type Archiver interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
}

// Ingestor verifies webhook batches and applies their events.
type Ingestor struct {
	store    email.Store
	archive  Archiver
	metrics  *metrics.Metrics
	log      *slog.Logger
	now      func() time.Time
	handlers map[Kind]handlerFunc
	cfg      Config
}

// Option configures an Ingestor.
type Option func(*Ingestor)

func WithArchive(a Archiver) Option {
	return func(i *Ingestor) { i.archive = a }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(i *Ingestor) { i.metrics = m }
}

func WithLogger(l *slog.Logger) Option {
	return func(i *Ingestor) {
		if l != nil {
			i.log = l
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(i *Ingestor) {
		if now != nil {
			i.now = now
		}
	}
}

func NewIngestor(store email.Store, cfg Config, opts ...Option) *Ingestor {
	if cfg.EventsField == "" {
		cfg.EventsField = "mandrill_events"
	}
	i := &Ingestor{
		store: store,
		cfg:   cfg,
		log:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(i)
	}
	i.handlers = handlers()

	if cfg.Secret == "" {
		i.log.Warn("webhook secret is not configured, signatures will not be verified")
	}
	return i
}

// Ingest authenticates and parses p, then applies every event. It fails only
// with ErrInvalidSignature or ErrMalformedPayload; per-event problems are
// counted in the summary.
func (i *Ingestor) Ingest(ctx context.Context, p Payload, signature string) (Summary, error) {
	if err := i.Verify(p, signature); err != nil {
		return Summary{}, err
	}

	data := p.Body
	if p.Form != nil {
		data = []byte(p.Form.Get(i.cfg.EventsField))
	}

	events, err := ParseEvents(data)
	if err != nil {
		return Summary{}, err
	}

	i.archiveBatch(ctx, data)
	return i.Process(ctx, events), nil
}

// Replay applies an archived batch. The batch was authenticated when it was
// first received.
func (i *Ingestor) Replay(ctx context.Context, data []byte) (Summary, error) {
	events, err := ParseEvents(data)
	if err != nil {
		return Summary{}, err
	}
	return i.Process(ctx, events), nil
}

// Verify checks the request signature against the configured secret.
func (i *Ingestor) Verify(p Payload, signature string) error {
	if i.cfg.Secret == "" {
		i.log.Warn("webhook accepted without signature verification")
		return nil
	}

	var expected string
	if p.Form != nil {
		expected = Sign(i.cfg.Secret, p.URL, p.Form)
	} else {
		expected = SignBody(i.cfg.Secret, p.URL, p.Body)
	}
	if !verify(expected, signature) {
		return ErrInvalidSignature
	}
	return nil
}

// Process applies events one by one. A failing event never aborts the batch.
func (i *Ingestor) Process(ctx context.Context, events []Event) Summary {
	var sum Summary
	for _, e := range events {
		result, err := i.apply(ctx, e)
		i.metrics.WebhookEvent(string(e.Kind), result)
		if err != nil {
			sum.Rejected++
			i.log.WarnContext(ctx, "webhook event not applied",
				slog.String("type", string(e.Kind)),
				slog.String("provider_message_id", e.ID),
				logger.Error(err),
			)
			continue
		}
		sum.Accepted++
	}
	return sum
}

func (i *Ingestor) apply(ctx context.Context, e Event) (string, error) {
	if e.Kind == "" {
		return ResultError, fmt.Errorf("%w: event without type", ErrMalformedPayload)
	}

	handle, ok := i.handlers[e.Kind]
	if !ok {
		i.log.InfoContext(ctx, "unknown webhook event type ignored",
			slog.String("type", string(e.Kind)), slog.String("provider_message_id", e.ID))
		return ResultIgnored, nil
	}

	rec, err := i.lookup(ctx, e)
	if errors.Is(err, email.ErrNotFound) {
		i.log.DebugContext(ctx, "webhook event for unknown message",
			slog.String("type", string(e.Kind)), slog.String("provider_message_id", e.ID))
		return ResultNotFound, nil
	}
	if err != nil {
		return ResultError, err
	}

	at := e.Time(i.now())
	if rec.Status.Terminal() {
		_, err := i.store.Apply(ctx, rec.ID, email.Update{
			Append: map[string]any{email.MetaLateEvents: lateEvent(e, at)},
		})
		if err != nil {
			return ResultError, err
		}
		return ResultLate, nil
	}

	u := handle(e, at)
	if rec.ProviderMessageID == "" && e.ID != "" {
		u.ProviderMessageID = e.ID
	}

	applied, err := i.store.Apply(ctx, rec.ID, u)
	if err != nil {
		return ResultError, err
	}
	if applied.StatusChanged() {
		i.log.DebugContext(ctx, "email status changed",
			slog.String("record_id", rec.ID.String()),
			slog.String("from", applied.Previous.String()),
			slog.String("to", applied.Record.Status.String()),
		)
	}
	return ResultApplied, nil
}

// lookup finds the record by provider id, then by the record id echoed in
// metadata, then by the latest active send of the same event to the same
// recipient.
func (i *Ingestor) lookup(ctx context.Context, e Event) (*email.Record, error) {
	if e.ID != "" {
		rec, err := i.store.FindByProviderID(ctx, e.ID)
		if !errors.Is(err, email.ErrNotFound) {
			return rec, err
		}
	}

	if id, err := uuid.Parse(e.LogID()); err == nil {
		rec, err := i.store.Get(ctx, id)
		if !errors.Is(err, email.ErrNotFound) {
			return rec, err
		}
	}

	if e.Msg.Email != "" && e.EventName() != "" {
		return i.store.FindLatestActive(ctx, e.Msg.Email, e.EventName())
	}
	return nil, email.ErrNotFound
}

func (i *Ingestor) archiveBatch(ctx context.Context, data []byte) {
	if i.archive == nil {
		return
	}
	now := i.now().UTC()
	key := fmt.Sprintf("webhooks/%s/%s.json", now.Format("2006/01/02"), uuid.New())
	if err := i.archive.Put(ctx, key, data, "application/json"); err != nil {
		i.log.WarnContext(ctx, "webhook batch not archived", slog.String("key", key), logger.Error(err))
	}
}

func lateEvent(e Event, at time.Time) map[string]any {
	return map[string]any{
		"event":               string(e.Kind),
		"provider_message_id": e.ID,
		"at":                  at.Format(time.RFC3339),
	}
}
