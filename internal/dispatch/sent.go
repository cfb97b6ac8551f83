package dispatch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/courier/internal/email"
	"github.com/dmitrymomot/courier/internal/metrics"
	"github.com/dmitrymomot/courier/pkg/job"
)

// SentTaskName is the job task that stores a provider acceptance the send
// task could not write.
const SentTaskName = "record_email_sent"

// SentPayload is a provider acceptance waiting to be stored.
type SentPayload struct {
	SentAt            time.Time `json:"sent_at"`
	ProviderMessageID string    `json:"provider_message_id"`
	Event             string    `json:"event_name"`
	Attempt           int       `json:"attempt"`
	RecordID          uuid.UUID `json:"record_id"`
}

func (p SentPayload) update() email.Update {
	return email.Update{
		Status:            email.StatusSent,
		ProviderMessageID: p.ProviderMessageID,
		SentAt:            &p.SentAt,
		Append:            map[string]any{email.MetaAttempts: attemptEntry(p.Attempt, metrics.OutcomeSent, nil, p.SentAt)},
	}
}

func sentEnqueueOptions(cfg Config, p SentPayload) []job.EnqueueOption {
	return []job.EnqueueOption{
		job.InQueue(cfg.Queue),
		job.UniqueKey(fmt.Sprintf("sent:%s:%d", p.RecordID, p.Attempt)),
		job.UniqueFor(cfg.MaxAge),
		job.MaxAttempts(cfg.JobMaxAttempts),
		job.Tags("email"),
	}
}

// RecordSentTask applies a stored acceptance. Errors go back to River, which
// retries the update; the message itself is never sent again.
type RecordSentTask struct {
	store email.Store
	log   *slog.Logger
}

func NewRecordSentTask(store email.Store, log *slog.Logger) *RecordSentTask {
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &RecordSentTask{store: store, log: log}
}

func (t *RecordSentTask) Name() string { return SentTaskName }

func (t *RecordSentTask) Handle(ctx context.Context, p SentPayload) error {
	applied, err := t.store.Apply(ctx, p.RecordID, p.update())
	switch {
	case errors.Is(err, email.ErrNotFound):
		return job.Permanent(err)
	case err != nil:
		return fmt.Errorf("dispatch: record sent: %w", err)
	}

	t.log.InfoContext(ctx, "email sent recorded",
		slog.String("record_id", p.RecordID.String()),
		slog.String("provider_message_id", p.ProviderMessageID),
		slog.String("status", applied.Record.Status.String()),
	)
	return nil
}
