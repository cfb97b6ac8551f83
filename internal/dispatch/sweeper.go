package dispatch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/dmitrymomot/courier/internal/email"
	"github.com/dmitrymomot/courier/internal/escalation"
	"github.com/dmitrymomot/courier/pkg/logger"
)

// SweepTaskName is the periodic task that fails abandoned sends.
const SweepTaskName = "sweep_stuck_sends"

// ErrAbandoned is the failure cause of records no worker finished in time.
var ErrAbandoned = errors.New("dispatch: send abandoned")

// Sweeper escalates records left in queued or sending past their deadline,
// e.g. after a worker crashed mid-attempt and the job was discarded.
type Sweeper struct {
	store     email.Store
	escalator Escalator
	log       *slog.Logger
	now       func() time.Time
	cfg       Config
}

func NewSweeper(store email.Store, escalator Escalator, cfg Config, log *slog.Logger) *Sweeper {
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Sweeper{store: store, escalator: escalator, cfg: cfg, log: log, now: time.Now}
}

func (s *Sweeper) Name() string     { return SweepTaskName }
func (s *Sweeper) Schedule() string { return s.cfg.SweepSchedule }

// Handle escalates one batch of stale records.
func (s *Sweeper) Handle(ctx context.Context) error {
	before := s.now().Add(-(s.cfg.MaxAge + s.cfg.SweepGrace))
	stale, err := s.store.ListStale(ctx,
		[]email.Status{email.StatusQueued, email.StatusSending}, before, s.cfg.SweepBatch)
	if err != nil {
		return fmt.Errorf("dispatch: list stale records: %w", err)
	}

	for _, rec := range stale {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := s.escalator.Escalate(ctx, escalation.Failure{
			RecordID:  rec.ID,
			Event:     rec.EventName,
			Recipient: rec.RecipientEmail,
			Reason:    escalation.ReasonAbandoned,
			Attempt:   attemptsOf(rec),
			Err:       fmt.Errorf("%w: no progress since %s", ErrAbandoned, rec.UpdatedAt.Format(time.RFC3339)),
			At:        s.now(),
		})
		if err != nil {
			s.log.WarnContext(ctx, "failure escalation returned errors",
				slog.String("record_id", rec.ID.String()), logger.Error(err))
		}
	}

	if len(stale) > 0 {
		s.log.InfoContext(ctx, "stale sends escalated", slog.Int("count", len(stale)))
	}
	return nil
}

func attemptsOf(rec *email.Record) int {
	if list, ok := rec.Metadata[email.MetaAttempts].([]any); ok {
		return len(list)
	}
	return 0
}
