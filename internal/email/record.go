package email

import (
	"context"
	"fmt"
	"net/mail"
	"slices"
	"time"

	"github.com/google/uuid"
)

// Metadata keys written by this service.
const (
	MetaAttempts       = "attempts"
	MetaOpens          = "opens"
	MetaClicks         = "clicks"
	MetaLateEvents     = "late_events"
	MetaBounceType     = "bounce_type"
	MetaBounceReason   = "bounce_reason"
	MetaDiagnostic     = "diagnostic"
	MetaDeferral       = "deferral"
	MetaRejectReason   = "reject_reason"
	MetaDeliveredAt    = "delivered_at"
	MetaUnsubscribedAt = "unsubscribed_at"
	MetaSpamAt         = "spam_at"
)

// Record is one attempted send to one recipient for one event occurrence.
type Record struct {
	CreatedAt         time.Time      `json:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at"`
	SentAt            *time.Time     `json:"sent_at,omitempty"`
	OpenedAt          *time.Time     `json:"opened_at,omitempty"`
	ClickedAt         *time.Time     `json:"clicked_at,omitempty"`
	Metadata          map[string]any `json:"metadata"`
	ProviderMessageID string         `json:"provider_message_id,omitempty"`
	UserID            string         `json:"user_id,omitempty"`
	RecipientEmail    string         `json:"recipient_email"`
	RecipientName     string         `json:"recipient_name,omitempty"`
	EventName         string         `json:"event_name"`
	Status            Status         `json:"status"`
	Error             string         `json:"error,omitempty"`
	OpenCount         int            `json:"open_count"`
	ClickCount        int            `json:"click_count"`
	ID                uuid.UUID      `json:"id"`
}

// Validate checks the fields required to create a record.
func (r *Record) Validate() error {
	switch {
	case r.ID == uuid.Nil:
		return fmt.Errorf("%w: id is required", ErrInvalidRecord)
	case r.EventName == "":
		return fmt.Errorf("%w: event name is required", ErrInvalidRecord)
	case r.RecipientEmail == "":
		return fmt.Errorf("%w: recipient email is required", ErrInvalidRecord)
	case !r.Status.Valid():
		return fmt.Errorf("%w: %w: %q", ErrInvalidRecord, ErrInvalidStatus, r.Status)
	}
	if _, err := mail.ParseAddress(r.RecipientEmail); err != nil {
		return fmt.Errorf("%w: recipient email: %v", ErrInvalidRecord, err)
	}
	return nil
}

// Update describes a change to a record. Each field has fixed semantics:
// timestamps are first-write-wins, counters always increment, metadata only
// grows, and the status moves only when CanTransition allows it.
type Update struct {
	// Merge is shallow-merged into metadata.
	Merge map[string]any
	// Append adds each value to the list stored under its key.
	Append    map[string]any
	SentAt    *time.Time
	OpenedAt  *time.Time
	ClickedAt *time.Time
	// Status is applied only when CanTransition(current, Status). Empty keeps the status.
	Status Status
	// From further restricts the states Status may be applied from.
	From []Status
	// ProviderMessageID is stored only when the record has none yet.
	ProviderMessageID string
	// Error replaces the last error when non-empty.
	Error      string
	OpenCount  int
	ClickCount int
	// MinOpenCount raises open_count to at least this value.
	MinOpenCount int
}

func (u Update) allowedFrom() []Status {
	if u.Status == "" {
		return nil
	}
	allowed := AllowedFrom(u.Status)
	if len(u.From) == 0 {
		return allowed
	}
	return slices.DeleteFunc(allowed, func(s Status) bool {
		return !slices.Contains(u.From, s)
	})
}

// Applied is the outcome of Store.Apply.
type Applied struct {
	Record   *Record
	Previous Status
}

// StatusChanged reports whether the update moved the record to a new status.
func (a *Applied) StatusChanged() bool {
	return a.Record.Status != a.Previous
}

// Store persists email records. Implementations must apply updates
// atomically per record.
type Store interface {
	// Create inserts r. It reports false without error when a record with the
	// same id already exists.
	Create(ctx context.Context, r *Record) (bool, error)
	Get(ctx context.Context, id uuid.UUID) (*Record, error)
	FindByProviderID(ctx context.Context, providerID string) (*Record, error)
	// FindLatestActive returns the most recent non-terminal record sent to
	// recipient for event.
	FindLatestActive(ctx context.Context, recipient, event string) (*Record, error)
	Apply(ctx context.Context, id uuid.UUID, u Update) (*Applied, error)
	// ListStale returns records in one of statuses not updated since before,
	// oldest first.
	ListStale(ctx context.Context, statuses []Status, before time.Time, limit int) ([]*Record, error)
}
