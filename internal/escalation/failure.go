package escalation

import (
	"time"

	"github.com/google/uuid"
)

// Failure reasons.
const (
	ReasonConfiguration = "configuration"
	ReasonFatal         = "fatal"
	ReasonExhausted     = "attempts_exhausted"
	ReasonDeadline      = "deadline_exceeded"
	ReasonAbandoned     = "abandoned"
)

// Failure describes a send that will not be retried.
type Failure struct {
	At  time.Time
	Err error
	// RecordID is uuid.Nil when the send failed before a record was created.
	RecordID  uuid.UUID
	Event     string
	Recipient string
	Reason    string
	Attempt   int
}

func (f Failure) message() string {
	if f.Err == nil {
		return f.Reason
	}
	return f.Err.Error()
}

// Event is the domain event published for every permanent failure.
type Event struct {
	OccurredAt time.Time `json:"occurred_at"`
	Type       string    `json:"type"`
	RecordID   string    `json:"record_id,omitempty"`
	Event      string    `json:"event_name"`
	Recipient  string    `json:"recipient"`
	Reason     string    `json:"reason"`
	Error      string    `json:"error"`
	Attempt    int       `json:"attempt"`
}

// EventTypeFailed is the type of events built by NewEvent.
const EventTypeFailed = "email.failed"

// NewEvent converts a failure into its domain event.
func NewEvent(f Failure) Event {
	e := Event{
		Type:       EventTypeFailed,
		Event:      f.Event,
		Recipient:  f.Recipient,
		Reason:     f.Reason,
		Error:      f.message(),
		Attempt:    f.Attempt,
		OccurredAt: f.At.UTC(),
	}
	if f.RecordID != uuid.Nil {
		e.RecordID = f.RecordID.String()
	}
	return e
}
