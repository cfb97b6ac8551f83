package webhook

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"time"
)

// Kind is a provider event type.
type Kind string

const (
	KindSend       Kind = "send"
	KindDelivered  Kind = "delivered"
	KindDeferral   Kind = "deferral"
	KindHardBounce Kind = "hard_bounce"
	KindSoftBounce Kind = "soft_bounce"
	KindOpen       Kind = "open"
	KindClick      Kind = "click"
	KindSpam       Kind = "spam"
	KindUnsub      Kind = "unsub"
	KindReject     Kind = "reject"
)

// Event is one provider callback.
type Event struct {
	Location  any             `json:"location,omitempty"`
	Kind      Kind            `json:"event"`
	ID        string          `json:"_id"`
	IP        string          `json:"ip,omitempty"`
	UserAgent string          `json:"user_agent,omitempty"`
	URL       string          `json:"url,omitempty"`
	Msg       Message         `json:"msg"`
	Raw       json.RawMessage `json:"-"`
	TS        float64         `json:"ts"`
}

// Message is the provider's view of the message an event refers to.
type Message struct {
	Metadata          map[string]any `json:"metadata,omitempty"`
	Reject            *Reject        `json:"reject,omitempty"`
	Email             string         `json:"email,omitempty"`
	State             string         `json:"state,omitempty"`
	Diag              string         `json:"diag,omitempty"`
	BounceDescription string         `json:"bounce_description,omitempty"`
}

type Reject struct {
	Reason string `json:"reason"`
}

// Time converts the event timestamp; a missing timestamp yields fallback.
func (e Event) Time(fallback time.Time) time.Time {
	if e.TS <= 0 {
		return fallback.UTC()
	}
	sec, frac := math.Modf(e.TS)
	return time.Unix(int64(sec), int64(frac*1e9)).UTC()
}

// LogID is the record id echoed back from message metadata.
func (e Event) LogID() string { return e.metaString("log_id") }

// EventName is the event name echoed back from message metadata.
func (e Event) EventName() string { return e.metaString("event_name") }

func (e Event) metaString(key string) string {
	s, _ := e.Msg.Metadata[key].(string)
	return s
}

// RejectReason is the reject reason, if any.
func (e Event) RejectReason() string {
	if e.Msg.Reject == nil {
		return ""
	}
	return e.Msg.Reject.Reason
}

// ParseEvents decodes a JSON array of events. Elements that are not valid
// events are returned with an empty Kind and their raw bytes, so one bad
// element does not reject the batch.
func ParseEvents(data []byte) ([]Event, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || data[0] != '[' {
		return nil, fmt.Errorf("%w: expected a JSON array", ErrMalformedPayload)
	}

	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedPayload, err)
	}

	events := make([]Event, len(raw))
	for i, r := range raw {
		var e Event
		if err := json.Unmarshal(r, &e); err != nil {
			e = Event{}
		}
		e.Raw = r
		events[i] = e
	}
	return events, nil
}
