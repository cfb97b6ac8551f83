package dispatch

import (
	"context"
	"fmt"
	"net/mail"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/courier/pkg/mailer"
)

// Request asks for one email to one recipient.
type Request struct {
	Variables map[string]any `json:"variables"`
	Recipient Recipient      `json:"recipient"`
	Event     string         `json:"event_name"`
	Options   Options        `json:"options"`
}

// Recipient is either a known user (UserID, resolved through a Resolver) or an
// ad-hoc address. When both are given, Email wins.
type Recipient struct {
	UserID string `json:"user_id,omitempty"`
	Email  string `json:"email,omitempty"`
	Name   string `json:"name,omitempty"`
}

// Options tune how the send job is queued.
type Options struct {
	Queue    string `json:"queue,omitempty"`
	Priority int    `json:"priority,omitempty"`
}

// Contact is a resolved recipient address.
type Contact struct {
	Email string
	Name  string
}

// Resolver maps user ids to addresses. Implementations return an error
// matching ErrUnknownRecipient for ids they do not know.
type Resolver interface {
	Resolve(ctx context.Context, userID string) (Contact, error)
}

// ResolverFunc adapts a function to Resolver.
type ResolverFunc func(ctx context.Context, userID string) (Contact, error)

func (f ResolverFunc) Resolve(ctx context.Context, userID string) (Contact, error) {
	return f(ctx, userID)
}

// SendPayload is the job payload of one send attempt. It carries all retry
// state, so any worker can pick up the next attempt.
type SendPayload struct {
	FirstEnqueuedAt time.Time      `json:"first_enqueued_at"`
	Variables       map[string]any `json:"variables"`
	Event           string         `json:"event_name"`
	UserID          string         `json:"user_id,omitempty"`
	Email           string         `json:"email"`
	Name            string         `json:"name,omitempty"`
	Queue           string         `json:"queue,omitempty"`
	Attempt         int            `json:"attempt"`
	// Deferrals counts rate limit re-queues of the current attempt.
	Deferrals int       `json:"deferrals,omitempty"`
	Priority  int       `json:"priority,omitempty"`
	RecordID  uuid.UUID `json:"record_id"`
}

// Recipient formats the address for the mailer.
func (p SendPayload) Recipient() string {
	return mailer.Recipient(p.Name, p.Email)
}

func (p SendPayload) uniqueKey() string {
	return fmt.Sprintf("email:%s:%d:%d", p.RecordID, p.Attempt, p.Deferrals)
}

func (p SendPayload) deadline(maxAge time.Duration) time.Time {
	return p.FirstEnqueuedAt.Add(maxAge)
}

// retry returns the payload of the next attempt.
func (p SendPayload) retry() SendPayload {
	p.Attempt++
	p.Deferrals = 0
	return p
}

// deferred returns the payload of the same attempt pushed back by a rate limit.
func (p SendPayload) deferred() SendPayload {
	p.Deferrals++
	return p
}

func validAddress(addr string) bool {
	parsed, err := mail.ParseAddress(addr)
	return err == nil && parsed.Address == addr
}
