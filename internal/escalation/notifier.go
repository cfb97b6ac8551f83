package escalation

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"

	"github.com/google/uuid"

	"github.com/dmitrymomot/courier/pkg/mailer"
)

// ErrNoOperators is returned when a notification has nobody to go to.
var ErrNoOperators = errors.New("escalation: no operator addresses configured")

// Notifier delivers plain-text alerts to operators.
type Notifier interface {
	Notify(ctx context.Context, subject, body string) error
}

// MailNotifier sends operator alerts through its own Sender. It must not share
// the sender used for regular deliveries, so an outage of the delivery
// provider cannot swallow the alerts about it.
type MailNotifier struct {
	sender    mailer.Sender
	operators []string
}

func NewMailNotifier(sender mailer.Sender, operators []string) *MailNotifier {
	return &MailNotifier{sender: sender, operators: operators}
}

func (n *MailNotifier) Notify(ctx context.Context, subject, body string) error {
	if len(n.operators) == 0 {
		return ErrNoOperators
	}

	_, err := n.sender.Send(ctx, &mailer.Email{
		To:      n.operators,
		Subject: subject,
		Text:    body,
		HTML:    "<pre>" + html.EscapeString(body) + "</pre>",
		Tags:    mailer.SimpleTags("operator_alert"),
	})
	if err != nil {
		return fmt.Errorf("escalation: notify operators: %w", err)
	}
	return nil
}

func failureNotice(f Failure) (string, string) {
	subject := fmt.Sprintf("[courier] %s failed: %s", f.Event, f.Reason)

	var b strings.Builder
	fmt.Fprintf(&b, "Event:     %s\n", f.Event)
	fmt.Fprintf(&b, "Recipient: %s\n", f.Recipient)
	fmt.Fprintf(&b, "Reason:    %s\n", f.Reason)
	fmt.Fprintf(&b, "Attempt:   %d\n", f.Attempt)
	if f.RecordID != uuid.Nil {
		fmt.Fprintf(&b, "Record:    %s\n", f.RecordID)
	}
	fmt.Fprintf(&b, "At:        %s\n", f.At.UTC().Format("2006-01-02 15:04:05 MST"))
	fmt.Fprintf(&b, "\n%s\n", f.message())
	return subject, b.String()
}

func thresholdNotice(count int64, threshold int, hour string) (string, string) {
	subject := fmt.Sprintf("[courier] %d email failures this hour", count)
	body := fmt.Sprintf("Permanent email failures in hour %s reached %d (threshold %d).\n", hour, count, threshold)
	return subject, body
}
