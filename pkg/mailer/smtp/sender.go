// Package smtp implements mailer.Sender on a plain SMTP relay.
//
// SMTP has no provider message id, so the sender generates a Message-ID header
// and returns its local part as the id.
package smtp

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/textproto"
	"regexp"
	"sort"
	"strings"

	"github.com/google/uuid"
	"gopkg.in/gomail.v2"

	"github.com/dmitrymomot/courier/pkg/mailer"
)

// TagsHeader carries message tags so relays that support it can echo them back.
const TagsHeader = "X-Courier-Tags"

// Dialer delivers composed messages.
type Dialer interface {
	DialAndSend(m ...*gomail.Message) error
}

// Sender implements mailer.Sender over SMTP.
type Sender struct {
	dialer Dialer
	config Config
}

// New creates an SMTP sender.
func New(cfg Config) *Sender {
	d := gomail.NewDialer(cfg.Host, cfg.Port, cfg.User, cfg.Password)
	if cfg.InsecureSkipVerify {
		d.TLSConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // opt-in for internal relays
	}
	return NewWithDialer(d, cfg)
}

// NewWithDialer creates a sender on top of an existing dialer.
func NewWithDialer(d Dialer, cfg Config) *Sender {
	return &Sender{dialer: d, config: cfg}
}

// Send implements mailer.Sender.
func (s *Sender) Send(ctx context.Context, email *mailer.Email) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", mailer.Transient(err)
	}

	id := uuid.NewString()
	msg := s.compose(id, email)

	if err := s.dialer.DialAndSend(msg); err != nil {
		return "", classify(fmt.Errorf("smtp: send email: %w", err))
	}
	return id, nil
}

func (s *Sender) compose(id string, email *mailer.Email) *gomail.Message {
	msg := gomail.NewMessage()

	if email.From != "" {
		msg.SetHeader("From", email.From)
	} else {
		msg.SetAddressHeader("From", s.config.SenderEmail, s.config.SenderName)
	}
	msg.SetHeader("To", email.To...)
	if len(email.CC) > 0 {
		msg.SetHeader("Cc", email.CC...)
	}
	if len(email.BCC) > 0 {
		msg.SetHeader("Bcc", email.BCC...)
	}
	if email.ReplyTo != "" {
		msg.SetHeader("Reply-To", email.ReplyTo)
	}
	msg.SetHeader("Subject", email.Subject)
	msg.SetHeader("Message-ID", fmt.Sprintf("<%s@%s>", id, messageDomain(s.config.SenderEmail)))
	for k, v := range email.Headers {
		msg.SetHeader(k, v)
	}
	if tags := encodeTags(email.Tags); tags != "" {
		msg.SetHeader(TagsHeader, tags)
	}

	if email.Text != "" {
		msg.SetBody("text/plain", email.Text)
		if email.HTML != "" {
			msg.AddAlternative("text/html", email.HTML)
		}
	} else {
		msg.SetBody("text/html", email.HTML)
	}

	for _, a := range email.Attachments {
		content := a.Content
		settings := []gomail.FileSetting{
			gomail.SetCopyFunc(func(w io.Writer) error {
				_, err := w.Write(content)
				return err
			}),
		}
		if a.ContentType != "" {
			settings = append(settings, gomail.SetHeader(map[string][]string{"Content-Type": {a.ContentType}}))
		}
		if a.ContentID != "" {
			settings = append(settings, gomail.SetHeader(map[string][]string{"Content-ID": {"<" + a.ContentID + ">"}}))
			msg.Embed(a.Filename, settings...)
			continue
		}
		msg.Attach(a.Filename, settings...)
	}

	return msg
}

func messageDomain(sender string) string {
	if _, domain, ok := strings.Cut(sender, "@"); ok && domain != "" {
		return domain
	}
	return "localhost"
}

// encodeTags renders tags as "k=v; k2=v2" sorted by name.
func encodeTags(tags mailer.Tags) string {
	if len(tags) == 0 {
		return ""
	}
	names := make([]string, 0, len(tags))
	for name := range tags {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		switch v := tags[name].(type) {
		case nil, struct{}:
			parts = append(parts, name)
		default:
			parts = append(parts, fmt.Sprintf("%s=%v", name, v))
		}
	}
	return strings.Join(parts, "; ")
}

var replyCode = regexp.MustCompile(`\b([45])\d\d\b`)

// classify maps SMTP reply codes to retry classes: 4xx is transient, 5xx fatal.
func classify(err error) error {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || errors.As(err, &netErr) {
		return mailer.Transient(err)
	}

	var protoErr *textproto.Error
	if errors.As(err, &protoErr) {
		if protoErr.Code >= 500 {
			return mailer.Fatal(err)
		}
		return mailer.Transient(err)
	}

	if m := replyCode.FindStringSubmatch(err.Error()); m != nil && m[1] == "5" {
		return mailer.Fatal(err)
	}
	return mailer.Transient(err)
}
