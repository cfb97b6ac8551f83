package mailer

import (
	"bytes"
	"context"
	"errors"
	texttemplate "text/template"
)

// Mailer renders templates and hands the result to a Sender.
type Mailer struct {
	sender   Sender
	renderer *Renderer
	config   Config
}

// New creates a new Mailer with the given sender and renderer.
func New(sender Sender, renderer *Renderer, cfg Config) *Mailer {
	return &Mailer{
		sender:   sender,
		renderer: renderer,
		config:   cfg,
	}
}

// SendParams contains parameters for sending a templated email.
type SendParams struct {
	Data     any    // template data
	Tags     Tags   // provider tags, echoed back by delivery webhooks
	To       string // single recipient, optionally in "Name <email>" form
	Template string // template filename, e.g. "welcome.md"

	// Optional overrides
	Headers     map[string]string
	Subject     string
	Layout      string
	From        string
	ReplyTo     string
	CC          []string
	BCC         []string
	Attachments []Attachment
}

// Send renders a template, sends the email and returns the provider message id.
// Subject resolution: params.Subject > template metadata > config fallback.
//
// Render failures are classified as fatal: retrying cannot fix a broken template.
func (m *Mailer) Send(ctx context.Context, params SendParams) (string, error) {
	if params.To == "" {
		return "", Fatal(ErrNoRecipient)
	}

	layout := params.Layout
	if layout == "" {
		layout = m.config.DefaultLayout
	}

	result, err := m.renderer.Render(layout, params.Template, params.Data)
	if err != nil {
		return "", Fatal(errors.Join(ErrRenderFailed, err))
	}

	subject := params.Subject
	if subject == "" {
		if fromMeta, ok := result.Metadata["Subject"].(string); ok {
			subject = fromMeta
		} else {
			subject = m.config.FallbackSubject
		}
	}

	processedSubject, err := processSubject(subject, params.Data)
	if err != nil {
		return "", Fatal(errors.Join(ErrRenderFailed, err))
	}

	return m.send(ctx, &Email{
		To:          []string{params.To},
		Subject:     processedSubject,
		HTML:        result.HTML,
		Text:        result.Text,
		From:        params.From,
		ReplyTo:     params.ReplyTo,
		CC:          params.CC,
		BCC:         params.BCC,
		Attachments: params.Attachments,
		Headers:     params.Headers,
		Tags:        params.Tags,
	})
}

// SendRaw sends a pre-built email without template rendering.
func (m *Mailer) SendRaw(ctx context.Context, email *Email) (string, error) {
	switch {
	case len(email.To) == 0:
		return "", Fatal(ErrNoRecipient)
	case email.Subject == "":
		return "", Fatal(ErrNoSubject)
	case email.HTML == "":
		return "", Fatal(ErrNoContent)
	}
	return m.send(ctx, email)
}

func (m *Mailer) send(ctx context.Context, email *Email) (string, error) {
	id, err := m.sender.Send(ctx, email)
	if err != nil {
		return "", errors.Join(ErrSendFailed, err)
	}
	return id, nil
}

func processSubject(subject string, data any) (string, error) {
	tmpl, err := texttemplate.New("subject").Parse(subject)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}

	return buf.String(), nil
}
