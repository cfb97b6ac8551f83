// Package mailer renders templated email and hands it to a delivery provider.
//
// The package separates delivery (Sender) from rendering (Renderer) so the
// provider can be swapped without touching templates.
//
//   - Sender: delivery client implemented by provider adapters (resend, ses, smtp)
//   - Renderer: converts markdown templates with YAML frontmatter to HTML
//   - Mailer: combines a Sender and a Renderer
//
// # Usage
//
//	sender := resend.New(resend.Config{
//		APIKey:      os.Getenv("RESEND_API_KEY"),
//		SenderEmail: "notifications@example.com",
//		SenderName:  "Example",
//	})
//
//	m := mailer.New(sender, mailer.NewRenderer(templates.FS), mailer.Config{
//		FallbackSubject: "Notification",
//		DefaultLayout:   "base.html",
//	})
//
//	id, err := m.Send(ctx, mailer.SendParams{
//		To:       mailer.Recipient("Jane", "jane@example.com"),
//		Template: "request_status_changed.md",
//		Data:     map[string]any{"title": "Roof repair", "link": "https://example.com/r/1"},
//		Tags:     mailer.Tags{"log_id": recordID},
//	})
//
// Send returns the provider message id, which is later used to correlate
// delivery webhooks with the message.
//
// # Templates
//
// Templates are markdown files with optional YAML frontmatter. The subject
// supports Go template syntax:
//
//	---
//	Subject: "Request {{.title}} was updated"
//	---
//
//	Hello {{.name}}, your request is now **{{.status}}**.
//
// # Errors
//
// Delivery failures are classified with [Transient] and [Fatal]. Callers use
// [IsFatal] to skip retries for failures that can never succeed, such as an
// invalid recipient or a broken template. Unclassified errors are treated as
// transient.
package mailer
