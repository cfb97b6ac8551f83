package mailer

import "context"

// Sender is the delivery client implemented by every provider adapter.
// It accepts a fully prepared Email and returns the provider message id.
//
// Implementations classify failures with Transient or Fatal so callers can
// decide whether to retry. Errors left unclassified are treated as transient.
type Sender interface {
	Send(ctx context.Context, email *Email) (string, error)
}

// SenderFunc adapts a function to the Sender interface.
type SenderFunc func(ctx context.Context, email *Email) (string, error)

// Send calls f.
func (f SenderFunc) Send(ctx context.Context, email *Email) (string, error) {
	return f(ctx, email)
}
