package mailer

import "errors"

var (
	// ErrNoRecipient indicates no recipient was specified.
	ErrNoRecipient = errors.New("mailer: email must have at least one recipient")

	// ErrNoSubject indicates no subject was provided.
	ErrNoSubject = errors.New("mailer: email must have a subject")

	// ErrNoContent indicates no HTML content was provided.
	ErrNoContent = errors.New("mailer: email must have HTML content")

	// ErrTemplateNotFound indicates the template file was not found.
	ErrTemplateNotFound = errors.New("mailer: template not found")

	// ErrLayoutNotFound indicates the layout file was not found.
	ErrLayoutNotFound = errors.New("mailer: layout not found")

	// ErrRenderFailed indicates template rendering failed.
	ErrRenderFailed = errors.New("mailer: failed to render template")

	// ErrSendFailed indicates email sending failed.
	ErrSendFailed = errors.New("mailer: failed to send email")

	// ErrInvalidFrontmatter indicates invalid YAML frontmatter.
	ErrInvalidFrontmatter = errors.New("mailer: invalid frontmatter")

	// ErrTransient marks a delivery failure that may succeed when retried:
	// throttling, timeouts, network faults, provider 5xx responses.
	ErrTransient = errors.New("mailer: transient delivery failure")

	// ErrFatal marks a delivery failure that will never succeed:
	// invalid recipients, rejected content, bad credentials.
	ErrFatal = errors.New("mailer: fatal delivery failure")
)

// Transient classifies err as retryable. A nil err stays nil.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return errors.Join(ErrTransient, err)
}

// Fatal classifies err as permanent. A nil err stays nil.
func Fatal(err error) error {
	if err == nil {
		return nil
	}
	return errors.Join(ErrFatal, err)
}

// IsFatal reports whether err was classified as permanent.
func IsFatal(err error) bool {
	return errors.Is(err, ErrFatal)
}

// IsTransient reports whether a failed send may be retried.
// Unclassified errors are treated as transient so a message is never dropped
// because a provider returned something unexpected.
func IsTransient(err error) bool {
	return err != nil && !IsFatal(err)
}
