package templates

import (
	"errors"
	"fmt"
)

var (
	// ErrConfiguration marks every error that retrying cannot fix:
	// unknown events, missing variables and type mismatches.
	ErrConfiguration = errors.New("configuration error")

	ErrUnknownEvent    = errors.New("templates: unknown event")
	ErrMissingRequired = errors.New("templates: missing required variable")
	ErrTypeMismatch    = errors.New("templates: variable type mismatch")
	ErrInvalidCatalog  = errors.New("templates: invalid catalog")
)

// MissingRequiredError reports a required variable that is absent or empty.
type MissingRequiredError struct {
	Event string
	Field string
}

func (e *MissingRequiredError) Error() string {
	return fmt.Sprintf("templates: event %s: missing required variable %q", e.Event, e.Field)
}

func (e *MissingRequiredError) Is(target error) bool {
	return target == ErrConfiguration || target == ErrMissingRequired
}

// TypeMismatchError reports a variable whose value does not match its declared type.
type TypeMismatchError struct {
	Event    string
	Field    string
	Expected Type
	Value    any
}

func (e *TypeMismatchError) Error() string {
	return fmt.Sprintf("templates: event %s: variable %q must be %s, got %T", e.Event, e.Field, e.Expected, e.Value)
}

func (e *TypeMismatchError) Is(target error) bool {
	return target == ErrConfiguration || target == ErrTypeMismatch
}

func unknownEvent(event string) error {
	return fmt.Errorf("%w: %w: %q", ErrConfiguration, ErrUnknownEvent, event)
}
