package dispatch

import (
	"errors"

	"github.com/dmitrymomot/courier/internal/templates"
)

var (
	// ErrConfiguration matches every error that retrying cannot fix.
	ErrConfiguration = templates.ErrConfiguration

	ErrInvalidRecipient = errors.New("dispatch: invalid recipient")
	ErrUnknownRecipient = errors.New("dispatch: unknown recipient")
	ErrInvalidPriority  = errors.New("dispatch: priority must be between 1 and 4")
	ErrUnknownQueue     = errors.New("dispatch: queue has no workers")
	ErrRateLimited      = errors.New("dispatch: rate limited")
	ErrDeadlineExceeded = errors.New("dispatch: send deadline exceeded")
	ErrInvalidConfig    = errors.New("dispatch: invalid configuration")
)
