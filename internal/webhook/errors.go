package webhook

import "errors"

var (
	ErrInvalidSignature = errors.New("webhook: invalid signature")
	ErrMalformedPayload = errors.New("webhook: malformed payload")
)
