package email

import "errors"

var (
	ErrNotFound      = errors.New("email: record not found")
	ErrInvalidStatus = errors.New("email: invalid status")
	ErrInvalidRecord = errors.New("email: invalid record")
)
