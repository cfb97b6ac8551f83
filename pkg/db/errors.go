package db

import "errors"

var (
	// ErrInvalidConfig means the connection URL or pool settings were rejected.
	ErrInvalidConfig = errors.New("db: invalid configuration")
	// ErrConnect means the database stayed unreachable for every retry.
	ErrConnect = errors.New("db: connect")
	// ErrUnhealthy is returned by the readiness check.
	ErrUnhealthy = errors.New("db: unhealthy")
	// ErrMigrate wraps goose failures.
	ErrMigrate = errors.New("db: migrate")
)
