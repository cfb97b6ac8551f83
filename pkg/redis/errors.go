package redis

import "errors"

var (
	ErrMissingURL = errors.New("redis: REDIS_URL is not set")
	ErrInvalidURL = errors.New("redis: invalid connection URL")
	ErrConnect    = errors.New("redis: connect")
	ErrUnhealthy  = errors.New("redis: unhealthy")
)
