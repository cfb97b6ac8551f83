package job

import (
	"context"
	"log/slog"

	"github.com/dmitrymomot/courier/pkg/logger"
)

// Info describes the job a handler is running.
type Info struct {
	Task        string
	ID          int64
	Attempt     int
	MaxAttempts int
}

type infoKey struct{}

// WithInfo returns a copy of ctx carrying info.
func WithInfo(ctx context.Context, info Info) context.Context {
	return context.WithValue(ctx, infoKey{}, info)
}

// InfoFromContext returns the job info stored by the worker, if any.
func InfoFromContext(ctx context.Context) (Info, bool) {
	info, ok := ctx.Value(infoKey{}).(Info)
	return info, ok
}

// LogExtractor adds a "job" group with task, id and attempt to log records
// emitted while a job is running.
func LogExtractor() logger.ContextExtractor {
	return func(ctx context.Context) (slog.Attr, bool) {
		info, ok := InfoFromContext(ctx)
		if !ok {
			return slog.Attr{}, false
		}
		return slog.Group("job",
			slog.String("task", info.Task),
			slog.Int64("id", info.ID),
			slog.Int("attempt", info.Attempt),
		), true
	}
}
