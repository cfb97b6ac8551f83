// Package logger builds slog loggers with context extraction and optional
// Sentry reporting.
//
// Context extractors inject request-scoped values into every record:
//
//	log := logger.New(logger.Config{Level: "info"},
//		server.RequestIDExtractor(),
//		job.LogExtractor(),
//	)
//	log.InfoContext(ctx, "email queued", logger.Email("recipient", addr))
//
// [NewWithSentry] additionally forwards warnings and errors to Sentry when a DSN
// is configured; errors become Sentry issues. Without a DSN it behaves like [New].
//
// Recipient addresses must go through [RedactEmail] or [Email] before they
// reach a log record.
package logger
