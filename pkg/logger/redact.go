package logger

import (
	"log/slog"
	"strings"
)

// RedactEmail masks the local part of an address: "john@example.com"
// becomes "jo***@example.com". Values that are not addresses are fully masked.
func RedactEmail(email string) string {
	local, domain, ok := strings.Cut(email, "@")
	if !ok || domain == "" || strings.Contains(domain, "@") {
		return "***@***"
	}
	if len(local) > 2 {
		return local[:2] + "***@" + domain
	}
	return "***@" + domain
}

// Email returns a log attribute with a redacted address.
func Email(key, email string) slog.Attr {
	return slog.String(key, RedactEmail(email))
}

// Error returns the conventional "error" attribute.
func Error(err error) slog.Attr {
	return slog.Any("error", err)
}
