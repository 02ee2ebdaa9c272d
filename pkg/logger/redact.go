package logger

import (
	"context"
	"log/slog"
	"regexp"
)

// redactedKeys are attribute keys whose values are always masked, regardless
// of pattern matching — the common PII/secret field names this module's
// callers pass to structured log calls.
var redactedKeys = map[string]struct{}{
	"password":      {},
	"token":         {},
	"secret":        {},
	"authorization": {},
	"api_key":       {},
	"apikey":        {},
	"access_key":    {},
	"credit_card":   {},
}

var emailPattern = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)

const redactedPlaceholder = "[REDACTED]"

// RedactHandler masks attribute values for known-sensitive keys and scrubs
// email-shaped substrings out of string values before handing the record to
// next.
type RedactHandler struct {
	next slog.Handler
}

// NewRedactHandler wraps next with redaction.
func NewRedactHandler(next slog.Handler) *RedactHandler {
	return &RedactHandler{next: next}
}

func (h *RedactHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *RedactHandler) Handle(ctx context.Context, r slog.Record) error {
	nr := slog.NewRecord(r.Time, r.Level, r.Message, r.PC)
	r.Attrs(func(a slog.Attr) bool {
		nr.AddAttrs(redactAttr(a))
		return true
	})
	return h.next.Handle(ctx, nr)
}

func redactAttr(a slog.Attr) slog.Attr {
	if _, sensitive := redactedKeys[a.Key]; sensitive {
		return slog.String(a.Key, redactedPlaceholder)
	}
	if a.Value.Kind() == slog.KindString {
		v := a.Value.String()
		if emailPattern.MatchString(v) {
			return slog.String(a.Key, emailPattern.ReplaceAllString(v, redactedPlaceholder))
		}
	}
	return a
}

func (h *RedactHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &RedactHandler{next: h.next.WithAttrs(attrs)}
}

func (h *RedactHandler) WithGroup(name string) slog.Handler {
	return &RedactHandler{next: h.next.WithGroup(name)}
}
