package logging

import (
	"context"
	"log/slog"
	"regexp"
)

// credentialPatterns match secret material that must never appear whole
// in a log line. Google API keys have a fixed "AIza" prefix and 39-char
// length; bearer tokens are caught by their scheme.
var credentialPatterns = []*regexp.Regexp{
	regexp.MustCompile(`AIza[0-9A-Za-z_-]{35}`),
	regexp.MustCompile(`(?i)bearer\s+[0-9A-Za-z._~+/=-]{16,}`),
}

// redactString replaces matched secrets with a short prefix marker. The
// first eight characters survive so operators can still correlate log
// lines with a configured credential.
func redactString(s string) string {
	for _, pattern := range credentialPatterns {
		s = pattern.ReplaceAllStringFunc(s, func(match string) string {
			if len(match) <= 8 {
				return "[REDACTED]"
			}
			return match[:8] + "...[REDACTED]"
		})
	}
	return s
}

// RedactingHandler wraps a slog.Handler and scrubs credential material
// from every string attribute, including attributes attached via With.
type RedactingHandler struct {
	inner slog.Handler
}

// NewRedactingHandler wraps the given handler.
func NewRedactingHandler(inner slog.Handler) *RedactingHandler {
	return &RedactingHandler{inner: inner}
}

// Enabled implements slog.Handler.
func (h *RedactingHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

// Handle implements slog.Handler.
func (h *RedactingHandler) Handle(ctx context.Context, record slog.Record) error {
	clean := slog.NewRecord(record.Time, record.Level, redactString(record.Message), record.PC)
	record.Attrs(func(attr slog.Attr) bool {
		clean.AddAttrs(redactAttr(attr))
		return true
	})
	return h.inner.Handle(ctx, clean)
}

// WithAttrs implements slog.Handler.
func (h *RedactingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clean := make([]slog.Attr, len(attrs))
	for i, attr := range attrs {
		clean[i] = redactAttr(attr)
	}
	return &RedactingHandler{inner: h.inner.WithAttrs(clean)}
}

// WithGroup implements slog.Handler.
func (h *RedactingHandler) WithGroup(name string) slog.Handler {
	return &RedactingHandler{inner: h.inner.WithGroup(name)}
}

// redactAttr scrubs string values, recursing into groups.
func redactAttr(attr slog.Attr) slog.Attr {
	switch attr.Value.Kind() {
	case slog.KindString:
		return slog.String(attr.Key, redactString(attr.Value.String()))
	case slog.KindGroup:
		group := attr.Value.Group()
		clean := make([]slog.Attr, len(group))
		for i, member := range group {
			clean[i] = redactAttr(member)
		}
		return slog.Attr{Key: attr.Key, Value: slog.GroupValue(clean...)}
	default:
		return attr
	}
}
