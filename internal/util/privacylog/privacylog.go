// Package privacylog wraps a slog.Handler so that secrets never reach log
// output and user or message identifiers appear only as per-process
// fingerprints.
package privacylog

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"strings"
)

// Redacted replaces the value of sensitive attributes.
const Redacted = "[REDACTED]"

var (
	processSalt = newSalt()

	sensitiveParts = []string{"passphrase", "password", "secret", "private", "plaintext", "token", "authorization"}

	identifierKeys = map[string]struct{}{
		"user_id":      {},
		"peer_id":      {},
		"recipient_id": {},
		"sender_id":    {},
		"message_id":   {},
		"reference":    {},
	}
)

// Handler sanitizes attributes before passing records to the next handler.
type Handler struct {
	next slog.Handler
}

// Wrap returns next behind a sanitizing Handler.
func Wrap(next slog.Handler) *Handler { return &Handler{next: next} }

// New builds a sanitized logger writing to w. format is "json" or "text".
func New(w io.Writer, format string, level slog.Level) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	var h slog.Handler
	if strings.EqualFold(format, "json") {
		h = slog.NewJSONHandler(w, opts)
	} else {
		h = slog.NewTextHandler(w, opts)
	}
	return slog.New(Wrap(h))
}

// Enabled defers to the wrapped handler.
func (h *Handler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

// Handle sanitizes every attribute of rec before passing it on.
func (h *Handler) Handle(ctx context.Context, rec slog.Record) error {
	out := slog.NewRecord(rec.Time, rec.Level, rec.Message, rec.PC)
	rec.Attrs(func(a slog.Attr) bool {
		out.AddAttrs(Sanitize(a))
		return true
	})
	return h.next.Handle(ctx, out)
}

// WithAttrs sanitizes attrs once, when they are bound.
func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clean := make([]slog.Attr, len(attrs))
	for i, a := range attrs {
		clean[i] = Sanitize(a)
	}
	return &Handler{next: h.next.WithAttrs(clean)}
}

// WithGroup returns a sanitizing handler for the named group.
func (h *Handler) WithGroup(name string) slog.Handler {
	return &Handler{next: h.next.WithGroup(name)}
}

// Sanitize returns a, redacted or fingerprinted if its key demands it. Groups
// are sanitized recursively.
func Sanitize(a slog.Attr) slog.Attr {
	key := strings.ToLower(strings.TrimSpace(a.Key))
	switch {
	case isSensitive(key):
		return slog.String(a.Key, Redacted)
	case isIdentifier(key):
		return slog.String(a.Key, Fingerprint(valueString(a.Value.Resolve())))
	case a.Value.Kind() == slog.KindGroup:
		group := a.Value.Group()
		clean := make([]any, len(group))
		for i, g := range group {
			clean[i] = Sanitize(g)
		}
		return slog.Group(a.Key, clean...)
	default:
		return a
	}
}

// Fingerprint maps an identifier to a short salted hash that is stable for the
// life of the process and unlinkable across processes.
func Fingerprint(id string) string {
	id = strings.TrimSpace(id)
	if id == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(processSalt + "|" + id))
	return "fp_" + hex.EncodeToString(sum[:6])
}

func isSensitive(key string) bool {
	for _, p := range sensitiveParts {
		if strings.Contains(key, p) {
			return true
		}
	}
	return false
}

func isIdentifier(key string) bool {
	_, ok := identifierKeys[key]
	return ok
}

func valueString(v slog.Value) string {
	if v.Kind() == slog.KindString {
		return v.String()
	}
	return fmt.Sprint(v.Any())
}

func newSalt() string {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		panic(fmt.Sprintf("privacylog: read salt: %v", err))
	}
	return hex.EncodeToString(b[:])
}

var _ slog.Handler = (*Handler)(nil)
