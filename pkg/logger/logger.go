// Package logger configures the process-wide slog handler. Records logged
// with a context carrying a request id get a request_id attribute, so
// handlers can use slog.InfoContext without building a child logger.
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
)

type contextKey struct{}

// Setup installs the default slog logger writing to stdout.
func Setup(level string, format string) {
	SetupWriter(os.Stdout, level, format)
}

// SetupWriter installs the default slog logger writing to w. The CLI sends
// logs to stderr so result output on stdout stays clean.
func SetupWriter(w io.Writer, level string, format string) {
	slog.SetDefault(slog.New(NewHandler(w, level, format)))
}

// NewHandler builds the text or JSON handler for format ("json" selects
// JSON; anything else is text) wrapped with request id propagation.
func NewHandler(w io.Writer, level string, format string) slog.Handler {
	opts := &slog.HandlerOptions{Level: ParseLevel(level)}
	var h slog.Handler
	if strings.EqualFold(format, "json") {
		h = slog.NewJSONHandler(w, opts)
	} else {
		h = slog.NewTextHandler(w, opts)
	}
	return contextHandler{Handler: h}
}

// ParseLevel accepts debug, info, warn or error in any case, with an
// optional offset such as "debug-2". Unknown levels fall back to info.
func ParseLevel(level string) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return slog.LevelInfo
	}
	return l
}

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, contextKey{}, requestID)
}

// RequestID returns the id stored by WithRequestID, or "".
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(contextKey{}).(string)
	return id
}

// FromContext returns the default logger with the request id attached, for
// code that logs without passing ctx to each call.
func FromContext(ctx context.Context) *slog.Logger {
	logger := slog.Default()
	if id := RequestID(ctx); id != "" {
		logger = logger.With("request_id", id)
	}
	return logger
}

type contextHandler struct {
	slog.Handler
	// bound is set once a request_id attribute is attached with WithAttrs.
	bound bool
}

func (h contextHandler) Handle(ctx context.Context, r slog.Record) error {
	if id := RequestID(ctx); id != "" && !h.bound && !hasRequestID(r) {
		r.AddAttrs(slog.String("request_id", id))
	}
	return h.Handler.Handle(ctx, r)
}

func (h contextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	bound := h.bound
	for _, a := range attrs {
		if a.Key == "request_id" {
			bound = true
		}
	}
	return contextHandler{Handler: h.Handler.WithAttrs(attrs), bound: bound}
}

func (h contextHandler) WithGroup(name string) slog.Handler {
	return contextHandler{Handler: h.Handler.WithGroup(name), bound: h.bound}
}

func hasRequestID(r slog.Record) bool {
	found := false
	r.Attrs(func(a slog.Attr) bool {
		if a.Key == "request_id" {
			found = true
			return false
		}
		return true
	})
	return found
}
