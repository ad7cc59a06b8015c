package logging

import (
	"io"
	"log/slog"
	"strings"
)

// New builds the process logger writing to w.
//
// level is one of debug, info, warn or error and falls back to info. format is "json" or "text" (the default).
// The returned logger understands attributes attached to the context with [WithAttrs].
func New(w io.Writer, level string, format string) *slog.Logger {
	opts := &slog.HandlerOptions{
		AddSource:   false,
		Level:       ParseLevel(level),
		ReplaceAttr: nil,
	}
	var handler slog.Handler
	if strings.EqualFold(format, "json") {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(NewContextHandler(handler))
}

// ParseLevel converts a textual level to [slog.Level], defaulting to [slog.LevelInfo].
func ParseLevel(level string) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return slog.LevelInfo
	}
	return l
}
