// Package log builds the framework's optional colorized *slog.Logger, which
// the App installs in place of slog.Default() when a log level is configured.
package log

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/fatih/color"
)

// ColorHandler is a synchronous slog.Handler that colorizes level and
// message when writing to a terminal-like sink. It writes inline rather
// than through a buffered async stage — this framework's own background
// goroutines (retry, reaper) already run off the caller's goroutine, so
// buffering log writes would just hide the ordering of log lines during
// debugging.
type ColorHandler struct {
	w     io.Writer
	level slog.Leveler
	attrs []slog.Attr
	group string
}

// NewColorHandler builds a ColorHandler writing to w, filtering below level.
// A nil level defaults to slog.LevelInfo.
func NewColorHandler(w io.Writer, level slog.Leveler) *ColorHandler {
	if level == nil {
		level = slog.LevelInfo
	}
	return &ColorHandler{w: w, level: level}
}

func (h *ColorHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *ColorHandler) Handle(_ context.Context, r slog.Record) error {
	levelStr := r.Level.String()
	switch {
	case r.Level >= slog.LevelError:
		levelStr = color.RedString(levelStr)
	case r.Level >= slog.LevelWarn:
		levelStr = color.YellowString(levelStr)
	case r.Level >= slog.LevelInfo:
		levelStr = color.BlueString(levelStr)
	default:
		levelStr = color.MagentaString(levelStr)
	}

	line := fmt.Sprintf("%s | %-5s | %s",
		color.GreenString(r.Time.Format("2006-01-02T15:04:05.000")),
		levelStr,
		r.Message,
	)

	prefix := h.group
	for _, a := range h.attrs {
		line += color.CyanString(" %s=%v", qualify(prefix, a.Key), a.Value)
	}
	r.Attrs(func(a slog.Attr) bool {
		line += color.CyanString(" %s=%v", qualify(prefix, a.Key), a.Value)
		return true
	})
	line += "\n"

	_, err := io.WriteString(h.w, line)
	return err
}

func qualify(group, key string) string {
	if group == "" {
		return key
	}
	return group + "." + key
}

func (h *ColorHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	merged := make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	merged = append(merged, h.attrs...)
	merged = append(merged, attrs...)
	return &ColorHandler{w: h.w, level: h.level, attrs: merged, group: h.group}
}

func (h *ColorHandler) WithGroup(name string) slog.Handler {
	group := name
	if h.group != "" {
		group = h.group + "." + name
	}
	return &ColorHandler{w: h.w, level: h.level, attrs: h.attrs, group: group}
}

// New builds the colorized *slog.Logger the App's WithLogLevel and
// WithConfig options install: a ColorHandler over os.Stderr at the given
// level. Without those options the App logs through slog.Default().
func New(level slog.Leveler) *slog.Logger {
	return slog.New(NewColorHandler(os.Stderr, level))
}

// ParseLevel maps a config file's "debug"/"info"/"warn"/"error" string onto
// a slog.Level, falling back to Info for anything else (including empty).
func ParseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
