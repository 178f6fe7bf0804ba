package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"regexp"
	"strings"

	"promtap/internal/config"
)

const (
	ansiReset  = "\x1b[0m"
	ansiBlue   = "\x1b[34m"
	ansiYellow = "\x1b[33m"
	ansiRed    = "\x1b[31m"
	ansiGray   = "\x1b[90m"
	ansiGreen  = "\x1b[32m"
	ansiCyan   = "\x1b[36m"
)

// The sync mode owns stdout for protocol messages, so every log sink
// writes to stderr or to a file.

// New builds the root slog logger from config.
// Params: cfg console/file sink options.
// Returns: logger, close function for file resources, or setup error.
func New(cfg config.LogConfig) (*slog.Logger, func(), error) {
	handlers := make([]slog.Handler, 0, 2)
	closeFn := func() {}

	if cfg.Console.Enabled {
		handler, err := newSinkHandler(cfg.Console, consoleWriter(cfg.Console.Format))
		if err != nil {
			return nil, nil, err
		}
		handlers = append(handlers, handler)
	}

	if cfg.File.Enabled {
		if strings.TrimSpace(cfg.File.Path) == "" {
			return nil, nil, fmt.Errorf("log.file.path is required when file logging is enabled")
		}
		file, err := os.OpenFile(cfg.File.Path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file %q: %w", cfg.File.Path, err)
		}
		handler, err := newSinkHandler(cfg.File, file)
		if err != nil {
			_ = file.Close()
			return nil, nil, err
		}
		handlers = append(handlers, handler)
		closeFn = func() { _ = file.Close() }
	}

	if len(handlers) == 0 {
		return slog.New(slog.NewTextHandler(io.Discard, nil)), closeFn, nil
	}
	if len(handlers) == 1 {
		return slog.New(handlers[0]), closeFn, nil
	}
	return slog.New(&multiHandler{handlers: handlers}), closeFn, nil
}

// consoleWriter selects the stderr writer for the console format.
// Params: format console format name.
// Returns: plain stderr for json, colorizing writer for line format.
func consoleWriter(format string) io.Writer {
	if format == "json" {
		return os.Stderr
	}
	return &colorLineWriter{dst: os.Stderr}
}

// newSinkHandler builds one slog handler for a sink.
// Params: cfg sink options; dst output writer.
// Returns: handler or error on unknown level/format.
func newSinkHandler(cfg config.LogSinkConfig, dst io.Writer) (slog.Handler, error) {
	level, err := parseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}

	options := &slog.HandlerOptions{Level: level}
	switch cfg.Format {
	case "json":
		return slog.NewJSONHandler(dst, options), nil
	case "line":
		return slog.NewTextHandler(dst, options), nil
	default:
		return nil, fmt.Errorf("unknown log format %q (line or json)", cfg.Format)
	}
}

// parseLevel converts config level string into slog level.
// Params: value level name.
// Returns: slog level or error on unknown value.
func parseLevel(value string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("unknown log level %q", value)
	}
}

type multiHandler struct {
	handlers []slog.Handler
}

// Enabled reports whether any sink accepts the level.
// Params: ctx log context; level record level.
// Returns: true when at least one handler is enabled.
func (h *multiHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, handler := range h.handlers {
		if handler.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

// Handle fans the record out to every enabled sink.
// Params: ctx log context; record log record.
// Returns: first sink error when present.
func (h *multiHandler) Handle(ctx context.Context, record slog.Record) error {
	var firstErr error
	for _, handler := range h.handlers {
		if !handler.Enabled(ctx, record.Level) {
			continue
		}
		if err := handler.Handle(ctx, record.Clone()); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// WithAttrs clones the fan-out handler with extra attributes.
// Params: attrs attributes to attach.
// Returns: derived handler.
func (h *multiHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := make([]slog.Handler, len(h.handlers))
	for idx, handler := range h.handlers {
		next[idx] = handler.WithAttrs(attrs)
	}
	return &multiHandler{handlers: next}
}

// WithGroup clones the fan-out handler with a group prefix.
// Params: name group name.
// Returns: derived handler.
func (h *multiHandler) WithGroup(name string) slog.Handler {
	next := make([]slog.Handler, len(h.handlers))
	for idx, handler := range h.handlers {
		next[idx] = handler.WithGroup(name)
	}
	return &multiHandler{handlers: next}
}

var (
	levelTokenPattern = regexp.MustCompile(`level=([A-Z]+)`)
	colorTokenPattern = regexp.MustCompile(`"[^"]*"|\b\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3}\b|\b\d+(?:\.\d+)?\b`)
)

// colorLineWriter colorizes text-format log lines by level and token kind.
// Params: dst destination writer.
// Returns: io.Writer wrapping dst.
type colorLineWriter struct {
	dst io.Writer
}

// Write colorizes one log line and forwards it to dst.
// Params: line raw text-handler output.
// Returns: length of the original line and write error.
func (w *colorLineWriter) Write(line []byte) (int, error) {
	text := string(line)
	trailingNewline := strings.HasSuffix(text, "\n")
	if trailingNewline {
		text = strings.TrimSuffix(text, "\n")
	}

	base := lineBaseColor(text)
	if base == "" {
		if _, err := io.WriteString(w.dst, string(line)); err != nil {
			return 0, err
		}
		return len(line), nil
	}

	colored := colorTokenPattern.ReplaceAllStringFunc(text, func(token string) string {
		return tokenColor(token) + token + ansiReset + base
	})

	rendered := base + colored + ansiReset
	if trailingNewline {
		rendered += "\n"
	}
	if _, err := io.WriteString(w.dst, rendered); err != nil {
		return 0, err
	}
	return len(line), nil
}

// lineBaseColor resolves base color from the line's level token.
// Params: text one log line without trailing newline.
// Returns: ANSI color or empty string when no known level is present.
func lineBaseColor(text string) string {
	match := levelTokenPattern.FindStringSubmatch(text)
	if match == nil {
		return ""
	}
	switch match[1] {
	case "DEBUG":
		return ansiGray
	case "INFO":
		return ansiBlue
	case "WARN":
		return ansiYellow
	case "ERROR":
		return ansiRed
	default:
		return ""
	}
}

// tokenColor resolves highlight color for one matched token.
// Params: token matched text fragment.
// Returns: ANSI color for the token kind.
func tokenColor(token string) string {
	if strings.HasPrefix(token, `"`) {
		return ansiGreen
	}
	if strings.Count(token, ".") == 3 {
		return ansiCyan
	}
	return ansiYellow
}
