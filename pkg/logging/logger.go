// Copyright (C) 2025 Index0 (dev@index0.app)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package logging provides structured logging for Index0 services.
//
// The package is a thin layer over Go's standard library slog, adding
// multi-destination output and an export hook:
//
//   - Default: stderr output (follows Unix conventions)
//   - Optional: JSON file logging with automatic directory creation
//   - Optional: LogExporter interface for shipping entries elsewhere
//
// # Basic Usage
//
//	logger := logging.Default()
//	logger.Info("upload initialized", "object_key", key, "parts", n)
//	logger.Error("finalize failed", "error", err)
//
// # File Logging
//
//	logger := logging.New(logging.Config{
//	    Level:   logging.LevelInfo,
//	    LogDir:  "~/.index0/logs", // supports ~ expansion
//	    Service: "gateway",
//	})
//	defer logger.Close()
//
// This creates `{service}_{date}.log` files in JSON format.
//
// # Security Considerations
//
// This package does NOT automatically redact sensitive data. Callers must
// ensure tokens and user content are not logged:
//
//	// BAD: logs the bearer token
//	logger.Info("auth", "token", token)
//
//	// GOOD: log metadata only
//	logger.Info("auth", "token_present", token != "")
package logging

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Level is the log severity, matching slog conventions.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

// String returns the canonical lowercase name of the level.
func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "debug"
	case LevelInfo:
		return "info"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	default:
		return "unknown"
	}
}

// toSlogLevel bridges our Level type to the standard library.
func (l Level) toSlogLevel() slog.Level {
	switch l {
	case LevelDebug:
		return slog.LevelDebug
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ParseLevel converts a string ("debug", "info", "warn", "error") to a Level.
// Unknown strings default to LevelInfo.
func ParseLevel(s string) Level {
	switch s {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// Config holds logger configuration.
//
// All fields are optional; the zero value produces an info-level
// stderr-only logger.
type Config struct {
	// Level is the minimum severity to emit. Default: LevelInfo.
	Level Level

	// LogDir enables file logging when non-empty. The directory is
	// created if missing. Supports "~" expansion.
	LogDir string

	// Service names the log file: {service}_{date}.log. Default: "index0".
	Service string

	// Exporter receives every emitted entry. May be nil.
	Exporter LogExporter
}

// LogEntry is the normalized record handed to a LogExporter.
type LogEntry struct {
	Time    time.Time      `json:"time"`
	Level   string         `json:"level"`
	Message string         `json:"message"`
	Service string         `json:"service"`
	Attrs   map[string]any `json:"attrs,omitempty"`
}

// LogExporter ships log entries to an external system.
//
// Implementations receive entries synchronously on the logging path and
// should buffer internally; a slow exporter slows every request.
//
// Implementations must be safe for concurrent use.
type LogExporter interface {
	// Export receives a single entry. Errors are ignored by the logger.
	Export(ctx context.Context, entry LogEntry) error

	// Flush forces buffered entries out.
	Flush(ctx context.Context) error

	// Close flushes and releases resources.
	Close() error
}

// Logger is a leveled, structured logger over slog.
//
// Safe for concurrent use. The zero value is not usable; construct via
// New or Default.
type Logger struct {
	mu      sync.Mutex
	slogger *slog.Logger
	service string
	level   Level
	file    *os.File
	export  LogExporter
}

// New creates a Logger from the given configuration.
//
// File logging failures degrade to stderr-only with a warning rather than
// failing construction; a service should not refuse to start because its
// log directory is unwritable.
func New(config Config) *Logger {
	service := config.Service
	if service == "" {
		service = "index0"
	}

	handlers := []slog.Handler{
		slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: config.Level.toSlogLevel()}),
	}

	var file *os.File
	if config.LogDir != "" {
		dir := expandPath(config.LogDir)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			fmt.Fprintf(os.Stderr, "logging: cannot create %s: %v (stderr only)\n", dir, err)
		} else {
			name := fmt.Sprintf("%s_%s.log", service, time.Now().Format("2006-01-02"))
			f, err := os.OpenFile(filepath.Join(dir, name), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
			if err != nil {
				fmt.Fprintf(os.Stderr, "logging: cannot open log file: %v (stderr only)\n", err)
			} else {
				file = f
				handlers = append(handlers, slog.NewJSONHandler(f, &slog.HandlerOptions{
					Level: config.Level.toSlogLevel(),
				}))
			}
		}
	}

	return &Logger{
		slogger: slog.New(&multiHandler{handlers: handlers}),
		service: service,
		level:   config.Level,
		file:    file,
		export:  config.Exporter,
	}
}

// Default returns an info-level stderr logger named "index0".
func Default() *Logger {
	return New(Config{})
}

// Debug logs at debug level with alternating key-value args.
func (l *Logger) Debug(msg string, args ...any) { l.log(LevelDebug, msg, args...) }

// Info logs at info level with alternating key-value args.
func (l *Logger) Info(msg string, args ...any) { l.log(LevelInfo, msg, args...) }

// Warn logs at warn level with alternating key-value args.
func (l *Logger) Warn(msg string, args ...any) { l.log(LevelWarn, msg, args...) }

// Error logs at error level with alternating key-value args.
func (l *Logger) Error(msg string, args ...any) { l.log(LevelError, msg, args...) }

// With returns a Logger that includes the given attributes on every entry.
// The derived logger shares the parent's file and exporter.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{
		slogger: l.slogger.With(args...),
		service: l.service,
		level:   l.level,
		file:    l.file,
		export:  l.export,
	}
}

// Slog exposes the underlying slog.Logger for libraries that want one.
func (l *Logger) Slog() *slog.Logger {
	return l.slogger
}

// Close flushes the exporter and closes the log file, if any.
// Derived loggers (via With) share these resources; close only the root.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	var firstErr error
	if l.export != nil {
		if err := l.export.Close(); err != nil {
			firstErr = err
		}
	}
	if l.file != nil {
		if err := l.file.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		l.file = nil
	}
	return firstErr
}

func (l *Logger) log(level Level, msg string, args ...any) {
	if level < l.level {
		return
	}
	switch level {
	case LevelDebug:
		l.slogger.Debug(msg, args...)
	case LevelInfo:
		l.slogger.Info(msg, args...)
	case LevelWarn:
		l.slogger.Warn(msg, args...)
	case LevelError:
		l.slogger.Error(msg, args...)
	}

	if l.export != nil {
		_ = l.export.Export(context.Background(), LogEntry{
			Time:    time.Now(),
			Level:   level.String(),
			Message: msg,
			Service: l.service,
			Attrs:   argsToMap(args),
		})
	}
}

// multiHandler fans a record out to every configured handler.
type multiHandler struct {
	handlers []slog.Handler
}

func (h *multiHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, handler := range h.handlers {
		if handler.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (h *multiHandler) Handle(ctx context.Context, r slog.Record) error {
	var firstErr error
	for _, handler := range h.handlers {
		if handler.Enabled(ctx, r.Level) {
			if err := handler.Handle(ctx, r.Clone()); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

func (h *multiHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := make([]slog.Handler, len(h.handlers))
	for i, handler := range h.handlers {
		next[i] = handler.WithAttrs(attrs)
	}
	return &multiHandler{handlers: next}
}

func (h *multiHandler) WithGroup(name string) slog.Handler {
	next := make([]slog.Handler, len(h.handlers))
	for i, handler := range h.handlers {
		next[i] = handler.WithGroup(name)
	}
	return &multiHandler{handlers: next}
}

// expandPath expands a leading "~" to the user's home directory.
func expandPath(path string) string {
	if len(path) > 0 && path[0] == '~' {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[1:])
		}
	}
	return path
}

// argsToMap converts alternating key-value args to a map for export.
// Non-string keys and trailing odd values are dropped.
func argsToMap(args []any) map[string]any {
	if len(args) == 0 {
		return nil
	}
	out := make(map[string]any, len(args)/2)
	for i := 0; i+1 < len(args); i += 2 {
		if key, ok := args[i].(string); ok {
			out[key] = args[i+1]
		}
	}
	return out
}

// NopExporter discards all entries. Useful as a default.
type NopExporter struct{}

func (e *NopExporter) Export(ctx context.Context, entry LogEntry) error { return nil }
func (e *NopExporter) Flush(ctx context.Context) error                  { return nil }
func (e *NopExporter) Close() error                                     { return nil }

var _ LogExporter = (*NopExporter)(nil)

// BufferedExporter accumulates entries in memory. Used in tests to assert
// on emitted log entries.
type BufferedExporter struct {
	mu      sync.Mutex
	entries []LogEntry
}

func NewBufferedExporter() *BufferedExporter {
	return &BufferedExporter{}
}

func (e *BufferedExporter) Export(_ context.Context, entry LogEntry) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.entries = append(e.entries, entry)
	return nil
}

func (e *BufferedExporter) Flush(context.Context) error { return nil }
func (e *BufferedExporter) Close() error                { return nil }

// Entries returns a copy of everything exported so far.
func (e *BufferedExporter) Entries() []LogEntry {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]LogEntry, len(e.entries))
	copy(out, e.entries)
	return out
}

var _ LogExporter = (*BufferedExporter)(nil)
