// Package logutil - slog-Logger mit zusaetzlichem TRACE-Level
//
// Dieses Modul enthaelt:
// - LevelTrace: Log-Level unterhalb von DEBUG fuer Ausgaben pro Batch
// - NewLogger: Erstellt einen Text-Logger mit Level-Filter
// - Trace/TraceContext: Logging auf TRACE-Level ueber den Default-Logger
package logutil

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
)

// LevelTrace liegt unterhalb von slog.LevelDebug (ROCAL_DEBUG=2)
const LevelTrace slog.Level = -8

// NewLogger erstellt einen Text-Logger, der ab level schreibt
func NewLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level:     level,
		AddSource: true,
		ReplaceAttr: func(_ []string, attr slog.Attr) slog.Attr {
			switch attr.Key {
			case slog.LevelKey:
				if attr.Value.Any().(slog.Level) == LevelTrace {
					attr.Value = slog.StringValue("TRACE")
				}
			case slog.SourceKey:
				source := attr.Value.Any().(*slog.Source)
				source.File = filepath.Base(source.File)
			}
			return attr
		},
	}))
}

// Trace schreibt eine Nachricht auf TRACE-Level
func Trace(msg string, args ...any) {
	TraceContext(context.TODO(), msg, args...)
}

// TraceContext schreibt eine Nachricht auf TRACE-Level mit Context
func TraceContext(ctx context.Context, msg string, args ...any) {
	if logger := slog.Default(); logger.Enabled(ctx, LevelTrace) {
		logger.Log(ctx, LevelTrace, msg, args...)
	}
}
