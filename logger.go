package subd

import (
	"context"
	"log/slog"
	"sync/atomic"
)

// nopHandler discards all records. Enabled returns false so callers skip
// formatting altogether.
type nopHandler struct{}

func (nopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (nopHandler) Handle(context.Context, slog.Record) error { return nil }
func (nopHandler) WithAttrs([]slog.Attr) slog.Handler        { return nopHandler{} }
func (nopHandler) WithGroup(string) slog.Handler             { return nopHandler{} }

var loggerPtr atomic.Pointer[slog.Logger]

func init() {
	loggerPtr.Store(slog.New(nopHandler{}))
}

// SetLogger configures the logger used by subd and its sub-packages.
// By default nothing is logged. Passing nil restores the silent logger.
// SetLogger is safe for concurrent use.
//
// Levels used:
//   - [slog.LevelDebug]: per-subpatch sizes and split statistics.
//   - [slog.LevelInfo]: completed dicing passes.
func SetLogger(l *slog.Logger) {
	if l == nil {
		l = slog.New(nopHandler{})
	}
	loggerPtr.Store(l)
}

// Logger returns the logger set with [SetLogger].
func Logger() *slog.Logger {
	return loggerPtr.Load()
}
