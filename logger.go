package tileflat

import (
	"io"
	"sync/atomic"

	"github.com/sirupsen/logrus"
)

// newNopLogger creates a logger that discards all output. Its level is Panic
// so callers skip formatting for anything below that.
func newNopLogger() *logrus.Logger {
	l := logrus.New()
	l.Out = io.Discard
	l.Level = logrus.PanicLevel
	return l
}

// loggerPtr stores the active logger. Accessed atomically so that SetLogger
// can be called while an operation is logging from another goroutine.
var loggerPtr atomic.Pointer[logrus.Logger]

func init() {
	loggerPtr.Store(newNopLogger())
}

// SetLogger configures the logger for tileflat and its sub-packages.
// By default tileflat produces no log output. Pass nil to restore the silent
// default.
//
// Levels used:
//   - Debug: per-step geometry, chunk cells, visibility changes
//   - Info: operation start and completion
//   - Warn: shadow convergence timeouts, orphaned assets
//   - Error: failed operations, with op, bounds and pixel dimensions
func SetLogger(l *logrus.Logger) {
	if l == nil {
		l = newNopLogger()
	}
	loggerPtr.Store(l)
}

// Logger returns the current logger. Sub-packages call this to share one
// configuration.
func Logger() *logrus.Logger {
	return loggerPtr.Load()
}
