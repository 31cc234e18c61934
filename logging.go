package signalr

import (
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
)

// StructuredLogger is the simplest logging interface for structured
// logging, matching options.go's StructuredLogger. Its method set is
// identical to github.com/go-kit/log.Logger, so any StructuredLogger value
// can be passed directly wherever a log.Logger is expected.
type StructuredLogger interface {
	Log(keyVals ...interface{}) error
}

// nopLogger discards everything. It is the default when no logger is
// configured.
type nopLogger struct{}

func (nopLogger) Log(keyVals ...interface{}) error { return nil }

// buildInfoDebugLogger splits logger into an info-level and a debug-level
// logger, filtering out debug events unless debug is true. Grounded on
// options.go's buildInfoDebugLogger.
func buildInfoDebugLogger(logger log.Logger, debug bool) (info, dbg log.Logger) {
	if debug {
		logger = level.NewFilter(logger, level.AllowDebug())
	} else {
		logger = level.NewFilter(logger, level.AllowInfo())
	}
	return level.Info(logger), log.With(level.Debug(logger), "caller", log.DefaultCaller)
}

// prefixLogger returns a component-scoped logger, matching party.go's
// prefixLoggers pattern.
func prefixLogger(logger log.Logger, component string, keyVals ...interface{}) log.Logger {
	all := append([]interface{}{"ts", log.DefaultTimestampUTC, "class", component}, keyVals...)
	return log.WithPrefix(logger, all...)
}
