package db

import "log"

// Logger receives one line per executed statement: the adapter name plus the
// one-line SQL with bindings substituted, and errors with the same context.
// The concrete sink is the caller's business; the default goes to the
// standard logger.
type Logger interface {
	Printf(format string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Printf(string, ...any) {}

var logger Logger = log.Default()

// SetLogger replaces the package logger. Passing nil disables query logging.
func SetLogger(l Logger) {
	if l == nil {
		logger = nopLogger{}
		return
	}
	logger = l
}
