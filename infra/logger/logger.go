package logger

import corelogger "github.com/kilianp07/evcharge/core/logger"

// Logger aliases the core interface so infra and tests can depend on a
// single import.
type Logger = corelogger.Logger

// NopLogger discards everything. Used in tests and as a safe default.
type NopLogger struct{}

func (NopLogger) Debugf(string, ...any)         {}
func (NopLogger) Debugw(string, map[string]any) {}
func (NopLogger) Infof(string, ...any)          {}
func (NopLogger) Warnf(string, ...any)          {}
func (NopLogger) Errorf(string, ...any)         {}

// New returns a zerolog-backed Logger for the given component. Output
// format and level follow the APP_ENV and LOG_LEVEL environment variables.
func New(component string) Logger {
	return NewZerologLogger(component)
}
