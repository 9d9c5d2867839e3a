package logger

// Logger is the logging interface used throughout the core packages. The
// central server, peer engines and infra sinks all log through it so that
// core code stays free of any concrete logging backend.
type Logger interface {
	Debugf(format string, args ...any)
	// Debugw logs a message with structured fields.
	Debugw(msg string, fields map[string]any)
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
}
