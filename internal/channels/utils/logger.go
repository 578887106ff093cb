package utils

import "log/slog"

// EnsureLogger returns the given logger, or slog.Default() when nil, so
// adapter constructors can take an optional logger without nil checks.
func EnsureLogger(logger *slog.Logger) *slog.Logger {
	if logger == nil {
		return slog.Default()
	}
	return logger
}

// EnsureLoggerWithComponent returns a logger with the component attribute set.
func EnsureLoggerWithComponent(logger *slog.Logger, component string) *slog.Logger {
	return EnsureLogger(logger).With("component", component)
}
