package application

import "log/slog"

// ResolveLogger backs the optional Logger field on use cases and workers:
// nil falls through to the process-wide slog default.
func ResolveLogger(logger *slog.Logger) *slog.Logger {
	if logger == nil {
		return slog.Default()
	}
	return logger
}
