package testutil

import "log/slog"

// DiscardLogger returns a slog.Logger that drops all output, keeping test
// logs quiet. Equivalent to log.NewNop(); prefer that when a test already
// imports the internal/log package.
func DiscardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}
