package notify

import (
	"context"
	"log/slog"
)

// LogNotifier writes the destination (never the code) to the application log.
// It stands in for SMTP in development when no relay is configured.
type LogNotifier struct{}

// Send logs the delivery instead of performing it. The code itself is only
// visible at debug level.
func (LogNotifier) Send(_ context.Context, destination, code string) error {
	slog.Info("passcode delivery skipped, SMTP not configured", "destination", destination)
	slog.Debug("generated passcode", "destination", destination, "code", code)
	return nil
}

var _ Notifier = LogNotifier{}
