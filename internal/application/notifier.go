package application

import (
	"context"
	"log/slog"
)

// Notifier delivers an alert message to the household.
type Notifier interface {
	Notify(ctx context.Context, message string) error
}

type NoopNotifier struct{}

func (n *NoopNotifier) Notify(_ context.Context, _ string) error {
	return nil
}

// LogNotifier writes alerts to the log, for setups without a push service.
type LogNotifier struct {
	Logger *slog.Logger
}

func (n *LogNotifier) Notify(_ context.Context, message string) error {
	n.Logger.Warn("security alert", "message", message)
	return nil
}
