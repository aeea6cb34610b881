package device

import (
	"log/slog"
)

// Notifier announces progress through the hike
type Notifier interface {
	Milestone(percent uint8)
}

// LogNotifier writes milestones to a logger
type LogNotifier struct {
	Logger *slog.Logger
}

func (n LogNotifier) Milestone(percent uint8) {
	n.Logger.Info("milestone passed", slog.Int("percent", int(percent)))
}
