//go:build !linux && !darwin

package alerts

import "go.uber.org/zap"

// NewPlatformNotifier falls back to notify-send, which is the common
// denominator on the remaining Unix desktops.
func NewPlatformNotifier(sink ActionSink, logger *zap.Logger) *Desktop {
	return NewNotifySendNotifier(sink, logger)
}

func NewPlatformOpener() *CommandOpener {
	return &CommandOpener{Program: "xdg-open"}
}
