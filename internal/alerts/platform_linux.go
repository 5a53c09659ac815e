//go:build linux

package alerts

import "go.uber.org/zap"

// NewPlatformNotifier creates the platform-appropriate notifier for Linux.
func NewPlatformNotifier(sink ActionSink, logger *zap.Logger) *Desktop {
	return NewNotifySendNotifier(sink, logger)
}

// NewPlatformOpener opens URLs with xdg-open.
func NewPlatformOpener() *CommandOpener {
	return &CommandOpener{Program: "xdg-open"}
}
