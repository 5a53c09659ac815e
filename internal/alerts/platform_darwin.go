//go:build darwin

package alerts

import "go.uber.org/zap"

// NewPlatformNotifier creates the platform-appropriate notifier for macOS.
func NewPlatformNotifier(sink ActionSink, logger *zap.Logger) *Desktop {
	return NewOSAScriptNotifier(sink, logger)
}

// NewPlatformOpener opens URLs with open(1).
func NewPlatformOpener() *CommandOpener {
	return &CommandOpener{Program: "open"}
}
