package alerts

import (
	"context"
	"fmt"
	"strconv"

	"go.uber.org/zap"

	"github.com/nixlim/zbx-alerting/internal/problem"
)

// notifySend shows alerts with notify-send --wait and prompts for messages
// with zenity.
type notifySend struct {
	run runFunc
}

// NewNotifySendNotifier creates a Linux desktop notifier.
func NewNotifySendNotifier(sink ActionSink, logger *zap.Logger) *Desktop {
	return newDesktop("notify-send", &notifySend{run: runCommand}, sink, logger)
}

func (n *notifySend) present(ctx context.Context, a Alert) (problem.ActionKind, bool, error) {
	out, err := n.run(ctx, "notify-send", notifySendArgs(a)...)
	if err != nil {
		return 0, false, fmt.Errorf("notify-send: %w", err)
	}
	kind, ok := kindForKey(a, out)
	return kind, ok, nil
}

func (n *notifySend) askMessage(ctx context.Context, a Alert, kind problem.ActionKind) (string, error) {
	out, err := n.run(ctx, "zenity", zenityArgs(a, kind)...)
	if err != nil {
		return "", fmt.Errorf("zenity: %w", err)
	}
	return out, nil
}

func notifySendArgs(a Alert) []string {
	args := []string{"--wait", "--urgency", a.Urgency}
	if a.AppName != "" {
		args = append(args, "--app-name", a.AppName)
	}
	if a.Icon != "" {
		args = append(args, "--icon", a.Icon)
	}
	if a.Expire != ExpireDefault {
		args = append(args, "--expire-time", strconv.FormatInt(a.Expire.Milliseconds(), 10))
	}
	for _, b := range a.Buttons {
		args = append(args, "--action", b.Kind.String()+"="+b.Label)
	}
	return append(args, a.Summary, a.Body)
}

func zenityArgs(a Alert, kind problem.ActionKind) []string {
	verb := "Acknowledge"
	if kind == problem.ActionUnacknowledge {
		verb = "Unacknowledge"
	}
	title := a.AppName
	if title == "" {
		title = verb
	}
	return []string{
		"--entry",
		"--title", title,
		"--text", fmt.Sprintf("%s event #%s\nMessage (optional):", verb, a.EventID),
	}
}
