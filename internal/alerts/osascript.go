package alerts

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/nixlim/zbx-alerting/internal/problem"
)

// osascriptDialog shows alerts as AppleScript dialogs, which unlike
// "display notification" can carry buttons. A dialog holds at most three.
type osascriptDialog struct {
	run runFunc
}

// NewOSAScriptNotifier creates a macOS notifier.
func NewOSAScriptNotifier(sink ActionSink, logger *zap.Logger) *Desktop {
	return newDesktop("osascript", &osascriptDialog{run: runCommand}, sink, logger)
}

func (o *osascriptDialog) present(ctx context.Context, a Alert) (problem.ActionKind, bool, error) {
	out, err := o.run(ctx, "osascript", "-e", dialogScript(a))
	if err != nil {
		return 0, false, fmt.Errorf("osascript: %w", err)
	}
	res := parseDialogResult(out)
	if res.gaveUp {
		return 0, false, nil
	}
	kind, ok := kindForKey(a, res.button)
	return kind, ok, nil
}

func (o *osascriptDialog) askMessage(ctx context.Context, a Alert, kind problem.ActionKind) (string, error) {
	script := fmt.Sprintf(`display dialog "%s" default answer "" with title "%s" buttons {"Skip", "OK"} default button "OK"`,
		escapeAppleScript(fmt.Sprintf("Message for %s on event #%s (optional):", kind, a.EventID)),
		escapeAppleScript(a.AppName))
	out, err := o.run(ctx, "osascript", "-e", script)
	if err != nil {
		return "", fmt.Errorf("osascript: %w", err)
	}
	res := parseDialogResult(out)
	if res.button != "OK" {
		return "", nil
	}
	return res.text, nil
}

const maxDialogButtons = 3

func dialogScript(a Alert) string {
	buttons := a.Buttons
	if len(buttons) > maxDialogButtons {
		buttons = buttons[:maxDialogButtons]
	}
	labels := make([]string, 0, len(buttons))
	for _, b := range buttons {
		labels = append(labels, `"`+escapeAppleScript(b.Label)+`"`)
	}

	title := a.Summary
	if a.AppName != "" {
		title = a.AppName + ": " + a.Summary
	}
	script := fmt.Sprintf(`display dialog "%s" with title "%s" buttons {%s}`,
		escapeAppleScript(truncate(a.Body, 1024)),
		escapeAppleScript(title),
		strings.Join(labels, ", "))
	if len(labels) > 0 {
		script += " default button " + labels[0]
	}

	expire := a.Expire
	if expire == ExpireDefault {
		expire = DefaultExpire
	}
	if expire > 0 {
		secs := max(int(expire.Round(time.Second)/time.Second), 1)
		script += fmt.Sprintf(" giving up after %d", secs)
	}
	return script
}

type dialogResult struct {
	button string
	text   string
	gaveUp bool
}

// parseDialogResult reads the record osascript prints for a dialog, e.g.
// "button returned:OK, text returned:disk full, cleaning up, gave up:false".
// The text is whatever sits between its label and the trailing gave up field,
// commas included.
func parseDialogResult(out string) dialogResult {
	var r dialogResult
	out = strings.TrimRight(out, "\r\n")
	if i := strings.LastIndex(out, ", gave up:"); i >= 0 {
		r.gaveUp = strings.TrimSpace(out[i+len(", gave up:"):]) == "true"
		out = out[:i]
	}
	if i := strings.Index(out, ", text returned:"); i >= 0 {
		r.text = out[i+len(", text returned:"):]
		out = out[:i]
	}
	r.button = strings.TrimPrefix(out, "button returned:")
	return r
}

// escapeAppleScript escapes characters that could break AppleScript strings.
func escapeAppleScript(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	return s
}
