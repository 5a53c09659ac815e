package alerts

import (
	"context"
	"os/exec"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/nixlim/zbx-alerting/internal/logging"
	"github.com/nixlim/zbx-alerting/internal/problem"
)

// runFunc executes a command and returns its trimmed stdout.
type runFunc func(ctx context.Context, name string, args ...string) (string, error)

func runCommand(ctx context.Context, name string, args ...string) (string, error) {
	out, err := exec.CommandContext(ctx, name, args...).Output()
	return strings.TrimSpace(string(out)), err
}

// presenter shows one alert and blocks until the operator picks a button
// or the alert goes away. ok is false when no button was pressed.
type presenter interface {
	present(ctx context.Context, a Alert) (kind problem.ActionKind, ok bool, err error)
	askMessage(ctx context.Context, a Alert, kind problem.ActionKind) (string, error)
}

// Desktop is a Notifier backed by a desktop notification tool. Each alert
// is shown from its own goroutine; the operator's choice is submitted to
// the sink. Failures are logged and never returned to the dispatcher.
type Desktop struct {
	name   string
	p      presenter
	sink   ActionSink
	logger *zap.Logger

	wg sync.WaitGroup
}

func newDesktop(name string, p presenter, sink ActionSink, logger *zap.Logger) *Desktop {
	logger = logging.OrNop(logger)
	return &Desktop{name: name, p: p, sink: sink, logger: logger.Named("notify")}
}

// Notify starts showing the alert and returns immediately.
func (d *Desktop) Notify(ctx context.Context, a Alert) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.await(ctx, a)
	}()
	return nil
}

// Wait blocks until every shown alert has been answered or closed.
func (d *Desktop) Wait() {
	d.wg.Wait()
}

func (d *Desktop) await(ctx context.Context, a Alert) {
	kind, ok, err := d.p.present(ctx, a)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		d.logger.Warn("failed to show desktop notification",
			zap.String("backend", d.name),
			zap.String("event_id", a.EventID),
			zap.Error(err),
		)
		return
	}
	if !ok {
		d.logger.Debug("notification closed without action", zap.String("event_id", a.EventID))
		return
	}

	act := problem.Action{EventID: a.EventID, Kind: kind}
	if a.AskMessage && (kind == problem.ActionAcknowledge || kind == problem.ActionUnacknowledge) {
		msg, err := d.p.askMessage(ctx, a, kind)
		if err != nil {
			d.logger.Debug("message prompt unavailable, continuing without message",
				zap.String("event_id", a.EventID),
				zap.Error(err),
			)
		}
		act.Message = strings.TrimSpace(msg)
	}

	if d.sink == nil || !d.sink.Submit(ctx, act) {
		d.logger.Info("operator action dropped during shutdown",
			zap.String("event_id", a.EventID),
			zap.Stringer("kind", kind),
		)
	}
}

// kindForKey maps a button key or label back to the offered action.
func kindForKey(a Alert, key string) (problem.ActionKind, bool) {
	key = strings.TrimSpace(key)
	if key == "" {
		return 0, false
	}
	for _, b := range a.Buttons {
		if key == b.Kind.String() || key == b.Label {
			return b.Kind, true
		}
	}
	return 0, false
}

// truncate shortens s to at most max runes, marking the cut with "...".
func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	if max <= 3 {
		return string(r[:max])
	}
	return string(r[:max-3]) + "..."
}

// CommandOpener opens URLs with an external program such as xdg-open.
type CommandOpener struct {
	Program string
	run     runFunc
}

func (o *CommandOpener) Open(ctx context.Context, url string) error {
	run := o.run
	if run == nil {
		run = runCommand
	}
	_, err := run(ctx, o.Program, url)
	return err
}
