package alerts

import (
	"context"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/nixlim/zbx-alerting/internal/logging"
)

// LogNotifier logs alerts instead of showing them. It is used for dry runs
// and never produces actions.
type LogNotifier struct {
	logger *zap.Logger

	mu    sync.Mutex
	shown []Alert
}

func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	logger = logging.OrNop(logger)
	return &LogNotifier{logger: logger.Named("dry_run")}
}

func (n *LogNotifier) Notify(ctx context.Context, a Alert) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	labels := make([]string, 0, len(a.Buttons))
	for _, b := range a.Buttons {
		labels = append(labels, b.Label)
	}
	n.logger.Info("alert (dry run)",
		zap.String("event_id", a.EventID),
		zap.Stringer("severity", a.Severity),
		zap.String("urgency", a.Urgency),
		zap.String("summary", a.Summary),
		zap.String("body", a.Body),
		zap.Duration("expire", a.Expire),
		zap.String("buttons", strings.Join(labels, ",")),
	)

	n.mu.Lock()
	n.shown = append(n.shown, a)
	n.mu.Unlock()
	return nil
}

// Shown returns every alert logged so far.
func (n *LogNotifier) Shown() []Alert {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]Alert(nil), n.shown...)
}
