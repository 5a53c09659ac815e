package alerts

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/nixlim/zbx-alerting/internal/display"
	"github.com/nixlim/zbx-alerting/internal/logging"
	"github.com/nixlim/zbx-alerting/internal/queue"
	"github.com/nixlim/zbx-alerting/internal/telemetry"
)

// Dispatcher moves admitted items from the alert queue to a Notifier and
// records them in the displayed-alerts table.
type Dispatcher struct {
	q         *queue.Queue
	table     *display.Table
	formatter *Formatter
	notifier  Notifier
	counters  *telemetry.Counters
	logger    *zap.Logger
	now       func() time.Time
}

func NewDispatcher(q *queue.Queue, table *display.Table, formatter *Formatter, notifier Notifier,
	counters *telemetry.Counters, logger *zap.Logger) *Dispatcher {
	logger = logging.OrNop(logger)
	if counters == nil {
		counters = telemetry.NewCounters()
	}
	return &Dispatcher{
		q:         q,
		table:     table,
		formatter: formatter,
		notifier:  notifier,
		counters:  counters,
		logger:    logger.Named("dispatcher"),
		now:       time.Now,
	}
}

// Run renders queued items as they arrive until ctx is done or the queue is
// closed. Items still queued when the queue closes are rendered first.
func (d *Dispatcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-d.q.Ready():
			d.Flush(ctx)
			if !ok {
				return
			}
		}
	}
}

// Flush renders everything currently queued and returns how many alerts
// were shown.
func (d *Dispatcher) Flush(ctx context.Context) int {
	shown := 0
	for _, it := range d.q.Drain() {
		if d.render(ctx, it) {
			shown++
		}
	}
	return shown
}

func (d *Dispatcher) render(ctx context.Context, it queue.Item) bool {
	p := it.Problem
	now := d.now()

	// Register before showing so an immediate button press is not stale.
	d.table.Add(p, now)
	if err := d.notifier.Notify(ctx, d.formatter.Format(p)); err != nil {
		d.table.Remove(p.EventID)
		d.logger.Error("failed to render alert",
			zap.String("event_id", p.EventID),
			zap.Stringer("severity", p.Severity),
			zap.Error(err),
		)
		return false
	}

	d.counters.Rendered.Add(1)
	d.logger.Debug("alert rendered",
		zap.String("event_id", p.EventID),
		zap.Stringer("severity", p.Severity),
		zap.String("host", p.DisplayHost()),
		zap.Uint64("cycle", it.Cycle),
		zap.Duration("latency", now.Sub(it.AdmittedAt)),
	)
	return true
}
