// Package telemetry counts pipeline outcomes and optionally pushes them to
// an OTLP collector.
package telemetry

import "sync/atomic"

// Metric names, exported as cumulative monotonic sums.
const (
	MetricCycles        = "zbx_alerting.poll.cycles"
	MetricCycleErrors   = "zbx_alerting.poll.cycle_errors"
	MetricCyclesSkipped = "zbx_alerting.poll.cycles_skipped"
	MetricFiltered      = "zbx_alerting.alerts.filtered"
	MetricAdmitted      = "zbx_alerting.alerts.admitted"
	MetricRateLimited   = "zbx_alerting.alerts.rate_limited"
	MetricEvicted       = "zbx_alerting.alerts.evicted"
	MetricRendered      = "zbx_alerting.alerts.rendered"
	MetricActionsOK     = "zbx_alerting.actions.dispatched"
	MetricActionsFailed = "zbx_alerting.actions.failed"
	MetricActionsStale  = "zbx_alerting.actions.stale"
)

// Counters is safe for concurrent use.
type Counters struct {
	Cycles        atomic.Int64
	CycleErrors   atomic.Int64
	CyclesSkipped atomic.Int64
	Filtered      atomic.Int64
	Admitted      atomic.Int64
	RateLimited   atomic.Int64
	Evicted       atomic.Int64
	Rendered      atomic.Int64
	ActionsOK     atomic.Int64
	ActionsFailed atomic.Int64
	ActionsStale  atomic.Int64
}

func NewCounters() *Counters { return &Counters{} }

// Sample is one named counter value.
type Sample struct {
	Name  string
	Value int64
}

// Snapshot returns every counter in a stable order.
func (c *Counters) Snapshot() []Sample {
	return []Sample{
		{MetricCycles, c.Cycles.Load()},
		{MetricCycleErrors, c.CycleErrors.Load()},
		{MetricCyclesSkipped, c.CyclesSkipped.Load()},
		{MetricFiltered, c.Filtered.Load()},
		{MetricAdmitted, c.Admitted.Load()},
		{MetricRateLimited, c.RateLimited.Load()},
		{MetricEvicted, c.Evicted.Load()},
		{MetricRendered, c.Rendered.Load()},
		{MetricActionsOK, c.ActionsOK.Load()},
		{MetricActionsFailed, c.ActionsFailed.Load()},
		{MetricActionsStale, c.ActionsStale.Load()},
	}
}
