// Package poller drives the alert pipeline: on every tick it fetches the
// backend's active problems, resolves host names, filters out what must
// not alert, applies the rate limit and per-cycle cap, and queues the rest
// for rendering. Cycles never overlap.
package poller

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/nixlim/zbx-alerting/internal/display"
	"github.com/nixlim/zbx-alerting/internal/logging"
	"github.com/nixlim/zbx-alerting/internal/problem"
	"github.com/nixlim/zbx-alerting/internal/queue"
	"github.com/nixlim/zbx-alerting/internal/telemetry"
	"github.com/nixlim/zbx-alerting/internal/zabbix"
)

// State is the poll loop's position within a cycle.
type State int32

const (
	StateIdle State = iota
	StateFetching
	StateResolving
	StateFiltering
	StateRateLimiting
	StateQueuing
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateFetching:
		return "fetching"
	case StateResolving:
		return "resolving"
	case StateFiltering:
		return "filtering"
	case StateRateLimiting:
		return "rate_limiting"
	case StateQueuing:
		return "queuing"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

type Fetcher interface {
	ListProblems(ctx context.Context, filter problem.AckFilter, limit int) ([]problem.Problem, error)
}

type Resolver interface {
	Resolve(ctx context.Context, problems []problem.Problem) []problem.Problem
}

type Limiter interface {
	Allow() bool
}

type Options struct {
	AckFilter   problem.AckFilter
	Limit       int
	MaxNotif    int
	NotifyAcked bool
	Interval    time.Duration
	// CycleTimeout bounds one cycle started by Run. Cancelling Run's context
	// does not cancel a running cycle. Zero means twice the interval.
	CycleTimeout time.Duration
}

// CycleReport summarizes one cycle.
type CycleReport struct {
	Cycle       uint64
	Fetched     int
	Filter      FilterReport
	Candidates  int
	Admitted    int
	Requeued    int
	RateLimited int
	Evicted     int
	Removed     int
	Duration    time.Duration
}

type Poller struct {
	fetcher  Fetcher
	resolver Resolver
	limiter  Limiter
	table    *display.Table
	queue    *queue.Queue
	counters *telemetry.Counters
	opts     Options
	logger   *zap.Logger
	now      func() time.Time

	state atomic.Int32
	cycle atomic.Uint64
	mu    sync.Mutex // serializes RunCycle
}

func New(fetcher Fetcher, resolver Resolver, limiter Limiter, table *display.Table, q *queue.Queue,
	counters *telemetry.Counters, opts Options, logger *zap.Logger) *Poller {
	logger = logging.OrNop(logger)
	if counters == nil {
		counters = telemetry.NewCounters()
	}
	if opts.CycleTimeout <= 0 {
		opts.CycleTimeout = 2 * opts.Interval
	}
	return &Poller{
		fetcher:  fetcher,
		resolver: resolver,
		limiter:  limiter,
		table:    table,
		queue:    q,
		counters: counters,
		opts:     opts,
		logger:   logger.Named("poller"),
		now:      time.Now,
	}
}

func (p *Poller) State() State {
	return State(p.state.Load())
}

func (p *Poller) setState(s State) {
	prev := State(p.state.Swap(int32(s)))
	if prev == s {
		return
	}
	p.logger.Debug("state transition",
		zap.Uint64("cycle", p.cycle.Load()),
		zap.Stringer("from", prev),
		zap.Stringer("state", s),
	)
}

// Run executes a cycle immediately and then on every interval until ctx is
// cancelled. A tick that fires while a cycle is still running is skipped.
// On cancellation Run waits for the in-flight cycle before returning.
func (p *Poller) Run(ctx context.Context) error {
	if p.opts.Interval <= 0 {
		return fmt.Errorf("poller: interval must be positive, got %v", p.opts.Interval)
	}

	done := make(chan struct{}, 1)
	running := false
	start := func() {
		running = true
		go func() {
			cycleCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.opts.CycleTimeout)
			defer cancel()
			_, _ = p.RunCycle(cycleCtx)
			done <- struct{}{}
		}()
	}

	ticker := time.NewTicker(p.opts.Interval)
	defer ticker.Stop()
	start()

	for {
		select {
		case <-ctx.Done():
			if running {
				p.logger.Info("waiting for in-flight poll cycle")
				<-done
			}
			return nil
		case <-done:
			running = false
		case <-ticker.C:
			if running {
				p.counters.CyclesSkipped.Add(1)
				p.logger.Warn("previous poll cycle still running, skipping tick",
					zap.Uint64("cycle", p.cycle.Load()),
					zap.Stringer("state", p.State()),
				)
				continue
			}
			start()
		}
	}
}

// RunCycle performs one complete cycle. Errors abort the cycle and are
// logged here; the caller decides whether to keep polling.
func (p *Poller) RunCycle(ctx context.Context) (report CycleReport, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	report.Cycle = p.cycle.Add(1)
	started := p.now()
	p.counters.Cycles.Add(1)
	defer func() {
		report.Duration = p.now().Sub(started)
		p.setState(StateIdle)
	}()

	p.setState(StateFetching)
	problems, err := p.fetcher.ListProblems(ctx, p.opts.AckFilter, p.opts.Limit)
	if err != nil {
		p.counters.CycleErrors.Add(1)
		p.logCycleError(report.Cycle, err, p.now().Sub(started))
		return report, err
	}
	report.Fetched = len(problems)

	active := make(map[string]struct{}, len(problems))
	for _, pr := range problems {
		active[pr.EventID] = struct{}{}
	}
	for _, id := range p.table.Retain(active) {
		report.Removed++
		p.logger.Debug("problem no longer active", zap.String("event_id", id))
	}

	p.setState(StateResolving)
	problems = p.resolver.Resolve(ctx, problems)

	p.setState(StateFiltering)
	kept, fr := Filter(problems, p.table, p.opts.AckFilter, p.opts.NotifyAcked)
	report.Filter = fr
	p.counters.Filtered.Add(int64(fr.Total()))

	p.setState(StateRateLimiting)
	candidates := queue.Select(kept, p.opts.MaxNotif)
	report.Candidates = len(candidates)
	admitted := make([]problem.Problem, 0, len(candidates))
	var queued []problem.Problem
	for _, pr := range candidates {
		// Already admitted by an earlier cycle and not yet rendered.
		if p.queue.Contains(pr.EventID) {
			queued = append(queued, pr)
			continue
		}
		if !p.limiter.Allow() {
			report.RateLimited++
			p.counters.RateLimited.Add(1)
			p.logger.Debug("alert rate limited",
				zap.String("event_id", pr.EventID),
				zap.Stringer("severity", pr.Severity),
				zap.String("host", pr.DisplayHost()),
			)
			continue
		}
		admitted = append(admitted, pr)
	}

	p.setState(StateQueuing)
	now := p.now()
	for _, pr := range queued {
		if !p.queue.Replace(queue.Item{Problem: pr, AdmittedAt: now, Cycle: report.Cycle}) {
			continue
		}
		report.Requeued++
		p.logger.Debug("alert already queued, refreshed",
			zap.String("event_id", pr.EventID),
			zap.Uint64("cycle", report.Cycle),
		)
	}
	for _, pr := range admitted {
		old, evicted := p.queue.Push(queue.Item{Problem: pr, AdmittedAt: now, Cycle: report.Cycle})
		report.Admitted++
		p.counters.Admitted.Add(1)

		fields := []zap.Field{
			zap.String("event_id", pr.EventID),
			zap.Stringer("severity", pr.Severity),
			zap.String("host", pr.DisplayHost()),
			zap.Uint64("cycle", report.Cycle),
		}
		if !pr.FirstSeen.IsZero() {
			fields = append(fields, zap.Duration("latency", now.Sub(pr.FirstSeen)))
		}
		p.logger.Info("alert admitted", fields...)

		if evicted {
			report.Evicted++
			p.counters.Evicted.Add(1)
			p.logger.Warn("alert queue full, evicted oldest unrendered alert",
				zap.String("event_id", old.Problem.EventID),
				zap.Stringer("severity", old.Problem.Severity),
				zap.Int("capacity", p.queue.Cap()),
			)
		}
	}

	p.logger.Debug("poll cycle complete",
		zap.Uint64("cycle", report.Cycle),
		zap.Int("fetched", report.Fetched),
		zap.Int("filtered", fr.Total()),
		zap.Int("admitted", report.Admitted),
		zap.Int("rate_limited", report.RateLimited),
		zap.Duration("latency", p.now().Sub(started)),
	)
	return report, nil
}

func (p *Poller) logCycleError(cycle uint64, err error, elapsed time.Duration) {
	fields := []zap.Field{
		zap.Uint64("cycle", cycle),
		zap.String("correlation_id", zabbix.CorrelationID(err)),
		zap.Duration("latency", elapsed),
		zap.Error(err),
	}
	switch {
	case zabbix.IsAuth(err):
		fields = append(fields, zap.Bool("operator_action_required", true))
		p.logger.Error("poll cycle aborted: backend rejected credentials", fields...)
	case zabbix.IsMalformed(err):
		p.logger.Error("poll cycle aborted: malformed backend response", fields...)
	default:
		p.logger.Error("poll cycle aborted", fields...)
	}
}
