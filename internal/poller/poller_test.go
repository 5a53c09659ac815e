package poller

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/nixlim/zbx-alerting/internal/display"
	"github.com/nixlim/zbx-alerting/internal/problem"
	"github.com/nixlim/zbx-alerting/internal/queue"
	"github.com/nixlim/zbx-alerting/internal/ratelimit"
	"github.com/nixlim/zbx-alerting/internal/telemetry"
	"github.com/nixlim/zbx-alerting/internal/zabbix"
)

type fakeFetcher struct {
	mu       sync.Mutex
	problems []problem.Problem
	err      error
	calls    int
	block    chan struct{} // when set, ListProblems waits on it
	gotLimit int
	gotMode  problem.AckFilter
}

func (f *fakeFetcher) ListProblems(ctx context.Context, mode problem.AckFilter, limit int) ([]problem.Problem, error) {
	f.mu.Lock()
	f.calls++
	f.gotLimit, f.gotMode = limit, mode
	block := f.block
	f.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	out := make([]problem.Problem, len(f.problems))
	copy(out, f.problems)
	return out, nil
}

func (f *fakeFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// nameResolver sets HostName from a fixed map, leaving misses as the raw id.
type nameResolver map[string]string

func (r nameResolver) Resolve(_ context.Context, problems []problem.Problem) []problem.Problem {
	out := make([]problem.Problem, len(problems))
	for i, p := range problems {
		if name, ok := r[p.HostID]; ok {
			p.HostName = name
		} else {
			p.HostName = p.HostID
		}
		out[i] = p
	}
	return out
}

type allowAll struct{}

func (allowAll) Allow() bool { return true }

type countingLimiter struct{ calls int }

func (l *countingLimiter) Allow() bool {
	l.calls++
	return true
}

type fixture struct {
	fetcher  *fakeFetcher
	table    *display.Table
	queue    *queue.Queue
	counters *telemetry.Counters
	poller   *Poller
	logs     *observer.ObservedLogs
}

func newFixture(t *testing.T, opts Options, limiter Limiter, problems ...problem.Problem) *fixture {
	t.Helper()
	core, logs := observer.New(zapcore.DebugLevel)
	f := &fixture{
		fetcher:  &fakeFetcher{problems: problems},
		table:    display.NewTable(),
		queue:    queue.New(64),
		counters: telemetry.NewCounters(),
		logs:     logs,
	}
	if opts.MaxNotif == 0 {
		opts.MaxNotif = 5
	}
	if opts.Interval == 0 {
		opts.Interval = time.Hour
	}
	if limiter == nil {
		limiter = allowAll{}
	}
	f.poller = New(f.fetcher, nameResolver{"h1": "web-01"}, limiter, f.table, f.queue, f.counters, opts, zap.New(core))
	return f
}

// render moves every queued item into the displayed table, as the
// dispatcher would.
func (f *fixture) render() []string {
	var ids []string
	for _, it := range f.queue.Drain() {
		f.table.Add(it.Problem, time.Now())
		ids = append(ids, it.Problem.EventID)
	}
	return ids
}

func prob(id string, sev problem.Severity, acked bool) problem.Problem {
	return problem.Problem{EventID: id, HostID: "h1", Severity: sev, Description: "problem " + id, Acknowledged: acked}
}

func TestRunCycle_SelectsBySeverityAndCap(t *testing.T) {
	f := newFixture(t, Options{MaxNotif: 2, NotifyAcked: true, AckFilter: problem.AckFilterAll}, nil,
		prob("1", problem.SeverityHigh, false),
		prob("2", problem.SeverityDisaster, false),
		prob("3", problem.SeverityWarning, false),
	)

	report, err := f.poller.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if report.Admitted != 2 || report.Candidates != 2 {
		t.Errorf("admitted/candidates = %d/%d, want 2/2", report.Admitted, report.Candidates)
	}
	got := f.render()
	if len(got) != 2 || got[0] != "2" || got[1] != "1" {
		t.Errorf("forwarded = %v, want [2 1]", got)
	}
	if f.poller.State() != StateIdle {
		t.Errorf("state after cycle = %v, want idle", f.poller.State())
	}
}

func TestRunCycle_IdempotentOnUnchangedResponse(t *testing.T) {
	f := newFixture(t, Options{AckFilter: problem.AckFilterUnacked}, nil,
		prob("1", problem.SeverityHigh, false),
		prob("2", problem.SeverityAverage, false),
	)

	if _, err := f.poller.RunCycle(context.Background()); err != nil {
		t.Fatalf("first cycle: %v", err)
	}
	if got := f.render(); len(got) != 2 {
		t.Fatalf("first cycle forwarded %v, want 2 alerts", got)
	}

	report, err := f.poller.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("second cycle: %v", err)
	}
	if report.Admitted != 0 {
		t.Errorf("unchanged backend response admitted %d alerts, want 0", report.Admitted)
	}
	if report.Filter.Unchanged != 2 {
		t.Errorf("unchanged = %d, want 2", report.Filter.Unchanged)
	}
}

func TestRunCycle_SeverityChangeRealerts(t *testing.T) {
	f := newFixture(t, Options{}, nil, prob("1", problem.SeverityWarning, false))
	f.poller.RunCycle(context.Background())
	f.render()

	f.fetcher.mu.Lock()
	f.fetcher.problems[0].Severity = problem.SeverityDisaster
	f.fetcher.mu.Unlock()

	report, _ := f.poller.RunCycle(context.Background())
	if report.Admitted != 1 {
		t.Errorf("severity change admitted %d, want 1", report.Admitted)
	}
}

func TestRunCycle_AckFilterModes(t *testing.T) {
	batch := []problem.Problem{prob("1", problem.SeverityHigh, true), prob("2", problem.SeverityHigh, false)}

	tests := []struct {
		name        string
		mode        problem.AckFilter
		notifyAcked bool
		want        []string
	}{
		{name: "unack excludes acknowledged", mode: problem.AckFilterUnacked, notifyAcked: true, want: []string{"2"}},
		{name: "all includes acknowledged", mode: problem.AckFilterAll, notifyAcked: true, want: []string{"1", "2"}},
		{name: "all without notify_acked", mode: problem.AckFilterAll, notifyAcked: false, want: []string{"2"}},
		{name: "ack only", mode: problem.AckFilterAcked, notifyAcked: true, want: []string{"1"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t, Options{AckFilter: tc.mode, NotifyAcked: tc.notifyAcked}, nil, batch...)
			if _, err := f.poller.RunCycle(context.Background()); err != nil {
				t.Fatalf("RunCycle: %v", err)
			}
			got := f.render()
			if len(got) != len(tc.want) {
				t.Fatalf("forwarded %v, want %v", got, tc.want)
			}
			for i := range got {
				if got[i] != tc.want[i] {
					t.Errorf("position %d: got %s, want %s", i, got[i], tc.want[i])
				}
			}
			if f.fetcher.gotMode != tc.mode {
				t.Errorf("fetcher saw mode %v, want %v", f.fetcher.gotMode, tc.mode)
			}
		})
	}
}

func TestRunCycle_RateLimitDropsExcess(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	limiter := ratelimit.New(5, 5*time.Second, ratelimit.WithClock(func() time.Time { return now }))

	var batch []problem.Problem
	for _, id := range []string{"1", "2", "3", "4", "5", "6", "7"} {
		batch = append(batch, prob(id, problem.SeverityHigh, false))
	}
	f := newFixture(t, Options{MaxNotif: 10}, limiter, batch...)

	report, err := f.poller.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if report.Admitted != 5 || report.RateLimited != 2 {
		t.Errorf("admitted/rate limited = %d/%d, want 5/2", report.Admitted, report.RateLimited)
	}
	if got := f.counters.RateLimited.Load(); got != 2 {
		t.Errorf("rate_limited counter = %d, want 2", got)
	}
	dropped := f.logs.FilterMessage("alert rate limited").All()
	if len(dropped) != 2 || dropped[0].Level != zapcore.DebugLevel {
		t.Errorf("expected 2 debug rate-limit logs, got %d", len(dropped))
	}
}

func TestRunCycle_StillQueuedSpendsNoToken(t *testing.T) {
	limiter := &countingLimiter{}
	f := newFixture(t, Options{}, limiter, prob("1", problem.SeverityHigh, false))

	if _, err := f.poller.RunCycle(context.Background()); err != nil {
		t.Fatalf("first cycle: %v", err)
	}
	f.fetcher.mu.Lock()
	f.fetcher.problems[0].Description = "still failing"
	f.fetcher.mu.Unlock()

	report, err := f.poller.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("second cycle: %v", err)
	}
	if limiter.calls != 1 {
		t.Errorf("limiter consulted %d times, want 1", limiter.calls)
	}
	if report.Admitted != 0 || report.Requeued != 1 {
		t.Errorf("admitted/requeued = %d/%d, want 0/1", report.Admitted, report.Requeued)
	}
	if got := f.counters.Admitted.Load(); got != 1 {
		t.Errorf("admitted counter = %d, want 1", got)
	}
	if n := f.logs.FilterMessage("alert admitted").Len(); n != 1 {
		t.Errorf("alert admitted logged %d times, want 1", n)
	}
	items := f.queue.Drain()
	if len(items) != 1 || items[0].Problem.Description != "still failing" || items[0].Cycle != report.Cycle {
		t.Errorf("queued = %+v, want refreshed event 1 from cycle %d", items, report.Cycle)
	}
}

func TestRunCycle_UnresolvedHostStillForwarded(t *testing.T) {
	p := prob("1", problem.SeverityHigh, false)
	p.HostID = "h-unknown"
	f := newFixture(t, Options{}, nil, p)

	if _, err := f.poller.RunCycle(context.Background()); err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	items := f.queue.Drain()
	if len(items) != 1 {
		t.Fatalf("forwarded %d, want 1", len(items))
	}
	if items[0].Problem.HostName != "h-unknown" {
		t.Errorf("HostName = %q, want placeholder raw id", items[0].Problem.HostName)
	}
}

func TestRunCycle_RemovesInactiveProblems(t *testing.T) {
	f := newFixture(t, Options{}, nil, prob("1", problem.SeverityHigh, false), prob("2", problem.SeverityHigh, false))
	f.poller.RunCycle(context.Background())
	f.render()

	f.fetcher.mu.Lock()
	f.fetcher.problems = f.fetcher.problems[1:]
	f.fetcher.mu.Unlock()

	report, _ := f.poller.RunCycle(context.Background())
	if report.Removed != 1 {
		t.Errorf("removed = %d, want 1", report.Removed)
	}
	if f.table.Contains("1") {
		t.Error("resolved problem should leave the displayed table")
	}
}

func TestRunCycle_EvictionLogged(t *testing.T) {
	f := newFixture(t, Options{MaxNotif: 3}, nil,
		prob("1", problem.SeverityHigh, false),
		prob("2", problem.SeverityHigh, false),
		prob("3", problem.SeverityHigh, false),
	)
	f.queue = queue.New(2)
	f.poller.queue = f.queue

	report, _ := f.poller.RunCycle(context.Background())
	if report.Evicted != 1 {
		t.Errorf("evicted = %d, want 1", report.Evicted)
	}
	warn := f.logs.FilterMessage("alert queue full, evicted oldest unrendered alert").All()
	if len(warn) != 1 || warn[0].Level != zapcore.WarnLevel {
		t.Fatalf("expected one eviction warning, got %d", len(warn))
	}
	if warn[0].ContextMap()["event_id"] != "1" {
		t.Errorf("evicted event_id = %v, want 1", warn[0].ContextMap()["event_id"])
	}
}

func TestRunCycle_AuthErrorAbortsProminently(t *testing.T) {
	f := newFixture(t, Options{}, nil)
	f.fetcher.err = &zabbix.AuthError{Method: "problem.get", CorrelationID: "corr-1", StatusCode: 401}

	_, err := f.poller.RunCycle(context.Background())
	if !zabbix.IsAuth(err) {
		t.Fatalf("RunCycle error = %v, want AuthError", err)
	}
	entries := f.logs.FilterLevelExact(zapcore.ErrorLevel).All()
	if len(entries) != 1 {
		t.Fatalf("expected one error log, got %d", len(entries))
	}
	ctx := entries[0].ContextMap()
	if ctx["operator_action_required"] != true {
		t.Error("auth failure should be flagged operator_action_required")
	}
	if ctx["correlation_id"] != "corr-1" {
		t.Errorf("correlation_id = %v, want corr-1", ctx["correlation_id"])
	}
	if f.poller.State() != StateIdle {
		t.Errorf("state after abort = %v, want idle", f.poller.State())
	}
	if f.counters.CycleErrors.Load() != 1 {
		t.Error("cycle error not counted")
	}
}

func TestRunCycle_StateTransitionsLogged(t *testing.T) {
	f := newFixture(t, Options{}, nil, prob("1", problem.SeverityHigh, false))
	f.poller.RunCycle(context.Background())

	var states []string
	for _, e := range f.logs.FilterMessage("state transition").All() {
		states = append(states, e.ContextMap()["state"].(string))
	}
	want := []string{"fetching", "resolving", "filtering", "rate_limiting", "queuing", "idle"}
	if len(states) != len(want) {
		t.Fatalf("transitions = %v, want %v", states, want)
	}
	for i := range want {
		if states[i] != want[i] {
			t.Errorf("transition %d = %s, want %s", i, states[i], want[i])
		}
	}
}

func TestRun_SkipsOverlappingTicks(t *testing.T) {
	f := newFixture(t, Options{Interval: 10 * time.Millisecond, CycleTimeout: 5 * time.Second}, nil)
	f.fetcher.block = make(chan struct{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.poller.Run(ctx) }()

	deadline := time.Now().Add(5 * time.Second)
	for f.counters.CyclesSkipped.Load() < 2 {
		if time.Now().After(deadline) {
			t.Fatal("no skipped ticks observed")
		}
		time.Sleep(5 * time.Millisecond)
	}
	if got := f.fetcher.callCount(); got != 1 {
		t.Errorf("fetch calls while blocked = %d, want 1", got)
	}

	cancel()
	select {
	case <-done:
		t.Fatal("Run returned before the in-flight cycle finished")
	case <-time.After(30 * time.Millisecond):
	}

	close(f.fetcher.block)
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cycle finished")
	}
}

func TestRun_ContinuesAfterErrors(t *testing.T) {
	f := newFixture(t, Options{Interval: 10 * time.Millisecond}, nil)
	f.fetcher.err = errors.New("connection refused")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go f.poller.Run(ctx)

	deadline := time.Now().Add(5 * time.Second)
	for f.fetcher.callCount() < 3 {
		if time.Now().After(deadline) {
			t.Fatal("poller stopped polling after errors")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestRun_RejectsZeroInterval(t *testing.T) {
	f := newFixture(t, Options{}, nil)
	f.poller.opts.Interval = 0
	if err := f.poller.Run(context.Background()); err == nil {
		t.Error("expected error for zero interval")
	}
}

func TestFilter_Report(t *testing.T) {
	tbl := display.NewTable()
	shown := prob("3", problem.SeverityHigh, false)
	tbl.Add(shown, time.Now())

	in := []problem.Problem{prob("1", problem.SeverityHigh, true), prob("2", problem.SeverityHigh, false), shown}
	kept, report := Filter(in, tbl, problem.AckFilterAll, false)
	if len(kept) != 1 || kept[0].EventID != "2" {
		t.Errorf("kept = %v, want only event 2", kept)
	}
	if report.Acked != 1 || report.Unchanged != 1 || report.Total() != 2 {
		t.Errorf("report = %+v", report)
	}
}
