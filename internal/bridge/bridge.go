// Package bridge turns operator actions delivered by a renderer into
// backend calls. Only events present in the displayed-alerts table are
// acted on; anything else is discarded as stale.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/nixlim/zbx-alerting/internal/display"
	"github.com/nixlim/zbx-alerting/internal/logging"
	"github.com/nixlim/zbx-alerting/internal/problem"
	"github.com/nixlim/zbx-alerting/internal/telemetry"
	"github.com/nixlim/zbx-alerting/internal/zabbix"
)

var (
	// ErrStaleAction is returned for actions whose event is not displayed.
	ErrStaleAction = errors.New("bridge: action references an event that is not displayed")
	// ErrActionInFlight is returned when an ack or unack for the same event
	// has not completed yet.
	ErrActionInFlight = errors.New("bridge: an action for this event is already in flight")
	// ErrNoOpenURL is returned for Open when no viewer URL is configured.
	ErrNoOpenURL = errors.New("bridge: no open URL template configured")
)

type Acknowledger interface {
	Acknowledge(ctx context.Context, eventID string, opts zabbix.AckOptions) (zabbix.AckResult, error)
}

// Opener launches a URL for the operator, e.g. in a browser.
type Opener interface {
	Open(ctx context.Context, url string) error
}

type Options struct {
	// OpenURL maps an event id to the viewer URL, or "" if unavailable.
	OpenURL func(eventID string) string
	// AckTimeout bounds one acknowledgement call including retries.
	AckTimeout time.Duration
	Opener     Opener
}

// Outcome describes what Handle did.
type Outcome struct {
	EventID string
	Kind    problem.ActionKind
	URL     string // set for Open
	Ack     *zabbix.AckResult
}

type Bridge struct {
	acker    Acknowledger
	table    *display.Table
	counters *telemetry.Counters
	opts     Options
	logger   *zap.Logger

	wg sync.WaitGroup
}

func New(acker Acknowledger, table *display.Table, counters *telemetry.Counters, opts Options, logger *zap.Logger) *Bridge {
	logger = logging.OrNop(logger)
	if counters == nil {
		counters = telemetry.NewCounters()
	}
	if opts.AckTimeout <= 0 {
		opts.AckTimeout = 30 * time.Second
	}
	return &Bridge{
		acker:    acker,
		table:    table,
		counters: counters,
		opts:     opts,
		logger:   logger.Named("bridge"),
	}
}

// Handle processes one action synchronously.
//
// Acknowledge and Unacknowledge run on a context detached from ctx's
// cancellation and bounded by AckTimeout, so a shutdown never interrupts a
// call whose backend outcome would then be unknown.
func (b *Bridge) Handle(ctx context.Context, a problem.Action) (Outcome, error) {
	out := Outcome{EventID: a.EventID, Kind: a.Kind}

	if !b.table.Contains(a.EventID) {
		b.counters.ActionsStale.Add(1)
		b.logger.Info("discarding stale action",
			zap.String("event_id", a.EventID),
			zap.Stringer("kind", a.Kind),
		)
		return out, ErrStaleAction
	}

	switch a.Kind {
	case problem.ActionOpen:
		return b.open(ctx, out)
	case problem.ActionDismiss:
		b.table.Dismiss(a.EventID)
		b.counters.ActionsOK.Add(1)
		b.logger.Info("alert dismissed", zap.String("event_id", a.EventID))
		return out, nil
	case problem.ActionAcknowledge, problem.ActionUnacknowledge:
		return b.acknowledge(ctx, a, out)
	default:
		return out, fmt.Errorf("bridge: unsupported action %v", a.Kind)
	}
}

func (b *Bridge) open(ctx context.Context, out Outcome) (Outcome, error) {
	if b.opts.OpenURL != nil {
		out.URL = b.opts.OpenURL(out.EventID)
	}
	if out.URL == "" {
		b.logger.Info("open requested but no URL is configured", zap.String("event_id", out.EventID))
		return out, ErrNoOpenURL
	}
	if b.opts.Opener != nil {
		if err := b.opts.Opener.Open(ctx, out.URL); err != nil {
			b.counters.ActionsFailed.Add(1)
			b.logger.Error("failed to open event URL",
				zap.String("event_id", out.EventID),
				zap.String("url", out.URL),
				zap.Error(err),
			)
			return out, err
		}
	}
	b.counters.ActionsOK.Add(1)
	b.logger.Info("event URL opened", zap.String("event_id", out.EventID), zap.String("url", out.URL))
	return out, nil
}

func (b *Bridge) acknowledge(ctx context.Context, a problem.Action, out Outcome) (Outcome, error) {
	if !b.table.BeginAction(a.EventID) {
		if !b.table.Contains(a.EventID) {
			b.counters.ActionsStale.Add(1)
			return out, ErrStaleAction
		}
		b.logger.Info("discarding duplicate action",
			zap.String("event_id", a.EventID),
			zap.Stringer("kind", a.Kind),
		)
		return out, ErrActionInFlight
	}
	defer b.table.EndAction(a.EventID)

	ack := a.Kind == problem.ActionAcknowledge
	callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), b.opts.AckTimeout)
	defer cancel()

	started := time.Now()
	res, err := b.acker.Acknowledge(callCtx, a.EventID, zabbix.AckOptions{Ack: ack, Message: a.Message})
	latency := time.Since(started)
	if err != nil {
		b.counters.ActionsFailed.Add(1)
		b.logger.Error("action failed",
			zap.String("event_id", a.EventID),
			zap.Stringer("kind", a.Kind),
			zap.Int("action", res.Action),
			zap.String("correlation_id", zabbix.CorrelationID(err)),
			zap.Duration("latency", latency),
			zap.Bool("operator_action_required", zabbix.IsAuth(err)),
			zap.Error(err),
		)
		return out, err
	}

	b.table.SetAcknowledged(a.EventID, ack)
	b.counters.ActionsOK.Add(1)
	out.Ack = &res
	b.logger.Info("action dispatched",
		zap.String("event_id", a.EventID),
		zap.Stringer("kind", a.Kind),
		zap.Int("action", res.Action),
		zap.Bool("message", a.Message != ""),
		zap.String("correlation_id", res.CorrelationID),
		zap.Duration("latency", latency),
	)
	return out, nil
}

// Run consumes actions until ctx is done or the channel is closed. Each
// action is handled on its own goroutine. Actions already buffered when ctx
// is done are still handled. Before returning, Run waits for every action it
// started.
func (b *Bridge) Run(ctx context.Context, actions <-chan problem.Action) {
	defer b.wg.Wait()
	for {
		select {
		case <-ctx.Done():
			b.drain(ctx, actions)
			return
		case a, ok := <-actions:
			if !ok {
				return
			}
			b.dispatch(ctx, a)
		}
	}
}

func (b *Bridge) drain(ctx context.Context, actions <-chan problem.Action) {
	for {
		select {
		case a, ok := <-actions:
			if !ok {
				return
			}
			b.logger.Debug("handling buffered action after shutdown",
				zap.String("event_id", a.EventID),
				zap.Stringer("kind", a.Kind),
			)
			b.dispatch(ctx, a)
		default:
			return
		}
	}
}

func (b *Bridge) dispatch(ctx context.Context, a problem.Action) {
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		_, _ = b.Handle(ctx, a)
	}()
}
