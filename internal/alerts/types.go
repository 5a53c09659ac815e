// Package alerts is the boundary between the pipeline and whatever shows
// alerts to the operator. It formats admitted problems into Alerts, hands
// them to a Notifier, and feeds the buttons the operator presses back as
// problem.Actions.
package alerts

import (
	"context"
	"time"

	"github.com/nixlim/zbx-alerting/internal/problem"
)

// Urgency levels understood by desktop notification daemons.
const (
	UrgencyLow      = "low"
	UrgencyNormal   = "normal"
	UrgencyCritical = "critical"
)

// Expiry values with special meaning. Positive values are a timeout.
const (
	ExpireDefault time.Duration = -1 // leave it to the notification daemon
	ExpireNever   time.Duration = 0
)

// DefaultExpire is used when neither sticky, an explicit timeout nor the
// daemon default is configured.
const DefaultExpire = 5 * time.Second

// Button is one action offered on an alert.
type Button struct {
	Kind  problem.ActionKind
	Label string
}

// Alert is the rendering model for one problem.
type Alert struct {
	EventID  string
	AppName  string
	Summary  string
	Body     string
	Urgency  string
	Expire   time.Duration
	Icon     string
	Buttons  []Button
	Severity problem.Severity

	// AskMessage asks for an optional free-text message before an ack or
	// unack is submitted.
	AskMessage bool
}

// Button returns the button for kind, if offered.
func (a Alert) Button(kind problem.ActionKind) (Button, bool) {
	for _, b := range a.Buttons {
		if b.Kind == kind {
			return b, true
		}
	}
	return Button{}, false
}

// Notifier shows alerts to the operator.
type Notifier interface {
	// Notify renders the alert and returns once it is shown. Implementations
	// must not block waiting for the operator; their answer is delivered to
	// an ActionSink.
	Notify(ctx context.Context, alert Alert) error
}

// ActionSink accepts operator actions for the action bridge.
type ActionSink interface {
	Submit(ctx context.Context, a problem.Action) bool
}

// ChanSink submits actions on a channel.
type ChanSink chan problem.Action

// Submit blocks until the action is accepted or ctx is done.
func (s ChanSink) Submit(ctx context.Context, a problem.Action) bool {
	select {
	case s <- a:
		return true
	case <-ctx.Done():
		return false
	}
}
