package alerts

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/nixlim/zbx-alerting/internal/problem"
)

// FormatOptions controls how problems become alerts.
type FormatOptions struct {
	AppName   string
	Icon      string
	OpenLabel string

	Sticky         bool
	Timeout        time.Duration
	DefaultTimeout bool

	AllowUnack bool
	AskMessage bool
	// CanOpen offers the Open button.
	CanOpen bool
}

// Formatter builds Alerts from problems.
type Formatter struct {
	opts FormatOptions
	now  func() time.Time
}

func NewFormatter(opts FormatOptions) *Formatter {
	if opts.OpenLabel == "" {
		opts.OpenLabel = "Open"
	}
	return &Formatter{opts: opts, now: time.Now}
}

// Format builds the alert for p.
func (f *Formatter) Format(p problem.Problem) Alert {
	return Alert{
		EventID:    p.EventID,
		AppName:    f.opts.AppName,
		Summary:    fmt.Sprintf("%s – %s", p.Severity, p.DisplayHost()),
		Body:       f.body(p),
		Urgency:    UrgencyFor(p.Severity),
		Expire:     f.expire(),
		Icon:       f.opts.Icon,
		Buttons:    f.buttons(p),
		Severity:   p.Severity,
		AskMessage: f.opts.AskMessage,
	}
}

func (f *Formatter) body(p problem.Problem) string {
	state := "[UNACK]"
	if p.Acknowledged {
		state = "[ACK]"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Event #%s %s\n%s", p.EventID, state, p.Description)
	if !p.FirstSeen.IsZero() {
		fmt.Fprintf(&b, "\nFirst seen %s", humanize.RelTime(p.FirstSeen, f.now(), "ago", "from now"))
	}
	return b.String()
}

func (f *Formatter) expire() time.Duration {
	switch {
	case f.opts.Sticky:
		return ExpireNever
	case f.opts.Timeout > 0:
		return f.opts.Timeout
	case f.opts.DefaultTimeout:
		return ExpireDefault
	default:
		return DefaultExpire
	}
}

func (f *Formatter) buttons(p problem.Problem) []Button {
	var out []Button
	switch {
	case !p.Acknowledged:
		out = append(out, Button{Kind: problem.ActionAcknowledge, Label: "Ack"})
	case f.opts.AllowUnack:
		out = append(out, Button{Kind: problem.ActionUnacknowledge, Label: "Unack"})
	}
	if f.opts.CanOpen {
		out = append(out, Button{Kind: problem.ActionOpen, Label: f.opts.OpenLabel})
	}
	return append(out, Button{Kind: problem.ActionDismiss, Label: "Dismiss"})
}

// UrgencyFor maps a severity to a notification urgency.
func UrgencyFor(s problem.Severity) string {
	switch {
	case s >= problem.SeverityHigh:
		return UrgencyCritical
	case s >= problem.SeverityWarning:
		return UrgencyNormal
	default:
		return UrgencyLow
	}
}
