package poller

import "github.com/nixlim/zbx-alerting/internal/problem"

// Displayed is the part of the displayed-alerts table the filter consults.
type Displayed interface {
	IsUnchanged(p problem.Problem) bool
}

// FilterReport counts why problems were dropped.
type FilterReport struct {
	Mode      int // outside the configured ack filter
	Acked     int // already acknowledged while notify_acked is off
	Unchanged int // displayed or dismissed with identical attributes
}

func (r FilterReport) Total() int { return r.Mode + r.Acked + r.Unchanged }

// Filter drops problems that must not alert: those outside the ack filter
// mode, acknowledged ones unless notifyAcked, and those whose displayed
// alert is unchanged. Order is preserved.
func Filter(problems []problem.Problem, table Displayed, mode problem.AckFilter, notifyAcked bool) ([]problem.Problem, FilterReport) {
	var (
		kept   = make([]problem.Problem, 0, len(problems))
		report FilterReport
	)
	for _, p := range problems {
		switch {
		case mode == problem.AckFilterUnacked && p.Acknowledged,
			mode == problem.AckFilterAcked && !p.Acknowledged:
			report.Mode++
		case !notifyAcked && p.Acknowledged:
			report.Acked++
		case table != nil && table.IsUnchanged(p):
			report.Unchanged++
		default:
			kept = append(kept, p)
		}
	}
	return kept, report
}
