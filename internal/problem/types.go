// Package problem holds the data model shared by the alert pipeline: the
// problems reported by the monitoring backend, their severities, and the
// operator actions that can be taken on them.
package problem

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Severity is the backend's ordered severity scale. Higher is worse.
type Severity int

const (
	SeverityNotClassified Severity = iota
	SeverityInformation
	SeverityWarning
	SeverityAverage
	SeverityHigh
	SeverityDisaster
)

var severityNames = [...]string{
	SeverityNotClassified: "Not classified",
	SeverityInformation:   "Information",
	SeverityWarning:       "Warning",
	SeverityAverage:       "Average",
	SeverityHigh:          "High",
	SeverityDisaster:      "Disaster",
}

// String returns the backend's display label for the severity.
func (s Severity) String() string {
	if s < SeverityNotClassified || s > SeverityDisaster {
		return fmt.Sprintf("Severity(%d)", int(s))
	}
	return severityNames[s]
}

// ParseSeverity maps a backend severity code (0-5) to a Severity.
func ParseSeverity(code int) (Severity, error) {
	if code < int(SeverityNotClassified) || code > int(SeverityDisaster) {
		return 0, fmt.Errorf("unexpected severity code %d", code)
	}
	return Severity(code), nil
}

// AckFilter selects which problems are requested from the backend.
type AckFilter int

const (
	AckFilterUnacked AckFilter = iota
	AckFilterAcked
	AckFilterAll
)

// String returns the canonical configuration spelling of the filter.
func (f AckFilter) String() string {
	switch f {
	case AckFilterUnacked:
		return "unack"
	case AckFilterAcked:
		return "ack"
	case AckFilterAll:
		return "all"
	default:
		return fmt.Sprintf("AckFilter(%d)", int(f))
	}
}

// ParseAckFilter accepts "ack", "acked", "unack", "unacked" and "all",
// case-insensitively.
func ParseAckFilter(s string) (AckFilter, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "unack", "unacked":
		return AckFilterUnacked, nil
	case "ack", "acked":
		return AckFilterAcked, nil
	case "all":
		return AckFilterAll, nil
	default:
		return 0, fmt.Errorf("unknown ack filter: %q", s)
	}
}

// UnmarshalText lets configuration decoders read the filter from a string.
func (f *AckFilter) UnmarshalText(text []byte) error {
	parsed, err := ParseAckFilter(string(text))
	if err != nil {
		return err
	}
	*f = parsed
	return nil
}

// MarshalText is the inverse of UnmarshalText.
func (f AckFilter) MarshalText() ([]byte, error) {
	return []byte(f.String()), nil
}

// Problem is one active issue as last reported by the backend. A poll
// cycle's problem list is an authoritative snapshot: problems are replaced
// wholesale, never patched field by field.
type Problem struct {
	EventID      string
	HostID       string
	HostName     string // empty until resolved
	Severity     Severity
	Description  string
	Acknowledged bool
	FirstSeen    time.Time
	LastChange   time.Time
}

// Fingerprint is the tuple that decides whether a re-observed problem is
// unchanged and must not alert again.
type Fingerprint struct {
	Severity     Severity
	Description  string
	Acknowledged bool
}

// Fingerprint returns the problem's essential attributes.
func (p Problem) Fingerprint() Fingerprint {
	return Fingerprint{
		Severity:     p.Severity,
		Description:  p.Description,
		Acknowledged: p.Acknowledged,
	}
}

// DisplayHost returns the resolved host name, falling back to the raw host
// ID and then to a fixed placeholder.
func (p Problem) DisplayHost() string {
	if p.HostName != "" {
		return p.HostName
	}
	if p.HostID != "" {
		return p.HostID
	}
	return "<unknown host>"
}

// CompareEventID orders event IDs ascending. IDs that are both decimal
// integers compare numerically so "9" sorts before "10"; anything else
// falls back to a string comparison.
func CompareEventID(a, b string) int {
	ai, aErr := strconv.ParseUint(a, 10, 64)
	bi, bErr := strconv.ParseUint(b, 10, 64)
	if aErr == nil && bErr == nil {
		switch {
		case ai < bi:
			return -1
		case ai > bi:
			return 1
		default:
			return 0
		}
	}
	return strings.Compare(a, b)
}
