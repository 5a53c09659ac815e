package zabbix

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nixlim/zbx-alerting/internal/problem"
)

// Acknowledgement action bits of event.acknowledge. These are wire values.
const (
	ActionAcknowledge   = 2
	ActionAddMessage    = 4
	ActionUnacknowledge = 16
)

// ActionBits returns the event.acknowledge action mask: 2 to acknowledge,
// 16 to unacknowledge, plus 4 when a non-empty message is attached.
func ActionBits(ack bool, message string) int {
	bits := ActionUnacknowledge
	if ack {
		bits = ActionAcknowledge
	}
	if message != "" {
		bits |= ActionAddMessage
	}
	return bits
}

type AckOptions struct {
	Ack     bool
	Message string
}

type AckResult struct {
	EventIDs      []string
	Action        int
	CorrelationID string
}

var problemOutput = []string{"eventid", "objectid", "name", "severity", "clock", "lastchange", "acknowledged"}

// ListProblems fetches up to limit active problems, newest first.
func (c *Client) ListProblems(ctx context.Context, filter problem.AckFilter, limit int) ([]problem.Problem, error) {
	params := map[string]any{
		"output":      problemOutput,
		"selectHosts": []string{"hostid"},
		"recent":      false,
		"limit":       limit,
		"sortfield":   []string{"eventid"},
		"sortorder":   "DESC",
	}
	switch filter {
	case problem.AckFilterAcked:
		params["acknowledged"] = true
	case problem.AckFilterUnacked:
		params["acknowledged"] = false
	}

	const method = "problem.get"
	var raw []rawProblem
	correlationID, err := c.call(ctx, method, params, &raw)
	if err != nil {
		return nil, err
	}

	problems := make([]problem.Problem, 0, len(raw))
	for _, r := range raw {
		p, err := r.toProblem()
		if err != nil {
			return nil, &MalformedResponseError{
				Method:        method,
				CorrelationID: correlationID,
				Reason:        fmt.Sprintf("event %q", string(r.EventID)),
				Err:           err,
			}
		}
		problems = append(problems, p)
	}
	return problems, nil
}

func (r rawProblem) toProblem() (problem.Problem, error) {
	if r.EventID == "" {
		return problem.Problem{}, errors.New("missing eventid")
	}
	if r.Severity == nil {
		return problem.Problem{}, errors.New("missing severity")
	}
	sev, err := problem.ParseSeverity(int(*r.Severity))
	if err != nil {
		return problem.Problem{}, err
	}

	p := problem.Problem{
		EventID:      string(r.EventID),
		Severity:     sev,
		Description:  r.Name,
		Acknowledged: bool(r.Acknowledged),
	}
	if len(r.Hosts) > 0 {
		p.HostID = string(r.Hosts[0].HostID)
		p.HostName = r.Hosts[0].displayName()
	}
	if r.Clock > 0 {
		p.FirstSeen = time.Unix(int64(r.Clock), 0)
	}
	p.LastChange = p.FirstSeen
	if r.LastChange != nil && *r.LastChange > 0 {
		p.LastChange = time.Unix(int64(*r.LastChange), 0)
	}
	return p, nil
}

// ResolveHost returns the display name of hostID: its visible name, else
// its technical host name, else the raw id.
func (c *Client) ResolveHost(ctx context.Context, hostID string) (string, error) {
	params := map[string]any{
		"hostids": []string{hostID},
		"output":  []string{"hostid", "host", "name", "status"},
	}
	var hosts []rawHost
	if _, err := c.call(ctx, "host.get", params, &hosts); err != nil {
		return "", err
	}
	for _, h := range hosts {
		if name := h.displayName(); name != "" {
			return name, nil
		}
	}
	return hostID, nil
}

// Acknowledge acknowledges or unacknowledges one event.
func (c *Client) Acknowledge(ctx context.Context, eventID string, opts AckOptions) (AckResult, error) {
	message := strings.TrimSpace(opts.Message)
	action := ActionBits(opts.Ack, message)
	params := map[string]any{
		"eventids": []string{eventID},
		"action":   action,
	}
	if message != "" {
		params["message"] = message
	}

	var resp ackResponse
	correlationID, err := c.call(ctx, "event.acknowledge", params, &resp)
	if err != nil {
		return AckResult{Action: action, CorrelationID: correlationID}, err
	}

	ids := make([]string, len(resp.EventIDs))
	for i, id := range resp.EventIDs {
		ids[i] = string(id)
	}
	return AckResult{EventIDs: ids, Action: action, CorrelationID: correlationID}, nil
}
