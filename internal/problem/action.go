package problem

import (
	"fmt"
	"strings"
)

// ActionKind is the operator decision attached to a displayed alert.
type ActionKind int

const (
	ActionOpen ActionKind = iota
	ActionAcknowledge
	ActionUnacknowledge
	ActionDismiss
)

// String returns the short wire name used by renderers ("open", "ack", ...).
func (k ActionKind) String() string {
	switch k {
	case ActionOpen:
		return "open"
	case ActionAcknowledge:
		return "ack"
	case ActionUnacknowledge:
		return "unack"
	case ActionDismiss:
		return "dismiss"
	default:
		return fmt.Sprintf("ActionKind(%d)", int(k))
	}
}

// ParseActionKind maps a renderer action key back to an ActionKind.
func ParseActionKind(s string) (ActionKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "open":
		return ActionOpen, nil
	case "ack", "acknowledge":
		return ActionAcknowledge, nil
	case "unack", "unacknowledge":
		return ActionUnacknowledge, nil
	case "dismiss", "ignore":
		return ActionDismiss, nil
	default:
		return 0, fmt.Errorf("unknown action: %q", s)
	}
}

// Action is a user-issued decision delivered by a renderer. It is consumed
// exactly once by the action bridge.
type Action struct {
	EventID string
	Kind    ActionKind
	Message string // optional free text for ack/unack
}
