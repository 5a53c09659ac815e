package console

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/nixlim/zbx-alerting/internal/alerts"
)

// Notifier renders alerts into a running console program.
type Notifier struct {
	send func(tea.Msg)
}

func NewNotifier(p *tea.Program) *Notifier {
	return &Notifier{send: p.Send}
}

func (n *Notifier) Notify(ctx context.Context, a alerts.Alert) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	n.send(alertMsg(a))
	return nil
}
