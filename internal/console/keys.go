package console

import "github.com/charmbracelet/bubbles/key"

type KeyMap struct {
	Up         key.Binding
	Down       key.Binding
	Ack        key.Binding
	AckMessage key.Binding
	Unack      key.Binding
	Open       key.Binding
	Dismiss    key.Binding
	Enter      key.Binding
	Escape     key.Binding
	Quit       key.Binding
}

func DefaultKeyMap() KeyMap {
	return KeyMap{
		Up: key.NewBinding(
			key.WithKeys("up", "k"),
			key.WithHelp("↑/k", "up"),
		),
		Down: key.NewBinding(
			key.WithKeys("down", "j"),
			key.WithHelp("↓/j", "down"),
		),
		Ack: key.NewBinding(
			key.WithKeys("a"),
			key.WithHelp("a", "ack"),
		),
		AckMessage: key.NewBinding(
			key.WithKeys("A"),
			key.WithHelp("A", "ack with message"),
		),
		Unack: key.NewBinding(
			key.WithKeys("u"),
			key.WithHelp("u", "unack"),
		),
		Open: key.NewBinding(
			key.WithKeys("o"),
			key.WithHelp("o", "open"),
		),
		Dismiss: key.NewBinding(
			key.WithKeys("d"),
			key.WithHelp("d", "dismiss"),
		),
		Enter: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("enter", "send"),
		),
		Escape: key.NewBinding(
			key.WithKeys("esc"),
			key.WithHelp("esc", "cancel"),
		),
		Quit: key.NewBinding(
			key.WithKeys("q", "ctrl+c"),
			key.WithHelp("q", "quit"),
		),
	}
}

// ShortHelp lists the bindings shown in the footer.
func (k KeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Up, k.Down, k.Ack, k.AckMessage, k.Unack, k.Open, k.Dismiss, k.Quit}
}
