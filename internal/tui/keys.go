package tui

import "github.com/charmbracelet/bubbles/key"

type keyMap struct {
	Up      key.Binding
	Down    key.Binding
	Open    key.Binding
	Log     key.Binding
	Delete  key.Binding
	Refresh key.Binding
	Back    key.Binding
	Quit    key.Binding
}

var keys = keyMap{
	Up: key.NewBinding(
		key.WithKeys("up", "k"),
		key.WithHelp("↑/k", "up"),
	),
	Down: key.NewBinding(
		key.WithKeys("down", "j"),
		key.WithHelp("↓/j", "down"),
	),
	Open: key.NewBinding(
		key.WithKeys("enter"),
		key.WithHelp("enter", "view"),
	),
	Log: key.NewBinding(
		key.WithKeys("l"),
		key.WithHelp("l", "hitl log"),
	),
	Delete: key.NewBinding(
		key.WithKeys("d"),
		key.WithHelp("d", "delete"),
	),
	Refresh: key.NewBinding(
		key.WithKeys("r"),
		key.WithHelp("r", "refresh"),
	),
	Back: key.NewBinding(
		key.WithKeys("esc", "q"),
		key.WithHelp("esc", "back"),
	),
	Quit: key.NewBinding(
		key.WithKeys("q", "ctrl+c"),
		key.WithHelp("q", "quit"),
	),
}

// listKeys implements help.KeyMap for the session list.
type listKeys struct{}

func (listKeys) ShortHelp() []key.Binding {
	return []key.Binding{keys.Open, keys.Delete, keys.Refresh, keys.Quit}
}

func (listKeys) FullHelp() [][]key.Binding {
	return [][]key.Binding{{keys.Up, keys.Down}, {keys.Open, keys.Delete, keys.Refresh, keys.Quit}}
}

type detailKeys struct{}

func (detailKeys) ShortHelp() []key.Binding {
	return []key.Binding{keys.Up, keys.Down, keys.Log, keys.Back}
}

func (detailKeys) FullHelp() [][]key.Binding {
	return [][]key.Binding{detailKeys{}.ShortHelp()}
}

type logKeys struct{}

func (logKeys) ShortHelp() []key.Binding {
	return []key.Binding{keys.Up, keys.Down, keys.Back}
}

func (logKeys) FullHelp() [][]key.Binding {
	return [][]key.Binding{logKeys{}.ShortHelp()}
}
