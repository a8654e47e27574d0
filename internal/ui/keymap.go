package ui

import "github.com/charmbracelet/bubbles/key"

// KeyMap defines the dashboard shortcuts.
type KeyMap struct {
	Refresh key.Binding
	Trigger key.Binding
	Tab     key.Binding
	Help    key.Binding
	Quit    key.Binding
}

// DefaultKeyMap returns the default key bindings
func DefaultKeyMap() KeyMap {
	return KeyMap{
		Refresh: key.NewBinding(
			key.WithKeys("r"),
			key.WithHelp("r", "refresh"),
		),
		Trigger: key.NewBinding(
			key.WithKeys("t"),
			key.WithHelp("t", "run batch"),
		),
		Tab: key.NewBinding(
			key.WithKeys("tab"),
			key.WithHelp("tab", "switch table"),
		),
		Help: key.NewBinding(
			key.WithKeys("?"),
			key.WithHelp("?", "help"),
		),
		Quit: key.NewBinding(
			key.WithKeys("q", "ctrl+c"),
			key.WithHelp("q/ctrl+c", "quit"),
		),
	}
}

// ShortHelp implements help.KeyMap.
func (k KeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Refresh, k.Trigger, k.Tab, k.Quit}
}

// FullHelp implements help.KeyMap.
func (k KeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{{k.Refresh, k.Trigger, k.Tab}, {k.Help, k.Quit}}
}
