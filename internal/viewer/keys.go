package viewer

import "github.com/charmbracelet/bubbles/key"

// viewerKeys holds key bindings for the viewer.
type viewerKeys struct {
	Query   key.Binding
	Plane   key.Binding
	Time    key.Binding
	Toggle  key.Binding
	Tab     key.Binding
	Refresh key.Binding
	Quit    key.Binding
}

// ShortHelp returns the viewer bindings for the help bar.
func (k viewerKeys) ShortHelp() []key.Binding {
	return []key.Binding{k.Query, k.Plane, k.Time, k.Toggle, k.Tab, k.Quit}
}

// FullHelp returns the viewer bindings grouped for expanded help.
func (k viewerKeys) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Query, k.Plane, k.Time},
		{k.Toggle, k.Tab, k.Refresh, k.Quit},
	}
}

// ViewerKeyMap returns the key bindings for the viewer.
func ViewerKeyMap() viewerKeys {
	return viewerKeys{
		Query: key.NewBinding(
			key.WithKeys("i"),
			key.WithHelp("i", "toggle querying"),
		),
		Plane: key.NewBinding(
			key.WithKeys("z", "Z"),
			key.WithHelp("z/Z", "plane"),
		),
		Time: key.NewBinding(
			key.WithKeys("t", "T"),
			key.WithHelp("t/T", "time"),
		),
		Toggle: key.NewBinding(
			key.WithKeys("0", "1", "2", "3", "4", "5", "6", "7", "8", "9"),
			key.WithHelp("0-9", "channel"),
		),
		Tab: key.NewBinding(
			key.WithKeys("tab"),
			key.WithHelp("tab", "switch pane"),
		),
		Refresh: key.NewBinding(
			key.WithKeys("r"),
			key.WithHelp("r", "reload"),
		),
		Quit: key.NewBinding(
			key.WithKeys("q", "ctrl+c"),
			key.WithHelp("q", "quit"),
		),
	}
}
