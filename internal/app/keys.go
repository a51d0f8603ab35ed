package app

import "github.com/charmbracelet/bubbles/key"

// KeyMap holds the dashboard key bindings.
type KeyMap struct {
	Quit        key.Binding
	Help        key.Binding
	Up          key.Binding
	Down        key.Binding
	PageUp      key.Binding
	PageDown    key.Binding
	Details     key.Binding
	Logs        key.Binding
	ErrorLogs   key.Binding
	Rerun       key.Binding
	Open        key.Binding
	Copy        key.Binding
	Search      key.Binding
	Fuzzy       key.Binding
	Owner       key.Binding
	Repo        key.Binding
	Branch      key.Binding
	ClearFilter key.Binding
	LoadMissing key.Binding
	Refresh     key.Binding
}

// DefaultKeyMap returns the default bindings.
func DefaultKeyMap() KeyMap {
	return KeyMap{
		Quit:        key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
		Help:        key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "help")),
		Up:          key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "previous run")),
		Down:        key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "next run")),
		PageUp:      key.NewBinding(key.WithKeys("pgup", "ctrl+u"), key.WithHelp("pgup", "page up")),
		PageDown:    key.NewBinding(key.WithKeys("pgdown", "ctrl+d"), key.WithHelp("pgdn", "page down")),
		Details:     key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "run details")),
		Logs:        key.NewBinding(key.WithKeys("l"), key.WithHelp("l", "logs")),
		ErrorLogs:   key.NewBinding(key.WithKeys("e"), key.WithHelp("e", "error logs")),
		Rerun:       key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "re-run")),
		Open:        key.NewBinding(key.WithKeys("o"), key.WithHelp("o", "open in browser")),
		Copy:        key.NewBinding(key.WithKeys("y"), key.WithHelp("y", "copy run URL")),
		Search:      key.NewBinding(key.WithKeys("/"), key.WithHelp("/", "search")),
		Fuzzy:       key.NewBinding(key.WithKeys("z"), key.WithHelp("z", "fuzzy search")),
		Owner:       key.NewBinding(key.WithKeys("O"), key.WithHelp("O", "filter owner")),
		Repo:        key.NewBinding(key.WithKeys("R"), key.WithHelp("R", "filter repository")),
		Branch:      key.NewBinding(key.WithKeys("b"), key.WithHelp("b", "filter branch")),
		ClearFilter: key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "clear filter")),
		LoadMissing: key.NewBinding(key.WithKeys("L"), key.WithHelp("L", "load missing batches")),
		Refresh:     key.NewBinding(key.WithKeys("F"), key.WithHelp("F", "full refresh")),
	}
}

// Bindings lists every binding, in help order.
func (k KeyMap) Bindings() []key.Binding {
	return []key.Binding{
		k.Up, k.Down, k.PageUp, k.PageDown, k.Details, k.Logs, k.ErrorLogs,
		k.Rerun, k.Open, k.Copy, k.Search, k.Fuzzy, k.Owner, k.Repo, k.Branch,
		k.ClearFilter, k.LoadMissing, k.Refresh, k.Help, k.Quit,
	}
}
