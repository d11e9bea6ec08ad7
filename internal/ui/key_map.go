package ui

import "github.com/charmbracelet/bubbles/key"

// keyMap defines the [key.Binding] mapping for the TUI.
type keyMap struct {
	up     key.Binding
	down   key.Binding
	enter  key.Binding
	back   key.Binding
	global key.Binding
	sheet  key.Binding
	delete key.Binding
	yes    key.Binding
	no     key.Binding
	reload key.Binding
	quit   key.Binding
}

func newKeyMap() keyMap {
	return keyMap{
		up:     key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "up")),
		down:   key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "down")),
		enter:  key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "preview")),
		back:   key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "back")),
		global: key.NewBinding(key.WithKeys("g"), key.WithHelp("g", "global default")),
		sheet:  key.NewBinding(key.WithKeys("s"), key.WithHelp("s", "sheet default")),
		delete: key.NewBinding(key.WithKeys("d"), key.WithHelp("d", "delete")),
		yes:    key.NewBinding(key.WithKeys("y"), key.WithHelp("y", "yes")),
		no:     key.NewBinding(key.WithKeys("n", "esc"), key.WithHelp("n", "no")),
		reload: key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "reload")),
		quit:   key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	}
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.up, k.down, k.enter},
		{k.global, k.sheet, k.delete},
		{k.back, k.yes, k.no},
		{k.reload, k.quit},
	}
}
