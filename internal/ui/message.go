package ui

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/cardtpl/internal/models"
)

// MsgKind enumerates all message types in the application.
type MsgKind int

// Msg represents all possible messages in the TUI (Elm-style message union).
type Msg struct {
	kind MsgKind
	data any
}

var (
	_ tea.Msg = Msg{}
)

const (
	MsgTemplatesLoaded MsgKind = iota
	MsgTemplateChanged
	MsgPreviewRendered
)

type templatesLoaded struct {
	templates []models.Template
	err       error
}

type templateChanged struct {
	status string
	err    error
}

type previewRendered struct {
	template models.Template
	content  string
	err      error
}

// templatesLoadedMsg is the constructor for [MsgTemplatesLoaded]
func templatesLoadedMsg(templates []models.Template, err error) Msg {
	return Msg{kind: MsgTemplatesLoaded, data: templatesLoaded{templates, err}}
}

// templateChangedMsg is the constructor for [MsgTemplateChanged]
func templateChangedMsg(status string, err error) Msg {
	return Msg{kind: MsgTemplateChanged, data: templateChanged{status, err}}
}

// previewRenderedMsg is the constructor for [MsgPreviewRendered]
func previewRenderedMsg(t models.Template, content string, err error) Msg {
	return Msg{kind: MsgPreviewRendered, data: previewRendered{t, content, err}}
}
