package ui

import (
	"context"
	"fmt"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/desertthunder/cardtpl/internal/formatter"
	"github.com/desertthunder/cardtpl/internal/models"
	"github.com/desertthunder/cardtpl/internal/store"
)

// ViewState represents the current view in the TUI.
type ViewState int

const (
	TemplateListView ViewState = iota
	PreviewView
	ConfirmDeleteView
)

// Model represents the TUI application state.
type Model struct {
	ctx      context.Context
	view     ViewState
	store    *store.Store
	width    int
	height   int
	list     list.Model
	preview  viewport.Model
	selected *models.Template
	previous ViewState
	status   string
	err      error
	help     help.Model
	keys     keyMap
}

// NewModel creates a new TUI model browsing the templates held by s.
func NewModel(ctx context.Context, s *store.Store) *Model {
	l := list.New(nil, list.NewDefaultDelegate(), 0, 0)
	l.Title = "Character Card Templates"

	return &Model{
		ctx:     ctx,
		view:    TemplateListView,
		store:   s,
		list:    l,
		preview: viewport.New(0, 0),
		help:    help.New(),
		keys:    newKeyMap(),
	}
}

// View returns the current view state.
func (m *Model) View() string {
	switch m.view {
	case TemplateListView:
		return m.renderList()
	case PreviewView:
		return m.renderPreview()
	case ConfirmDeleteView:
		return m.renderConfirm()
	default:
		return ""
	}
}

// Init loads the template list.
func (m *Model) Init() tea.Cmd {
	return m.loadTemplates()
}

// Update handles incoming messages and updates the model state.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.list.SetSize(msg.Width-4, msg.Height-8)
		m.preview.Width = msg.Width - 4
		m.preview.Height = msg.Height - 8
		return m, nil

	case tea.KeyMsg:
		switch m.view {
		case TemplateListView:
			return m.handleListKeys(msg)
		case PreviewView:
			return m.handlePreviewKeys(msg)
		case ConfirmDeleteView:
			return m.handleConfirmKeys(msg)
		}

	case Msg:
		return m.handleMsg(msg)
	}

	return m.updateActive(msg)
}

func (m *Model) handleMsg(msg Msg) (tea.Model, tea.Cmd) {
	switch msg.kind {
	case MsgTemplatesLoaded:
		data := msg.data.(templatesLoaded)
		if data.err != nil {
			m.err = data.err
			return m, nil
		}
		m.err = nil
		return m, m.list.SetItems(templateItems(data.templates))

	case MsgTemplateChanged:
		data := msg.data.(templateChanged)
		if data.err != nil {
			m.err = data.err
			m.status = ""
		} else {
			m.err = nil
			m.status = data.status
		}

		if m.selected != nil {
			if t, ok := m.store.Template(m.selected.ID); ok {
				m.selected = &t
			} else {
				m.selected = nil
				m.view = TemplateListView
			}
		}
		return m, m.list.SetItems(templateItems(m.store.Templates()))

	case MsgPreviewRendered:
		data := msg.data.(previewRendered)
		if data.err != nil {
			m.err = data.err
			return m, nil
		}
		t := data.template
		m.selected = &t
		m.preview.SetContent(data.content)
		m.preview.GotoTop()
		m.view = PreviewView
		return m, nil
	}
	return m, nil
}

func (m *Model) handleListKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.list.FilterState() == list.Filtering {
		return m.updateActive(msg)
	}

	switch {
	case key.Matches(msg, m.keys.quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.reload):
		m.status = "Reloading templates..."
		return m, m.reload()
	}

	t, ok := m.selectedItem()
	if ok {
		switch {
		case key.Matches(msg, m.keys.enter):
			return m, m.renderTemplate(t)
		case key.Matches(msg, m.keys.global):
			return m, m.setDefault(t, models.ScopeGlobal)
		case key.Matches(msg, m.keys.sheet):
			return m, m.setDefault(t, models.ScopeSheet)
		case key.Matches(msg, m.keys.delete):
			m.selected = &t
			m.previous = TemplateListView
			m.view = ConfirmDeleteView
			return m, nil
		}
	}

	return m.updateActive(msg)
}

func (m *Model) handlePreviewKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.back):
		m.view = TemplateListView
		return m, nil
	}

	if m.selected != nil {
		switch {
		case key.Matches(msg, m.keys.global):
			return m, m.setDefault(*m.selected, models.ScopeGlobal)
		case key.Matches(msg, m.keys.sheet):
			return m, m.setDefault(*m.selected, models.ScopeSheet)
		case key.Matches(msg, m.keys.delete):
			m.previous = PreviewView
			m.view = ConfirmDeleteView
			return m, nil
		}
	}

	return m.updateActive(msg)
}

func (m *Model) handleConfirmKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.yes):
		if m.selected == nil {
			m.view = TemplateListView
			return m, nil
		}
		m.view = m.previous
		return m, m.deleteTemplate(*m.selected)
	case key.Matches(msg, m.keys.no), key.Matches(msg, m.keys.quit):
		m.view = m.previous
		return m, nil
	}
	return m, nil
}

func (m *Model) updateActive(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	switch m.view {
	case TemplateListView:
		m.list, cmd = m.list.Update(msg)
	case PreviewView:
		m.preview, cmd = m.preview.Update(msg)
	}
	return m, cmd
}

func (m *Model) selectedItem() (models.Template, bool) {
	item, ok := m.list.SelectedItem().(templateItem)
	if !ok {
		return models.Template{}, false
	}
	return item.template, true
}

func (m *Model) loadTemplates() tea.Cmd {
	return func() tea.Msg {
		templates, err := m.store.LoadTemplates(m.ctx, "")
		return templatesLoadedMsg(templates, err)
	}
}

// reload drops every cached template and binding before loading the list again.
func (m *Model) reload() tea.Cmd {
	return func() tea.Msg {
		m.store.Reset()
		templates, err := m.store.LoadTemplates(m.ctx, "")
		return templatesLoadedMsg(templates, err)
	}
}

func (m *Model) setDefault(t models.Template, scope models.DefaultScope) tea.Cmd {
	return func() tea.Msg {
		if _, err := m.store.SetTemplateDefault(m.ctx, t.ID, scope); err != nil {
			return templateChangedMsg("", err)
		}
		return templateChangedMsg(fmt.Sprintf("%s is now the %s default", t.Name, scope), nil)
	}
}

func (m *Model) deleteTemplate(t models.Template) tea.Cmd {
	return func() tea.Msg {
		if err := m.store.DeleteTemplate(m.ctx, t.ID); err != nil {
			return templateChangedMsg("", err)
		}
		return templateChangedMsg(fmt.Sprintf("Deleted %s", t.Name), nil)
	}
}

func (m *Model) renderTemplate(t models.Template) tea.Cmd {
	width := m.preview.Width
	return func() tea.Msg {
		if t.Content == "" {
			return previewRenderedMsg(t, styles.help.Render("(empty template)"), nil)
		}
		content, err := formatter.RenderContent(t.Content, width)
		return previewRenderedMsg(t, content, err)
	}
}

func (m *Model) statusLine() string {
	switch {
	case m.err != nil:
		return styles.err.Render(fmt.Sprintf("Error: %v", m.err))
	case m.status != "":
		return styles.ok.Render(m.status)
	default:
		return ""
	}
}

func (m *Model) renderList() string {
	helpKeys := []key.Binding{m.keys.enter, m.keys.global, m.keys.sheet, m.keys.delete, m.keys.reload, m.keys.quit}
	helpView := m.help.ShortHelpView(helpKeys)
	return fmt.Sprintf("%s\n%s\n\n%s", m.list.View(), m.statusLine(), helpView)
}

func (m *Model) renderPreview() string {
	if m.selected == nil {
		return m.renderList()
	}

	header := []string{styles.title.Render(m.selected.Name)}
	if m.selected.IsGlobalDefault {
		header = append(header, styles.globalBadge.Render("global default"))
	}
	if m.selected.IsSheetDefault {
		header = append(header, styles.sheetBadge.Render("sheet default"))
	}

	helpKeys := []key.Binding{m.keys.back, m.keys.global, m.keys.sheet, m.keys.delete, m.keys.quit}
	helpView := m.help.ShortHelpView(helpKeys)
	return fmt.Sprintf("%s\n%s\n%s\n\n%s", lipgloss.JoinHorizontal(lipgloss.Top, header...), m.preview.View(), m.statusLine(), helpView)
}

func (m *Model) renderConfirm() string {
	if m.selected == nil {
		return ""
	}

	title := styles.title.Render(fmt.Sprintf("Delete '%s'?", m.selected.Name))
	info := styles.warn.Render("Cards bound to this template keep a detached copy of its content.")

	helpKeys := []key.Binding{m.keys.yes, m.keys.no}
	helpView := m.help.ShortHelpView(helpKeys)
	return fmt.Sprintf("%s\n%s\n\n%s", title, info, helpView)
}
