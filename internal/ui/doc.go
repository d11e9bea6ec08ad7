// Package ui implements an interactive terminal browser for character card templates using bubbletea's Elm architecture.
//
// The TUI has three views:
//  1. [TemplateListView] : Browse and filter templates, defaults marked in the description
//  2. [PreviewView] : Template content rendered as Markdown
//  3. [ConfirmDeleteView] : Confirm deleting the selected template
//
// From the list or the preview, g and s make the selected template the global or sheet default and
// d asks to delete it. Every change goes through the [store.Store], which reloads the template list
// so the flags shown always come from the server. r reloads by hand.
//
// The (view) [Model] implements bubbletea/Elm's standard Init/Update/View pattern, receiving messages via the Msg union type.
//
// Keyboard navigation uses vim-style bindings (j/k, enter, esc, y/n, q) with contextual help displayed via charmbracelet/bubbles/help.
package ui
