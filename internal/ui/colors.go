package ui

import (
	"github.com/charmbracelet/lipgloss"
)

var styles = newPalette(paletteColors{
	accent: "#7D56F4",
	ok:     "#04B575",
	err:    "#FF0000",
	warn:   "#FFA500",
	muted:  "#626262",
	global: "#F25D94",
	sheet:  "#3C8DBC",
})

type paletteColors struct {
	accent, ok, err, warn, muted, global, sheet string
}

// palette holds the named styles the views render with.
type palette struct {
	title       lipgloss.Style
	ok          lipgloss.Style
	err         lipgloss.Style
	warn        lipgloss.Style
	help        lipgloss.Style
	globalBadge lipgloss.Style
	sheetBadge  lipgloss.Style
}

func newPalette(c paletteColors) *palette {
	return &palette{
		title:       bold(c.accent).MarginBottom(1),
		ok:          bold(c.ok),
		err:         bold(c.err),
		warn:        fg(c.warn),
		help:        fg(c.muted).Italic(true),
		globalBadge: badge(c.global),
		sheetBadge:  badge(c.sheet),
	}
}

func fg(color string) lipgloss.Style {
	return lipgloss.NewStyle().Foreground(lipgloss.Color(color))
}

func bold(color string) lipgloss.Style {
	return fg(color).Bold(true)
}

func badge(color string) lipgloss.Style {
	return lipgloss.NewStyle().
		Foreground(lipgloss.Color("#FFFFFF")).
		Background(lipgloss.Color(color)).
		Padding(0, 1).
		MarginLeft(1)
}
