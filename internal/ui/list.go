package ui

import (
	"strings"

	"github.com/charmbracelet/bubbles/list"
	"github.com/desertthunder/cardtpl/internal/models"
)

var _ list.Item = templateItem{}

// templateItem wraps [models.Template] to implement [list.Item].
type templateItem struct {
	template models.Template
}

func (i templateItem) FilterValue() string {
	return i.template.Name + " " + i.template.SheetType
}

func (i templateItem) Title() string { return i.template.Name }

func (i templateItem) Description() string {
	parts := []string{}
	if i.template.SheetType != "" {
		parts = append(parts, i.template.SheetType)
	} else {
		parts = append(parts, "any sheet")
	}
	if i.template.IsGlobalDefault {
		parts = append(parts, "global default")
	}
	if i.template.IsSheetDefault {
		parts = append(parts, "sheet default")
	}
	return strings.Join(parts, " • ")
}

func templateItems(templates []models.Template) []list.Item {
	items := make([]list.Item, len(templates))
	for i, t := range templates {
		items[i] = templateItem{template: t}
	}
	return items
}
