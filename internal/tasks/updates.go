package tasks

import (
	"fmt"

	"github.com/desertthunder/cardtpl/internal/models"
)

// ProgressUpdate represents a progress event during a long-running operation.
//
// Used to send real-time updates to the CLI or UI layer for display.
type ProgressUpdate struct {
	Phase   Phase  // Operation phase
	Step    int    // Current step number within phase
	Total   int    // Total steps in this phase
	Message string // Human-readable message for display
	Data    any    // Optional phase-specific data for advanced UIs
}

// Operation phase enumeration
type Phase int

const (
	LoadTemplates Phase = iota
	LoadBindings
	EnsureBindings
	MigrateLegacy
	ExportTemplates
)

func (p Phase) String() string {
	switch p {
	case LoadTemplates:
		return "load_templates"
	case LoadBindings:
		return "load_bindings"
	case EnsureBindings:
		return "ensure_bindings"
	case MigrateLegacy:
		return "migrate_legacy"
	case ExportTemplates:
		return "export_templates"
	default:
		return ""
	}
}

func loadTemplatesUpdate() ProgressUpdate {
	return ProgressUpdate{
		Phase:   LoadTemplates,
		Step:    1,
		Total:   1,
		Message: "Loading templates...",
	}
}

func channelLoadedUpdate(step, total int, channelID string, err error) ProgressUpdate {
	msg := fmt.Sprintf("[%d/%d] ✓ %s", step, total, channelID)
	if err != nil {
		msg = fmt.Sprintf("[%d/%d] ✗ %s: %v", step, total, channelID, err)
	}
	return ProgressUpdate{
		Phase:   LoadBindings,
		Step:    step,
		Total:   total,
		Message: msg,
	}
}

func ensureCardUpdate(step, total int, card models.CharacterCard, res CardBindingResult) ProgressUpdate {
	label := card.Name
	if label == "" {
		label = card.ID
	}

	msg := fmt.Sprintf("[%d/%d] %s → %s", step, total, label, res.Outcome)
	if res.Error != nil {
		msg = fmt.Sprintf("[%d/%d] ✗ %s: %v", step, total, label, res.Error)
	}
	return ProgressUpdate{
		Phase:   EnsureBindings,
		Step:    step,
		Total:   total,
		Message: msg,
		Data:    res,
	}
}

func migrationUpdate(report any, status fmt.Stringer) ProgressUpdate {
	return ProgressUpdate{
		Phase:   MigrateLegacy,
		Step:    1,
		Total:   1,
		Message: fmt.Sprintf("Legacy template migration %s", status),
		Data:    report,
	}
}

func exportCompletedUpdate(step, total int, name string, path string) ProgressUpdate {
	return ProgressUpdate{
		Phase:   ExportTemplates,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] ✓ %s (%s)", step, total, name, path),
	}
}

func exportFailedUpdate(step, total int, name string, err error) ProgressUpdate {
	return ProgressUpdate{
		Phase:   ExportTemplates,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] ✗ %s: %v", step, total, name, err),
	}
}
