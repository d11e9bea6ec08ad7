package models

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/desertthunder/cardtpl/internal/shared"
)

const (
	MaxNameLength      = 100
	MaxSheetTypeLength = 32
)

// Normalize trims the payload and checks it against the server's field rules.
func (p *TemplatePayload) Normalize() error {
	p.Name = strings.TrimSpace(p.Name)
	p.SheetType = strings.TrimSpace(p.SheetType)
	p.Content = strings.TrimSpace(p.Content)

	if err := validateName(p.Name); err != nil {
		return err
	}
	if err := validateSheetType(p.SheetType); err != nil {
		return err
	}
	if p.Content == "" {
		return fmt.Errorf("%w: template content is required", shared.ErrInvalidInput)
	}
	if p.IsSheetDefault != nil && *p.IsSheetDefault && p.SheetType == "" {
		return fmt.Errorf("%w: sheet default requires a sheet type", shared.ErrInvalidInput)
	}
	return nil
}

// Normalize trims the non-nil fields of the patch and validates them.
func (p *TemplatePatch) Normalize() error {
	if p.Name != nil {
		name := strings.TrimSpace(*p.Name)
		if err := validateName(name); err != nil {
			return err
		}
		p.Name = &name
	}
	if p.SheetType != nil {
		sheetType := strings.TrimSpace(*p.SheetType)
		if err := validateSheetType(sheetType); err != nil {
			return err
		}
		p.SheetType = &sheetType
	}
	if p.Content != nil {
		content := strings.TrimSpace(*p.Content)
		if content == "" {
			return fmt.Errorf("%w: template content is required", shared.ErrInvalidInput)
		}
		p.Content = &content
	}
	return nil
}

// Normalize trims the payload, defaults the mode to managed and enforces
// that the authoritative field for the mode is present.
func (p *BindingPayload) Normalize() error {
	p.ChannelID = strings.TrimSpace(p.ChannelID)
	p.ExternalCardID = strings.TrimSpace(p.ExternalCardID)
	p.CardName = strings.TrimSpace(p.CardName)
	p.SheetType = strings.TrimSpace(p.SheetType)
	p.Mode = BindingMode(strings.TrimSpace(string(p.Mode)))
	p.TemplateID = strings.TrimSpace(p.TemplateID)
	p.TemplateSnapshot = strings.TrimSpace(p.TemplateSnapshot)

	if p.ChannelID == "" {
		return fmt.Errorf("%w: channel id is required", shared.ErrInvalidInput)
	}
	if p.ExternalCardID == "" {
		return fmt.Errorf("%w: card id is required", shared.ErrInvalidInput)
	}
	if p.Mode == "" {
		p.Mode = ModeManaged
	}

	switch p.Mode {
	case ModeManaged:
		if p.TemplateID == "" {
			return fmt.Errorf("%w: managed binding requires a template id", shared.ErrInvalidInput)
		}
		p.TemplateSnapshot = ""
	case ModeDetached:
		if p.TemplateSnapshot == "" {
			return fmt.Errorf("%w: detached binding requires template content", shared.ErrInvalidInput)
		}
		p.TemplateID = ""
	default:
		return fmt.Errorf("%w: unknown binding mode %q", shared.ErrInvalidInput, p.Mode)
	}
	return nil
}

func validateName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: template name is required", shared.ErrInvalidInput)
	}
	if utf8.RuneCountInString(name) > MaxNameLength {
		return fmt.Errorf("%w: template name must be at most %d characters", shared.ErrInvalidInput, MaxNameLength)
	}
	return nil
}

func validateSheetType(sheetType string) error {
	if utf8.RuneCountInString(sheetType) > MaxSheetTypeLength {
		return fmt.Errorf("%w: sheet type must be at most %d characters", shared.ErrInvalidInput, MaxSheetTypeLength)
	}
	return nil
}
