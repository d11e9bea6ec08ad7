// package models defines the data model for character card templates and their channel bindings
package models

import (
	"strings"
	"time"
)

// BindingMode selects which field of a [Binding] is authoritative.
type BindingMode string

const (
	ModeManaged  BindingMode = "managed"  // TemplateID points at a shared template
	ModeDetached BindingMode = "detached" // TemplateSnapshot holds a private copy
)

// Valid reports whether m is one of the known binding modes.
func (m BindingMode) Valid() bool {
	return m == ModeManaged || m == ModeDetached
}

// DefaultScope names which default flag a set-default call targets.
type DefaultScope string

const (
	ScopeGlobal DefaultScope = "global"
	ScopeSheet  DefaultScope = "sheet"
)

// Valid reports whether s is one of the known default scopes.
func (s DefaultScope) Valid() bool {
	return s == ScopeGlobal || s == ScopeSheet
}

// Template is a named character sheet template owned by a user.
type Template struct {
	ID              string    `json:"id" yaml:"id"`
	UserID          string    `json:"userId" yaml:"user_id"`
	Name            string    `json:"name" yaml:"name"`
	SheetType       string    `json:"sheetType" yaml:"sheet_type"`
	Content         string    `json:"content" yaml:"content"`
	IsGlobalDefault bool      `json:"isGlobalDefault" yaml:"is_global_default"`
	IsSheetDefault  bool      `json:"isSheetDefault" yaml:"is_sheet_default"`
	CreatedAt       time.Time `json:"createdAt,omitzero" yaml:"created_at,omitempty"`
	UpdatedAt       time.Time `json:"updatedAt,omitzero" yaml:"updated_at,omitempty"`
}

// HasDefaultFlag reports whether either default flag is set.
func (t Template) HasDefaultFlag() bool {
	return t.IsGlobalDefault || t.IsSheetDefault
}

// Binding associates an external character card in a channel with template content.
//
// Exactly one binding exists per (ChannelID, ExternalCardID).
type Binding struct {
	ID               string      `json:"id" yaml:"id"`
	UserID           string      `json:"userId" yaml:"user_id"`
	ChannelID        string      `json:"channelId" yaml:"channel_id"`
	ExternalCardID   string      `json:"externalCardId" yaml:"external_card_id"`
	CardName         string      `json:"cardName" yaml:"card_name"`
	SheetType        string      `json:"sheetType" yaml:"sheet_type"`
	Mode             BindingMode `json:"mode" yaml:"mode"`
	TemplateID       string      `json:"templateId" yaml:"template_id"`
	TemplateSnapshot string      `json:"templateSnapshot" yaml:"template_snapshot"`
	CreatedAt        time.Time   `json:"createdAt,omitzero" yaml:"created_at,omitempty"`
	UpdatedAt        time.Time   `json:"updatedAt,omitzero" yaml:"updated_at,omitempty"`
}

// TemplatePayload is the request body for creating a template.
type TemplatePayload struct {
	Name            string `json:"name"`
	SheetType       string `json:"sheetType,omitempty"`
	Content         string `json:"content"`
	IsGlobalDefault *bool  `json:"isGlobalDefault,omitempty"`
	IsSheetDefault  *bool  `json:"isSheetDefault,omitempty"`
}

// TemplatePatch is the request body for a partial template update.
//
// Nil fields are left untouched.
type TemplatePatch struct {
	Name            *string `json:"name,omitempty"`
	SheetType       *string `json:"sheetType,omitempty"`
	Content         *string `json:"content,omitempty"`
	IsGlobalDefault *bool   `json:"isGlobalDefault,omitempty"`
	IsSheetDefault  *bool   `json:"isSheetDefault,omitempty"`
}

// TouchesDefaults reports whether the patch explicitly sets a default flag.
func (p TemplatePatch) TouchesDefaults() bool {
	return p.IsGlobalDefault != nil || p.IsSheetDefault != nil
}

// BindingPayload is the request body for the binding upsert endpoint.
type BindingPayload struct {
	ChannelID        string      `json:"channelId"`
	ExternalCardID   string      `json:"externalCardId"`
	CardName         string      `json:"cardName,omitempty"`
	SheetType        string      `json:"sheetType,omitempty"`
	Mode             BindingMode `json:"mode"`
	TemplateID       string      `json:"templateId"`
	TemplateSnapshot string      `json:"templateSnapshot"`
}

// CharacterCard is the minimal card description used when binding or migrating.
type CharacterCard struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	SheetType string `json:"sheetType"`
}

// NormalizeSheetType lower-cases and trims a sheet type for comparison.
func NormalizeSheetType(sheetType string) string {
	return strings.ToLower(strings.TrimSpace(sheetType))
}

// SameSheetType reports whether two sheet types match after normalization.
func SameSheetType(a, b string) bool {
	return NormalizeSheetType(a) == NormalizeSheetType(b)
}

// Bool returns a pointer to b, for building payloads.
func Bool(b bool) *bool { return &b }

// String returns a pointer to s, for building patches.
func String(s string) *string { return &s }
