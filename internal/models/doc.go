// Package models defines the entities exchanged with the character card template API.
//
// The package contains two categories of types:
//
// 1. Records returned by the API and held in client caches
//   - [Template] : A named sheet template with global/sheet default flags
//   - [Binding] : The association of an external card in a channel with either a shared template ([ModeManaged])
//     or a private snapshot ([ModeDetached])
//
// 2. Request payloads
//   - [TemplatePayload] : Create body
//   - [TemplatePatch] : Partial update body, nil fields untouched
//   - [BindingPayload] : Upsert body
//
// Sheet types are free-form tags compared with [NormalizeSheetType] (trimmed, lower-cased).
//
// The Normalize methods on payloads apply the server's validation rules and return errors wrapping
// [shared.ErrInvalidInput].
package models
