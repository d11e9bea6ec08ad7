package store

import (
	"context"
	"fmt"

	"github.com/desertthunder/cardtpl/internal/models"
)

// CreateTemplate creates a template and caches the returned item.
//
// When the new template holds a default flag the full list is reloaded, since the server
// clears the flag on the previous holder. A nil item is returned when the server sent none.
func (s *Store) CreateTemplate(ctx context.Context, payload models.TemplatePayload) (*models.Template, error) {
	item, err := s.api.CreateTemplate(ctx, payload)
	if err != nil {
		return nil, err
	}
	if item == nil || item.ID == "" {
		return nil, nil
	}

	s.mu.Lock()
	s.putTemplateLocked(*item)
	s.mu.Unlock()

	if item.HasDefaultFlag() {
		if _, err := s.LoadTemplates(ctx, ""); err != nil {
			return item, err
		}
	}
	return item, nil
}

// UpdateTemplate applies a partial update and caches the returned item.
//
// The full list is reloaded when the result holds a default flag or the patch sets one.
func (s *Store) UpdateTemplate(ctx context.Context, id string, patch models.TemplatePatch) (*models.Template, error) {
	item, err := s.api.UpdateTemplate(ctx, id, patch)
	if err != nil {
		return nil, err
	}
	if item == nil || item.ID == "" {
		return nil, nil
	}

	s.mu.Lock()
	s.putTemplateLocked(*item)
	s.mu.Unlock()

	if item.HasDefaultFlag() || patch.TouchesDefaults() {
		if _, err := s.LoadTemplates(ctx, ""); err != nil {
			return item, err
		}
	}
	return item, nil
}

// DeleteTemplate deletes a template, drops it from the cache and reloads the list.
//
// Cached managed bindings that pointed at it are detached with the template's content as
// snapshot, matching what the server does to the stored bindings.
func (s *Store) DeleteTemplate(ctx context.Context, id string) error {
	if err := s.api.DeleteTemplate(ctx, id); err != nil {
		return err
	}

	s.mu.Lock()
	removed, cached := s.removeTemplateLocked(id)
	detached := 0
	for _, partition := range s.bindings {
		for card, b := range partition {
			if b.Mode != models.ModeManaged || b.TemplateID != id {
				continue
			}
			b.Mode = models.ModeDetached
			b.TemplateID = ""
			if cached {
				b.TemplateSnapshot = removed.Content
			}
			partition[card] = b
			detached++
		}
	}
	s.mu.Unlock()

	if detached > 0 {
		s.logger.Debug("detached cached bindings", "template", id, "count", detached)
	}

	_, err := s.LoadTemplates(ctx, "")
	return err
}

// SetTemplateDefault flags a template as global or sheet default and reloads the list.
func (s *Store) SetTemplateDefault(ctx context.Context, id string, scope models.DefaultScope) (*models.Template, error) {
	if !scope.Valid() {
		return nil, fmt.Errorf("unknown default scope %q", scope)
	}

	item, err := s.api.SetTemplateDefault(ctx, id, scope)
	if err != nil {
		return nil, err
	}

	if _, err := s.LoadTemplates(ctx, ""); err != nil {
		return item, err
	}
	return item, nil
}

// UpsertBinding creates or replaces a binding and patches only its channel's partition.
//
// A channel that was never fully loaded stays unloaded, so a later lazy load still
// fetches the rest of its bindings.
func (s *Store) UpsertBinding(ctx context.Context, payload models.BindingPayload) (*models.Binding, error) {
	item, err := s.api.UpsertBinding(ctx, payload)
	if err != nil {
		return nil, err
	}
	if item == nil || item.ChannelID == "" || item.ExternalCardID == "" {
		return item, nil
	}

	s.mu.Lock()
	s.putBindingLocked(*item)
	s.mu.Unlock()

	return item, nil
}

// CardRef identifies a card within a channel for binding calls.
type CardRef struct {
	ChannelID      string
	ExternalCardID string
	CardName       string
	SheetType      string
}

// BindCardToTemplate binds a card to a shared template in managed mode.
func (s *Store) BindCardToTemplate(ctx context.Context, card CardRef, templateID string) (*models.Binding, error) {
	return s.UpsertBinding(ctx, models.BindingPayload{
		ChannelID:      card.ChannelID,
		ExternalCardID: card.ExternalCardID,
		CardName:       card.CardName,
		SheetType:      card.SheetType,
		Mode:           models.ModeManaged,
		TemplateID:     templateID,
	})
}

// BindCardToDetachedTemplate gives a card its own copy of template content.
func (s *Store) BindCardToDetachedTemplate(ctx context.Context, card CardRef, snapshot string) (*models.Binding, error) {
	return s.UpsertBinding(ctx, models.BindingPayload{
		ChannelID:        card.ChannelID,
		ExternalCardID:   card.ExternalCardID,
		CardName:         card.CardName,
		SheetType:        card.SheetType,
		Mode:             models.ModeDetached,
		TemplateSnapshot: snapshot,
	})
}

// EnsureBindingRequest describes the card to bind and the content to fall back to.
type EnsureBindingRequest struct {
	CardRef
	FallbackTemplate string
}

// EnsureCardBinding returns the card's binding, creating one when none exists.
//
// A new binding points at the sheet default, else the global default, else it is detached with
// the fallback content. An existing binding is returned unchanged. Empty channel or card ids
// return nil, nil.
func (s *Store) EnsureCardBinding(ctx context.Context, req EnsureBindingRequest) (*models.Binding, error) {
	if req.ChannelID == "" || req.ExternalCardID == "" {
		return nil, nil
	}

	if err := s.EnsureTemplatesLoaded(ctx); err != nil {
		return nil, err
	}
	if err := s.EnsureBindingsLoaded(ctx, req.ChannelID); err != nil {
		return nil, err
	}

	if existing, ok := s.Binding(req.ChannelID, req.ExternalCardID); ok {
		return &existing, nil
	}

	if t, ok := s.SheetDefaultTemplate(req.SheetType); ok && t.ID != "" {
		return s.BindCardToTemplate(ctx, req.CardRef, t.ID)
	}
	if t, ok := s.GlobalDefaultTemplate(); ok && t.ID != "" {
		return s.BindCardToTemplate(ctx, req.CardRef, t.ID)
	}
	return s.BindCardToDetachedTemplate(ctx, req.CardRef, req.FallbackTemplate)
}
