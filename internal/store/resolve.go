package store

import (
	"context"

	"github.com/desertthunder/cardtpl/internal/models"
)

// ResolveDefaultTemplate returns the sheet default's content, then the global default's,
// then fallback. Empty content never wins.
func (s *Store) ResolveDefaultTemplate(sheetType, fallback string) string {
	if t, ok := s.SheetDefaultTemplate(sheetType); ok && t.Content != "" {
		return t.Content
	}
	if t, ok := s.GlobalDefaultTemplate(); ok && t.Content != "" {
		return t.Content
	}
	return fallback
}

// ResolveCardTemplate returns the effective template content for a card using only cached
// state. Precedence: managed binding's template, detached snapshot, sheet default, global
// default, fallback. A managed binding whose template is not cached falls through.
func (s *Store) ResolveCardTemplate(channelID, cardID, sheetType, fallback string) string {
	if b, ok := s.Binding(channelID, cardID); ok {
		switch b.Mode {
		case models.ModeManaged:
			if t, ok := s.Template(b.TemplateID); ok && t.Content != "" {
				return t.Content
			}
		case models.ModeDetached:
			if b.TemplateSnapshot != "" {
				return b.TemplateSnapshot
			}
		}
	}
	return s.ResolveDefaultTemplate(sheetType, fallback)
}

// LoadAndResolve lazily loads templates and the channel's bindings, then resolves.
//
// Load failures are logged and resolution continues with whatever is cached.
func (s *Store) LoadAndResolve(ctx context.Context, channelID, cardID, sheetType, fallback string) string {
	if err := s.EnsureTemplatesLoaded(ctx); err != nil {
		s.logger.Warn("resolving without templates", "err", err)
	}
	if err := s.EnsureBindingsLoaded(ctx, channelID); err != nil {
		s.logger.Warn("resolving without bindings", "channel", channelID, "err", err)
	}
	return s.ResolveCardTemplate(channelID, cardID, sheetType, fallback)
}
