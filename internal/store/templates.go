package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/desertthunder/cardtpl/internal/models"
	"github.com/sahilm/fuzzy"
)

// LoadTemplates fetches the template list and replaces the cache wholesale, even when
// sheetType narrows the request.
func (s *Store) LoadTemplates(ctx context.Context, sheetType string) ([]models.Template, error) {
	items, err := s.api.ListTemplates(ctx, sheetType)
	if err != nil {
		return nil, fmt.Errorf("failed to load templates: %w", err)
	}

	s.mu.Lock()
	s.replaceTemplatesLocked(items)
	s.templatesLoaded = true
	s.mu.Unlock()

	s.logger.Debug("templates loaded", "count", len(items), "sheet_type", sheetType)
	return items, nil
}

// EnsureTemplatesLoaded loads the full template list once per session.
//
// Concurrent callers share a single request. A caller whose ctx ends stops waiting and gets
// ctx.Err(), while the shared request keeps running for the others.
func (s *Store) EnsureTemplatesLoaded(ctx context.Context) error {
	if s.TemplatesLoaded() {
		return nil
	}

	return s.shareLoad(ctx, "templates", func(ctx context.Context) error {
		if s.TemplatesLoaded() {
			return nil
		}
		_, err := s.LoadTemplates(ctx, "")
		return err
	})
}

// TemplatesLoaded reports whether a template list has been loaded this session.
func (s *Store) TemplatesLoaded() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.templatesLoaded
}

// Templates returns a copy of the cached templates in server order.
func (s *Store) Templates() []models.Template {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.Template(nil), s.templates...)
}

// Template returns the cached template with the given id.
func (s *Store) Template(id string) (models.Template, bool) {
	if id == "" {
		return models.Template{}, false
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	i, ok := s.templateIndex[id]
	if !ok {
		return models.Template{}, false
	}
	return s.templates[i], true
}

// TemplatesBySheetType returns the templates usable for a sheet type: those without a sheet
// type plus those matching it. An empty argument returns everything.
func (s *Store) TemplatesBySheetType(sheetType string) []models.Template {
	normalized := models.NormalizeSheetType(sheetType)

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.Template, 0, len(s.templates))
	for _, t := range s.templates {
		current := models.NormalizeSheetType(t.SheetType)
		if normalized == "" || current == "" || current == normalized {
			out = append(out, t)
		}
	}
	return out
}

// SheetDefaultTemplate returns the first cached sheet default whose sheet type matches.
//
// An empty sheetType matches only a sheet default with no sheet type.
func (s *Store) SheetDefaultTemplate(sheetType string) (models.Template, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, t := range s.templates {
		if t.IsSheetDefault && models.SameSheetType(t.SheetType, sheetType) {
			return t, true
		}
	}
	return models.Template{}, false
}

// GlobalDefaultTemplate returns the first cached template flagged as global default.
func (s *Store) GlobalDefaultTemplate() (models.Template, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, t := range s.templates {
		if t.IsGlobalDefault {
			return t, true
		}
	}
	return models.Template{}, false
}

type templateSource []models.Template

func (ts templateSource) String(i int) string {
	if ts[i].SheetType == "" {
		return ts[i].Name
	}
	return ts[i].Name + " " + ts[i].SheetType
}

func (ts templateSource) Len() int { return len(ts) }

// SearchTemplates fuzzy-matches query against template names and sheet types, best match first.
//
// An empty query returns all cached templates in server order.
func (s *Store) SearchTemplates(query string) []models.Template {
	all := s.Templates()
	query = strings.TrimSpace(query)
	if query == "" {
		return all
	}

	matches := fuzzy.FindFrom(query, templateSource(all))
	out := make([]models.Template, len(matches))
	for i, m := range matches {
		out[i] = all[m.Index]
	}
	return out
}
