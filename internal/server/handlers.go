package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/cardtpl/internal/models"
	"github.com/desertthunder/cardtpl/internal/shared"
)

const (
	templatesPath = "/api/v1/character-card-templates"
	bindingsPath  = "/api/v1/character-card-template-bindings"
)

// TemplateStore is the persistence the template routes need.
type TemplateStore interface {
	List(ctx context.Context, userID, sheetType string) ([]models.Template, error)
	Create(ctx context.Context, userID string, payload models.TemplatePayload) (*models.Template, error)
	Update(ctx context.Context, userID, id string, patch models.TemplatePatch) (*models.Template, error)
	SetDefault(ctx context.Context, userID, id string, scope models.DefaultScope) (*models.Template, error)
	Delete(ctx context.Context, userID, id string) error
}

// BindingStore is the persistence the binding routes need.
type BindingStore interface {
	List(ctx context.Context, userID, channelID string) ([]models.Binding, error)
	Upsert(ctx context.Context, userID string, payload models.BindingPayload) (*models.Binding, error)
}

// TemplateHandler serves the template and binding endpoints for the authenticated user.
type TemplateHandler struct {
	templates TemplateStore
	bindings  BindingStore
	logger    *log.Logger
	mux       *http.ServeMux
}

// NewTemplateHandler creates a [TemplateHandler].
func NewTemplateHandler(templates TemplateStore, bindings BindingStore, logger *log.Logger) *TemplateHandler {
	if logger == nil {
		logger = log.Default()
	}

	h := &TemplateHandler{templates: templates, bindings: bindings, logger: logger, mux: http.NewServeMux()}
	h.mux.HandleFunc("GET "+templatesPath, h.listTemplates)
	h.mux.HandleFunc("POST "+templatesPath, h.createTemplate)
	h.mux.HandleFunc("PUT "+templatesPath+"/{id}", h.updateTemplate)
	h.mux.HandleFunc("DELETE "+templatesPath+"/{id}", h.deleteTemplate)
	h.mux.HandleFunc("POST "+templatesPath+"/{id}/set-default", h.setDefault)
	h.mux.HandleFunc("GET "+bindingsPath, h.listBindings)
	h.mux.HandleFunc("POST "+bindingsPath+"/upsert", h.upsertBinding)
	return h
}

// Routes implements [Handler].
func (h *TemplateHandler) Routes() []string {
	return []string{templatesPath, templatesPath + "/", bindingsPath, bindingsPath + "/"}
}

// ServeHTTP implements [http.Handler].
func (h *TemplateHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

type setDefaultRequest struct {
	Scope models.DefaultScope `json:"scope"`
}

func (h *TemplateHandler) listTemplates(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserFromContext(r.Context())

	items, err := h.templates.List(r.Context(), userID, r.URL.Query().Get("sheetType"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *TemplateHandler) createTemplate(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserFromContext(r.Context())

	var payload models.TemplatePayload
	if !decodeBody(w, r, &payload) {
		return
	}

	item, err := h.templates.Create(r.Context(), userID, payload)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"item": item})
}

// updateTemplate ignores empty strings in the patch: a field can be changed, not cleared.
func (h *TemplateHandler) updateTemplate(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserFromContext(r.Context())
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	var patch models.TemplatePatch
	if !decodeBody(w, r, &patch) {
		return
	}
	patch.Name = nonEmpty(patch.Name)
	patch.SheetType = nonEmpty(patch.SheetType)
	patch.Content = nonEmpty(patch.Content)

	item, err := h.templates.Update(r.Context(), userID, id, patch)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"item": item})
}

func (h *TemplateHandler) deleteTemplate(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserFromContext(r.Context())
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	if err := h.templates.Delete(r.Context(), userID, id); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (h *TemplateHandler) setDefault(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserFromContext(r.Context())
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	var req setDefaultRequest
	if !decodeBody(w, r, &req) {
		return
	}

	item, err := h.templates.SetDefault(r.Context(), userID, id, req.Scope)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"item": item})
}

func (h *TemplateHandler) listBindings(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserFromContext(r.Context())

	channelID := strings.TrimSpace(r.URL.Query().Get("channelId"))
	if channelID == "" {
		writeError(w, http.StatusBadRequest, "channelId is required")
		return
	}

	items, err := h.bindings.List(r.Context(), userID, channelID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *TemplateHandler) upsertBinding(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserFromContext(r.Context())

	var payload models.BindingPayload
	if !decodeBody(w, r, &payload) {
		return
	}

	item, err := h.bindings.Upsert(r.Context(), userID, payload)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"item": item})
}

// fail maps a domain error onto a status code. Unexpected errors are logged and hidden.
func (h *TemplateHandler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := StatusFor(err)
	if status == http.StatusInternalServerError {
		h.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "err", err)
		writeError(w, status, "operation failed")
		return
	}
	writeError(w, status, err.Error())
}

// StatusFor returns the HTTP status for an error from the repositories.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, shared.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, shared.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, shared.ErrInvalidInput):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func pathID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := strings.TrimSpace(r.PathValue("id"))
	if id == "" {
		writeError(w, http.StatusBadRequest, "invalid template id")
		return "", false
	}
	return id, true
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "failed to parse request body")
		return false
	}
	return true
}

func nonEmpty(s *string) *string {
	if s == nil || strings.TrimSpace(*s) == "" {
		return nil
	}
	return s
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
