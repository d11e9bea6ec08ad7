// package services defines the client for the remote character card template API
package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/desertthunder/cardtpl/internal/models"
	"github.com/desertthunder/cardtpl/internal/shared"
)

// TemplateAPI is the remote collaborator the template store talks to.
//
// Every method performs exactly one request and does not retry.
type TemplateAPI interface {
	// ListTemplates returns the caller's templates, optionally filtered by exact sheet type.
	ListTemplates(ctx context.Context, sheetType string) ([]models.Template, error)

	// CreateTemplate creates a template. The returned item may be nil if the server sent no item.
	CreateTemplate(ctx context.Context, payload models.TemplatePayload) (*models.Template, error)

	// UpdateTemplate applies a partial update.
	UpdateTemplate(ctx context.Context, id string, patch models.TemplatePatch) (*models.Template, error)

	// DeleteTemplate removes a template; managed bindings to it are detached server side.
	DeleteTemplate(ctx context.Context, id string) error

	// SetTemplateDefault flags a template as the global or sheet default.
	SetTemplateDefault(ctx context.Context, id string, scope models.DefaultScope) (*models.Template, error)

	// ListBindings returns the bindings for one channel.
	ListBindings(ctx context.Context, channelID string) ([]models.Binding, error)

	// UpsertBinding creates or replaces the binding for (channel, card).
	UpsertBinding(ctx context.Context, payload models.BindingPayload) (*models.Binding, error)
}

// APIError is a non-2xx response from the template API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("template API error: status %d", e.StatusCode)
	}
	return fmt.Sprintf("template API error (status %d): %s", e.StatusCode, e.Message)
}

// Is maps status codes onto the shared sentinel errors so callers can use [errors.Is].
func (e *APIError) Is(target error) bool {
	switch target {
	case shared.ErrAPIRequest:
		return true
	case shared.ErrNotFound:
		return e.StatusCode == http.StatusNotFound
	case shared.ErrForbidden:
		return e.StatusCode == http.StatusForbidden
	case shared.ErrNotAuthenticated:
		return e.StatusCode == http.StatusUnauthorized
	case shared.ErrInvalidInput:
		return e.StatusCode == http.StatusBadRequest
	case shared.ErrServiceUnavailable:
		return e.StatusCode == http.StatusServiceUnavailable || e.StatusCode == http.StatusBadGateway
	}
	return false
}

// StatusCode extracts the HTTP status from an error chain containing an [*APIError], or 0.
func StatusCode(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}
