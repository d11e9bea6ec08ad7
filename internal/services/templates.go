package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/desertthunder/cardtpl/internal/models"
	"github.com/desertthunder/cardtpl/internal/shared"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
)

const (
	templatesPath = "/api/v1/character-card-templates"
	bindingsPath  = "/api/v1/character-card-template-bindings"
)

// TemplateServiceOpts configures a [TemplateService].
type TemplateServiceOpts struct {
	BaseURL    string
	Token      string       // sent as a bearer token when non-empty
	HTTPClient *http.Client // defaults to [http.DefaultClient]
	RateLimit  float64      // requests per second, 0 disables pacing
}

// TemplateService implements [TemplateAPI] over HTTP + JSON.
type TemplateService struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewTemplateService creates a client for the template API.
//
// A non-empty token wraps the base client with a static [oauth2.TokenSource].
func NewTemplateService(opts TemplateServiceOpts) *TemplateService {
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "http://127.0.0.1:3000"
	}

	client := opts.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}

	if opts.Token != "" {
		ctx := context.WithValue(context.Background(), oauth2.HTTPClient, client)
		client = oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{
			AccessToken: opts.Token,
			TokenType:   "Bearer",
		}))
	}

	var limiter *rate.Limiter
	if opts.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), 1)
	}

	return &TemplateService{baseURL: baseURL, httpClient: client, limiter: limiter}
}

// BaseURL returns the API root requests are sent to.
func (s *TemplateService) BaseURL() string {
	return s.baseURL
}

type itemResponse[T any] struct {
	Item *T `json:"item"`
}

type itemsResponse[T any] struct {
	Items []T `json:"items"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// ListTemplates calls GET /api/v1/character-card-templates.
func (s *TemplateService) ListTemplates(ctx context.Context, sheetType string) ([]models.Template, error) {
	endpoint := templatesPath
	if sheetType = strings.TrimSpace(sheetType); sheetType != "" {
		endpoint += "?" + url.Values{"sheetType": {sheetType}}.Encode()
	}

	var resp itemsResponse[models.Template]
	if err := s.doRequest(ctx, http.MethodGet, endpoint, nil, &resp); err != nil {
		return nil, err
	}
	if resp.Items == nil {
		return []models.Template{}, nil
	}
	return resp.Items, nil
}

// CreateTemplate calls POST /api/v1/character-card-templates.
func (s *TemplateService) CreateTemplate(ctx context.Context, payload models.TemplatePayload) (*models.Template, error) {
	var resp itemResponse[models.Template]
	if err := s.doRequest(ctx, http.MethodPost, templatesPath, payload, &resp); err != nil {
		return nil, err
	}
	return resp.Item, nil
}

// UpdateTemplate calls PUT /api/v1/character-card-templates/{id}.
func (s *TemplateService) UpdateTemplate(ctx context.Context, id string, patch models.TemplatePatch) (*models.Template, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: template id", shared.ErrMissingArgument)
	}

	var resp itemResponse[models.Template]
	if err := s.doRequest(ctx, http.MethodPut, templatesPath+"/"+url.PathEscape(id), patch, &resp); err != nil {
		return nil, err
	}
	return resp.Item, nil
}

// DeleteTemplate calls DELETE /api/v1/character-card-templates/{id}.
func (s *TemplateService) DeleteTemplate(ctx context.Context, id string) error {
	if id == "" {
		return fmt.Errorf("%w: template id", shared.ErrMissingArgument)
	}
	return s.doRequest(ctx, http.MethodDelete, templatesPath+"/"+url.PathEscape(id), nil, nil)
}

// SetTemplateDefault calls POST /api/v1/character-card-templates/{id}/set-default.
func (s *TemplateService) SetTemplateDefault(ctx context.Context, id string, scope models.DefaultScope) (*models.Template, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: template id", shared.ErrMissingArgument)
	}

	body := struct {
		Scope models.DefaultScope `json:"scope"`
	}{Scope: scope}

	var resp itemResponse[models.Template]
	endpoint := templatesPath + "/" + url.PathEscape(id) + "/set-default"
	if err := s.doRequest(ctx, http.MethodPost, endpoint, body, &resp); err != nil {
		return nil, err
	}
	return resp.Item, nil
}

// ListBindings calls GET /api/v1/character-card-template-bindings.
func (s *TemplateService) ListBindings(ctx context.Context, channelID string) ([]models.Binding, error) {
	endpoint := bindingsPath + "?" + url.Values{"channelId": {channelID}}.Encode()

	var resp itemsResponse[models.Binding]
	if err := s.doRequest(ctx, http.MethodGet, endpoint, nil, &resp); err != nil {
		return nil, err
	}
	if resp.Items == nil {
		return []models.Binding{}, nil
	}
	return resp.Items, nil
}

// UpsertBinding calls POST /api/v1/character-card-template-bindings/upsert.
func (s *TemplateService) UpsertBinding(ctx context.Context, payload models.BindingPayload) (*models.Binding, error) {
	var resp itemResponse[models.Binding]
	if err := s.doRequest(ctx, http.MethodPost, bindingsPath+"/upsert", payload, &resp); err != nil {
		return nil, err
	}
	return resp.Item, nil
}

// RawResponse is an undecoded API response.
type RawResponse struct {
	StatusCode int
	Headers    http.Header
	Body       []byte
	IsJSON     bool
	JSONData   any
}

// Raw sends an arbitrary request relative to the base URL and returns the response without
// checking its status. body may be nil.
func (s *TemplateService) Raw(ctx context.Context, method, path string, body []byte) (*RawResponse, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := s.newRequest(ctx, method, path, reader)
	if err != nil {
		return nil, err
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	raw := &RawResponse{StatusCode: resp.StatusCode, Headers: resp.Header, Body: data}

	var jsonData any
	if err := json.Unmarshal(data, &jsonData); err == nil {
		raw.IsJSON = true
		raw.JSONData = jsonData
	}

	return raw, nil
}

func (s *TemplateService) newRequest(ctx context.Context, method, endpoint string, body io.Reader) (*http.Request, error) {
	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

// doRequest encodes body as JSON, sends it and decodes a 2xx response into result.
//
// Non-2xx responses become [*APIError] carrying the server's error message.
func (s *TemplateService) doRequest(ctx context.Context, method, endpoint string, body, result any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := s.newRequest(ctx, method, endpoint, reader)
	if err != nil {
		return err
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		var errResp errorResponse
		if err := json.NewDecoder(resp.Body).Decode(&errResp); err == nil {
			apiErr.Message = errResp.Error
		}
		return apiErr
	}

	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil && err != io.EOF {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}

	return nil
}
