package testing

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/desertthunder/cardtpl/internal/models"
	"github.com/desertthunder/cardtpl/internal/shared"
)

// FakeAPI is an in-memory template API with the server's default-flag and binding semantics.
//
// It counts calls per operation and can be told to fail individual operations.
type FakeAPI struct {
	mu        sync.Mutex
	seq       int
	templates []models.Template
	bindings  []models.Binding
	calls     map[string]int

	// Injected failures, returned before any state change.
	ListTemplatesErr error
	CreateErr        error
	UpdateErr        error
	DeleteErr        error
	SetDefaultErr    error
	ListBindingsErr  error
	UpsertErr        error

	// CreateReturnsNil makes CreateTemplate succeed without an item, like an empty response body.
	CreateReturnsNil bool

	// ListGate, when set, holds ListTemplates and ListBindings after the call is counted
	// until the channel is closed.
	ListGate chan struct{}
}

// NewFakeAPI creates a fake seeded with templates, kept in the given order.
func NewFakeAPI(templates ...models.Template) *FakeAPI {
	f := &FakeAPI{calls: make(map[string]int)}
	f.templates = append(f.templates, templates...)
	return f
}

// SeedBindings adds bindings to the fake's state without counting calls.
func (f *FakeAPI) SeedBindings(bindings ...models.Binding) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bindings = append(f.bindings, bindings...)
}

// SetTemplates replaces the template list without counting calls.
func (f *FakeAPI) SetTemplates(templates ...models.Template) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.templates = append([]models.Template(nil), templates...)
}

// Calls returns how many times op was invoked. Names match the method names.
func (f *FakeAPI) Calls(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

// TotalCalls returns the number of calls across all operations.
func (f *FakeAPI) TotalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		n += c
	}
	return n
}

// ResetCalls zeroes every counter.
func (f *FakeAPI) ResetCalls() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = make(map[string]int)
}

// StoredTemplates returns a copy of the server-side template list.
func (f *FakeAPI) StoredTemplates() []models.Template {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.Template(nil), f.templates...)
}

// StoredBindings returns a copy of the server-side binding list.
func (f *FakeAPI) StoredBindings() []models.Binding {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.Binding(nil), f.bindings...)
}

func (f *FakeAPI) record(op string) {
	f.calls[op]++
}

func (f *FakeAPI) nextID(prefix string) string {
	f.seq++
	return prefix + strconv.Itoa(f.seq)
}

// wait counts op, then blocks on ListGate and reports ctx cancellation like a real request.
func (f *FakeAPI) wait(ctx context.Context, op string) error {
	f.mu.Lock()
	f.record(op)
	gate := f.ListGate
	f.mu.Unlock()

	if gate != nil {
		<-gate
	}
	return ctx.Err()
}

func (f *FakeAPI) ListTemplates(ctx context.Context, sheetType string) ([]models.Template, error) {
	if err := f.wait(ctx, "ListTemplates"); err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ListTemplatesErr != nil {
		return nil, f.ListTemplatesErr
	}

	sheetType = strings.TrimSpace(sheetType)
	items := make([]models.Template, 0, len(f.templates))
	for _, t := range f.templates {
		if sheetType != "" && t.SheetType != sheetType {
			continue
		}
		items = append(items, t)
	}
	return items, nil
}

func (f *FakeAPI) CreateTemplate(ctx context.Context, payload models.TemplatePayload) (*models.Template, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("CreateTemplate")
	if f.CreateErr != nil {
		return nil, f.CreateErr
	}
	if err := payload.Normalize(); err != nil {
		return nil, err
	}

	now := time.Now()
	t := models.Template{
		ID:        f.nextID("tpl-"),
		Name:      payload.Name,
		SheetType: payload.SheetType,
		Content:   payload.Content,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if payload.IsGlobalDefault != nil {
		t.IsGlobalDefault = *payload.IsGlobalDefault
	}
	if payload.IsSheetDefault != nil {
		t.IsSheetDefault = *payload.IsSheetDefault
	}
	f.clearDefaults(t)
	f.templates = append(f.templates, t)

	if f.CreateReturnsNil {
		return nil, nil
	}
	return &t, nil
}

func (f *FakeAPI) UpdateTemplate(ctx context.Context, id string, patch models.TemplatePatch) (*models.Template, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("UpdateTemplate")
	if f.UpdateErr != nil {
		return nil, f.UpdateErr
	}
	if err := patch.Normalize(); err != nil {
		return nil, err
	}

	i := f.indexOf(id)
	if i < 0 {
		return nil, fmt.Errorf("%w: template %s", shared.ErrNotFound, id)
	}

	t := f.templates[i]
	if patch.Name != nil {
		t.Name = *patch.Name
	}
	if patch.SheetType != nil {
		t.SheetType = *patch.SheetType
	}
	if patch.Content != nil {
		t.Content = *patch.Content
	}
	if patch.IsGlobalDefault != nil {
		t.IsGlobalDefault = *patch.IsGlobalDefault
	}
	if patch.IsSheetDefault != nil {
		t.IsSheetDefault = *patch.IsSheetDefault
	}
	if t.IsSheetDefault && t.SheetType == "" {
		return nil, fmt.Errorf("%w: sheet default requires a sheet type", shared.ErrInvalidInput)
	}
	t.UpdatedAt = time.Now()
	f.templates[i] = t
	f.clearDefaults(t)
	return &t, nil
}

func (f *FakeAPI) DeleteTemplate(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("DeleteTemplate")
	if f.DeleteErr != nil {
		return f.DeleteErr
	}

	i := f.indexOf(id)
	if i < 0 {
		return fmt.Errorf("%w: template %s", shared.ErrNotFound, id)
	}
	deleted := f.templates[i]
	f.templates = append(f.templates[:i], f.templates[i+1:]...)

	for j, b := range f.bindings {
		if b.Mode == models.ModeManaged && b.TemplateID == id {
			b.Mode = models.ModeDetached
			b.TemplateID = ""
			b.TemplateSnapshot = deleted.Content
			f.bindings[j] = b
		}
	}
	return nil
}

func (f *FakeAPI) SetTemplateDefault(ctx context.Context, id string, scope models.DefaultScope) (*models.Template, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("SetTemplateDefault")
	if f.SetDefaultErr != nil {
		return nil, f.SetDefaultErr
	}
	if !scope.Valid() {
		return nil, fmt.Errorf("%w: unknown scope %q", shared.ErrInvalidInput, scope)
	}

	i := f.indexOf(id)
	if i < 0 {
		return nil, fmt.Errorf("%w: template %s", shared.ErrNotFound, id)
	}

	t := f.templates[i]
	switch scope {
	case models.ScopeGlobal:
		t.IsGlobalDefault = true
	case models.ScopeSheet:
		if t.SheetType == "" {
			return nil, fmt.Errorf("%w: sheet default requires a sheet type", shared.ErrInvalidInput)
		}
		t.IsSheetDefault = true
	}
	f.templates[i] = t
	f.clearDefaults(t)
	return &t, nil
}

func (f *FakeAPI) ListBindings(ctx context.Context, channelID string) ([]models.Binding, error) {
	if err := f.wait(ctx, "ListBindings"); err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ListBindingsErr != nil {
		return nil, f.ListBindingsErr
	}

	items := []models.Binding{}
	for _, b := range f.bindings {
		if b.ChannelID == channelID {
			items = append(items, b)
		}
	}
	return items, nil
}

func (f *FakeAPI) UpsertBinding(ctx context.Context, payload models.BindingPayload) (*models.Binding, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("UpsertBinding")
	if f.UpsertErr != nil {
		return nil, f.UpsertErr
	}
	if err := payload.Normalize(); err != nil {
		return nil, err
	}

	if payload.Mode == models.ModeManaged {
		i := f.indexOf(payload.TemplateID)
		if i < 0 {
			return nil, fmt.Errorf("%w: template %s", shared.ErrNotFound, payload.TemplateID)
		}
		if payload.SheetType == "" {
			payload.SheetType = f.templates[i].SheetType
		}
	}

	now := time.Now()
	for j, b := range f.bindings {
		if b.ChannelID == payload.ChannelID && b.ExternalCardID == payload.ExternalCardID {
			b.CardName = payload.CardName
			b.SheetType = payload.SheetType
			b.Mode = payload.Mode
			b.TemplateID = payload.TemplateID
			b.TemplateSnapshot = payload.TemplateSnapshot
			b.UpdatedAt = now
			f.bindings[j] = b
			return &b, nil
		}
	}

	b := models.Binding{
		ID:               f.nextID("bind-"),
		ChannelID:        payload.ChannelID,
		ExternalCardID:   payload.ExternalCardID,
		CardName:         payload.CardName,
		SheetType:        payload.SheetType,
		Mode:             payload.Mode,
		TemplateID:       payload.TemplateID,
		TemplateSnapshot: payload.TemplateSnapshot,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	f.bindings = append(f.bindings, b)
	return &b, nil
}

func (f *FakeAPI) indexOf(id string) int {
	for i, t := range f.templates {
		if t.ID == id {
			return i
		}
	}
	return -1
}

// clearDefaults unsets the flags t holds on every other template.
func (f *FakeAPI) clearDefaults(t models.Template) {
	for i, other := range f.templates {
		if other.ID == t.ID {
			continue
		}
		if t.IsGlobalDefault {
			other.IsGlobalDefault = false
		}
		if t.IsSheetDefault && other.SheetType == t.SheetType {
			other.IsSheetDefault = false
		}
		f.templates[i] = other
	}
}
