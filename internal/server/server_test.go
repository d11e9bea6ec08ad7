package server

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/desertthunder/cardtpl/internal/models"
	"github.com/desertthunder/cardtpl/internal/repositories"
	"github.com/desertthunder/cardtpl/internal/services"
	"github.com/desertthunder/cardtpl/internal/shared"
	"github.com/desertthunder/cardtpl/internal/store"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := shared.NewDatabase(":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	db.SetMaxOpenConns(1)

	if err := shared.RunMigrations(db); err != nil {
		db.Close()
		t.Fatalf("failed to run migrations: %v", err)
	}

	t.Cleanup(func() { db.Close() })
	return db
}

func setupTestServer(t *testing.T) (*httptest.Server, *sql.DB) {
	t.Helper()

	db := setupTestDB(t)
	cfg := shared.ServerConfig{
		Host:   "127.0.0.1",
		Port:   0,
		Tokens: map[string]string{"alice-token": "alice", "bob-token": "bob"},
	}

	srv := httptest.NewServer(New(cfg, db, shared.NewLogger(io.Discard)).Handler())
	t.Cleanup(srv.Close)
	return srv, db
}

func doJSON(t *testing.T, method, url, token string, body any) (int, map[string]any) {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to encode body: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("failed to build request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	var out map[string]any
	json.NewDecoder(resp.Body).Decode(&out)
	return resp.StatusCode, out
}

func TestBasicRouter(t *testing.T) {
	t.Run("Method Patterns", func(t *testing.T) {
		router := NewBasicRouter()
		router.HandleFunc(http.MethodGet, "/items/{id}", func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, r.PathValue("id"))
		})

		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/items/42", nil))
		if rec.Body.String() != "42" {
			t.Errorf("expected path value 42, got %q", rec.Body.String())
		}

		rec = httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/items/42", nil))
		if rec.Code != http.StatusMethodNotAllowed {
			t.Errorf("expected 405, got %d", rec.Code)
		}
	})

	t.Run("Middleware Order", func(t *testing.T) {
		var order []string
		mark := func(name string) Middleware {
			return func(next http.Handler) http.Handler {
				return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
					order = append(order, name)
					next.ServeHTTP(w, r)
				})
			}
		}

		router := NewBasicRouter()
		router.Use(mark("first"), mark("second"))
		router.HandleFunc(http.MethodGet, "/", func(w http.ResponseWriter, r *http.Request) {
			order = append(order, "handler")
		})

		router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
		if strings.Join(order, ",") != "first,second,handler" {
			t.Errorf("unexpected order %v", order)
		}
	})

	t.Run("Group Keeps Parent Chain", func(t *testing.T) {
		var order []string
		mark := func(name string) Middleware {
			return func(next http.Handler) http.Handler {
				return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
					order = append(order, name)
					next.ServeHTTP(w, r)
				})
			}
		}

		router := NewBasicRouter()
		router.Use(mark("log"))
		group := router.Group(mark("auth"))
		router.HandleFunc(http.MethodGet, "/open", func(w http.ResponseWriter, r *http.Request) {})
		group.HandleFunc(http.MethodGet, "/closed", func(w http.ResponseWriter, r *http.Request) {})

		router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/open", nil))
		if strings.Join(order, ",") != "log" {
			t.Errorf("expected only parent middleware, got %v", order)
		}

		order = nil
		router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/closed", nil))
		if strings.Join(order, ",") != "log,auth" {
			t.Errorf("expected parent then group middleware, got %v", order)
		}

		router.Use(mark("late"))
		order = nil
		router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/closed", nil))
		if strings.Join(order, ",") != "log,auth" {
			t.Errorf("expected group chain unaffected by later Use, got %v", order)
		}
	})
}

func TestBearerAuth(t *testing.T) {
	handler := BearerAuth(map[string]string{"t1": "u1"})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, _ := UserFromContext(r.Context())
		fmt.Fprint(w, userID)
	}))

	tc := []struct {
		name   string
		header string
		status int
		body   string
	}{
		{name: "Valid", header: "Bearer t1", status: http.StatusOK, body: "u1"},
		{name: "Missing", header: "", status: http.StatusUnauthorized},
		{name: "Unknown", header: "Bearer nope", status: http.StatusUnauthorized},
		{name: "Wrong Scheme", header: "Basic t1", status: http.StatusUnauthorized},
	}

	for _, tt := range tc {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != tt.status {
				t.Errorf("expected status %d, got %d", tt.status, rec.Code)
			}
			if tt.body != "" && rec.Body.String() != tt.body {
				t.Errorf("expected body %q, got %q", tt.body, rec.Body.String())
			}
		})
	}
}

func TestStatusFor(t *testing.T) {
	tc := []struct {
		err  error
		want int
	}{
		{err: fmt.Errorf("%w: x", shared.ErrNotFound), want: http.StatusNotFound},
		{err: fmt.Errorf("%w: x", shared.ErrForbidden), want: http.StatusForbidden},
		{err: fmt.Errorf("%w: x", shared.ErrInvalidInput), want: http.StatusBadRequest},
		{err: errors.New("disk full"), want: http.StatusInternalServerError},
	}

	for _, tt := range tc {
		if got := StatusFor(tt.err); got != tt.want {
			t.Errorf("StatusFor(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

func TestTemplateHandler(t *testing.T) {
	t.Run("Health Without Auth", func(t *testing.T) {
		srv, _ := setupTestServer(t)
		status, body := doJSON(t, http.MethodGet, srv.URL+"/healthz", "", nil)
		if status != http.StatusOK || body["status"] != "ok" {
			t.Errorf("expected ok, got %d %v", status, body)
		}
	})

	t.Run("Requires Auth", func(t *testing.T) {
		srv, _ := setupTestServer(t)
		status, body := doJSON(t, http.MethodGet, srv.URL+templatesPath, "", nil)
		if status != http.StatusUnauthorized {
			t.Errorf("expected 401, got %d", status)
		}
		if body["error"] == nil {
			t.Error("expected error message")
		}
	})

	t.Run("Create Returns 201", func(t *testing.T) {
		srv, _ := setupTestServer(t)
		status, body := doJSON(t, http.MethodPost, srv.URL+templatesPath, "alice-token",
			map[string]any{"name": "Inv", "sheetType": "coc7", "content": "HP"})

		if status != http.StatusCreated {
			t.Fatalf("expected 201, got %d: %v", status, body)
		}
		item, _ := body["item"].(map[string]any)
		if item["name"] != "Inv" || item["userId"] != "alice" {
			t.Errorf("unexpected item %v", item)
		}
	})

	t.Run("Validation Errors", func(t *testing.T) {
		srv, _ := setupTestServer(t)

		tc := []struct {
			name   string
			method string
			path   string
			body   any
		}{
			{name: "Missing Name", method: http.MethodPost, path: templatesPath, body: map[string]any{"content": "x"}},
			{name: "Sheet Default Without Sheet Type", method: http.MethodPost, path: templatesPath, body: map[string]any{"name": "a", "content": "x", "isSheetDefault": true}},
			{name: "Missing Channel", method: http.MethodGet, path: bindingsPath},
			{name: "Detached Without Snapshot", method: http.MethodPost, path: bindingsPath + "/upsert", body: map[string]any{"channelId": "c", "externalCardId": "k", "mode": "detached"}},
			{name: "Bad Scope", method: http.MethodPost, path: templatesPath + "/x/set-default", body: map[string]any{"scope": "everywhere"}},
		}

		for _, tt := range tc {
			t.Run(tt.name, func(t *testing.T) {
				status, body := doJSON(t, tt.method, srv.URL+tt.path, "alice-token", tt.body)
				if status != http.StatusBadRequest {
					t.Errorf("expected 400, got %d: %v", status, body)
				}
			})
		}
	})

	t.Run("Malformed Body", func(t *testing.T) {
		srv, _ := setupTestServer(t)

		req, _ := http.NewRequest(http.MethodPost, srv.URL+templatesPath, strings.NewReader("{"))
		req.Header.Set("Authorization", "Bearer alice-token")
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		resp.Body.Close()

		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", resp.StatusCode)
		}
	})

	t.Run("Ownership", func(t *testing.T) {
		srv, _ := setupTestServer(t)
		_, body := doJSON(t, http.MethodPost, srv.URL+templatesPath, "alice-token",
			map[string]any{"name": "Mine", "content": "x"})
		id := body["item"].(map[string]any)["id"].(string)

		status, _ := doJSON(t, http.MethodDelete, srv.URL+templatesPath+"/"+id, "bob-token", nil)
		if status != http.StatusForbidden {
			t.Errorf("expected 403, got %d", status)
		}

		status, _ = doJSON(t, http.MethodDelete, srv.URL+templatesPath+"/missing", "alice-token", nil)
		if status != http.StatusNotFound {
			t.Errorf("expected 404, got %d", status)
		}

		status, body = doJSON(t, http.MethodDelete, srv.URL+templatesPath+"/"+id, "alice-token", nil)
		if status != http.StatusOK || body["success"] != true {
			t.Errorf("expected success, got %d %v", status, body)
		}
	})

	t.Run("Update Ignores Empty Strings", func(t *testing.T) {
		srv, _ := setupTestServer(t)
		_, body := doJSON(t, http.MethodPost, srv.URL+templatesPath, "alice-token",
			map[string]any{"name": "Keep", "sheetType": "pc", "content": "x"})
		id := body["item"].(map[string]any)["id"].(string)

		status, body := doJSON(t, http.MethodPut, srv.URL+templatesPath+"/"+id, "alice-token",
			map[string]any{"name": "", "sheetType": " ", "content": "y"})
		if status != http.StatusOK {
			t.Fatalf("expected 200, got %d: %v", status, body)
		}

		item := body["item"].(map[string]any)
		if item["name"] != "Keep" || item["sheetType"] != "pc" || item["content"] != "y" {
			t.Errorf("unexpected item %v", item)
		}
	})

	t.Run("Internal Errors Are Hidden", func(t *testing.T) {
		srv, db := setupTestServer(t)
		db.Close()

		status, body := doJSON(t, http.MethodGet, srv.URL+templatesPath, "alice-token", nil)
		if status != http.StatusInternalServerError || body["error"] != "operation failed" {
			t.Errorf("expected hidden 500, got %d %v", status, body)
		}
	})
}

// The store, the HTTP client and the server together.
func TestRoundTrip(t *testing.T) {
	ctx := context.Background()
	srv, db := setupTestServer(t)

	api := services.NewTemplateService(services.TemplateServiceOpts{BaseURL: srv.URL, Token: "alice-token"})
	local := repositories.NewLocalStorage(db)
	s := store.New(store.Options{API: api, Storage: local, UserID: "alice"})

	t.Run("Default Exclusivity", func(t *testing.T) {
		first, err := s.CreateTemplate(ctx, models.TemplatePayload{Name: "One", Content: "1", IsGlobalDefault: models.Bool(true)})
		if err != nil {
			t.Fatalf("create failed: %v", err)
		}
		second, err := s.CreateTemplate(ctx, models.TemplatePayload{Name: "Two", Content: "2", IsGlobalDefault: models.Bool(true)})
		if err != nil {
			t.Fatalf("create failed: %v", err)
		}

		got, ok := s.GlobalDefaultTemplate()
		if !ok || got.ID != second.ID {
			t.Errorf("expected %s as global default, got %s", second.ID, got.ID)
		}
		if old, _ := s.Template(first.ID); old.IsGlobalDefault {
			t.Error("previous global default should be cleared")
		}
	})

	t.Run("Ensure And Resolve", func(t *testing.T) {
		sheet, err := s.CreateTemplate(ctx, models.TemplatePayload{Name: "PC", SheetType: "pc", Content: "sheet body", IsSheetDefault: models.Bool(true)})
		if err != nil {
			t.Fatalf("create failed: %v", err)
		}

		b, err := s.EnsureCardBinding(ctx, store.EnsureBindingRequest{
			CardRef:          store.CardRef{ChannelID: "ch", ExternalCardID: "card", CardName: "Alice", SheetType: "pc"},
			FallbackTemplate: "fallback",
		})
		if err != nil {
			t.Fatalf("ensure failed: %v", err)
		}
		if b.TemplateID != sheet.ID {
			t.Errorf("expected binding to sheet default, got %+v", b)
		}

		fresh := store.New(store.Options{API: api, Storage: local, UserID: "alice"})
		if got := fresh.LoadAndResolve(ctx, "ch", "card", "PC", "fallback"); got != "sheet body" {
			t.Errorf("expected sheet body, got %q", got)
		}
	})

	t.Run("Delete Detaches Stored Bindings", func(t *testing.T) {
		tpl, err := s.CreateTemplate(ctx, models.TemplatePayload{Name: "Gone", Content: "gone body"})
		if err != nil {
			t.Fatalf("create failed: %v", err)
		}
		card := store.CardRef{ChannelID: "ch", ExternalCardID: "doomed"}
		if _, err := s.BindCardToTemplate(ctx, card, tpl.ID); err != nil {
			t.Fatalf("bind failed: %v", err)
		}

		if err := s.DeleteTemplate(ctx, tpl.ID); err != nil {
			t.Fatalf("delete failed: %v", err)
		}

		items, err := api.ListBindings(ctx, "ch")
		if err != nil {
			t.Fatalf("list failed: %v", err)
		}
		for _, b := range items {
			if b.ExternalCardID != "doomed" {
				continue
			}
			if b.Mode != models.ModeDetached || b.TemplateSnapshot != "gone body" {
				t.Errorf("expected stored binding detached, got %+v", b)
			}
		}
	})

	t.Run("API Errors Keep Status", func(t *testing.T) {
		_, err := api.UpdateTemplate(ctx, "missing", models.TemplatePatch{Name: models.String("x")})
		if !errors.Is(err, shared.ErrNotFound) {
			t.Errorf("expected not found, got %v", err)
		}
		if services.StatusCode(err) != http.StatusNotFound {
			t.Errorf("expected 404, got %d", services.StatusCode(err))
		}
	})

	t.Run("Migration Against Local Storage", func(t *testing.T) {
		if err := local.SetItem(ctx, store.LegacyTemplatesKey, `{"m1":"legacy body"}`); err != nil {
			t.Fatalf("failed to seed legacy blob: %v", err)
		}

		cards := []models.CharacterCard{{ID: "m1", Name: "Mira", SheetType: "pc"}}
		report := s.MigrateLocalTemplatesIfNeeded(ctx, "ch", cards)
		if report.Status != store.MigrationCompleted || report.Created != 1 {
			t.Fatalf("unexpected report %+v", report)
		}

		again := store.New(store.Options{API: api, Storage: local, UserID: "alice"})
		if r := again.MigrateLocalTemplatesIfNeeded(ctx, "ch", cards); r.Status != store.MigrationDone {
			t.Errorf("expected flag to persist in local storage, got %v", r.Status)
		}
	})
}
