package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/desertthunder/cardtpl/internal/models"
	"github.com/desertthunder/cardtpl/internal/shared"
	"github.com/desertthunder/cardtpl/internal/store"
	tu "github.com/desertthunder/cardtpl/internal/testing"
	"github.com/google/go-cmp/cmp"
)

func newTestRunner(t *testing.T, api *tu.FakeAPI, storage *tu.MemoryStorage) (*Runner, *bytes.Buffer) {
	t.Helper()
	config := shared.DefaultConfig()
	config.Database.Path = ":memory:"

	output := &bytes.Buffer{}
	runner := NewRunner(RunnerOpts{
		Config:  config,
		Logger:  shared.NewLogger(io.Discard),
		Output:  output,
		API:     api,
		Storage: storage,
	})
	return runner, output
}

func runApp(r *Runner, args ...string) error {
	app := newApp(r)
	app.Writer = io.Discard
	app.ErrWriter = io.Discard
	return app.Run(context.Background(), append([]string{"cardtpl"}, args...))
}

func seedTemplates() []models.Template {
	return []models.Template{
		{ID: "tpl-1", Name: "Base", Content: "HP: {hp}", IsGlobalDefault: true},
		{ID: "tpl-2", Name: "Investigator", SheetType: "coc7", Content: "SAN: {san}"},
	}
}

func TestRunner(t *testing.T) {
	t.Run("NewRunner", func(t *testing.T) {
		t.Run("with all dependencies provided", func(t *testing.T) {
			config := shared.DefaultConfig()
			logger := shared.NewLogger(nil)
			output := &bytes.Buffer{}
			httpClient := &http.Client{}
			api := tu.NewFakeAPI()
			storage := tu.NewMemoryStorage(nil)

			runner := NewRunner(RunnerOpts{
				Config:     config,
				ConfigPath: "/test/path/config.toml",
				Logger:     logger,
				Output:     output,
				HTTPClient: httpClient,
				API:        api,
				Storage:    storage,
			})

			if runner.config != config {
				t.Error("expected config to be set")
			}
			if runner.configPath != "/test/path/config.toml" {
				t.Errorf("expected configPath to be set, got %s", runner.configPath)
			}
			if runner.logger != logger {
				t.Error("expected logger to be set")
			}
			if runner.output != output {
				t.Error("expected output to be set")
			}
			if runner.httpClient != httpClient {
				t.Error("expected httpClient to be set")
			}
			if runner.templateAPI() != api {
				t.Error("expected api override to be used")
			}
			if s, err := runner.localStorage(); err != nil || s != storage {
				t.Errorf("expected storage override, got %v (%v)", s, err)
			}
		})

		t.Run("with nil config uses defaults", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Config: nil})
			if runner.config == nil {
				t.Error("expected default config to be set")
			}
		})

		t.Run("with nil logger uses default", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Logger: nil})
			if runner.logger == nil {
				t.Error("expected default logger to be set")
			}
		})

		t.Run("with nil output uses stdout", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Output: nil})
			if runner.output != os.Stdout {
				t.Error("expected output to default to os.Stdout")
			}
		})

		t.Run("with nil httpClient uses default", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{HTTPClient: nil})
			if runner.httpClient != http.DefaultClient {
				t.Error("expected httpClient to default to http.DefaultClient")
			}
		})

		t.Run("without api override builds the HTTP client from config", func(t *testing.T) {
			config := shared.DefaultConfig()
			config.Client.BaseURL = "http://templates.test/"
			runner := NewRunner(RunnerOpts{Config: config})

			svc := runner.templateService()
			if svc.BaseURL() != "http://templates.test" {
				t.Errorf("expected trimmed base URL, got %s", svc.BaseURL())
			}
			if runner.templateService() != svc {
				t.Error("expected service to be built once")
			}
		})
	})

	t.Run("templateStore", func(t *testing.T) {
		t.Run("is built once with the configured user", func(t *testing.T) {
			runner, _ := newTestRunner(t, tu.NewFakeAPI(), tu.NewMemoryStorage(nil))

			s := runner.templateStore()
			if s != runner.templateStore() {
				t.Error("expected the same store on every call")
			}
			if s.UserID() != "local-user" {
				t.Errorf("expected user local-user, got %s", s.UserID())
			}
		})

		t.Run("opens SQLite local storage when none is given", func(t *testing.T) {
			config := shared.DefaultConfig()
			config.Database.Path = ":memory:"
			runner := NewRunner(RunnerOpts{Config: config, Logger: shared.NewLogger(io.Discard), API: tu.NewFakeAPI()})
			defer runner.close()

			storage, err := runner.localStorage()
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if err := storage.SetItem(context.Background(), "k", "v"); err != nil {
				t.Fatalf("expected migrated local_storage table, got %v", err)
			}
		})
	})

	t.Run("writeJSON", func(t *testing.T) {
		t.Run("writes formatted JSON successfully", func(t *testing.T) {
			output := &bytes.Buffer{}
			runner := NewRunner(RunnerOpts{Output: output})

			if err := runner.writeJSON(map[string]string{"key": "value"}, true); err != nil {
				t.Fatalf("expected no error, got %v", err)
			}

			result := output.String()
			if !strings.Contains(result, `"key": "value"`) {
				t.Errorf("expected formatted JSON, got %s", result)
			}
			if !strings.HasSuffix(result, "\n") {
				t.Error("expected output to end with newline")
			}
		})

		t.Run("writes compact JSON successfully", func(t *testing.T) {
			output := &bytes.Buffer{}
			runner := NewRunner(RunnerOpts{Output: output})

			if err := runner.writeJSON(map[string]string{"key": "value"}, false); err != nil {
				t.Fatalf("expected no error, got %v", err)
			}

			expected := `{"key":"value"}` + "\n"
			if output.String() != expected {
				t.Errorf("expected %q, got %q", expected, output.String())
			}
		})

		t.Run("handles marshal error with non-serializable data", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Output: &bytes.Buffer{}})

			err := runner.writeJSON(make(chan int), false)
			if err == nil {
				t.Fatal("expected error for non-serializable data")
			}
			if !strings.Contains(err.Error(), "failed to marshal JSON") {
				t.Errorf("expected marshal error, got %v", err)
			}
		})

		t.Run("handles write failure", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Output: tu.FailingWriter{}})

			err := runner.writeJSON(map[string]string{"key": "value"}, false)
			if err == nil {
				t.Fatal("expected error from failing writer")
			}
			if !strings.Contains(err.Error(), "failed to write output") {
				t.Errorf("expected write error, got %v", err)
			}
		})

		t.Run("handles newline write failure", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Output: tu.NewLimitedWriter(1, &bytes.Buffer{})})

			err := runner.writeJSON(map[string]string{"key": "value"}, false)
			if err == nil {
				t.Fatal("expected error writing newline")
			}
			if !strings.Contains(err.Error(), "failed to write newline") {
				t.Errorf("expected newline write error, got %v", err)
			}
		})
	})

	t.Run("writePlain", func(t *testing.T) {
		t.Run("writes plain text successfully", func(t *testing.T) {
			output := &bytes.Buffer{}
			runner := NewRunner(RunnerOpts{Output: output})

			if err := runner.writePlain("hello %s", "world"); err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if output.String() != "hello world" {
				t.Errorf("expected 'hello world', got %q", output.String())
			}
		})

		t.Run("handles write failure", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Output: tu.FailingWriter{}})

			err := runner.writePlain("test")
			if err == nil {
				t.Fatal("expected error from failing writer")
			}
			if !strings.Contains(err.Error(), "failed to write output") {
				t.Errorf("expected write error, got %v", err)
			}
		})
	})

	t.Run("register", func(t *testing.T) {
		runner := NewRunner(RunnerOpts{})
		commands := runner.register()

		names := make([]string, 0, len(commands))
		for i, cmd := range commands {
			if cmd == nil {
				t.Fatalf("command at index %d is nil", i)
			}
			names = append(names, cmd.Name)
		}

		want := []string{"setup", "templates", "bindings", "resolve", "migrate", "legacy", "serve", "api", "tui"}
		if diff := cmp.Diff(want, names); diff != "" {
			t.Errorf("commands mismatch (-want +got):\n%s", diff)
		}
	})
}

func TestTemplateCommands(t *testing.T) {
	t.Run("list writes the requested format", func(t *testing.T) {
		api := tu.NewFakeAPI(seedTemplates()...)
		runner, output := newTestRunner(t, api, tu.NewMemoryStorage(nil))

		if err := runApp(runner, "templates", "list", "--format", "json"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if !strings.Contains(output.String(), "Investigator") || !strings.Contains(output.String(), `"isGlobalDefault": true`) {
			t.Errorf("expected JSON listing, got %s", output.String())
		}
	})

	t.Run("list rejects an unknown format", func(t *testing.T) {
		runner, _ := newTestRunner(t, tu.NewFakeAPI(), tu.NewMemoryStorage(nil))

		err := runApp(runner, "templates", "list", "--format", "xml")
		if !errors.Is(err, shared.ErrInvalidFlag) {
			t.Errorf("expected ErrInvalidFlag, got %v", err)
		}
	})

	t.Run("list with search narrows by name", func(t *testing.T) {
		runner, output := newTestRunner(t, tu.NewFakeAPI(seedTemplates()...), tu.NewMemoryStorage(nil))

		if err := runApp(runner, "templates", "list", "--search", "invest", "--format", "csv"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if strings.Contains(output.String(), "Base") {
			t.Errorf("expected Base to be filtered out, got %s", output.String())
		}
		if !strings.Contains(output.String(), "Investigator") {
			t.Errorf("expected Investigator, got %s", output.String())
		}
	})

	t.Run("show prints content for text format", func(t *testing.T) {
		runner, output := newTestRunner(t, tu.NewFakeAPI(seedTemplates()...), tu.NewMemoryStorage(nil))

		if err := runApp(runner, "templates", "show", "--format", "text", "tpl-2"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if output.String() != "SAN: {san}\n" {
			t.Errorf("expected content, got %q", output.String())
		}
	})

	t.Run("show unknown id", func(t *testing.T) {
		runner, _ := newTestRunner(t, tu.NewFakeAPI(seedTemplates()...), tu.NewMemoryStorage(nil))

		err := runApp(runner, "templates", "show", "tpl-404")
		if !errors.Is(err, shared.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("create sends a normalized payload", func(t *testing.T) {
		api := tu.NewFakeAPI()
		runner, output := newTestRunner(t, api, tu.NewMemoryStorage(nil))

		err := runApp(runner, "templates", "create", "--name", "  Ranger ", "--sheet-type", "dnd5e", "--content", "AC: {ac}", "--sheet-default")
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}

		stored := api.StoredTemplates()
		if len(stored) != 1 {
			t.Fatalf("expected 1 stored template, got %d", len(stored))
		}
		if stored[0].Name != "Ranger" || !stored[0].IsSheetDefault {
			t.Errorf("unexpected stored template %+v", stored[0])
		}
		if !strings.Contains(output.String(), "✓ Created template Ranger") {
			t.Errorf("expected confirmation, got %q", output.String())
		}
	})

	t.Run("create reads content from a file", func(t *testing.T) {
		api := tu.NewFakeAPI()
		runner, _ := newTestRunner(t, api, tu.NewMemoryStorage(nil))

		path := tu.MustWriteFile(t, "tpl.md", "# Sheet\n")

		if err := runApp(runner, "templates", "create", "--name", "FromFile", "--file", path); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if got := api.StoredTemplates()[0].Content; got != "# Sheet" {
			t.Errorf("expected trimmed file content, got %q", got)
		}
	})

	t.Run("create without content fails before calling the API", func(t *testing.T) {
		api := tu.NewFakeAPI()
		runner, _ := newTestRunner(t, api, tu.NewMemoryStorage(nil))

		err := runApp(runner, "templates", "create", "--name", "Empty")
		if !errors.Is(err, shared.ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}
		if api.Calls("CreateTemplate") != 0 {
			t.Errorf("expected no CreateTemplate call, got %d", api.Calls("CreateTemplate"))
		}
	})

	t.Run("update with no flags", func(t *testing.T) {
		runner, _ := newTestRunner(t, tu.NewFakeAPI(seedTemplates()...), tu.NewMemoryStorage(nil))

		err := runApp(runner, "templates", "update", "tpl-1")
		if !errors.Is(err, shared.ErrMissingArgument) {
			t.Errorf("expected ErrMissingArgument, got %v", err)
		}
	})

	t.Run("update sends only the flags that were set", func(t *testing.T) {
		api := tu.NewFakeAPI(seedTemplates()...)
		runner, _ := newTestRunner(t, api, tu.NewMemoryStorage(nil))

		if err := runApp(runner, "templates", "update", "--name", "Renamed", "tpl-2"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}

		stored := api.StoredTemplates()
		if stored[1].Name != "Renamed" || stored[1].Content != "SAN: {san}" {
			t.Errorf("unexpected stored template %+v", stored[1])
		}
	})

	t.Run("set-default rejects an unknown scope", func(t *testing.T) {
		api := tu.NewFakeAPI(seedTemplates()...)
		runner, _ := newTestRunner(t, api, tu.NewMemoryStorage(nil))

		err := runApp(runner, "templates", "set-default", "--scope", "channel", "tpl-2")
		if !errors.Is(err, shared.ErrInvalidFlag) {
			t.Errorf("expected ErrInvalidFlag, got %v", err)
		}
		if api.Calls("SetTemplateDefault") != 0 {
			t.Error("expected no API call")
		}
	})

	t.Run("set-default moves the global default", func(t *testing.T) {
		api := tu.NewFakeAPI(seedTemplates()...)
		runner, output := newTestRunner(t, api, tu.NewMemoryStorage(nil))

		if err := runApp(runner, "templates", "set-default", "tpl-2"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}

		global, ok := runner.templateStore().GlobalDefaultTemplate()
		if !ok || global.ID != "tpl-2" {
			t.Errorf("expected tpl-2 as global default, got %+v", global)
		}
		if !strings.Contains(output.String(), "Investigator is now the global default") {
			t.Errorf("unexpected output %q", output.String())
		}
	})

	t.Run("delete", func(t *testing.T) {
		api := tu.NewFakeAPI(seedTemplates()...)
		runner, output := newTestRunner(t, api, tu.NewMemoryStorage(nil))

		if err := runApp(runner, "templates", "delete", "tpl-2"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if len(api.StoredTemplates()) != 1 {
			t.Errorf("expected 1 remaining template, got %d", len(api.StoredTemplates()))
		}
		if !strings.Contains(output.String(), "✓ Deleted template tpl-2") {
			t.Errorf("unexpected output %q", output.String())
		}
	})

	t.Run("export writes files and a manifest", func(t *testing.T) {
		runner, _ := newTestRunner(t, tu.NewFakeAPI(seedTemplates()...), tu.NewMemoryStorage(nil))
		dir := filepath.Join(t.TempDir(), "out")

		if err := runApp(runner, "templates", "export", "--format", "yaml", "--output", dir); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}

		tu.AssertFileExists(t, filepath.Join(dir, "tpl-1.yaml"))
		tu.AssertFileExists(t, filepath.Join(dir, "tpl-2.yaml"))
		tu.AssertFileExists(t, filepath.Join(dir, "export_manifest.json"))
	})
}

func TestBindingCommands(t *testing.T) {
	t.Run("ensure binds every card to the global default", func(t *testing.T) {
		api := tu.NewFakeAPI(seedTemplates()...)
		runner, output := newTestRunner(t, api, tu.NewMemoryStorage(nil))

		err := runApp(runner, "bindings", "ensure", "--channel", "c1", "--card", "a:Alice", "--card", "b:Bob:dnd5e")
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}

		bindings := api.StoredBindings()
		if len(bindings) != 2 {
			t.Fatalf("expected 2 bindings, got %d", len(bindings))
		}
		for _, b := range bindings {
			if b.Mode != models.ModeManaged || b.TemplateID != "tpl-1" {
				t.Errorf("expected managed binding to tpl-1, got %+v", b)
			}
		}
		if !strings.Contains(output.String(), "Created: 2") {
			t.Errorf("expected summary, got %s", output.String())
		}
	})

	t.Run("ensure requires cards", func(t *testing.T) {
		runner, _ := newTestRunner(t, tu.NewFakeAPI(), tu.NewMemoryStorage(nil))

		err := runApp(runner, "bindings", "ensure", "--channel", "c1")
		if !errors.Is(err, shared.ErrMissingArgument) {
			t.Errorf("expected ErrMissingArgument, got %v", err)
		}
	})

	t.Run("bind and list", func(t *testing.T) {
		api := tu.NewFakeAPI(seedTemplates()...)
		runner, output := newTestRunner(t, api, tu.NewMemoryStorage(nil))

		if err := runApp(runner, "bindings", "bind", "--channel", "c1", "--card", "a", "--template", "tpl-2"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if !strings.Contains(output.String(), "c1/a → managed (tpl-2)") {
			t.Errorf("unexpected output %q", output.String())
		}

		output.Reset()
		if err := runApp(runner, "bindings", "list", "--channel", "c1", "--format", "csv"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if !strings.Contains(output.String(), "tpl-2") {
			t.Errorf("expected binding in listing, got %q", output.String())
		}
	})

	t.Run("detach snapshots the resolved content", func(t *testing.T) {
		api := tu.NewFakeAPI(seedTemplates()...)
		runner, _ := newTestRunner(t, api, tu.NewMemoryStorage(nil))

		if err := runApp(runner, "bindings", "detach", "--channel", "c1", "--card", "a"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}

		bindings := api.StoredBindings()
		if len(bindings) != 1 || bindings[0].Mode != models.ModeDetached || bindings[0].TemplateSnapshot != "HP: {hp}" {
			t.Errorf("unexpected bindings %+v", bindings)
		}
	})

	t.Run("warm requires channel arguments", func(t *testing.T) {
		runner, _ := newTestRunner(t, tu.NewFakeAPI(), tu.NewMemoryStorage(nil))

		err := runApp(runner, "bindings", "warm")
		if !errors.Is(err, shared.ErrMissingArgument) {
			t.Errorf("expected ErrMissingArgument, got %v", err)
		}
	})

	t.Run("warm loads each channel", func(t *testing.T) {
		api := tu.NewFakeAPI(seedTemplates()...)
		runner, output := newTestRunner(t, api, tu.NewMemoryStorage(nil))

		if err := runApp(runner, "bindings", "warm", "c1", "c2"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if api.Calls("ListBindings") != 2 {
			t.Errorf("expected 2 ListBindings calls, got %d", api.Calls("ListBindings"))
		}
		if !strings.Contains(output.String(), "Loaded 2 channels, 0 failed") {
			t.Errorf("unexpected output %q", output.String())
		}
	})

	t.Run("resolve prefers the card's detached snapshot", func(t *testing.T) {
		api := tu.NewFakeAPI(seedTemplates()...)
		api.SeedBindings(models.Binding{
			ID: "bind-1", UserID: "local-user", ChannelID: "c1", ExternalCardID: "a",
			Mode: models.ModeDetached, TemplateSnapshot: "Private sheet",
		})
		runner, output := newTestRunner(t, api, tu.NewMemoryStorage(nil))

		if err := runApp(runner, "resolve", "--channel", "c1", "--card", "a"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if output.String() != "Private sheet\n" {
			t.Errorf("expected snapshot, got %q", output.String())
		}
	})

	t.Run("resolve without a card uses the defaults", func(t *testing.T) {
		runner, output := newTestRunner(t, tu.NewFakeAPI(seedTemplates()...), tu.NewMemoryStorage(nil))

		if err := runApp(runner, "resolve", "--sheet-type", "COC7", "--fallback", "x"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if output.String() != "HP: {hp}\n" {
			t.Errorf("expected global default content, got %q", output.String())
		}
	})
}

func TestLegacyCommands(t *testing.T) {
	writeLegacy := func(t *testing.T, body string) string {
		t.Helper()
		return tu.MustWriteFile(t, "legacy.json", body)
	}

	t.Run("import, migrate and status", func(t *testing.T) {
		api := tu.NewFakeAPI()
		storage := tu.NewMemoryStorage(nil)
		runner, output := newTestRunner(t, api, storage)

		path := writeLegacy(t, `{"a":"Legacy sheet","b":""}`)
		if err := runApp(runner, "legacy", "import", path); err != nil {
			t.Fatalf("import: expected no error, got %v", err)
		}
		if storage.Value(store.LegacyTemplatesKey) == "" {
			t.Fatal("expected legacy blob to be stored")
		}

		if err := runApp(runner, "migrate", "--channel", "c1", "--card", "a:Alice:coc7", "--card", "b:Bob"); err != nil {
			t.Fatalf("migrate: expected no error, got %v", err)
		}
		if !strings.Contains(output.String(), "Migration completed") {
			t.Errorf("expected completed header, got %s", output.String())
		}
		if got := storage.Value(store.MigrationFlagKey("local-user")); got != "1" {
			t.Errorf("expected migration flag, got %q", got)
		}

		templates := api.StoredTemplates()
		if len(templates) != 1 || templates[0].Content != "Legacy sheet" || templates[0].SheetType != "coc7" {
			t.Errorf("unexpected migrated templates %+v", templates)
		}

		output.Reset()
		if err := runApp(runner, "legacy", "status"); err != nil {
			t.Fatalf("status: expected no error, got %v", err)
		}
		if !strings.Contains(output.String(), "Legacy data: 2 cards") || !strings.Contains(output.String(), "User local-user: migrated") {
			t.Errorf("unexpected status %q", output.String())
		}

		if err := runApp(runner, "legacy", "reset"); err != nil {
			t.Fatalf("reset: expected no error, got %v", err)
		}
		if got := storage.Value(store.MigrationFlagKey("local-user")); got != "" {
			t.Errorf("expected flag cleared, got %q", got)
		}
	})

	t.Run("import rejects non-object JSON", func(t *testing.T) {
		storage := tu.NewMemoryStorage(nil)
		runner, _ := newTestRunner(t, tu.NewFakeAPI(), storage)

		err := runApp(runner, "legacy", "import", writeLegacy(t, `["a"]`))
		if !errors.Is(err, shared.ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}
		if storage.Value(store.LegacyTemplatesKey) != "" {
			t.Error("expected nothing stored")
		}
	})

	t.Run("migrate surfaces storage errors", func(t *testing.T) {
		storage := tu.NewMemoryStorage(nil)
		storage.GetErr = errors.New("disk gone")
		runner, _ := newTestRunner(t, tu.NewFakeAPI(), storage)

		err := runApp(runner, "migrate", "--channel", "c1", "--card", "a")
		if err == nil || !strings.Contains(err.Error(), "disk gone") {
			t.Errorf("expected storage error, got %v", err)
		}
	})

	t.Run("migrate requires a user id", func(t *testing.T) {
		runner, _ := newTestRunner(t, tu.NewFakeAPI(), tu.NewMemoryStorage(nil))
		runner.config.Client.UserID = ""

		err := runApp(runner, "migrate", "--channel", "c1", "--card", "a")
		if !errors.Is(err, shared.ErrMissingConfig) {
			t.Errorf("expected ErrMissingConfig, got %v", err)
		}
	})
}

func TestSetupCommands(t *testing.T) {
	t.Run("Database Status Rollback", func(t *testing.T) {
		r, out := newTestRunner(t, tu.NewFakeAPI(), nil)
		r.config.Database.Path = filepath.Join(t.TempDir(), "cardtpl.db")

		if err := runApp(r, "setup", "database"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if !strings.Contains(out.String(), "Applied 2 migrations") {
			t.Errorf("expected applied count, got %q", out.String())
		}

		out.Reset()
		if err := runApp(r, "setup", "database"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if !strings.Contains(out.String(), "up to date") {
			t.Errorf("expected up to date, got %q", out.String())
		}

		out.Reset()
		if err := runApp(r, "setup", "rollback"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if !strings.Contains(out.String(), "Rolled back 0001_local_storage") {
			t.Errorf("expected rollback of local_storage, got %q", out.String())
		}

		out.Reset()
		if err := runApp(r, "setup", "status"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		got := out.String()
		if !strings.Contains(got, "card_templates") || !strings.Contains(got, "applied") {
			t.Errorf("expected card_templates applied, got %q", got)
		}
		if !strings.Contains(got, "pending") {
			t.Errorf("expected a pending migration, got %q", got)
		}
	})

	t.Run("Missing Path", func(t *testing.T) {
		r, _ := newTestRunner(t, tu.NewFakeAPI(), nil)
		r.config.Database.Path = ""

		if err := runApp(r, "setup", "status"); !errors.Is(err, shared.ErrMissingConfig) {
			t.Errorf("expected ErrMissingConfig, got %v", err)
		}
	})

	t.Run("Config", func(t *testing.T) {
		r, out := newTestRunner(t, tu.NewFakeAPI(), nil)
		path := filepath.Join(t.TempDir(), "config.toml")

		if err := runApp(r, "setup", "config", "--output", path); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		tu.AssertFileExists(t, path)
		if !strings.Contains(out.String(), "Configuration written") {
			t.Errorf("expected confirmation, got %q", out.String())
		}
	})
}

func TestAPICommands(t *testing.T) {
	var gotMethod, gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)

		switch r.URL.Path {
		case "/missing":
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"error":"not found"}`))
		case "/empty":
			w.WriteHeader(http.StatusNoContent)
		default:
			w.Write([]byte(`{"items":[]}`))
		}
	}))
	defer srv.Close()

	newRunner := func(t *testing.T) (*Runner, *bytes.Buffer) {
		r, out := newTestRunner(t, tu.NewFakeAPI(), nil)
		r.config.Client.BaseURL = srv.URL
		return r, out
	}

	t.Run("get prints json", func(t *testing.T) {
		r, out := newRunner(t)
		if err := runApp(r, "api", "get", "--pretty=false", "templates"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if gotMethod != http.MethodGet {
			t.Errorf("expected GET, got %s", gotMethod)
		}
		if strings.TrimSpace(out.String()) != `{"items":[]}` {
			t.Errorf("unexpected output %q", out.String())
		}
	})

	t.Run("put reads body from file", func(t *testing.T) {
		r, _ := newRunner(t)
		path := tu.MustWriteFile(t, "body.json", `{"name":"A"}`)
		if err := runApp(r, "api", "put", "--data", "@"+path, "/x"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if gotMethod != http.MethodPut || gotBody != `{"name":"A"}` {
			t.Errorf("expected PUT with file body, got %s %q", gotMethod, gotBody)
		}
	})

	t.Run("post rejects invalid json", func(t *testing.T) {
		r, _ := newRunner(t)
		if err := runApp(r, "api", "post", "-d", "{nope", "/x"); !errors.Is(err, shared.ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}
	})

	t.Run("delete with no content", func(t *testing.T) {
		r, out := newRunner(t)
		if err := runApp(r, "api", "delete", "/empty"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if !strings.Contains(out.String(), "204 No Content") {
			t.Errorf("expected status line, got %q", out.String())
		}
	})

	t.Run("error status", func(t *testing.T) {
		r, _ := newRunner(t)
		if err := runApp(r, "api", "get", "/missing"); !errors.Is(err, shared.ErrAPIRequest) {
			t.Errorf("expected ErrAPIRequest, got %v", err)
		}
	})
}

func TestParseCard(t *testing.T) {
	tests := []struct {
		input   string
		want    models.CharacterCard
		wantErr bool
	}{
		{input: "a", want: models.CharacterCard{ID: "a"}},
		{input: "a:Alice", want: models.CharacterCard{ID: "a", Name: "Alice"}},
		{input: " a : Alice : coc7 ", want: models.CharacterCard{ID: "a", Name: "Alice", SheetType: "coc7"}},
		{input: "a:Name:with:colons", want: models.CharacterCard{ID: "a", Name: "Name", SheetType: "with:colons"}},
		{input: ":Alice", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := parseCard(tt.input)
			if tt.wantErr {
				if !errors.Is(err, shared.ErrInvalidArgument) {
					t.Errorf("expected ErrInvalidArgument, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("card mismatch (-want +got):\n%s", diff)
			}
		})
	}
}
