package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/cardtpl/internal/repositories"
	"github.com/desertthunder/cardtpl/internal/services"
	"github.com/desertthunder/cardtpl/internal/shared"
	"github.com/desertthunder/cardtpl/internal/store"
	"github.com/desertthunder/cardtpl/internal/tasks"
	"github.com/urfave/cli/v3"
)

// Runner holds all dependencies for CLI commands and provides methods for each command action.
//
// The API client, local database and store are built on first use so commands that never touch
// them (setup, serve) do not need a reachable server.
type Runner struct {
	config     *shared.Config
	configPath string
	httpClient *http.Client
	logger     *log.Logger
	output     io.Writer

	api     services.TemplateAPI
	service *services.TemplateService
	storage store.KeyValueStore
	db      *sql.DB
	store   *store.Store
}

// RunnerOpts contains configuration options for creating a Runner.
//
// API and Storage replace the HTTP client and the SQLite local storage when set.
type RunnerOpts struct {
	Config     *shared.Config
	ConfigPath string
	HTTPClient *http.Client
	Logger     *log.Logger
	Output     io.Writer
	API        services.TemplateAPI
	Storage    store.KeyValueStore
}

// NewRunner creates a new Runner with the provided configuration
func NewRunner(opts RunnerOpts) *Runner {
	if opts.Config == nil {
		opts.Config = shared.DefaultConfig()
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}

	return &Runner{
		config:     opts.Config,
		configPath: opts.ConfigPath,
		httpClient: opts.HTTPClient,
		logger:     opts.Logger,
		output:     opts.Output,
		api:        opts.API,
		storage:    opts.Storage,
	}
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		setupCommand, templatesCommand, bindingsCommand, resolveCommand, migrateCommand, legacyCommand,
		serveCommand, apiCommand, tuiCommand,
	} {
		commands = append(commands, fn(r))
	}

	return commands
}

// SetLogger replaces the logger. Components built afterwards log through it.
func (r *Runner) SetLogger(l *log.Logger) {
	r.logger = l
}

// loadConfig runs before every command. A missing file at the default path keeps the defaults;
// an explicit --config that cannot be read is an error.
func (r *Runner) loadConfig(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	path := cmd.String("config")
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			config, err := shared.LoadConfig(path)
			if err != nil {
				return ctx, err
			}
			r.config = config
			r.configPath = path
		} else if cmd.IsSet("config") {
			return ctx, fmt.Errorf("%w: %s", shared.ErrMissingConfig, path)
		}
	}

	if cmd.Bool("debug") {
		shared.SetLogLevel(r.logger, log.DebugLevel)
	} else {
		shared.SetLogLevel(r.logger, r.config.LogLevel())
	}
	return ctx, nil
}

// close releases the local database, if one was opened.
func (r *Runner) close() error {
	if r.db == nil {
		return nil
	}
	err := r.db.Close()
	r.db = nil
	return err
}

// templateService returns the HTTP client for the configured template API.
func (r *Runner) templateService() *services.TemplateService {
	if r.service == nil {
		r.service = services.NewTemplateService(services.TemplateServiceOpts{
			BaseURL:    r.config.Client.BaseURL,
			Token:      r.config.Client.Token,
			HTTPClient: r.httpClient,
			RateLimit:  r.config.Client.RateLimit,
		})
	}
	return r.service
}

func (r *Runner) templateAPI() services.TemplateAPI {
	if r.api != nil {
		return r.api
	}
	return r.templateService()
}

func (r *Runner) database() (*sql.DB, error) {
	if r.db != nil {
		return r.db, nil
	}

	db, err := shared.OpenDatabase(r.config.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to open local database: %w", err)
	}
	r.db = db
	return db, nil
}

// localStorage returns the durable key-value storage the migration reads and writes.
func (r *Runner) localStorage() (store.KeyValueStore, error) {
	if r.storage != nil {
		return r.storage, nil
	}

	db, err := r.database()
	if err != nil {
		return nil, err
	}
	r.storage = repositories.NewLocalStorage(db)
	return r.storage, nil
}

// templateStore returns the session store. Local storage is attached when it can be opened;
// without it the store still serves every operation except the migration.
func (r *Runner) templateStore() *store.Store {
	if r.store != nil {
		return r.store
	}

	storage, err := r.localStorage()
	if err != nil {
		r.logger.Debug("local storage unavailable", "error", err)
	}

	r.store = store.New(store.Options{
		API:     r.templateAPI(),
		Storage: storage,
		UserID:  r.config.Client.UserID,
		Logger:  r.logger,
	})
	return r.store
}

func (r *Runner) engine(concurrency int) *tasks.BindingEngine {
	return tasks.NewBindingEngine(r.templateStore(), tasks.EngineOpts{
		Concurrency: concurrency,
		RateLimit:   r.config.Client.RateLimit,
		Logger:      r.logger,
	})
}

func (r *Runner) writeJSON(data any, pretty bool) error {
	var output []byte
	var err error

	if pretty {
		output, err = json.MarshalIndent(data, "", "  ")
	} else {
		output, err = json.Marshal(data)
	}

	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	if _, err := r.output.Write(output); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	if _, err := r.output.Write([]byte("\n")); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}

	return nil
}

func (r *Runner) writePlain(format string, args ...any) error {
	text := fmt.Sprintf(format, args...)
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainln(format string, args ...any) error {
	text := "\n" + fmt.Sprintf(format, args...) + "\n"
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainHeader(title string) {
	r.writePlain("═══════════════════════════════════════\n")
	r.writePlain("%v\n", title)
	r.writePlain("═══════════════════════════════════════\n")
}
