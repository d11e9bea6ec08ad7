package shared

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io"
	"path"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/charmbracelet/log"
)

//go:embed sql/*.sql
var migrationFiles embed.FS

// migrationName matches "0001_local_storage_up.sql".
var migrationName = regexp.MustCompile(`^(\d+)_([a-z0-9_]+?)_(up|down)\.sql$`)

// Migration is one versioned schema change.
type Migration struct {
	Version int
	Name    string
	Up      string
	Down    string
}

// MigrationState reports whether a known migration has been applied.
type MigrationState struct {
	Migration
	Applied bool
}

// Migrator applies the embedded migrations to a database and records them in schema_migrations.
type Migrator struct {
	db         *sql.DB
	logger     *log.Logger
	migrations []Migration
}

// NewMigrator loads the embedded migrations. A nil logger discards output.
func NewMigrator(db *sql.DB, logger *log.Logger) (*Migrator, error) {
	if logger == nil {
		logger = log.New(io.Discard)
	}

	migrations, err := loadMigrations()
	if err != nil {
		return nil, err
	}

	return &Migrator{db: db, logger: logger.WithPrefix("migrate"), migrations: migrations}, nil
}

// RunMigrations applies every pending migration.
func RunMigrations(db *sql.DB) error {
	m, err := NewMigrator(db, nil)
	if err != nil {
		return err
	}
	_, err = m.Up(context.Background())
	return err
}

// loadMigrations pairs the up and down files of every version, sorted by version.
func loadMigrations() ([]Migration, error) {
	entries, err := migrationFiles.ReadDir("sql")
	if err != nil {
		return nil, fmt.Errorf("failed to read migration directory: %w", err)
	}

	byVersion := make(map[int]*Migration)
	for _, entry := range entries {
		match := migrationName.FindStringSubmatch(entry.Name())
		if entry.IsDir() || match == nil {
			continue
		}

		version, _ := strconv.Atoi(match[1])
		content, err := migrationFiles.ReadFile(path.Join("sql", entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("failed to read migration file %s: %w", entry.Name(), err)
		}

		m, ok := byVersion[version]
		if !ok {
			m = &Migration{Version: version, Name: match[2]}
			byVersion[version] = m
		} else if m.Name != match[2] {
			return nil, fmt.Errorf("migration %d has mismatched names %q and %q", version, m.Name, match[2])
		}

		if match[3] == "up" {
			m.Up = string(content)
		} else {
			m.Down = string(content)
		}
	}

	migrations := make([]Migration, 0, len(byVersion))
	for _, m := range byVersion {
		if m.Up == "" || m.Down == "" {
			return nil, fmt.Errorf("incomplete migration for version %d", m.Version)
		}
		migrations = append(migrations, *m)
	}

	slices.SortFunc(migrations, func(a, b Migration) int { return a.Version - b.Version })
	return migrations, nil
}

func (m *Migrator) ensureTable(ctx context.Context) error {
	_, err := m.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			name TEXT NOT NULL DEFAULT '',
			applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}
	return nil
}

func (m *Migrator) applied(ctx context.Context) (map[int]bool, error) {
	rows, err := m.db.QueryContext(ctx, "SELECT version FROM schema_migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to read applied migrations: %w", err)
	}
	defer rows.Close()

	applied := make(map[int]bool)
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		applied[v] = true
	}
	return applied, rows.Err()
}

// Up applies pending migrations in version order and returns the versions it applied.
func (m *Migrator) Up(ctx context.Context) ([]int, error) {
	if err := m.ensureTable(ctx); err != nil {
		return nil, err
	}
	applied, err := m.applied(ctx)
	if err != nil {
		return nil, err
	}

	var done []int
	for _, mig := range m.migrations {
		if applied[mig.Version] {
			continue
		}
		err := m.exec(ctx, mig.Up, "INSERT INTO schema_migrations (version, name) VALUES (?, ?)", mig.Version, mig.Name)
		if err != nil {
			return done, fmt.Errorf("failed to apply migration %d_%s: %w", mig.Version, mig.Name, err)
		}
		m.logger.Debug("applied", "version", mig.Version, "name", mig.Name)
		done = append(done, mig.Version)
	}
	return done, nil
}

// Down rolls back the most recently applied migration and returns it.
func (m *Migrator) Down(ctx context.Context) (*Migration, error) {
	if err := m.ensureTable(ctx); err != nil {
		return nil, err
	}
	applied, err := m.applied(ctx)
	if err != nil {
		return nil, err
	}

	for i := len(m.migrations) - 1; i >= 0; i-- {
		mig := m.migrations[i]
		if !applied[mig.Version] {
			continue
		}
		if err := m.exec(ctx, mig.Down, "DELETE FROM schema_migrations WHERE version = ?", mig.Version); err != nil {
			return nil, fmt.Errorf("failed to roll back migration %d_%s: %w", mig.Version, mig.Name, err)
		}
		m.logger.Debug("rolled back", "version", mig.Version, "name", mig.Name)
		return &mig, nil
	}
	return nil, fmt.Errorf("%w: no migrations to roll back", ErrInvalidInput)
}

// Status lists every known migration with its applied state.
func (m *Migrator) Status(ctx context.Context) ([]MigrationState, error) {
	if err := m.ensureTable(ctx); err != nil {
		return nil, err
	}
	applied, err := m.applied(ctx)
	if err != nil {
		return nil, err
	}

	states := make([]MigrationState, len(m.migrations))
	for i, mig := range m.migrations {
		states[i] = MigrationState{Migration: mig, Applied: applied[mig.Version]}
	}
	return states, nil
}

// exec runs each statement of script and then the bookkeeping query in one transaction.
func (m *Migrator) exec(ctx context.Context, script, record string, args ...any) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, stmt := range splitStatements(script) {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("%w\nstatement: %s", err, stmt)
		}
	}
	if _, err := tx.ExecContext(ctx, record, args...); err != nil {
		return err
	}
	return tx.Commit()
}

// splitStatements strips "--" comments and splits on semicolons.
func splitStatements(script string) []string {
	var b strings.Builder
	for line := range strings.SplitSeq(script, "\n") {
		if i := strings.Index(line, "--"); i >= 0 {
			line = line[:i]
		}
		b.WriteString(line)
		b.WriteByte('\n')
	}

	var out []string
	for stmt := range strings.SplitSeq(b.String(), ";") {
		if stmt = strings.TrimSpace(stmt); stmt != "" {
			out = append(out, stmt)
		}
	}
	return out
}
