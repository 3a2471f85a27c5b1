// Package migrations exposes the session store schema migrations per SQL
// dialect and hands them to a host migrator.
package migrations

import (
	"context"
	"fmt"
	"io/fs"
	"slices"
	"strings"

	persistence "github.com/goliatone/go-persistence-bun"
	session "github.com/goliatone/go-session"
)

const (
	DialectPostgres = "postgres"
	DialectSQLite   = "sqlite"

	defaultSourceLabel = "go-session"
	migrationsDir      = "data/sql/migrations"
)

// DialectFS is the migration directory for one SQL dialect.
type DialectFS struct {
	Dialect string
	Path    string
	FS      fs.FS
}

// Plan describes which dialect directories get registered and under which
// source label.
type Plan struct {
	SourceLabel string
	Dialects    []string
	Sources     []DialectFS
}

// RegisterFunc hands one dialect directory to the host migrator.
type RegisterFunc func(ctx context.Context, dialect string, sourceLabel string, fsys fs.FS) error

type Option func(*Plan)

func WithSourceLabel(label string) Option {
	return func(p *Plan) {
		if trimmed := strings.TrimSpace(label); trimmed != "" {
			p.SourceLabel = trimmed
		}
	}
}

// WithDialects restricts registration to the named dialects. Aliases such
// as sqlite3 or pg are accepted.
func WithDialects(dialects ...string) Option {
	return func(p *Plan) {
		var selected []string
		for _, dialect := range dialects {
			if normalized, ok := NormalizeDialect(dialect); ok && !slices.Contains(selected, normalized) {
				selected = append(selected, normalized)
			}
		}
		if len(selected) > 0 {
			p.Dialects = selected
		}
	}
}

// WithSources replaces the embedded migration directories.
func WithSources(sources ...DialectFS) Option {
	return func(p *Plan) {
		var kept []DialectFS
		for _, source := range sources {
			dialect, ok := NormalizeDialect(source.Dialect)
			if !ok || source.FS == nil {
				continue
			}
			source.Dialect = dialect
			kept = append(kept, source)
		}
		if len(kept) > 0 {
			p.Sources = kept
		}
	}
}

// NormalizeDialect maps driver and dialect spellings onto DialectPostgres
// or DialectSQLite.
func NormalizeDialect(value string) (string, bool) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case DialectSQLite, "sqlite3":
		return DialectSQLite, true
	case DialectPostgres, "postgresql", "pg":
		return DialectPostgres, true
	default:
		return "", false
	}
}

// Filesystems returns the postgres and sqlite migration directories found
// under data/sql/migrations of root, or of the embedded tree when root is
// nil.
func Filesystems(root ...fs.FS) ([]DialectFS, error) {
	tree := session.GetMigrationsFS()
	if len(root) > 0 && root[0] != nil {
		tree = root[0]
	}

	postgresFS, err := fs.Sub(tree, migrationsDir)
	if err != nil {
		return nil, fmt.Errorf("migrations: resolve %s: %w", migrationsDir, err)
	}
	sqliteFS, err := fs.Sub(postgresFS, DialectSQLite)
	if err != nil {
		return nil, fmt.Errorf("migrations: resolve sqlite directory: %w", err)
	}

	sources := []DialectFS{
		{Dialect: DialectPostgres, Path: migrationsDir, FS: postgresFS},
		{Dialect: DialectSQLite, Path: migrationsDir + "/" + DialectSQLite, FS: sqliteFS},
	}
	for _, source := range sources {
		if err := requireUpMigrations(source); err != nil {
			return nil, err
		}
	}
	return sources, nil
}

// Register passes each selected dialect directory to registerFn in
// declaration order and returns the plan that was applied.
func Register(ctx context.Context, registerFn RegisterFunc, opts ...Option) (Plan, error) {
	plan := Plan{
		SourceLabel: defaultSourceLabel,
		Dialects:    []string{DialectPostgres, DialectSQLite},
	}
	if registerFn == nil {
		return plan, fmt.Errorf("migrations: register function is required")
	}

	sources, err := Filesystems()
	if err != nil {
		return plan, err
	}
	plan.Sources = sources
	for _, opt := range opts {
		if opt != nil {
			opt(&plan)
		}
	}

	for _, source := range plan.Sources {
		if !slices.Contains(plan.Dialects, source.Dialect) {
			continue
		}
		if err := registerFn(ctx, source.Dialect, plan.SourceLabel, source.FS); err != nil {
			return plan, fmt.Errorf("migrations: register %s (%s): %w", source.Dialect, source.Path, err)
		}
	}
	return plan, nil
}

// Migrate registers the migrations for dialect on client and runs them.
func Migrate(ctx context.Context, client *persistence.Client, dialect string, opts ...Option) error {
	if client == nil {
		return fmt.Errorf("migrations: persistence client is required")
	}
	normalized, ok := NormalizeDialect(dialect)
	if !ok {
		return fmt.Errorf("migrations: unsupported dialect %q", dialect)
	}
	opts = append(opts, WithDialects(normalized))
	_, err := Register(ctx, func(_ context.Context, _ string, _ string, fsys fs.FS) error {
		client.RegisterSQLMigrations(fsys)
		return nil
	}, opts...)
	if err != nil {
		return err
	}
	if err := client.Migrate(ctx); err != nil {
		return fmt.Errorf("migrations: migrate %s: %w", normalized, err)
	}
	return nil
}

func requireUpMigrations(source DialectFS) error {
	matches, err := fs.Glob(source.FS, "*.up.sql")
	if err != nil {
		return fmt.Errorf("migrations: glob %s %s: %w", source.Dialect, source.Path, err)
	}
	if len(matches) == 0 {
		return fmt.Errorf("migrations: %s directory %q has no *.up.sql files", source.Dialect, source.Path)
	}
	return nil
}
