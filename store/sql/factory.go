package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	persistence "github.com/goliatone/go-persistence-bun"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
	"github.com/goliatone/go-session/core"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/schema"
)

const (
	DialectSQLite   = "sqlite"
	DialectPostgres = "postgres"
)

type persistenceConfig struct {
	driver string
	server string
}

func (c persistenceConfig) GetDebug() bool {
	return false
}

func (c persistenceConfig) GetDriver() string {
	return c.driver
}

func (c persistenceConfig) GetServer() string {
	return c.server
}

func (c persistenceConfig) GetPingTimeout() time.Duration {
	return 5 * time.Second
}

func (c persistenceConfig) GetOtelIdentifier() string {
	return "go-session"
}

// OpenDB opens a persistence client for the configured dialect.
func OpenDB(cfg core.BackendConfig) (*persistence.Client, error) {
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, fmt.Errorf("sqlstore: dsn is required")
	}

	var (
		driver  string
		dialect schema.Dialect
	)
	switch strings.ToLower(strings.TrimSpace(cfg.Dialect)) {
	case "", DialectSQLite, "sqlite3":
		driver = "sqlite3"
		dialect = sqlitedialect.New()
	case DialectPostgres, "postgresql", "pg":
		driver = "postgres"
		dialect = pgdialect.New()
	default:
		return nil, fmt.Errorf("sqlstore: unsupported dialect %q", cfg.Dialect)
	}

	sqlDB, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: open %s: %w", driver, err)
	}
	if driver == "sqlite3" {
		sqlDB.SetMaxOpenConns(1)
	}

	client, err := persistence.New(persistenceConfig{driver: driver, server: dsn}, sqlDB, dialect)
	if err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("sqlstore: new persistence client: %w", err)
	}
	return client, nil
}

// Factory builds SQL storages for core.Client. Storages it builds own
// their database handle and close it on Close. When Cache is set the
// storage is wrapped in a CachedStorage.
type Factory struct {
	Logger core.Logger
	Cache  repositorycache.CacheService
}

func NewFactory(logger core.Logger) *Factory {
	return &Factory{Logger: logger}
}

func (f *Factory) BuildStorage(ctx context.Context, cfg core.BackendConfig) (core.Storage, error) {
	if f == nil {
		return nil, fmt.Errorf("sqlstore: storage factory is nil")
	}
	if cfg.NormalizedDriver() != core.BackendDriverSQL {
		return nil, fmt.Errorf("sqlstore: unsupported backend driver %q", cfg.Driver)
	}
	client, err := OpenDB(cfg)
	if err != nil {
		return nil, err
	}
	storage, err := NewStorageFromPersistence(ctx, client, cfg.PollInterval, f.logger())
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	storage.closer = client.Close
	if f.Cache == nil {
		return storage, nil
	}
	cached, err := NewCachedStorage(storage, f.Cache)
	if err != nil {
		_ = storage.Close()
		return nil, err
	}
	return cached, nil
}

// NewStorageFromPersistence ensures the schema on the client's database and
// returns a Storage over it.
func NewStorageFromPersistence(ctx context.Context, client any, pollInterval time.Duration, logger core.Logger) (*Storage, error) {
	db, err := resolveBunDB(client)
	if err != nil {
		return nil, err
	}
	if err := EnsureSchema(ctx, db); err != nil {
		return nil, err
	}
	return NewStorage(db, WithPollInterval(pollInterval), WithLogger(logger))
}

func (f *Factory) logger() core.Logger {
	if f == nil {
		return nil
	}
	return f.Logger
}

func resolveBunDB(candidate any) (*bun.DB, error) {
	switch typed := candidate.(type) {
	case nil:
		return nil, fmt.Errorf("sqlstore: persistence client is required")
	case *bun.DB:
		return typed, nil
	case interface{ DB() *bun.DB }:
		db := typed.DB()
		if db == nil {
			return nil, fmt.Errorf("sqlstore: persistence client returned nil bun db")
		}
		return db, nil
	default:
		return nil, fmt.Errorf("sqlstore: unsupported persistence client type %T", candidate)
	}
}
