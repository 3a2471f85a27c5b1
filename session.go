package session

import (
	"context"
	"fmt"
	"strings"

	"github.com/goliatone/go-session/core"
	"github.com/goliatone/go-session/security"
	filestore "github.com/goliatone/go-session/store/file"
	sqlstore "github.com/goliatone/go-session/store/sql"
)

type Config = core.Config

type BackendConfig = core.BackendConfig

type Option = core.Option

type Client = core.Client

type SessionToken = core.SessionToken

type SessionClaims = core.SessionClaims

type Storage = core.Storage

type StorageFactory = core.StorageFactory

const (
	DefaultSessionKey   = core.DefaultSessionKey
	BackendDriverMemory = core.BackendDriverMemory
	BackendDriverFile   = core.BackendDriverFile
	BackendDriverSQL    = core.BackendDriverSQL
	BackendDriverNone   = core.BackendDriverNone
)

var (
	WithLogger               = core.WithLogger
	WithLoggerProvider       = core.WithLoggerProvider
	WithMetricsRecorder      = core.WithMetricsRecorder
	WithErrorMapper          = core.WithErrorMapper
	WithConfigProvider       = core.WithConfigProvider
	WithOptionsResolver      = core.WithOptionsResolver
	WithStorage              = core.WithStorage
	WithStorageFactory       = core.WithStorageFactory
	WithScheduler            = core.WithScheduler
	WithClock                = core.WithClock
	WithClientExpiryNotifier = core.WithClientExpiryNotifier
	ParseSessionToken        = core.ParseSessionToken
	DecodeSessionToken       = core.DecodeSessionToken
	ErrInvalidSessionToken   = core.ErrInvalidSessionToken
	NewMemoryStorageHub      = core.NewMemoryStorageHub
	NewManualScheduler       = core.NewManualScheduler
	NewCfgxConfigProvider    = core.NewCfgxConfigProvider
	NewMemoryMetricsRecorder = core.NewMemoryMetricsRecorder
)

func DefaultConfig() Config {
	return core.DefaultConfig()
}

// Setup builds a client whose file and sql drivers resolve through the
// bundled storage adapters. A WithStorageFactory or WithStorage option
// passed by the caller takes precedence.
func Setup(cfg Config, opts ...Option) (*Client, error) {
	base := []Option{core.WithStorageFactory(NewDriverFactory())}
	return core.Setup(cfg, append(base, opts...)...)
}

// DriverFactory routes a backend config to the adapter for its driver.
// Storage built for a config with an encryption key is sealed at rest.
type DriverFactory struct {
	File StorageFactory
	SQL  StorageFactory
}

func NewDriverFactory() *DriverFactory {
	return &DriverFactory{
		File: filestore.NewFactory(nil),
		SQL:  sqlstore.NewFactory(nil),
	}
}

func (f *DriverFactory) BuildStorage(ctx context.Context, cfg BackendConfig) (Storage, error) {
	if f == nil {
		return nil, fmt.Errorf("session: storage factory is not configured")
	}
	var factory StorageFactory
	switch cfg.NormalizedDriver() {
	case core.BackendDriverFile:
		factory = f.File
	case core.BackendDriverSQL:
		factory = f.SQL
	default:
		return nil, fmt.Errorf("session: backend driver %q has no storage adapter", cfg.Driver)
	}
	if factory == nil {
		return nil, fmt.Errorf("session: storage factory for the %s driver is not configured", cfg.NormalizedDriver())
	}
	storage, err := factory.BuildStorage(ctx, cfg)
	if err != nil || strings.TrimSpace(cfg.EncryptionKey) == "" {
		return storage, err
	}
	return sealStorage(storage, cfg.EncryptionKey)
}

func sealStorage(storage Storage, key string) (Storage, error) {
	sealer, err := security.NewAppKeySealerFromString(key)
	if err != nil {
		closeStorage(storage)
		return nil, err
	}
	sealed, err := security.NewSealedStorage(storage, sealer)
	if err != nil {
		closeStorage(storage)
		return nil, err
	}
	return sealed, nil
}

func closeStorage(storage Storage) {
	if closer, ok := storage.(interface{ Close() error }); ok {
		_ = closer.Close()
	}
}

var _ StorageFactory = (*DriverFactory)(nil)
