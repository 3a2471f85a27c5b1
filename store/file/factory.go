package filestore

import (
	"context"
	"fmt"

	"github.com/goliatone/go-session/core"
)

// Factory builds directory-backed storages for core.Client.
type Factory struct {
	Logger core.Logger
}

func NewFactory(logger core.Logger) *Factory {
	return &Factory{Logger: logger}
}

func (f *Factory) BuildStorage(_ context.Context, cfg core.BackendConfig) (core.Storage, error) {
	if cfg.NormalizedDriver() != core.BackendDriverFile {
		return nil, fmt.Errorf("filestore: unsupported backend driver %q", cfg.Driver)
	}
	var logger core.Logger
	if f != nil {
		logger = f.Logger
	}
	return NewStorage(cfg.Directory, WithLogger(logger))
}

var (
	_ core.Storage        = (*Storage)(nil)
	_ core.StorageFactory = (*Factory)(nil)
)
