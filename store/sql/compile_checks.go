package sqlstore

import "github.com/goliatone/go-session/core"

var (
	_ core.Storage        = (*Storage)(nil)
	_ core.Storage        = (*CachedStorage)(nil)
	_ core.StorageFactory = (*Factory)(nil)
)
