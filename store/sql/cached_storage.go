package sqlstore

import (
	"context"
	"fmt"
	"net/url"

	repositorycache "github.com/goliatone/go-repository-cache/cache"
	"github.com/goliatone/go-session/core"
)

const storageItemCacheKeyPrefix = "go-session::storage_item::v1::"

type cachedItem struct {
	Value string
	Found bool
}

// CachedStorage is a read-through cache in front of another Storage. Local
// writes and watched foreign changes invalidate the affected key.
type CachedStorage struct {
	base  core.Storage
	cache repositorycache.CacheService
}

func NewCachedStorage(base core.Storage, cacheService repositorycache.CacheService) (*CachedStorage, error) {
	if base == nil {
		return nil, fmt.Errorf("sqlstore: base storage is required")
	}
	if cacheService == nil {
		return nil, fmt.Errorf("sqlstore: storage cache service is required")
	}
	return &CachedStorage{base: base, cache: cacheService}, nil
}

// StorageItemCacheKey returns go-session::storage_item::v1::<key> with the
// item key URL-path escaped.
func StorageItemCacheKey(key string) string {
	return storageItemCacheKeyPrefix + url.PathEscape(key)
}

func (s *CachedStorage) GetItem(key string) (string, bool, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return "", false, fmt.Errorf("sqlstore: cached storage is not configured")
	}
	item, err := repositorycache.GetOrFetch(context.Background(), s.cache, StorageItemCacheKey(key), func(context.Context) (cachedItem, error) {
		value, ok, fetchErr := s.base.GetItem(key)
		if fetchErr != nil {
			return cachedItem{}, fetchErr
		}
		return cachedItem{Value: value, Found: ok}, nil
	})
	if err != nil {
		return "", false, err
	}
	return item.Value, item.Found, nil
}

func (s *CachedStorage) SetItem(key string, value string) error {
	if s == nil || s.base == nil || s.cache == nil {
		return fmt.Errorf("sqlstore: cached storage is not configured")
	}
	if err := s.base.SetItem(key, value); err != nil {
		return err
	}
	return s.invalidate(key)
}

func (s *CachedStorage) RemoveItem(key string) error {
	if s == nil || s.base == nil || s.cache == nil {
		return fmt.Errorf("sqlstore: cached storage is not configured")
	}
	if err := s.base.RemoveItem(key); err != nil {
		return err
	}
	return s.invalidate(key)
}

func (s *CachedStorage) Watch(fn func(core.StorageEvent)) (func(), error) {
	if s == nil || s.base == nil || s.cache == nil {
		return nil, fmt.Errorf("sqlstore: cached storage is not configured")
	}
	if fn == nil {
		return nil, fmt.Errorf("sqlstore: watch callback is required")
	}
	return s.base.Watch(func(event core.StorageEvent) {
		_ = s.invalidate(event.Key)
		fn(event)
	})
}

// Close closes the wrapped storage when it supports closing.
func (s *CachedStorage) Close() error {
	if s == nil || s.base == nil {
		return nil
	}
	if closer, ok := s.base.(interface{ Close() error }); ok {
		return closer.Close()
	}
	return nil
}

func (s *CachedStorage) invalidate(key string) error {
	return s.cache.Delete(context.Background(), StorageItemCacheKey(key))
}
