package core

import (
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// MemoryStorageHub is an in-process Storage shared by several execution
// contexts. A write made through one context is reported to the watchers of
// every other context, the way browser storage events reach other tabs.
type MemoryStorageHub struct {
	mu       sync.Mutex
	items    map[string]string
	watchers map[string]map[uint64]func(StorageEvent)
	nextID   uint64
}

func NewMemoryStorageHub() *MemoryStorageHub {
	return &MemoryStorageHub{
		items:    map[string]string{},
		watchers: map[string]map[uint64]func(StorageEvent){},
	}
}

// Context returns a Storage bound to a fresh execution context id.
func (h *MemoryStorageHub) Context() *MemoryStorage {
	return &MemoryStorage{hub: h, origin: uuid.NewString()}
}

// Keys returns the stored keys in lexical order.
func (h *MemoryStorageHub) Keys() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	keys := make([]string, 0, len(h.items))
	for key := range h.items {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func (h *MemoryStorageHub) write(origin string, key string, value *string) {
	h.mu.Lock()
	if value == nil {
		if _, ok := h.items[key]; !ok {
			h.mu.Unlock()
			return
		}
		delete(h.items, key)
	} else {
		if current, ok := h.items[key]; ok && current == *value {
			h.mu.Unlock()
			return
		}
		h.items[key] = *value
	}
	targets := make([]func(StorageEvent), 0)
	contexts := make([]string, 0, len(h.watchers))
	for context := range h.watchers {
		contexts = append(contexts, context)
	}
	sort.Strings(contexts)
	for _, context := range contexts {
		if context == origin {
			continue
		}
		ids := make([]uint64, 0, len(h.watchers[context]))
		for id := range h.watchers[context] {
			ids = append(ids, id)
		}
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
		for _, id := range ids {
			targets = append(targets, h.watchers[context][id])
		}
	}
	h.mu.Unlock()

	event := StorageEvent{Key: key, NewValue: value, Origin: origin}
	for _, fn := range targets {
		fn(event)
	}
}

type MemoryStorage struct {
	hub    *MemoryStorageHub
	origin string
}

// NewMemoryStorage returns a single-context in-memory Storage.
func NewMemoryStorage() *MemoryStorage {
	return NewMemoryStorageHub().Context()
}

func (s *MemoryStorage) Origin() string {
	if s == nil {
		return ""
	}
	return s.origin
}

func (s *MemoryStorage) GetItem(key string) (string, bool, error) {
	if s == nil || s.hub == nil {
		return "", false, fmt.Errorf("core: memory storage is not configured")
	}
	s.hub.mu.Lock()
	defer s.hub.mu.Unlock()
	value, ok := s.hub.items[key]
	return value, ok, nil
}

func (s *MemoryStorage) SetItem(key string, value string) error {
	if s == nil || s.hub == nil {
		return fmt.Errorf("core: memory storage is not configured")
	}
	s.hub.write(s.origin, key, &value)
	return nil
}

func (s *MemoryStorage) RemoveItem(key string) error {
	if s == nil || s.hub == nil {
		return fmt.Errorf("core: memory storage is not configured")
	}
	s.hub.write(s.origin, key, nil)
	return nil
}

// Watch delivers changes made through other contexts of the same hub.
// Events are delivered synchronously on the writer's goroutine.
func (s *MemoryStorage) Watch(fn func(StorageEvent)) (func(), error) {
	if s == nil || s.hub == nil {
		return nil, fmt.Errorf("core: memory storage is not configured")
	}
	if fn == nil {
		return nil, fmt.Errorf("core: watch callback is required")
	}
	h := s.hub
	h.mu.Lock()
	h.nextID++
	id := h.nextID
	if h.watchers[s.origin] == nil {
		h.watchers[s.origin] = map[uint64]func(StorageEvent){}
	}
	h.watchers[s.origin][id] = fn
	h.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.watchers[s.origin], id)
			if len(h.watchers[s.origin]) == 0 {
				delete(h.watchers, s.origin)
			}
			h.mu.Unlock()
		})
	}, nil
}

var _ Storage = (*MemoryStorage)(nil)
