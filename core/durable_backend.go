package core

import (
	"strings"
	"sync"

	glog "github.com/goliatone/go-logger/glog"
)

const probeKeySuffix = "__probe__"

// DurableBackend is a best-effort typed view over a host Storage. Whether
// the storage works is decided once at construction; when it does not,
// every operation is a no-op and reads return unset.
type DurableBackend[T any] struct {
	storage   Storage
	codec     Codec[T]
	namespace string
	logger    Logger
	enabled   bool

	mu          sync.Mutex
	subscribers map[string][]*Observer[T]
	cancelWatch func()
}

type DurableBackendOption[T any] func(*DurableBackend[T])

func WithDurableCodec[T any](codec Codec[T]) DurableBackendOption[T] {
	return func(b *DurableBackend[T]) {
		if codec != nil {
			b.codec = codec
		}
	}
}

func WithDurableNamespace[T any](namespace string) DurableBackendOption[T] {
	return func(b *DurableBackend[T]) {
		b.namespace = strings.TrimSpace(namespace)
	}
}

func WithDurableLogger[T any](logger Logger) DurableBackendOption[T] {
	return func(b *DurableBackend[T]) {
		if logger != nil {
			b.logger = logger
		}
	}
}

func NewDurableBackend[T any](storage Storage, opts ...DurableBackendOption[T]) *DurableBackend[T] {
	backend := &DurableBackend[T]{
		storage:     storage,
		codec:       JSONCodec[T]{},
		logger:      glog.Nop(),
		subscribers: map[string][]*Observer[T]{},
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(backend)
	}
	backend.enabled = backend.probe()
	if backend.enabled {
		backend.watch()
	}
	return backend
}

func (b *DurableBackend[T]) Enabled() bool {
	return b != nil && b.enabled
}

func (b *DurableBackend[T]) Get(key string) (result Maybe[T]) {
	if !b.Enabled() {
		return Unset[T]()
	}
	defer b.recoverStorage("read", key)
	raw, ok, err := b.storage.GetItem(b.storageKey(key))
	if err != nil {
		b.logger.Debug("durable read failed", "key", key, "error", err)
		return Unset[T]()
	}
	if !ok {
		return Unset[T]()
	}
	value, err := decodeMaybe(b.codec, &raw)
	if err != nil {
		b.logger.Debug("durable value could not be decoded", "key", key, "error", err)
		return Unset[T]()
	}
	return value
}

func (b *DurableBackend[T]) Set(key string, value Maybe[T]) {
	if !b.Enabled() {
		return
	}
	defer b.recoverStorage("write", key)
	raw, ok, err := encodeMaybe(b.codec, value)
	if err != nil {
		b.logger.Debug("durable value could not be encoded", "key", key, "error", err)
		return
	}
	if !ok {
		err = b.storage.RemoveItem(b.storageKey(key))
	} else {
		err = b.storage.SetItem(b.storageKey(key), raw)
	}
	if err != nil {
		b.logger.Debug("durable write failed", "key", key, "error", err)
	}
}

// Subscribe registers observer for changes to key made by other execution
// contexts.
func (b *DurableBackend[T]) Subscribe(key string, observer *Observer[T]) {
	if !b.Enabled() || observer == nil {
		return
	}
	b.mu.Lock()
	b.subscribers[key] = append(b.subscribers[key], observer)
	b.mu.Unlock()
}

func (b *DurableBackend[T]) Unsubscribe(key string, observer *Observer[T]) {
	if !b.Enabled() || observer == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	remaining := removeObserver(b.subscribers[key], observer)
	if len(remaining) == 0 {
		delete(b.subscribers, key)
		return
	}
	b.subscribers[key] = remaining
}

// Close stops listening for external changes.
func (b *DurableBackend[T]) Close() {
	if b == nil {
		return
	}
	b.mu.Lock()
	cancel := b.cancelWatch
	b.cancelWatch = nil
	b.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// recoverStorage turns a panicking Storage call into a logged no-op. A
// recovered read leaves the named result at its zero value, which is unset.
func (b *DurableBackend[T]) recoverStorage(operation string, key string) {
	if r := recover(); r != nil {
		b.logger.Debug("durable "+operation+" panicked", "key", key, "panic", r)
	}
}

func (b *DurableBackend[T]) probe() (enabled bool) {
	if b.storage == nil {
		return false
	}
	defer func() {
		if r := recover(); r != nil {
			b.logger.Debug("durable storage probe panicked", "panic", r)
			enabled = false
		}
	}()
	key := b.storageKey(probeKeySuffix)
	if err := b.storage.SetItem(key, probeKeySuffix); err != nil {
		b.logger.Debug("durable storage unavailable", "error", err)
		return false
	}
	if err := b.storage.RemoveItem(key); err != nil {
		b.logger.Debug("durable storage unavailable", "error", err)
		return false
	}
	return true
}

func (b *DurableBackend[T]) watch() {
	cancel, err := b.storage.Watch(b.handleEvent)
	if err != nil {
		b.logger.Debug("durable storage does not report external changes", "error", err)
		return
	}
	b.mu.Lock()
	b.cancelWatch = cancel
	b.mu.Unlock()
}

func (b *DurableBackend[T]) handleEvent(event StorageEvent) {
	key, ok := b.logicalKey(event.Key)
	if !ok {
		return
	}
	b.mu.Lock()
	observers := snapshotObservers(b.subscribers[key])
	b.mu.Unlock()
	if len(observers) == 0 {
		return
	}

	value, err := decodeMaybe(b.codec, event.NewValue)
	if err != nil {
		b.logger.Debug("external change could not be decoded", "key", key, "error", err)
		return
	}
	notifyAll(b.logger, "durable", key, observers, value)
}

func (b *DurableBackend[T]) storageKey(key string) string {
	if b.namespace == "" {
		return key
	}
	return b.namespace + ":" + key
}

func (b *DurableBackend[T]) logicalKey(storageKey string) (string, bool) {
	if b.namespace == "" {
		return storageKey, storageKey != ""
	}
	prefix := b.namespace + ":"
	if !strings.HasPrefix(storageKey, prefix) {
		return "", false
	}
	key := strings.TrimPrefix(storageKey, prefix)
	return key, key != ""
}
