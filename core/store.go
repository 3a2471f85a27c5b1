package core

import (
	"context"
	"sync"

	glog "github.com/goliatone/go-logger/glog"
)

// Store is the unified storage facade. Reads prefer the process-local
// cache, writes go to both layers, and changes reported by the durable
// backend are folded back into the local cache and re-broadcast to the
// store's own subscribers. Construct one per process and share it.
type Store[T any] struct {
	local   *LocalStore[T]
	durable *DurableBackend[T]
	logger  Logger
	metrics MetricsRecorder

	mu          sync.Mutex
	subscribers map[string][]*Observer[T]
	monitored   map[string]*Observer[T]
}

type StoreOption[T any] func(*storeBuilder[T])

type storeBuilder[T any] struct {
	equal   EqualFunc[T]
	logger  Logger
	metrics MetricsRecorder
}

func WithStoreEqual[T any](equal EqualFunc[T]) StoreOption[T] {
	return func(b *storeBuilder[T]) {
		b.equal = equal
	}
}

func WithStoreLogger[T any](logger Logger) StoreOption[T] {
	return func(b *storeBuilder[T]) {
		b.logger = logger
	}
}

func WithStoreMetrics[T any](recorder MetricsRecorder) StoreOption[T] {
	return func(b *storeBuilder[T]) {
		b.metrics = recorder
	}
}

// NewStore composes a local store with durable. A nil durable backend
// behaves like an unavailable one.
func NewStore[T any](durable *DurableBackend[T], opts ...StoreOption[T]) *Store[T] {
	builder := storeBuilder[T]{
		equal:   DeepEqual[T],
		logger:  glog.Nop(),
		metrics: NopMetricsRecorder{},
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&builder)
	}
	if builder.logger == nil {
		builder.logger = glog.Nop()
	}
	if builder.metrics == nil {
		builder.metrics = NopMetricsRecorder{}
	}
	if durable == nil {
		durable = NewDurableBackend[T](nil)
	}
	return &Store[T]{
		local:       NewLocalStore(builder.equal, builder.logger),
		durable:     durable,
		logger:      builder.logger,
		metrics:     builder.metrics,
		subscribers: map[string][]*Observer[T]{},
		monitored:   map[string]*Observer[T]{},
	}
}

// Durable exposes the backend for callers that need to know whether
// values survive a restart.
func (s *Store[T]) Durable() *DurableBackend[T] {
	if s == nil {
		return nil
	}
	return s.durable
}

func (s *Store[T]) Get(key string) Maybe[T] {
	if s == nil {
		return Unset[T]()
	}
	s.monitor(key)
	if value := s.local.Get(key); !value.IsUnset() {
		return value
	}
	return s.durable.Get(key)
}

// Set writes value to both layers and notifies the store's subscribers for
// key before returning.
func (s *Store[T]) Set(key string, value Maybe[T]) {
	if s == nil {
		return
	}
	s.monitor(key)
	s.durable.Set(key, value)
	s.local.Set(key, value)
	s.metrics.IncCounter(context.Background(), "session.store.set.total", 1, map[string]string{"key": key})
	s.broadcast(key, value)
}

// Update resolves fn against the current value of key and writes the
// result.
func (s *Store[T]) Update(key string, fn func(prev Maybe[T]) Maybe[T]) Maybe[T] {
	if s == nil || fn == nil {
		return Unset[T]()
	}
	next := Updater(fn).Resolve(s.Get(key))
	s.Set(key, next)
	return next
}

// Receive applies a change that originated in another execution context.
// Hosts relaying changes over their own channels call it directly; the
// durable backend monitor calls it for storage events.
func (s *Store[T]) Receive(key string, update Update[T]) {
	if s == nil {
		return
	}
	s.monitor(key)
	s.applyExternal(key, update)
}

// Subscribe registers observer for writes to key, local or from another
// execution context.
func (s *Store[T]) Subscribe(key string, observer *Observer[T]) {
	if s == nil || observer == nil {
		return
	}
	s.mu.Lock()
	s.subscribers[key] = append(s.subscribers[key], observer)
	s.mu.Unlock()
	s.monitor(key)
}

func (s *Store[T]) Unsubscribe(key string, observer *Observer[T]) {
	if s == nil || observer == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	remaining := removeObserver(s.subscribers[key], observer)
	if len(remaining) == 0 {
		delete(s.subscribers, key)
		return
	}
	s.subscribers[key] = remaining
}

// Monitored reports whether the durable sync listener for key is installed.
func (s *Store[T]) Monitored(key string) bool {
	if s == nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.monitored[key]
	return ok
}

// Close detaches the store from the durable backend.
func (s *Store[T]) Close() {
	if s == nil {
		return
	}
	s.mu.Lock()
	monitors := make(map[string]*Observer[T], len(s.monitored))
	for key, observer := range s.monitored {
		monitors[key] = observer
	}
	s.mu.Unlock()
	for key, observer := range monitors {
		s.durable.Unsubscribe(key, observer)
	}
	s.durable.Close()
}

// monitor installs the durable listener for key once for the store's
// lifetime.
func (s *Store[T]) monitor(key string) {
	s.mu.Lock()
	if _, ok := s.monitored[key]; ok {
		s.mu.Unlock()
		return
	}
	observer := NewObserver(func(value Maybe[T]) {
		s.applyExternal(key, Literal(value))
	})
	s.monitored[key] = observer
	s.mu.Unlock()

	s.durable.Subscribe(key, observer)
}

func (s *Store[T]) applyExternal(key string, update Update[T]) {
	next := update.Resolve(s.local.Get(key))
	s.local.Set(key, next)
	s.metrics.IncCounter(context.Background(), "session.store.external_change.total", 1, map[string]string{"key": key})
	s.logger.Debug("external change applied", "key", key, "state", next.State().String())
	s.broadcast(key, next)
}

func (s *Store[T]) broadcast(key string, value Maybe[T]) {
	s.mu.Lock()
	subscribers := snapshotObservers(s.subscribers[key])
	s.mu.Unlock()
	notifyAll(s.logger, "store", key, subscribers, value)
}
