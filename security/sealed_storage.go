package security

import (
	"fmt"

	glog "github.com/goliatone/go-logger/glog"
	"github.com/goliatone/go-session/core"
)

// Sealer turns stored values into opaque envelopes and back.
type Sealer interface {
	Seal(plaintext string) (string, error)
	Open(sealed string) (string, error)
}

type StorageOption func(*SealedStorage)

// WithPlaintextReads lets values written before sealing was enabled be read
// as-is. New writes are always sealed.
func WithPlaintextReads(enabled bool) StorageOption {
	return func(s *SealedStorage) {
		s.allowPlaintext = enabled
	}
}

func WithLogger(logger glog.Logger) StorageOption {
	return func(s *SealedStorage) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// SealedStorage wraps a durable storage so item values are sealed at rest.
// Keys are stored unchanged.
type SealedStorage struct {
	inner          core.Storage
	sealer         Sealer
	logger         glog.Logger
	allowPlaintext bool
}

func NewSealedStorage(inner core.Storage, sealer Sealer, opts ...StorageOption) (*SealedStorage, error) {
	if inner == nil {
		return nil, fmt.Errorf("security: storage is required")
	}
	if sealer == nil {
		return nil, fmt.Errorf("security: sealer is required")
	}
	storage := &SealedStorage{
		inner:  inner,
		sealer: sealer,
		logger: glog.Nop(),
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(storage)
	}
	return storage, nil
}

func (s *SealedStorage) GetItem(key string) (string, bool, error) {
	value, ok, err := s.inner.GetItem(key)
	if err != nil || !ok {
		return "", ok, err
	}
	opened, err := s.open(value)
	if err != nil {
		return "", false, fmt.Errorf("security: open item %q: %w", key, err)
	}
	return opened, true, nil
}

func (s *SealedStorage) SetItem(key string, value string) error {
	sealed, err := s.sealer.Seal(value)
	if err != nil {
		return fmt.Errorf("security: seal item %q: %w", key, err)
	}
	return s.inner.SetItem(key, sealed)
}

func (s *SealedStorage) RemoveItem(key string) error {
	return s.inner.RemoveItem(key)
}

// Watch opens event values before delivery. Events whose value cannot be
// opened are dropped.
func (s *SealedStorage) Watch(fn func(core.StorageEvent)) (func(), error) {
	if fn == nil {
		return nil, fmt.Errorf("security: watch callback is required")
	}
	return s.inner.Watch(func(event core.StorageEvent) {
		if event.NewValue == nil {
			fn(event)
			return
		}
		opened, err := s.open(*event.NewValue)
		if err != nil {
			s.logger.Debug("dropping unreadable storage event", "key", event.Key, "origin", event.Origin, "error", err)
			return
		}
		event.NewValue = &opened
		fn(event)
	})
}

// Close closes the wrapped storage when it supports it.
func (s *SealedStorage) Close() error {
	if closer, ok := s.inner.(interface{ Close() error }); ok {
		return closer.Close()
	}
	return nil
}

func (s *SealedStorage) open(value string) (string, error) {
	if !IsSealed(value) && s.allowPlaintext {
		return value, nil
	}
	return s.sealer.Open(value)
}

var _ core.Storage = (*SealedStorage)(nil)
