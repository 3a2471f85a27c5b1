package core

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"sync"
	"testing"
)

type stubLoggerProvider struct {
	logger Logger
}

func (p stubLoggerProvider) GetLogger(string) Logger {
	return p.logger
}

// testToken builds an unsigned JWT carrying claims.
func testToken(t *testing.T, claims map[string]any) string {
	t.Helper()
	header, err := json.Marshal(map[string]any{"alg": "HS256", "typ": "JWT"})
	if err != nil {
		t.Fatalf("marshal header: %v", err)
	}
	payload, err := json.Marshal(claims)
	if err != nil {
		t.Fatalf("marshal claims: %v", err)
	}
	enc := base64.RawURLEncoding
	return enc.EncodeToString(header) + "." + enc.EncodeToString(payload) + ".signature"
}

// recorder collects observer calls in order.
type recorder[T any] struct {
	mu     sync.Mutex
	values []Maybe[T]
}

func (r *recorder[T]) observer() *Observer[T] {
	return NewObserver(func(value Maybe[T]) {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.values = append(r.values, value)
	})
}

func (r *recorder[T]) calls() []Maybe[T] {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Maybe[T](nil), r.values...)
}

var errStorageDown = errors.New("storage unavailable")

// failingStorage rejects every operation.
type failingStorage struct{}

func (failingStorage) GetItem(string) (string, bool, error) { return "", false, errStorageDown }
func (failingStorage) SetItem(string, string) error         { return errStorageDown }
func (failingStorage) RemoveItem(string) error              { return errStorageDown }
func (failingStorage) Watch(func(StorageEvent)) (func(), error) {
	return nil, errStorageDown
}

// panickingStorage panics on every operation, like a host primitive that
// throws on access.
type panickingStorage struct{}

func (panickingStorage) GetItem(string) (string, bool, error) { panic("storage access denied") }
func (panickingStorage) SetItem(string, string) error         { panic("storage access denied") }
func (panickingStorage) RemoveItem(string) error              { panic("storage access denied") }
func (panickingStorage) Watch(func(StorageEvent)) (func(), error) {
	panic("storage access denied")
}

// flakyStorage passes the capability probe and then fails reads.
type flakyStorage struct {
	*MemoryStorage
	failReads bool
}

func (s *flakyStorage) GetItem(key string) (string, bool, error) {
	if s.failReads {
		return "", false, errStorageDown
	}
	return s.MemoryStorage.GetItem(key)
}
