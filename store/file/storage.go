package filestore

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	glog "github.com/goliatone/go-logger/glog"
	"github.com/goliatone/go-session/core"
	"github.com/google/uuid"
)

const (
	itemSuffix = ".item"
	tempPrefix = ".tmp-"
)

// Storage keeps one file per item in a directory. Each file holds the
// writer's origin on the first line and the value after it. Processes
// sharing the directory see each other's writes through fsnotify.
type Storage struct {
	dir    string
	origin string
	logger core.Logger

	mu       sync.Mutex
	known    map[string]string
	watchers map[uint64]func(core.StorageEvent)
	nextID   uint64
	watcher  *fsnotify.Watcher
	done     chan struct{}
	closed   bool
}

type Option func(*Storage)

func WithOrigin(origin string) Option {
	return func(s *Storage) {
		if trimmed := strings.TrimSpace(origin); trimmed != "" && !strings.Contains(trimmed, "\n") {
			s.origin = trimmed
		}
	}
}

func WithLogger(logger core.Logger) Option {
	return func(s *Storage) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func NewStorage(dir string, opts ...Option) (*Storage, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return nil, fmt.Errorf("filestore: directory is required")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("filestore: create directory: %w", err)
	}
	storage := &Storage{
		dir:      dir,
		origin:   uuid.NewString(),
		logger:   glog.Nop(),
		known:    map[string]string{},
		watchers: map[uint64]func(core.StorageEvent){},
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(storage)
	}
	return storage, nil
}

func (s *Storage) Origin() string {
	if s == nil {
		return ""
	}
	return s.origin
}

func (s *Storage) Dir() string {
	if s == nil {
		return ""
	}
	return s.dir
}

func (s *Storage) GetItem(key string) (string, bool, error) {
	if s == nil {
		return "", false, fmt.Errorf("filestore: storage is not configured")
	}
	_, value, ok, err := readItem(s.itemPath(key))
	return value, ok, err
}

func (s *Storage) SetItem(key string, value string) error {
	if s == nil {
		return fmt.Errorf("filestore: storage is not configured")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("filestore: storage is closed")
	}

	tmp, err := os.CreateTemp(s.dir, tempPrefix+"*")
	if err != nil {
		return fmt.Errorf("filestore: create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.WriteString(s.origin + "\n" + value); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("filestore: write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("filestore: close temp file: %w", err)
	}
	s.known[key] = value
	if err := os.Rename(tmpName, s.itemPath(key)); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("filestore: replace item: %w", err)
	}
	return nil
}

func (s *Storage) RemoveItem(key string) error {
	if s == nil {
		return fmt.Errorf("filestore: storage is not configured")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("filestore: storage is closed")
	}
	delete(s.known, key)
	if err := os.Remove(s.itemPath(key)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("filestore: remove item: %w", err)
	}
	return nil
}

// Watch registers fn for items changed by other origins. The directory
// watcher starts with the first registration.
func (s *Storage) Watch(fn func(core.StorageEvent)) (func(), error) {
	if s == nil {
		return nil, fmt.Errorf("filestore: storage is not configured")
	}
	if fn == nil {
		return nil, fmt.Errorf("filestore: watch callback is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, fmt.Errorf("filestore: storage is closed")
	}
	if s.watcher == nil {
		if err := s.startLocked(); err != nil {
			return nil, err
		}
	}
	s.nextID++
	id := s.nextID
	s.watchers[id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.watchers, id)
			s.mu.Unlock()
		})
	}, nil
}

func (s *Storage) Close() error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	watcher := s.watcher
	done := s.done
	s.watchers = map[uint64]func(core.StorageEvent){}
	s.mu.Unlock()

	if watcher == nil {
		return nil
	}
	err := watcher.Close()
	<-done
	return err
}

func (s *Storage) startLocked() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("filestore: new watcher: %w", err)
	}
	if err := watcher.Add(s.dir); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("filestore: watch directory: %w", err)
	}
	if err := s.seedLocked(); err != nil {
		_ = watcher.Close()
		return err
	}
	s.watcher = watcher
	s.done = make(chan struct{})
	go s.processEvents(watcher, s.done)
	return nil
}

// seedLocked records the current directory contents so that the first
// foreign change to each item is compared against a known baseline.
func (s *Storage) seedLocked() error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return fmt.Errorf("filestore: read directory: %w", err)
	}
	for _, entry := range entries {
		key, ok := keyFromName(entry.Name())
		if !ok || entry.IsDir() {
			continue
		}
		_, value, found, err := readItem(filepath.Join(s.dir, entry.Name()))
		if err != nil || !found {
			continue
		}
		s.known[key] = value
	}
	return nil
}

func (s *Storage) processEvents(watcher *fsnotify.Watcher, done chan struct{}) {
	defer close(done)
	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			s.handlePath(event.Name)
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			s.logger.Debug("filestore watcher error", "dir", s.dir, "error", err)
		}
	}
}

// handlePath reconciles one item file with the last value this storage
// knew for it and dispatches the difference to watchers.
func (s *Storage) handlePath(path string) {
	key, ok := keyFromName(filepath.Base(path))
	if !ok {
		return
	}
	origin, value, found, err := readItem(path)
	if err != nil {
		s.logger.Debug("filestore item could not be read", "key", key, "error", err)
		return
	}

	s.mu.Lock()
	previous, had := s.known[key]
	if found == had && (!found || previous == value) {
		s.mu.Unlock()
		return
	}
	if found {
		s.known[key] = value
	} else {
		delete(s.known, key)
	}
	if found && origin == s.origin {
		s.mu.Unlock()
		return
	}
	watchers := s.snapshotWatchersLocked()
	s.mu.Unlock()

	event := core.StorageEvent{Key: key, Origin: origin}
	if found {
		event.NewValue = &value
	}
	for _, fn := range watchers {
		fn(event)
	}
}

func (s *Storage) snapshotWatchersLocked() []func(core.StorageEvent) {
	ids := make([]uint64, 0, len(s.watchers))
	for id := range s.watchers {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	out := make([]func(core.StorageEvent), 0, len(ids))
	for _, id := range ids {
		out = append(out, s.watchers[id])
	}
	return out
}

func (s *Storage) itemPath(key string) string {
	return filepath.Join(s.dir, url.QueryEscape(key)+itemSuffix)
}

func keyFromName(name string) (string, bool) {
	if strings.HasPrefix(name, tempPrefix) || !strings.HasSuffix(name, itemSuffix) {
		return "", false
	}
	key, err := url.QueryUnescape(strings.TrimSuffix(name, itemSuffix))
	if err != nil {
		return "", false
	}
	return key, true
}

func readItem(path string) (origin string, value string, found bool, err error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", "", false, nil
		}
		return "", "", false, err
	}
	content := string(data)
	origin, value, ok := strings.Cut(content, "\n")
	if !ok {
		return "", "", false, fmt.Errorf("filestore: item file %s is malformed", filepath.Base(path))
	}
	return origin, value, true, nil
}
