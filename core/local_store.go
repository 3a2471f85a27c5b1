package core

import "sync"

// LocalStore maps keys to cells, creating a cell the first time a key is
// written or subscribed to. Cells live as long as the store.
type LocalStore[T any] struct {
	mu     sync.Mutex
	cells  map[string]*Cell[T]
	equal  EqualFunc[T]
	logger Logger
}

func NewLocalStore[T any](equal EqualFunc[T], logger Logger) *LocalStore[T] {
	return &LocalStore[T]{
		cells:  map[string]*Cell[T]{},
		equal:  equal,
		logger: logger,
	}
}

// Get returns unset for keys that were never written, without creating a cell.
func (s *LocalStore[T]) Get(key string) Maybe[T] {
	cell := s.lookup(key)
	if cell == nil {
		return Unset[T]()
	}
	return cell.Get()
}

func (s *LocalStore[T]) Set(key string, value Maybe[T]) bool {
	cell := s.ensure(key)
	if cell == nil {
		return false
	}
	return cell.Set(value)
}

func (s *LocalStore[T]) Subscribe(key string, observer *Observer[T]) {
	cell := s.ensure(key)
	if cell == nil {
		return
	}
	cell.Subscribe(observer)
}

func (s *LocalStore[T]) Unsubscribe(key string, observer *Observer[T]) {
	cell := s.lookup(key)
	if cell == nil {
		return
	}
	cell.Unsubscribe(observer)
}

// Has reports whether a cell exists for key.
func (s *LocalStore[T]) Has(key string) bool {
	return s.lookup(key) != nil
}

func (s *LocalStore[T]) lookup(key string) *Cell[T] {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cells[key]
}

func (s *LocalStore[T]) ensure(key string) *Cell[T] {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cells == nil {
		s.cells = map[string]*Cell[T]{}
	}
	cell, ok := s.cells[key]
	if !ok {
		cell = NewCell(Unset[T](), s.equal, s.logger)
		s.cells[key] = cell
	}
	return cell
}
