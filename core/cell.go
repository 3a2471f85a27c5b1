package core

import "sync"

// Cell is a single reactive value slot. Set is gated by equality: writing
// the current value again notifies nobody. The zero value compares with
// DeepEqual.
type Cell[T any] struct {
	mu          sync.Mutex
	value       Maybe[T]
	subscribers []*Observer[T]
	equal       EqualFunc[T]
	logger      Logger
}

func NewCell[T any](initial Maybe[T], equal EqualFunc[T], logger Logger) *Cell[T] {
	if equal == nil {
		equal = DeepEqual[T]
	}
	return &Cell[T]{
		value:  initial,
		equal:  equal,
		logger: logger,
	}
}

func (c *Cell[T]) Get() Maybe[T] {
	if c == nil {
		return Unset[T]()
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.value
}

// Set stores value and notifies the subscribers registered at the time of
// the call, in registration order. It reports whether the value changed.
func (c *Cell[T]) Set(value Maybe[T]) bool {
	if c == nil {
		return false
	}
	c.mu.Lock()
	equal := c.equal
	if equal == nil {
		equal = DeepEqual[T]
	}
	if equal(c.value, value) {
		c.mu.Unlock()
		return false
	}
	c.value = value
	subscribers := snapshotObservers(c.subscribers)
	c.mu.Unlock()

	notifyAll(c.logger, "cell", "", subscribers, value)
	return true
}

// Subscribe appends observer. Registering the same observer twice means it
// is called twice per change.
func (c *Cell[T]) Subscribe(observer *Observer[T]) {
	if c == nil || observer == nil {
		return
	}
	c.mu.Lock()
	c.subscribers = append(c.subscribers, observer)
	c.mu.Unlock()
}

// Unsubscribe removes every registration of observer.
func (c *Cell[T]) Unsubscribe(observer *Observer[T]) {
	if c == nil || observer == nil {
		return
	}
	c.mu.Lock()
	c.subscribers = removeObserver(c.subscribers, observer)
	c.mu.Unlock()
}

func (c *Cell[T]) SubscriberCount() int {
	if c == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.subscribers)
}
