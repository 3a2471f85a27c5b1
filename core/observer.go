package core

import "fmt"

// Observer receives the new value after a change. Observers are compared by
// pointer identity, so keep the pointer returned by NewObserver to
// unsubscribe later.
type Observer[T any] struct {
	fn func(Maybe[T])
}

func NewObserver[T any](fn func(Maybe[T])) *Observer[T] {
	return &Observer[T]{fn: fn}
}

func (o *Observer[T]) notify(value Maybe[T]) {
	if o == nil || o.fn == nil {
		return
	}
	o.fn(value)
}

func removeObserver[T any](observers []*Observer[T], target *Observer[T]) []*Observer[T] {
	if len(observers) == 0 || target == nil {
		return observers
	}
	kept := observers[:0:0]
	for _, observer := range observers {
		if observer != target {
			kept = append(kept, observer)
		}
	}
	return kept
}

func snapshotObservers[T any](observers []*Observer[T]) []*Observer[T] {
	if len(observers) == 0 {
		return nil
	}
	return append([]*Observer[T](nil), observers...)
}

// notifyAll calls every observer in order. A panicking observer is logged
// and skipped so the rest of the pass still runs.
func notifyAll[T any](logger Logger, scope string, key string, observers []*Observer[T], value Maybe[T]) {
	for _, observer := range observers {
		notifyOne(logger, scope, key, observer, value)
	}
}

func notifyOne[T any](logger Logger, scope string, key string, observer *Observer[T], value Maybe[T]) {
	defer func() {
		if r := recover(); r != nil && logger != nil {
			logger.Error("observer panicked",
				"scope", scope,
				"key", key,
				"panic", fmt.Sprint(r),
			)
		}
	}()
	observer.notify(value)
}
