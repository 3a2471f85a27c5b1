package core

import "reflect"

// ValueState distinguishes a value that was never set from one that was
// explicitly cleared.
type ValueState uint8

const (
	StateUnset ValueState = iota
	StateNull
	StatePresent
)

func (s ValueState) String() string {
	switch s {
	case StateNull:
		return "null"
	case StatePresent:
		return "present"
	default:
		return "unset"
	}
}

// Maybe is a three-state value. The zero value is unset.
type Maybe[T any] struct {
	state ValueState
	value T
}

func Unset[T any]() Maybe[T] {
	return Maybe[T]{}
}

func Null[T any]() Maybe[T] {
	return Maybe[T]{state: StateNull}
}

func Some[T any](value T) Maybe[T] {
	return Maybe[T]{state: StatePresent, value: value}
}

func (m Maybe[T]) State() ValueState { return m.state }

func (m Maybe[T]) IsUnset() bool { return m.state == StateUnset }

func (m Maybe[T]) IsNull() bool { return m.state == StateNull }

func (m Maybe[T]) IsPresent() bool { return m.state == StatePresent }

// Get returns the payload and whether it is present.
func (m Maybe[T]) Get() (T, bool) {
	if m.state != StatePresent {
		var zero T
		return zero, false
	}
	return m.value, true
}

// OrElse returns the payload when present and fallback otherwise.
func (m Maybe[T]) OrElse(fallback T) T {
	if m.state != StatePresent {
		return fallback
	}
	return m.value
}

// EqualFunc reports whether two values are the same logical value.
type EqualFunc[T any] func(a, b Maybe[T]) bool

// DeepEqual compares state first and payloads with reflect.DeepEqual.
func DeepEqual[T any](a, b Maybe[T]) bool {
	if a.state != b.state {
		return false
	}
	if a.state != StatePresent {
		return true
	}
	return reflect.DeepEqual(a.value, b.value)
}

// Update is either a literal value or a function of the previous value.
type Update[T any] struct {
	literal Maybe[T]
	updater func(prev Maybe[T]) Maybe[T]
}

func Literal[T any](value Maybe[T]) Update[T] {
	return Update[T]{literal: value}
}

func Updater[T any](fn func(prev Maybe[T]) Maybe[T]) Update[T] {
	return Update[T]{updater: fn}
}

func (u Update[T]) IsUpdater() bool { return u.updater != nil }

// Resolve returns the concrete value this update produces given prev.
func (u Update[T]) Resolve(prev Maybe[T]) Maybe[T] {
	if u.updater != nil {
		return u.updater(prev)
	}
	return u.literal
}
