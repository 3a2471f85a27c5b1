package core

import (
	"context"
	"fmt"
	"sync"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

// Callback is a timer observer, compared by pointer identity.
type Callback struct {
	fn func()
}

func NewCallback(fn func()) *Callback {
	return &Callback{fn: fn}
}

// Timer keeps at most one pending platform timer. Each Set cancels the
// pending one and re-arms with the new delay, while the observers handed to
// every Set accumulate. When the timer fires only the first remaining
// observer is called; the rest are dropped.
type Timer struct {
	scheduler Scheduler
	logger    Logger
	metrics   MetricsRecorder

	mu         sync.Mutex
	pending    TimerHandle
	generation uint64
	fired      uint64
	observers  []*Callback
}

type TimerOption func(*Timer)

func WithTimerLogger(logger Logger) TimerOption {
	return func(t *Timer) {
		if logger != nil {
			t.logger = logger
		}
	}
}

func WithTimerMetrics(recorder MetricsRecorder) TimerOption {
	return func(t *Timer) {
		if recorder != nil {
			t.metrics = recorder
		}
	}
}

func NewTimer(scheduler Scheduler, opts ...TimerOption) *Timer {
	if scheduler == nil {
		scheduler = RealScheduler{}
	}
	timer := &Timer{
		scheduler: scheduler,
		logger:    glog.Nop(),
		metrics:   NopMetricsRecorder{},
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(timer)
	}
	return timer
}

func (t *Timer) Set(callback *Callback, delay time.Duration) {
	if t == nil || callback == nil {
		return
	}
	t.mu.Lock()
	if t.pending != nil {
		t.scheduler.Cancel(t.pending)
		t.pending = nil
	}
	t.observers = append(t.observers, callback)
	t.generation++
	generation := t.generation
	t.mu.Unlock()

	handle := t.scheduler.Schedule(func() { t.fire(generation) }, delay)

	t.mu.Lock()
	if t.generation == generation && t.fired < generation {
		t.pending = handle
	}
	t.mu.Unlock()
}

// Clear removes every registration of callback. The platform timer stays
// armed; firing with no observers does nothing.
func (t *Timer) Clear(callback *Callback) {
	if t == nil || callback == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	kept := t.observers[:0:0]
	for _, observer := range t.observers {
		if observer != callback {
			kept = append(kept, observer)
		}
	}
	t.observers = kept
}

// Armed reports whether a platform timer is pending.
func (t *Timer) Armed() bool {
	if t == nil {
		return false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.pending != nil
}

// Registered reports whether callback is waiting for the pending fire.
func (t *Timer) Registered(callback *Callback) bool {
	if t == nil || callback == nil {
		return false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, observer := range t.observers {
		if observer == callback {
			return true
		}
	}
	return false
}

func (t *Timer) Observers() int {
	if t == nil {
		return 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.observers)
}

func (t *Timer) fire(generation uint64) {
	t.mu.Lock()
	if generation != t.generation {
		// a newer Set cancelled this arm after the platform already started it
		t.mu.Unlock()
		return
	}
	t.fired = generation
	t.pending = nil
	observers := t.observers
	t.observers = nil
	t.mu.Unlock()

	t.metrics.IncCounter(context.Background(), "session.timer.fired.total", 1, map[string]string{
		"observers": fmt.Sprint(len(observers)),
	})
	if len(observers) == 0 {
		return
	}
	winner := observers[0]
	defer func() {
		if r := recover(); r != nil {
			t.logger.Error("timer callback panicked", "panic", fmt.Sprint(r))
		}
	}()
	if winner.fn != nil {
		winner.fn()
	}
}
