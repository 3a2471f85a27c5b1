package core

import (
	"sort"
	"sync"
	"time"
)

// RealScheduler schedules callbacks with time.AfterFunc.
type RealScheduler struct{}

func (RealScheduler) Schedule(fn func(), delay time.Duration) TimerHandle {
	if delay < 0 {
		delay = 0
	}
	return time.AfterFunc(delay, fn)
}

func (RealScheduler) Cancel(handle TimerHandle) {
	if handle == nil {
		return
	}
	handle.Stop()
}

// ManualScheduler is a Scheduler driven by Advance. Callbacks run on the
// goroutine calling Advance, in due-time order.
type ManualScheduler struct {
	mu      sync.Mutex
	now     time.Time
	nextSeq uint64
	pending map[uint64]*manualTimer
}

type manualTimer struct {
	scheduler *ManualScheduler
	seq       uint64
	due       time.Time
	fn        func()
}

func (t *manualTimer) Stop() bool {
	if t == nil || t.scheduler == nil {
		return false
	}
	s := t.scheduler
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.pending[t.seq]; !ok {
		return false
	}
	delete(s.pending, t.seq)
	return true
}

func NewManualScheduler(start time.Time) *ManualScheduler {
	if start.IsZero() {
		start = time.Unix(0, 0).UTC()
	}
	return &ManualScheduler{
		now:     start,
		pending: map[uint64]*manualTimer{},
	}
}

func (s *ManualScheduler) Now() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.now
}

func (s *ManualScheduler) Schedule(fn func(), delay time.Duration) TimerHandle {
	if delay < 0 {
		delay = 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextSeq++
	timer := &manualTimer{
		scheduler: s,
		seq:       s.nextSeq,
		due:       s.now.Add(delay),
		fn:        fn,
	}
	s.pending[timer.seq] = timer
	return timer
}

func (s *ManualScheduler) Cancel(handle TimerHandle) {
	if handle == nil {
		return
	}
	handle.Stop()
}

// Pending returns the number of armed callbacks.
func (s *ManualScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Advance moves the clock forward by d, firing every callback that falls
// due. Callbacks scheduled while advancing fire too if they are due.
func (s *ManualScheduler) Advance(d time.Duration) {
	s.mu.Lock()
	target := s.now.Add(d)
	s.mu.Unlock()

	for {
		s.mu.Lock()
		next := s.nextDueLocked(target)
		if next == nil {
			s.now = target
			s.mu.Unlock()
			return
		}
		delete(s.pending, next.seq)
		if next.due.After(s.now) {
			s.now = next.due
		}
		s.mu.Unlock()

		if next.fn != nil {
			next.fn()
		}
	}
}

func (s *ManualScheduler) nextDueLocked(target time.Time) *manualTimer {
	due := make([]*manualTimer, 0, len(s.pending))
	for _, timer := range s.pending {
		if !timer.due.After(target) {
			due = append(due, timer)
		}
	}
	if len(due) == 0 {
		return nil
	}
	sort.Slice(due, func(i, j int) bool {
		if due[i].due.Equal(due[j].due) {
			return due[i].seq < due[j].seq
		}
		return due[i].due.Before(due[j].due)
	})
	return due[0]
}

var (
	_ Scheduler = RealScheduler{}
	_ Scheduler = (*ManualScheduler)(nil)
	_ Clock     = (*ManualScheduler)(nil)
)
