package core

import (
	"context"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

type Logger = glog.Logger

type LoggerProvider = glog.LoggerProvider

type FieldsLogger = glog.FieldsLogger

type MetricsRecorder interface {
	IncCounter(ctx context.Context, name string, value int64, tags map[string]string)
	ObserveHistogram(ctx context.Context, name string, value float64, tags map[string]string)
}

// StorageEvent describes a change made to a durable item. NewValue is nil
// when the item was removed. Origin identifies the execution context that
// made the change.
type StorageEvent struct {
	Key      string
	NewValue *string
	Origin   string
}

// Storage is the host-provided persistent key-value primitive. Watch
// delivers changes made by other execution contexts; implementations must
// not echo a context's own writes back to it.
type Storage interface {
	GetItem(key string) (value string, ok bool, err error)
	SetItem(key string, value string) error
	RemoveItem(key string) error
	Watch(fn func(StorageEvent)) (cancel func(), err error)
}

// StorageFactory builds a Storage for a configured backend driver.
type StorageFactory interface {
	BuildStorage(ctx context.Context, cfg BackendConfig) (Storage, error)
}

// TimerHandle identifies one scheduled platform callback.
type TimerHandle interface {
	Stop() bool
}

// Scheduler is the platform timer primitive.
type Scheduler interface {
	Schedule(fn func(), delay time.Duration) TimerHandle
	Cancel(handle TimerHandle)
}

// Clock supplies the current time for expiry checks.
type Clock interface {
	Now() time.Time
}

type ClockFunc func() time.Time

func (f ClockFunc) Now() time.Time { return f() }

// ExpiryNotifier is told when a session is cleared because its token lapsed.
type ExpiryNotifier interface {
	SessionExpired(ctx context.Context, session SessionToken) error
}

type ExpiryNotifierFunc func(ctx context.Context, session SessionToken) error

func (f ExpiryNotifierFunc) SessionExpired(ctx context.Context, session SessionToken) error {
	if f == nil {
		return nil
	}
	return f(ctx, session)
}

type JobExecutionMessage struct {
	JobID          string
	ScriptPath     string
	Parameters     map[string]any
	IdempotencyKey string
	DedupPolicy    string
}

type JobEnqueuer interface {
	Enqueue(ctx context.Context, msg *JobExecutionMessage) error
}

type JobNackOptions struct {
	Delay      time.Duration
	Requeue    bool
	DeadLetter bool
	Reason     string
}

type JobDelivery interface {
	Message() *JobExecutionMessage
	Ack(ctx context.Context) error
	Nack(ctx context.Context, opts JobNackOptions) error
}

type JobDequeuer interface {
	Dequeue(ctx context.Context) (JobDelivery, error)
}
