package gojob

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/goliatone/go-session/core"

	job "github.com/goliatone/go-job"
	"github.com/goliatone/go-job/queue"
)

const (
	JobIDSessionExpired      = "session.expired"
	ScriptPathSessionExpired = "session.expired"
	DedupPolicyDrop          = "drop"
)

// RetryPolicy defines queue retry bounds to avoid unbounded retry loops.
type RetryPolicy struct {
	MaxAttempts     int
	MaxDelay        time.Duration
	DeadLetterOnMax bool
}

// NormalizeAttempt enforces bounded retry behavior for a nack operation.
func (p RetryPolicy) NormalizeAttempt(opts core.JobNackOptions, attempt int) core.JobNackOptions {
	out := opts
	out.Reason = strings.TrimSpace(out.Reason)
	if out.Delay < 0 {
		out.Delay = 0
	}
	if p.MaxDelay > 0 && out.Delay > p.MaxDelay {
		out.Delay = p.MaxDelay
	}
	if out.DeadLetter {
		out.Requeue = false
	}
	if p.MaxAttempts > 0 && attempt >= p.MaxAttempts {
		out.Requeue = false
		if p.DeadLetterOnMax || out.DeadLetter {
			out.DeadLetter = true
		}
	}
	if !out.Requeue && !out.DeadLetter {
		out.Requeue = true
	}
	return out
}

func ToExecutionMessage(msg *core.JobExecutionMessage) *job.ExecutionMessage {
	if msg == nil {
		return nil
	}
	return &job.ExecutionMessage{
		JobID:          strings.TrimSpace(msg.JobID),
		ScriptPath:     strings.TrimSpace(msg.ScriptPath),
		Parameters:     copyAnyMap(msg.Parameters),
		IdempotencyKey: strings.TrimSpace(msg.IdempotencyKey),
		DedupPolicy:    job.DeduplicationPolicy(strings.TrimSpace(msg.DedupPolicy)),
	}
}

func FromExecutionMessage(msg *job.ExecutionMessage) *core.JobExecutionMessage {
	if msg == nil {
		return nil
	}
	return &core.JobExecutionMessage{
		JobID:          strings.TrimSpace(msg.JobID),
		ScriptPath:     strings.TrimSpace(msg.ScriptPath),
		Parameters:     copyAnyMap(msg.Parameters),
		IdempotencyKey: strings.TrimSpace(msg.IdempotencyKey),
		DedupPolicy:    strings.TrimSpace(string(msg.DedupPolicy)),
	}
}

func ToNackOptions(opts core.JobNackOptions) queue.NackOptions {
	return queue.NackOptions{
		Delay:      opts.Delay,
		Requeue:    opts.Requeue,
		DeadLetter: opts.DeadLetter,
		Reason:     opts.Reason,
	}
}

type EnqueuerAdapter struct {
	enqueuer queue.Enqueuer
}

func NewEnqueuerAdapter(enqueuer queue.Enqueuer) *EnqueuerAdapter {
	return &EnqueuerAdapter{enqueuer: enqueuer}
}

func (a *EnqueuerAdapter) Enqueue(ctx context.Context, msg *core.JobExecutionMessage) error {
	if a == nil || a.enqueuer == nil {
		return fmt.Errorf("gojob: enqueuer is not configured")
	}
	if msg == nil {
		return fmt.Errorf("gojob: execution message is required")
	}
	return a.enqueuer.Enqueue(ctx, ToExecutionMessage(msg))
}

// ExpiryEnqueuer turns session expiry into a session.expired job. The
// idempotency key is derived from the token id, or from a digest of the
// raw token when the token carries no jti, so repeated expiry of the same
// session in several processes collapses into one job.
type ExpiryEnqueuer struct {
	enqueuer core.JobEnqueuer
}

func NewExpiryEnqueuer(enqueuer core.JobEnqueuer) *ExpiryEnqueuer {
	return &ExpiryEnqueuer{enqueuer: enqueuer}
}

func (e *ExpiryEnqueuer) SessionExpired(ctx context.Context, session core.SessionToken) error {
	if e == nil || e.enqueuer == nil {
		return fmt.Errorf("gojob: expiry enqueuer is not configured")
	}
	return e.enqueuer.Enqueue(ctx, ExpiredMessage(session))
}

// ExpiredMessage builds the execution message for an expired session.
func ExpiredMessage(session core.SessionToken) *core.JobExecutionMessage {
	params := map[string]any{
		"subject": session.Claims.Subject,
	}
	if session.Claims.Issuer != "" {
		params["issuer"] = session.Claims.Issuer
	}
	if session.Claims.JTI != "" {
		params["jti"] = session.Claims.JTI
	}
	if !session.Claims.ExpiresAt.IsZero() {
		params["expires_at"] = session.Claims.ExpiresAt.UTC().Format(time.RFC3339)
	}
	return &core.JobExecutionMessage{
		JobID:          JobIDSessionExpired,
		ScriptPath:     ScriptPathSessionExpired,
		Parameters:     params,
		IdempotencyKey: expiryIdempotencyKey(session),
		DedupPolicy:    DedupPolicyDrop,
	}
}

func expiryIdempotencyKey(session core.SessionToken) string {
	if jti := strings.TrimSpace(session.Claims.JTI); jti != "" {
		return JobIDSessionExpired + ":" + jti
	}
	sum := sha256.Sum256([]byte(session.Token))
	return JobIDSessionExpired + ":" + hex.EncodeToString(sum[:16])
}

// DeliveryAdapter carries the delivery count of its message so nacks are
// bounded by the retry policy.
type DeliveryAdapter struct {
	delivery queue.Delivery
	policy   RetryPolicy
	attempt  int
	release  func()
}

func NewDeliveryAdapter(delivery queue.Delivery, policy RetryPolicy) *DeliveryAdapter {
	return &DeliveryAdapter{delivery: delivery, policy: policy, attempt: queueAttempt(delivery)}
}

func (d *DeliveryAdapter) Message() *core.JobExecutionMessage {
	if d == nil || d.delivery == nil {
		return nil
	}
	return FromExecutionMessage(d.delivery.Message())
}

// Attempt is the 1-based delivery count, or 0 when unknown.
func (d *DeliveryAdapter) Attempt() int {
	if d == nil {
		return 0
	}
	return d.attempt
}

func (d *DeliveryAdapter) Ack(ctx context.Context) error {
	if d == nil || d.delivery == nil {
		return fmt.Errorf("gojob: delivery is not configured")
	}
	if err := d.delivery.Ack(ctx); err != nil {
		return err
	}
	d.done()
	return nil
}

func (d *DeliveryAdapter) Nack(ctx context.Context, opts core.JobNackOptions) error {
	return d.NackForAttempt(ctx, opts, d.Attempt())
}

func (d *DeliveryAdapter) NackForAttempt(ctx context.Context, opts core.JobNackOptions, attempt int) error {
	if d == nil || d.delivery == nil {
		return fmt.Errorf("gojob: delivery is not configured")
	}
	normalized := d.policy.NormalizeAttempt(opts, attempt)
	if err := d.delivery.Nack(ctx, ToNackOptions(normalized)); err != nil {
		return err
	}
	if !normalized.Requeue {
		d.done()
	}
	return nil
}

func (d *DeliveryAdapter) done() {
	if d.release != nil {
		d.release()
	}
}

// DequeuerAdapter counts deliveries per idempotency key when the queue
// does not report attempts itself. Counts are dropped once a message is
// acked or leaves the queue.
type DequeuerAdapter struct {
	dequeuer queue.Dequeuer
	policy   RetryPolicy

	mu       sync.Mutex
	attempts map[string]int
}

func NewDequeuerAdapter(dequeuer queue.Dequeuer, policy RetryPolicy) *DequeuerAdapter {
	return &DequeuerAdapter{dequeuer: dequeuer, policy: policy, attempts: map[string]int{}}
}

func (a *DequeuerAdapter) Dequeue(ctx context.Context) (core.JobDelivery, error) {
	if a == nil || a.dequeuer == nil {
		return nil, fmt.Errorf("gojob: dequeuer is not configured")
	}
	delivery, err := a.dequeuer.Dequeue(ctx)
	if err != nil {
		return nil, err
	}
	adapter := NewDeliveryAdapter(delivery, a.policy)
	if adapter.attempt > 0 {
		return adapter, nil
	}
	key := deliveryKey(delivery)
	if key == "" {
		return adapter, nil
	}
	a.mu.Lock()
	a.attempts[key]++
	adapter.attempt = a.attempts[key]
	a.mu.Unlock()
	adapter.release = func() {
		a.mu.Lock()
		delete(a.attempts, key)
		a.mu.Unlock()
	}
	return adapter, nil
}

func queueAttempt(delivery queue.Delivery) int {
	if counted, ok := delivery.(interface{ Attempt() int }); ok {
		return counted.Attempt()
	}
	return 0
}

func deliveryKey(delivery queue.Delivery) string {
	if delivery == nil {
		return ""
	}
	msg := delivery.Message()
	if msg == nil {
		return ""
	}
	return strings.TrimSpace(msg.IdempotencyKey)
}

// ExpiredEvent is the payload of a session.expired job as seen by hosts
// that consume them.
type ExpiredEvent struct {
	Subject   string
	Issuer    string
	JTI       string
	ExpiresAt time.Time
}

// ConsumeExpired dequeues one delivery and hands session.expired payloads
// to handle. Deliveries for other jobs are nacked for requeue; a handler
// error nacks with retry after retryDelay, counted against the dequeuer's
// retry policy.
func ConsumeExpired(
	ctx context.Context,
	dequeuer core.JobDequeuer,
	retryDelay time.Duration,
	handle func(context.Context, ExpiredEvent) error,
) error {
	if dequeuer == nil {
		return fmt.Errorf("gojob: dequeuer is required")
	}
	if handle == nil {
		return fmt.Errorf("gojob: expiry handler is required")
	}
	delivery, err := dequeuer.Dequeue(ctx)
	if err != nil {
		return err
	}
	msg := delivery.Message()
	if msg == nil || msg.JobID != JobIDSessionExpired {
		opts := core.JobNackOptions{Requeue: true, Reason: "unexpected job"}
		// another consumer's job is handed back without spending its retries
		if bounded, ok := delivery.(interface {
			NackForAttempt(context.Context, core.JobNackOptions, int) error
		}); ok {
			return bounded.NackForAttempt(ctx, opts, 0)
		}
		return delivery.Nack(ctx, opts)
	}
	if err := handle(ctx, expiredEventFromParameters(msg.Parameters)); err != nil {
		if nackErr := delivery.Nack(ctx, core.JobNackOptions{
			Delay:   retryDelay,
			Requeue: true,
			Reason:  err.Error(),
		}); nackErr != nil {
			return nackErr
		}
		return err
	}
	return delivery.Ack(ctx)
}

func expiredEventFromParameters(params map[string]any) ExpiredEvent {
	event := ExpiredEvent{
		Subject: stringParam(params, "subject"),
		Issuer:  stringParam(params, "issuer"),
		JTI:     stringParam(params, "jti"),
	}
	if raw := stringParam(params, "expires_at"); raw != "" {
		if parsed, err := time.Parse(time.RFC3339, raw); err == nil {
			event.ExpiresAt = parsed
		}
	}
	return event
}

func stringParam(params map[string]any, key string) string {
	value, ok := params[key].(string)
	if !ok {
		return ""
	}
	return value
}

func copyAnyMap(in map[string]any) map[string]any {
	if len(in) == 0 {
		return map[string]any{}
	}
	out := make(map[string]any, len(in))
	for key, value := range in {
		out[key] = value
	}
	return out
}

var (
	_ core.JobEnqueuer    = (*EnqueuerAdapter)(nil)
	_ core.JobDelivery    = (*DeliveryAdapter)(nil)
	_ core.JobDequeuer    = (*DequeuerAdapter)(nil)
	_ core.ExpiryNotifier = (*ExpiryEnqueuer)(nil)
)
