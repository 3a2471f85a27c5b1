package core

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

const DefaultSessionKey = "session"

// SessionManager is the session-consuming layer shared by framework
// bindings: it reads the bearer token from the store, treats malformed and
// expired tokens as no session, and arms the shared timer so an expired
// token is cleared even when nobody reads it.
type SessionManager struct {
	store    *Store[string]
	timer    *Timer
	key      string
	clock    Clock
	skew     time.Duration
	logger   Logger
	metrics  MetricsRecorder
	notifier ExpiryNotifier

	expiry        *Callback
	storeObserver *Observer[string]

	mu        sync.Mutex
	observers []*Observer[SessionToken]
	closed    bool
	// token the expiry callback is armed for
	scheduled string
}

type SessionOption func(*SessionManager)

func WithSessionKey(key string) SessionOption {
	return func(m *SessionManager) {
		if trimmed := strings.TrimSpace(key); trimmed != "" {
			m.key = trimmed
		}
	}
}

func WithSessionClock(clock Clock) SessionOption {
	return func(m *SessionManager) {
		if clock != nil {
			m.clock = clock
		}
	}
}

func WithSessionClockSkew(skew time.Duration) SessionOption {
	return func(m *SessionManager) {
		m.skew = skew
	}
}

func WithSessionLogger(logger Logger) SessionOption {
	return func(m *SessionManager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

func WithSessionMetrics(recorder MetricsRecorder) SessionOption {
	return func(m *SessionManager) {
		if recorder != nil {
			m.metrics = recorder
		}
	}
}

func WithExpiryNotifier(notifier ExpiryNotifier) SessionOption {
	return func(m *SessionManager) {
		m.notifier = notifier
	}
}

func NewSessionManager(store *Store[string], timer *Timer, opts ...SessionOption) (*SessionManager, error) {
	if store == nil {
		return nil, fmt.Errorf("core: session store is required")
	}
	if timer == nil {
		return nil, fmt.Errorf("core: session timer is required")
	}
	manager := &SessionManager{
		store:   store,
		timer:   timer,
		key:     DefaultSessionKey,
		clock:   ClockFunc(func() time.Time { return time.Now().UTC() }),
		logger:  glog.Nop(),
		metrics: NopMetricsRecorder{},
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(manager)
	}
	manager.expiry = NewCallback(manager.onExpiry)
	manager.storeObserver = NewObserver(manager.onStoreChange)
	store.Subscribe(manager.key, manager.storeObserver)
	return manager, nil
}

func (m *SessionManager) Key() string {
	if m == nil {
		return ""
	}
	return m.key
}

// Current returns the live session. An expired token is cleared through the
// store before null is returned.
func (m *SessionManager) Current() Maybe[SessionToken] {
	if m == nil {
		return Unset[SessionToken]()
	}
	parsed := ParseSessionToken(m.store.Get(m.key), m.logger)
	session, ok := parsed.Get()
	if !ok {
		return parsed
	}
	now := m.clock.Now()
	if session.Expired(now, m.skew) {
		m.expire(session)
		return Null[SessionToken]()
	}
	m.schedule(session, now)
	return parsed
}

// Token returns the raw bearer token of the live session.
func (m *SessionManager) Token() (string, bool) {
	session, ok := m.Current().Get()
	if !ok {
		return "", false
	}
	return session.Token, true
}

// SetToken stores token as the current session. The token is not required
// to parse; a malformed token simply reads as no session.
func (m *SessionManager) SetToken(token string) error {
	if m == nil {
		return fmt.Errorf("core: session manager is not configured")
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return fmt.Errorf("core: session token is required")
	}
	m.store.Set(m.key, Some(token))
	return nil
}

// Logout clears the session explicitly, leaving null rather than unset.
func (m *SessionManager) Logout() {
	if m == nil {
		return
	}
	m.timer.Clear(m.expiry)
	m.store.Set(m.key, Null[string]())
}

func (m *SessionManager) Subscribe(observer *Observer[SessionToken]) {
	if m == nil || observer == nil {
		return
	}
	m.mu.Lock()
	m.observers = append(m.observers, observer)
	m.mu.Unlock()
}

func (m *SessionManager) Unsubscribe(observer *Observer[SessionToken]) {
	if m == nil || observer == nil {
		return
	}
	m.mu.Lock()
	m.observers = removeObserver(m.observers, observer)
	m.mu.Unlock()
}

// Close detaches the manager from the store and withdraws its pending
// expiry callback.
func (m *SessionManager) Close() {
	if m == nil {
		return
	}
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	m.observers = nil
	m.mu.Unlock()

	m.store.Unsubscribe(m.key, m.storeObserver)
	m.timer.Clear(m.expiry)
}

func (m *SessionManager) onStoreChange(value Maybe[string]) {
	parsed := ParseSessionToken(value, m.logger)
	if session, ok := parsed.Get(); ok {
		now := m.clock.Now()
		if session.Expired(now, m.skew) {
			// expire writes null, which re-enters here and notifies
			m.expire(session)
			return
		}
		m.schedule(session, now)
	}
	m.notify(parsed)
}

func (m *SessionManager) onExpiry() {
	parsed := ParseSessionToken(m.store.Get(m.key), m.logger)
	session, ok := parsed.Get()
	if !ok {
		return
	}
	now := m.clock.Now()
	if session.Expired(now, m.skew) {
		m.expire(session)
		return
	}
	m.schedule(session, now)
}

func (m *SessionManager) schedule(session SessionToken, now time.Time) {
	if !session.HasExpiry() {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	// the callback leaves the timer when it fires or is cleared
	if m.scheduled == session.Token && m.timer.Registered(m.expiry) {
		return
	}
	m.scheduled = session.Token
	m.timer.Clear(m.expiry)
	m.timer.Set(m.expiry, session.ExpiresIn(now, m.skew))
}

func (m *SessionManager) expire(session SessionToken) {
	ctx := context.Background()
	m.timer.Clear(m.expiry)
	// another manager sharing the store may already have cleared it
	if current, ok := m.store.Get(m.key).Get(); !ok || strings.TrimSpace(current) != session.Token {
		return
	}
	m.store.Set(m.key, Null[string]())
	m.metrics.IncCounter(ctx, "session.expired.total", 1, map[string]string{"key": m.key})
	m.logger.Info("session expired",
		"key", m.key,
		"subject", session.Claims.Subject,
		"expires_at", session.Claims.ExpiresAt.Format(time.RFC3339),
	)
	if m.notifier == nil {
		return
	}
	if err := m.notifier.SessionExpired(ctx, session); err != nil {
		m.logger.Error("session expiry notification failed", "key", m.key, "error", err)
	}
}

func (m *SessionManager) notify(value Maybe[SessionToken]) {
	m.mu.Lock()
	observers := snapshotObservers(m.observers)
	m.mu.Unlock()
	notifyAll(m.logger, "session", m.key, observers, value)
}
