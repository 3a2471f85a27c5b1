package core

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type captureExpiryNotifier struct {
	mu       sync.Mutex
	sessions []SessionToken
	err      error
}

func (n *captureExpiryNotifier) SessionExpired(_ context.Context, session SessionToken) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sessions = append(n.sessions, session)
	return n.err
}

func (n *captureExpiryNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.sessions)
}

func newTestSessionManager(t *testing.T, store *Store[string], scheduler *ManualScheduler, opts ...SessionOption) *SessionManager {
	t.Helper()
	base := []SessionOption{WithSessionClock(scheduler)}
	manager, err := NewSessionManager(store, NewTimer(scheduler), append(base, opts...)...)
	if err != nil {
		t.Fatalf("new session manager: %v", err)
	}
	t.Cleanup(manager.Close)
	return manager
}

func TestNewSessionManager_RequiresDependencies(t *testing.T) {
	if _, err := NewSessionManager(nil, NewTimer(nil)); err == nil {
		t.Fatalf("expected missing store error")
	}
	if _, err := NewSessionManager(NewStore[string](nil), nil); err == nil {
		t.Fatalf("expected missing timer error")
	}
}

func TestSessionManager_ExpiryAutoClear(t *testing.T) {
	scheduler := NewManualScheduler(time.Unix(1_700_000_000, 0))
	store := NewStore[string](nil)
	notifier := &captureExpiryNotifier{}
	manager := newTestSessionManager(t, store, scheduler, WithExpiryNotifier(notifier))

	rec := &recorder[SessionToken]{}
	manager.Subscribe(rec.observer())

	token := testToken(t, map[string]any{"sub": "usr_1", "jti": "j1", "exp": scheduler.Now().Add(30 * time.Second).Unix()})
	if err := manager.SetToken(token); err != nil {
		t.Fatalf("set token: %v", err)
	}
	if got, ok := manager.Token(); !ok || got != token {
		t.Fatalf("expected live token, got %q %v", got, ok)
	}

	scheduler.Advance(29 * time.Second)
	if !manager.Current().IsPresent() {
		t.Fatalf("expected session to be live before exp")
	}

	scheduler.Advance(time.Second)
	if !store.Get(DefaultSessionKey).IsNull() {
		t.Fatalf("expected expired token to be cleared to null")
	}
	if !manager.Current().IsNull() {
		t.Fatalf("expected current session to be null after expiry")
	}
	if notifier.count() != 1 {
		t.Fatalf("expected one expiry notification, got %d", notifier.count())
	}
	if notifier.sessions[0].Claims.JTI != "j1" {
		t.Fatalf("expected expired session passed to notifier")
	}

	calls := rec.calls()
	if len(calls) != 2 || !calls[0].IsPresent() || !calls[1].IsNull() {
		t.Fatalf("expected present then null notifications, got %d calls", len(calls))
	}
}

func TestSessionManager_CurrentClearsAlreadyExpiredToken(t *testing.T) {
	scheduler := NewManualScheduler(time.Unix(1_700_000_000, 0))
	store := NewStore[string](nil)
	manager := newTestSessionManager(t, store, scheduler)

	expired := testToken(t, map[string]any{"exp": scheduler.Now().Add(-time.Minute).Unix()})
	store.local.Set(DefaultSessionKey, Some(expired))

	if !manager.Current().IsNull() {
		t.Fatalf("expected expired token to read null")
	}
	if !store.Get(DefaultSessionKey).IsNull() {
		t.Fatalf("expected expired token to be written back as null")
	}
}

func TestSessionManager_ClockSkewExtendsLifetime(t *testing.T) {
	scheduler := NewManualScheduler(time.Unix(1_700_000_000, 0))
	store := NewStore[string](nil)
	manager := newTestSessionManager(t, store, scheduler, WithSessionClockSkew(time.Minute))

	token := testToken(t, map[string]any{"exp": scheduler.Now().Add(10 * time.Second).Unix()})
	if err := manager.SetToken(token); err != nil {
		t.Fatalf("set token: %v", err)
	}
	scheduler.Advance(30 * time.Second)
	if !manager.Current().IsPresent() {
		t.Fatalf("expected skew to keep the session alive")
	}
	scheduler.Advance(time.Minute)
	if !manager.Current().IsNull() {
		t.Fatalf("expected session cleared once skew elapsed")
	}
}

func TestSessionManager_ReplacedTokenIsNotCleared(t *testing.T) {
	scheduler := NewManualScheduler(time.Unix(1_700_000_000, 0))
	store := NewStore[string](nil)
	manager := newTestSessionManager(t, store, scheduler)

	short := testToken(t, map[string]any{"jti": "short", "exp": scheduler.Now().Add(10 * time.Second).Unix()})
	long := testToken(t, map[string]any{"jti": "long", "exp": scheduler.Now().Add(time.Hour).Unix()})
	_ = manager.SetToken(short)
	_ = manager.SetToken(long)

	scheduler.Advance(time.Minute)
	session, ok := manager.Current().Get()
	if !ok || session.Claims.JTI != "long" {
		t.Fatalf("expected the replacement token to survive")
	}
}

func TestSessionManager_MalformedTokenReadsAsNoSession(t *testing.T) {
	scheduler := NewManualScheduler(time.Unix(1_700_000_000, 0))
	manager := newTestSessionManager(t, NewStore[string](nil), scheduler)

	if err := manager.SetToken("garbage"); err != nil {
		t.Fatalf("expected malformed token to be stored, got %v", err)
	}
	if !manager.Current().IsUnset() {
		t.Fatalf("expected malformed token to read unset")
	}
	if _, ok := manager.Token(); ok {
		t.Fatalf("expected no bearer token")
	}
	if err := manager.SetToken("  "); err == nil {
		t.Fatalf("expected blank token error")
	}
}

func TestSessionManager_LogoutAndClose(t *testing.T) {
	scheduler := NewManualScheduler(time.Unix(1_700_000_000, 0))
	store := NewStore[string](nil)
	timer := NewTimer(scheduler)
	manager, err := NewSessionManager(store, timer, WithSessionClock(scheduler), WithSessionKey("auth"))
	if err != nil {
		t.Fatalf("new session manager: %v", err)
	}
	if manager.Key() != "auth" {
		t.Fatalf("expected custom key, got %q", manager.Key())
	}

	rec := &recorder[SessionToken]{}
	obs := rec.observer()
	manager.Subscribe(obs)
	_ = manager.SetToken(testToken(t, map[string]any{"exp": scheduler.Now().Add(time.Hour).Unix()}))
	if timer.Observers() != 1 {
		t.Fatalf("expected expiry callback armed")
	}

	manager.Logout()
	if !store.Get("auth").IsNull() {
		t.Fatalf("expected logout to write null")
	}
	if timer.Observers() != 0 {
		t.Fatalf("expected logout to withdraw the expiry callback")
	}
	if n := len(rec.calls()); n != 2 {
		t.Fatalf("expected login and logout notifications, got %d", n)
	}

	manager.Unsubscribe(obs)
	manager.Close()
	manager.Close()
	store.Set("auth", Some(testToken(t, map[string]any{"exp": scheduler.Now().Add(time.Hour).Unix()})))
	if n := len(rec.calls()); n != 2 {
		t.Fatalf("expected no notifications after close, got %d", n)
	}
	if timer.Observers() != 0 {
		t.Fatalf("expected closed manager not to re-arm the timer")
	}
}

func TestSessionManager_NotifierErrorIsLogged(t *testing.T) {
	scheduler := NewManualScheduler(time.Unix(1_700_000_000, 0))
	logger := newCaptureLogger()
	notifier := &captureExpiryNotifier{err: errors.New("queue down")}
	manager := newTestSessionManager(t, NewStore[string](nil), scheduler,
		WithExpiryNotifier(notifier),
		WithSessionLogger(logger),
	)
	_ = manager.SetToken(testToken(t, map[string]any{"exp": scheduler.Now().Add(time.Second).Unix()}))
	scheduler.Advance(time.Second)

	found := false
	for _, entry := range logger.snapshot() {
		if entry.level == "error" && entry.msg == "session expiry notification failed" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected notifier failure to be logged")
	}
}

func TestSessionManager_SharedStoreExpiresOnce(t *testing.T) {
	scheduler := NewManualScheduler(time.Unix(1_700_000_000, 0))
	store := NewStore[string](nil)
	notifier := &captureExpiryNotifier{}
	first := newTestSessionManager(t, store, scheduler, WithExpiryNotifier(notifier))
	second := newTestSessionManager(t, store, scheduler, WithExpiryNotifier(notifier))

	_ = first.SetToken(testToken(t, map[string]any{"exp": scheduler.Now().Add(time.Second).Unix()}))
	scheduler.Advance(time.Minute)

	if !second.Current().IsNull() {
		t.Fatalf("expected both managers to see the cleared session")
	}
	if notifier.count() != 1 {
		t.Fatalf("expected a single expiry notification, got %d", notifier.count())
	}
}

func TestSessionManager_RepeatedReadsKeepOneTimerRegistration(t *testing.T) {
	scheduler := NewManualScheduler(time.Unix(1_700_000_000, 0))
	store := NewStore[string](nil)
	timer := NewTimer(scheduler)
	manager, err := NewSessionManager(store, timer, WithSessionClock(scheduler))
	if err != nil {
		t.Fatalf("new session manager: %v", err)
	}
	defer manager.Close()

	token := testToken(t, map[string]any{"exp": scheduler.Now().Add(time.Hour).Unix()})
	if err := manager.SetToken(token); err != nil {
		t.Fatalf("set token: %v", err)
	}
	for i := 0; i < 1000; i++ {
		if _, ok := manager.Token(); !ok {
			t.Fatalf("expected live token on read %d", i)
		}
	}
	if got := timer.Observers(); got != 1 {
		t.Fatalf("expected 1 timer registration after repeated reads, got %d", got)
	}
	if got := scheduler.Pending(); got != 1 {
		t.Fatalf("expected 1 pending platform timer, got %d", got)
	}

	replacement := testToken(t, map[string]any{"jti": "next", "exp": scheduler.Now().Add(2 * time.Hour).Unix()})
	if err := manager.SetToken(replacement); err != nil {
		t.Fatalf("set replacement: %v", err)
	}
	if got := timer.Observers(); got != 1 {
		t.Fatalf("expected replacement to re-arm a single registration, got %d", got)
	}

	scheduler.Advance(time.Hour)
	if _, ok := manager.Token(); !ok {
		t.Fatalf("expected replacement token to outlive the first deadline")
	}
	scheduler.Advance(time.Hour)
	if !store.Get(DefaultSessionKey).IsNull() {
		t.Fatalf("expected replacement token to be cleared at its own expiry")
	}
}
