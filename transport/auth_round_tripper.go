package transport

import (
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
	"github.com/goliatone/go-session/core"
)

// SessionSource supplies the bearer token of the live session and clears
// it when the backend rejects it.
type SessionSource interface {
	Token() (string, bool)
	Logout()
}

// AuthRoundTripper attaches the current session token to outgoing requests
// as an Authorization bearer header.
type AuthRoundTripper struct {
	base                 http.RoundTripper
	sessions             SessionSource
	logger               core.Logger
	requireSession       bool
	logoutOnUnauthorized bool
}

type Option func(*AuthRoundTripper)

func WithBase(base http.RoundTripper) Option {
	return func(rt *AuthRoundTripper) {
		if base != nil {
			rt.base = base
		}
	}
}

func WithLogger(logger core.Logger) Option {
	return func(rt *AuthRoundTripper) {
		if logger != nil {
			rt.logger = logger
		}
	}
}

// WithRequireSession fails requests locally when there is no live session
// instead of sending them unauthenticated.
func WithRequireSession(required bool) Option {
	return func(rt *AuthRoundTripper) {
		rt.requireSession = required
	}
}

// WithLogoutOnUnauthorized clears the session when a response comes back
// 401 for a request that carried the token.
func WithLogoutOnUnauthorized(enabled bool) Option {
	return func(rt *AuthRoundTripper) {
		rt.logoutOnUnauthorized = enabled
	}
}

func NewAuthRoundTripper(sessions SessionSource, opts ...Option) *AuthRoundTripper {
	rt := &AuthRoundTripper{
		base:     http.DefaultTransport,
		sessions: sessions,
		logger:   glog.Nop(),
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(rt)
	}
	return rt
}

// NewHTTPClient returns an http.Client whose transport is rt.
func (rt *AuthRoundTripper) NewHTTPClient() *http.Client {
	return &http.Client{Transport: rt}
}

func (rt *AuthRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	if rt == nil || rt.base == nil {
		return nil, transportError("transport: round tripper is not configured", goerrors.CategoryInternal, nil)
	}
	if req == nil {
		return nil, transportError("transport: request is required", goerrors.CategoryBadInput, nil)
	}

	token, ok := "", false
	if rt.sessions != nil {
		token, ok = rt.sessions.Token()
		token = strings.TrimSpace(token)
		ok = ok && token != ""
	}
	if !ok {
		if rt.requireSession {
			return nil, transportError("transport: no active session", goerrors.CategoryAuth, map[string]any{
				"host": req.URL.Host,
			})
		}
		return rt.base.RoundTrip(req)
	}

	authed := req.Clone(req.Context())
	authed.Header.Set("Authorization", "Bearer "+token)
	res, err := rt.base.RoundTrip(authed)
	if err != nil {
		return nil, err
	}
	if res.StatusCode == http.StatusUnauthorized && rt.logoutOnUnauthorized {
		// a newer session stored while the request was in flight stays
		if current, ok := rt.sessions.Token(); !ok || strings.TrimSpace(current) != token {
			rt.logger.Debug("stale session rejected by backend, keeping current session", "host", req.URL.Host)
			return res, nil
		}
		rt.logger.Info("session rejected by backend, logging out", "host", req.URL.Host)
		rt.sessions.Logout()
	}
	return res, nil
}

var (
	_ http.RoundTripper = (*AuthRoundTripper)(nil)
	_ SessionSource     = (*core.SessionManager)(nil)
)
