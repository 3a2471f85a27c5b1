package core

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var ErrInvalidSessionToken = errors.New("core: invalid session token")

// TokenError describes why a session token failed structural parsing.
type TokenError struct {
	Code  string
	Field string
	Cause error
}

func (e *TokenError) Error() string {
	if e == nil {
		return ErrInvalidSessionToken.Error()
	}
	parts := []string{ErrInvalidSessionToken.Error()}
	if strings.TrimSpace(e.Code) != "" {
		parts = append(parts, "code="+strings.TrimSpace(e.Code))
	}
	if strings.TrimSpace(e.Field) != "" {
		parts = append(parts, "field="+strings.TrimSpace(e.Field))
	}
	if e.Cause != nil {
		parts = append(parts, e.Cause.Error())
	}
	return strings.Join(parts, ": ")
}

func (e *TokenError) Unwrap() []error {
	if e == nil {
		return nil
	}
	if e.Cause == nil {
		return []error{ErrInvalidSessionToken}
	}
	return []error{ErrInvalidSessionToken, e.Cause}
}

type SessionClaims struct {
	Subject   string
	Issuer    string
	Audience  []string
	JTI       string
	ExpiresAt time.Time
	IssuedAt  time.Time
	NotBefore time.Time
	Raw       map[string]any
}

// SessionToken is a bearer token with its decoded payload.
type SessionToken struct {
	Token  string
	Claims SessionClaims
}

// HasExpiry reports whether the token carries an exp claim.
func (t SessionToken) HasExpiry() bool {
	return !t.Claims.ExpiresAt.IsZero()
}

// Expired reports whether exp plus skew lies before now. Tokens without exp
// never expire.
func (t SessionToken) Expired(now time.Time, skew time.Duration) bool {
	if !t.HasExpiry() {
		return false
	}
	return !now.Before(t.Claims.ExpiresAt.Add(skew))
}

// ExpiresIn returns the time left before the token expires.
func (t SessionToken) ExpiresIn(now time.Time, skew time.Duration) time.Duration {
	if !t.HasExpiry() {
		return 0
	}
	left := t.Claims.ExpiresAt.Add(skew).Sub(now)
	if left < 0 {
		return 0
	}
	return left
}

// ParseSessionToken turns a stored token into a session. Unset stays unset
// and null stays null so callers can tell "never signed in" from "signed
// out". A malformed token reads as unset and is logged once.
func ParseSessionToken(raw Maybe[string], logger Logger) Maybe[SessionToken] {
	switch raw.State() {
	case StateUnset:
		return Unset[SessionToken]()
	case StateNull:
		return Null[SessionToken]()
	}
	value, _ := raw.Get()
	token, err := DecodeSessionToken(value)
	if err != nil {
		if logger != nil {
			logger.Warn("session token could not be parsed", "error", err)
		}
		return Unset[SessionToken]()
	}
	return Some(token)
}

// DecodeSessionToken parses the JWT structure of raw without verifying its
// signature; the backend that issued it is the verifier.
func DecodeSessionToken(raw string) (SessionToken, error) {
	token := strings.TrimSpace(raw)
	if token == "" {
		return SessionToken{}, &TokenError{Code: "token_required", Field: "token"}
	}
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return SessionToken{}, &TokenError{Code: "token_malformed", Field: "token"}
	}
	if _, err := decodeTokenSection(parts[0]); err != nil {
		return SessionToken{}, &TokenError{Code: "header_decode_failed", Field: "header", Cause: err}
	}
	payload, err := decodeTokenSection(parts[1])
	if err != nil {
		return SessionToken{}, &TokenError{Code: "payload_decode_failed", Field: "payload", Cause: err}
	}

	claims := SessionClaims{
		Subject:  readClaimString(payload["sub"]),
		Issuer:   readClaimString(payload["iss"]),
		Audience: readAudience(payload["aud"]),
		JTI:      readClaimString(payload["jti"]),
		Raw:      payload,
	}
	for field, target := range map[string]*time.Time{
		"exp": &claims.ExpiresAt,
		"iat": &claims.IssuedAt,
		"nbf": &claims.NotBefore,
	} {
		value, ok := payload[field]
		if !ok || value == nil {
			continue
		}
		parsed, err := parseUnixClaim(value)
		if err != nil {
			return SessionToken{}, &TokenError{Code: "invalid_" + field, Field: field, Cause: err}
		}
		*target = parsed
	}
	return SessionToken{Token: token, Claims: claims}, nil
}

func decodeTokenSection(section string) (map[string]any, error) {
	raw, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(strings.TrimSpace(section), "="))
	if err != nil {
		return nil, err
	}
	decoder := json.NewDecoder(strings.NewReader(string(raw)))
	decoder.UseNumber()
	decoded := map[string]any{}
	if err := decoder.Decode(&decoded); err != nil {
		return nil, err
	}
	return decoded, nil
}

func parseUnixClaim(value any) (time.Time, error) {
	switch typed := value.(type) {
	case json.Number:
		if parsed, err := typed.Int64(); err == nil {
			return time.Unix(parsed, 0).UTC(), nil
		}
		parsed, err := typed.Float64()
		if err != nil {
			return time.Time{}, err
		}
		return time.Unix(int64(parsed), 0).UTC(), nil
	case float64:
		return time.Unix(int64(typed), 0).UTC(), nil
	case int64:
		return time.Unix(typed, 0).UTC(), nil
	case int:
		return time.Unix(int64(typed), 0).UTC(), nil
	case string:
		parsed, err := strconv.ParseInt(strings.TrimSpace(typed), 10, 64)
		if err != nil {
			return time.Time{}, err
		}
		return time.Unix(parsed, 0).UTC(), nil
	default:
		return time.Time{}, fmt.Errorf("unsupported unix claim type %T", value)
	}
}

func readClaimString(value any) string {
	switch typed := value.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(typed)
	case json.Number:
		return typed.String()
	default:
		return strings.TrimSpace(fmt.Sprint(value))
	}
}

func readAudience(value any) []string {
	switch typed := value.(type) {
	case string:
		if trimmed := strings.TrimSpace(typed); trimmed != "" {
			return []string{trimmed}
		}
	case []any:
		out := make([]string, 0, len(typed))
		for _, item := range typed {
			if s := readClaimString(item); s != "" {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
