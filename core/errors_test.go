package core

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	goerrors "github.com/goliatone/go-errors"
)

func TestSessionErrorMapper_AssignsStableCodes(t *testing.T) {
	cases := []struct {
		err      error
		textCode string
		status   int
	}{
		{err: stderrors.New("core: session token is required"), textCode: SessionErrorBadInput, status: http.StatusBadRequest},
		{err: stderrors.New("sqlstore: unsupported dialect \"oracle\""), textCode: SessionErrorBadInput, status: http.StatusBadRequest},
		{err: stderrors.New("core: storage factory is required for the file driver"), textCode: SessionErrorBackendUnavailable, status: http.StatusServiceUnavailable},
		{err: fmt.Errorf("login: %w", &TokenError{Code: "token_malformed"}), textCode: SessionErrorTokenInvalid, status: http.StatusUnauthorized},
	}
	for _, tc := range cases {
		mapped := sessionErrorMapper(tc.err)
		if mapped.TextCode != tc.textCode {
			t.Fatalf("expected %q for %q, got %q", tc.textCode, tc.err, mapped.TextCode)
		}
		if mapped.Code != tc.status {
			t.Fatalf("expected status %d for %q, got %d", tc.status, tc.err, mapped.Code)
		}
	}
	if sessionErrorMapper(nil) != nil {
		t.Fatalf("expected nil error to map to nil")
	}
}

func TestSessionErrorMapper_KeepsRichErrors(t *testing.T) {
	rich := goerrors.New("conflict", goerrors.CategoryConflict).WithTextCode("CUSTOM")
	mapped := sessionErrorMapper(rich)
	if mapped.TextCode != "CUSTOM" {
		t.Fatalf("expected existing text code to survive, got %q", mapped.TextCode)
	}
	if mapped.Code == 0 {
		t.Fatalf("expected http status filled in")
	}

	bare := goerrors.New("", goerrors.CategoryInternal)
	mapped = sessionErrorMapper(bare)
	if mapped.TextCode != SessionErrorInternal {
		t.Fatalf("expected internal text code, got %q", mapped.TextCode)
	}
	if mapped.Message == "" {
		t.Fatalf("expected internal errors to carry a message")
	}
}

func TestClientMethods_MapErrorsToStableCodes(t *testing.T) {
	var nilClient *Client
	err := nilClient.Login(context.Background(), "tok")
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		t.Fatalf("expected go-errors type, got %T", err)
	}
	if richErr.TextCode != SessionErrorInternal {
		t.Fatalf("expected internal code for unconfigured client, got %q", richErr.TextCode)
	}
	if err := nilClient.Logout(context.Background()); err == nil {
		t.Fatalf("expected logout on nil client to fail")
	}
	if !nilClient.CurrentSession(context.Background()).IsUnset() {
		t.Fatalf("expected nil client to report no session")
	}
}
