package query

import (
	"context"
	"testing"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-session/core"
)

type stubSessionReader struct {
	session core.Maybe[core.SessionToken]
	calls   int
}

func (s *stubSessionReader) CurrentSession(context.Context) core.Maybe[core.SessionToken] {
	s.calls++
	return s.session
}

type mapReader map[string]string

func (m mapReader) Get(key string) core.Maybe[string] {
	value, ok := m[key]
	if !ok {
		return core.Unset[string]()
	}
	return core.Some(value)
}

func TestGetSessionQuery_DelegatesToReader(t *testing.T) {
	reader := &stubSessionReader{session: core.Some(core.SessionToken{Token: "t1"})}
	result, err := NewGetSessionQuery(reader).Query(context.Background(), GetSessionMessage{})
	if err != nil {
		t.Fatalf("query session: %v", err)
	}
	session, ok := result.Get()
	if !ok || session.Token != "t1" {
		t.Fatalf("unexpected session: %#v", result)
	}
	if reader.calls != 1 {
		t.Fatalf("expected one reader call, got %d", reader.calls)
	}
}

func TestGetSessionQuery_NilReaderReturnsRichError(t *testing.T) {
	var q *GetSessionQuery
	_, err := q.Query(context.Background(), GetSessionMessage{})
	var rich *goerrors.Error
	if !goerrors.As(err, &rich) {
		t.Fatalf("expected go-errors envelope, got %T", err)
	}
	if rich.TextCode != core.SessionErrorInternal {
		t.Fatalf("expected %q text code, got %q", core.SessionErrorInternal, rich.TextCode)
	}
}

func TestGetValueQuery(t *testing.T) {
	q := NewGetValueQuery(mapReader{"theme": "dark"})

	value, err := q.Query(context.Background(), GetValueMessage{Key: "theme"})
	if err != nil {
		t.Fatalf("query value: %v", err)
	}
	if got, ok := value.Get(); !ok || got != "dark" {
		t.Fatalf("expected dark, got %q ok=%v", got, ok)
	}

	missing, err := q.Query(context.Background(), GetValueMessage{Key: "absent"})
	if err != nil {
		t.Fatalf("query missing value: %v", err)
	}
	if !missing.IsUnset() {
		t.Fatalf("expected unset for missing key, got %v", missing.State())
	}

	_, err = q.Query(context.Background(), GetValueMessage{})
	var rich *goerrors.Error
	if !goerrors.As(err, &rich) {
		t.Fatalf("expected go-errors envelope, got %T", err)
	}
	if rich.Category != goerrors.CategoryValidation {
		t.Fatalf("expected validation category, got %q", rich.Category)
	}
}

func TestGetValueQuery_ReadsThroughStore(t *testing.T) {
	store := core.NewStore[string](nil)
	store.Set("theme", core.Some("light"))

	value, err := NewGetValueQuery(store).Query(context.Background(), GetValueMessage{Key: "theme"})
	if err != nil {
		t.Fatalf("query value: %v", err)
	}
	if got, _ := value.Get(); got != "light" {
		t.Fatalf("expected light, got %q", got)
	}
}
