package core

import "testing"

func TestDurableBackend_DisabledWithoutWorkingStorage(t *testing.T) {
	cases := map[string]Storage{
		"nil":       nil,
		"failing":   failingStorage{},
		"panicking": panickingStorage{},
	}
	for name, storage := range cases {
		t.Run(name, func(t *testing.T) {
			backend := NewDurableBackend[string](storage)
			if backend.Enabled() {
				t.Fatalf("expected backend to be disabled")
			}
			backend.Set("k", Some("v"))
			if !backend.Get("k").IsUnset() {
				t.Fatalf("expected disabled backend to read unset")
			}
			backend.Subscribe("k", NewObserver(func(Maybe[string]) {}))
			backend.Unsubscribe("k", NewObserver(func(Maybe[string]) {}))
			backend.Close()
		})
	}
}

func TestDurableBackend_EncodesThreeStates(t *testing.T) {
	hub := NewMemoryStorageHub()
	storage := hub.Context()
	backend := NewDurableBackend[int](storage, WithDurableNamespace[int]("connect"))
	if !backend.Enabled() {
		t.Fatalf("expected memory storage to pass the probe")
	}
	if keys := hub.Keys(); len(keys) != 0 {
		t.Fatalf("expected probe to clean up after itself, got %v", keys)
	}

	backend.Set("count", Some(3))
	raw, ok, _ := storage.GetItem("connect:count")
	if !ok || raw != "3" {
		t.Fatalf("expected encoded payload under the namespaced key, got %q %v", raw, ok)
	}
	if v, _ := backend.Get("count").Get(); v != 3 {
		t.Fatalf("expected 3, got %d", v)
	}

	backend.Set("count", Null[int]())
	raw, _, _ = storage.GetItem("connect:count")
	if raw != "null" {
		t.Fatalf("expected null payload, got %q", raw)
	}
	if !backend.Get("count").IsNull() {
		t.Fatalf("expected null to round trip")
	}

	backend.Set("count", Unset[int]())
	if _, ok, _ := storage.GetItem("connect:count"); ok {
		t.Fatalf("expected unset to remove the item")
	}
	if !backend.Get("count").IsUnset() {
		t.Fatalf("expected removed item to read unset")
	}
}

func TestDurableBackend_StringCodecKeepsNullDistinct(t *testing.T) {
	storage := NewMemoryStorage()
	backend := NewDurableBackend[string](storage, WithDurableCodec[string](StringCodec{}))

	backend.Set("word", Some("null"))
	got := backend.Get("word")
	if v, ok := got.Get(); !ok || v != "null" {
		t.Fatalf("expected the literal string null to stay present, got %v", got.State())
	}
}

func TestDurableBackend_ReadFailuresDegradeToUnset(t *testing.T) {
	storage := &flakyStorage{MemoryStorage: NewMemoryStorage()}
	backend := NewDurableBackend[string](storage)
	backend.Set("k", Some("v"))

	storage.failReads = true
	if !backend.Get("k").IsUnset() {
		t.Fatalf("expected failing read to degrade to unset")
	}

	storage.failReads = false
	_ = storage.SetItem("k", "{not json")
	if !backend.Get("k").IsUnset() {
		t.Fatalf("expected undecodable payload to read unset")
	}
}

func TestDurableBackend_SubscribeReceivesOnlyExternalChanges(t *testing.T) {
	hub := NewMemoryStorageHub()
	local := NewDurableBackend[string](hub.Context(), WithDurableNamespace[string]("connect"))
	remote := NewDurableBackend[string](hub.Context(), WithDurableNamespace[string]("connect"))
	other := NewDurableBackend[string](hub.Context(), WithDurableNamespace[string]("elsewhere"))

	rec := &recorder[string]{}
	local.Subscribe("session", rec.observer())

	local.Set("session", Some("own"))
	if len(rec.calls()) != 0 {
		t.Fatalf("expected own writes not to be echoed")
	}

	remote.Set("session", Some("tok"))
	remote.Set("unrelated", Some("x"))
	other.Set("session", Some("foreign namespace"))
	remote.Set("session", Unset[string]())

	calls := rec.calls()
	if len(calls) != 2 {
		t.Fatalf("expected 2 external events, got %d", len(calls))
	}
	if v, _ := calls[0].Get(); v != "tok" {
		t.Fatalf("expected tok, got %q", v)
	}
	if !calls[1].IsUnset() {
		t.Fatalf("expected removal to arrive as unset")
	}

	local.Close()
	remote.Set("session", Some("after close"))
	if len(rec.calls()) != 2 {
		t.Fatalf("expected no events after Close")
	}
}
