package core

import "testing"

func newHubStore(hub *MemoryStorageHub) *Store[string] {
	durable := NewDurableBackend[string](hub.Context(), WithDurableNamespace[string]("connect"))
	return NewStore(durable)
}

func TestStore_SetNotifiesSubscribersInOrder(t *testing.T) {
	store := NewStore[string](nil)
	order := []string{}
	store.Subscribe("theme", NewObserver(func(v Maybe[string]) {
		s, _ := v.Get()
		order = append(order, "a:"+s)
	}))
	store.Subscribe("theme", NewObserver(func(v Maybe[string]) {
		s, _ := v.Get()
		order = append(order, "b:"+s)
	}))

	store.Set("theme", Some("dark"))
	store.Set("theme", Some("dark"))

	expected := []string{"a:dark", "b:dark", "a:dark", "b:dark"}
	if len(order) != len(expected) {
		t.Fatalf("expected every Set to notify, got %v", order)
	}
	for i := range expected {
		if order[i] != expected[i] {
			t.Fatalf("expected %v, got %v", expected, order)
		}
	}
}

func TestStore_FallbackReadDoesNotPopulateLocal(t *testing.T) {
	hub := NewMemoryStorageHub()
	seed := NewDurableBackend[string](hub.Context(), WithDurableNamespace[string]("connect"))
	seed.Set("session", Some("persisted"))

	store := newHubStore(hub)
	if v, _ := store.Get("session").Get(); v != "persisted" {
		t.Fatalf("expected durable fallback to return persisted, got %q", v)
	}
	if !store.local.Get("session").IsUnset() {
		t.Fatalf("expected fallback read to leave the local cache untouched")
	}

	store.Set("session", Some("fresh"))
	if v, _ := store.Get("session").Get(); v != "fresh" {
		t.Fatalf("expected local value to win, got %q", v)
	}
}

func TestStore_NullLocalValueShadowsDurable(t *testing.T) {
	store := NewStore(NewDurableBackend[string](NewMemoryStorage()))
	store.Set("session", Some("tok"))
	store.Set("session", Null[string]())
	if !store.Get("session").IsNull() {
		t.Fatalf("expected explicit null to be returned")
	}
}

func TestStore_CrossContextSync(t *testing.T) {
	hub := NewMemoryStorageHub()
	first := newHubStore(hub)
	second := newHubStore(hub)

	rec := &recorder[string]{}
	second.Subscribe("session", rec.observer())

	first.Set("session", Some("tok"))
	calls := rec.calls()
	if len(calls) != 1 {
		t.Fatalf("expected 1 cross-context notification, got %d", len(calls))
	}
	if v, _ := calls[0].Get(); v != "tok" {
		t.Fatalf("expected tok, got %q", v)
	}
	if v, _ := second.local.Get("session").Get(); v != "tok" {
		t.Fatalf("expected external change to land in the local cache, got %q", v)
	}

	first.Set("session", Null[string]())
	calls = rec.calls()
	if len(calls) != 2 || !calls[1].IsNull() {
		t.Fatalf("expected null to propagate")
	}
}

func TestStore_MonitorInstalledOncePerKey(t *testing.T) {
	hub := NewMemoryStorageHub()
	writer := newHubStore(hub)
	store := newHubStore(hub)

	if store.Monitored("k") {
		t.Fatalf("expected no monitor before the key is touched")
	}
	store.Subscribe("k", NewObserver(func(Maybe[string]) {}))
	if !store.Monitored("k") {
		t.Fatalf("expected Subscribe to install the monitor")
	}

	rec := &recorder[string]{}
	store.Subscribe("k", rec.observer())
	store.Get("k")
	store.Get("k")
	store.Set("k", Some("mine"))
	if !store.Monitored("k") {
		t.Fatalf("expected the monitor to stay installed")
	}

	writer.Set("k", Some("theirs"))
	// own Set notified once, the external change exactly once more
	if n := len(rec.calls()); n != 2 {
		t.Fatalf("expected 2 notifications, got %d", n)
	}
}

func TestStore_UnsubscribeIsIdempotent(t *testing.T) {
	store := NewStore[string](nil)
	rec := &recorder[string]{}
	obs := rec.observer()
	store.Subscribe("k", obs)
	store.Subscribe("k", obs)

	store.Set("k", Some("1"))
	if n := len(rec.calls()); n != 2 {
		t.Fatalf("expected duplicate registration to be called twice, got %d", n)
	}

	store.Unsubscribe("k", obs)
	store.Unsubscribe("k", obs)
	store.Unsubscribe("never", obs)
	store.Set("k", Some("2"))
	if n := len(rec.calls()); n != 2 {
		t.Fatalf("expected no notifications after unsubscribe, got %d", n)
	}
}

func TestStore_UpdateResolvesAgainstCurrentValue(t *testing.T) {
	store := NewStore[int](nil)
	increment := func(prev Maybe[int]) Maybe[int] {
		return Some(prev.OrElse(0) + 1)
	}
	store.Update("count", increment)
	got := store.Update("count", increment)
	if v, _ := got.Get(); v != 2 {
		t.Fatalf("expected 2, got %d", v)
	}
	if v, _ := store.Get("count").Get(); v != 2 {
		t.Fatalf("expected stored value 2, got %d", v)
	}
}

func TestStore_ReceiveAppliesUpdaterToPriorLocalValue(t *testing.T) {
	store := NewStore[int](nil)
	rec := &recorder[int]{}
	store.Subscribe("count", rec.observer())
	store.Set("count", Some(10))

	store.Receive("count", Updater(func(prev Maybe[int]) Maybe[int] {
		return Some(prev.OrElse(0) * 2)
	}))
	store.Receive("count", Literal(Null[int]()))

	calls := rec.calls()
	if len(calls) != 3 {
		t.Fatalf("expected 3 notifications, got %d", len(calls))
	}
	if v, _ := calls[1].Get(); v != 20 {
		t.Fatalf("expected updater result 20, got %d", v)
	}
	if !calls[2].IsNull() {
		t.Fatalf("expected literal null")
	}
}

func TestStore_DurableUnavailableStillWorksLocally(t *testing.T) {
	store := NewStore(NewDurableBackend[string](failingStorage{}))
	if store.Durable().Enabled() {
		t.Fatalf("expected durable backend to be disabled")
	}
	rec := &recorder[string]{}
	store.Subscribe("k", rec.observer())
	store.Set("k", Some("v"))
	if v, _ := store.Get("k").Get(); v != "v" {
		t.Fatalf("expected local value, got %q", v)
	}
	if len(rec.calls()) != 1 {
		t.Fatalf("expected subscriber notified")
	}
}

func TestStore_CloseDetachesFromDurable(t *testing.T) {
	hub := NewMemoryStorageHub()
	writer := newHubStore(hub)
	store := newHubStore(hub)
	rec := &recorder[string]{}
	store.Subscribe("k", rec.observer())
	store.Get("k")

	store.Close()
	writer.Set("k", Some("late"))
	if len(rec.calls()) != 0 {
		t.Fatalf("expected closed store to ignore external changes")
	}
}
