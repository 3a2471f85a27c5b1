package core

import "testing"

func TestMemoryStorageHub_DeliversToOtherContextsOnly(t *testing.T) {
	hub := NewMemoryStorageHub()
	a := hub.Context()
	b := hub.Context()
	if a.Origin() == b.Origin() {
		t.Fatalf("expected distinct context ids")
	}

	var seenA, seenB []StorageEvent
	cancelA, err := a.Watch(func(e StorageEvent) { seenA = append(seenA, e) })
	if err != nil {
		t.Fatalf("watch: %v", err)
	}
	if _, err := b.Watch(func(e StorageEvent) { seenB = append(seenB, e) }); err != nil {
		t.Fatalf("watch: %v", err)
	}

	_ = a.SetItem("k", "1")
	_ = a.SetItem("k", "1")
	if len(seenA) != 0 {
		t.Fatalf("expected writer not to see its own event")
	}
	if len(seenB) != 1 || seenB[0].Origin != a.Origin() || *seenB[0].NewValue != "1" {
		t.Fatalf("expected one event for b, got %+v", seenB)
	}

	_ = b.RemoveItem("k")
	_ = b.RemoveItem("k")
	if len(seenA) != 1 || seenA[0].NewValue != nil {
		t.Fatalf("expected one removal event for a, got %+v", seenA)
	}

	cancelA()
	cancelA()
	_ = b.SetItem("k", "2")
	if len(seenA) != 1 {
		t.Fatalf("expected cancelled watcher to stay silent")
	}
	if value, ok, _ := a.GetItem("k"); !ok || value != "2" {
		t.Fatalf("expected shared item map, got %q %v", value, ok)
	}
	if keys := hub.Keys(); len(keys) != 1 || keys[0] != "k" {
		t.Fatalf("expected single key, got %v", keys)
	}
}

func TestMemoryStorage_Errors(t *testing.T) {
	var storage *MemoryStorage
	if _, _, err := storage.GetItem("k"); err == nil {
		t.Fatalf("expected nil storage read error")
	}
	if _, err := NewMemoryStorage().Watch(nil); err == nil {
		t.Fatalf("expected nil callback error")
	}
}
