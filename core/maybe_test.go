package core

import (
	"context"
	"testing"
)

func TestMaybe_States(t *testing.T) {
	var zero Maybe[int]
	if !zero.IsUnset() || zero.State().String() != "unset" {
		t.Fatalf("expected zero value to be unset")
	}
	if !Null[int]().IsNull() || Null[int]().State().String() != "null" {
		t.Fatalf("expected null state")
	}
	some := Some(0)
	if v, ok := some.Get(); !ok || v != 0 {
		t.Fatalf("expected present zero payload")
	}
	if Null[int]().OrElse(5) != 5 {
		t.Fatalf("expected fallback for null")
	}
}

func TestDeepEqual(t *testing.T) {
	if !DeepEqual(Null[string](), Null[string]()) {
		t.Fatalf("expected nulls to be equal")
	}
	if DeepEqual(Null[string](), Unset[string]()) {
		t.Fatalf("expected null and unset to differ")
	}
	if DeepEqual(Some(""), Unset[string]()) {
		t.Fatalf("expected empty payload to differ from unset")
	}
	if !DeepEqual(Some([]int{1, 2}), Some([]int{1, 2})) {
		t.Fatalf("expected equal slices to compare equal")
	}
}

func TestUpdate_Resolve(t *testing.T) {
	lit := Literal(Some(3))
	if lit.IsUpdater() {
		t.Fatalf("expected literal update")
	}
	if v, _ := lit.Resolve(Some(1)).Get(); v != 3 {
		t.Fatalf("expected literal to ignore prev")
	}
	double := Updater(func(prev Maybe[int]) Maybe[int] { return Some(prev.OrElse(1) * 2) })
	if v, _ := double.Resolve(Some(4)).Get(); v != 8 {
		t.Fatalf("expected updater to use prev")
	}
}

func TestCodec_MaybeRoundTrip(t *testing.T) {
	codec := JSONCodec[map[string]int]{}
	raw, ok, err := encodeMaybe[map[string]int](codec, Some(map[string]int{"a": 1}))
	if err != nil || !ok || raw != `{"a":1}` {
		t.Fatalf("unexpected encoding %q %v %v", raw, ok, err)
	}
	if _, ok, _ := encodeMaybe[map[string]int](codec, Unset[map[string]int]()); ok {
		t.Fatalf("expected unset not to be written")
	}
	decoded, err := decodeMaybe[map[string]int](codec, &raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if v, _ := decoded.Get(); v["a"] != 1 {
		t.Fatalf("expected decoded payload")
	}
	null := " null "
	if value, _ := decodeMaybe[map[string]int](codec, &null); !value.IsNull() {
		t.Fatalf("expected null payload to decode as null")
	}
}

func TestMemoryMetricsRecorder(t *testing.T) {
	metrics := NewMemoryMetricsRecorder()
	metrics.IncCounter(context.Background(), "hits", 1, map[string]string{"key": "a"})
	metrics.IncCounter(context.Background(), "hits", 2, nil)
	if metrics.Counter("hits") != 3 {
		t.Fatalf("expected total 3, got %d", metrics.Counter("hits"))
	}
	if metrics.Counter("hits{key=a}") != 1 {
		t.Fatalf("expected tagged series 1, got %d", metrics.Counter("hits{key=a}"))
	}
}
