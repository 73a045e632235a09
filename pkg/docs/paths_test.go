package docs_test

import (
	"reflect"
	"testing"

	"github.com/ctxkeep/ctxkeep/pkg/docs"
)

func TestValueAndSetValue(t *testing.T) {
	doc := docs.Document{
		"name": "demo",
		"performance": map[string]any{
			"latency_budget_ms": float64(250),
		},
	}

	t.Run("top-level path", func(t *testing.T) {
		got, ok := docs.Value(doc, "name")
		if !ok || got != "demo" {
			t.Errorf("Value(name) = %v, %v; want demo, true", got, ok)
		}
	})

	t.Run("nested path", func(t *testing.T) {
		got, ok := docs.Value(doc, "performance.latency_budget_ms")
		if !ok || got != float64(250) {
			t.Errorf("Value(performance.latency_budget_ms) = %v, %v", got, ok)
		}
	})

	t.Run("missing path", func(t *testing.T) {
		if _, ok := docs.Value(doc, "performance.missing"); ok {
			t.Error("Value of a missing path should report false")
		}
		if _, ok := docs.Value(doc, "name.nested"); ok {
			t.Error("Value through a scalar should report false")
		}
	})

	t.Run("set creates intermediates", func(t *testing.T) {
		target := docs.Document{}
		docs.SetValue(target, "security.auth", "oauth2")
		got, ok := docs.Value(target, "security.auth")
		if !ok || got != "oauth2" {
			t.Errorf("Value after SetValue = %v, %v", got, ok)
		}
	})
}

func TestRemove(t *testing.T) {
	doc := docs.Document{
		"name": "demo",
		"performance": map[string]any{
			"latency_budget_ms": float64(250),
		},
	}
	docs.Remove(doc, "performance.latency_budget_ms")
	if _, ok := docs.Value(doc, "performance.latency_budget_ms"); ok {
		t.Error("removed path should not resolve")
	}
	// Removing a missing path is a no-op.
	docs.Remove(doc, "nope.nothing")
}

func TestPaths(t *testing.T) {
	doc := docs.Document{
		"name":       "demo",
		"frameworks": []any{"React"},
		"performance": map[string]any{
			"latency_budget_ms": float64(250),
			"cold_start":        "fast",
		},
	}
	want := []string{
		"frameworks",
		"name",
		"performance.cold_start",
		"performance.latency_budget_ms",
	}
	if got := docs.Paths(doc); !reflect.DeepEqual(got, want) {
		t.Errorf("Paths() = %v, want %v", got, want)
	}
}

func TestEqual(t *testing.T) {
	tests := []struct {
		name string
		a, b any
		want bool
	}{
		{name: "equal strings", a: "x", b: "x", want: true},
		{name: "different strings", a: "x", b: "y", want: false},
		{name: "typed vs untyped slice", a: []string{"a", "b"}, b: []any{"a", "b"}, want: true},
		{name: "int vs float of same value", a: 1, b: float64(1), want: true},
		{name: "key order irrelevant", a: map[string]any{"a": 1, "b": 2}, b: map[string]any{"b": 2, "a": 1}, want: true},
		{name: "nil vs empty string", a: nil, b: "", want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := docs.Equal(tt.a, tt.b); got != tt.want {
				t.Errorf("Equal(%v, %v) = %v, want %v", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func TestCanonicalSortsKeys(t *testing.T) {
	a := docs.Canonical(map[string]any{"z": 1, "a": 2})
	b := docs.Canonical(map[string]any{"a": 2, "z": 1})
	if string(a) != string(b) {
		t.Errorf("Canonical should be independent of key order: %s vs %s", a, b)
	}
	if string(a) != `{"a":2,"z":1}` {
		t.Errorf("Canonical = %s, want sorted compact JSON", a)
	}
}

func TestClone(t *testing.T) {
	doc := docs.Document{
		"name": "demo",
		"performance": map[string]any{
			"latency_budget_ms": float64(250),
		},
	}
	clone := docs.Clone(doc)
	docs.SetValue(clone, "performance.latency_budget_ms", float64(100))
	if got, _ := docs.Value(doc, "performance.latency_budget_ms"); got != float64(250) {
		t.Errorf("mutating a clone leaked into the original: %v", got)
	}
	if docs.Clone(nil) != nil {
		t.Error("Clone(nil) should be nil")
	}
}

func TestStringSlice(t *testing.T) {
	tests := []struct {
		name   string
		input  any
		want   []string
		wantOK bool
	}{
		{name: "decoded JSON array", input: []any{"a", "b"}, want: []string{"a", "b"}, wantOK: true},
		{name: "typed slice", input: []string{"a"}, want: []string{"a"}, wantOK: true},
		{name: "empty array", input: []any{}, want: []string{}, wantOK: true},
		{name: "mixed array", input: []any{"a", 1}, wantOK: false},
		{name: "nil", input: nil, wantOK: false},
		{name: "scalar", input: "a", wantOK: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := docs.StringSlice(tt.input)
			if ok != tt.wantOK {
				t.Fatalf("StringSlice(%v) ok = %v, want %v", tt.input, ok, tt.wantOK)
			}
			if ok && !reflect.DeepEqual(got, tt.want) {
				t.Errorf("StringSlice(%v) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestToDocumentAndDecode(t *testing.T) {
	stack := docs.Stack{
		Language:   "Go",
		Frameworks: []string{"Cobra"},
	}
	doc, err := docs.ToDocument(stack)
	if err != nil {
		t.Fatalf("ToDocument failed: %v", err)
	}
	if got, _ := docs.Value(doc, "language"); got != "Go" {
		t.Errorf("language = %v, want Go", got)
	}

	decoded, err := docs.Decode(docs.KindStack, doc)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	back, ok := decoded.(*docs.Stack)
	if !ok {
		t.Fatalf("Decode returned %T, want *docs.Stack", decoded)
	}
	if back.Language != "Go" || len(back.Frameworks) != 1 {
		t.Errorf("round trip lost data: %+v", back)
	}

	if _, err := docs.Decode(docs.Kind("bogus"), doc); err == nil {
		t.Error("Decode with an unknown kind should fail")
	}
}
