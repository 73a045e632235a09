package docs_test

import (
	"testing"

	"github.com/ctxkeep/ctxkeep/pkg/docs"
	"github.com/ctxkeep/ctxkeep/pkg/errors"
)

func TestParseKind(t *testing.T) {
	tests := []struct {
		input   string
		want    docs.Kind
		wantErr bool
	}{
		{input: "project", want: docs.KindProject},
		{input: "stack", want: docs.KindStack},
		{input: "architecture", want: docs.KindArchitecture},
		{input: "constraints", want: docs.KindConstraints},
		{input: "", wantErr: true},
		{input: "Project", wantErr: true},
		{input: "unknown", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := docs.ParseKind(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParseKind(%q): expected error, got %v", tt.input, got)
				}
				if !errors.Is(err, errors.ErrInvalidInput) {
					t.Errorf("ParseKind(%q): error should match ErrInvalidInput, got %v", tt.input, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseKind(%q): unexpected error: %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("ParseKind(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestKindFilename(t *testing.T) {
	if got := docs.KindProject.Filename(); got != "project.json" {
		t.Errorf("Filename() = %q, want project.json", got)
	}
	if got := docs.KindArchitecture.Filename(); got != "architecture.json" {
		t.Errorf("Filename() = %q, want architecture.json", got)
	}
}

func TestAllKinds(t *testing.T) {
	kinds := docs.AllKinds()
	want := []docs.Kind{docs.KindProject, docs.KindStack, docs.KindArchitecture, docs.KindConstraints}
	if len(kinds) != len(want) {
		t.Fatalf("AllKinds() returned %d kinds, want %d", len(kinds), len(want))
	}
	for i, kind := range want {
		if kinds[i] != kind {
			t.Errorf("AllKinds()[%d] = %v, want %v", i, kinds[i], kind)
		}
		if !kinds[i].Valid() {
			t.Errorf("AllKinds()[%d] = %v should be valid", i, kinds[i])
		}
	}
}

func TestKindValid(t *testing.T) {
	if docs.Kind("bogus").Valid() {
		t.Error("Kind(\"bogus\").Valid() should be false")
	}
}
