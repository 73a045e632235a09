// Package docs defines the closed set of context document kinds and their
// typed schemas, plus the dot-path map helpers the merge primitives operate on.
package docs

import (
	"github.com/ctxkeep/ctxkeep/pkg/errors"
)

// Kind identifies one of the four context document kinds.
type Kind string

// The four context document kinds.
const (
	KindProject      Kind = "project"
	KindStack        Kind = "stack"
	KindArchitecture Kind = "architecture"
	KindConstraints  Kind = "constraints"
)

// String returns the string representation of a kind.
func (k Kind) String() string {
	return string(k)
}

// Filename returns the on-disk filename for the document of this kind.
func (k Kind) Filename() string {
	return string(k) + ".json"
}

// Valid reports whether k is one of the known document kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindProject, KindStack, KindArchitecture, KindConstraints:
		return true
	}
	return false
}

// AllKinds returns every document kind in canonical reconciliation order.
func AllKinds() []Kind {
	return []Kind{KindProject, KindStack, KindArchitecture, KindConstraints}
}

// ParseKind converts a string into a Kind.
func ParseKind(s string) (Kind, error) {
	k := Kind(s)
	if !k.Valid() {
		return "", &errors.ValidationError{
			Field:   "kind",
			Value:   s,
			Message: "unknown document kind",
		}
	}
	return k, nil
}
