package docs

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/ctxkeep/ctxkeep/pkg/errors"
)

// Document is the generic form every merge primitive operates on: a decoded
// JSON object. Typed schemas (Project, Stack, ...) round-trip through it.
type Document map[string]any

// ToDocument converts a typed document struct into its generic map form via
// a JSON round-trip, so values are normalized to JSON types.
func ToDocument(v any) (Document, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, &errors.ParseError{Format: "json", Err: err}
	}
	var m Document
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, &errors.ParseError{Format: "json", Err: err}
	}
	return m, nil
}

// Decode converts a generic document back into the typed schema for its kind.
func Decode(kind Kind, doc Document) (any, error) {
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, &errors.ParseError{Format: "json", Err: err}
	}
	var out any
	switch kind {
	case KindProject:
		out = &Project{}
	case KindStack:
		out = &Stack{}
	case KindArchitecture:
		out = &Architecture{}
	case KindConstraints:
		out = &Constraints{}
	default:
		return nil, &errors.ValidationError{Field: "kind", Value: kind, Message: "unknown document kind"}
	}
	if err := json.Unmarshal(data, out); err != nil {
		return nil, &errors.ParseError{Format: "json", Err: err}
	}
	return out, nil
}

// Clone returns a deep copy of a document.
func Clone(doc Document) Document {
	if doc == nil {
		return nil
	}
	out, err := ToDocument(map[string]any(doc))
	if err != nil {
		// A decoded JSON object always re-marshals.
		panic(fmt.Sprintf("docs: clone failed: %v", err))
	}
	return out
}

// Value resolves a dot-delimited field path within a document. Array-valued
// fields are addressed as a whole; there are no per-element paths.
func Value(doc Document, path string) (any, bool) {
	if doc == nil {
		return nil, false
	}
	parts := strings.Split(path, ".")
	cur := any(map[string]any(doc))
	for _, part := range parts {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// SetValue writes a value at a dot-delimited field path, creating
// intermediate objects as needed.
func SetValue(doc Document, path string, value any) {
	parts := strings.Split(path, ".")
	cur := map[string]any(doc)
	for _, part := range parts[:len(parts)-1] {
		next, ok := cur[part].(map[string]any)
		if !ok {
			next = make(map[string]any)
			cur[part] = next
		}
		cur = next
	}
	cur[parts[len(parts)-1]] = value
}

// Remove deletes the value at a dot-delimited field path, if present.
func Remove(doc Document, path string) {
	parts := strings.Split(path, ".")
	cur := map[string]any(doc)
	for _, part := range parts[:len(parts)-1] {
		next, ok := cur[part].(map[string]any)
		if !ok {
			return
		}
		cur = next
	}
	delete(cur, parts[len(parts)-1])
}

// Paths returns every leaf field path of a document in sorted order. Nested
// objects are recursed; arrays and scalars are leaves.
func Paths(doc Document) []string {
	var out []string
	collectPaths("", map[string]any(doc), &out)
	sort.Strings(out)
	return out
}

func collectPaths(prefix string, m map[string]any, out *[]string) {
	for key, value := range m {
		path := key
		if prefix != "" {
			path = prefix + "." + key
		}
		if nested, ok := value.(map[string]any); ok {
			collectPaths(path, nested, out)
			continue
		}
		*out = append(*out, path)
	}
}

// Equal reports whether two field values are equal under canonical JSON
// serialization. It tolerates mixed typed/untyped representations of the
// same value.
func Equal(a, b any) bool {
	return bytes.Equal(Canonical(a), Canonical(b))
}

// Canonical returns the canonical JSON serialization of a value: normalized
// through a JSON round-trip so map keys are emitted in sorted order and
// whitespace is stable.
func Canonical(v any) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		return []byte(fmt.Sprintf("%#v", v))
	}
	var norm any
	if err := json.Unmarshal(data, &norm); err != nil {
		return data
	}
	out, err := json.Marshal(norm)
	if err != nil {
		return data
	}
	return out
}

// StringSlice coerces an array-valued field into []string, dropping
// non-string elements. Decoded JSON arrays arrive as []any.
func StringSlice(v any) ([]string, bool) {
	switch vals := v.(type) {
	case nil:
		return nil, false
	case []string:
		return vals, true
	case []any:
		out := make([]string, 0, len(vals))
		for _, item := range vals {
			s, ok := item.(string)
			if !ok {
				return nil, false
			}
			out = append(out, s)
		}
		return out, true
	}
	return nil, false
}
