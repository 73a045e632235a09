// Package provenance provides field-level tracking of where context document
// values came from: automated inference, manual edit, or a merge that kept a
// manual value. The store is the merge engine's memory between passes.
package provenance

import (
	"sort"
	"strings"
	"time"

	"github.com/ctxkeep/ctxkeep/pkg/docs"
)

// StoreVersion is the current serialization version of the store.
const StoreVersion = "1"

// Origin records how a field's current value was produced.
type Origin string

// Field origins.
const (
	OriginInferred Origin = "inferred"
	OriginManual   Origin = "manual"
	OriginMerged   Origin = "merged"
)

// FieldState tracks one field path of one document kind.
type FieldState struct {
	Value          any        `json:"value,omitempty"`
	Origin         Origin     `json:"origin"`
	LastInferredAt *time.Time `json:"last_inferred_at,omitempty"`
	LastModifiedAt *time.Time `json:"last_modified_at,omitempty"`

	// InferredHash is the content hash of the value inference most recently
	// produced for this field, regardless of the value currently stored in
	// the document. It detects drift without diffing full structures.
	InferredHash string `json:"inferred_hash,omitempty"`
}

// FileState tracks all recorded fields of one document kind. Only fields
// that have been explicitly tracked appear; untracked fields behave as
// freshly inferred.
type FileState struct {
	Kind          docs.Kind             `json:"kind"`
	LastUpdatedAt time.Time             `json:"last_updated_at"`
	Fields        map[string]FieldState `json:"fields"`
}

// Store is the in-memory provenance store. It carries no I/O of its own;
// persistence lives in Repository so tests can hand a reconciler a bare
// store directly.
type Store struct {
	Version       string      `json:"version"`
	InitializedAt time.Time   `json:"initialized_at"`
	LastUpdateAt  time.Time   `json:"last_update_at"`
	Files         []FileState `json:"files"`

	now func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the store's time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// NewStore creates an empty provenance store.
func NewStore(opts ...Option) *Store {
	s := &Store{
		Version: StoreVersion,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.InitializedAt = s.now()
	s.LastUpdateAt = s.InitializedAt
	return s
}

// clock returns the store's time source, defaulting to time.Now for stores
// decoded from JSON.
func (s *Store) clock() func() time.Time {
	if s.now == nil {
		return time.Now
	}
	return s.now
}

// file returns the FileState for a kind, creating it when create is set.
func (s *Store) file(kind docs.Kind, create bool) *FileState {
	for i := range s.Files {
		if s.Files[i].Kind == kind {
			return &s.Files[i]
		}
	}
	if !create {
		return nil
	}
	s.Files = append(s.Files, FileState{
		Kind:   kind,
		Fields: make(map[string]FieldState),
	})
	return &s.Files[len(s.Files)-1]
}

// TrackInferred records a field as machine-derived: origin inferred, hash of
// the inferred value remembered for drift detection.
func (s *Store) TrackInferred(kind docs.Kind, fieldPath string, value any) {
	now := s.clock()()
	file := s.file(kind, true)
	if file.Fields == nil {
		file.Fields = make(map[string]FieldState)
	}
	file.Fields[fieldPath] = FieldState{
		Value:          value,
		Origin:         OriginInferred,
		LastInferredAt: &now,
		InferredHash:   HashValue(value),
	}
	file.LastUpdatedAt = now
}

// TrackManual records a field as human-derived. Any previously recorded
// inferred hash is kept so future drift against inference stays detectable.
func (s *Store) TrackManual(kind docs.Kind, fieldPath string, value any) {
	now := s.clock()()
	file := s.file(kind, true)
	if file.Fields == nil {
		file.Fields = make(map[string]FieldState)
	}
	prior := file.Fields[fieldPath]
	file.Fields[fieldPath] = FieldState{
		Value:          value,
		Origin:         OriginManual,
		LastModifiedAt: &now,
		InferredHash:   prior.InferredHash,
	}
	file.LastUpdatedAt = now
}

// IsManual reports whether a tracked FieldState exists with a manual origin.
// A merged origin counts: it records a merge that preserved a manual value,
// so the field stays protected from plain inference.
func (s *Store) IsManual(kind docs.Kind, fieldPath string) bool {
	file := s.file(kind, false)
	if file == nil {
		return false
	}
	state, ok := file.Fields[fieldPath]
	return ok && (state.Origin == OriginManual || state.Origin == OriginMerged)
}

// HasInferredDrifted reports whether inference now disagrees with what it
// last produced for a field: true when no record exists or the new value
// hashes differently from the recorded inferred hash.
func (s *Store) HasInferredDrifted(kind docs.Kind, fieldPath string, newValue any) bool {
	file := s.file(kind, false)
	if file == nil {
		return true
	}
	state, ok := file.Fields[fieldPath]
	if !ok || state.InferredHash == "" {
		return true
	}
	return HashValue(newValue) != state.InferredHash
}

// IsManualEdit reports whether a value currently found in a persisted
// document differs from what inference last produced for the field: a hand
// edit made since the last pass, before any manual tag exists for it.
// False when the field has no inference history (a lost store degrades
// precision; everything behaves as freshly inferred).
func (s *Store) IsManualEdit(kind docs.Kind, fieldPath string, value any) bool {
	file := s.file(kind, false)
	if file == nil {
		return false
	}
	state, ok := file.Fields[fieldPath]
	if !ok || state.InferredHash == "" {
		return false
	}
	return HashValue(value) != state.InferredHash
}

// LastInferred returns the value inference last produced for a field, when
// the field is tracked as inferred. Set-merged array fields rely on this to
// tell hand-added elements from stale machine-detected ones.
func (s *Store) LastInferred(kind docs.Kind, fieldPath string) (any, bool) {
	file := s.file(kind, false)
	if file == nil {
		return nil, false
	}
	state, ok := file.Fields[fieldPath]
	if !ok || state.Origin != OriginInferred {
		return nil, false
	}
	return state.Value, true
}

// ManualFieldPaths returns every path of a kind currently tagged manual,
// in sorted order.
func (s *Store) ManualFieldPaths(kind docs.Kind) []string {
	file := s.file(kind, false)
	if file == nil {
		return nil
	}
	var paths []string
	for path, state := range file.Fields {
		if state.Origin == OriginManual || state.Origin == OriginMerged {
			paths = append(paths, path)
		}
	}
	sort.Strings(paths)
	return paths
}

// Untrack removes the record for one field path, if present. Provenance
// records are otherwise never deleted automatically.
func (s *Store) Untrack(kind docs.Kind, fieldPath string) {
	file := s.file(kind, false)
	if file == nil {
		return
	}
	if _, ok := file.Fields[fieldPath]; ok {
		delete(file.Fields, fieldPath)
		file.LastUpdatedAt = s.clock()()
	}
}

// ClearKind drops every record of a kind. Used by force passes, which
// re-tag everything inferred from scratch.
func (s *Store) ClearKind(kind docs.Kind) {
	file := s.file(kind, false)
	if file == nil {
		return
	}
	file.Fields = make(map[string]FieldState)
	file.LastUpdatedAt = s.clock()()
}

// ElementPath returns the tracking path for one element of a set-union
// array field, e.g. ElementPath("frameworks", "Remix") == "frameworks[Remix]".
func ElementPath(fieldPath, element string) string {
	return fieldPath + "[" + element + "]"
}

// ParseElementPath splits an element tracking path into its field path and
// element. ok is false for plain field paths.
func ParseElementPath(path string) (fieldPath, element string, ok bool) {
	if !strings.HasSuffix(path, "]") {
		return "", "", false
	}
	open := strings.Index(path, "[")
	if open <= 0 {
		return "", "", false
	}
	return path[:open], path[open+1 : len(path)-1], true
}

// ManualElements returns the elements of a set-union array field tracked as
// manually retained, in sorted order.
func (s *Store) ManualElements(kind docs.Kind, fieldPath string) []string {
	var elements []string
	for _, path := range s.ManualFieldPaths(kind) {
		field, element, ok := ParseElementPath(path)
		if ok && field == fieldPath {
			elements = append(elements, element)
		}
	}
	sort.Strings(elements)
	return elements
}
