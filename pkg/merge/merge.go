package merge

import (
	"time"

	"github.com/ctxkeep/ctxkeep/pkg/docs"
	"github.com/ctxkeep/ctxkeep/pkg/errors"
	"github.com/ctxkeep/ctxkeep/pkg/policy"
)

// ProvenanceView is the read-only slice of the provenance store the engine
// consults. The engine never mutates provenance; tagging for the next pass
// is the orchestrator's job after merging.
type ProvenanceView interface {
	// IsManual reports whether a field path is tagged as manually edited.
	IsManual(kind docs.Kind, fieldPath string) bool

	// ManualElements returns the manually retained elements of a set-union
	// array field, in sorted order.
	ManualElements(kind docs.Kind, fieldPath string) []string

	// IsManualEdit reports whether a persisted value drifted from what
	// inference last produced for the field: a hand edit not yet tagged.
	IsManualEdit(kind docs.Kind, fieldPath string, value any) bool

	// LastInferred returns the value inference last produced for a field
	// tracked as inferred.
	LastInferred(kind docs.Kind, fieldPath string) (any, bool)
}

// Merger reconciles documents under a policy registry. Safe for reuse
// across kinds and passes.
type Merger struct {
	policies *policy.Registry
	now      func() time.Time
}

// Option configures a Merger.
type Option func(*Merger)

// WithRegistry overrides the default policy registry.
func WithRegistry(registry *policy.Registry) Option {
	return func(m *Merger) {
		m.policies = registry
	}
}

// WithClock overrides the merger's time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(m *Merger) {
		m.now = now
	}
}

// New creates a Merger with the default policy registry.
func New(opts ...Option) *Merger {
	m := &Merger{
		policies: policy.NewRegistry(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Merge reconciles an inferred document against the existing one.
//
// Inference is authoritative by default: merged starts as a copy of
// inferred, then each field is resolved in policy precedence order:
// whitelist-preserve (manual provenance), hard-preserve, set-union or
// keyed-set where declared, plain replace otherwise. A nil existing
// document is the first-ever reconciliation and degenerates to inferred
// with every populated field reported added. A nil inferred document is a
// loud failure: silently keeping existing would mask inference errors.
//
// The update timestamp is stamped unconditionally; the fact that the
// document was reconciled is itself observable.
func (m *Merger) Merge(kind docs.Kind, existing, inferred docs.Document, view ProvenanceView) (docs.Document, []Change, error) {
	if inferred == nil {
		return nil, nil, &errors.InferenceError{Kind: kind.String(), Err: errors.ErrInferredMissing}
	}

	merged := docs.Clone(inferred)
	docs.SetValue(merged, docs.UpdatedAtField, m.now().UTC().Format(time.RFC3339))

	if existing == nil {
		return merged, firstRunChanges(inferred), nil
	}

	table := m.policies.For(kind)
	var changes []Change
	for _, field := range evaluationOrder(table, existing, inferred) {
		changes = append(changes, m.mergeField(kind, field, existing, inferred, merged, view, table)...)
	}
	return merged, changes, nil
}

// firstRunChanges reports every populated inferred field as added.
func firstRunChanges(inferred docs.Document) []Change {
	var changes []Change
	for _, field := range docs.Paths(inferred) {
		if field == docs.UpdatedAtField {
			continue
		}
		value, _ := docs.Value(inferred, field)
		changes = append(changes, Change{
			Field:    field,
			Type:     ChangeAdded,
			NewValue: value,
			Reason:   ReasonFirstRun,
		})
	}
	return changes
}

// evaluationOrder returns the fields to reconcile: policy-declared fields
// first in declared order, then every remaining path of inferred and
// existing in sorted order. The update timestamp is excluded; it is
// stamped, not merged.
func evaluationOrder(table *policy.Table, existing, inferred docs.Document) []string {
	seen := map[string]bool{docs.UpdatedAtField: true}
	var order []string
	for _, field := range table.Fields() {
		if !seen[field] {
			seen[field] = true
			order = append(order, field)
		}
	}
	for _, doc := range []docs.Document{inferred, existing} {
		for _, field := range docs.Paths(doc) {
			if !seen[field] {
				seen[field] = true
				order = append(order, field)
			}
		}
	}
	return order
}

// mergeField resolves one field in policy precedence order, writing the
// outcome into merged and returning its change records.
func (m *Merger) mergeField(kind docs.Kind, field string, existing, inferred, merged docs.Document, view ProvenanceView, table *policy.Table) []Change {
	existingVal, hasExisting := docs.Value(existing, field)
	inferredVal, hasInferred := docs.Value(inferred, field)

	rule, hasRule := table.RuleFor(field)

	// Whitelist-preserve: the field as a whole is tagged manual. Set-merged
	// fields are exempt; their manual tracking is per element, never for
	// the array as a whole.
	setMerged := hasRule && (rule.Action == policy.ActionSetUnion || rule.Action == policy.ActionKeyedSet)
	if view != nil && !setMerged && view.IsManual(kind, field) && hasExisting {
		if docs.Equal(existingVal, inferredVal) {
			return nil
		}
		docs.SetValue(merged, field, existingVal)
		return []Change{{
			Field:    field,
			Type:     ChangePreserved,
			OldValue: inferredVal,
			NewValue: existingVal,
			Reason:   ReasonManualPreserved,
		}}
	}

	if hasRule {
		switch rule.Action {
		case policy.ActionHardPreserve:
			if hasExisting && !isEmpty(existingVal) && !docs.Equal(existingVal, inferredVal) {
				docs.SetValue(merged, field, existingVal)
				return []Change{{
					Field:    field,
					Type:     ChangePreserved,
					OldValue: inferredVal,
					NewValue: existingVal,
					Reason:   ReasonHumanCurated,
				}}
			}
			return nil
		case policy.ActionSetUnion:
			return m.mergeSetUnion(kind, field, existingVal, inferredVal, merged, view)
		case policy.ActionKeyedSet:
			return m.mergeKeyedSet(kind, field, rule.Key, existingVal, inferredVal, merged, view)
		}
	}

	// Replace: inference wins.
	switch {
	case hasInferred && !hasExisting:
		if isEmpty(inferredVal) {
			return nil
		}
		return []Change{{
			Field:    field,
			Type:     ChangeAdded,
			NewValue: inferredVal,
			Reason:   ReasonNewlyDetected,
		}}
	case hasInferred && hasExisting:
		if docs.Equal(existingVal, inferredVal) {
			return nil
		}
		// An existing value that drifted from the last recorded inferred
		// value was edited by hand since the last pass. Preserve it; the
		// orchestrator's tracking step will tag it manual.
		if view != nil && view.IsManualEdit(kind, field, existingVal) {
			docs.SetValue(merged, field, existingVal)
			return []Change{{
				Field:    field,
				Type:     ChangePreserved,
				OldValue: inferredVal,
				NewValue: existingVal,
				Reason:   ReasonManualPreserved,
			}}
		}
		return []Change{{
			Field:    field,
			Type:     ChangeModified,
			OldValue: existingVal,
			NewValue: inferredVal,
			Reason:   ReasonLatestScan,
		}}
	case hasExisting:
		// Absent from inferred: dropped from merged (which started as a
		// copy of inferred), reported so the removal is auditable.
		return []Change{{
			Field:    field,
			Type:     ChangeRemoved,
			OldValue: existingVal,
			Reason:   ReasonNoLongerFound,
		}}
	}
	return nil
}

// mergeSetUnion reconciles an array-valued field as a set:
// result = inferred ∪ (existing ∩ manual). Inferred entries keep inference
// order; manually retained entries follow in their existing order.
func (m *Merger) mergeSetUnion(kind docs.Kind, field string, existingVal, inferredVal any, merged docs.Document, view ProvenanceView) []Change {
	inferredSet, _ := docs.StringSlice(inferredVal)
	existingSet, _ := docs.StringSlice(existingVal)
	if inferredSet == nil && existingSet == nil {
		return nil
	}

	manual := make(map[string]bool)
	if view != nil {
		for _, element := range view.ManualElements(kind, field) {
			manual[element] = true
		}
	}

	// Elements absent from both inferred and the last inferred array were
	// added by hand even if not yet tagged; they are retained like tagged
	// ones. Without history, untagged elements are dropped.
	lastSet, hasHistory := lastInferredSet(kind, field, view)

	inInferred := toSet(inferredSet)
	inExisting := toSet(existingSet)

	result := append([]string(nil), inferredSet...)
	var changes []Change
	for _, element := range inferredSet {
		if !inExisting[element] {
			changes = append(changes, Change{
				Field:    field,
				Type:     ChangeAdded,
				NewValue: element,
				Reason:   ReasonNewlyDetected,
			})
		}
	}
	for _, element := range existingSet {
		if inInferred[element] {
			continue
		}
		if manual[element] || (hasHistory && !lastSet[element]) {
			result = append(result, element)
			changes = append(changes, Change{
				Field:    field,
				Type:     ChangePreserved,
				NewValue: element,
				Reason:   ReasonManualRetained,
			})
			continue
		}
		changes = append(changes, Change{
			Field:    field,
			Type:     ChangeRemoved,
			OldValue: element,
			Reason:   ReasonNoLongerFound,
		})
	}

	if len(result) > 0 {
		docs.SetValue(merged, field, result)
	} else {
		docs.Remove(merged, field)
	}
	return changes
}

// mergeKeyedSet reconciles an array of objects matched by a stable key
// field. Matched entries take the inferred object unless tracked manual;
// unmatched existing entries are removed unless tracked manual; unmatched
// inferred entries are added.
func (m *Merger) mergeKeyedSet(kind docs.Kind, field, key string, existingVal, inferredVal any, merged docs.Document, view ProvenanceView) []Change {
	inferredEntries := objectSlice(inferredVal)
	existingEntries := objectSlice(existingVal)
	if inferredEntries == nil && existingEntries == nil {
		return nil
	}

	manual := make(map[string]bool)
	if view != nil {
		for _, element := range view.ManualElements(kind, field) {
			manual[element] = true
		}
	}

	// History of what inference last produced, keyed the same way, to tell
	// hand-added or hand-edited entries from stale machine-detected ones.
	lastByKey, hasHistory := lastInferredEntries(kind, field, key, view)

	existingByKey := make(map[string]map[string]any, len(existingEntries))
	for _, entry := range existingEntries {
		if k, ok := entry[key].(string); ok {
			existingByKey[k] = entry
		}
	}
	inferredKeys := make(map[string]bool, len(inferredEntries))

	var result []any
	var changes []Change
	for _, entry := range inferredEntries {
		k, ok := entry[key].(string)
		if !ok {
			result = append(result, entry)
			continue
		}
		inferredKeys[k] = true
		prior, matched := existingByKey[k]
		switch {
		case !matched:
			result = append(result, entry)
			changes = append(changes, Change{
				Field:    field,
				Type:     ChangeAdded,
				NewValue: entry,
				Reason:   ReasonNewlyDetected,
			})
		case !docs.Equal(prior, entry) && (manual[k] || keyedHandEdit(hasHistory, lastByKey, k, prior)):
			result = append(result, prior)
			changes = append(changes, Change{
				Field:    field,
				Type:     ChangePreserved,
				OldValue: entry,
				NewValue: prior,
				Reason:   ReasonManualPreserved,
			})
		case !docs.Equal(prior, entry):
			result = append(result, entry)
			changes = append(changes, Change{
				Field:    field,
				Type:     ChangeModified,
				OldValue: prior,
				NewValue: entry,
				Reason:   ReasonLatestScan,
			})
		default:
			result = append(result, entry)
		}
	}
	for _, entry := range existingEntries {
		k, ok := entry[key].(string)
		if !ok || inferredKeys[k] {
			continue
		}
		if manual[k] || (hasHistory && lastByKey[k] == nil) {
			result = append(result, entry)
			changes = append(changes, Change{
				Field:    field,
				Type:     ChangePreserved,
				NewValue: entry,
				Reason:   ReasonManualRetained,
			})
			continue
		}
		changes = append(changes, Change{
			Field:    field,
			Type:     ChangeRemoved,
			OldValue: entry,
			Reason:   ReasonNoLongerFound,
		})
	}

	if len(result) > 0 {
		docs.SetValue(merged, field, result)
	} else {
		docs.Remove(merged, field)
	}
	return changes
}

// lastInferredSet returns the elements inference last produced for a
// set-union field, with ok reporting whether such history exists.
func lastInferredSet(kind docs.Kind, field string, view ProvenanceView) (map[string]bool, bool) {
	if view == nil {
		return nil, false
	}
	last, ok := view.LastInferred(kind, field)
	if !ok {
		return nil, false
	}
	elements, ok := docs.StringSlice(last)
	if !ok {
		return nil, false
	}
	return toSet(elements), true
}

// lastInferredEntries returns the entries inference last produced for a
// keyed-set field, indexed by their key, with ok reporting whether such
// history exists.
func lastInferredEntries(kind docs.Kind, field, key string, view ProvenanceView) (map[string]map[string]any, bool) {
	if view == nil {
		return nil, false
	}
	last, ok := view.LastInferred(kind, field)
	if !ok {
		return nil, false
	}
	entries := objectSlice(last)
	if entries == nil {
		return nil, false
	}
	byKey := make(map[string]map[string]any, len(entries))
	for _, entry := range entries {
		if k, ok := entry[key].(string); ok {
			byKey[k] = entry
		}
	}
	return byKey, true
}

// keyedHandEdit reports whether an existing keyed-set entry differs from
// what inference last produced for the same key: a hand edit not yet
// tagged manual.
func keyedHandEdit(hasHistory bool, lastByKey map[string]map[string]any, k string, prior map[string]any) bool {
	if !hasHistory {
		return false
	}
	last, ok := lastByKey[k]
	if !ok {
		return true
	}
	return !docs.Equal(prior, last)
}

// objectSlice coerces a decoded JSON array of objects into []map[string]any.
func objectSlice(v any) []map[string]any {
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]map[string]any, 0, len(items))
	for _, item := range items {
		if obj, ok := item.(map[string]any); ok {
			out = append(out, obj)
		}
	}
	return out
}

func toSet(values []string) map[string]bool {
	set := make(map[string]bool, len(values))
	for _, v := range values {
		set[v] = true
	}
	return set
}

// isEmpty reports whether a decoded JSON value carries no content.
func isEmpty(v any) bool {
	switch val := v.(type) {
	case nil:
		return true
	case string:
		return val == ""
	case []any:
		return len(val) == 0
	case map[string]any:
		return len(val) == 0
	}
	return false
}
