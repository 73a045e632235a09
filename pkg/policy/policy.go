// Package policy declares, per document kind, how each field is reconciled
// when a freshly inferred document meets a previously persisted one. The
// merge engine is generic over these tables; the tables themselves carry no
// merge logic.
package policy

import (
	"github.com/ctxkeep/ctxkeep/pkg/docs"
)

// Action is the reconciliation behavior declared for a field. Two behaviors
// are not declared here because they do not belong to any table:
// whitelist-preserve is derived from provenance manual tags and always
// evaluated first, and plain replace is the default for any field without
// a rule.
type Action string

// Field actions.
const (
	// ActionReplace takes the inferred value wholesale. The default.
	ActionReplace Action = "replace"

	// ActionHardPreserve keeps the existing non-empty value whenever it
	// differs from inferred, regardless of provenance tracking. Reserved
	// for human-curated fields that must survive even a lost provenance
	// store.
	ActionHardPreserve Action = "hard-preserve"

	// ActionSetUnion merges an array-valued field as a set:
	// inferred entries plus manually retained existing entries.
	ActionSetUnion Action = "set-union"

	// ActionKeyedSet merges an array of objects matched by a stable key
	// field rather than positional index.
	ActionKeyedSet Action = "keyed-set"
)

// Rule binds one field path to an action. Key names the stable key field
// for keyed-set rules and is empty otherwise.
type Rule struct {
	Field  string
	Action Action
	Key    string
}

// Table is the ordered policy table for one document kind. Rule order is
// the order fields are evaluated and reported within that kind.
type Table struct {
	Kind  docs.Kind
	Rules []Rule
}

// RuleFor returns the rule governing a field path, if one is declared.
func (t *Table) RuleFor(fieldPath string) (Rule, bool) {
	for _, rule := range t.Rules {
		if rule.Field == fieldPath {
			return rule, true
		}
	}
	return Rule{}, false
}

// Fields returns the declared field paths in evaluation order.
func (t *Table) Fields() []string {
	fields := make([]string, 0, len(t.Rules))
	for _, rule := range t.Rules {
		fields = append(fields, rule.Field)
	}
	return fields
}

// Registry holds the policy table for every document kind.
type Registry struct {
	tables map[docs.Kind]*Table
}

// NewRegistry returns the default policy registry for the four context
// document kinds.
func NewRegistry() *Registry {
	return &Registry{
		tables: map[docs.Kind]*Table{
			docs.KindProject: {
				Kind: docs.KindProject,
				Rules: []Rule{
					{Field: "team", Action: ActionHardPreserve},
					{Field: "goals", Action: ActionHardPreserve},
				},
			},
			docs.KindStack: {
				Kind: docs.KindStack,
				Rules: []Rule{
					{Field: "frameworks", Action: ActionSetUnion},
					{Field: "build_tools", Action: ActionSetUnion},
					{Field: "databases", Action: ActionSetUnion},
					{Field: "tooling", Action: ActionSetUnion},
				},
			},
			docs.KindArchitecture: {
				Kind: docs.KindArchitecture,
				Rules: []Rule{
					{Field: "entry_points", Action: ActionSetUnion},
					{Field: "directories", Action: ActionKeyedSet, Key: docs.DirectoryKeyField},
				},
			},
			docs.KindConstraints: {
				Kind: docs.KindConstraints,
				Rules: []Rule{
					{Field: "must_use", Action: ActionSetUnion},
					{Field: "must_avoid", Action: ActionSetUnion},
					{Field: "preferences", Action: ActionSetUnion},
				},
			},
		},
	}
}

// For returns the policy table for a kind. Kinds without declared rules get
// an empty table, which makes every field a plain replace.
func (r *Registry) For(kind docs.Kind) *Table {
	if table, ok := r.tables[kind]; ok {
		return table
	}
	return &Table{Kind: kind}
}

// Set replaces the table for a kind. Intended for tests and embedders that
// reconcile custom document shapes.
func (r *Registry) Set(table *Table) {
	r.tables[table.Kind] = table
}
