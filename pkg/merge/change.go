// Package merge implements the field-provenance merge engine: given a
// previously persisted document, a freshly inferred one, and a read-only
// provenance view, it produces the reconciled document plus a precise list
// of what changed and why. The engine is a pure data transformation with no
// I/O and no provenance mutation.
package merge

import (
	"fmt"
)

// ChangeType classifies one reconciliation outcome for one field.
type ChangeType string

// Change types.
const (
	ChangeAdded     ChangeType = "added"
	ChangeRemoved   ChangeType = "removed"
	ChangeModified  ChangeType = "modified"
	ChangePreserved ChangeType = "preserved"
)

// Change records what happened to one field during a merge. For set-union
// fields a Change describes a single array element rather than the whole
// array.
type Change struct {
	Field    string     `json:"field"`
	Type     ChangeType `json:"type"`
	OldValue any        `json:"old_value,omitempty"`
	NewValue any        `json:"new_value,omitempty"`
	Reason   string     `json:"reason"`
}

// String renders a change for logs and debugging.
func (c Change) String() string {
	switch c.Type {
	case ChangeAdded:
		return fmt.Sprintf("+ %s = %v (%s)", c.Field, c.NewValue, c.Reason)
	case ChangeRemoved:
		return fmt.Sprintf("- %s = %v (%s)", c.Field, c.OldValue, c.Reason)
	case ChangeModified:
		return fmt.Sprintf("~ %s: %v -> %v (%s)", c.Field, c.OldValue, c.NewValue, c.Reason)
	case ChangePreserved:
		return fmt.Sprintf("= %s = %v (%s)", c.Field, c.NewValue, c.Reason)
	}
	return fmt.Sprintf("? %s (%s)", c.Field, c.Reason)
}

// Reason strings attached to changes. Kept as constants so presenters and
// tests can match on them.
const (
	ReasonFirstRun        = "first reconciliation"
	ReasonNewlyDetected   = "newly detected"
	ReasonLatestScan      = "value from latest scan"
	ReasonNoLongerFound   = "no longer detected"
	ReasonManualPreserved = "manual edit preserved"
	ReasonHumanCurated    = "human-curated field preserved"
	ReasonManualRetained  = "manually added entry retained"
)
