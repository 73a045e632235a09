package reconciler

import (
	"fmt"
	"strings"
	"time"

	"github.com/ctxkeep/ctxkeep/pkg/docs"
	"github.com/ctxkeep/ctxkeep/pkg/merge"
)

// Status is the outcome of one document kind's pipeline within a pass.
type Status string

// Kind statuses.
const (
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// KindResult is the outcome of reconciling one document kind.
type KindResult struct {
	Kind    docs.Kind
	Status  Status
	Changes []merge.Change
	Err     error
}

// ReportEntry is one change record of the pass-wide report, qualified by
// the document it belongs to.
type ReportEntry struct {
	File string `json:"file"`
	merge.Change
}

// Result is the outcome of a full reconciliation pass. A single kind's
// failure lives in its KindResult; Err is set only for failures fatal to
// the whole pass (backup, provenance persistence).
type Result struct {
	StartedAt  time.Time
	FinishedAt time.Time
	DryRun     bool
	Force      bool
	BackupPath string
	Warnings   []string
	Kinds      []KindResult
	Err        error
}

// Succeeded reports whether every kind reconciled cleanly and nothing fatal
// happened.
func (r *Result) Succeeded() bool {
	if r.Err != nil {
		return false
	}
	for _, kr := range r.Kinds {
		if kr.Status != StatusSucceeded {
			return false
		}
	}
	return true
}

// FailedKinds returns the kinds whose pipeline failed.
func (r *Result) FailedKinds() []docs.Kind {
	var failed []docs.Kind
	for _, kr := range r.Kinds {
		if kr.Status == StatusFailed {
			failed = append(failed, kr.Kind)
		}
	}
	return failed
}

// HasChanges reports whether any kind recorded a change.
func (r *Result) HasChanges() bool {
	for _, kr := range r.Kinds {
		if len(kr.Changes) > 0 {
			return true
		}
	}
	return false
}

// Report returns the complete change report, ordered by document kind and
// then by the order fields were evaluated within that kind.
func (r *Result) Report() []ReportEntry {
	var entries []ReportEntry
	for _, kr := range r.Kinds {
		for _, change := range kr.Changes {
			entries = append(entries, ReportEntry{
				File:   kr.Kind.Filename(),
				Change: change,
			})
		}
	}
	return entries
}

// Summary returns a one-line human-readable summary of the pass.
func (r *Result) Summary() string {
	if r.Err != nil {
		return fmt.Sprintf("reconciliation failed: %v", r.Err)
	}

	var ok, failed, changed int
	for _, kr := range r.Kinds {
		switch kr.Status {
		case StatusSucceeded:
			ok++
			if len(kr.Changes) > 0 {
				changed++
			}
		case StatusFailed:
			failed++
		}
	}

	var sb strings.Builder
	mode := "reconciled"
	if r.DryRun {
		mode = "dry run:"
	} else if r.Force {
		mode = "force-regenerated"
	}
	fmt.Fprintf(&sb, "%s %d document(s)", mode, ok)
	if changed > 0 {
		fmt.Fprintf(&sb, ", %d with changes", changed)
	}
	if failed > 0 {
		fmt.Fprintf(&sb, ", %d failed (%v)", failed, r.FailedKinds())
	}
	return sb.String()
}
