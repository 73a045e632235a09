package reconciler

import (
	"time"

	"github.com/ctxkeep/ctxkeep/pkg/docs"
	"github.com/ctxkeep/ctxkeep/pkg/infer"
	"github.com/ctxkeep/ctxkeep/pkg/policy"
	"github.com/ctxkeep/ctxkeep/pkg/provenance"
	"github.com/ctxkeep/ctxkeep/pkg/storage"
)

// ProvenanceRepository abstracts provenance persistence so tests can hand
// the reconciler an in-memory implementation. provenance.Repository is the
// file-backed one.
type ProvenanceRepository interface {
	Load() (*provenance.Store, error)
	Save(store *provenance.Store) error
	Snapshot(store *provenance.Store) (string, error)
}

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithSource sets the inference collaborator.
func WithSource(source infer.Source) Option {
	return func(r *Reconciler) {
		r.source = source
	}
}

// WithStore sets the document storage collaborator.
func WithStore(store storage.Store) Option {
	return func(r *Reconciler) {
		r.store = store
	}
}

// WithProvenance sets the provenance repository.
func WithProvenance(repo ProvenanceRepository) Option {
	return func(r *Reconciler) {
		r.repo = repo
	}
}

// WithRegistry overrides the merge policy registry.
func WithRegistry(registry *policy.Registry) Option {
	return func(r *Reconciler) {
		r.policies = registry
	}
}

// WithKinds restricts a reconciler to a subset of document kinds, in the
// given order. Defaults to all four kinds in canonical order.
func WithKinds(kinds ...docs.Kind) Option {
	return func(r *Reconciler) {
		r.kinds = kinds
	}
}

// WithClock overrides the reconciler's time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(r *Reconciler) {
		r.now = now
	}
}

// RunOption configures a single reconciliation pass.
type RunOption func(*runConfig)

type runConfig struct {
	force  bool
	dryRun bool
}

// Force makes the pass bypass merging entirely: every document becomes the
// freshly inferred one, provenance is retagged inferred from scratch.
// Documents outside the regenerated set are never touched.
func Force() RunOption {
	return func(cfg *runConfig) {
		cfg.force = true
	}
}

// DryRun makes the pass stop after merging: the change report is produced
// but documents and provenance are left untouched on disk, including the
// backup snapshot.
func DryRun() RunOption {
	return func(cfg *runConfig) {
		cfg.dryRun = true
	}
}
