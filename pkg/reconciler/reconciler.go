// Package reconciler sequences full reconciliation passes: back up
// provenance, then per document kind infer, merge, persist, and re-tag
// provenance, with failures isolated per kind. At most one pass runs
// against a project root at a time; concurrent calls queue.
package reconciler

import (
	"context"
	"sync"
	"time"

	"github.com/ctxkeep/ctxkeep/pkg/docs"
	"github.com/ctxkeep/ctxkeep/pkg/errors"
	"github.com/ctxkeep/ctxkeep/pkg/infer"
	"github.com/ctxkeep/ctxkeep/pkg/logging"
	"github.com/ctxkeep/ctxkeep/pkg/merge"
	"github.com/ctxkeep/ctxkeep/pkg/policy"
	"github.com/ctxkeep/ctxkeep/pkg/provenance"
	"github.com/ctxkeep/ctxkeep/pkg/storage"
)

// step names the phases of the pass state machine, for logs.
type step string

const (
	stepBackingUp  step = "backing_up"
	stepInferring  step = "inferring"
	stepMerging    step = "merging"
	stepPersisting step = "persisting"
	stepTracking   step = "tracking_provenance"
)

// Reconciler orchestrates reconciliation passes over a fixed set of
// document kinds.
type Reconciler struct {
	mu sync.Mutex // serializes passes: queued, never interleaved

	source   infer.Source
	store    storage.Store
	repo     ProvenanceRepository
	policies *policy.Registry
	kinds    []docs.Kind
	now      func() time.Time
}

// New creates a Reconciler. A source, store, and provenance repository must
// be supplied via options.
func New(opts ...Option) (*Reconciler, error) {
	r := &Reconciler{
		policies: policy.NewRegistry(),
		kinds:    docs.AllKinds(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.source == nil {
		return nil, &errors.ValidationError{Field: "source", Message: "inference source is required"}
	}
	if r.store == nil {
		return nil, &errors.ValidationError{Field: "store", Message: "document store is required"}
	}
	if r.repo == nil {
		return nil, &errors.ValidationError{Field: "provenance", Message: "provenance repository is required"}
	}
	return r, nil
}

// Run executes one reconciliation pass and returns its result. The returned
// error mirrors Result.Err: only failures fatal to the whole pass (backup,
// provenance persistence) surface here; per-kind failures are reported in
// the Result and do not stop independent kinds.
func (r *Reconciler) Run(ctx context.Context, opts ...RunOption) (*Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var cfg runConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	log := logging.Ctx(ctx)
	result := &Result{
		StartedAt: r.now(),
		DryRun:    cfg.dryRun,
		Force:     cfg.force,
	}
	defer func() {
		result.FinishedAt = r.now()
	}()

	// Load provenance. A corrupt store is recovered in place: the pass
	// continues with an empty store and degraded merge precision.
	prov, err := r.repo.Load()
	if err != nil {
		if !errors.Is(err, errors.ErrCorruptProvenance) {
			result.Err = err
			return result, err
		}
		log.Warn().Err(err).Msg("provenance store corrupt, reinitialized empty")
		result.Warnings = append(result.Warnings, err.Error())
	}

	// Back up provenance before anything destructive. A dry run mutates
	// nothing, so it takes no snapshot either.
	if !cfg.dryRun {
		log.Debug().Str("step", string(stepBackingUp)).Msg("snapshotting provenance store")
		backupPath, err := r.repo.Snapshot(prov)
		if err != nil {
			log.Error().Err(err).Msg("provenance backup failed, aborting pass")
			result.Err = err
			return result, err
		}
		result.BackupPath = backupPath
	}

	for _, kind := range r.kinds {
		if err := ctx.Err(); err != nil {
			// Cooperative cancellation: stop scheduling further kinds.
			result.Err = err
			return result, err
		}
		result.Kinds = append(result.Kinds, r.runKind(ctx, kind, prov, cfg))
	}

	if !cfg.dryRun {
		if err := r.repo.Save(prov); err != nil {
			log.Error().Err(err).Msg("persisting provenance store failed")
			result.Err = err
			return result, err
		}
	}

	log.Info().
		Bool("dry_run", cfg.dryRun).
		Bool("force", cfg.force).
		Int("kinds", len(result.Kinds)).
		Int("failed", len(result.FailedKinds())).
		Msg("reconciliation pass complete")
	return result, nil
}

// runKind runs the per-kind pipeline: infer, merge, persist, track. Any
// failure aborts the remaining steps for this kind only.
func (r *Reconciler) runKind(ctx context.Context, kind docs.Kind, prov *provenance.Store, cfg runConfig) KindResult {
	ctx = logging.WithKind(ctx, kind.String())
	log := logging.Ctx(ctx)

	log.Debug().Str("step", string(stepInferring)).Msg("inferring document")
	inferred, err := r.source.Infer(ctx, kind)
	if err != nil {
		err = &errors.InferenceError{Kind: kind.String(), Err: err}
		log.Error().Err(err).Msg("inference failed, skipping kind")
		return KindResult{Kind: kind, Status: StatusFailed, Err: err}
	}
	if inferred == nil {
		err = &errors.InferenceError{Kind: kind.String(), Err: errors.ErrInferredMissing}
		log.Error().Err(err).Msg("inference produced no document, skipping kind")
		return KindResult{Kind: kind, Status: StatusFailed, Err: err}
	}

	existing, err := r.store.Read(kind)
	if err != nil && !errors.Is(err, errors.ErrNotFound) {
		log.Error().Err(err).Msg("reading existing document failed, skipping kind")
		return KindResult{Kind: kind, Status: StatusFailed, Err: err}
	}

	merger := merge.New(merge.WithRegistry(r.policies), merge.WithClock(r.now))

	var merged docs.Document
	var changes []merge.Change
	if cfg.force {
		// Force bypasses merging entirely: inferred wins wholesale and no
		// change report is computed.
		merged, _, err = merger.Merge(kind, nil, inferred, nil)
	} else {
		log.Debug().Str("step", string(stepMerging)).Msg("merging documents")
		merged, changes, err = merger.Merge(kind, existing, inferred, prov)
	}
	if err != nil {
		log.Error().Err(err).Msg("merge failed, skipping kind")
		return KindResult{Kind: kind, Status: StatusFailed, Err: err}
	}

	if cfg.dryRun {
		return KindResult{Kind: kind, Status: StatusSucceeded, Changes: changes}
	}

	log.Debug().Str("step", string(stepPersisting)).Msg("writing document")
	if err := r.store.Write(kind, merged); err != nil {
		// Merged result is discarded; provenance for this kind stays as it
		// was so the next pass merges against consistent history.
		err = &errors.PersistenceError{Kind: kind.String(), Err: err}
		log.Error().Err(err).Msg("persisting document failed")
		return KindResult{Kind: kind, Status: StatusFailed, Err: err}
	}

	log.Debug().Str("step", string(stepTracking)).Msg("updating provenance")
	r.trackProvenance(kind, merged, inferred, prov, cfg.force)

	if len(changes) > 0 {
		log.Info().Int("changes", len(changes)).Msg("document reconciled")
	}
	return KindResult{Kind: kind, Status: StatusSucceeded, Changes: changes}
}

// trackProvenance re-tags every field of the merged document for the next
// pass: a field whose serialized value equals what inference produced is
// tagged inferred, even if it was manual before (inference caught up);
// a diverging field is tagged manual so the next merge protects it.
// Set-merged array fields are tagged per element instead of per field.
func (r *Reconciler) trackProvenance(kind docs.Kind, merged, inferred docs.Document, prov *provenance.Store, force bool) {
	if force {
		prov.ClearKind(kind)
	}

	table := r.policies.For(kind)
	for _, field := range docs.Paths(merged) {
		if field == docs.UpdatedAtField {
			continue
		}
		mergedVal, _ := docs.Value(merged, field)
		inferredVal, _ := docs.Value(inferred, field)

		rule, hasRule := table.RuleFor(field)
		if hasRule && (rule.Action == policy.ActionSetUnion || rule.Action == policy.ActionKeyedSet) {
			// The array as a whole always tracks what inference produced;
			// manual retention is recorded per element.
			prov.TrackInferred(kind, field, inferredVal)
			r.trackElements(kind, field, rule, mergedVal, inferredVal, prov)
			continue
		}

		if docs.Equal(mergedVal, inferredVal) {
			prov.TrackInferred(kind, field, inferredVal)
		} else {
			prov.TrackManual(kind, field, mergedVal)
		}
	}
}

// trackElements records element-level provenance for a set-merged field:
// elements the merge kept beyond what inference produced are tagged manual;
// tags for elements inference caught up on (or that are gone) are dropped.
func (r *Reconciler) trackElements(kind docs.Kind, field string, rule policy.Rule, mergedVal, inferredVal any, prov *provenance.Store) {
	mergedElems := elementKeys(rule, mergedVal)
	inferredElems := elementKeys(rule, inferredVal)

	inferredSet := make(map[string]bool, len(inferredElems))
	for _, e := range inferredElems {
		inferredSet[e] = true
	}
	mergedSet := make(map[string]bool, len(mergedElems))
	for _, e := range mergedElems {
		mergedSet[e] = true
	}

	for _, element := range mergedElems {
		path := provenance.ElementPath(field, element)
		if inferredSet[element] {
			prov.Untrack(kind, path)
		} else {
			prov.TrackManual(kind, path, element)
		}
	}
	// Stale tags for elements no longer present at all.
	for _, element := range prov.ManualElements(kind, field) {
		if !mergedSet[element] {
			prov.Untrack(kind, provenance.ElementPath(field, element))
		}
	}
}

// elementKeys lists the identity of each array element: the string itself
// for set-union fields, the stable key field for keyed sets.
func elementKeys(rule policy.Rule, v any) []string {
	if rule.Action == policy.ActionSetUnion {
		elems, _ := docs.StringSlice(v)
		return elems
	}
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	var keys []string
	for _, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			continue
		}
		if k, ok := obj[rule.Key].(string); ok {
			keys = append(keys, k)
		}
	}
	return keys
}
