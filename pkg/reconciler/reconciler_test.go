package reconciler_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ctxkeep/ctxkeep/pkg/docs"
	"github.com/ctxkeep/ctxkeep/pkg/errors"
	"github.com/ctxkeep/ctxkeep/pkg/infer"
	"github.com/ctxkeep/ctxkeep/pkg/provenance"
	"github.com/ctxkeep/ctxkeep/pkg/reconciler"
	"github.com/ctxkeep/ctxkeep/pkg/storage"
)

var testTime = time.Date(2026, 2, 14, 12, 0, 0, 0, time.UTC)

func testClock() time.Time { return testTime }

// memRepo is an in-memory ProvenanceRepository. The store pointer is shared
// across Load calls, so provenance persists between passes like a file would.
type memRepo struct {
	store       *provenance.Store
	loadErr     error
	snapshotErr error
	saveErr     error
	snapshots   int
	saves       int
}

func newMemRepo() *memRepo {
	return &memRepo{store: provenance.NewStore(provenance.WithClock(testClock))}
}

func (r *memRepo) Load() (*provenance.Store, error) {
	if r.loadErr != nil {
		return provenance.NewStore(provenance.WithClock(testClock)), r.loadErr
	}
	return r.store, nil
}

func (r *memRepo) Save(store *provenance.Store) error {
	if r.saveErr != nil {
		return r.saveErr
	}
	r.saves++
	r.store = store
	return nil
}

func (r *memRepo) Snapshot(*provenance.Store) (string, error) {
	if r.snapshotErr != nil {
		return "", r.snapshotErr
	}
	r.snapshots++
	return "mem://snapshot", nil
}

// fakeSource serves canned documents per kind, with optional per-kind
// failures.
type fakeSource struct {
	byKind map[docs.Kind]docs.Document
	errs   map[docs.Kind]error
}

func (s *fakeSource) Infer(_ context.Context, kind docs.Kind) (docs.Document, error) {
	if err := s.errs[kind]; err != nil {
		return nil, err
	}
	return docs.Clone(s.byKind[kind]), nil
}

func newReconciler(t *testing.T, source infer.Source, store storage.Store, repo reconciler.ProvenanceRepository, opts ...reconciler.Option) *reconciler.Reconciler {
	t.Helper()
	opts = append([]reconciler.Option{
		reconciler.WithSource(source),
		reconciler.WithStore(store),
		reconciler.WithProvenance(repo),
		reconciler.WithClock(testClock),
	}, opts...)
	rec, err := reconciler.New(opts...)
	require.NoError(t, err)
	return rec
}

func TestNewRequiresCollaborators(t *testing.T) {
	source := &fakeSource{}
	store := storage.NewMemoryStore()
	repo := newMemRepo()

	tests := []struct {
		name string
		opts []reconciler.Option
	}{
		{name: "missing source", opts: []reconciler.Option{reconciler.WithStore(store), reconciler.WithProvenance(repo)}},
		{name: "missing store", opts: []reconciler.Option{reconciler.WithSource(source), reconciler.WithProvenance(repo)}},
		{name: "missing provenance", opts: []reconciler.Option{reconciler.WithSource(source), reconciler.WithStore(store)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := reconciler.New(tt.opts...)
			require.Error(t, err)
			assert.ErrorIs(t, err, errors.ErrInvalidInput)
		})
	}
}

func TestRunFirstPass(t *testing.T) {
	source := &fakeSource{byKind: map[docs.Kind]docs.Document{
		docs.KindProject:      {"name": "demo"},
		docs.KindStack:        {"language": "Go"},
		docs.KindArchitecture: {"style": "library"},
		docs.KindConstraints:  {"security": "no secrets in repo"},
	}}
	store := storage.NewMemoryStore()
	repo := newMemRepo()
	rec := newReconciler(t, source, store, repo)

	result, err := rec.Run(context.Background())
	require.NoError(t, err)
	require.True(t, result.Succeeded())
	assert.Len(t, result.Kinds, 4)
	assert.True(t, result.HasChanges())
	assert.Equal(t, "mem://snapshot", result.BackupPath)
	assert.Equal(t, 1, repo.snapshots)
	assert.Equal(t, 1, repo.saves)

	for kind, want := range source.byKind {
		doc, err := store.Read(kind)
		require.NoError(t, err, kind)
		for field := range want {
			got, ok := docs.Value(doc, field)
			require.True(t, ok, "%s.%s missing", kind, field)
			assert.Equal(t, want[field], got)
		}
		stamp, ok := docs.Value(doc, docs.UpdatedAtField)
		require.True(t, ok)
		assert.Equal(t, testTime.Format(time.RFC3339), stamp)
	}
}

func TestRunPreservesManualEditAcrossPasses(t *testing.T) {
	source := &fakeSource{byKind: map[docs.Kind]docs.Document{
		docs.KindProject: {"name": "demo", "description": "a scanned description"},
	}}
	store := storage.NewMemoryStore()
	repo := newMemRepo()
	rec := newReconciler(t, source, store, repo, reconciler.WithKinds(docs.KindProject))

	_, err := rec.Run(context.Background())
	require.NoError(t, err)

	// A human edits the persisted document between passes.
	doc, err := store.Read(docs.KindProject)
	require.NoError(t, err)
	docs.SetValue(doc, "description", "my own words")
	require.NoError(t, store.Write(docs.KindProject, doc))

	result, err := rec.Run(context.Background())
	require.NoError(t, err)
	require.True(t, result.Succeeded())

	doc, err = store.Read(docs.KindProject)
	require.NoError(t, err)
	desc, _ := docs.Value(doc, "description")
	assert.Equal(t, "my own words", desc, "hand edit must survive the next pass")

	// The tracking step tagged the field, so later passes protect it too.
	assert.True(t, repo.store.IsManual(docs.KindProject, "description"))
	assert.Contains(t, repo.store.ManualFieldPaths(docs.KindProject), "description")

	_, err = rec.Run(context.Background())
	require.NoError(t, err)
	doc, err = store.Read(docs.KindProject)
	require.NoError(t, err)
	desc, _ = docs.Value(doc, "description")
	assert.Equal(t, "my own words", desc)
}

func TestRunTracksSetUnionElements(t *testing.T) {
	source := &fakeSource{byKind: map[docs.Kind]docs.Document{
		docs.KindStack: {"language": "Go", "frameworks": []any{"React"}},
	}}
	store := storage.NewMemoryStore()
	repo := newMemRepo()
	rec := newReconciler(t, source, store, repo, reconciler.WithKinds(docs.KindStack))

	_, err := rec.Run(context.Background())
	require.NoError(t, err)

	// Hand-add a framework the scanner cannot see.
	doc, err := store.Read(docs.KindStack)
	require.NoError(t, err)
	docs.SetValue(doc, "frameworks", []any{"React", "Remix"})
	require.NoError(t, store.Write(docs.KindStack, doc))

	// Inference moves on; the hand-added entry must ride along.
	source.byKind[docs.KindStack] = docs.Document{"language": "Go", "frameworks": []any{"React", "Next.js"}}
	_, err = rec.Run(context.Background())
	require.NoError(t, err)

	doc, err = store.Read(docs.KindStack)
	require.NoError(t, err)
	frameworks, _ := docs.Value(doc, "frameworks")
	got, ok := docs.StringSlice(frameworks)
	require.True(t, ok)
	assert.Equal(t, []string{"React", "Next.js", "Remix"}, got)

	// Element-level tags: Remix manual, the machine-detected ones not.
	assert.Equal(t, []string{"Remix"}, repo.store.ManualElements(docs.KindStack, "frameworks"))
	assert.False(t, repo.store.IsManual(docs.KindStack, "frameworks"), "the array as a whole is never manual")

	// Once inference drops React, it goes; Remix stays.
	source.byKind[docs.KindStack] = docs.Document{"language": "Go", "frameworks": []any{"Next.js"}}
	_, err = rec.Run(context.Background())
	require.NoError(t, err)

	doc, err = store.Read(docs.KindStack)
	require.NoError(t, err)
	frameworks, _ = docs.Value(doc, "frameworks")
	got, _ = docs.StringSlice(frameworks)
	assert.Equal(t, []string{"Next.js", "Remix"}, got)
}

func TestRunForce(t *testing.T) {
	source := &fakeSource{byKind: map[docs.Kind]docs.Document{
		docs.KindProject: {"name": "demo", "description": "a scanned description"},
	}}
	store := storage.NewMemoryStore()
	repo := newMemRepo()
	rec := newReconciler(t, source, store, repo, reconciler.WithKinds(docs.KindProject))

	_, err := rec.Run(context.Background())
	require.NoError(t, err)

	doc, err := store.Read(docs.KindProject)
	require.NoError(t, err)
	docs.SetValue(doc, "description", "my own words")
	require.NoError(t, store.Write(docs.KindProject, doc))
	_, err = rec.Run(context.Background())
	require.NoError(t, err)
	require.True(t, repo.store.IsManual(docs.KindProject, "description"))

	// Force throws the hand edit and its tag away.
	result, err := rec.Run(context.Background(), reconciler.Force())
	require.NoError(t, err)
	require.True(t, result.Succeeded())
	assert.True(t, result.Force)
	assert.False(t, result.HasChanges(), "force passes produce no change report")

	doc, err = store.Read(docs.KindProject)
	require.NoError(t, err)
	desc, _ := docs.Value(doc, "description")
	assert.Equal(t, "a scanned description", desc)
	assert.False(t, repo.store.IsManual(docs.KindProject, "description"))
}

func TestRunDryRun(t *testing.T) {
	source := &fakeSource{byKind: map[docs.Kind]docs.Document{
		docs.KindProject: {"name": "demo"},
	}}
	store := storage.NewMemoryStore()
	repo := newMemRepo()
	rec := newReconciler(t, source, store, repo, reconciler.WithKinds(docs.KindProject))

	result, err := rec.Run(context.Background(), reconciler.DryRun())
	require.NoError(t, err)
	require.True(t, result.Succeeded())
	assert.True(t, result.DryRun)
	assert.True(t, result.HasChanges(), "dry run still reports what would change")

	_, err = store.Read(docs.KindProject)
	assert.ErrorIs(t, err, errors.ErrNotFound, "dry run must not write documents")
	assert.Zero(t, repo.snapshots, "dry run must not snapshot")
	assert.Zero(t, repo.saves, "dry run must not persist provenance")
}

func TestRunIsolatesKindFailures(t *testing.T) {
	source := &fakeSource{
		byKind: map[docs.Kind]docs.Document{
			docs.KindProject:      {"name": "demo"},
			docs.KindArchitecture: {"style": "library"},
			docs.KindConstraints:  {"security": "tls everywhere"},
		},
		errs: map[docs.Kind]error{
			docs.KindStack: errors.New("scanner exploded"),
		},
	}
	store := storage.NewMemoryStore()
	repo := newMemRepo()
	rec := newReconciler(t, source, store, repo)

	result, err := rec.Run(context.Background())
	require.NoError(t, err, "a single kind's failure is not fatal to the pass")
	assert.False(t, result.Succeeded())
	assert.Equal(t, []docs.Kind{docs.KindStack}, result.FailedKinds())

	for _, kind := range []docs.Kind{docs.KindProject, docs.KindArchitecture, docs.KindConstraints} {
		_, err := store.Read(kind)
		assert.NoError(t, err, "%s should have been written despite stack failing", kind)
	}
	_, err = store.Read(docs.KindStack)
	assert.ErrorIs(t, err, errors.ErrNotFound)
	assert.Equal(t, 1, repo.saves, "provenance for healthy kinds is still persisted")
}

func TestRunNilInferredFailsKind(t *testing.T) {
	source := &fakeSource{byKind: map[docs.Kind]docs.Document{}}
	store := storage.NewMemoryStore()
	repo := newMemRepo()
	rec := newReconciler(t, source, store, repo, reconciler.WithKinds(docs.KindProject))

	result, err := rec.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, result.Kinds, 1)
	assert.Equal(t, reconciler.StatusFailed, result.Kinds[0].Status)
	assert.ErrorIs(t, result.Kinds[0].Err, errors.ErrInferredMissing)
}

func TestRunBackupFailureIsFatal(t *testing.T) {
	source := &fakeSource{byKind: map[docs.Kind]docs.Document{
		docs.KindProject: {"name": "demo"},
	}}
	store := storage.NewMemoryStore()
	repo := newMemRepo()
	repo.snapshotErr = &errors.BackupError{Path: "mem://history", Err: errors.New("disk full")}
	rec := newReconciler(t, source, store, repo, reconciler.WithKinds(docs.KindProject))

	result, err := rec.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrBackupFailed)
	assert.Empty(t, result.Kinds, "no kind runs after a failed backup")

	_, err = store.Read(docs.KindProject)
	assert.ErrorIs(t, err, errors.ErrNotFound)
}

func TestRunRecoversCorruptProvenance(t *testing.T) {
	source := &fakeSource{byKind: map[docs.Kind]docs.Document{
		docs.KindProject: {"name": "demo"},
	}}
	store := storage.NewMemoryStore()
	repo := newMemRepo()
	repo.loadErr = &errors.CorruptProvenanceError{Path: "mem://provenance.json", Err: errors.New("bad json")}
	rec := newReconciler(t, source, store, repo, reconciler.WithKinds(docs.KindProject))

	result, err := rec.Run(context.Background())
	require.NoError(t, err, "corrupt provenance is recovered, not fatal")
	require.True(t, result.Succeeded())
	require.Len(t, result.Warnings, 1)
	assert.Contains(t, result.Warnings[0], "corrupt")

	_, err = store.Read(docs.KindProject)
	assert.NoError(t, err)
}

func TestRunCanceledContext(t *testing.T) {
	source := &fakeSource{byKind: map[docs.Kind]docs.Document{
		docs.KindProject: {"name": "demo"},
	}}
	rec := newReconciler(t, source, storage.NewMemoryStore(), newMemRepo())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := rec.Run(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, result.Kinds)
}

func TestResultSummaryAndReport(t *testing.T) {
	source := &fakeSource{byKind: map[docs.Kind]docs.Document{
		docs.KindProject: {"name": "demo"},
	}}
	store := storage.NewMemoryStore()
	rec := newReconciler(t, source, store, newMemRepo(), reconciler.WithKinds(docs.KindProject))

	result, err := rec.Run(context.Background())
	require.NoError(t, err)

	report := result.Report()
	require.NotEmpty(t, report)
	assert.Equal(t, "project.json", report[0].File)
	assert.Contains(t, result.Summary(), "1 document(s)")
}
