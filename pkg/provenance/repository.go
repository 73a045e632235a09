package provenance

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/ctxkeep/ctxkeep/pkg/errors"
)

const (
	// StoreFilename is the on-disk name of the live provenance store.
	StoreFilename = "provenance.json"

	// HistoryDirname holds timestamped snapshot backups of the store.
	HistoryDirname = "history"

	// snapshotTimeFormat produces lexically sortable backup filenames.
	snapshotTimeFormat = "20060102T150405.000"

	filePerm = 0o644
	dirPerm  = 0o755
)

// Repository persists a Store as a single JSON file, with timestamped
// snapshot backups in a history directory beside it. The live store is
// overwritten in place after each reconciliation pass.
type Repository struct {
	dir string
	now func() time.Time
}

// RepositoryOption configures a Repository.
type RepositoryOption func(*Repository)

// WithRepositoryClock overrides the repository's time source, for tests.
func WithRepositoryClock(now func() time.Time) RepositoryOption {
	return func(r *Repository) {
		r.now = now
	}
}

// NewRepository creates a repository rooted at dir (the context directory,
// e.g. <project>/.ctxkeep).
func NewRepository(dir string, opts ...RepositoryOption) *Repository {
	r := &Repository{dir: dir, now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Path returns the location of the live store file.
func (r *Repository) Path() string {
	return filepath.Join(r.dir, StoreFilename)
}

// HistoryDir returns the location of snapshot backups.
func (r *Repository) HistoryDir() string {
	return filepath.Join(r.dir, HistoryDirname)
}

// Load reads the live store. A missing file yields a fresh empty store. A
// corrupt file also yields a fresh empty store, together with a
// CorruptProvenanceError the caller should log: recovery is local and never
// fatal, it only degrades merge precision for the run.
func (r *Repository) Load() (*Store, error) {
	path := r.Path()
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return NewStore(WithClock(r.now)), nil
	}
	if err != nil {
		return NewStore(WithClock(r.now)), &CorruptReadError{path: path, err: err}
	}

	var store Store
	if err := json.Unmarshal(data, &store); err != nil {
		return NewStore(WithClock(r.now)), &errors.CorruptProvenanceError{Path: path, Err: err}
	}
	store.now = r.now
	if store.Version == "" {
		store.Version = StoreVersion
	}
	return &store, nil
}

// CorruptReadError wraps an unreadable (as opposed to unparseable) store
// file. It matches ErrCorruptProvenance like its parse counterpart.
type CorruptReadError struct {
	path string
	err  error
}

// Error implements the error interface.
func (e *CorruptReadError) Error() string {
	return (&errors.CorruptProvenanceError{Path: e.path, Err: e.err}).Error()
}

// Unwrap implements errors.Unwrap.
func (e *CorruptReadError) Unwrap() error { return e.err }

// Is implements errors.Is support.
func (e *CorruptReadError) Is(target error) bool {
	return target == errors.ErrCorruptProvenance
}

// Save atomically overwrites the live store: serialized to a temp file in
// the same directory, then renamed over the target. LastUpdateAt is stamped
// before writing.
func (r *Repository) Save(store *Store) error {
	store.LastUpdateAt = r.now()

	data, err := json.MarshalIndent(store, "", "  ")
	if err != nil {
		return &errors.ParseError{Format: "json", Path: r.Path(), Err: err}
	}

	if err := os.MkdirAll(r.dir, dirPerm); err != nil {
		return errors.WrapIO("mkdir", r.dir, err)
	}

	tmp, err := os.CreateTemp(r.dir, StoreFilename+".tmp-*")
	if err != nil {
		return errors.WrapIO("write", r.Path(), err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return errors.WrapIO("write", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return errors.WrapIO("write", tmpName, err)
	}
	if err := os.Chmod(tmpName, filePerm); err != nil {
		os.Remove(tmpName)
		return errors.WrapIO("write", tmpName, err)
	}
	if err := os.Rename(tmpName, r.Path()); err != nil {
		os.Remove(tmpName)
		return errors.WrapIO("rename", r.Path(), err)
	}
	return nil
}

// Snapshot writes a timestamped, immutable copy of the store into the
// history directory and returns its path. Snapshot failure must abort a
// reconciliation pass, so any error here is a BackupError.
func (r *Repository) Snapshot(store *Store) (string, error) {
	if err := os.MkdirAll(r.HistoryDir(), dirPerm); err != nil {
		return "", &errors.BackupError{Path: r.HistoryDir(), Err: err}
	}

	data, err := json.MarshalIndent(store, "", "  ")
	if err != nil {
		return "", &errors.BackupError{Path: r.HistoryDir(), Err: err}
	}

	name := "provenance-" + r.now().UTC().Format(snapshotTimeFormat) + ".json"
	path := filepath.Join(r.HistoryDir(), name)
	if err := os.WriteFile(path, append(data, '\n'), filePerm); err != nil {
		return "", &errors.BackupError{Path: path, Err: err}
	}
	return path, nil
}
