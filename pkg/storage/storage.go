// Package storage persists context documents as two-space-indented UTF-8
// JSON files, one per document kind, with a memory-backed implementation
// for tests and embedders.
package storage

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/ctxkeep/ctxkeep/pkg/docs"
	"github.com/ctxkeep/ctxkeep/pkg/errors"
)

const (
	filePerm = 0o644
	dirPerm  = 0o755
)

// Store reads and writes context documents. Read returns ErrNotFound for a
// kind that has never been written.
type Store interface {
	Read(kind docs.Kind) (docs.Document, error)
	Write(kind docs.Kind, doc docs.Document) error
}

// FileStore persists documents under a single directory, one file per kind.
// Writes are all-or-nothing: serialized to a temp file, then renamed over
// the target.
type FileStore struct {
	dir string
}

// NewFileStore creates a store rooted at dir (the context directory).
func NewFileStore(dir string) *FileStore {
	return &FileStore{dir: dir}
}

// Dir returns the directory documents are stored in.
func (s *FileStore) Dir() string {
	return s.dir
}

// Path returns the location of the document file for a kind.
func (s *FileStore) Path(kind docs.Kind) string {
	return filepath.Join(s.dir, kind.Filename())
}

// Read loads the document of a kind.
func (s *FileStore) Read(kind docs.Kind) (docs.Document, error) {
	path := s.Path(kind)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, &errors.NotFoundError{Resource: "document", ID: kind.String()}
	}
	if err != nil {
		return nil, errors.WrapIO("read", path, err)
	}

	var doc docs.Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, &errors.ParseError{Format: "json", Path: path, Err: err}
	}
	return doc, nil
}

// Write persists the document of a kind atomically.
func (s *FileStore) Write(kind docs.Kind, doc docs.Document) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return &errors.ParseError{Format: "json", Path: s.Path(kind), Err: err}
	}

	if err := os.MkdirAll(s.dir, dirPerm); err != nil {
		return errors.WrapIO("mkdir", s.dir, err)
	}

	path := s.Path(kind)
	tmp, err := os.CreateTemp(s.dir, kind.Filename()+".tmp-*")
	if err != nil {
		return errors.WrapIO("write", path, err)
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
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return errors.WrapIO("rename", path, err)
	}
	return nil
}

// MemoryStore is an in-memory Store for tests and dry wiring.
type MemoryStore struct {
	mu     sync.RWMutex
	byKind map[docs.Kind]docs.Document
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byKind: make(map[docs.Kind]docs.Document)}
}

// Read loads the document of a kind.
func (s *MemoryStore) Read(kind docs.Kind) (docs.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.byKind[kind]
	if !ok {
		return nil, &errors.NotFoundError{Resource: "document", ID: kind.String()}
	}
	return docs.Clone(doc), nil
}

// Write stores the document of a kind.
func (s *MemoryStore) Write(kind docs.Kind, doc docs.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byKind[kind] = docs.Clone(doc)
	return nil
}
