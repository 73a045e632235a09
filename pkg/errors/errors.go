// Package errors provides custom error types for the ctxkeep system.
// These errors enable programmatic error checking and carry enough context
// to attribute a failure to one document kind, which the reconciler relies
// on to isolate failures per kind.
package errors

import (
	"errors"
	"fmt"
)

// New returns an error that formats as the given text.
// It's an alias for the standard library errors.New for convenience.
var New = errors.New

// Is reports whether any error in err's tree matches target.
// It's an alias for the standard library errors.Is.
var Is = errors.Is

// As finds the first error in err's tree that matches target.
// It's an alias for the standard library errors.As.
var As = errors.As

// Common sentinel errors for the ctxkeep system
var (
	// ErrNotFound indicates that a requested document or record was not found
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput indicates that provided input was invalid
	ErrInvalidInput = errors.New("invalid input")

	// ErrInferredMissing indicates that inference produced no document.
	// Merging must fail loudly in this case rather than silently keeping
	// the existing document, which would mask inference errors.
	ErrInferredMissing = errors.New("inferred document missing")

	// ErrBackupFailed indicates the provenance snapshot could not be written
	ErrBackupFailed = errors.New("provenance backup failed")

	// ErrCorruptProvenance indicates the provenance store file was unreadable
	ErrCorruptProvenance = errors.New("corrupt provenance store")

	// ErrPassInFlight indicates a reconciliation pass is already running
	ErrPassInFlight = errors.New("reconciliation pass already in flight")

	// ErrStopped indicates that a watcher or runner has been stopped
	ErrStopped = errors.New("stopped")
)

// NotFoundError represents an error when a document or record is not found
type NotFoundError struct {
	Resource string
	ID       string
}

// Error implements the error interface
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Resource, e.ID)
}

// Is implements errors.Is support
func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// ValidationError represents a validation failure
type ValidationError struct {
	Field   string
	Value   any
	Message string
}

// Error implements the error interface
func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation failed for field %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation failed: %s", e.Message)
}

// Is implements errors.Is support
func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidInput
}

// IOError represents a filesystem operation failure
type IOError struct {
	Op   string // Operation: "read", "write", "rename", "mkdir"
	Path string
	Err  error
}

// Error implements the error interface
func (e *IOError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

// Unwrap implements errors.Unwrap
func (e *IOError) Unwrap() error {
	return e.Err
}

// ParseError represents a failure to parse serialized data
type ParseError struct {
	Format string // "json", "yaml"
	Path   string // Optional file path
	Err    error
}

// Error implements the error interface
func (e *ParseError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("parsing %s file %s: %v", e.Format, e.Path, e.Err)
	}
	return fmt.Sprintf("parsing %s: %v", e.Format, e.Err)
}

// Unwrap implements errors.Unwrap
func (e *ParseError) Unwrap() error {
	return e.Err
}

// BackupError indicates the provenance store snapshot failed. It is fatal
// to the entire reconciliation pass: merging against desynchronized
// provenance is never attempted.
type BackupError struct {
	Path string
	Err  error
}

// Error implements the error interface
func (e *BackupError) Error() string {
	return fmt.Sprintf("provenance backup to %s failed: %v", e.Path, e.Err)
}

// Unwrap implements errors.Unwrap
func (e *BackupError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is support
func (e *BackupError) Is(target error) bool {
	return target == ErrBackupFailed
}

// InferenceError indicates inference failed for one document kind. The kind
// is skipped for the remainder of the pass; other kinds proceed.
type InferenceError struct {
	Kind string
	Err  error
}

// Error implements the error interface
func (e *InferenceError) Error() string {
	return fmt.Sprintf("inferring %s document: %v", e.Kind, e.Err)
}

// Unwrap implements errors.Unwrap
func (e *InferenceError) Unwrap() error {
	return e.Err
}

// PersistenceError indicates a merged document could not be written. The
// merged result for that kind is discarded and its provenance left untouched.
type PersistenceError struct {
	Kind string
	Path string
	Err  error
}

// Error implements the error interface
func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persisting %s document to %s: %v", e.Kind, e.Path, e.Err)
}

// Unwrap implements errors.Unwrap
func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// CorruptProvenanceError indicates the provenance store file exists but
// could not be parsed. Recovery is local: the store is reinitialized empty
// and the pass continues with every field behaving as freshly inferred.
type CorruptProvenanceError struct {
	Path string
	Err  error
}

// Error implements the error interface
func (e *CorruptProvenanceError) Error() string {
	return fmt.Sprintf("provenance store %s is corrupt: %v", e.Path, e.Err)
}

// Unwrap implements errors.Unwrap
func (e *CorruptProvenanceError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is support
func (e *CorruptProvenanceError) Is(target error) bool {
	return target == ErrCorruptProvenance
}

// WrapIO wraps a filesystem error with operation and path context, returning
// nil if err is nil.
func WrapIO(op, path string, err error) error {
	if err == nil {
		return nil
	}
	return &IOError{Op: op, Path: path, Err: err}
}
