package ctxkeep

import (
	"time"

	"github.com/ctxkeep/ctxkeep/pkg/docs"
	"github.com/ctxkeep/ctxkeep/pkg/errors"
	"github.com/ctxkeep/ctxkeep/pkg/infer"
	"github.com/ctxkeep/ctxkeep/pkg/policy"
	"github.com/ctxkeep/ctxkeep/pkg/reconciler"
	"github.com/ctxkeep/ctxkeep/pkg/storage"
	"github.com/ctxkeep/ctxkeep/pkg/watch"
)

// DefaultContextDir is the directory under the project root that holds the
// context documents, provenance store, and snapshot history.
const DefaultContextDir = ".ctxkeep"

// Option is a function that configures a Client.
type Option func(*config) error

// config collects Client construction settings.
type config struct {
	root           string
	contextDirName string
	debounce       time.Duration
	source         infer.Source
	store          storage.Store
	repo           reconciler.ProvenanceRepository
	registry       *policy.Registry
	kinds          []docs.Kind
}

func defaultConfig() *config {
	return &config{
		root:           ".",
		contextDirName: DefaultContextDir,
		debounce:       watch.DefaultDebounce,
	}
}

// WithRoot sets the project root to scan and watch.
func WithRoot(root string) Option {
	return func(c *config) error {
		if root == "" {
			return &errors.ValidationError{Field: "root", Message: "root must not be empty"}
		}
		c.root = root
		return nil
	}
}

// WithContextDir changes the name of the context directory under the root.
func WithContextDir(name string) Option {
	return func(c *config) error {
		if name == "" {
			return &errors.ValidationError{Field: "context_dir", Message: "context dir must not be empty"}
		}
		c.contextDirName = name
		return nil
	}
}

// WithDebounce sets the watch-mode quiet window.
func WithDebounce(d time.Duration) Option {
	return func(c *config) error {
		c.debounce = d
		return nil
	}
}

// WithSource overrides the inference collaborator. Defaults to the local
// filesystem scanner.
func WithSource(source infer.Source) Option {
	return func(c *config) error {
		c.source = source
		return nil
	}
}

// WithStore overrides document storage. Defaults to JSON files in the
// context directory.
func WithStore(store storage.Store) Option {
	return func(c *config) error {
		c.store = store
		return nil
	}
}

// WithProvenanceRepository overrides provenance persistence. Defaults to a
// JSON file beside the documents.
func WithProvenanceRepository(repo reconciler.ProvenanceRepository) Option {
	return func(c *config) error {
		c.repo = repo
		return nil
	}
}

// WithRegistry overrides the merge policy registry.
func WithRegistry(registry *policy.Registry) Option {
	return func(c *config) error {
		c.registry = registry
		return nil
	}
}

// WithKinds restricts reconciliation to a subset of document kinds.
func WithKinds(kinds ...docs.Kind) Option {
	return func(c *config) error {
		for _, kind := range kinds {
			if !kind.Valid() {
				return &errors.ValidationError{Field: "kind", Value: kind, Message: "unknown document kind"}
			}
		}
		c.kinds = kinds
		return nil
	}
}
