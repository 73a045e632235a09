// Package ctxkeep maintains a set of JSON context documents describing a
// codebase (identity, stack, architecture, constraints) and keeps them
// current as the codebase changes, reconciling freshly inferred content
// with manual edits through field-level provenance instead of overwriting
// them.
package ctxkeep

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/ctxkeep/ctxkeep/pkg/docs"
	"github.com/ctxkeep/ctxkeep/pkg/infer"
	"github.com/ctxkeep/ctxkeep/pkg/provenance"
	"github.com/ctxkeep/ctxkeep/pkg/reconciler"
	"github.com/ctxkeep/ctxkeep/pkg/storage"
	"github.com/ctxkeep/ctxkeep/pkg/watch"
)

// Client is the top-level entry point: one client per project root.
type Client interface {
	// Sync runs one reconciliation pass. Pass reconciler.Force() or
	// reconciler.DryRun() to change the mode.
	Sync(ctx context.Context, opts ...reconciler.RunOption) (*reconciler.Result, error)

	// Watch blocks, running a reconciliation pass after each debounced
	// batch of filesystem changes, until the context is canceled or Stop
	// is called.
	Watch(ctx context.Context) error

	// Stop ends watching. A pass already running completes first.
	Stop()

	// Document returns the persisted document of a kind.
	Document(kind docs.Kind) (docs.Document, error)

	// ManualFields returns the field paths of a kind currently protected
	// as manually edited.
	ManualFields(kind docs.Kind) ([]string, error)
}

// client is the internal implementation of the Client interface.
type client struct {
	config  *config
	rec     *reconciler.Reconciler
	store   storage.Store
	repo    reconciler.ProvenanceRepository
	watcher *watch.Watcher
}

// New creates a Client with the given options.
func New(opts ...Option) (Client, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, fmt.Errorf("applying options: %w", err)
		}
	}

	contextDir := filepath.Join(cfg.root, cfg.contextDirName)

	store := cfg.store
	if store == nil {
		store = storage.NewFileStore(contextDir)
	}
	repo := cfg.repo
	if repo == nil {
		repo = provenance.NewRepository(contextDir)
	}
	source := cfg.source
	if source == nil {
		source = infer.NewScanner(cfg.root)
	}

	recOpts := []reconciler.Option{
		reconciler.WithSource(source),
		reconciler.WithStore(store),
		reconciler.WithProvenance(repo),
	}
	if cfg.registry != nil {
		recOpts = append(recOpts, reconciler.WithRegistry(cfg.registry))
	}
	if len(cfg.kinds) > 0 {
		recOpts = append(recOpts, reconciler.WithKinds(cfg.kinds...))
	}
	rec, err := reconciler.New(recOpts...)
	if err != nil {
		return nil, fmt.Errorf("creating reconciler: %w", err)
	}

	watcher, err := watch.New(cfg.root,
		func(ctx context.Context) {
			// Watch-triggered passes always merge; force/dry-run are
			// interactive modes.
			_, _ = rec.Run(ctx)
		},
		watch.WithDebounce(cfg.debounce),
		watch.WithContextDir(cfg.contextDirName),
	)
	if err != nil {
		return nil, fmt.Errorf("creating watcher: %w", err)
	}

	return &client{
		config:  cfg,
		rec:     rec,
		store:   store,
		repo:    repo,
		watcher: watcher,
	}, nil
}

// Sync runs one reconciliation pass.
func (c *client) Sync(ctx context.Context, opts ...reconciler.RunOption) (*reconciler.Result, error) {
	return c.rec.Run(ctx, opts...)
}

// Watch blocks, reconciling after each debounced batch of changes.
func (c *client) Watch(ctx context.Context) error {
	return c.watcher.Start(ctx)
}

// Stop ends watching.
func (c *client) Stop() {
	c.watcher.Stop()
}

// Document returns the persisted document of a kind.
func (c *client) Document(kind docs.Kind) (docs.Document, error) {
	return c.store.Read(kind)
}

// ManualFields returns the manually protected field paths of a kind.
func (c *client) ManualFields(kind docs.Kind) ([]string, error) {
	prov, err := c.repo.Load()
	if err != nil {
		return nil, err
	}
	return prov.ManualFieldPaths(kind), nil
}
