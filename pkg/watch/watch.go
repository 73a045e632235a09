// Package watch triggers reconciliation passes from filesystem activity.
// Events are coalesced with a quiet-period debounce: every event resets the
// timer, and when the window elapses the whole batch becomes one pass. The
// handler runs synchronously in the watch loop, so a batch that becomes
// ready while a pass is running waits for it: passes queue, they never
// interleave.
package watch

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/karrick/godirwalk"

	"github.com/ctxkeep/ctxkeep/pkg/errors"
	"github.com/ctxkeep/ctxkeep/pkg/logging"
)

// DefaultDebounce is the default quiet window before a batch fires.
const DefaultDebounce = 1000 * time.Millisecond

// ignoredDirs are never watched. The context directory is excluded
// separately so a pass's own writes cannot retrigger it.
var ignoredDirs = map[string]bool{
	".git":         true,
	"node_modules": true,
	"vendor":       true,
}

// Handler is invoked once per batch of coalesced events.
type Handler func(ctx context.Context)

// Watcher debounces filesystem events under a project root into
// reconciliation batches.
type Watcher struct {
	root       string
	contextDir string
	debounce   time.Duration
	handler    Handler
	stop       chan struct{}
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithDebounce sets the quiet window.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// WithContextDir names the directory whose writes must not retrigger
// passes, relative to the root (e.g. ".ctxkeep").
func WithContextDir(name string) Option {
	return func(w *Watcher) {
		w.contextDir = name
	}
}

// New creates a Watcher over root that invokes handler per batch.
func New(root string, handler Handler, opts ...Option) (*Watcher, error) {
	if handler == nil {
		return nil, &errors.ValidationError{Field: "handler", Message: "handler is required"}
	}
	w := &Watcher{
		root:       root,
		contextDir: ".ctxkeep",
		debounce:   DefaultDebounce,
		handler:    handler,
		stop:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Stop prevents scheduling of further passes. A pass already running when
// Stop is called completes; Start then returns.
func (w *Watcher) Stop() {
	select {
	case <-w.stop:
	default:
		close(w.stop)
	}
}

// Start watches until the context is canceled or Stop is called. It blocks.
func (w *Watcher) Start(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.WrapIO("watch", w.root, err)
	}
	defer fw.Close()

	if err := w.addRecursive(fw, w.root); err != nil {
		return err
	}

	log := logging.Ctx(ctx)
	log.Info().Str("root", w.root).Dur("debounce", w.debounce).Msg("watching for changes")

	timer := time.NewTimer(w.debounce)
	if !timer.Stop() {
		<-timer.C
	}
	armed := false

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.stop:
			return nil
		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if w.ignored(event.Name) {
				continue
			}
			if event.Op&fsnotify.Create != 0 {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					_ = w.addRecursive(fw, event.Name)
				}
			}
			log.Debug().Str("path", event.Name).Str("op", event.Op.String()).Msg("change observed")
			if armed && !timer.Stop() {
				<-timer.C
			}
			timer.Reset(w.debounce)
			armed = true
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			log.Warn().Err(err).Msg("watch error")
		case <-timer.C:
			armed = false
			log.Debug().Msg("quiet window elapsed, running pass")
			w.handler(ctx)
		}
	}
}

// addRecursive watches dir and every directory below it, skipping ignored
// and hidden directories.
func (w *Watcher) addRecursive(fw *fsnotify.Watcher, dir string) error {
	walkErr := godirwalk.Walk(dir, &godirwalk.Options{
		Unsorted: true,
		Callback: func(pathname string, de *godirwalk.Dirent) error {
			if !de.IsDir() {
				return nil
			}
			name := de.Name()
			if pathname != dir && (ignoredDirs[name] || name == w.contextDir || strings.HasPrefix(name, ".")) {
				return filepath.SkipDir
			}
			return fw.Add(pathname)
		},
		ErrorCallback: func(string, error) godirwalk.ErrorAction {
			return godirwalk.SkipNode
		},
	})
	return errors.WrapIO("watch", dir, walkErr)
}

// ignored reports whether an event path falls under an excluded directory.
func (w *Watcher) ignored(path string) bool {
	rel, err := filepath.Rel(w.root, path)
	if err != nil {
		return false
	}
	for _, part := range strings.Split(filepath.ToSlash(rel), "/") {
		if ignoredDirs[part] || part == w.contextDir || (part != "." && part != ".." && strings.HasPrefix(part, ".")) {
			return true
		}
	}
	return false
}
