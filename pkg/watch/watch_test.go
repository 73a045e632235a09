package watch_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ctxkeep/ctxkeep/pkg/watch"
)

func TestNewRequiresHandler(t *testing.T) {
	if _, err := watch.New(t.TempDir(), nil); err == nil {
		t.Fatal("a nil handler should be rejected")
	}
}

// startWatcher runs a watcher in the background and returns the channel its
// handler signals on plus a shutdown function.
func startWatcher(t *testing.T, root string, opts ...watch.Option) (<-chan struct{}, func()) {
	t.Helper()

	fired := make(chan struct{}, 16)
	w, err := watch.New(root, func(context.Context) {
		fired <- struct{}{}
	}, opts...)
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- w.Start(ctx)
	}()

	// Give the watcher a moment to register its directories.
	time.Sleep(100 * time.Millisecond)

	return fired, func() {
		w.Stop()
		cancel()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Error("watcher did not stop")
		}
	}
}

func TestWatcherCoalescesBursts(t *testing.T) {
	root := t.TempDir()
	fired, shutdown := startWatcher(t, root, watch.WithDebounce(100*time.Millisecond))
	defer shutdown()

	// A burst of writes inside one quiet window becomes a single pass.
	for i := 0; i < 3; i++ {
		if err := os.WriteFile(filepath.Join(root, "main.go"), []byte("package main\n"), 0o644); err != nil {
			t.Fatal(err)
		}
		time.Sleep(20 * time.Millisecond)
	}

	select {
	case <-fired:
	case <-time.After(3 * time.Second):
		t.Fatal("expected a pass after the quiet window")
	}

	select {
	case <-fired:
		t.Error("burst should have been coalesced into one pass")
	case <-time.After(300 * time.Millisecond):
	}
}

func TestWatcherIgnoresContextDir(t *testing.T) {
	root := t.TempDir()
	contextDir := filepath.Join(root, ".ctxkeep")
	if err := os.MkdirAll(contextDir, 0o755); err != nil {
		t.Fatal(err)
	}

	fired, shutdown := startWatcher(t, root, watch.WithDebounce(100*time.Millisecond))
	defer shutdown()

	// A pass's own writes land here; they must not retrigger a pass.
	if err := os.WriteFile(filepath.Join(contextDir, "stack.json"), []byte("{}\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case <-fired:
		t.Error("writes to the context directory must not trigger a pass")
	case <-time.After(400 * time.Millisecond):
	}
}

func TestWatcherStopUnblocksStart(t *testing.T) {
	w, err := watch.New(t.TempDir(), func(context.Context) {})
	if err != nil {
		t.Fatal(err)
	}

	done := make(chan error, 1)
	go func() {
		done <- w.Start(context.Background())
	}()

	time.Sleep(50 * time.Millisecond)
	w.Stop()
	w.Stop() // idempotent

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Start after Stop should return nil, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Start did not return after Stop")
	}
}
