package local

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"testing"
	"time"

	"github.com/mmcdole/shelf/internal/codec"
	"github.com/spf13/afero"
)

func TestWatch_ReportsRecordChanges(t *testing.T) {
	dir := t.TempDir()
	a := NewAdapter(nil, nil, codec.Markdown{}, nil)
	if _, err := a.connectDir(dir); err != nil {
		t.Fatalf("connectDir failed: %v", err)
	}

	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()

	changes := make(chan Change, 8)
	done := make(chan error, 1)
	go func() {
		done <- a.Watch(ctx, func(c Change) { changes <- c })
	}()

	// The watcher registers asynchronously, so keep touching files until one is seen.
	// The interval must exceed the debounce window or the timer never fires.
	deadline := time.After(10 * time.Second)
	tick := time.NewTicker(4 * watchDebounce)
	defer tick.Stop()
	for {
		select {
		case c := <-changes:
			if !slices.Contains(c.Names, "dune.md") {
				t.Errorf("expected dune.md in change, got %v", c.Names)
			}
			if slices.Contains(c.Names, "notes.txt") {
				t.Errorf("non-record file reported: %v", c.Names)
			}
			cancel()
			if err := <-done; err != nil {
				t.Errorf("Watch returned %v", err)
			}
			return
		case <-tick.C:
			os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0644)
			os.WriteFile(filepath.Join(dir, "dune.md"), []byte("---\ntitle: Dune\ntype: book\n---\n"), 0644)
		case <-deadline:
			t.Fatal("timed out waiting for change")
		}
	}
}

func TestWatch_Unsupported(t *testing.T) {
	a := NewAdapter(nil, nil, codec.Markdown{}, nil)
	a.Connect(afero.NewMemMapFs(), "mem")
	if err := a.Watch(t.Context(), func(Change) {}); !errors.Is(err, ErrWatchUnsupported) {
		t.Errorf("expected ErrWatchUnsupported, got %v", err)
	}
}
