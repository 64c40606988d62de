package local

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/mmcdole/shelf/internal/domain"
)

// ErrWatchUnsupported is returned when the folder handle is not backed by an OS directory
var ErrWatchUnsupported = errors.New("watching is only supported for OS directories")

const watchDebounce = 250 * time.Millisecond

// Change lists the record files touched during one debounce window
type Change struct {
	Names []string
}

// Watch reports changes to markdown files in the connected directory until ctx is done.
// Bursts of events are coalesced into a single Change.
func (a *Adapter) Watch(ctx context.Context, onChange func(Change)) error {
	a.mu.Lock()
	root, dir := a.root, a.dir
	a.mu.Unlock()

	if root == nil {
		return domain.ErrNotConnected
	}
	if dir == "" {
		return ErrWatchUnsupported
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(dir); err != nil {
		return mapErr(err, dir)
	}
	a.logger.Debug("watching folder", "dir", dir)

	pending := make(map[string]struct{})
	timer := time.NewTimer(watchDebounce)
	timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			name := filepath.Base(ev.Name)
			if !domain.IsRecordName(name) {
				continue
			}
			if ev.Op == fsnotify.Chmod {
				continue
			}
			pending[name] = struct{}{}
			timer.Reset(watchDebounce)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			a.logger.Warn("watcher error", "error", err)

		case <-timer.C:
			if len(pending) == 0 {
				continue
			}
			names := make([]string, 0, len(pending))
			for name := range pending {
				names = append(names, name)
			}
			slices.Sort(names)
			clear(pending)
			onChange(Change{Names: names})
		}
	}
}
