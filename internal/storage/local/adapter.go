// Package local stores catalog items as markdown files in a user-granted directory.
package local

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/mmcdole/shelf/internal/domain"
	"github.com/spf13/afero"
)

// TrashDir is the sub-folder holding soft-deleted files
const TrashDir = ".trash"

// Adapter implements domain.StorageAdapter over an afero folder handle.
type Adapter struct {
	picker domain.DirectoryPicker
	prefs  domain.Preferences
	codec  domain.Codec
	logger *slog.Logger
	now    func() time.Time

	mu   sync.Mutex
	root afero.Fs // nil when disconnected
	dir  string   // OS path of root, empty for non-OS handles
	name string

	// trash is created on first use and cached for the life of the connection
	trash afero.Fs
}

// NewAdapter creates a local directory adapter. picker and prefs may be nil.
func NewAdapter(picker domain.DirectoryPicker, prefs domain.Preferences, codec domain.Codec, logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Adapter{
		picker: picker,
		prefs:  prefs,
		codec:  codec,
		logger: logger.With("storage", domain.StorageTypeLocal),
		now:    time.Now,
	}
}

func (a *Adapter) GetStorageType() domain.StorageType {
	return domain.StorageTypeLocal
}

func (a *Adapter) DisplayName() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.name
}

// Initialize reconnects to the last granted directory if it still exists.
// A local backend is always usable.
func (a *Adapter) Initialize(ctx context.Context) bool {
	if a.IsConnected() || a.prefs == nil {
		return true
	}

	dir := a.prefs.GetString(domain.PrefLocalDir)
	if dir == "" {
		return true
	}
	if _, err := a.connectDir(dir); err != nil {
		a.logger.Info("previous catalog folder unavailable", "dir", dir, "error", err)
	}
	return true
}

func (a *Adapter) IsConnected() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.root != nil
}

// SelectStorage asks the picker for a directory and connects to it
func (a *Adapter) SelectStorage(ctx context.Context) error {
	if a.picker == nil {
		return fmt.Errorf("no directory picker configured")
	}

	suggested := ""
	if a.prefs != nil {
		suggested = a.prefs.GetString(domain.PrefLocalDir)
	}
	dir, err := a.picker.PickDirectory(ctx, suggested)
	if err != nil {
		return err
	}
	abs, err := a.connectDir(dir)
	if err != nil {
		return err
	}

	if a.prefs != nil {
		if err := a.prefs.Set(domain.PrefLocalDir, abs); err != nil {
			a.logger.Warn("failed to persist catalog folder", "error", err)
		}
	}
	a.logger.Info("connected", "dir", abs)
	return nil
}

// connectDir opens dir as the catalog folder and returns its absolute path
func (a *Adapter) connectDir(dir string) (string, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", mapErr(err, abs)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("%s is not a directory", abs)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.root = afero.NewBasePathFs(afero.NewOsFs(), abs)
	a.dir = abs
	a.name = filepath.Base(abs)
	a.trash = nil
	return abs, nil
}

// Connect attaches an already-granted folder handle
func (a *Adapter) Connect(root afero.Fs, name string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.root = root
	a.dir = ""
	a.name = name
	a.trash = nil
}

func (a *Adapter) Disconnect(ctx context.Context) error {
	a.mu.Lock()
	wasConnected := a.root != nil
	a.root = nil
	a.trash = nil
	a.dir = ""
	a.name = ""
	a.mu.Unlock()

	if wasConnected && a.prefs != nil {
		if err := a.prefs.Set(domain.PrefLocalDir, ""); err != nil {
			a.logger.Warn("failed to clear catalog folder", "error", err)
		}
	}
	return nil
}

// handle returns the folder handle or ErrNotConnected
func (a *Adapter) handle() (afero.Fs, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.root == nil {
		return nil, domain.ErrNotConnected
	}
	return a.root, nil
}

// trashFs returns the trash handle, creating the folder on first use
func (a *Adapter) trashFs() (afero.Fs, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.root == nil {
		return nil, domain.ErrNotConnected
	}
	if a.trash != nil {
		return a.trash, nil
	}
	if err := a.root.MkdirAll(TrashDir, 0755); err != nil {
		return nil, mapErr(err, TrashDir)
	}
	a.trash = afero.NewBasePathFs(a.root, TrashDir)
	return a.trash, nil
}

// LoadItems parses every markdown file in the folder, skipping files that fail
func (a *Adapter) LoadItems(ctx context.Context, onProgress domain.ProgressFunc) ([]*domain.Item, error) {
	root, err := a.handle()
	if err != nil {
		return nil, err
	}

	names, err := listRecords(root)
	if err != nil {
		return nil, err
	}

	total := len(names)
	report := func(processed int) {
		if onProgress != nil {
			onProgress(processed, total)
		}
	}
	report(0)

	items := make([]*domain.Item, 0, total)
	for i, name := range names {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		item, err := a.readItem(root, name)
		if err != nil {
			a.logger.Warn("skipping unreadable item", "file", name, "error", err)
		} else {
			items = append(items, item)
		}
		report(i + 1)
	}

	domain.SortByDateAdded(items)
	a.logger.Debug("loaded items", "count", len(items), "files", total)
	return items, nil
}

// SaveItem writes item to its file, assigning a filename on first save
func (a *Adapter) SaveItem(ctx context.Context, item *domain.Item) error {
	if err := item.Validate(); err != nil {
		return err
	}
	root, err := a.handle()
	if err != nil {
		return err
	}

	if item.Filename == "" {
		if match := a.findByMetadata(root, item); match != nil {
			a.logger.Debug("resolved item by metadata", "file", match.Filename)
			item.Filename = match.Filename
			if item.DateAdded.IsZero() {
				item.DateAdded = match.DateAdded
			}
		} else {
			item.Filename = a.generateFilename(root, item.Title)
		}
	}
	if item.DateAdded.IsZero() {
		item.DateAdded = a.now().UTC()
	}

	content, err := a.codec.Generate(item)
	if err != nil {
		return err
	}
	if err := afero.WriteFile(root, item.Filename, content, 0644); err != nil {
		return mapErr(err, item.Filename)
	}

	item.ID = domain.IDFromFilename(item.Filename)
	return nil
}

// DeleteItem moves the item's file into .trash
func (a *Adapter) DeleteItem(ctx context.Context, item *domain.Item) (domain.UndoEntry, error) {
	root, err := a.handle()
	if err != nil {
		return domain.UndoEntry{}, err
	}
	if item.Filename == "" {
		return domain.UndoEntry{}, fmt.Errorf("item %q has never been saved: %w", item.Title, domain.ErrNotFound)
	}
	if ok, err := afero.Exists(root, item.Filename); err != nil {
		return domain.UndoEntry{}, mapErr(err, item.Filename)
	} else if !ok {
		return domain.UndoEntry{}, fmt.Errorf("%s: %w", item.Filename, domain.ErrNotFound)
	}

	trash, err := a.trashFs()
	if err != nil {
		return domain.UndoEntry{}, err
	}
	target, err := a.freeName(trash, item.Filename)
	if err != nil {
		return domain.UndoEntry{}, err
	}

	trashPath := filepath.Join(TrashDir, target)
	if err := root.Rename(item.Filename, trashPath); err != nil {
		return domain.UndoEntry{}, mapErr(err, item.Filename)
	}

	a.logger.Debug("moved to trash", "file", item.Filename, "trash", trashPath)
	return domain.UndoEntry{
		Backend:    domain.StorageTypeLocal,
		ItemID:     item.ID,
		SourceName: item.Filename,
		TrashName:  filepath.ToSlash(trashPath),
		DeletedAt:  a.now(),
	}, nil
}

// RestoreItem moves a trashed file back, renaming it if the original name is taken
func (a *Adapter) RestoreItem(ctx context.Context, entry domain.UndoEntry) (string, error) {
	if entry.Backend != domain.StorageTypeLocal {
		return "", fmt.Errorf("cannot restore %s entry with local storage", entry.Backend)
	}
	root, err := a.handle()
	if err != nil {
		return "", err
	}

	src := filepath.FromSlash(entry.TrashName)
	if ok, err := afero.Exists(root, src); err != nil {
		return "", mapErr(err, src)
	} else if !ok {
		return "", fmt.Errorf("%s is no longer in trash: %w", entry.TrashName, domain.ErrNotFound)
	}

	target, err := a.freeName(root, entry.SourceName)
	if err != nil {
		return "", err
	}
	if err := root.Rename(src, target); err != nil {
		return "", mapErr(err, src)
	}

	a.logger.Debug("restored from trash", "trash", entry.TrashName, "file", target)
	return target, nil
}

func (a *Adapter) WriteFile(ctx context.Context, name, content string) error {
	root, err := a.handle()
	if err != nil {
		return err
	}
	if err := afero.WriteFile(root, name, []byte(content), 0644); err != nil {
		return mapErr(err, name)
	}
	return nil
}

func (a *Adapter) FileExists(ctx context.Context, name string) (bool, error) {
	root, err := a.handle()
	if err != nil {
		return false, err
	}
	ok, err := afero.Exists(root, name)
	if err != nil {
		return false, mapErr(err, name)
	}
	return ok, nil
}

// === helpers ===

// listRecords returns the markdown filenames at the top of the folder
func listRecords(root afero.Fs) ([]string, error) {
	entries, err := afero.ReadDir(root, ".")
	if err != nil {
		return nil, mapErr(err, ".")
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || !domain.IsRecordName(e.Name()) {
			continue
		}
		names = append(names, e.Name())
	}
	return names, nil
}

func (a *Adapter) readItem(root afero.Fs, name string) (*domain.Item, error) {
	content, err := afero.ReadFile(root, name)
	if err != nil {
		return nil, mapErr(err, name)
	}
	item, err := a.codec.Parse(content)
	if err != nil {
		return nil, err
	}
	item.Filename = name
	item.ID = domain.IDFromFilename(name)
	return item, nil
}

// findByMetadata scans the folder for a file describing the same logical item.
// O(n) in folder size; only used when the caller omitted the filename.
func (a *Adapter) findByMetadata(root afero.Fs, item *domain.Item) *domain.Item {
	names, err := listRecords(root)
	if err != nil {
		return nil
	}
	for _, name := range names {
		candidate, err := a.readItem(root, name)
		if err != nil {
			continue
		}
		if item.SameEntry(candidate) {
			return candidate
		}
	}
	return nil
}

func (a *Adapter) generateFilename(root afero.Fs, title string) string {
	ts := a.now()
	for {
		name := domain.RecordFilename(title, ts)
		if ok, _ := afero.Exists(root, name); !ok {
			return name
		}
		ts = ts.Add(time.Millisecond)
	}
}

// freeName returns name, or name with a timestamp suffix if it already exists in dir
func (a *Adapter) freeName(dir afero.Fs, name string) (string, error) {
	ok, err := afero.Exists(dir, name)
	if err != nil {
		return "", mapErr(err, name)
	}
	if !ok {
		return name, nil
	}

	ts := a.now()
	for {
		candidate := domain.SuffixedName(name, ts)
		if ok, _ := afero.Exists(dir, candidate); !ok {
			return candidate, nil
		}
		ts = ts.Add(time.Millisecond)
	}
}

// mapErr converts filesystem errors into domain errors
func mapErr(err error, name string) error {
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return fmt.Errorf("%s: %w", name, domain.ErrNotFound)
	case errors.Is(err, fs.ErrPermission):
		return fmt.Errorf("%s: %w", name, domain.ErrPermission)
	default:
		return err
	}
}
