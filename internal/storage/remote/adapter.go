package remote

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/mmcdole/shelf/internal/domain"
	"golang.org/x/sync/errgroup"
)

const (
	// TrashFolderName is the child folder holding soft-deleted files
	TrashFolderName = ".trash"

	// RootID addresses the top of the user's drive
	RootID = "root"

	defaultConcurrency = 10
)

// Options tunes an Adapter
type Options struct {
	// FolderName is used when no folder name preference is stored
	FolderName string
	// DownloadConcurrency bounds parallel downloads during LoadItems
	DownloadConcurrency int
}

// Adapter implements domain.StorageAdapter over a Drive-like API
type Adapter struct {
	api         API
	tokens      domain.TokenSource
	prefs       domain.Preferences
	cache       domain.ItemCache
	codec       domain.Codec
	logger      *slog.Logger
	now         func() time.Time
	folderName  string
	concurrency int

	mu       sync.Mutex
	token    string
	folderID string
	trashID  string
	name     string
}

// NewAdapter creates a remote adapter. tokens, prefs and cache may be nil.
func NewAdapter(api API, tokens domain.TokenSource, prefs domain.Preferences, cache domain.ItemCache,
	codec domain.Codec, opts Options, logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.DownloadConcurrency <= 0 {
		opts.DownloadConcurrency = defaultConcurrency
	}
	return &Adapter{
		api:         api,
		tokens:      tokens,
		prefs:       prefs,
		cache:       cache,
		codec:       codec,
		logger:      logger.With("storage", domain.StorageTypeRemote),
		now:         time.Now,
		folderName:  opts.FolderName,
		concurrency: opts.DownloadConcurrency,
	}
}

func (a *Adapter) GetStorageType() domain.StorageType {
	return domain.StorageTypeRemote
}

func (a *Adapter) DisplayName() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.name
}

func (a *Adapter) IsConnected() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.token != "" && a.folderID != ""
}

// Initialize restores a previous session from a persisted token without prompting
func (a *Adapter) Initialize(ctx context.Context) bool {
	if a.IsConnected() {
		return true
	}
	if a.prefs == nil {
		return false
	}
	token := a.prefs.GetString(domain.PrefRemoteToken)
	if token == "" {
		return false
	}

	if err := a.connect(ctx, token); err != nil {
		a.logger.Info("could not restore remote session", "error", err)
		if errors.Is(err, domain.ErrAuthFailed) {
			a.forget()
		}
		return false
	}
	return true
}

// SelectStorage signs in through the token source and connects to the catalog folder
func (a *Adapter) SelectStorage(ctx context.Context) error {
	if a.tokens == nil {
		return fmt.Errorf("no sign-in method configured")
	}
	token, err := a.tokens.Token(ctx)
	if err != nil {
		return err
	}
	if err := a.connect(ctx, token); err != nil {
		return err
	}

	if a.prefs != nil {
		a.mu.Lock()
		folderID := a.folderID
		a.mu.Unlock()
		for key, value := range map[string]string{
			domain.PrefRemoteToken:    token,
			domain.PrefRemoteFolderID: folderID,
		} {
			if err := a.prefs.Set(key, value); err != nil {
				a.logger.Warn("failed to persist remote session", "key", key, "error", err)
			}
		}
	}
	return nil
}

// connect resolves or creates the catalog and trash folders using token
func (a *Adapter) connect(ctx context.Context, token string) error {
	a.mu.Lock()
	prev := a.token
	a.mu.Unlock()
	a.api.SetToken(token)

	name := a.configuredFolderName()
	var folder File
	if id := a.pref(domain.PrefRemoteFolderID); id != "" {
		f, err := a.api.GetFile(ctx, id)
		switch {
		case err == nil && f.IsFolder() && !f.Trashed && f.Name == name:
			folder = f
		case err != nil && !errors.Is(err, domain.ErrNotFound):
			return a.abortConnect(prev, err)
		}
	}
	if folder.ID == "" {
		f, err := a.findOrCreateFolder(ctx, name, RootID)
		if err != nil {
			return a.abortConnect(prev, err)
		}
		folder = f
	}

	trash, err := a.findOrCreateFolder(ctx, TrashFolderName, folder.ID)
	if err != nil {
		return a.abortConnect(prev, err)
	}

	a.mu.Lock()
	a.token = token
	a.folderID = folder.ID
	a.trashID = trash.ID
	a.name = folder.Name
	a.mu.Unlock()

	a.logger.Info("connected", "folder", folder.Name, "folderID", folder.ID)
	return nil
}

// abortConnect puts back the token of the session that was live before the attempt
func (a *Adapter) abortConnect(prev string, err error) error {
	a.api.SetToken(prev)
	return fmt.Errorf("failed to open catalog folder: %w", err)
}

func (a *Adapter) findOrCreateFolder(ctx context.Context, name, parentID string) (File, error) {
	found, err := a.api.ListFiles(ctx, Query{ParentID: parentID, Name: name, FoldersOnly: true})
	if err != nil {
		return File{}, err
	}
	if len(found) > 0 {
		if len(found) > 1 {
			a.logger.Warn("multiple folders share a name, using the first", "name", name, "count", len(found))
		}
		return found[0], nil
	}

	a.logger.Info("creating folder", "name", name, "parent", parentID)
	return a.api.CreateFile(ctx, File{Name: name, MimeType: FolderMimeType, Parents: []string{parentID}}, nil)
}

func (a *Adapter) configuredFolderName() string {
	if name := a.pref(domain.PrefFolderName); name != "" {
		return name
	}
	if a.folderName != "" {
		return a.folderName
	}
	return "Shelf"
}

func (a *Adapter) pref(key string) string {
	if a.prefs == nil {
		return ""
	}
	return a.prefs.GetString(key)
}

// Disconnect drops the token, folder ids and every cached entry
func (a *Adapter) Disconnect(ctx context.Context) error {
	a.mu.Lock()
	wasConnected := a.token != ""
	a.mu.Unlock()

	a.forget()
	if a.cache != nil {
		if err := a.cache.ClearAll(); err != nil {
			a.logger.Warn("failed to clear item cache", "error", err)
		}
	}
	if wasConnected {
		a.logger.Info("disconnected")
	}
	return nil
}

func (a *Adapter) forget() {
	a.mu.Lock()
	a.token = ""
	a.folderID = ""
	a.trashID = ""
	a.name = ""
	a.mu.Unlock()
	a.api.SetToken("")

	if a.prefs != nil {
		for _, key := range []string{domain.PrefRemoteToken, domain.PrefRemoteFolderID} {
			if err := a.prefs.Set(key, ""); err != nil {
				a.logger.Warn("failed to clear remote session", "key", key, "error", err)
			}
		}
	}
}

// folders returns the session's folder ids or ErrNotConnected
func (a *Adapter) folders() (folderID, trashID string, err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.token == "" || a.folderID == "" {
		return "", "", domain.ErrNotConnected
	}
	return a.folderID, a.trashID, nil
}

// === Items ===

// LoadItems lists the folder, reusing cached content for files whose modified time is unchanged
func (a *Adapter) LoadItems(ctx context.Context, onProgress domain.ProgressFunc) ([]*domain.Item, error) {
	folderID, _, err := a.folders()
	if err != nil {
		return nil, err
	}

	files, err := a.listRecords(ctx, folderID)
	if err != nil {
		return nil, err
	}
	cached := a.cachedEntries(folderID)

	total := len(files)
	var progressMu sync.Mutex
	processed := 0
	step := func() {
		progressMu.Lock()
		defer progressMu.Unlock()
		processed++
		if onProgress != nil {
			onProgress(processed, total)
		}
	}
	if onProgress != nil {
		onProgress(0, total)
	}

	results := make([]*domain.Item, len(files))
	hits := 0

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.concurrency)
	for i, f := range files {
		if e, ok := cached[f.ID]; ok && e.FreshFor(f.ModifiedTime) {
			results[i] = withLocators(e.Data.Clone(), f)
			hits++
			step()
			continue
		}

		g.Go(func() error {
			defer step()
			item, err := a.fetch(gctx, folderID, f)
			if err != nil {
				if errors.Is(err, domain.ErrAuthFailed) || errors.Is(err, domain.ErrOffline) {
					return err
				}
				a.logger.Warn("skipping unreadable item", "file", f.Name, "fileID", f.ID, "error", err)
				return nil
			}
			results[i] = item
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	a.evictMissing(cached, files)

	items := make([]*domain.Item, 0, len(results))
	for _, item := range results {
		if item != nil {
			items = append(items, item)
		}
	}
	domain.SortByDateAdded(items)

	a.logger.Debug("loaded items", "count", len(items), "files", total, "cacheHits", hits)
	return items, nil
}

// fetch downloads and parses one file, refreshing its cache entry
func (a *Adapter) fetch(ctx context.Context, folderID string, f File) (*domain.Item, error) {
	content, err := a.api.Download(ctx, f.ID)
	if err != nil {
		return nil, err
	}
	item, err := a.codec.Parse(content)
	if err != nil {
		return nil, err
	}
	withLocators(item, f)
	a.remember(folderID, f, item)
	return item, nil
}

func (a *Adapter) listRecords(ctx context.Context, folderID string) ([]File, error) {
	files, err := a.api.ListFiles(ctx, Query{ParentID: folderID, FilesOnly: true})
	if err != nil {
		return nil, err
	}
	records := files[:0]
	for _, f := range files {
		if domain.IsRecordName(f.Name) {
			records = append(records, f)
		}
	}
	return records, nil
}

func (a *Adapter) cachedEntries(folderID string) map[string]domain.CacheEntry {
	if a.cache == nil {
		return nil
	}
	entries, err := a.cache.GetCachedItems(folderID)
	if err != nil {
		a.logger.Warn("item cache unavailable", "error", err)
		return nil
	}
	return entries
}

func (a *Adapter) remember(folderID string, f File, item *domain.Item) {
	if a.cache == nil {
		return
	}
	err := a.cache.UpsertItem(domain.CacheEntry{
		FileID:       f.ID,
		FolderID:     folderID,
		ModifiedTime: f.ModifiedTime,
		Filename:     f.Name,
		Data:         item.Clone(),
	})
	if err != nil {
		a.logger.Warn("failed to cache item", "fileID", f.ID, "error", err)
	}
}

func (a *Adapter) forgetFile(fileID string) {
	if a.cache == nil {
		return
	}
	if err := a.cache.RemoveItem(fileID); err != nil {
		a.logger.Warn("failed to evict cached item", "fileID", fileID, "error", err)
	}
}

// evictMissing drops cache entries for files that are no longer listed in the folder
func (a *Adapter) evictMissing(cached map[string]domain.CacheEntry, listed []File) {
	if a.cache == nil || len(cached) == 0 {
		return
	}
	present := make(map[string]struct{}, len(listed))
	for _, f := range listed {
		present[f.ID] = struct{}{}
	}
	var stale []string
	for id := range cached {
		if _, ok := present[id]; !ok {
			stale = append(stale, id)
		}
	}
	if len(stale) == 0 {
		return
	}
	if err := a.cache.RemoveItems(stale); err != nil {
		a.logger.Warn("failed to evict stale cache entries", "count", len(stale), "error", err)
	}
}

func withLocators(item *domain.Item, f File) *domain.Item {
	item.FileID = f.ID
	item.Filename = f.Name
	item.ID = domain.IDFromFilename(f.Name)
	return item
}

// SaveItem patches the item's file or creates one.
// Resolution order: FileID, then Filename, then a metadata match, then a new file.
func (a *Adapter) SaveItem(ctx context.Context, item *domain.Item) error {
	if err := item.Validate(); err != nil {
		return err
	}
	folderID, _, err := a.folders()
	if err != nil {
		return err
	}

	fileID := item.FileID
	if fileID != "" {
		inFolder, err := a.inFolder(ctx, folderID, fileID)
		if err != nil {
			return err
		}
		if !inFolder {
			a.logger.Info("file left the catalog folder, recreating", "fileID", fileID, "file", item.Filename)
			a.forgetFile(fileID)
			fileID = ""
		}
	}
	if fileID == "" && item.Filename != "" {
		f, found, err := a.lookup(ctx, folderID, item.Filename)
		if err != nil {
			return err
		}
		if found {
			fileID = f.ID
		}
	}
	if fileID == "" && item.Filename == "" {
		match, err := a.findByMetadata(ctx, folderID, item)
		if err != nil {
			return err
		}
		if match != nil {
			a.logger.Debug("resolved item by metadata", "file", match.Filename)
			fileID = match.FileID
			item.Filename = match.Filename
			if item.DateAdded.IsZero() {
				item.DateAdded = match.DateAdded
			}
		}
	}
	if item.DateAdded.IsZero() {
		item.DateAdded = a.now().UTC()
	}

	content, err := a.codec.Generate(item)
	if err != nil {
		return err
	}

	var saved File
	if fileID != "" {
		saved, err = a.api.UpdateFile(ctx, fileID, "", content)
		if errors.Is(err, domain.ErrNotFound) {
			a.logger.Info("file vanished, recreating", "fileID", fileID, "file", item.Filename)
			a.forgetFile(fileID)
			fileID = ""
		} else if err != nil {
			return err
		}
	}
	if fileID == "" {
		name := item.Filename
		if name == "" {
			if name, err = a.generateFilename(ctx, folderID, item.Title); err != nil {
				return err
			}
		}
		saved, err = a.api.CreateFile(ctx, File{Name: name, MimeType: RecordMimeType, Parents: []string{folderID}}, content)
		if err != nil {
			return err
		}
	}

	withLocators(item, saved)
	a.remember(folderID, saved, item)
	return nil
}

// inFolder reports whether fileID still lives, untrashed, directly in folderID
func (a *Adapter) inFolder(ctx context.Context, folderID, fileID string) (bool, error) {
	f, err := a.api.GetFile(ctx, fileID)
	if errors.Is(err, domain.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return !f.Trashed && slices.Contains(f.Parents, folderID), nil
}

// lookup finds a file by exact name in folderID
func (a *Adapter) lookup(ctx context.Context, folderID, name string) (File, bool, error) {
	files, err := a.api.ListFiles(ctx, Query{ParentID: folderID, Name: name, FilesOnly: true})
	if err != nil {
		return File{}, false, err
	}
	if len(files) == 0 {
		return File{}, false, nil
	}
	return files[0], true, nil
}

// findByMetadata scans the folder for the same logical item, using fresh cache entries where possible
func (a *Adapter) findByMetadata(ctx context.Context, folderID string, item *domain.Item) (*domain.Item, error) {
	files, err := a.listRecords(ctx, folderID)
	if err != nil {
		return nil, err
	}
	cached := a.cachedEntries(folderID)

	var misses []File
	for _, f := range files {
		if e, ok := cached[f.ID]; ok && e.FreshFor(f.ModifiedTime) {
			if item.SameEntry(e.Data) {
				return withLocators(e.Data.Clone(), f), nil
			}
			continue
		}
		misses = append(misses, f)
	}

	for _, f := range misses {
		candidate, err := a.fetch(ctx, folderID, f)
		if err != nil {
			if errors.Is(err, domain.ErrAuthFailed) || errors.Is(err, domain.ErrOffline) {
				return nil, err
			}
			continue
		}
		if item.SameEntry(candidate) {
			return candidate, nil
		}
	}
	return nil, nil
}

func (a *Adapter) generateFilename(ctx context.Context, folderID, title string) (string, error) {
	ts := a.now()
	for {
		name := domain.RecordFilename(title, ts)
		_, found, err := a.lookup(ctx, folderID, name)
		if err != nil {
			return "", err
		}
		if !found {
			return name, nil
		}
		ts = ts.Add(time.Millisecond)
	}
}

// freeName returns name, or a timestamp-suffixed variant if name is taken in parentID
func (a *Adapter) freeName(ctx context.Context, parentID, name string) (string, error) {
	candidate := name
	ts := a.now()
	for {
		_, found, err := a.lookup(ctx, parentID, candidate)
		if err != nil {
			return "", err
		}
		if !found {
			return candidate, nil
		}
		candidate = domain.SuffixedName(name, ts)
		ts = ts.Add(time.Millisecond)
	}
}

// DeleteItem moves the item's file from the catalog folder into the trash folder
func (a *Adapter) DeleteItem(ctx context.Context, item *domain.Item) (domain.UndoEntry, error) {
	folderID, trashID, err := a.folders()
	if err != nil {
		return domain.UndoEntry{}, err
	}

	fileID, name := item.FileID, item.Filename
	if fileID == "" {
		if name == "" {
			return domain.UndoEntry{}, fmt.Errorf("item %q has never been saved: %w", item.Title, domain.ErrNotFound)
		}
		f, found, err := a.lookup(ctx, folderID, name)
		if err != nil {
			return domain.UndoEntry{}, err
		}
		if !found {
			return domain.UndoEntry{}, fmt.Errorf("%s: %w", name, domain.ErrNotFound)
		}
		fileID = f.ID
	}
	if name == "" {
		f, err := a.api.GetFile(ctx, fileID)
		if err != nil {
			return domain.UndoEntry{}, err
		}
		name = f.Name
	}

	target, err := a.freeName(ctx, trashID, name)
	if err != nil {
		return domain.UndoEntry{}, err
	}
	rename := ""
	if target != name {
		rename = target
	}
	if _, err := a.api.MoveFile(ctx, fileID, rename, []string{trashID}, []string{folderID}); err != nil {
		return domain.UndoEntry{}, err
	}
	a.forgetFile(fileID)

	a.logger.Debug("moved to trash", "file", name, "trash", target)
	return domain.UndoEntry{
		Backend:        domain.StorageTypeRemote,
		ItemID:         item.ID,
		SourceName:     name,
		TrashName:      target,
		FileID:         fileID,
		SourceFolderID: folderID,
		TrashFolderID:  trashID,
		DeletedAt:      a.now(),
	}, nil
}

// RestoreItem moves a trashed file back to the folder it was deleted from
func (a *Adapter) RestoreItem(ctx context.Context, entry domain.UndoEntry) (string, error) {
	if entry.Backend != domain.StorageTypeRemote {
		return "", fmt.Errorf("cannot restore %s entry with remote storage", entry.Backend)
	}
	if _, _, err := a.folders(); err != nil {
		return "", err
	}

	target, err := a.freeName(ctx, entry.SourceFolderID, entry.SourceName)
	if err != nil {
		return "", err
	}
	rename := ""
	if target != entry.TrashName {
		rename = target
	}
	if _, err := a.api.MoveFile(ctx, entry.FileID, rename,
		[]string{entry.SourceFolderID}, []string{entry.TrashFolderID}); err != nil {
		return "", err
	}

	a.logger.Debug("restored from trash", "trash", entry.TrashName, "file", target)
	return target, nil
}

// WriteFile creates or overwrites a non-catalog file in the catalog folder
func (a *Adapter) WriteFile(ctx context.Context, name, content string) error {
	folderID, _, err := a.folders()
	if err != nil {
		return err
	}
	f, found, err := a.lookup(ctx, folderID, name)
	if err != nil {
		return err
	}
	if found {
		_, err = a.api.UpdateFile(ctx, f.ID, "", []byte(content))
		return err
	}
	_, err = a.api.CreateFile(ctx, File{Name: name, MimeType: RecordMimeType, Parents: []string{folderID}}, []byte(content))
	return err
}

func (a *Adapter) FileExists(ctx context.Context, name string) (bool, error) {
	folderID, _, err := a.folders()
	if err != nil {
		return false, err
	}
	_, found, err := a.lookup(ctx, folderID, name)
	return found, err
}
