package domain

// ItemCache is the durable key-value cache of remote file content.
// Keyed by remote file ID and indexed by folder ID.
// It has no notion of staleness: consumers compare ModifiedTime themselves.
type ItemCache interface {
	// Init opens the substrate. Idempotent; every other method calls it lazily.
	Init() error

	// CacheItems writes entries in bulk under folderID
	CacheItems(folderID string, entries []CacheEntry) error
	UpsertItem(entry CacheEntry) error

	// GetCachedItems returns every entry in folderID keyed by file ID
	GetCachedItems(folderID string) (map[string]CacheEntry, error)
	GetCachedItem(fileID string) (CacheEntry, bool)

	RemoveItem(fileID string) error
	RemoveItems(fileIDs []string) error
	ClearFolderCache(folderID string) error
	ClearAll() error

	Stats() (CacheStats, error)
	Close() error
}

// CacheStats summarizes cache contents
type CacheStats struct {
	Items   int
	Folders int
}
