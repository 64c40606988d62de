package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/mmcdole/shelf/internal/domain"
	bolt "go.etcd.io/bbolt"
)

// Bucket names
var (
	bucketEntries = []byte("entries") // fileID -> CacheEntry JSON
	bucketFolders = []byte("folders") // folderID -> nested bucket of fileID -> marker
)

var indexMarker = []byte{1}

// ItemCache implements domain.ItemCache using BoltDB.
// The folders bucket is a secondary index so per-folder reads never scan every entry.
type ItemCache struct {
	path string

	initMu sync.Mutex
	ready  bool
	db     *bolt.DB

	mu sync.RWMutex // Protects memory mode
	// Memory-only mode (no persistence) when path is empty
	entries map[string]domain.CacheEntry
}

// NewItemCache returns a cache stored under baseCacheDir.
// The database is not opened until first use.
func NewItemCache(baseCacheDir string) *ItemCache {
	c := &ItemCache{}
	if baseCacheDir != "" {
		c.path = filepath.Join(baseCacheDir, "items.db")
	}
	return c
}

// Init opens the database and creates buckets. Safe to call repeatedly.
func (c *ItemCache) Init() error {
	c.initMu.Lock()
	defer c.initMu.Unlock()

	if c.ready {
		return nil
	}

	if c.path == "" {
		c.mu.Lock()
		c.entries = make(map[string]domain.CacheEntry)
		c.mu.Unlock()
		c.ready = true
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(c.path), 0755); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}

	db, err := bolt.Open(c.path, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return fmt.Errorf("failed to open bolt db: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{bucketEntries, bucketFolders} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return err
	}

	c.db = db
	c.ready = true
	return nil
}

func (c *ItemCache) Close() error {
	c.initMu.Lock()
	defer c.initMu.Unlock()

	c.ready = false
	if c.db != nil {
		err := c.db.Close()
		c.db = nil
		return err
	}
	return nil
}

// === Writes ===

func (c *ItemCache) CacheItems(folderID string, entries []domain.CacheEntry) error {
	if err := c.Init(); err != nil {
		return err
	}
	entries = slices.Clone(entries)
	for i := range entries {
		entries[i].FolderID = folderID
	}

	if c.db == nil {
		c.mu.Lock()
		for _, e := range entries {
			c.entries[e.FileID] = cloneEntry(e)
		}
		c.mu.Unlock()
		return nil
	}

	return c.db.Update(func(tx *bolt.Tx) error {
		for _, e := range entries {
			if err := putEntry(tx, e); err != nil {
				return err
			}
		}
		return nil
	})
}

func (c *ItemCache) UpsertItem(entry domain.CacheEntry) error {
	if err := c.Init(); err != nil {
		return err
	}

	if c.db == nil {
		c.mu.Lock()
		c.entries[entry.FileID] = cloneEntry(entry)
		c.mu.Unlock()
		return nil
	}

	return c.db.Update(func(tx *bolt.Tx) error {
		return putEntry(tx, entry)
	})
}

// putEntry writes entry and keeps the folder index consistent when a file moves folders
func putEntry(tx *bolt.Tx, e domain.CacheEntry) error {
	if e.FileID == "" {
		return fmt.Errorf("cache entry has no file id")
	}
	data, err := json.Marshal(e)
	if err != nil {
		return err
	}

	entries := tx.Bucket(bucketEntries)
	if prev := entries.Get([]byte(e.FileID)); prev != nil {
		var old domain.CacheEntry
		if json.Unmarshal(prev, &old) == nil && old.FolderID != e.FolderID {
			unindex(tx, old.FolderID, e.FileID)
		}
	}
	if err := entries.Put([]byte(e.FileID), data); err != nil {
		return err
	}

	folder, err := tx.Bucket(bucketFolders).CreateBucketIfNotExists([]byte(e.FolderID))
	if err != nil {
		return err
	}
	return folder.Put([]byte(e.FileID), indexMarker)
}

// cloneEntry keeps memory mode from sharing Item pointers with callers
func cloneEntry(e domain.CacheEntry) domain.CacheEntry {
	e.Data = e.Data.Clone()
	return e
}

func unindex(tx *bolt.Tx, folderID, fileID string) {
	if folder := tx.Bucket(bucketFolders).Bucket([]byte(folderID)); folder != nil {
		folder.Delete([]byte(fileID))
	}
}

// === Reads ===

func (c *ItemCache) GetCachedItems(folderID string) (map[string]domain.CacheEntry, error) {
	if err := c.Init(); err != nil {
		return nil, err
	}
	result := make(map[string]domain.CacheEntry)

	if c.db == nil {
		c.mu.RLock()
		for id, e := range c.entries {
			if e.FolderID == folderID {
				result[id] = cloneEntry(e)
			}
		}
		c.mu.RUnlock()
		return result, nil
	}

	err := c.db.View(func(tx *bolt.Tx) error {
		folder := tx.Bucket(bucketFolders).Bucket([]byte(folderID))
		if folder == nil {
			return nil
		}
		entries := tx.Bucket(bucketEntries)
		// Cursor walk: no page limit regardless of folder size
		cur := folder.Cursor()
		for k, _ := cur.First(); k != nil; k, _ = cur.Next() {
			v := entries.Get(k)
			if v == nil {
				continue
			}
			var e domain.CacheEntry
			if err := json.Unmarshal(v, &e); err != nil {
				continue
			}
			result[string(k)] = e
		}
		return nil
	})
	return result, err
}

func (c *ItemCache) GetCachedItem(fileID string) (domain.CacheEntry, bool) {
	if err := c.Init(); err != nil {
		return domain.CacheEntry{}, false
	}

	if c.db == nil {
		c.mu.RLock()
		defer c.mu.RUnlock()
		e, ok := c.entries[fileID]
		return cloneEntry(e), ok
	}

	var data []byte
	c.db.View(func(tx *bolt.Tx) error {
		if v := tx.Bucket(bucketEntries).Get([]byte(fileID)); v != nil {
			data = make([]byte, len(v))
			copy(data, v)
		}
		return nil
	})
	if data == nil {
		return domain.CacheEntry{}, false
	}

	var e domain.CacheEntry
	if err := json.Unmarshal(data, &e); err != nil {
		return domain.CacheEntry{}, false
	}
	return e, true
}

// === Deletes ===

func (c *ItemCache) RemoveItem(fileID string) error {
	return c.RemoveItems([]string{fileID})
}

func (c *ItemCache) RemoveItems(fileIDs []string) error {
	if err := c.Init(); err != nil {
		return err
	}

	if c.db == nil {
		c.mu.Lock()
		for _, id := range fileIDs {
			delete(c.entries, id)
		}
		c.mu.Unlock()
		return nil
	}

	return c.db.Update(func(tx *bolt.Tx) error {
		entries := tx.Bucket(bucketEntries)
		for _, id := range fileIDs {
			v := entries.Get([]byte(id))
			if v == nil {
				continue
			}
			var e domain.CacheEntry
			if json.Unmarshal(v, &e) == nil {
				unindex(tx, e.FolderID, id)
			}
			if err := entries.Delete([]byte(id)); err != nil {
				return err
			}
		}
		return nil
	})
}

// ClearFolderCache wipes entries belonging to folderID only
func (c *ItemCache) ClearFolderCache(folderID string) error {
	if err := c.Init(); err != nil {
		return err
	}

	if c.db == nil {
		c.mu.Lock()
		for id, e := range c.entries {
			if e.FolderID == folderID {
				delete(c.entries, id)
			}
		}
		c.mu.Unlock()
		return nil
	}

	return c.db.Update(func(tx *bolt.Tx) error {
		folders := tx.Bucket(bucketFolders)
		folder := folders.Bucket([]byte(folderID))
		if folder == nil {
			return nil
		}
		entries := tx.Bucket(bucketEntries)
		cur := folder.Cursor()
		for k, _ := cur.First(); k != nil; k, _ = cur.Next() {
			if err := entries.Delete(k); err != nil {
				return err
			}
		}
		return folders.DeleteBucket([]byte(folderID))
	})
}

// ClearAll wipes the entire cache
func (c *ItemCache) ClearAll() error {
	if err := c.Init(); err != nil {
		return err
	}

	if c.db == nil {
		c.mu.Lock()
		c.entries = make(map[string]domain.CacheEntry)
		c.mu.Unlock()
		return nil
	}

	return c.db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{bucketEntries, bucketFolders} {
			if err := tx.DeleteBucket(bucket); err != nil && !errors.Is(err, bolt.ErrBucketNotFound) {
				return err
			}
			if _, err := tx.CreateBucket(bucket); err != nil {
				return err
			}
		}
		return nil
	})
}

// === Stats ===

func (c *ItemCache) Stats() (domain.CacheStats, error) {
	if err := c.Init(); err != nil {
		return domain.CacheStats{}, err
	}

	if c.db == nil {
		c.mu.RLock()
		defer c.mu.RUnlock()
		folders := make(map[string]struct{})
		for _, e := range c.entries {
			folders[e.FolderID] = struct{}{}
		}
		return domain.CacheStats{Items: len(c.entries), Folders: len(folders)}, nil
	}

	var stats domain.CacheStats
	err := c.db.View(func(tx *bolt.Tx) error {
		stats.Items = tx.Bucket(bucketEntries).Stats().KeyN
		return tx.Bucket(bucketFolders).ForEachBucket(func(k []byte) error {
			stats.Folders++
			return nil
		})
	})
	return stats, err
}
