package store

import (
	"strconv"
	"testing"
	"time"

	"github.com/mmcdole/shelf/internal/domain"
)

func entry(fileID, title string) domain.CacheEntry {
	return domain.CacheEntry{
		FileID:       fileID,
		ModifiedTime: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
		Filename:     title + ".md",
		Data:         &domain.Item{Title: title, Type: domain.ItemTypeBook},
	}
}

// newCaches returns a persistent and a memory-only cache so every test covers both modes
func newCaches(t *testing.T) map[string]*ItemCache {
	t.Helper()
	disk := NewItemCache(t.TempDir())
	t.Cleanup(func() { disk.Close() })
	return map[string]*ItemCache{
		"bolt":   disk,
		"memory": NewItemCache(""),
	}
}

func TestItemCache_FolderIsolation(t *testing.T) {
	for name, c := range newCaches(t) {
		t.Run(name, func(t *testing.T) {
			e1, e2 := entry("f1", "dune"), entry("f2", "emma")
			if err := c.CacheItems("folderA", []domain.CacheEntry{e1, e2}); err != nil {
				t.Fatalf("CacheItems failed: %v", err)
			}
			if err := c.CacheItems("folderB", []domain.CacheEntry{entry("f3", "alien")}); err != nil {
				t.Fatalf("CacheItems failed: %v", err)
			}

			got, err := c.GetCachedItems("folderA")
			if err != nil {
				t.Fatalf("GetCachedItems failed: %v", err)
			}
			if len(got) != 2 {
				t.Fatalf("expected 2 entries, got %d", len(got))
			}
			if got["f1"].Data.Title != "dune" || got["f2"].Data.Title != "emma" {
				t.Errorf("unexpected entries: %+v", got)
			}
			if got["f1"].FolderID != "folderA" {
				t.Errorf("FolderID = %q", got["f1"].FolderID)
			}
			if !got["f1"].ModifiedTime.Equal(e1.ModifiedTime) {
				t.Errorf("ModifiedTime = %v", got["f1"].ModifiedTime)
			}

			if err := c.ClearFolderCache("folderA"); err != nil {
				t.Fatalf("ClearFolderCache failed: %v", err)
			}
			got, _ = c.GetCachedItems("folderA")
			if len(got) != 0 {
				t.Errorf("expected empty folder after clear, got %d", len(got))
			}
			other, _ := c.GetCachedItems("folderB")
			if len(other) != 1 || other["f3"].Data.Title != "alien" {
				t.Errorf("other folder must be untouched, got %+v", other)
			}
		})
	}
}

func TestItemCache_CacheItemsLeavesInputAlone(t *testing.T) {
	for name, c := range newCaches(t) {
		t.Run(name, func(t *testing.T) {
			entries := []domain.CacheEntry{entry("f1", "dune")}
			if err := c.CacheItems("folderA", entries); err != nil {
				t.Fatalf("CacheItems failed: %v", err)
			}
			if entries[0].FolderID != "" {
				t.Errorf("input entry FolderID = %q, want unchanged", entries[0].FolderID)
			}
			if got, ok := c.GetCachedItem("f1"); !ok || got.FolderID != "folderA" {
				t.Errorf("cached FolderID = %q", got.FolderID)
			}
		})
	}
}

func TestItemCache_UpsertAndRemove(t *testing.T) {
	for name, c := range newCaches(t) {
		t.Run(name, func(t *testing.T) {
			e := entry("f1", "dune")
			e.FolderID = "main"
			if err := c.UpsertItem(e); err != nil {
				t.Fatalf("UpsertItem failed: %v", err)
			}

			e.Data.Title = "dune messiah"
			e.ModifiedTime = e.ModifiedTime.Add(time.Hour)
			if err := c.UpsertItem(e); err != nil {
				t.Fatalf("UpsertItem failed: %v", err)
			}

			got, ok := c.GetCachedItem("f1")
			if !ok {
				t.Fatal("expected cached item")
			}
			if got.Data.Title != "dune messiah" || !got.FreshFor(e.ModifiedTime) {
				t.Errorf("upsert did not overwrite: %+v", got)
			}

			if err := c.RemoveItem("f1"); err != nil {
				t.Fatalf("RemoveItem failed: %v", err)
			}
			if _, ok := c.GetCachedItem("f1"); ok {
				t.Error("item still cached after RemoveItem")
			}
			if items, _ := c.GetCachedItems("main"); len(items) != 0 {
				t.Errorf("folder index still references removed item: %v", items)
			}
		})
	}
}

func TestItemCache_UpsertMovesFolderIndex(t *testing.T) {
	c := NewItemCache(t.TempDir())
	defer c.Close()

	e := entry("f1", "dune")
	e.FolderID = "main"
	c.UpsertItem(e)
	e.FolderID = "trash"
	c.UpsertItem(e)

	if items, _ := c.GetCachedItems("main"); len(items) != 0 {
		t.Errorf("entry should have left the old folder, got %v", items)
	}
	if items, _ := c.GetCachedItems("trash"); len(items) != 1 {
		t.Errorf("entry should be indexed under the new folder, got %v", items)
	}
}

func TestItemCache_StatsAndClearAll(t *testing.T) {
	for name, c := range newCaches(t) {
		t.Run(name, func(t *testing.T) {
			c.CacheItems("a", []domain.CacheEntry{entry("1", "x"), entry("2", "y")})
			c.CacheItems("b", []domain.CacheEntry{entry("3", "z")})

			stats, err := c.Stats()
			if err != nil {
				t.Fatalf("Stats failed: %v", err)
			}
			if stats.Items != 3 || stats.Folders != 2 {
				t.Errorf("Stats = %+v, want 3 items in 2 folders", stats)
			}

			if err := c.RemoveItems([]string{"1", "missing"}); err != nil {
				t.Fatalf("RemoveItems failed: %v", err)
			}
			if err := c.ClearAll(); err != nil {
				t.Fatalf("ClearAll failed: %v", err)
			}
			stats, _ = c.Stats()
			if stats.Items != 0 || stats.Folders != 0 {
				t.Errorf("Stats after ClearAll = %+v", stats)
			}
		})
	}
}

func TestItemCache_PersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	c := NewItemCache(dir)
	if err := c.CacheItems("a", []domain.CacheEntry{entry("1", "dune")}); err != nil {
		t.Fatalf("CacheItems failed: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	reopened := NewItemCache(dir)
	defer reopened.Close()
	if err := reopened.Init(); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	if err := reopened.Init(); err != nil {
		t.Fatalf("second Init must be a no-op, got %v", err)
	}
	got, ok := reopened.GetCachedItem("1")
	if !ok || got.Data.Title != "dune" {
		t.Errorf("expected persisted entry, got %+v ok=%v", got, ok)
	}
}

func TestItemCache_ManyEntriesInOneFolder(t *testing.T) {
	c := NewItemCache(t.TempDir())
	defer c.Close()

	const n = 2500
	entries := make([]domain.CacheEntry, n)
	for i := range entries {
		entries[i] = entry(strconv.Itoa(i), "t")
	}
	if err := c.CacheItems("big", entries); err != nil {
		t.Fatalf("CacheItems failed: %v", err)
	}
	got, err := c.GetCachedItems("big")
	if err != nil {
		t.Fatalf("GetCachedItems failed: %v", err)
	}
	if len(got) != n {
		t.Errorf("expected %d entries, got %d", n, len(got))
	}
}
