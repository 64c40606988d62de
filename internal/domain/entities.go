package domain

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

// ItemType distinguishes catalog entries
type ItemType string

const (
	ItemTypeBook  ItemType = "book"
	ItemTypeMovie ItemType = "movie"
)

// MaxRating is the top of the 0-5 rating scale
const MaxRating = 5

// Item represents one catalog record (book or movie) persisted as a single file
type Item struct {
	// Locators. ID derives from Filename; FileID is issued by the remote backend only.
	ID       string `yaml:"-" json:"id"`
	Filename string `yaml:"-" json:"filename"`
	FileID   string `yaml:"-" json:"fileId,omitempty"`

	Title    string   `yaml:"title" json:"title"`
	Type     ItemType `yaml:"type" json:"type"`
	Author   string   `yaml:"author,omitempty" json:"author,omitempty"`
	Director string   `yaml:"director,omitempty" json:"director,omitempty"`
	Actors   []string `yaml:"actors,omitempty" json:"actors,omitempty"`
	ISBN     string   `yaml:"isbn,omitempty" json:"isbn,omitempty"`
	Year     int      `yaml:"year,omitempty" json:"year,omitempty"`
	Rating   int      `yaml:"rating,omitempty" json:"rating,omitempty"` // 0-5
	Tags     []string `yaml:"tags,omitempty" json:"tags,omitempty"`
	Status   string   `yaml:"status,omitempty" json:"status,omitempty"`
	CoverURL string   `yaml:"coverUrl,omitempty" json:"coverUrl,omitempty"`

	DateAdded    time.Time `yaml:"dateAdded,omitempty" json:"dateAdded"`
	DateStarted  time.Time `yaml:"dateStarted,omitempty" json:"dateStarted,omitempty"`
	DateFinished time.Time `yaml:"dateFinished,omitempty" json:"dateFinished,omitempty"`

	// Review is the free-text markdown body
	Review string `yaml:"-" json:"review,omitempty"`
}

// Creator returns the author for books and the director for movies
func (i *Item) Creator() string {
	if i.Type == ItemTypeMovie {
		return i.Director
	}
	return i.Author
}

// MatchKey identifies the logical item independent of its locator.
// Two items with equal keys resolve to the same backend file.
func (i *Item) MatchKey() string {
	norm := func(s string) string { return strings.ToLower(strings.TrimSpace(s)) }
	return norm(i.Title) + "\x00" + norm(string(i.Type)) + "\x00" + norm(i.Creator())
}

// SameEntry reports whether other describes the same logical item
func (i *Item) SameEntry(other *Item) bool {
	return other != nil && i.MatchKey() == other.MatchKey()
}

// HasTag reports whether the item carries tag (case-sensitive)
func (i *Item) HasTag(tag string) bool {
	return slices.Contains(i.Tags, tag)
}

// Clone returns a deep copy safe to mutate independently
func (i *Item) Clone() *Item {
	if i == nil {
		return nil
	}
	c := *i
	c.Actors = slices.Clone(i.Actors)
	c.Tags = slices.Clone(i.Tags)
	return &c
}

// Validate checks the fields every backend relies on
func (i *Item) Validate() error {
	if strings.TrimSpace(i.Title) == "" {
		return fmt.Errorf("%w: title is required", ErrInvalidItem)
	}
	switch i.Type {
	case ItemTypeBook, ItemTypeMovie:
	default:
		return fmt.Errorf("%w: unknown type %q", ErrInvalidItem, i.Type)
	}
	if i.Rating < 0 || i.Rating > MaxRating {
		return fmt.Errorf("%w: rating must be between 0 and %d (got %d)", ErrInvalidItem, MaxRating, i.Rating)
	}
	return nil
}

// SortByDateAdded orders items newest first, keeping the relative order of ties
func SortByDateAdded(items []*Item) {
	slices.SortStableFunc(items, func(a, b *Item) int {
		return b.DateAdded.Compare(a.DateAdded)
	})
}

// UndoEntry is the minimal record needed to reverse one soft-delete.
// It never carries item content; the file is relocated, not re-written.
type UndoEntry struct {
	Backend StorageType `json:"backend"`
	ItemID  string      `json:"itemId"`

	// SourceName is the filename the item had before deletion.
	// TrashName is its locator inside the trash (a path for local, a name for remote).
	SourceName string `json:"sourceName"`
	TrashName  string `json:"trashName"`

	// Remote backend only
	FileID         string `json:"fileId,omitempty"`
	SourceFolderID string `json:"sourceFolderId,omitempty"`
	TrashFolderID  string `json:"trashFolderId,omitempty"`

	DeletedAt time.Time `json:"deletedAt"`
}

// CacheEntry is a cached copy of a remote file's parsed content
type CacheEntry struct {
	FileID       string    `json:"fileId"`
	FolderID     string    `json:"folderId"`
	ModifiedTime time.Time `json:"modifiedTime"`
	Filename     string    `json:"filename"`
	Data         *Item     `json:"data"`
}

// FreshFor reports whether the entry still reflects a file last modified at modified
func (e CacheEntry) FreshFor(modified time.Time) bool {
	return e.Data != nil && e.ModifiedTime.Equal(modified)
}

// BatchChanges describes a partial update applied to many items at once.
// Nil pointers and empty tag slices leave the corresponding field untouched.
type BatchChanges struct {
	Status     *string
	Rating     *int
	Year       *int
	Author     *string
	Director   *string
	CoverURL   *string
	AddTags    []string
	RemoveTags []string
}

// IsEmpty reports whether applying the changes would be a no-op
func (c BatchChanges) IsEmpty() bool {
	return c.Status == nil && c.Rating == nil && c.Year == nil && c.Author == nil &&
		c.Director == nil && c.CoverURL == nil && len(c.AddTags) == 0 && len(c.RemoveTags) == 0
}

// Apply mutates item with the provided fields. Tags behave as a set.
func (c BatchChanges) Apply(item *Item) {
	if c.Status != nil {
		item.Status = *c.Status
	}
	if c.Rating != nil {
		item.Rating = *c.Rating
	}
	if c.Year != nil {
		item.Year = *c.Year
	}
	if c.Author != nil {
		item.Author = *c.Author
	}
	if c.Director != nil {
		item.Director = *c.Director
	}
	if c.CoverURL != nil {
		item.CoverURL = *c.CoverURL
	}
	for _, tag := range c.AddTags {
		tag = strings.TrimSpace(tag)
		if tag != "" && !item.HasTag(tag) {
			item.Tags = append(item.Tags, tag)
		}
	}
	if len(c.RemoveTags) > 0 {
		item.Tags = slices.DeleteFunc(item.Tags, func(t string) bool {
			return slices.Contains(c.RemoveTags, t)
		})
	}
}
