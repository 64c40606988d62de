// Package remote stores catalog items as files in a cloud-drive folder.
package remote

import (
	"context"
	"time"
)

// Mime types understood by the remote API
const (
	FolderMimeType = "application/vnd.google-apps.folder"
	RecordMimeType = "text/markdown"
)

// File is the metadata the remote API reports for a file or folder
type File struct {
	ID           string
	Name         string
	MimeType     string
	ModifiedTime time.Time
	Parents      []string
	Trashed      bool
}

// IsFolder reports whether f is a folder
func (f File) IsFolder() bool {
	return f.MimeType == FolderMimeType
}

// Query filters ListFiles. Zero fields are not constrained, except Trashed
// which defaults to excluding files in the service's own trash.
type Query struct {
	ParentID    string
	Name        string
	MimeType    string
	FoldersOnly bool
	FilesOnly   bool
	Trashed     bool
}

// API is the subset of a Drive-like file service the adapter needs
type API interface {
	// ListFiles returns every match, following pagination to the end
	ListFiles(ctx context.Context, q Query) ([]File, error)
	GetFile(ctx context.Context, id string) (File, error)
	Download(ctx context.Context, id string) ([]byte, error)

	// CreateFile uploads content with metadata. Nil content creates a metadata-only file (a folder).
	CreateFile(ctx context.Context, meta File, content []byte) (File, error)

	// UpdateFile replaces content and, when name is non-empty, renames
	UpdateFile(ctx context.Context, id, name string, content []byte) (File, error)

	// MoveFile re-parents and optionally renames without touching content
	MoveFile(ctx context.Context, id, newName string, addParents, removeParents []string) (File, error)

	SetToken(token string)
}
