package domain

import "context"

// StorageType identifies the backend behind a StorageAdapter
type StorageType string

const (
	StorageTypeLocal  StorageType = "local"
	StorageTypeRemote StorageType = "remote"
)

// StorageAdapter is the capability set every backend implements.
// Callers stay polymorphic over it and only inspect GetStorageType for display.
type StorageAdapter interface {
	// Initialize performs best-effort setup without user interaction and
	// reports whether the backend is usable.
	Initialize(ctx context.Context) bool

	// IsConnected is true only when a folder handle is held (and, for remote, a token).
	IsConnected() bool

	// SelectStorage prompts the user to choose a folder or sign in.
	// Returns ErrUserCancelled when the prompt is dismissed.
	SelectStorage(ctx context.Context) error

	// Disconnect releases the handle/token. Safe to call repeatedly.
	Disconnect(ctx context.Context) error

	// LoadItems reads every record file, newest DateAdded first.
	// Unreadable files are skipped. onProgress may be nil.
	LoadItems(ctx context.Context, onProgress ProgressFunc) ([]*Item, error)

	// SaveItem creates or overwrites exactly one file and records assigned locators on item.
	SaveItem(ctx context.Context, item *Item) error

	// DeleteItem moves the file into trash and returns what is needed to undo it.
	DeleteItem(ctx context.Context, item *Item) (UndoEntry, error)

	// RestoreItem moves a trashed file back and returns the (possibly disambiguated) name.
	RestoreItem(ctx context.Context, entry UndoEntry) (string, error)

	// WriteFile and FileExists give non-catalog file access within the same folder.
	WriteFile(ctx context.Context, name, content string) error
	FileExists(ctx context.Context, name string) (bool, error)

	GetStorageType() StorageType

	// DisplayName returns the persisted folder name for display ("" if unknown)
	DisplayName() string
}

// Codec converts between an Item and the file content stored by the adapters.
// Adapters are agnostic to its format.
type Codec interface {
	Parse(content []byte) (*Item, error)
	Generate(item *Item) ([]byte, error)
}

// Preferences is the persisted key-value settings facility.
// Adapters read the folder name at connect time and record what they need to reconnect.
type Preferences interface {
	GetString(key string) string
	Set(key string, value string) error
}

// Preference keys written by the adapters
const (
	PrefFolderName     = "storage.folder_name"
	PrefLocalDir       = "storage.local_dir"
	PrefRemoteToken    = "remote.token"
	PrefRemoteFolderID = "remote.folder_id"
)

// DirectoryPicker asks the user for a local catalog folder
type DirectoryPicker interface {
	PickDirectory(ctx context.Context, suggested string) (string, error)
}

// TokenSource performs an interactive sign-in and returns a bearer token
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}
