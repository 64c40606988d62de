// Package cli implements the shelf command line.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/mmcdole/shelf/internal/codec"
	"github.com/mmcdole/shelf/internal/config"
	"github.com/mmcdole/shelf/internal/domain"
	"github.com/mmcdole/shelf/internal/prompt"
	"github.com/mmcdole/shelf/internal/service"
	"github.com/mmcdole/shelf/internal/storage"
	"github.com/mmcdole/shelf/internal/storage/remote/drive"
	"github.com/mmcdole/shelf/internal/store"
)

// ErrNoStorage is returned by commands that need a catalog when none is connected
var ErrNoStorage = errors.New("no catalog connected, run 'shelf connect' first")

// App holds the wired services shared by every command
type App struct {
	Config *config.Config
	Prefs  domain.Preferences
	Cache  domain.ItemCache
	Store  *service.ItemStore

	errOut io.Writer
	logger *slog.Logger
}

// Options overrides the collaborators NewApp would otherwise build from the config
type Options struct {
	Prefs  domain.Preferences
	Picker domain.DirectoryPicker
	Tokens domain.TokenSource
	Deps   *storage.Dependencies
	Err    io.Writer // notifications and progress
}

// NewApp wires the cache, storage factory and item store from cfg
func NewApp(cfg *config.Config, opts Options, logger *slog.Logger) *App {
	if logger == nil {
		logger = slog.Default()
	}
	a := &App{Config: cfg, errOut: opts.Err, logger: logger}
	if a.errOut == nil {
		a.errOut = io.Discard
	}

	a.Prefs = opts.Prefs
	if a.Prefs == nil {
		a.Prefs = config.NewPreferences()
	}
	if cfg.Cache.Enabled {
		a.Cache = store.NewItemCache(cfg.Cache.Dir)
	}

	deps := storage.Dependencies{
		Config: cfg,
		Prefs:  a.Prefs,
		Codec:  codec.Markdown{},
		Cache:  a.Cache,
		Picker: opts.Picker,
		Tokens: opts.Tokens,
	}
	if opts.Deps != nil {
		deps = *opts.Deps
	}
	if deps.Picker == nil {
		deps.Picker = prompt.NewDirectoryPicker()
	}
	if deps.Tokens == nil {
		deps.Tokens = a.tokenSource()
	}

	factory := storage.NewFactory(deps, logger)
	a.Store = service.NewItemStore(factory, &notifier{w: a.errOut}, cfg.Storage.BatchSize, logger)
	return a
}

// tokenSource prefers the device sign-in flow and falls back to pasting a token
func (a *App) tokenSource() domain.TokenSource {
	if a.Config.Remote.ClientID == "" {
		return prompt.TokenPrompt{}
	}
	auth := drive.NewAuthClient(a.Config.Remote.ClientID, a.Config.Remote.ClientSecret, a.logger)
	return drive.NewDeviceFlow(auth, prompt.ShowDeviceCode(a.errOut))
}

// Close releases the cache database
func (a *App) Close() error {
	if a.Cache != nil {
		return a.Cache.Close()
	}
	return nil
}

// preferredStorage is the backend recorded by the last connect
func (a *App) preferredStorage() domain.StorageType {
	if t := a.Prefs.GetString(prefStorageType); t != "" {
		return domain.StorageType(t)
	}
	return a.Config.Storage.Type
}

const prefStorageType = "storage.type"

// open restores the previous session without prompting and loads the catalog
func (a *App) open(ctx context.Context) error {
	a.Store.InitializeStorage(ctx, a.preferredStorage())
	if !a.Store.IsConnected() {
		return ErrNoStorage
	}
	_, err := a.load(ctx)
	return err
}

// load reloads the catalog, drawing a progress line on stderr
func (a *App) load(ctx context.Context) ([]*domain.Item, error) {
	p := &progressLine{w: a.errOut}
	items, err := a.Store.LoadItems(ctx, p.update)
	p.done()
	return items, err
}

// notifier prints store notifications to the terminal
type notifier struct {
	mu sync.Mutex
	w  io.Writer
}

func (n *notifier) Notify(note domain.Notification) {
	n.mu.Lock()
	defer n.mu.Unlock()
	switch note.Level {
	case domain.NotifyError:
		fmt.Fprintln(n.w, ErrorStyle.Render("✗ "+note.Message))
	default:
		fmt.Fprintln(n.w, SuccessStyle.Render("✓ "+note.Message))
	}
}

// clearLine clears the progress line from the terminal
const clearLine = "\r\033[K"

type progressLine struct {
	mu    sync.Mutex
	w     io.Writer
	frame int
	drawn bool
}

func (p *progressLine) update(processed, total int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if total == 0 {
		return
	}
	p.frame = (p.frame + 1) % len(SpinnerFrames)
	fmt.Fprintf(p.w, "%s%s Loading %d/%d", clearLine, SpinnerFrames[p.frame], processed, total)
	p.drawn = true
}

func (p *progressLine) done() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.drawn {
		fmt.Fprint(p.w, clearLine)
		p.drawn = false
	}
}
